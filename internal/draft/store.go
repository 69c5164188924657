// Package draft keeps the unsaved exam slots of each class, keyed by subject.
package draft

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"examdesk/internal/model"
	"examdesk/internal/timecalc"
)

// Field names an editable draft field.
type Field string

const (
	FieldExamDate  Field = "exam_date"
	FieldStartTime Field = "start_time"
	FieldDuration  Field = "duration_minutes"
	FieldEndTime   Field = "end_time"
)

var (
	ErrUnknownSlot   = errors.New("unknown class or subject")
	ErrReadOnlyField = errors.New("field is derived and cannot be edited")
	ErrInvalidValue  = errors.New("invalid value")
	ErrUnknownField  = errors.New("unknown field")
)

type classDraft struct {
	order   []string
	entries map[string]Entry
}

// Store holds draft slots for every class seen in the session.
type Store struct {
	mu              sync.RWMutex
	classes         map[string]*classDraft
	defaultDuration int
}

// NewStore creates a store whose new drafts start with defaultDuration minutes.
func NewStore(defaultDuration int) *Store {
	if defaultDuration <= 0 {
		defaultDuration = model.DefaultDurationMinutes
	}
	return &Store{
		classes:         make(map[string]*classDraft),
		defaultDuration: defaultDuration,
	}
}

// Seed makes sure every subject of the class has a draft entry and overlays
// matching persisted slots. Entries for subjects no longer listed are dropped.
func (s *Store) Seed(classID string, subjects []model.Subject, persisted []model.PersistedSlot) {
	bySubject := make(map[string]*model.PersistedSlot, len(persisted))
	for i := range persisted {
		p := &persisted[i]
		if p.ClassID != "" && p.ClassID != classID {
			continue
		}
		bySubject[p.SubjectID] = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cd, ok := s.classes[classID]
	if !ok {
		cd = &classDraft{entries: make(map[string]Entry)}
		s.classes[classID] = cd
	}

	order := make([]string, 0, len(subjects))
	entries := make(map[string]Entry, len(subjects))
	for _, subj := range subjects {
		if _, dup := entries[subj.ID]; dup {
			continue
		}
		e, ok := cd.entries[subj.ID]
		if !ok {
			slot := model.NewDraftSlot(subj.ID)
			slot.DurationMinutes = s.defaultDuration
			e = Entry{Slot: slot}
		}
		entries[subj.ID] = Merge(e, bySubject[subj.ID])
		order = append(order, subj.ID)
	}
	cd.order = order
	cd.entries = entries
}

// SetField updates one field of a draft slot and returns the updated slot.
// Changing the start time or duration recomputes the end time in the same update.
func (s *Store) SetField(classID, subjectID string, field Field, value string) (model.DraftSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, ok := s.classes[classID]
	if !ok {
		return model.DraftSlot{}, fmt.Errorf("class %s: %w", classID, ErrUnknownSlot)
	}
	e, ok := cd.entries[subjectID]
	if !ok {
		return model.DraftSlot{}, fmt.Errorf("subject %s: %w", subjectID, ErrUnknownSlot)
	}

	slot := e.Slot
	switch field {
	case FieldExamDate:
		if value != "" {
			if _, err := time.Parse("2006-01-02", value); err != nil {
				return model.DraftSlot{}, fmt.Errorf("exam_date %q: %w", value, ErrInvalidValue)
			}
		}
		slot.ExamDate = value
	case FieldStartTime:
		if value != "" {
			m, ok := timecalc.Minutes(value)
			if !ok {
				return model.DraftSlot{}, fmt.Errorf("start_time %q: %w", value, ErrInvalidValue)
			}
			value = timecalc.FromMinutes(m)
		}
		slot.StartTime = value
		slot.EndTime = endTimeFor(slot)
	case FieldDuration:
		d, err := strconv.Atoi(value)
		if err != nil || d < 0 || d >= timecalc.MinutesPerDay {
			return model.DraftSlot{}, fmt.Errorf("duration_minutes %q: %w", value, ErrInvalidValue)
		}
		slot.DurationMinutes = d
		slot.EndTime = endTimeFor(slot)
	case FieldEndTime:
		return model.DraftSlot{}, ErrReadOnlyField
	default:
		return model.DraftSlot{}, fmt.Errorf("%s: %w", field, ErrUnknownField)
	}

	e.Slot = slot
	e.Touched = true
	cd.entries[subjectID] = e
	return slot, nil
}

func endTimeFor(slot model.DraftSlot) string {
	end, ok := timecalc.ComputeEndTime(slot.StartTime, slot.DurationMinutes)
	if !ok {
		return ""
	}
	return end
}

// Draft returns a copy of the class's draft map keyed by subject ID.
func (s *Store) Draft(classID string) map[string]model.DraftSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.DraftSlot)
	cd, ok := s.classes[classID]
	if !ok {
		return out
	}
	for id, e := range cd.entries {
		out[id] = e.Slot
	}
	return out
}

// Slots returns the class's draft slots in subject order.
func (s *Store) Slots(classID string) []model.DraftSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cd, ok := s.classes[classID]
	if !ok {
		return nil
	}
	out := make([]model.DraftSlot, 0, len(cd.order))
	for _, id := range cd.order {
		out = append(out, cd.entries[id].Slot)
	}
	return out
}

// Entry returns the bookkeeping for one subject.
func (s *Store) Entry(classID, subjectID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cd, ok := s.classes[classID]
	if !ok {
		return Entry{}, false
	}
	e, ok := cd.entries[subjectID]
	return e, ok
}

// Dirty returns the subject IDs carrying unsaved edits.
func (s *Store) Dirty(classID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cd, ok := s.classes[classID]
	if !ok {
		return nil
	}
	var ids []string
	for _, id := range cd.order {
		if cd.entries[id].Touched {
			ids = append(ids, id)
		}
	}
	return ids
}

// Release clears the unsaved mark of the given subjects so the next seed
// replaces them with what the server returns.
func (s *Store) Release(classID string, subjectIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, ok := s.classes[classID]
	if !ok {
		return
	}
	for _, id := range subjectIDs {
		e, ok := cd.entries[id]
		if !ok {
			continue
		}
		e.Touched = false
		e.Seen = nil
		cd.entries[id] = e
	}
}

// Reset drops every draft of the class.
func (s *Store) Reset(classID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.classes, classID)
}

// Classes returns the IDs of classes holding drafts.
func (s *Store) Classes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.classes))
	for id := range s.classes {
		ids = append(ids, id)
	}
	return ids
}
