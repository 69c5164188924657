// Package composertest provides an in-memory data service for tests.
package composertest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"examdesk/internal/dataapi"
	"examdesk/internal/model"
)

// Service is an in-memory implementation of composer.DataService.
// Err* fields, when set, are returned by the matching call.
type Service struct {
	mu       sync.Mutex
	nextID   int
	Exams    []model.Exam
	Years    []model.AcademicYear
	Classes  []model.ClassSection
	Subjects map[string][]model.Subject
	Slots    []model.PersistedSlot

	ErrList   error
	ErrCreate error
	ErrDelete error

	// Gate, when non-nil, blocks ListSchedules until it is closed.
	Gate chan struct{}

	Creates     int
	Deletes     int
	ListCalls   int
	LastPayload model.Payload
}

// NewService returns a service with two classes and their subjects.
func NewService() *Service {
	return &Service{
		Exams:   []model.Exam{{ID: "mid", Name: "Midterm"}},
		Years:   []model.AcademicYear{{ID: "y25", Name: "2024/2025"}},
		Classes: []model.ClassSection{{ID: "c", Name: "Class C"}, {ID: "d", Name: "Class D"}},
		Subjects: map[string][]model.Subject{
			"c": {{ID: "math", Name: "Math", ClassID: "c"}, {ID: "eng", Name: "English", ClassID: "c"}},
			"d": {{ID: "sci", Name: "Science", ClassID: "d"}},
		},
	}
}

func (s *Service) ListExams(context.Context) ([]model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Exam{}, s.Exams...), s.ErrList
}

func (s *Service) ListAcademicYears(context.Context) ([]model.AcademicYear, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AcademicYear{}, s.Years...), s.ErrList
}

func (s *Service) ListClasses(context.Context) ([]model.ClassSection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ClassSection{}, s.Classes...), s.ErrList
}

func (s *Service) ListSubjects(_ context.Context, classID string) ([]model.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrList != nil {
		return nil, s.ErrList
	}
	return append([]model.Subject{}, s.Subjects[classID]...), nil
}

func (s *Service) ListSchedules(ctx context.Context, f model.ScheduleFilter) ([]model.PersistedSlot, error) {
	s.mu.Lock()
	gate := s.Gate
	s.ListCalls++
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrList != nil {
		return nil, s.ErrList
	}
	out := []model.PersistedSlot{}
	for _, sl := range s.Slots {
		if (f.ExamID == "" || sl.ExamID == f.ExamID) &&
			(f.ClassID == "" || sl.ClassID == f.ClassID) &&
			(f.AcademicYearID == "" || sl.AcademicYearID == f.AcademicYearID) {
			out = append(out, sl)
		}
	}
	return out, nil
}

func (s *Service) CreateSchedules(_ context.Context, p model.Payload) ([]model.PersistedSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Creates++
	s.LastPayload = p
	if s.ErrCreate != nil {
		return nil, s.ErrCreate
	}
	created := make([]model.PersistedSlot, 0, len(p.Schedules))
	for _, item := range p.Schedules {
		s.nextID++
		created = append(created, model.PersistedSlot{
			ID:             fmt.Sprintf("slot-%d", s.nextID),
			SubjectID:      item.SubjectID,
			ClassID:        p.ClassID,
			ExamID:         item.ExamID,
			AcademicYearID: item.AcademicYearID,
			ExamDate:       item.ExamDate,
			StartTime:      item.StartTime,
			EndTime:        item.EndTime,
		})
	}
	s.Slots = append(s.Slots, created...)
	return created, nil
}

func (s *Service) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deletes++
	if s.ErrDelete != nil {
		return s.ErrDelete
	}
	for i, sl := range s.Slots {
		if sl.ID == id {
			s.Slots = append(s.Slots[:i], s.Slots[i+1:]...)
			return nil
		}
	}
	return &dataapi.StatusError{Status: http.StatusNotFound, Message: "not found", Detail: "exam schedule " + id + " does not exist"}
}

// Add stores a persisted slot directly.
func (s *Service) Add(slot model.PersistedSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Slots = append(s.Slots, slot)
}

// Snapshot returns a copy of the stored slots.
func (s *Service) Snapshot() []model.PersistedSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PersistedSlot{}, s.Slots...)
}

// SetGate replaces the ListSchedules gate.
func (s *Service) SetGate(g chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gate = g
}
