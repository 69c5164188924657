// Package composer ties the draft store, the coordinators and the aggregator
// to one console session: the active selection, the reference lists and the
// persisted schedules fetched from the data service.
package composer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"examdesk/internal/deletion"
	"examdesk/internal/draft"
	"examdesk/internal/model"
	"examdesk/internal/printout"
	"examdesk/internal/submission"
)

var (
	ErrLoading          = errors.New("data is still loading")
	ErrNoClass          = errors.New("no class selected")
	ErrUnknownSelection = errors.New("unknown selection")
)

// Loading keys.
const (
	loadReference = "reference"
	loadSubjects  = "subjects"
	loadSchedules = "schedules"
)

// DataService is the remote data service used by a session.
type DataService interface {
	ListExams(ctx context.Context) ([]model.Exam, error)
	ListAcademicYears(ctx context.Context) ([]model.AcademicYear, error)
	ListClasses(ctx context.Context) ([]model.ClassSection, error)
	ListSubjects(ctx context.Context, classID string) ([]model.Subject, error)
	ListSchedules(ctx context.Context, filter model.ScheduleFilter) ([]model.PersistedSlot, error)
	CreateSchedules(ctx context.Context, payload model.Payload) ([]model.PersistedSlot, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// Options configures a session.
type Options struct {
	DefaultDuration int
	Print           printout.Options
	NoticeLimit     int
}

// Session is the single composer session of the process.
type Session struct {
	svc     DataService
	drafts  *draft.Store
	submit  *submission.Coordinator
	del     *deletion.Coordinator
	print   printout.Options
	logger  *zerolog.Logger
	now     func() time.Time
	notices *noticeLog

	mu         sync.RWMutex
	exams      []model.Exam
	years      []model.AcademicYear
	classes    []model.ClassSection
	examID     string
	yearID     string
	classID    string
	subjects   map[string][]model.Subject // class ID -> subjects
	classSlots []model.PersistedSlot
	allSlots   []model.PersistedSlot
	loading    map[string]int
	reloadedAt time.Time
}

// New creates a session backed by svc.
func New(svc DataService, opts Options, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Session{
		svc:      svc,
		drafts:   draft.NewStore(opts.DefaultDuration),
		print:    opts.Print,
		logger:   logger,
		now:      time.Now,
		notices:  newNoticeLog(opts.NoticeLimit),
		subjects: make(map[string][]model.Subject),
		loading:  make(map[string]int),
	}
	s.submit = submission.NewCoordinator(svc, s, logger)
	s.del = deletion.NewCoordinator(svc, s, logger)
	s.submit.OnCreated(s.releaseSubmitted)
	return s
}

// UseHistorySink records confirmed batches in h.
func (s *Session) UseHistorySink(h submission.HistorySink) { s.submit.UseHistorySink(h) }

// UseDeletionSink records deletions in d.
func (s *Session) UseDeletionSink(d deletion.Sink) { s.del.UseSink(d) }

func (s *Session) beginLoad(key string) func() {
	s.mu.Lock()
	s.loading[key]++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if s.loading[key]--; s.loading[key] <= 0 {
			delete(s.loading, key)
		}
		s.mu.Unlock()
	}
}

// Loading reports whether any dependency fetch is in progress.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loading) > 0
}

func (s *Session) loadingKeys() []string {
	keys := make([]string, 0, len(s.loading))
	for k := range s.loading {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadReference fetches the exam, academic year and class lists. Selections
// that no longer exist are cleared and cached subject lists are dropped.
func (s *Session) LoadReference(ctx context.Context) error {
	done := s.beginLoad(loadReference)
	defer done()

	exams, err := s.svc.ListExams(ctx)
	if err != nil {
		return s.remoteFailure("Could not load exams", fmt.Errorf("list exams: %w", err))
	}
	years, err := s.svc.ListAcademicYears(ctx)
	if err != nil {
		return s.remoteFailure("Could not load academic years", fmt.Errorf("list academic years: %w", err))
	}
	classes, err := s.svc.ListClasses(ctx)
	if err != nil {
		return s.remoteFailure("Could not load classes", fmt.Errorf("list classes: %w", err))
	}

	s.mu.Lock()
	s.exams, s.years, s.classes = exams, years, classes
	if findExam(exams, s.examID) == nil {
		s.examID = ""
	}
	if findYear(years, s.yearID) == nil {
		s.yearID = ""
	}
	if _, ok := findClass(classes, s.classID); !ok {
		s.classID = ""
		s.classSlots = nil
	}
	s.subjects = make(map[string][]model.Subject)
	s.mu.Unlock()

	s.logger.Info().
		Int("exams", len(exams)).
		Int("academic_years", len(years)).
		Int("classes", len(classes)).
		Msg("reference data loaded")
	return nil
}

// SelectExam sets the active exam. An empty id clears it. Persisted
// schedules and class drafts are dropped until the next Reload.
func (s *Session) SelectExam(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && findExam(s.exams, id) == nil {
		return fmt.Errorf("exam %s: %w", id, ErrUnknownSelection)
	}
	if id != s.examID {
		s.examID = id
		s.resetDraftsLocked()
	}
	return nil
}

// SelectAcademicYear sets the active academic year. An empty id clears it.
func (s *Session) SelectAcademicYear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && findYear(s.years, id) == nil {
		return fmt.Errorf("academic year %s: %w", id, ErrUnknownSelection)
	}
	if id != s.yearID {
		s.yearID = id
		s.resetDraftsLocked()
	}
	return nil
}

// resetDraftsLocked drops persisted schedules and every class draft, since
// they belong to the previous exam and year. The active class gets empty
// drafts again when its subjects are known. Callers hold s.mu.
func (s *Session) resetDraftsLocked() {
	s.classSlots, s.allSlots = nil, nil
	for _, id := range s.drafts.Classes() {
		s.drafts.Reset(id)
	}
	if subjects, ok := s.subjects[s.classID]; ok && s.classID != "" {
		s.drafts.Seed(s.classID, subjects, nil)
	}
}

// SelectClass makes id the active class, fetches its subjects and reloads
// the persisted schedules.
func (s *Session) SelectClass(ctx context.Context, id string) error {
	return s.Select(ctx, Selection{ClassID: &id})
}

// Selection names the IDs to change; nil fields are left as they are and
// empty strings clear the selection.
type Selection struct {
	ExamID         *string
	AcademicYearID *string
	ClassID        *string
}

// Select checks every ID of sel before applying any of them, then fetches
// the active class's subjects and reloads. An unknown ID changes nothing.
func (s *Session) Select(ctx context.Context, sel Selection) error {
	s.mu.Lock()
	if sel.ExamID != nil && *sel.ExamID != "" && findExam(s.exams, *sel.ExamID) == nil {
		s.mu.Unlock()
		return fmt.Errorf("exam %s: %w", *sel.ExamID, ErrUnknownSelection)
	}
	if sel.AcademicYearID != nil && *sel.AcademicYearID != "" && findYear(s.years, *sel.AcademicYearID) == nil {
		s.mu.Unlock()
		return fmt.Errorf("academic year %s: %w", *sel.AcademicYearID, ErrUnknownSelection)
	}
	if sel.ClassID != nil && *sel.ClassID != "" {
		if _, ok := findClass(s.classes, *sel.ClassID); !ok {
			s.mu.Unlock()
			return fmt.Errorf("class %s: %w", *sel.ClassID, ErrUnknownSelection)
		}
	}

	if sel.ClassID != nil && *sel.ClassID != s.classID {
		s.classID = *sel.ClassID
		s.classSlots = nil
	}
	scopeChanged := false
	if sel.ExamID != nil && *sel.ExamID != s.examID {
		s.examID = *sel.ExamID
		scopeChanged = true
	}
	if sel.AcademicYearID != nil && *sel.AcademicYearID != s.yearID {
		s.yearID = *sel.AcademicYearID
		scopeChanged = true
	}
	if scopeChanged {
		s.resetDraftsLocked()
	}
	classID := s.classID
	s.mu.Unlock()

	if classID != "" {
		if err := s.ensureSubjects(ctx, classID); err != nil {
			return err
		}
	}
	return s.Reload(ctx)
}

// ensureSubjects fetches subject lists for classes not fetched yet.
func (s *Session) ensureSubjects(ctx context.Context, classIDs ...string) error {
	s.mu.RLock()
	var missing []string
	for _, id := range classIDs {
		if _, ok := s.subjects[id]; !ok {
			missing = append(missing, id)
		}
	}
	s.mu.RUnlock()
	if len(missing) == 0 {
		return nil
	}

	done := s.beginLoad(loadSubjects)
	defer done()

	for _, id := range missing {
		subjects, err := s.svc.ListSubjects(ctx, id)
		if err != nil {
			return s.remoteFailure("Could not load subjects", fmt.Errorf("list subjects of class %s: %w", id, err))
		}
		s.mu.Lock()
		s.subjects[id] = subjects
		s.mu.Unlock()
	}
	return nil
}

type selection struct {
	examID, yearID, classID string
}

func (s *Session) selection() selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selection{examID: s.examID, yearID: s.yearID, classID: s.classID}
}

// Reload refetches the persisted schedules of the active class and of all
// classes for the selected exam and year, then reseeds the class draft.
// Results are discarded when the selection changed during the fetch.
func (s *Session) Reload(ctx context.Context) error {
	sel := s.selection()
	if sel.classID != "" {
		if err := s.ensureSubjects(ctx, sel.classID); err != nil {
			return err
		}
	}
	fetchedAt := s.now()

	var classSlots, allSlots []model.PersistedSlot
	if sel.examID != "" && sel.yearID != "" {
		done := s.beginLoad(loadSchedules)
		var err error
		if sel.classID != "" {
			classSlots, err = s.svc.ListSchedules(ctx, model.ScheduleFilter{
				ExamID: sel.examID, ClassID: sel.classID, AcademicYearID: sel.yearID,
			})
			if err != nil {
				done()
				return s.remoteFailure("Could not load the class schedule", fmt.Errorf("list class schedules: %w", err))
			}
		}
		allSlots, err = s.svc.ListSchedules(ctx, model.ScheduleFilter{ExamID: sel.examID, AcademicYearID: sel.yearID})
		done()
		if err != nil {
			return s.remoteFailure("Could not load the schedule of all classes", fmt.Errorf("list all schedules: %w", err))
		}
	}

	if s.selection() != sel {
		s.logger.Debug().Msg("selection changed during reload, results dropped")
		return nil
	}

	if err := s.ensureSubjects(ctx, classIDsOf(allSlots)...); err != nil {
		// Names fall back to IDs; the schedules themselves are still valid.
		s.logger.Warn().Err(err).Msg("subject names unavailable for some classes")
	}

	s.mu.Lock()
	s.classSlots, s.allSlots = classSlots, allSlots
	s.reloadedAt = fetchedAt
	subjects := s.subjects[sel.classID]
	s.mu.Unlock()

	if sel.classID != "" {
		s.drafts.Seed(sel.classID, subjects, classSlots)
	}
	s.logger.Debug().
		Str("class_id", sel.classID).
		Int("class_slots", len(classSlots)).
		Int("all_slots", len(allSlots)).
		Msg("schedules reloaded")
	return nil
}

// releaseSubmitted clears the unsaved marks of a confirmed batch so the
// reload that follows replaces them with the created slots.
func (s *Session) releaseSubmitted(b submission.Batch) {
	ids := make([]string, 0, len(b.Payload.Schedules))
	for _, item := range b.Payload.Schedules {
		ids = append(ids, item.SubjectID)
	}
	s.drafts.Release(b.Payload.ClassID, ids...)
}

func classIDsOf(slots []model.PersistedSlot) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, sl := range slots {
		if sl.ClassID != "" && !seen[sl.ClassID] {
			seen[sl.ClassID] = true
			ids = append(ids, sl.ClassID)
		}
	}
	return ids
}

func findExam(exams []model.Exam, id string) *model.Exam {
	for i := range exams {
		if exams[i].ID == id {
			e := exams[i]
			return &e
		}
	}
	return nil
}

func findYear(years []model.AcademicYear, id string) *model.AcademicYear {
	for i := range years {
		if years[i].ID == id {
			y := years[i]
			return &y
		}
	}
	return nil
}

func findClass(classes []model.ClassSection, id string) (model.ClassSection, bool) {
	for _, c := range classes {
		if c.ID == id {
			return c, true
		}
	}
	return model.ClassSection{}, false
}
