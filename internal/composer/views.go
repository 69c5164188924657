package composer

import (
	"fmt"
	"io"
	"time"

	"examdesk/internal/aggregate"
	"examdesk/internal/model"
	"examdesk/internal/printout"
	"examdesk/internal/submission"
)

// Scope selects the classes a view covers.
type Scope string

const (
	ScopeClass Scope = "class"
	ScopeAll   Scope = "all"
)

// Mode selects the printed layout.
type Mode string

const (
	ModeBlocks Mode = "blocks"
	ModeRows   Mode = "rows"
)

// ErrBadScope is returned for an unknown scope or mode.
var ErrBadScope = fmt.Errorf("%w: scope or mode", ErrUnknownSelection)

// ParseScope maps a query value to a Scope. Empty means the active class.
func ParseScope(v string) (Scope, error) {
	switch Scope(v) {
	case "", ScopeClass:
		return ScopeClass, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", fmt.Errorf("scope %q: %w", v, ErrBadScope)
}

// ParseMode maps a query value to a Mode. Empty means blocks.
func ParseMode(v string) (Mode, error) {
	switch Mode(v) {
	case "", ModeBlocks:
		return ModeBlocks, nil
	case ModeRows:
		return ModeRows, nil
	}
	return "", fmt.Errorf("mode %q: %w", v, ErrBadScope)
}

type viewData struct {
	examName string
	yearName string
	scope    string
	rows     []model.SlotRow
}

func (s *Session) view(scope Scope) (viewData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		scopeClassID string
		slots        []model.PersistedSlot
		label        = "All classes"
	)
	switch scope {
	case ScopeAll:
		slots = s.allSlots
	default:
		if s.classID == "" {
			return viewData{}, ErrNoClass
		}
		scopeClassID = s.classID
		slots = s.classSlots
		if c, ok := findClass(s.classes, s.classID); ok && c.Name != "" {
			label = c.Name
		} else {
			label = s.classID
		}
	}

	names := aggregate.NewSubjectIndex(scopeClassID, s.subjects)
	v := viewData{
		scope: label,
		rows:  aggregate.Flatten(aggregate.ByClass(slots), s.classes, scopeClassID, names),
	}
	if e := findExam(s.exams, s.examID); e != nil {
		v.examName = e.Name
	}
	if y := findYear(s.years, s.yearID); y != nil {
		v.yearName = y.Name
	}
	return v, nil
}

// Table returns the persisted slots of the scope in chronological order.
func (s *Session) Table(scope Scope) ([]model.SlotRow, error) {
	v, err := s.view(scope)
	if err != nil {
		return nil, err
	}
	return v.rows, nil
}

// Blocks returns the persisted slots of the scope grouped by identical timing.
func (s *Session) Blocks(scope Scope) ([]model.ScheduleBlock, error) {
	v, err := s.view(scope)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupForPrint(v.rows), nil
}

// RenderPrint writes the printable HTML document of the scope.
func (s *Session) RenderPrint(w io.Writer, scope Scope, mode Mode) error {
	if s.Loading() {
		return ErrLoading
	}
	v, err := s.view(scope)
	if err != nil {
		return err
	}

	if mode == ModeRows {
		return printout.RenderRows(w, printout.RowsDocument{
			ExamName: v.examName, AcademicYear: v.yearName, Scope: v.scope, Rows: v.rows,
		}, s.print)
	}
	return printout.RenderBlocks(w, s.blocksDocument(v), s.print)
}

// ExportPrint writes the grouped schedule of the scope as an xlsx workbook.
func (s *Session) ExportPrint(w io.Writer, scope Scope) error {
	if s.Loading() {
		return ErrLoading
	}
	v, err := s.view(scope)
	if err != nil {
		return err
	}
	doc := s.blocksDocument(v)
	if err := printout.ExportBlocks(w, doc, s.print); err != nil {
		return err
	}
	s.logger.Info().Str("scope", v.scope).Int("slots", printout.Slots(doc.Blocks)).Msg("schedule exported")
	return nil
}

func (s *Session) blocksDocument(v viewData) printout.BlocksDocument {
	return printout.BlocksDocument{
		ExamName:     v.examName,
		AcademicYear: v.yearName,
		Scope:        v.scope,
		Blocks:       aggregate.GroupForPrint(v.rows),
	}
}

// State is a point-in-time view of the session.
type State struct {
	Exams          []model.Exam          `json:"exams"`
	AcademicYears  []model.AcademicYear  `json:"academic_years"`
	Classes        []model.ClassSection  `json:"classes"`
	ExamID         string                `json:"exam_id"`
	AcademicYearID string                `json:"academic_year_id"`
	ClassID        string                `json:"class_id"`
	Subjects       []model.Subject       `json:"subjects"`
	Loading        []string              `json:"loading"`
	Pending        *submission.Pending   `json:"pending,omitempty"`
	Submitting     bool                  `json:"submitting"`
	Unsaved        []string              `json:"unsaved"`
	Conflicts      []model.ScheduleBlock `json:"conflicts"`
	ReloadedAt     time.Time             `json:"reloaded_at"`
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	st := State{
		Exams:          append([]model.Exam{}, s.exams...),
		AcademicYears:  append([]model.AcademicYear{}, s.years...),
		Classes:        append([]model.ClassSection{}, s.classes...),
		ExamID:         s.examID,
		AcademicYearID: s.yearID,
		ClassID:        s.classID,
		Subjects:       append([]model.Subject{}, s.subjects[s.classID]...),
		Loading:        s.loadingKeys(),
		ReloadedAt:     s.reloadedAt,
	}
	s.mu.RUnlock()

	st.Pending, _ = s.submit.Pending()
	st.Submitting = s.submit.InFlight()
	st.Unsaved = append([]string{}, s.drafts.Dirty(st.ClassID)...)
	if blocks, err := s.Blocks(ScopeAll); err == nil {
		st.Conflicts = aggregate.Conflicts(blocks)
	}
	if st.Conflicts == nil {
		st.Conflicts = []model.ScheduleBlock{}
	}
	return st
}
