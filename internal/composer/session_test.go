package composer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examdesk/internal/composer/composertest"
	"examdesk/internal/dataapi"
	"examdesk/internal/draft"
	"examdesk/internal/model"
	"examdesk/internal/submission"
	"examdesk/internal/validate"
)

func newSession(t *testing.T, svc *composertest.Service) *Session {
	t.Helper()
	logger := zerolog.New(io.Discard)
	return New(svc, Options{}, &logger)
}

// ready loads reference data and selects Midterm, 2024/2025 and class C.
func ready(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.LoadReference(ctx))
	require.NoError(t, s.SelectExam("mid"))
	require.NoError(t, s.SelectAcademicYear("y25"))
	require.NoError(t, s.SelectClass(ctx, "c"))
}

func fillMath(t *testing.T, s *Session) {
	t.Helper()
	_, err := s.SetField("math", draft.FieldExamDate, "2025-05-10")
	require.NoError(t, err)
	_, err = s.SetField("math", draft.FieldStartTime, "09:00")
	require.NoError(t, err)
	slot, err := s.SetField("math", draft.FieldDuration, "120")
	require.NoError(t, err)
	require.Equal(t, "11:00", slot.EndTime)
}

func TestSession_MathEnglishScenario(t *testing.T) {
	svc := composertest.NewService()
	s := newSession(t, svc)
	ready(t, s)

	drafts, err := s.Drafts()
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "Math", drafts[0].SubjectName)
	assert.False(t, drafts[0].Complete())

	fillMath(t, s)

	pending, err := s.RequestSubmission()
	require.NoError(t, err)
	require.Len(t, pending.Payload.Schedules, 1)
	assert.Equal(t, model.ScheduleDraftItem{
		SubjectID: "math", ExamDate: "2025-05-10", StartTime: "09:00", EndTime: "11:00",
		ExamID: "mid", AcademicYearID: "y25",
	}, pending.Payload.Schedules[0])
	assert.Equal(t, "Class C", pending.Payload.ClassName)
	assert.Equal(t, "Midterm", pending.Payload.ExamName)

	res, err := s.ConfirmSubmission(context.Background(), pending.ID)
	require.NoError(t, err)
	require.NoError(t, res.ReloadErr)
	require.Len(t, res.Batch.Created, 1)

	rows, err := s.Table(ScopeClass)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Math", rows[0].SubjectName)
	assert.Equal(t, "c", rows[0].ClassID)
	assert.Equal(t, res.Batch.Created[0].ID, rows[0].ID)

	e, ok := s.drafts.Entry("c", "math")
	require.True(t, ok)
	assert.False(t, e.Touched, "submitted draft is superseded by the persisted slot")
	assert.Equal(t, "11:00", e.Slot.EndTime)
	assert.Empty(t, s.Snapshot().Unsaved)
	assert.Len(t, s.Submitted(), 1)

	_, hasPending := s.PendingSubmission()
	assert.False(t, hasPending)

	notices := s.Notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, LevelInfo, notices[len(notices)-1].Level)
}

func TestSession_DeleteMissingSlot(t *testing.T) {
	svc := composertest.NewService()
	svc.Add(model.PersistedSlot{ID: "s1", SubjectID: "math", ClassID: "c", ExamID: "mid", AcademicYearID: "y25", ExamDate: "2025-05-10", StartTime: "09:00", EndTime: "11:00"})
	s := newSession(t, svc)
	ready(t, s)

	before, err := s.Table(ScopeClass)
	require.NoError(t, err)
	listCalls := svc.ListCalls

	_, err = s.DeleteSlot(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, dataapi.IsNotFound(err))

	after, err := s.Table(ScopeClass)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, listCalls, svc.ListCalls, "no reload after a failed delete")

	notices := s.Notices()
	require.NotEmpty(t, notices)
	last := notices[len(notices)-1]
	assert.Equal(t, LevelError, last.Level)
	assert.Equal(t, "exam schedule missing does not exist", last.Detail)
}

func TestSession_DeleteResetsMirroredDraft(t *testing.T) {
	svc := composertest.NewService()
	svc.Add(model.PersistedSlot{ID: "s1", SubjectID: "math", ClassID: "c", ExamID: "mid", AcademicYearID: "y25", ExamDate: "2025-05-10", StartTime: "09:00", EndTime: "10:30"})
	s := newSession(t, svc)
	ready(t, s)

	e, _ := s.drafts.Entry("c", "math")
	assert.Equal(t, 90, e.Slot.DurationMinutes)

	res, err := s.DeleteSlot(context.Background(), "s1")
	require.NoError(t, err)
	assert.NoError(t, res.ReloadErr)

	rows, err := s.Table(ScopeAll)
	require.NoError(t, err)
	assert.Empty(t, rows)

	e, _ = s.drafts.Entry("c", "math")
	assert.False(t, e.Slot.Complete())
	assert.Equal(t, 90, e.Slot.DurationMinutes)
}

func TestSession_ReloadKeepsUnsavedEdits(t *testing.T) {
	svc := composertest.NewService()
	svc.Add(model.PersistedSlot{ID: "s1", SubjectID: "math", ClassID: "c", ExamID: "mid", AcademicYearID: "y25", ExamDate: "2025-05-10", StartTime: "09:00", EndTime: "11:00"})
	s := newSession(t, svc)
	ready(t, s)

	_, err := s.SetField("math", draft.FieldStartTime, "13:00")
	require.NoError(t, err)
	_, err = s.SetField("eng", draft.FieldExamDate, "2025-05-11")
	require.NoError(t, err)

	require.NoError(t, s.Reload(context.Background()))
	require.NoError(t, s.Reload(context.Background()))

	drafts := s.drafts.Draft("c")
	assert.Equal(t, "13:00", drafts["math"].StartTime)
	assert.Equal(t, "15:00", drafts["math"].EndTime)
	assert.Equal(t, "2025-05-11", drafts["eng"].ExamDate)
	assert.ElementsMatch(t, []string{"math", "eng"}, s.Snapshot().Unsaved)
}

func TestSession_ReloadKeepsEditOverOtherWriter(t *testing.T) {
	svc := composertest.NewService()
	s := newSession(t, svc)
	ready(t, s)

	_, err := s.SetField("eng", draft.FieldExamDate, "2025-05-20")
	require.NoError(t, err)
	_, err = s.SetField("eng", draft.FieldStartTime, "08:00")
	require.NoError(t, err)

	svc.Add(model.PersistedSlot{ID: "other", SubjectID: "eng", ClassID: "c", ExamID: "mid", AcademicYearID: "y25", ExamDate: "2025-06-01", StartTime: "13:00", EndTime: "15:00"})
	require.NoError(t, s.Reload(context.Background()))

	eng := s.drafts.Draft("c")["eng"]
	assert.Equal(t, "2025-05-20", eng.ExamDate)
	assert.Equal(t, "08:00", eng.StartTime)
	assert.Equal(t, "10:00", eng.EndTime)
	assert.Equal(t, []string{"eng"}, s.Snapshot().Unsaved)

	rows, err := s.Table(ScopeClass)
	require.NoError(t, err)
	require.Len(t, rows, 1, "the other writer's slot is still listed")
	assert.Equal(t, "2025-06-01", rows[0].ExamDate)
}

func TestSession_ExamChangeResetsDrafts(t *testing.T) {
	svc := composertest.NewService()
	svc.Exams = append(svc.Exams, model.Exam{ID: "fin", Name: "Final"})
	s := newSession(t, svc)
	ready(t, s)
	fillMath(t, s)

	require.NoError(t, s.SelectExam("fin"))

	drafts, err := s.Drafts()
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	for _, d := range drafts {
		assert.False(t, d.Complete())
		assert.False(t, d.Unsaved)
	}
	assert.Empty(t, s.Snapshot().Unsaved)
}

func TestSession_ValidationNotice(t *testing.T) {
	svc := composertest.NewService()
	s := newSession(t, svc)
	require.NoError(t, s.LoadReference(context.Background()))
	require.NoError(t, s.SelectClass(context.Background(), "c"))

	_, err := s.RequestSubmission()
	assert.True(t, validate.IsKind(err, validate.KindNoExam))

	require.NoError(t, s.SelectExam("mid"))
	require.NoError(t, s.SelectAcademicYear("y25"))
	_, err = s.RequestSubmission()
	assert.True(t, validate.IsKind(err, validate.KindNoCompleteSlots))
	assert.Zero(t, svc.Creates)

	notices := s.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, LevelWarning, notices[1].Level)
}

func TestSession_CreateFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "server error",
			err:     &dataapi.StatusError{Status: http.StatusInternalServerError, Message: "internal", Detail: "database unavailable"},
			message: "Could not save the exam schedule",
		},
		{
			name:    "conflict",
			err:     &dataapi.StatusError{Status: http.StatusConflict, Message: "duplicate schedule"},
			message: "Could not save the exam schedule: the schedule was changed by someone else, reload and try again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := composertest.NewService()
			svc.ErrCreate = tt.err
			s := newSession(t, svc)
			ready(t, s)
			fillMath(t, s)

			pending, err := s.RequestSubmission()
			require.NoError(t, err)

			_, err = s.ConfirmSubmission(context.Background(), pending.ID)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err))

			notices := s.Notices()
			last := notices[len(notices)-1]
			assert.Equal(t, tt.message, last.Message)
			assert.Equal(t, LevelError, last.Level)

			_, hasPending := s.PendingSubmission()
			assert.False(t, hasPending)
			assert.Equal(t, []string{"math"}, s.Snapshot().Unsaved, "edits survive a failed submission")

			_, err = s.ConfirmSubmission(context.Background(), pending.ID)
			assert.ErrorIs(t, err, submission.ErrNoPending)
		})
	}
}

func TestSession_LoadingBlocksSubmitAndPrint(t *testing.T) {
	svc := composertest.NewService()
	s := newSession(t, svc)
	ready(t, s)
	fillMath(t, s)

	gate := make(chan struct{})
	svc.SetGate(gate)
	done := make(chan error, 1)
	go func() { done <- s.Reload(context.Background()) }()

	require.Eventually(t, s.Loading, time.Second, 5*time.Millisecond)

	_, err := s.RequestSubmission()
	assert.ErrorIs(t, err, ErrLoading)
	_, err = s.ConfirmSubmission(context.Background(), "")
	assert.ErrorIs(t, err, ErrLoading)
	assert.ErrorIs(t, s.RenderPrint(io.Discard, ScopeAll, ModeBlocks), ErrLoading)
	assert.ErrorIs(t, s.ExportPrint(io.Discard, ScopeAll), ErrLoading)
	assert.Equal(t, []string{"schedules"}, s.Snapshot().Loading)

	close(gate)
	require.NoError(t, <-done)
	assert.False(t, s.Loading())

	_, err = s.RequestSubmission()
	assert.NoError(t, err)
}

func TestSession_AllClassesBlocks(t *testing.T) {
	svc := composertest.NewService()
	svc.Add(model.PersistedSlot{ID: "c1", SubjectID: "math", ClassID: "c", ExamID: "mid", AcademicYearID: "y25", ExamDate: "2025-05-12", StartTime: "10:00", EndTime: "12:00"})
	svc.Add(model.PersistedSlot{ID: "d1", SubjectID: "sci", ClassID: "d", ExamID: "mid", AcademicYearID: "y25", ExamDate: "2025-05-12", StartTime: "10:00", EndTime: "12:00"})
	svc.Add(model.PersistedSlot{ID: "x1", SubjectID: "sci", ClassID: "d", ExamID: "final", AcademicYearID: "y25", ExamDate: "2025-06-12", StartTime: "10:00", EndTime: "12:00"})
	s := newSession(t, svc)
	ready(t, s)

	blocks, err := s.Blocks(ScopeAll)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Members, 2)
	assert.Equal(t, "Class C", blocks[0].Members[0].ClassName)
	assert.Equal(t, "Science", blocks[0].Members[1].SubjectName, "subjects of other classes are fetched for names")

	classBlocks, err := s.Blocks(ScopeClass)
	require.NoError(t, err)
	require.Len(t, classBlocks, 1)
	assert.Len(t, classBlocks[0].Members, 1)

	assert.Len(t, s.Snapshot().Conflicts, 1)

	var buf bytes.Buffer
	require.NoError(t, s.RenderPrint(&buf, ScopeAll, ModeBlocks))
	assert.Contains(t, buf.String(), "Class C: Math<br>Class D: Science")
	assert.Contains(t, buf.String(), "All classes")

	buf.Reset()
	require.NoError(t, s.RenderPrint(&buf, ScopeClass, ModeRows))
	assert.Contains(t, buf.String(), "<td>Math</td>")
	assert.NotContains(t, buf.String(), "Science")

	buf.Reset()
	require.NoError(t, s.ExportPrint(&buf, ScopeAll))
	assert.NotZero(t, buf.Len())
}

func TestSession_Selection(t *testing.T) {
	svc := composertest.NewService()
	s := newSession(t, svc)
	require.NoError(t, s.LoadReference(context.Background()))

	assert.ErrorIs(t, s.SelectExam("nope"), ErrUnknownSelection)
	assert.ErrorIs(t, s.SelectAcademicYear("nope"), ErrUnknownSelection)
	assert.ErrorIs(t, s.SelectClass(context.Background(), "nope"), ErrUnknownSelection)

	_, err := s.SetField("math", draft.FieldExamDate, "2025-05-10")
	assert.ErrorIs(t, err, ErrNoClass)
	_, err = s.Table(ScopeClass)
	assert.ErrorIs(t, err, ErrNoClass)
	_, err = s.Drafts()
	assert.ErrorIs(t, err, ErrNoClass)

	require.NoError(t, s.SelectClass(context.Background(), "c"))
	_, err = s.SetField("math", draft.FieldEndTime, "12:00")
	assert.ErrorIs(t, err, draft.ErrReadOnlyField)

	st := s.Snapshot()
	assert.Equal(t, "c", st.ClassID)
	assert.Len(t, st.Subjects, 2)
	assert.Empty(t, st.Loading)
}

func TestSession_SelectIsAllOrNothing(t *testing.T) {
	svc := composertest.NewService()
	svc.Exams = append(svc.Exams, model.Exam{ID: "fin", Name: "Final"})
	s := newSession(t, svc)
	ready(t, s)
	fillMath(t, s)

	exam, class := "fin", "nope"
	err := s.Select(context.Background(), Selection{ExamID: &exam, ClassID: &class})
	assert.ErrorIs(t, err, ErrUnknownSelection)

	st := s.Snapshot()
	assert.Equal(t, "mid", st.ExamID)
	assert.Equal(t, "c", st.ClassID)
	assert.Equal(t, []string{"math"}, st.Unsaved, "drafts survive a rejected selection")

	class = "d"
	require.NoError(t, s.Select(context.Background(), Selection{ExamID: &exam, ClassID: &class}))
	st = s.Snapshot()
	assert.Equal(t, "fin", st.ExamID)
	assert.Equal(t, "d", st.ClassID)
	assert.Len(t, st.Subjects, 1)
}

func TestSession_LoadReferenceFailure(t *testing.T) {
	svc := composertest.NewService()
	svc.ErrList = errors.New("connection refused")
	s := newSession(t, svc)

	err := s.LoadReference(context.Background())
	require.Error(t, err)
	assert.False(t, s.Loading())

	notices := s.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "Could not load exams", notices[0].Message)
	assert.Contains(t, notices[0].Detail, "connection refused")
}

func TestParseScopeAndMode(t *testing.T) {
	sc, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeClass, sc)
	sc, err = ParseScope("all")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, sc)
	_, err = ParseScope("school")
	assert.ErrorIs(t, err, ErrBadScope)

	m, err := ParseMode("rows")
	require.NoError(t, err)
	assert.Equal(t, ModeRows, m)
	_, err = ParseMode("grid")
	assert.ErrorIs(t, err, ErrBadScope)
}

func TestNoticeLog_Limit(t *testing.T) {
	l := newNoticeLog(3)
	for _, m := range []string{"a", "b", "c", "d"} {
		l.add(Notice{Message: m})
	}
	got := l.list()
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Message)
	assert.Equal(t, "d", got[2].Message)
}
