package composer

import (
	"context"
	"errors"
	"fmt"

	"examdesk/internal/deletion"
	"examdesk/internal/draft"
	"examdesk/internal/model"
	"examdesk/internal/submission"
	"examdesk/internal/validate"
)

// DraftView is one row of the draft editor.
type DraftView struct {
	model.DraftSlot
	SubjectName string `json:"subject_name"`
	Unsaved     bool   `json:"unsaved"`
}

// Drafts returns the draft editor rows of the active class in subject order.
func (s *Session) Drafts() ([]DraftView, error) {
	s.mu.RLock()
	classID := s.classID
	subjects := s.subjects[classID]
	s.mu.RUnlock()
	if classID == "" {
		return nil, ErrNoClass
	}

	names := make(map[string]string, len(subjects))
	for _, subj := range subjects {
		names[subj.ID] = subj.Name
	}

	slots := s.drafts.Slots(classID)
	out := make([]DraftView, 0, len(slots))
	for _, slot := range slots {
		e, _ := s.drafts.Entry(classID, slot.SubjectID)
		name := names[slot.SubjectID]
		if name == "" {
			name = slot.SubjectID
		}
		out = append(out, DraftView{DraftSlot: slot, SubjectName: name, Unsaved: e.Touched})
	}
	return out, nil
}

// SetField edits one field of a draft slot of the active class.
func (s *Session) SetField(subjectID string, field draft.Field, value string) (model.DraftSlot, error) {
	classID := s.selection().classID
	if classID == "" {
		return model.DraftSlot{}, ErrNoClass
	}
	return s.drafts.SetField(classID, subjectID, field, value)
}

// RequestSubmission validates the active class draft and stages it for
// confirmation. A later request replaces an unconfirmed earlier one.
func (s *Session) RequestSubmission() (*submission.Pending, error) {
	if s.Loading() {
		return nil, ErrLoading
	}

	s.mu.RLock()
	exam := findExam(s.exams, s.examID)
	year := findYear(s.years, s.yearID)
	class, _ := findClass(s.classes, s.classID)
	s.mu.RUnlock()

	payload, err := validate.BuildPayload(exam, year, class, s.drafts.Draft(class.ID))
	if err != nil {
		s.notify(LevelWarning, err.Error(), "")
		return nil, err
	}

	pending, err := s.submit.Stage(payload)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("pending", pending.ID).Int("items", len(payload.Schedules)).Msg("submission staged")
	return pending, nil
}

// PendingSubmission returns the payload waiting for confirmation.
func (s *Session) PendingSubmission() (*submission.Pending, bool) {
	return s.submit.Pending()
}

// ConfirmSubmission sends the staged payload identified by id.
func (s *Session) ConfirmSubmission(ctx context.Context, id string) (submission.Result, error) {
	if s.Loading() {
		return submission.Result{}, ErrLoading
	}

	res, err := s.submit.Confirm(ctx, id)
	switch {
	case errors.Is(err, submission.ErrInFlight),
		errors.Is(err, submission.ErrNoPending),
		errors.Is(err, submission.ErrStalePending):
		s.notify(LevelWarning, err.Error(), "")
		return res, err
	case err != nil:
		return res, s.remoteFailure("Could not save the exam schedule", err)
	}

	s.notify(LevelInfo, fmt.Sprintf("Saved %d exam slots for %s", len(res.Batch.Created), res.Batch.Payload.ClassName), "")
	return res, nil
}

// DiscardSubmission drops the staged payload.
func (s *Session) DiscardSubmission(id string) error {
	return s.submit.Discard(id)
}

// Submitted returns the slots created during this session.
func (s *Session) Submitted() []model.PersistedSlot {
	return s.submit.History()
}

// DeleteSlot removes one persisted slot and reloads on success.
func (s *Session) DeleteSlot(ctx context.Context, id string) (deletion.Result, error) {
	res, err := s.del.Delete(ctx, id)
	switch {
	case errors.Is(err, deletion.ErrMissingID), errors.Is(err, deletion.ErrInFlight):
		s.notify(LevelWarning, err.Error(), "")
		return res, err
	case err != nil:
		return res, s.remoteFailure("Could not delete the exam slot", err)
	}

	s.notify(LevelInfo, "Exam slot deleted", id)
	return res, nil
}
