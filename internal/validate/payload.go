// Package validate turns a class's draft slots into a batch submission payload.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"examdesk/internal/model"
)

// Kind classifies why a payload could not be built.
type Kind string

const (
	KindNoExam          Kind = "no_exam"
	KindNoAcademicYear  Kind = "no_academic_year"
	KindNoClass         Kind = "no_class"
	KindNoCompleteSlots Kind = "no_complete_slots"
	KindInvalidItem     Kind = "invalid_item"
)

var kindMessages = map[Kind]string{
	KindNoExam:          "select an exam first",
	KindNoAcademicYear:  "select an academic year first",
	KindNoClass:         "select a class first",
	KindNoCompleteSlots: "fill in date and start time for at least one subject",
	KindInvalidItem:     "some schedule entries are invalid",
}

// FieldError points at one invalid field of one subject's entry.
type FieldError struct {
	SubjectID string `json:"subject_id"`
	Field     string `json:"field"`
	Tag       string `json:"tag"`
}

// Error is returned when a payload cannot be submitted.
type Error struct {
	Kind   Kind
	Fields []FieldError
}

func (e *Error) Error() string {
	msg, ok := kindMessages[e.Kind]
	if !ok {
		msg = string(e.Kind)
	}
	if len(e.Fields) == 0 {
		return msg
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s.%s (%s)", f.SubjectID, f.Field, f.Tag))
	}
	return msg + ": " + strings.Join(parts, ", ")
}

// IsKind reports whether err is a validation error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Kind == kind
}

var checker = newChecker()

func newChecker() *validator.Validate {
	v := validator.New()
	// Use JSON tag names in field errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// BuildPayload collects every complete draft slot of the class into a payload.
// On failure the returned payload has no schedules and err is an *Error.
func BuildPayload(exam *model.Exam, year *model.AcademicYear, class model.ClassSection, drafts map[string]model.DraftSlot) (model.Payload, error) {
	payload := model.Payload{ClassName: class.Name, ClassID: class.ID, Schedules: []model.ScheduleDraftItem{}}
	if exam != nil {
		payload.ExamName = exam.Name
	}

	switch {
	case exam == nil || exam.ID == "":
		return payload, &Error{Kind: KindNoExam}
	case year == nil || year.ID == "":
		return payload, &Error{Kind: KindNoAcademicYear}
	case class.ID == "":
		return payload, &Error{Kind: KindNoClass}
	}

	subjectIDs := make([]string, 0, len(drafts))
	for id := range drafts {
		subjectIDs = append(subjectIDs, id)
	}
	sort.Strings(subjectIDs)

	items := make([]model.ScheduleDraftItem, 0, len(subjectIDs))
	var invalid []FieldError
	for _, id := range subjectIDs {
		d := drafts[id]
		if !d.Complete() {
			continue
		}
		subjectID := d.SubjectID
		if subjectID == "" {
			subjectID = id
		}
		item := model.ScheduleDraftItem{
			SubjectID:      subjectID,
			ExamDate:       d.ExamDate,
			StartTime:      d.StartTime,
			EndTime:        d.EndTime,
			ExamID:         exam.ID,
			AcademicYearID: year.ID,
		}
		if err := checker.Struct(item); err != nil {
			invalid = append(invalid, fieldErrors(subjectID, err)...)
			continue
		}
		items = append(items, item)
	}

	if len(invalid) > 0 {
		return payload, &Error{Kind: KindInvalidItem, Fields: invalid}
	}
	if len(items) == 0 {
		return payload, &Error{Kind: KindNoCompleteSlots}
	}

	payload.Schedules = items
	return payload, nil
}

func fieldErrors(subjectID string, err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{SubjectID: subjectID, Tag: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{SubjectID: subjectID, Field: fe.Field(), Tag: fe.Tag()})
	}
	return out
}
