// Package model holds the records shared by the exam schedule composer.
package model

// DefaultDurationMinutes is the duration a new draft slot starts with.
const DefaultDurationMinutes = 120

// Exam scopes every schedule operation of a session.
type Exam struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AcademicYear scopes every schedule operation of a session.
type AcademicYear struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ClassSection is one class; schedules are composed one class at a time.
type ClassSection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Subject belongs to exactly one class section.
type Subject struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ClassID string `json:"class_id"`
}

// DraftSlot is the in-memory staging area for a persisted slot.
// Empty strings mean the field has not been filled in yet.
type DraftSlot struct {
	SubjectID       string `json:"subject_id"`
	ExamDate        string `json:"exam_date"`  // "2025-05-10"
	StartTime       string `json:"start_time"` // "09:00"
	EndTime         string `json:"end_time"`   // derived from start + duration
	DurationMinutes int    `json:"duration_minutes"`
}

// Complete reports whether date, start and end are all set.
func (d DraftSlot) Complete() bool {
	return d.ExamDate != "" && d.StartTime != "" && d.EndTime != ""
}

// NewDraftSlot returns an empty draft for a subject.
func NewDraftSlot(subjectID string) DraftSlot {
	return DraftSlot{SubjectID: subjectID, DurationMinutes: DefaultDurationMinutes}
}

// PersistedSlot is a slot confirmed by the remote data service.
type PersistedSlot struct {
	ID             string `json:"id"`
	SubjectID      string `json:"subject_id"`
	ClassID        string `json:"class_id"`
	ExamID         string `json:"exam_id"`
	AcademicYearID string `json:"academic_year_id"`
	ExamDate       string `json:"exam_date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

// ScheduleDraftItem is one entry of a batch submission.
type ScheduleDraftItem struct {
	SubjectID      string `json:"subject_id" validate:"required"`
	ExamDate       string `json:"exam_date" validate:"required,datetime=2006-01-02"`
	StartTime      string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime        string `json:"end_time" validate:"required,datetime=15:04"`
	ExamID         string `json:"exam_id" validate:"required"`
	AcademicYearID string `json:"academic_year_id" validate:"required"`
}

// Payload is the batch submitted for one class.
type Payload struct {
	ExamName  string              `json:"exam_name"`
	ClassName string              `json:"class_name"`
	ClassID   string              `json:"class_id"`
	Schedules []ScheduleDraftItem `json:"schedules"`
}

// Empty reports whether the payload carries no schedule items.
func (p Payload) Empty() bool {
	return len(p.Schedules) == 0
}

// ScheduleFilter narrows a schedule listing. Empty fields are omitted.
type ScheduleFilter struct {
	ExamID         string
	ClassID        string
	AcademicYearID string
}

// SlotRow is a persisted slot annotated for display.
type SlotRow struct {
	ID          string `json:"id"`
	ClassID     string `json:"class_id"`
	ClassName   string `json:"class_name"`
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	ExamDate    string `json:"exam_date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

// BlockMember is one (class, subject) pair inside a schedule block.
type BlockMember struct {
	ClassName   string   `json:"class_name"`
	SubjectName string   `json:"subject_name"`
	SlotIDs     []string `json:"slot_ids"`
}

// ScheduleBlock groups slots sharing an identical date, start and end.
type ScheduleBlock struct {
	ExamDate  string        `json:"exam_date"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	Members   []BlockMember `json:"members"`
}

// Concurrent reports whether more than one exam runs in the block.
func (b ScheduleBlock) Concurrent() bool {
	return len(b.Members) > 1
}
