package validate

import (
	"fmt"
	"testing"

	"examdesk/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	exam  = &model.Exam{ID: "e1", Name: "Final"}
	year  = &model.AcademicYear{ID: "y1", Name: "2024/2025"}
	class = model.ClassSection{ID: "c1", Name: "Grade 5A"}
)

func TestBuildPayload_OnlyCompleteSlots(t *testing.T) {
	drafts := map[string]model.DraftSlot{
		"math": {SubjectID: "math", ExamDate: "2025-05-10", StartTime: "09:00", EndTime: "11:00", DurationMinutes: 120},
		"eng":  {SubjectID: "eng", ExamDate: "2025-05-11", DurationMinutes: 120},
	}

	p, err := BuildPayload(exam, year, class, drafts)
	require.NoError(t, err)
	assert.Equal(t, "Final", p.ExamName)
	assert.Equal(t, "Grade 5A", p.ClassName)
	require.Len(t, p.Schedules, 1)
	assert.Equal(t, model.ScheduleDraftItem{
		SubjectID:      "math",
		ExamDate:       "2025-05-10",
		StartTime:      "09:00",
		EndTime:        "11:00",
		ExamID:         "e1",
		AcademicYearID: "y1",
	}, p.Schedules[0])
}

func TestBuildPayload_ExactlyOnePerCompleteSlot(t *testing.T) {
	drafts := make(map[string]model.DraftSlot)
	complete := 0
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("s%02d", i)
		d := model.DraftSlot{SubjectID: id, DurationMinutes: 60}
		if i%3 != 0 {
			d.ExamDate = "2025-06-01"
			d.StartTime = "08:00"
			d.EndTime = "09:00"
			complete++
		}
		if i%5 == 0 {
			d.EndTime = ""
			if i%3 != 0 {
				complete--
			}
		}
		drafts[id] = d
	}

	p, err := BuildPayload(exam, year, class, drafts)
	require.NoError(t, err)
	require.Len(t, p.Schedules, complete)

	seen := make(map[string]bool)
	for i, item := range p.Schedules {
		assert.False(t, seen[item.SubjectID], "duplicate %s", item.SubjectID)
		seen[item.SubjectID] = true
		assert.True(t, drafts[item.SubjectID].Complete())
		if i > 0 {
			assert.Less(t, p.Schedules[i-1].SubjectID, item.SubjectID)
		}
	}
	for id, d := range drafts {
		assert.Equal(t, d.Complete(), seen[id], id)
	}
}

func TestBuildPayload_Failures(t *testing.T) {
	complete := map[string]model.DraftSlot{
		"math": {SubjectID: "math", ExamDate: "2025-05-10", StartTime: "09:00", EndTime: "11:00"},
	}
	incomplete := map[string]model.DraftSlot{
		"math": {SubjectID: "math", StartTime: "09:00", EndTime: "11:00"},
	}

	tests := []struct {
		name   string
		exam   *model.Exam
		year   *model.AcademicYear
		class  model.ClassSection
		drafts map[string]model.DraftSlot
		kind   Kind
	}{
		{"no exam", nil, year, class, complete, KindNoExam},
		{"blank exam", &model.Exam{}, year, class, complete, KindNoExam},
		{"no year", exam, nil, class, complete, KindNoAcademicYear},
		{"no class", exam, year, model.ClassSection{}, complete, KindNoClass},
		{"nothing complete", exam, year, class, incomplete, KindNoCompleteSlots},
		{"empty drafts", exam, year, class, nil, KindNoCompleteSlots},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := BuildPayload(tt.exam, tt.year, tt.class, tt.drafts)
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), err.Error())
			assert.Empty(t, p.Schedules)
			assert.NotNil(t, p.Schedules)
		})
	}
}

func TestBuildPayload_InvalidItem(t *testing.T) {
	drafts := map[string]model.DraftSlot{
		"math": {SubjectID: "math", ExamDate: "10/05/2025", StartTime: "09:00", EndTime: "11:00"},
	}
	p, err := BuildPayload(exam, year, class, drafts)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidItem))
	assert.Empty(t, p.Schedules)

	var ve *Error
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "exam_date", ve.Fields[0].Field)
	assert.Contains(t, err.Error(), "math.exam_date")
}
