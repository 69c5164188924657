// Package aggregate flattens per-class exam schedules into one chronological
// list and groups identically timed slots into blocks for the printed summary.
package aggregate

import (
	"fmt"
	"sort"

	"examdesk/internal/model"
	"examdesk/internal/timecalc"
)

// ByClass splits a mixed listing into per-class slices, keeping fetch order.
func ByClass(slots []model.PersistedSlot) map[string][]model.PersistedSlot {
	out := make(map[string][]model.PersistedSlot)
	for _, s := range slots {
		out[s.ClassID] = append(out[s.ClassID], s)
	}
	return out
}

// Flatten returns the slots of scopeClassID, or of every class when the scope
// is empty, annotated with class and subject names and sorted by date and
// start time. Slots with equal date and start time keep their input order.
func Flatten(byClass map[string][]model.PersistedSlot, classes []model.ClassSection, scopeClassID string, names *SubjectIndex) []model.SlotRow {
	var rows []model.SlotRow
	for _, class := range classOrder(byClass, classes) {
		if scopeClassID != "" && class.ID != scopeClassID {
			continue
		}
		for _, s := range byClass[class.ID] {
			rows = append(rows, model.SlotRow{
				ID:          s.ID,
				ClassID:     class.ID,
				ClassName:   class.Name,
				SubjectID:   s.SubjectID,
				SubjectName: names.Name(class.ID, class.Name, s.SubjectID),
				ExamDate:    s.ExamDate,
				StartTime:   s.StartTime,
				EndTime:     s.EndTime,
			})
		}
	}
	if rows == nil {
		rows = []model.SlotRow{}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return before(rows[i].ExamDate, rows[i].StartTime, rows[j].ExamDate, rows[j].StartTime)
	})
	return rows
}

// classOrder lists classes in metadata order, followed by classes that only
// appear in the schedules (labelled by ID) in ID order.
func classOrder(byClass map[string][]model.PersistedSlot, classes []model.ClassSection) []model.ClassSection {
	out := make([]model.ClassSection, 0, len(byClass))
	known := make(map[string]bool, len(classes))
	for _, c := range classes {
		if known[c.ID] {
			continue
		}
		known[c.ID] = true
		if c.Name == "" {
			c.Name = c.ID
		}
		out = append(out, c)
	}

	var unknown []string
	for id := range byClass {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		out = append(out, model.ClassSection{ID: id, Name: id})
	}
	return out
}

// BlockKey is the exact grouping key of a slot.
func BlockKey(examDate, startTime, endTime string) string {
	return fmt.Sprintf("%s_%s_%s", examDate, startTime, endTime)
}

// GroupForPrint buckets rows sharing an identical date, start and end into
// blocks. Each block holds one member per (class, subject) pair, carrying
// the IDs of every slot behind it.
func GroupForPrint(rows []model.SlotRow) []model.ScheduleBlock {
	blocks := make([]model.ScheduleBlock, 0)
	blockIdx := make(map[string]int)
	memberIdx := make(map[string]int)

	for _, r := range rows {
		key := BlockKey(r.ExamDate, r.StartTime, r.EndTime)
		bi, ok := blockIdx[key]
		if !ok {
			bi = len(blocks)
			blockIdx[key] = bi
			blocks = append(blocks, model.ScheduleBlock{
				ExamDate:  r.ExamDate,
				StartTime: r.StartTime,
				EndTime:   r.EndTime,
			})
		}

		mkey := key + "\x00" + r.ClassName + "\x00" + r.SubjectName
		mi, ok := memberIdx[mkey]
		if !ok {
			mi = len(blocks[bi].Members)
			memberIdx[mkey] = mi
			blocks[bi].Members = append(blocks[bi].Members, model.BlockMember{
				ClassName:   r.ClassName,
				SubjectName: r.SubjectName,
			})
		}
		blocks[bi].Members[mi].SlotIDs = append(blocks[bi].Members[mi].SlotIDs, r.ID)
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		return before(blocks[i].ExamDate, blocks[i].StartTime, blocks[j].ExamDate, blocks[j].StartTime)
	})
	return blocks
}

// Conflicts returns the blocks in which more than one exam runs.
func Conflicts(blocks []model.ScheduleBlock) []model.ScheduleBlock {
	var out []model.ScheduleBlock
	for _, b := range blocks {
		if b.Concurrent() {
			out = append(out, b)
		}
	}
	return out
}

func before(dateA, startA, dateB, startB string) bool {
	if dateA != dateB {
		return dateA < dateB
	}
	ma, mb := startKey(startA), startKey(startB)
	if ma != mb {
		return ma < mb
	}
	if ma == timecalc.MinutesPerDay {
		return startA < startB
	}
	return false
}

// startKey orders start times by minutes since midnight; malformed values
// share one key after every valid time.
func startKey(start string) int {
	if m, ok := timecalc.Minutes(start); ok {
		return m
	}
	return timecalc.MinutesPerDay
}
