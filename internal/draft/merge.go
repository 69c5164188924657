package draft

import (
	"examdesk/internal/model"
	"examdesk/internal/timecalc"
)

// Snapshot is the persisted (date, start, end) triple last overlaid onto a draft.
type Snapshot struct {
	ExamDate  string
	StartTime string
	EndTime   string
}

// Entry is one draft slot together with its edit bookkeeping.
type Entry struct {
	Slot    model.DraftSlot
	Touched bool      // edited and not yet submitted or discarded
	Seen    *Snapshot // nil until a persisted slot has been overlaid
}

func snapshotOf(p *model.PersistedSlot) Snapshot {
	return Snapshot{ExamDate: p.ExamDate, StartTime: p.StartTime, EndTime: p.EndTime}
}

// Merge reconciles an existing draft entry with a freshly fetched persisted
// slot. A touched entry always keeps the user's values; only Release or
// Reset makes it take server data again.
func Merge(existing Entry, incoming *model.PersistedSlot) Entry {
	if existing.Touched {
		return existing
	}

	if incoming == nil {
		if existing.Seen == nil {
			return existing
		}
		out := existing
		out.Slot = model.DraftSlot{
			SubjectID:       existing.Slot.SubjectID,
			DurationMinutes: existing.Slot.DurationMinutes,
		}
		out.Seen = nil
		return out
	}

	snap := snapshotOf(incoming)
	if existing.Seen != nil && *existing.Seen == snap {
		return existing
	}

	out := existing
	out.Slot.ExamDate = incoming.ExamDate
	out.Slot.StartTime = incoming.StartTime
	out.Slot.EndTime = incoming.EndTime
	if d, ok := timecalc.DurationBetween(incoming.StartTime, incoming.EndTime); ok {
		out.Slot.DurationMinutes = d
	}
	out.Seen = &snap
	return out
}
