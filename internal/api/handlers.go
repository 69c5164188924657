package api

import (
	"bytes"
	"net/http"
	"strconv"

	"examdesk/internal/composer"
	"examdesk/internal/draft"
	"examdesk/internal/journal"
	"examdesk/internal/metrics"
	"examdesk/internal/model"
	"examdesk/internal/submission"
)

// SelectionRequest is the body of PUT /api/session/selection. Omitted fields
// keep the current selection; empty strings clear it.
type SelectionRequest struct {
	ExamID         *string `json:"exam_id,omitempty"`
	AcademicYearID *string `json:"academic_year_id,omitempty"`
	ClassID        *string `json:"class_id,omitempty"`
}

// FieldRequest is the body of PATCH /api/drafts/{subjectID}.
type FieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ConfirmResponse is returned by POST /api/submissions/{id}/confirm.
type ConfirmResponse struct {
	BatchID     string                `json:"batch_id"`
	Created     []model.PersistedSlot `json:"created"`
	ReloadError string                `json:"reload_error,omitempty"`
}

// DeleteResponse is returned by DELETE /api/schedules/{id}.
type DeleteResponse struct {
	SlotID      string `json:"slot_id"`
	ReloadError string `json:"reload_error,omitempty"`
}

// HistoryResponse is returned by GET /api/history.
type HistoryResponse struct {
	Submitted []model.PersistedSlot `json:"submitted"`
	Journal   []journal.Entry       `json:"journal,omitempty"`
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, _ *http.Request) {
	metrics.IncHTTP("session")
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleSelection applies exam, year and class changes, then reloads.
// PUT /api/session/selection
func (s *HTTPServer) handleSelection(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("selection")

	var req SelectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.session.Select(r.Context(), composer.Selection{
		ExamID:         req.ExamID,
		AcademicYearID: req.AcademicYearID,
		ClassID:        req.ClassID,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleReload refetches reference data and schedules.
// POST /api/session/reload
func (s *HTTPServer) handleReload(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reload")
	if err := s.session.LoadReference(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := s.session.Reload(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *HTTPServer) handleDrafts(w http.ResponseWriter, _ *http.Request) {
	metrics.IncHTTP("drafts")
	drafts, err := s.session.Drafts()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drafts)
}

// handleDraftField edits one field of a draft slot.
// PATCH /api/drafts/{subjectID}
func (s *HTTPServer) handleDraftField(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("draft_field")

	var req FieldRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	slot, err := s.session.SetField(r.PathValue("subjectID"), draft.Field(req.Field), req.Value)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// handleRequestSubmission validates the draft and stages it for confirmation.
// POST /api/submissions
func (s *HTTPServer) handleRequestSubmission(w http.ResponseWriter, _ *http.Request) {
	metrics.IncHTTP("request_submission")
	pending, err := s.session.RequestSubmission()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pending)
}

// handleConfirmSubmission sends the staged batch.
// POST /api/submissions/{id}/confirm
func (s *HTTPServer) handleConfirmSubmission(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("confirm_submission")
	res, err := s.session.ConfirmSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse(res))
}

func confirmResponse(res submission.Result) ConfirmResponse {
	out := ConfirmResponse{BatchID: res.Batch.ID, Created: res.Batch.Created}
	if out.Created == nil {
		out.Created = []model.PersistedSlot{}
	}
	if res.ReloadErr != nil {
		out.ReloadError = res.ReloadErr.Error()
	}
	return out
}

// DELETE /api/submissions/{id}
func (s *HTTPServer) handleDiscardSubmission(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("discard_submission")
	if err := s.session.DiscardSubmission(r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/schedules/{id}
func (s *HTTPServer) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_schedule")
	res, err := s.session.DeleteSlot(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := DeleteResponse{SlotID: res.Record.SlotID}
	if res.ReloadErr != nil {
		resp.ReloadError = res.ReloadErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/schedules?scope=class|all
func (s *HTTPServer) handleSchedules(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedules")
	scope, err := composer.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	rows, err := s.session.Table(scope)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GET /api/schedules/blocks?scope=class|all
func (s *HTTPServer) handleBlocks(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule_blocks")
	scope, err := composer.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	blocks, err := s.session.Blocks(scope)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

// handlePrint renders the printable document. The document is buffered so a
// failure still produces a JSON error.
// GET /print/schedule?scope=&mode=blocks|rows
func (s *HTTPServer) handlePrint(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("print")
	q := r.URL.Query()
	scope, err := composer.ParseScope(q.Get("scope"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	mode, err := composer.ParseMode(q.Get("mode"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	var buf bytes.Buffer
	if err := s.session.RenderPrint(&buf, scope, mode); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// GET /export/schedule.xlsx?scope=
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	scope, err := composer.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	var buf bytes.Buffer
	if err := s.session.ExportPrint(&buf, scope); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="exam-schedule.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleNotices(w http.ResponseWriter, _ *http.Request) {
	metrics.IncHTTP("notices")
	writeJSON(w, http.StatusOK, s.session.Notices())
}

// GET /api/history?limit=
func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("history")
	resp := HistoryResponse{Submitted: s.session.Submitted()}

	if s.history != nil {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := s.history.Recent(r.Context(), limit)
		if err != nil {
			s.logger.Error().Err(err).Msg("journal query failed")
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		resp.Journal = entries
	}
	writeJSON(w, http.StatusOK, resp)
}
