package api

import (
	"errors"
	"net/http"

	"examdesk/internal/composer"
	"examdesk/internal/dataapi"
	"examdesk/internal/deletion"
	"examdesk/internal/draft"
	"examdesk/internal/submission"
	"examdesk/internal/validate"
)

type errorResponse struct {
	Error  string                `json:"error"`
	Kind   validate.Kind         `json:"kind,omitempty"`
	Fields []validate.FieldError `json:"fields,omitempty"`
}

// statusFor maps domain errors onto HTTP statuses. Errors that match nothing
// are treated as failed calls to the data service.
func statusFor(err error) int {
	var se *dataapi.StatusError
	switch {
	case errors.As(err, new(*validate.Error)),
		errors.Is(err, draft.ErrInvalidValue),
		errors.Is(err, draft.ErrReadOnlyField),
		errors.Is(err, draft.ErrUnknownField),
		errors.Is(err, submission.ErrEmptyPayload),
		errors.Is(err, composer.ErrNoClass):
		return http.StatusUnprocessableEntity
	case errors.Is(err, composer.ErrLoading),
		errors.Is(err, submission.ErrInFlight),
		errors.Is(err, submission.ErrStalePending),
		errors.Is(err, deletion.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, draft.ErrUnknownSlot),
		errors.Is(err, submission.ErrNoPending):
		return http.StatusNotFound
	case errors.Is(err, composer.ErrUnknownSelection),
		errors.Is(err, deletion.ErrMissingID):
		return http.StatusBadRequest
	case errors.As(err, &se):
		if se.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	return http.StatusBadGateway
}

func (s *HTTPServer) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	var ve *validate.Error
	if errors.As(err, &ve) {
		resp.Kind = ve.Kind
		resp.Fields = ve.Fields
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, resp)
}
