package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront-newsletter/internal/ai"
	"storefront-newsletter/internal/campaign"
	"storefront-newsletter/internal/model"
	"storefront-newsletter/internal/newsletter"
	"storefront-newsletter/internal/storage"
	"storefront-newsletter/internal/unsubscribe"
)

// ErrorResponse is the error envelope for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// writeJSON writes data with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("api: json encode", "err", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// statusFor maps domain errors to HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidEmail), errors.Is(err, campaign.ErrMissingRequired),
		errors.Is(err, newsletter.ErrInvalidPreset):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, newsletter.ErrPresetNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, unsubscribe.ErrInvalidToken):
		return http.StatusForbidden, "invalid_token"
	case errors.Is(err, campaign.ErrConfirmationMismatch):
		return http.StatusConflict, "confirmation_mismatch"
	case errors.Is(err, campaign.ErrSendInProgress):
		return http.StatusConflict, "send_in_progress"
	case errors.Is(err, campaign.ErrTransportUnavailable):
		return http.StatusBadGateway, "transport_unavailable"
	case errors.Is(err, ai.ErrNotConfigured):
		return http.StatusNotImplemented, "not_configured"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError translates err into a JSON error. Internal errors are logged
// and replaced by a generic message.
func writeError(w http.ResponseWriter, err error, details any) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("api: internal error", "err", err)
		msg = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code, Details: details})
}

// decode reads a JSON body into dst, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation", "invalid JSON: "+err.Error())
		return false
	}
	return true
}
