package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/store"
)

// codeNotFound is sent for missing records and conversations.
const codeNotFound = "NOT_FOUND"

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to write JSON response")
	}
}

// httpError sends err as a structured error body. Only the classified
// user-facing message leaves the server; the cause is logged.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierr.As(err)
	status := statusFor(apiErr.Kind)

	evt := log.Warn()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(apiErr.Err).
		Int("status", status).
		Str("code", string(apiErr.Code)).
		Str("path", r.URL.Path).
		Msg("Request failed")

	respondJSON(w, status, medapi.ErrorBody{Code: string(apiErr.Code), Message: apiErr.Message})
}

// notFound sends a 404 with the given message.
func notFound(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusNotFound, medapi.ErrorBody{Code: codeNotFound, Message: message})
}

// storeError sends ErrNotFound as a 404 and anything else as STORAGE_ERROR.
func storeError(w http.ResponseWriter, r *http.Request, err error, notFoundMessage string) {
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, notFoundMessage)
		return
	}
	httpError(w, r, apierr.New(apierr.CodeStorage, err))
}

func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.KindValidation:
		return http.StatusBadRequest
	case apierr.KindAuthRequired:
		return http.StatusUnauthorized
	case apierr.KindUpstreamRateLimit:
		return http.StatusTooManyRequests
	case apierr.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case apierr.KindUpstreamAuth, apierr.KindNetwork:
		return http.StatusBadGateway
	case apierr.KindTimeout:
		return http.StatusGatewayTimeout
	case apierr.KindImageProcessing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) *apierr.Error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierr.Newf(apierr.CodeValidation, err, "Invalid request body.")
	}
	return nil
}
