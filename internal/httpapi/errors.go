package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"asistan/internal/orchestrator"
	"asistan/internal/residency"
	"asistan/internal/session"
	"asistan/internal/speech"
	"asistan/internal/vision"
	"asistan/pkg/types"
)

// Failure classes reported next to fallback answers.
const (
	classModelLoad      = "model_load"
	classBackendCall    = "backend_call"
	classEmptyResponse  = "empty_response"
	classEmptyPrompt    = "empty_prompt"
	classInvalidImage   = "invalid_image"
	classSpeechDisabled = "speech_disabled"
	classInternal       = "internal"
)

// errorClass names the failure behind a Result. Empty means success.
func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case residency.IsModelLoad(err):
		return classModelLoad
	case orchestrator.IsEmptyResponse(err):
		return classEmptyResponse
	case orchestrator.IsBackendCall(err):
		return classBackendCall
	case errors.Is(err, orchestrator.ErrEmptyPrompt):
		return classEmptyPrompt
	case errors.Is(err, orchestrator.ErrSpeechDisabled):
		return classSpeechDisabled
	case vision.IsInvalidImage(err):
		return classInvalidImage
	}
	return classInternal
}

// statusFor maps a failure to an HTTP status. Model failures still answer
// 200 because the body carries a user-safe fallback text.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, speech.ErrBadWAV), vision.IsInvalidImage(err), errors.Is(err, orchestrator.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrSpeechDisabled):
		return http.StatusNotImplemented
	case residency.IsModelLoad(err), orchestrator.IsBackendCall(err), orchestrator.IsEmptyResponse(err):
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}
