package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"duahabit/internal/storage"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}

// writeStoreError maps storage sentinels onto the response envelope.
// notFound and fallback carry the handler-specific wording; transient
// storage failures get a Retry-After so clients back off instead of
// hammering a struggling database.
func writeStoreError(w http.ResponseWriter, err error, notFound, fallback string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", notFound)
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", "Already exists")
	case errors.Is(err, storage.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", fallback)
	}
}
