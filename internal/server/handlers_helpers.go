package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// maxBodySize caps PATCH request bodies.
const maxBodySize = 64 * 1024

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: failed to encode response: %v", err)
	}
}

// writeErrorCode writes a wire.ErrorResponse.
func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, wire.ErrorResponse{Code: code, Message: message})
}

// writeError maps a coded error to its HTTP status and writes it.
func writeError(w http.ResponseWriter, err error) {
	code, message := apperrors.ToCodeAndMessage(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		log.Printf("server: request failed: %v", err)
		message = "internal error"
	}
	writeErrorCode(w, status, code, message)
}

// statusForCode returns the HTTP status for an error code.
func statusForCode(code string) int {
	switch code {
	case apperrors.CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case apperrors.CodeConflictDetected:
		return http.StatusConflict
	case apperrors.CodeServerInvalidMessage:
		return http.StatusBadRequest
	case apperrors.CodeStorageNotFound:
		return http.StatusNotFound
	case apperrors.CodeAuthRequired, apperrors.CodeAuthInvalid:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v. Malformed bodies are
// server.invalid_message errors.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.InvalidMessage("request body too large")
		}
		return apperrors.InvalidMessage("malformed JSON body: " + err.Error())
	}
	return nil
}
