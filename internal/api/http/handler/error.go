package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dtroode/ttldump/internal/model"
)

const (
	msgKindMismatch   = "Item kind mismatch"
	msgNotHashedText  = "Item is not a hashed text item"
	msgInternal       = "Internal server error"
	msgInvalidRequest = "Invalid request body"
)

type errorResponse struct {
	Error string `json:"error"`
}

// handleError maps a service error to a status code and a stable message.
// mismatchMsg is the message reported for model.ErrKindMismatch.
func handleError(err error, mismatchMsg string) (int, string) {
	switch {
	case errors.Is(err, model.ErrMissingContent):
		return http.StatusBadRequest, "Content is required"
	case errors.Is(err, model.ErrMissingFile):
		return http.StatusBadRequest, "No file provided"
	case errors.Is(err, model.ErrMissingPassphrase):
		return http.StatusBadRequest, "Hash key is required"
	case errors.Is(err, model.ErrMissingID):
		return http.StatusBadRequest, "Item ID is required"
	case errors.Is(err, model.ErrUnknownKind):
		return http.StatusBadRequest, "Unknown item type"
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, msgInvalidRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "Item not found"
	case errors.Is(err, model.ErrKindMismatch):
		return http.StatusBadRequest, mismatchMsg
	case errors.Is(err, model.ErrExpired):
		return http.StatusBadRequest, "Item has expired"
	case errors.Is(err, model.ErrInvalidKeyOrData):
		return http.StatusBadRequest, "Invalid hash key"
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
