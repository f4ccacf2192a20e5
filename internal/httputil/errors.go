package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string       `json:"message"`
	Type      string       `json:"type"`
	Code      string       `json:"code"`
	RequestID string       `json:"request_id,omitempty"`
	Details   []FieldError `json:"details,omitempty"`
}

// FieldError names one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	writeError(w, requestID, statusCode, APIErrorBody{
		Message: message,
		Type:    errType,
		Code:    code,
	})
}

func writeError(w http.ResponseWriter, requestID string, statusCode int, body APIErrorBody) {
	body.RequestID = requestID
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{Error: body})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

// WriteValidationError reports a well-formed body whose fields are invalid.
func WriteValidationError(w http.ResponseWriter, requestID, message string, details []FieldError) {
	writeError(w, requestID, http.StatusUnprocessableEntity, APIErrorBody{
		Message: message,
		Type:    "invalid_request_error",
		Code:    "validation_failed",
		Details: details,
	})
}

func WriteTooLargeError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusRequestEntityTooLarge, "invalid_request_error", "body_too_large", message)
}

func WriteProviderError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "provider_error", "provider_call_failed", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}
