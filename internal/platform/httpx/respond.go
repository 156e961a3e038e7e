// Package httpx provides the JSON response envelope shared by every endpoint.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform response shape: data is always an object or array,
// never null.
type Envelope struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// Success sends a success envelope with the given status code.
func Success(w http.ResponseWriter, status int, data any, message string) {
	writeEnvelope(w, status, Envelope{
		Success: true,
		Code:    status,
		Data:    orEmpty(data),
		Message: message,
	})
}

// Error sends a failure envelope with the given status code.
func Error(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, Envelope{
		Success: false,
		Code:    status,
		Data:    struct{}{},
		Message: message,
	})
}

// ValidationFailed sends a 422 envelope carrying field level errors.
func ValidationFailed(w http.ResponseWriter, fieldErrors map[string][]string) {
	writeEnvelope(w, http.StatusUnprocessableEntity, Envelope{
		Success: false,
		Code:    http.StatusUnprocessableEntity,
		Data:    orEmpty(fieldErrors),
		Message: "Validation failed",
	})
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func orEmpty(data any) any {
	if data == nil {
		return struct{}{}
	}
	return data
}
