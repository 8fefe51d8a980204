package api

import (
	"encoding/json"
	"errors"
	"net/http"

	backlogerrors "github.com/mesh-intelligence/backlog/internal/errors"
)

// APIError is the standard error response format.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSONResponse writes a successful JSON response.
func JSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// JSONResponseStatus writes a JSON response with a specific status code.
func JSONResponseStatus(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JSONError writes a simple error response.
func JSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{Error: message})
}

// HandleError writes a structured error with its category's status.
// Unstructured errors become 500s.
func HandleError(w http.ResponseWriter, err error) {
	var be *backlogerrors.Error
	if errors.As(err, &be) {
		JSONResponseStatus(w, APIError{Error: be.Error(), Code: string(be.Code)}, be.HTTPStatus())
		return
	}
	JSONError(w, err.Error(), http.StatusInternalServerError)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return backlogerrors.ErrInvalidRequest("invalid request body", err)
	}
	return nil
}
