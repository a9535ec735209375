package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mbianchi/photarc/pkg/catalog"
)

// Response is the standard API envelope. Status is "ok" or "error"; Data
// carries the payload, Error the message when Status is "error".
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// OK writes a 200 envelope around data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Response{Status: "ok", Timestamp: time.Now().UTC(), Data: data})
}

// Error writes an error envelope with the given status code.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, Response{Status: "error", Timestamp: time.Now().UTC(), Error: msg})
}

// storeError maps store lookup failures onto HTTP status codes.
func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		Error(w, http.StatusNotFound, "not found")
		return
	}
	Error(w, http.StatusInternalServerError, err.Error())
}
