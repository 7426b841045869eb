package api

import (
	"encoding/json"
	"net/http"
)

// envelope is the uniform response shape across the API.
type envelope struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Message: message, Data: data})
}

// writeError renders a caller-facing failure. detail is only populated when
// the debug flag is on; stack traces and internals never leak otherwise.
func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, envelope{Message: message, Error: detail})
}
