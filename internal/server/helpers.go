package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// splitJobPath splits /api/v1/jobs/<id>[/<sub>] into id and sub.
func splitJobPath(path string) (id, sub string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, "/api/v1/jobs/"), "/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		sub = parts[1]
	}
	return parts[0], sub, true
}
