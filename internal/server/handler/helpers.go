package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mpaquette/depthmetrics/internal/blob"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pairParams normalizes the exchange (lowercase) and asset (uppercase) query
// parameters; either may come back empty.
func pairParams(r *http.Request) (exchange, asset string) {
	q := r.URL.Query()
	return strings.ToLower(q.Get("exchange")), strings.ToUpper(q.Get("asset"))
}

// dayParam validates the day query parameter against YYYY-MM-DD, returning
// "" when absent or malformed.
func dayParam(r *http.Request) string {
	day := r.URL.Query().Get("day")
	if !blob.DayRE.MatchString(day) {
		return ""
	}
	return day
}
