package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SlNPacifist/icfpc2023/internal/score"
	"github.com/SlNPacifist/icfpc2023/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Set for constraint violations.
	Violation string `json:"violation,omitempty"`
	Musician  *int   `json:"musician,omitempty"`
	Other     *int   `json:"other,omitempty"`
}

// maxBodyBytes bounds request bodies; the largest solutions are a few MB.
const maxBodyBytes = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps err onto a problem response: 404 for missing records,
// 422 for constraint violations, 500 otherwise.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if cv, ok := score.AsViolation(err); ok {
		p := Problem{
			Type:      "about:blank",
			Title:     "Constraint violation",
			Status:    http.StatusUnprocessableEntity,
			Detail:    cv.Error(),
			Instance:  r.URL.Path,
			Violation: cv.Kind.String(),
		}
		if cv.Musician >= 0 {
			p.Musician = &cv.Musician
		}
		if cv.Kind == score.Overlap {
			p.Other = &cv.Other
		}
		writeJSON(w, p.Status, p)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error(), r.URL.Path)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}
