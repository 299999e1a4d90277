package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// heartbeatEvery keeps idle event streams open through proxies.
var heartbeatEvery = 15 * time.Second

// EventsHandler streams improvements of one problem as server-sent events.
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\ndata: {\"problemId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	// current best first, so late subscribers start from a known score
	if rec, err := s.Store.GetBest(r.Context(), id); err == nil {
		b, _ := json.Marshal(map[string]any{"problemId": id, "score": rec.Score, "updatedAt": rec.UpdatedAt})
		fmt.Fprintf(w, "event: solution.current\ndata: %s\n\n", b)
	}
	heartbeat()

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, b)
			flusher.Flush()
		case <-ticker.C:
			heartbeat()
		}
	}
}
