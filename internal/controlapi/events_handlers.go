package controlapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudorch/orchestrator/internal/model"
	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

type recentEventsResponse struct {
	Events []frame `json:"events"`
}

const defaultRecentLimit = 100

func (s *Server) handleEventsRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, orcherr.InvalidArgument(component, "method not allowed"))
		return
	}
	limit := defaultRecentLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			respondError(w, orcherr.InvalidArgument(component, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	events := s.bus.Recent(limit)
	out := make([]frame, 0, len(events))
	for _, ev := range events {
		out = append(out, eventToFrame(ev))
	}
	respondJSON(w, http.StatusOK, recentEventsResponse{Events: out})
}

// frame is the push channel's wire format: {type, timestamp, id?, payload?}.
// type is one of the reserved connection/heartbeat values or "event" for a
// wrapped bus event.
type frame struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	ID        string                 `json:"id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// eventToFrame wraps a bus event in the reserved "event" frame type,
// folding the bus's own event type (migration.completed, etc.) into the
// payload since frame.Type is reserved for connection/heartbeat/event.
func eventToFrame(ev model.Event) frame {
	if ev.Type == "heartbeat" {
		return frame{Type: "heartbeat", Timestamp: ev.Timestamp, ID: ev.EventID}
	}
	payload := make(map[string]interface{}, len(ev.Payload)+1)
	for k, v := range ev.Payload {
		payload[k] = v
	}
	payload["event_type"] = ev.Type
	return frame{Type: "event", Timestamp: ev.Timestamp, ID: ev.EventID, Payload: payload}
}

// handleEventsStream serves /events/stream as a long-lived NDJSON
// connection: one JSON frame per line, flushed immediately. There is no
// websocket dependency in this module, so a streamed response plus
// http.Flusher is the stdlib-only equivalent; its frame shape matches
// what a websocket transport would carry so either can be swapped in
// later without changing the payload contract.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, orcherr.Internal(component, "streaming unsupported by this response writer"))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	writeFrame := func(f frame) bool {
		if err := enc.Encode(f); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writeFrame(frame{Type: "connection", Timestamp: time.Now()}) {
		return
	}

	sub := s.bus.Subscribe(0)
	defer s.bus.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if !writeFrame(eventToFrame(ev)) {
				return
			}
		}
	}
}
