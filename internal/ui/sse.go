package ui

import (
	"net/http"

	"github.com/starfederation/datastar-go/datastar"
)

// handleProgress streams report lifecycle events over SSE. Each notifier
// event patches a signal payload {reportId, status, timestamp}; the stream
// stays open until the client disconnects.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	events := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(events)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := sse.MarshalAndPatchSignals(ev); err != nil {
				s.logger.Debug("progress stream closed", "error", err)
				return
			}
		}
	}
}
