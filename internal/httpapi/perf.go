package httpapi

import (
	"net/http"
	"strconv"

	"github.com/ent0n29/deadbot/internal/observability"
)

// handlePerfLatency serves the rolling stage window. ?reset=true clears it
// after the snapshot is taken, which load tests use between runs.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, observability.StageSnapshot{Stages: []observability.StageStats{}})
		return
	}
	snap := s.metrics.SnapshotStages()
	if reset, _ := strconv.ParseBool(r.URL.Query().Get("reset")); reset {
		s.metrics.ResetStages()
	}
	respondJSON(w, http.StatusOK, snap)
}
