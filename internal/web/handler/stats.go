package handler

import (
	"net/http"

	"github.com/hookline/hookline/internal/eventlog"
	"github.com/hookline/hookline/internal/fanout"
	"github.com/hookline/hookline/internal/watch"
)

// statsResponse is the read-only health snapshot. The probe never
// participates in correctness and tolerates transient inconsistency
// between its two owners.
type statsResponse struct {
	fanout.Stats
	Watcher watch.Stats   `json:"watcher"`
	Log     eventlog.Info `json:"log"`
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	info, err := h.log.Stat()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "io"})
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Stats:   h.queue.Snapshot(),
		Watcher: h.watcher.Snapshot(),
		Log:     info,
	})
}
