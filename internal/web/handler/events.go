package handler

import (
	"net/http"
	"strconv"

	"github.com/hookline/hookline/internal/event"
	"github.com/hookline/hookline/internal/eventlog"
)

// Events handles GET /api/events?tail=N | before_ts=T [&limit=L].
// Results carry the same byte-offset canonical IDs the live watcher mints,
// and are always in chronological (oldest first) order.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := eventlog.DefaultReadLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
			return
		}
		limit = n
	}

	var (
		events     []event.Event
		nextBefore *float64
		err        error
	)
	switch {
	case q.Get("before_ts") != "":
		ts, perr := strconv.ParseFloat(q.Get("before_ts"), 64)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid before_ts"})
			return
		}
		events, nextBefore, err = h.log.Before(ts, limit)
	case q.Get("tail") != "":
		n, perr := strconv.Atoi(q.Get("tail"))
		if perr != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid tail"})
			return
		}
		events, err = h.log.Tail(min(n, limit))
	default:
		events, err = h.log.Tail(limit)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "io"})
		return
	}

	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":      events,
		"next_before": nextBefore,
	})
}
