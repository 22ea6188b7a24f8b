package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hookline/hookline/internal/eventlog"
	"github.com/hookline/hookline/internal/fanout"
	"github.com/hookline/hookline/internal/ingest"
	"github.com/hookline/hookline/internal/watch"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	log     *eventlog.Log
	sink    *ingest.Sink
	queue   *fanout.Queue
	watcher *watch.Watcher
}

// New creates a new Handler.
func New(log *eventlog.Log, queue *fanout.Queue, watcher *watch.Watcher) *Handler {
	return &Handler{
		log:     log,
		sink:    ingest.NewSink(log),
		queue:   queue,
		watcher: watcher,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
