package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hookline/hookline/internal/ingest"
)

// Ingest handles POST /api/event: one JSON event object per request.
// Accepted events are appended to the log; broadcast happens via the
// watcher, never from here.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, ingest.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "too_large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_request"})
		return
	}

	if err := h.sink.Ingest(body); err != nil {
		var ierr *ingest.Error
		if !errors.As(err, &ierr) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal"})
			return
		}
		switch ierr.Kind {
		case ingest.KindTooLarge:
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": ierr.Kind})
		case ingest.KindBadJSON:
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": ierr.Kind})
		case ingest.KindInvalid:
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   ierr.Kind,
				"details": ierr.Details,
			})
		default:
			slog.Error("ingest append failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": ierr.Kind})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
