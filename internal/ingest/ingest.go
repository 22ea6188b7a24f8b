// Package ingest is the validate-and-append entry point for producer
// events. It never broadcasts: the watcher observes the append through the
// filesystem and is the single minting authority for canonical IDs, so
// every delivered event carries a byte-derived ID no matter which process
// appended the line.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hookline/hookline/internal/event"
	"github.com/hookline/hookline/internal/eventlog"
)

// MaxBodySize caps a single ingested event document.
const MaxBodySize = 1 << 20

// Kind classifies ingest failures for the transport layer.
type Kind string

const (
	KindTooLarge Kind = "too_large"
	KindBadJSON  Kind = "bad_json"
	KindInvalid  Kind = "invalid_event"
	KindIO       Kind = "io"
)

// Error is an ingest failure with a machine-readable kind. Details is
// populated for validation failures only.
type Error struct {
	Kind    Kind
	Details []event.FieldError
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ingest %s: %v", e.Kind, e.cause)
	}
	if len(e.Details) > 0 {
		return fmt.Sprintf("ingest %s: %v", e.Kind, e.Details[0])
	}
	return "ingest " + string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// Sink validates raw producer events and appends them to the log.
type Sink struct {
	log *eventlog.Log
}

// NewSink creates a Sink appending to the given log.
func NewSink(log *eventlog.Log) *Sink {
	return &Sink{log: log}
}

// Ingest parses, validates, and appends one raw JSON event. Any ID a
// producer smuggled in is discarded before the append; IDs come from byte
// offsets, never from producers.
func (s *Sink) Ingest(raw []byte) error {
	if len(raw) > MaxBodySize {
		return &Error{Kind: KindTooLarge}
	}

	var e event.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return &Error{Kind: KindBadJSON, cause: err}
	}
	e.ID = ""

	if errs := event.Validate(e, time.Now()); len(errs) > 0 {
		return &Error{Kind: KindInvalid, Details: errs}
	}

	if err := s.log.Append(e); err != nil {
		return &Error{Kind: KindIO, cause: err}
	}
	return nil
}
