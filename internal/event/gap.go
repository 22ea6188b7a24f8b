package event

import "time"

// GapTypeDropped marks a backpressure drop episode.
const GapTypeDropped = "dropped"

// ResetReason is the Reason carried by the marker synthesized when the
// append log is truncated or replaced under the watcher.
const ResetReason = "File truncated or rotated"

// NewGapMarker synthesizes the event delivered in place of a run of dropped
// events. triggerID is the canonical ID of the newest dropped event; the
// marker's own ID derives from it so markers stay unique and sortable.
func NewGapMarker(triggerID string, dropped int, fromEventID string, toOffset int64, now time.Time) Event {
	if fromEventID == "" {
		fromEventID = "unknown"
	}
	return Event{
		V:            1,
		TS:           secs(now),
		Type:         TypeUnknown,
		SessionID:    "system",
		ID:           GapID(triggerID),
		GapType:      GapTypeDropped,
		DroppedCount: dropped,
		FromEventID:  fromEventID,
		ToOffset:     toOffset,
		Reason:       "Events dropped under backpressure",
	}
}

// NewResetMarker synthesizes the event that makes a log truncation or
// rotation visible to subscribers.
func NewResetMarker(now time.Time) Event {
	return Event{
		V:         1,
		TS:        secs(now),
		Type:      TypeUnknown,
		SessionID: "system",
		Reason:    ResetReason,
	}
}

func secs(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
