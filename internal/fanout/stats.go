package fanout

import "time"

// Stats is a read-only snapshot of fan-out counters. It never participates
// in correctness and may lag in-flight work.
type Stats struct {
	Clients          int   `json:"clients"`
	QueueDepth       int   `json:"queue_depth"`
	BatchesDelivered int64 `json:"batches_delivered"`
	EventsDelivered  int64 `json:"events_delivered"`
	DroppedTotal     int64 `json:"dropped_total"`
	DroppedLast60s   int   `json:"dropped_last_60s"`
}

// Snapshot returns current fan-out counters.
func (q *Queue) Snapshot() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	q.trimDrops(now)

	return Stats{
		Clients:          len(q.sessions),
		QueueDepth:       len(q.pending),
		BatchesDelivered: q.batchesDelivered,
		EventsDelivered:  q.eventsDelivered,
		DroppedTotal:     q.droppedTotal,
		DroppedLast60s:   len(q.droppedAt),
	}
}
