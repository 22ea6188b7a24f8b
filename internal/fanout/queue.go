// Package fanout delivers watcher-emitted events to every connected client
// as ordered batches, with bounded latency and explicit, visible loss.
package fanout

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hookline/hookline/internal/event"
)

// Fixed delivery parameters.
const (
	// BatchWindow bounds end-to-end latency: an admission into a non-empty
	// queue with no timer pending starts this timer, and everything that
	// arrives before it fires rides the same batch. An admission into an
	// empty queue flushes immediately instead.
	BatchWindow = 50 * time.Millisecond

	// MaxBatch is the batch-size ceiling; reaching it flushes immediately.
	MaxBatch = 100

	// SoftCap bounds the pending queue. Overflow drops the oldest events
	// and surfaces the loss as a single gap marker per episode.
	SoftCap = 1000

	// RecentWindow is the span of the ID-based duplicate filter. Outside
	// the window an ID may legitimately recur (offset re-use after
	// rotation), so entries expire rather than accumulate.
	RecentWindow = 5000 * time.Millisecond

	// dropTrimInterval is how often the sliding drop-timestamp list is
	// trimmed back to the last minute.
	dropTrimInterval = 10 * time.Second
)

// EnvelopeBatch is the type tag on batch envelopes sent to clients.
const EnvelopeBatch = "batch"

// Envelope is the wire form delivered to clients.
type Envelope struct {
	Type   string        `json:"type"`
	Events []event.Event `json:"events"`
}

// Queue is the per-process fan-out stage. Queue state is mutated only
// under the mutex; the flushing flag keeps at most one flush in progress,
// and that flush sends to clients outside the lock so admission never
// blocks on a slow socket. Within a flush, clients are walked sequentially,
// so sends to one client are strictly ordered.
type Queue struct {
	mu sync.Mutex

	pending  []event.Event
	recent   map[string]time.Time
	sessions map[string]*Session

	// lastDeliveredID is the watermark used as from_event_id on gap
	// markers; "" until the first flush.
	lastDeliveredID string

	timer        *time.Timer
	timerPending bool
	flushing     bool
	closed       bool

	batchesDelivered int64
	eventsDelivered  int64
	droppedTotal     int64
	droppedAt        []time.Time
	lastDropTrim     time.Time
	lastRecentTrim   time.Time
}

// NewQueue creates an empty fan-out queue.
func NewQueue() *Queue {
	return &Queue{
		recent:   make(map[string]time.Time),
		sessions: make(map[string]*Session),
	}
}

// Subscribe registers a client session. Multiple concurrent sessions are
// expected and permitted.
func (q *Queue) Subscribe(s *Session) {
	q.mu.Lock()
	q.sessions[s.ID] = s
	n := len(q.sessions)
	q.mu.Unlock()
	if n > 1 {
		slog.Warn("multiple concurrent stream clients", "count", n)
	}
	slog.Debug("client subscribed", "session", s.ID, "total", n)
}

// Unsubscribe removes a client session and its per-client state.
func (q *Queue) Unsubscribe(id string) {
	q.mu.Lock()
	delete(q.sessions, id)
	n := len(q.sessions)
	q.mu.Unlock()
	slog.Debug("client unsubscribed", "session", id, "total", n)
}

// Enqueue admits one event. Events are delivered to every client in
// admission order; this is where the total order is established.
func (q *Queue) Enqueue(e event.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	now := time.Now()
	if q.isRecentDuplicate(e, now) {
		slog.Warn("dropping duplicate event id within recent window", "id", e.ID)
		return
	}

	wasEmpty := len(q.pending) == 0
	q.pending = append(q.pending, e)
	q.applyBackpressure(now)

	switch {
	case len(q.pending) >= MaxBatch:
		q.stopTimer()
		go q.flush()
	case wasEmpty:
		// Leading edge: the first event of an empty queue goes out on the
		// next scheduler turn, not after a full window.
		go q.flush()
	case !q.timerPending:
		q.timerPending = true
		q.timer = time.AfterFunc(BatchWindow, q.flush)
	}
}

// isRecentDuplicate applies the ID-recent-window filter and records the
// event's admission time. Caller holds the mutex.
func (q *Queue) isRecentDuplicate(e event.Event, now time.Time) bool {
	if e.ID == "" {
		return false
	}
	if at, ok := q.recent[e.ID]; ok && now.Sub(at) < RecentWindow {
		return true
	}
	q.recent[e.ID] = now

	if now.Sub(q.lastRecentTrim) >= RecentWindow {
		q.lastRecentTrim = now
		for id, at := range q.recent {
			if now.Sub(at) >= RecentWindow {
				delete(q.recent, id)
			}
		}
	}
	return false
}

// applyBackpressure drops the oldest overflow events once the queue passes
// the soft cap and folds the loss into one gap marker per episode. The
// marker sits at the head of the queue, so it rides the very next batch;
// until that batch goes out, further overflow merges into the same marker.
// Caller holds the mutex.
func (q *Queue) applyBackpressure(now time.Time) {
	if len(q.pending) <= SoftCap {
		return
	}

	// An undelivered marker at the head does not count against the cap.
	head := 0
	var marker *event.Event
	if q.pending[0].GapType == event.GapTypeDropped {
		marker = &q.pending[0]
		head = 1
	}

	overflow := len(q.pending) - head - SoftCap
	if overflow <= 0 {
		return
	}

	dropped := q.pending[head : head+overflow]
	newest := dropped[len(dropped)-1]
	toOffset, _ := event.OffsetOf(newest.ID)

	if marker != nil {
		marker.DroppedCount += overflow
		marker.ToOffset = toOffset
		q.pending = append(q.pending[:head], q.pending[head+overflow:]...)
	} else {
		m := event.NewGapMarker(newest.ID, overflow, q.lastDeliveredID, toOffset, now)
		rest := q.pending[overflow:]
		q.pending = append([]event.Event{m}, rest...)
	}

	q.droppedTotal += int64(overflow)
	for range overflow {
		q.droppedAt = append(q.droppedAt, now)
	}
	if now.Sub(q.lastDropTrim) >= dropTrimInterval {
		q.lastDropTrim = now
		q.trimDrops(now)
	}

	slog.Warn("queue over soft cap, dropped oldest events",
		"dropped", overflow, "to_offset", toOffset)
}

func (q *Queue) trimDrops(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(q.droppedAt) && q.droppedAt[i].Before(cutoff) {
		i++
	}
	q.droppedAt = q.droppedAt[i:]
}

// Caller holds the mutex.
func (q *Queue) stopTimer() {
	if q.timerPending {
		q.timer.Stop()
		q.timerPending = false
	}
}

// flush sends up to MaxBatch pending events to every session. At most one
// flush runs at a time; a flush attempt while one is in progress is a
// no-op, and the in-progress flush reschedules on completion if events
// remain, so no admission is ever stranded.
func (q *Queue) flush() {
	q.mu.Lock()
	q.stopTimer()
	if q.closed || q.flushing || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	q.flushing = true

	n := min(len(q.pending), MaxBatch)
	batch := q.pending[:n:n]
	q.pending = q.pending[n:]

	sessions := make([]*Session, 0, len(q.sessions))
	for _, s := range q.sessions {
		sessions = append(sessions, s)
	}
	q.mu.Unlock()

	assertBatchOrdered(batch)

	var failed []string
	data, err := json.Marshal(Envelope{Type: EnvelopeBatch, Events: batch})
	if err != nil {
		slog.Error("marshal batch envelope", "err", err)
	} else {
		for _, s := range sessions {
			// Only the single in-flight flush touches per-client state.
			q.checkCrossBatchOrder(s, batch)
			if err := s.send(data); err != nil {
				slog.Warn("client send failed, evicting", "session", s.ID, "err", err)
				failed = append(failed, s.ID)
				continue
			}
			if last := lastOrderedID(batch); last != "" {
				s.lastBatchLastID = last
			}
		}
	}

	q.mu.Lock()
	for _, id := range failed {
		delete(q.sessions, id)
	}
	q.lastDeliveredID = batch[len(batch)-1].ID
	q.batchesDelivered++
	q.eventsDelivered += int64(n)
	q.flushing = false

	switch {
	case len(q.pending) >= MaxBatch:
		go q.flush()
	case len(q.pending) > 0 && !q.timerPending:
		q.timerPending = true
		q.timer = time.AfterFunc(BatchWindow, q.flush)
	}
	q.mu.Unlock()
}

// assertBatchOrdered checks that canonical offsets are strictly increasing
// within a batch. Gap and reset markers are exempt; they bracket loss
// rather than extend the ordered stream.
func assertBatchOrdered(batch []event.Event) {
	prev := int64(-1)
	for _, e := range batch {
		if e.ID == "" || event.IsGapID(e.ID) {
			continue
		}
		off, ok := event.OffsetOf(e.ID)
		if !ok {
			continue
		}
		if off <= prev {
			slog.Error("batch ordering violated", "offset", off, "prev", prev)
		}
		prev = off
	}
}

// checkCrossBatchOrder verifies that the first ordered event of the new
// batch sorts after the last one the client saw. A gap marker may bracket
// missing IDs, so markers are skipped on both sides.
func (q *Queue) checkCrossBatchOrder(s *Session, batch []event.Event) {
	if s.lastBatchLastID == "" {
		return
	}
	first := firstOrderedID(batch)
	if first == "" {
		return
	}
	if event.CompareIDs(first, s.lastBatchLastID) <= 0 {
		slog.Error("cross-batch ordering violated",
			"session", s.ID, "first", first, "prev_last", s.lastBatchLastID)
	}
}

func firstOrderedID(batch []event.Event) string {
	for _, e := range batch {
		if e.ID != "" && !event.IsGapID(e.ID) {
			return e.ID
		}
	}
	return ""
}

func lastOrderedID(batch []event.Event) string {
	for i := len(batch) - 1; i >= 0; i-- {
		if batch[i].ID != "" && !event.IsGapID(batch[i].ID) {
			return batch[i].ID
		}
	}
	return ""
}

// Close stops the window timer and drops all sessions. No drain is
// attempted; pending events are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.stopTimer()
	q.sessions = make(map[string]*Session)
	q.pending = nil
}
