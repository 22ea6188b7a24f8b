// Package watch tails the append-only event log and is the single minting
// authority for canonical event IDs. One watcher instance exists per
// process; it owns all tailing state exclusively.
package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hookline/hookline/internal/event"
)

const (
	// maxSeen caps the per-generation duplicate set: twice a full activity
	// window's worth of events. Oldest IDs are evicted first.
	maxSeen = 10000

	// errorThreshold is the consecutive-failure count that forces a full
	// state reset and reinitialization.
	errorThreshold = 10

	// reinitDelay is the pause before the watcher comes back after a full
	// reset, and the poll interval while waiting for the log to appear.
	reinitDelay = 500 * time.Millisecond

	// pollInterval drives the safety-net scan for filesystems that swallow
	// change notifications (bind mounts, NFS).
	pollInterval = 2 * time.Second
)

// active enforces one watcher per process. A second watcher would race the
// exclusively-owned offset and carry state.
var active atomic.Bool

// Enqueuer receives watcher-emitted events in canonical byte order.
type Enqueuer interface {
	Enqueue(e event.Event)
}

// Watcher tails a single append-only log file, frames complete lines,
// assigns canonical IDs by byte offset, and feeds events downstream.
type Watcher struct {
	path string
	sink Enqueuer

	mu sync.Mutex

	// Single-flight coordination: at most one read is ever in flight; a
	// change signal during a read marks dirty and the read runs once more.
	reading bool
	dirty   bool

	// lastOffset is the byte position just past the last complete line.
	// carry holds bytes read beyond it that have not yet seen a newline;
	// it never contains a newline itself.
	lastOffset int64
	carry      []byte

	// lastEmittedOffset is strictly increasing across emissions within a
	// generation. Regression means corrupted state.
	lastEmittedOffset int64

	seen      map[string]struct{}
	seenOrder []string

	consecutiveErrors int

	fw     *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a watcher for the given log path, feeding sink.
func New(path string, sink Enqueuer) *Watcher {
	return &Watcher{
		path:              path,
		sink:              sink,
		lastEmittedOffset: -1,
		seen:              make(map[string]struct{}),
		done:              make(chan struct{}),
	}
}

// Start begins tailing. It refuses to start a second watcher in the same
// process. If the log file does not exist yet, the watcher polls until it
// does and then starts at the current end of file, so only new events are
// streamed; replaying history on restart is explicitly not the contract.
func (w *Watcher) Start(ctx context.Context) error {
	if !active.CompareAndSwap(false, true) {
		slog.Error("refusing to start a second watcher in this process")
		return errors.New("watcher already running in this process")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		active.Store(false)
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fw = fw

	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
	return nil
}

// Close stops the watcher and releases the process-wide slot.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.fw.Close()
	<-w.done
	active.Store(false)
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	if !w.awaitFile(ctx) {
		return
	}

	// Watch the directory, not the file: a replace-file rotation swaps the
	// inode and a direct file watch would go stale.
	if err := w.fw.Add(filepath.Dir(w.path)); err != nil {
		slog.Error("watch log dir", "err", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.signal()
			}
		case <-ticker.C:
			w.signal()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", "err", err)
		}
	}
}

// awaitFile polls until the log exists, then positions the watcher at the
// current end of file. Returns false if the context ended first.
func (w *Watcher) awaitFile(ctx context.Context) bool {
	for {
		fi, err := os.Stat(w.path)
		if err == nil {
			w.mu.Lock()
			w.lastOffset = fi.Size()
			w.mu.Unlock()
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(reinitDelay):
		}
	}
}

// signal requests a read. If one is already in flight it is marked dirty
// and re-run once after completion; no two reads ever overlap.
func (w *Watcher) signal() {
	w.mu.Lock()
	if w.reading {
		w.dirty = true
		w.mu.Unlock()
		return
	}
	w.reading = true
	w.mu.Unlock()

	go func() {
		for {
			w.readNewEvents()
			w.mu.Lock()
			if w.dirty {
				w.dirty = false
				w.mu.Unlock()
				continue
			}
			w.reading = false
			w.mu.Unlock()
			return
		}
	}()
}

// readNewEvents performs one tail pass: detect rotation, read bytes past
// the current position, frame complete lines, emit events.
func (w *Watcher) readNewEvents() {
	w.mu.Lock()
	defer w.mu.Unlock()

	fi, err := os.Stat(w.path)
	if err != nil {
		w.readError(err)
		return
	}

	readPos := w.lastOffset + int64(len(w.carry))
	if fi.Size() < readPos {
		// Truncated or replaced. Reset to a fresh generation and make the
		// discontinuity visible downstream.
		slog.Warn("log truncated or rotated", "size", fi.Size(), "offset", w.lastOffset)
		w.resetState()
		w.sink.Enqueue(event.NewResetMarker(time.Now()))
		readPos = 0
	}
	if fi.Size() == readPos {
		w.consecutiveErrors = 0
		return
	}

	f, err := os.Open(w.path)
	if err != nil {
		w.readError(err)
		return
	}
	defer f.Close()

	if _, err := f.Seek(readPos, io.SeekStart); err != nil {
		w.readError(err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, fi.Size()-readPos))
	if err != nil {
		w.readError(err)
		return
	}

	w.consecutiveErrors = 0
	w.frame(data)
}

// frame appends newly read bytes to the carry and emits every complete
// line. The combined buffer starts at byte offset lastOffset in the log.
func (w *Watcher) frame(data []byte) {
	combined := append(w.carry, data...)
	base := w.lastOffset

	start := 0
	for {
		rel := bytes.IndexByte(combined[start:], '\n')
		if rel < 0 {
			break
		}
		end := start + rel
		w.emitLine(base+int64(start), combined[start:end])
		w.lastOffset = base + int64(end) + 1
		start = end + 1
	}

	w.carry = append([]byte(nil), combined[start:]...)
	if bytes.IndexByte(w.carry, '\n') >= 0 {
		// Framing above consumed every newline; this cannot happen unless
		// state was corrupted elsewhere.
		slog.Error("carry contains newline, resetting watcher state")
		w.resetState()
	}
}

// emitLine assigns the canonical ID for a complete line and enqueues the
// parsed event. Blank lines, duplicate offsets, and malformed JSON are
// skipped without emitting.
func (w *Watcher) emitLine(startOffset int64, line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}

	id := event.CanonicalID(startOffset)
	if _, dup := w.seen[id]; dup {
		slog.Warn("duplicate line offset, skipping", "id", id)
		return
	}

	// Mark seen before parsing; a parse failure removes the mark so a
	// corrected line at this offset can still be ingested.
	w.markSeen(id)

	var e event.Event
	if err := json.Unmarshal(line, &e); err != nil {
		w.unmarkSeen(id)
		slog.Debug("dropping malformed log line", "offset", startOffset, "err", err)
		return
	}

	if startOffset <= w.lastEmittedOffset {
		slog.Error("emission offset regressed, resetting watcher state",
			"offset", startOffset, "last", w.lastEmittedOffset)
		w.resetState()
		return
	}

	e.ID = id
	w.lastEmittedOffset = startOffset
	w.sink.Enqueue(e)
}

func (w *Watcher) markSeen(id string) {
	if len(w.seenOrder) >= maxSeen {
		oldest := w.seenOrder[0]
		w.seenOrder = w.seenOrder[1:]
		delete(w.seen, oldest)
	}
	w.seen[id] = struct{}{}
	w.seenOrder = append(w.seenOrder, id)
}

// unmarkSeen retracts the most recent markSeen. The entry must come out of
// seenOrder too, or phantom entries would consume FIFO slots and evict
// real IDs before the window fills.
func (w *Watcher) unmarkSeen(id string) {
	delete(w.seen, id)
	if n := len(w.seenOrder); n > 0 && w.seenOrder[n-1] == id {
		w.seenOrder = w.seenOrder[:n-1]
	}
}

// readError absorbs a transient I/O failure. Below the threshold the next
// attempt restarts from offset zero: lossy on purpose for a locked or
// missing file, because the log itself is the truth and the seen set
// suppresses re-emission. At the threshold the watcher fully resets and
// comes back at the current end of file after a short delay.
func (w *Watcher) readError(err error) {
	w.consecutiveErrors++
	slog.Warn("watcher read failed", "err", err, "consecutive", w.consecutiveErrors)

	if w.consecutiveErrors < errorThreshold {
		w.lastOffset = 0
		w.carry = nil
		return
	}

	slog.Error("too many consecutive watcher errors, reinitializing")
	w.resetState()
	w.consecutiveErrors = 0

	w.mu.Unlock()
	time.Sleep(reinitDelay)
	w.mu.Lock()

	if fi, err := os.Stat(w.path); err == nil {
		w.lastOffset = fi.Size()
	}
}

// resetState starts a fresh generation: offsets to zero, no carry, empty
// seen set.
func (w *Watcher) resetState() {
	w.lastOffset = 0
	w.carry = nil
	w.lastEmittedOffset = -1
	w.seen = make(map[string]struct{})
	w.seenOrder = nil
}

// Stats is a read-only snapshot of watcher internals for the stats probe.
// It may be transiently inconsistent with in-flight reads.
type Stats struct {
	Offset            int64 `json:"offset"`
	CarrySize         int   `json:"carry_size"`
	SeenSize          int   `json:"seen_size"`
	ConsecutiveErrors int   `json:"consecutive_errors"`
}

// Snapshot returns current watcher counters.
func (w *Watcher) Snapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Offset:            w.lastOffset,
		CarrySize:         len(w.carry),
		SeenSize:          len(w.seen),
		ConsecutiveErrors: w.consecutiveErrors,
	}
}
