package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hookline/hookline/internal/event"
)

// DefaultReadLimit caps historical reads when the caller gives no limit.
const DefaultReadLimit = 1000

// scan reads the whole log, assigning each complete line the same canonical
// ID the live watcher would mint: "file_watcher:<byte-offset-of-line-start>".
// Malformed lines and blank lines are skipped; a trailing line without a
// newline is an in-flight append and is ignored.
func (l *Log) scan() ([]event.Event, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var (
		events []event.Event
		offset int64
		r      = bufio.NewReader(f)
	)
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			// Incomplete final line; the watcher will pick it up once the
			// newline lands.
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}

		start := offset
		offset += int64(len(line))

		body := line[:len(line)-1]
		if len(body) == 0 {
			continue
		}

		var e event.Event
		if err := json.Unmarshal(body, &e); err != nil {
			continue
		}
		e.ID = event.CanonicalID(start)
		events = append(events, e)
	}

	return events, nil
}

// Tail returns the last n events in chronological (oldest first) order.
func (l *Log) Tail(n int) ([]event.Event, error) {
	if n <= 0 {
		n = DefaultReadLimit
	}
	events, err := l.scan()
	if err != nil {
		return nil, err
	}
	if len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// Before returns up to limit events with timestamps strictly before ts, in
// chronological order, and the timestamp to pass as the next page's cursor.
// nextBefore is nil when no older events remain.
func (l *Log) Before(ts float64, limit int) (events []event.Event, nextBefore *float64, err error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	all, err := l.scan()
	if err != nil {
		return nil, nil, err
	}

	var older []event.Event
	for _, e := range all {
		if e.TS < ts {
			older = append(older, e)
		}
	}

	if len(older) > limit {
		events = older[len(older)-limit:]
		t := events[0].TS
		nextBefore = &t
	} else {
		events = older
	}
	return events, nextBefore, nil
}
