// Package eventlog owns the append-only event log: one serialized event per
// newline-terminated UTF-8 line. Byte offsets into this file are the ground
// truth from which canonical event IDs are minted.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hookline/hookline/internal/event"
)

// Log appends events to a single JSONL file. The file is append-only; the
// only other mutation anyone may perform on it is whole-file truncation or
// replacement (rotation), which the watcher detects by size regression.
type Log struct {
	path string
}

// New creates a Log writing to the given file path.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes a single event as a JSON line with a trailing newline.
// File locking via flock keeps concurrent appenders from interleaving
// partial lines.
func (l *Log) Append(e event.Event) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock log: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return nil
}

// Info describes the log file for the stats probe.
type Info struct {
	Size int64 `json:"size"`
	// Signature identifies the backing inode so a replace-file rotation is
	// distinguishable from growth ("dev:ino" on unix, "" when unknown).
	Signature string `json:"signature"`
}

// Stat returns the current size and identity of the log file. A missing
// file reports a zero Info rather than an error.
func (l *Log) Stat() (Info, error) {
	fi, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("stat log: %w", err)
	}

	info := Info{Size: fi.Size()}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		info.Signature = fmt.Sprintf("%d:%d", st.Dev, st.Ino)
	}
	return info, nil
}
