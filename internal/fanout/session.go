package fanout

import "github.com/google/uuid"

// SendFunc delivers one serialized envelope to a client. It is the only
// operation a session exposes to the queue: send bytes, may fail. A failed
// send evicts the session.
type SendFunc func(data []byte) error

// Session is one connected subscriber plus its per-client delivery state.
type Session struct {
	// ID identifies the session in diagnostics.
	ID string

	send SendFunc

	// lastBatchLastID is the canonical ID of the last ordered event in the
	// previous batch delivered to this client, used for the cross-batch
	// ordering check.
	lastBatchLastID string
}

// NewSession creates a session around a send function.
func NewSession(send SendFunc) *Session {
	return &Session{
		ID:   uuid.NewString(),
		send: send,
	}
}
