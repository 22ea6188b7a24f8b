package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hookline/hookline/internal/fanout"
)

const (
	// maxFrameSize caps inbound client messages. Outbound batch envelopes
	// are not checked against it or split.
	maxFrameSize = 1 << 20

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Localhost-only server; cross-origin pages may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream handles GET /ws: the long-lived duplex socket that receives batch
// envelopes. Client-to-server messages are read and discarded; the read
// loop exists only to notice disconnects and answer pings.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameSize)

	// The fan-out flush and the ping ticker both write; gorilla allows one
	// concurrent writer, so all writes go through this mutex. A stuck
	// socket surfaces as a write-deadline error, which evicts the session.
	var wmu sync.Mutex
	send := func(data []byte) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	sess := fanout.NewSession(send)
	h.queue.Subscribe(sess)
	defer h.queue.Unsubscribe(sess.ID)

	slog.Debug("stream client connected", "session", sess.ID, "remote", r.RemoteAddr)

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				wmu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				wmu.Unlock()
				if err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}

	slog.Debug("stream client disconnected", "session", sess.ID)
}
