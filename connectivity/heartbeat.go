package connectivity

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// runHeartbeat keeps a websocket open to the backend's heartbeat endpoint.
// A live socket is stronger evidence than a probe: any received frame counts
// as a success, a read error or failed dial counts as a failure, both through
// the same debounce as the probe loop.
func (m *Monitor) runHeartbeat(ctx context.Context) {
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.heartbeatURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.recordFailure("heartbeat", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.interval):
			}
			continue
		}

		m.recordSuccess("heartbeat")
		m.readHeartbeat(ctx, conn)
	}
}

// readHeartbeat consumes frames until the socket dies or the context ends.
func (m *Monitor) readHeartbeat(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// Close the socket when the monitor stops so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	deadline := 2 * m.interval
	conn.SetPongHandler(func(string) error {
		m.recordSuccess("heartbeat")
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			if ctx.Err() == nil {
				m.recordFailure("heartbeat", err)
			}
			return
		}
		m.recordSuccess("heartbeat")
	}
}
