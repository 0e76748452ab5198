package realtime

import (
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"

	"seatsync/shared"
)

// readPump decodes inbound frames and fans them out to subscribers until
// the transport dies.
func (m *Manager) readPump(conn *Conn) {
	defer m.teardown(conn)

	conn.ws.SetReadLimit(512 * 1024)
	conn.ws.SetReadDeadline(time.Now().Add(shared.WebSocketPongWait))

	for {
		var frame shared.Frame
		if err := conn.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).WithFields(m.logTags).Warn("Read failed")
			}
			return
		}
		conn.ws.SetReadDeadline(time.Now().Add(shared.WebSocketPongWait))

		if frame.Type == shared.FramePong {
			// Liveness probing is best effort; nothing to do beyond this.
			log.WithFields(m.logTags).Debug("Heartbeat pong")
			continue
		}
		m.dispatch(frame)
	}
}

// writePump drains the shared outbound queue onto the current transport
// and emits the heartbeat ping while the connection stays live.
func (m *Manager) writePump(conn *Conn) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	defer m.teardown(conn)

	for {
		select {
		case <-conn.done:
			return

		case frame := <-m.send:
			conn.ws.SetWriteDeadline(time.Now().Add(shared.WebSocketWriteTimeout))
			if err := conn.ws.WriteJSON(frame); err != nil {
				log.WithError(err).WithFields(m.logTags).WithField("frame", frame.Type).
					Warn("Write failed, requeueing frame")
				m.requeue(frame)
				return
			}

		case <-ticker.C:
			ping, _ := shared.NewFrame(shared.FramePing, nil)
			conn.ws.SetWriteDeadline(time.Now().Add(shared.WebSocketWriteTimeout))
			if err := conn.ws.WriteJSON(ping); err != nil {
				log.WithError(err).WithFields(m.logTags).Warn("Heartbeat write failed")
				return
			}
		}
	}
}
