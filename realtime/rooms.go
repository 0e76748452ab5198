package realtime

import (
	"context"
	"encoding/json"

	"github.com/apex/log"

	"seatsync/shared"
)

// JoinEvent asks the gateway to add this connection to an event room and
// waits for the acknowledgment. The emission queues while the transport is
// still dialing, so calling before the connection is live is fine. On
// success the room is tracked for replay after reconnects.
func (m *Manager) JoinEvent(ctx context.Context, eventID string) error {
	if m.isClosing() {
		return ErrClosed
	}
	frame, err := shared.NewFrame(shared.FrameJoinEvent, shared.JoinEvent{EventID: eventID})
	if err != nil {
		return err
	}

	accept := func(raw json.RawMessage) bool {
		var ack shared.JoinedEvent
		if err := json.Unmarshal(raw, &ack); err != nil {
			return false
		}
		return ack.EventID == eventID
	}
	acceptErr := func(p shared.ErrorPayload) bool {
		return p.EventID == "" || p.EventID == eventID
	}

	waiter := m.armReply(shared.FrameJoinedEvent, accept, acceptErr)
	if err := m.Send(frame); err != nil {
		waiter.cancel()
		return err
	}
	if _, err := waiter.wait(ctx, m.cfg.JoinTimeout); err != nil {
		return err
	}

	m.mu.Lock()
	m.rooms[eventID] = struct{}{}
	m.mu.Unlock()
	log.WithFields(m.logTags).WithField("event_id", eventID).Info("Joined event room")
	return nil
}

// LeaveEvent emits a leave request and drops the room from the membership
// set. No acknowledgment is awaited.
func (m *Manager) LeaveEvent(eventID string) {
	m.mu.Lock()
	delete(m.rooms, eventID)
	m.mu.Unlock()

	frame, err := shared.NewFrame(shared.FrameLeaveEvent, shared.LeaveEvent{EventID: eventID})
	if err != nil {
		return
	}
	if err := m.Send(frame); err != nil {
		log.WithError(err).WithFields(m.logTags).WithField("event_id", eventID).
			Warn("Failed to emit leave")
	}
}
