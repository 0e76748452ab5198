package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"seatsync/shared"
)

// QuerySeatStatus fetches the current status of the given seats, or of all
// seats when seatIDs is empty. The response is correlated by event id and
// bounded by the query timeout, independent of room membership.
func (m *Manager) QuerySeatStatus(ctx context.Context, eventID string, seatIDs []string) ([]shared.Seat, error) {
	if m.isClosing() {
		return nil, ErrClosed
	}
	frame, err := shared.NewFrame(shared.FrameRequestSeatStatus, shared.SeatStatusRequest{
		EventID: eventID,
		SeatIDs: seatIDs,
	})
	if err != nil {
		return nil, err
	}

	accept := func(raw json.RawMessage) bool {
		var resp shared.SeatStatusResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return false
		}
		return resp.EventID == eventID
	}
	acceptErr := func(p shared.ErrorPayload) bool {
		return p.EventID == "" || p.EventID == eventID
	}

	waiter := m.armReply(shared.FrameSeatStatusResponse, accept, acceptErr)
	if err := m.Send(frame); err != nil {
		waiter.cancel()
		return nil, err
	}
	raw, err := waiter.wait(ctx, m.cfg.QueryTimeout)
	if err != nil {
		return nil, err
	}

	var resp shared.SeatStatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("malformed seat status response: %w", err)
	}
	return resp.Seats, nil
}
