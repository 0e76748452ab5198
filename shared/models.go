package shared

import (
	"encoding/json"
	"time"
)

// Seat statuses
const (
	SeatAvailable = "available"
	SeatHeld      = "held"
	SeatSold      = "sold"
)

// Seat represents one seat's cached status. The authoritative copy lives
// on the backend; clients hold an eventually-consistent projection.
type Seat struct {
	ID          string    `json:"seat_id"`
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// SeatDelta is a single entry inside a SeatAvailabilityUpdate batch.
type SeatDelta struct {
	SeatID string `json:"seat_id"`
	Status string `json:"status"`
}

// Frame is the envelope for every message on the realtime channel.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame wraps a payload in a Frame envelope.
func NewFrame(frameType string, payload interface{}) (Frame, error) {
	if payload == nil {
		return Frame{Type: frameType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, Data: data}, nil
}

// ConnectAuth is sent immediately after the socket opens.
type ConnectAuth struct {
	Token     string `json:"token,omitempty"`
	SessionID string `json:"session_id"`
}

// JoinEvent asks the gateway to add this connection to an event room.
type JoinEvent struct {
	EventID string `json:"event_id"`
}

// LeaveEvent removes this connection from an event room. Fire-and-forget.
type LeaveEvent struct {
	EventID string `json:"event_id"`
}

// SeatStatusRequest asks for the current status of specific seats, or of
// every seat when SeatIDs is empty.
type SeatStatusRequest struct {
	EventID string   `json:"event_id"`
	SeatIDs []string `json:"seat_ids,omitempty"`
}

// JoinedEvent acknowledges a JoinEvent.
type JoinedEvent struct {
	EventID string `json:"event_id"`
}

// ErrorPayload is the gateway's rejection of a join or query.
type ErrorPayload struct {
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
}

// SeatStatusResponse answers a SeatStatusRequest.
type SeatStatusResponse struct {
	EventID string `json:"event_id"`
	Seats   []Seat `json:"seats"`
}

// SeatAvailabilityUpdate is a batch delta broadcast to all room members.
type SeatAvailabilityUpdate struct {
	EventID   string      `json:"event_id"`
	Updates   []SeatDelta `json:"updates"`
	Timestamp time.Time   `json:"timestamp"`
}

// HoldExpired informs members that seat holds lapsed back to available.
type HoldExpired struct {
	EventID   string    `json:"event_id"`
	SeatIDs   []string  `json:"seat_ids"`
	Timestamp time.Time `json:"timestamp"`
}

// HoldExpiringSoon is advisory only; no seat state change is implied.
type HoldExpiringSoon struct {
	EventID   string    `json:"event_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

// ErrorResponse is the HTTP API's error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ViewersUpdate is the presence count for an event room.
type ViewersUpdate struct {
	EventID string `json:"event_id"`
	Count   int    `json:"count"`
}
