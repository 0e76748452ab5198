package shared

import "time"

// Client -> server frame types
const (
	FrameConnect           = "CONNECT"
	FrameJoinEvent         = "JOIN_EVENT"
	FrameLeaveEvent        = "LEAVE_EVENT"
	FrameRequestSeatStatus = "REQUEST_SEAT_STATUS"
	FramePing              = "PING"
)

// Server -> client frame types
const (
	FramePong                   = "PONG"
	FrameJoinedEvent            = "JOINED_EVENT"
	FrameError                  = "ERROR"
	FrameSeatStatusResponse     = "SEAT_STATUS_RESPONSE"
	FrameSeatAvailabilityUpdate = "SEAT_AVAILABILITY_UPDATE"
	FrameHoldExpired            = "HOLD_EXPIRED"
	FrameHoldExpiringSoon       = "HOLD_EXPIRING_SOON"
	FrameViewersUpdate          = "VIEWERS_UPDATE"
)

// Timeouts and durations
const (
	HeartbeatInterval     = 30 * time.Second
	JoinTimeout           = 5 * time.Second
	QueryTimeout          = 10 * time.Second
	ReconnectInitialDelay = 1 * time.Second
	ReconnectMaxDelay     = 30 * time.Second
	ReconnectMaxAttempts  = 10
	WebSocketWriteTimeout = 10 * time.Second
	WebSocketPongWait     = 60 * time.Second
)

// Persisted storage keys
const (
	StorageKeyAccessToken  = "access_token"
	StorageKeyRefreshToken = "refresh_token"
	StorageKeyUser         = "user"
	StorageKeyStaffUser    = "staff_user"
	StorageKeySessionID    = "session_id"
)

// Defaults when no environment override is present
const (
	DefaultAPIURL      = "http://localhost:4000"
	DefaultRealtimeURL = "ws://localhost:4000"
)
