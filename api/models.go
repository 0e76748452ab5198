package api

import (
	"time"

	"seatsync/shared"
)

// Event is one ticketed event as listed by the storefront API.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Venue       string    `json:"venue"`
	StartsAt    time.Time `json:"starts_at"`
	Description string    `json:"description,omitempty"`
	PriceCents  int       `json:"price_cents"`
	Currency    string    `json:"currency"`
}

// SeatPlan is the full seat layout plus current statuses for one event.
type SeatPlan struct {
	EventID string        `json:"event_id"`
	Rows    int           `json:"rows"`
	Cols    int           `json:"cols"`
	Seats   []shared.Seat `json:"seats"`
}

// HoldRequest asks the backend to place a time-bounded hold on one seat,
// attributed to this browser's session.
type HoldRequest struct {
	SeatID    string `json:"seat_id"`
	SessionID string `json:"session_id"`
}

// Hold describes an active seat hold.
type Hold struct {
	SeatID    string    `json:"seat_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CheckoutIntentRequest starts payment for a set of held seats.
type CheckoutIntentRequest struct {
	EventID   string   `json:"event_id"`
	SeatIDs   []string `json:"seat_ids"`
	SessionID string   `json:"session_id"`
}

// CheckoutIntent carries what the payment widget needs.
type CheckoutIntent struct {
	OrderID      string `json:"order_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int    `json:"amount_cents"`
	Currency     string `json:"currency"`
}

// Order is a finalized or pending purchase.
type Order struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	SeatIDs     []string  `json:"seat_ids"`
	Status      string    `json:"status"`
	AmountCents int       `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is a customer or staff profile.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest creates a customer account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// AuthResponse returns the token pair plus the profile.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// VenueTemplateRequest describes a venue layout to generate.
type VenueTemplateRequest struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// VenueTemplate is a generated venue layout.
type VenueTemplate struct {
	ID    string   `json:"id,omitempty"`
	Name  string   `json:"name"`
	Rows  int      `json:"rows"`
	Cols  int      `json:"cols"`
	Seats []string `json:"seats"`
}
