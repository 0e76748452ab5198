// Package api is the storefront HTTP client: events, seat plans and holds,
// order checkout, and customer / staff / admin surfaces.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apex/log"

	"seatsync/shared"
	"seatsync/store"
)

// Client talks to the storefront API. A bearer token from the state store
// is attached when present; any 401 clears the stored credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      store.Store
	logTags    log.Fields
}

// NewClient creates a storefront API client.
func NewClient(baseURL string, st store.Store) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		store:   st,
		logTags: log.Fields{"module": "api", "component": "client", "base_url": baseURL},
	}
}

// ListEvents fetches all published events.
func (c *Client) ListEvents() ([]Event, error) {
	var events []Event
	if err := c.get("/api/events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetEvent fetches one event by id.
func (c *Client) GetEvent(eventID string) (*Event, error) {
	var event Event
	if err := c.get("/api/events/"+eventID, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// SeatPlan fetches the seat layout and current statuses for an event.
func (c *Client) SeatPlan(eventID string) (*SeatPlan, error) {
	var plan SeatPlan
	if err := c.get("/api/events/"+eventID+"/seats", &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// HoldSeat places a time-bounded hold attributed to the session.
func (c *Client) HoldSeat(eventID, seatID, sessionID string) (*Hold, error) {
	var hold Hold
	err := c.post("/api/events/"+eventID+"/seats/hold",
		HoldRequest{SeatID: seatID, SessionID: sessionID}, &hold)
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// ReleaseSeat drops a hold placed by the session.
func (c *Client) ReleaseSeat(eventID, seatID, sessionID string) error {
	return c.post("/api/events/"+eventID+"/seats/release",
		HoldRequest{SeatID: seatID, SessionID: sessionID}, nil)
}

// CreateCheckoutIntent starts payment for held seats.
func (c *Client) CreateCheckoutIntent(req CheckoutIntentRequest) (*CheckoutIntent, error) {
	var intent CheckoutIntent
	if err := c.post("/api/orders/checkout-intent", req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// FinalizeOrder completes an order after payment confirmation.
func (c *Client) FinalizeOrder(orderID string) (*Order, error) {
	var order Order
	if err := c.post("/api/orders/"+orderID+"/finalize", nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder fetches one order.
func (c *Client) GetOrder(orderID string) (*Order, error) {
	var order Order
	if err := c.get("/api/orders/"+orderID, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders fetches the authenticated customer's orders.
func (c *Client) ListOrders() ([]Order, error) {
	var orders []Order
	if err := c.get("/api/orders", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Login authenticates a customer and persists the token pair.
func (c *Client) Login(creds Credentials) (*User, error) {
	return c.authenticate("/api/auth/login", creds, shared.StorageKeyUser)
}

// Register creates a customer account and persists the token pair.
func (c *Client) Register(req RegisterRequest) (*User, error) {
	return c.authenticate("/api/auth/register", req, shared.StorageKeyUser)
}

// Me fetches and caches the authenticated customer profile.
func (c *Client) Me() (*User, error) {
	return c.profile("/api/auth/me", shared.StorageKeyUser)
}

// StaffLogin authenticates a staff member.
func (c *Client) StaffLogin(creds Credentials) (*User, error) {
	return c.authenticate("/api/staff/auth/login", creds, shared.StorageKeyStaffUser)
}

// StaffMe fetches and caches the authenticated staff profile.
func (c *Client) StaffMe() (*User, error) {
	return c.profile("/api/staff/auth/me", shared.StorageKeyStaffUser)
}

// PreviewVenueTemplate generates a venue layout without saving it.
func (c *Client) PreviewVenueTemplate(req VenueTemplateRequest) (*VenueTemplate, error) {
	var tpl VenueTemplate
	if err := c.post("/api/admin/venues/preview", req, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// CreateVenueTemplate saves a venue layout.
func (c *Client) CreateVenueTemplate(req VenueTemplateRequest) (*VenueTemplate, error) {
	var tpl VenueTemplate
	if err := c.post("/api/admin/venues", req, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ListVenueTemplates fetches saved venue layouts.
func (c *Client) ListVenueTemplates() ([]VenueTemplate, error) {
	var tpls []VenueTemplate
	if err := c.get("/api/admin/venues", &tpls); err != nil {
		return nil, err
	}
	return tpls, nil
}

func (c *Client) authenticate(endpoint string, body interface{}, profileKey string) (*User, error) {
	var resp AuthResponse
	if err := c.post(endpoint, body, &resp); err != nil {
		return nil, err
	}
	if err := c.store.Set(shared.StorageKeyAccessToken, resp.AccessToken); err != nil {
		return nil, err
	}
	if resp.RefreshToken != "" {
		if err := c.store.Set(shared.StorageKeyRefreshToken, resp.RefreshToken); err != nil {
			return nil, err
		}
	}
	c.cacheProfile(profileKey, resp.User)
	return &resp.User, nil
}

func (c *Client) profile(endpoint, profileKey string) (*User, error) {
	var user User
	if err := c.get(endpoint, &user); err != nil {
		return nil, err
	}
	c.cacheProfile(profileKey, user)
	return &user, nil
}

func (c *Client) cacheProfile(key string, user User) {
	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := c.store.Set(key, string(data)); err != nil {
		log.WithError(err).WithFields(c.logTags).Warn("Failed to cache profile")
	}
}

func (c *Client) get(endpoint string, out interface{}) error {
	return c.do(http.MethodGet, endpoint, nil, out)
}

func (c *Client) post(endpoint string, body, out interface{}) error {
	return c.do(http.MethodPost, endpoint, body, out)
}

func (c *Client) do(method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := c.store.Get(shared.StorageKeyAccessToken); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.clearCredentials()
		return fmt.Errorf("unauthorized: %s", readError(resp.Body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, readError(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// clearCredentials wipes tokens and cached profiles after a 401.
func (c *Client) clearCredentials() {
	log.WithFields(c.logTags).Warn("Unauthorized response, clearing stored credentials")
	for _, key := range []string{
		shared.StorageKeyAccessToken,
		shared.StorageKeyRefreshToken,
		shared.StorageKeyUser,
		shared.StorageKeyStaffUser,
	} {
		if err := c.store.Delete(key); err != nil {
			log.WithError(err).WithFields(c.logTags).WithField("key", key).
				Warn("Failed to clear credential")
		}
	}
}

func readError(body io.Reader) string {
	var errResp shared.ErrorResponse
	data, _ := io.ReadAll(body)
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return string(data)
}
