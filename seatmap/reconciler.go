// Package seatmap keeps a client-side projection of one event's seats and
// reconciles the broadcast stream into it.
package seatmap

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/apex/log"

	"seatsync/realtime"
	"seatsync/shared"
)

// Reconciler subscribes to the four broadcast kinds for one event, merges
// them into the cached seat map, and tracks the locally selected seats.
// Broadcast handlers never fail; malformed payloads are dropped.
type Reconciler struct {
	mgr     *realtime.Manager
	eventID string
	logTags log.Fields

	// Advisory passthroughs; all optional. OnSeatsChanged fires after a
	// broadcast mutates the projection.
	OnSeatsChanged     func([]shared.SeatDelta)
	OnHoldExpiringSoon func(shared.HoldExpiringSoon)
	OnViewersUpdate    func(int)

	mu       sync.Mutex
	seats    map[string]shared.Seat
	selected map[string]struct{}
	joined   bool
	unsubs   []func()
}

func NewReconciler(mgr *realtime.Manager, eventID string) *Reconciler {
	return &Reconciler{
		mgr:      mgr,
		eventID:  eventID,
		logTags:  log.Fields{"module": "seatmap", "component": "reconciler", "event_id": eventID},
		seats:    make(map[string]shared.Seat),
		selected: make(map[string]struct{}),
	}
}

// Start wires the broadcast subscriptions and joins the event room: eagerly
// when the connection is already live, otherwise on the connect signal. The
// join guard ensures at most one join attempt per guard cycle; a failed
// attempt re-arms it so the next connect retries.
func (r *Reconciler) Start(ctx context.Context) error {
	r.unsubs = append(r.unsubs,
		r.mgr.Subscribe(shared.FrameSeatAvailabilityUpdate, r.handleAvailability),
		r.mgr.Subscribe(shared.FrameHoldExpired, r.handleHoldExpired),
		r.mgr.Subscribe(shared.FrameHoldExpiringSoon, r.handleExpiringSoon),
		r.mgr.Subscribe(shared.FrameViewersUpdate, r.handleViewers),
		r.mgr.OnConnect(func() { r.tryJoin(ctx) }),
	)

	if _, err := r.mgr.Get(); err != nil {
		// Connection is down; the manager's reconnect policy owns retries
		// and the OnConnect hook joins once it comes up.
		log.WithError(err).WithFields(r.logTags).Warn("Channel unavailable, deferring join")
		return nil
	}
	r.tryJoin(ctx)
	return nil
}

// Stop removes all subscriptions and leaves the room if joined.
func (r *Reconciler) Stop() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil

	r.mu.Lock()
	joined := r.joined
	r.joined = false
	r.mu.Unlock()
	if joined {
		r.mgr.LeaveEvent(r.eventID)
	}
}

func (r *Reconciler) tryJoin(ctx context.Context) {
	r.mu.Lock()
	if r.joined {
		r.mu.Unlock()
		return
	}
	r.joined = true
	r.mu.Unlock()

	go func() {
		if err := r.mgr.JoinEvent(ctx, r.eventID); err != nil {
			log.WithError(err).WithFields(r.logTags).Error("Join failed")
			r.mu.Lock()
			r.joined = false
			r.mu.Unlock()
		}
	}()
}

// SetSeats replaces the cached projection, e.g. with a freshly fetched
// seat plan.
func (r *Reconciler) SetSeats(seats []shared.Seat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seats = make(map[string]shared.Seat, len(seats))
	for _, seat := range seats {
		r.seats[seat.ID] = seat
	}
}

// Seats returns a snapshot of the projection, ordered by seat id.
func (r *Reconciler) Seats() []shared.Seat {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.Seat, 0, len(r.seats))
	for _, seat := range r.seats {
		out = append(out, seat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Seat returns one seat from the projection.
func (r *Reconciler) Seat(seatID string) (shared.Seat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat, ok := r.seats[seatID]
	return seat, ok
}

// Select marks a seat as locally selected.
func (r *Reconciler) Select(seatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected[seatID] = struct{}{}
}

// Deselect removes a seat from the local selection.
func (r *Reconciler) Deselect(seatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.selected, seatID)
}

// Selected returns the locally selected seat ids, sorted.
func (r *Reconciler) Selected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.selected))
	for id := range r.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Reconciler) handleAvailability(raw json.RawMessage) {
	var update shared.SeatAvailabilityUpdate
	if err := json.Unmarshal(raw, &update); err != nil || update.EventID != r.eventID {
		return
	}

	r.mu.Lock()
	for _, delta := range update.Updates {
		seat, ok := r.seats[delta.SeatID]
		if !ok {
			seat = shared.Seat{ID: delta.SeatID}
		}
		seat.Status = delta.Status
		seat.LastUpdated = update.Timestamp
		r.seats[delta.SeatID] = seat
	}
	r.mu.Unlock()

	if r.OnSeatsChanged != nil {
		r.OnSeatsChanged(update.Updates)
	}
}

func (r *Reconciler) handleHoldExpired(raw json.RawMessage) {
	var expired shared.HoldExpired
	if err := json.Unmarshal(raw, &expired); err != nil || expired.EventID != r.eventID {
		return
	}

	deltas := make([]shared.SeatDelta, 0, len(expired.SeatIDs))
	r.mu.Lock()
	for _, seatID := range expired.SeatIDs {
		seat, ok := r.seats[seatID]
		if !ok {
			seat = shared.Seat{ID: seatID}
		}
		seat.Status = shared.SeatAvailable
		seat.LastUpdated = expired.Timestamp
		r.seats[seatID] = seat
		delete(r.selected, seatID)
		deltas = append(deltas, shared.SeatDelta{SeatID: seatID, Status: shared.SeatAvailable})
	}
	r.mu.Unlock()

	log.WithFields(r.logTags).WithField("seats", len(expired.SeatIDs)).Info("Holds expired")
	if r.OnSeatsChanged != nil {
		r.OnSeatsChanged(deltas)
	}
}

func (r *Reconciler) handleExpiringSoon(raw json.RawMessage) {
	var warning shared.HoldExpiringSoon
	if err := json.Unmarshal(raw, &warning); err != nil || warning.EventID != r.eventID {
		return
	}
	if r.OnHoldExpiringSoon != nil {
		r.OnHoldExpiringSoon(warning)
	}
}

func (r *Reconciler) handleViewers(raw json.RawMessage) {
	var viewers shared.ViewersUpdate
	if err := json.Unmarshal(raw, &viewers); err != nil || viewers.EventID != r.eventID {
		return
	}
	if r.OnViewersUpdate != nil {
		r.OnViewersUpdate(viewers.Count)
	}
}
