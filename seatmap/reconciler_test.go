package seatmap

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatsync/config"
	"seatsync/gatewaytest"
	"seatsync/realtime"
	"seatsync/shared"
)

func rawPayload(t *testing.T, payload interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

func seededReconciler(eventID string) *Reconciler {
	r := NewReconciler(nil, eventID)
	r.SetSeats([]shared.Seat{
		{ID: "A1", Status: shared.SeatAvailable},
		{ID: "A2", Status: shared.SeatHeld},
		{ID: "A3", Status: shared.SeatSold},
	})
	return r
}

func TestAvailabilityUpdateMergesByID(t *testing.T) {
	r := seededReconciler("evt-1")
	now := time.Now().UTC().Truncate(time.Second)

	r.handleAvailability(rawPayload(t, shared.SeatAvailabilityUpdate{
		EventID: "evt-1",
		Updates: []shared.SeatDelta{
			{SeatID: "A1", Status: shared.SeatHeld},
			{SeatID: "B7", Status: shared.SeatAvailable}, // not in the plan yet
		},
		Timestamp: now,
	}))

	a1, ok := r.Seat("A1")
	require.True(t, ok)
	assert.Equal(t, shared.SeatHeld, a1.Status)
	assert.Equal(t, now, a1.LastUpdated)

	b7, ok := r.Seat("B7")
	require.True(t, ok)
	assert.Equal(t, shared.SeatAvailable, b7.Status)

	// Untouched seats keep their status.
	a3, _ := r.Seat("A3")
	assert.Equal(t, shared.SeatSold, a3.Status)
}

func TestUpdatesForOtherEventsAreIgnored(t *testing.T) {
	r := seededReconciler("evt-Y")
	before := r.Seats()

	r.handleAvailability(rawPayload(t, shared.SeatAvailabilityUpdate{
		EventID: "evt-X",
		Updates: []shared.SeatDelta{{SeatID: "A1", Status: shared.SeatSold}},
	}))
	r.handleHoldExpired(rawPayload(t, shared.HoldExpired{
		EventID: "evt-X",
		SeatIDs: []string{"A2"},
	}))

	assert.Equal(t, before, r.Seats())
}

func TestHoldExpiredClearsSelection(t *testing.T) {
	r := seededReconciler("evt-1")
	r.SetSeats([]shared.Seat{
		{ID: "s1", Status: shared.SeatHeld},
		{ID: "s2", Status: shared.SeatHeld},
	})
	// Only s1 is locally selected; the expiry lists both.
	r.Select("s1")
	r.Select("s9")

	r.handleHoldExpired(rawPayload(t, shared.HoldExpired{
		EventID:   "evt-1",
		SeatIDs:   []string{"s1", "s2"},
		Timestamp: time.Now(),
	}))

	s1, _ := r.Seat("s1")
	s2, _ := r.Seat("s2")
	assert.Equal(t, shared.SeatAvailable, s1.Status)
	assert.Equal(t, shared.SeatAvailable, s2.Status)
	assert.Equal(t, []string{"s9"}, r.Selected())
}

func TestAdvisoryPassthroughs(t *testing.T) {
	r := seededReconciler("evt-1")
	before := r.Seats()

	var gotWarning *shared.HoldExpiringSoon
	var gotViewers int
	r.OnHoldExpiringSoon = func(w shared.HoldExpiringSoon) { gotWarning = &w }
	r.OnViewersUpdate = func(count int) { gotViewers = count }

	r.handleExpiringSoon(rawPayload(t, shared.HoldExpiringSoon{
		EventID: "evt-1",
		Message: "your hold expires in 60 seconds",
	}))
	r.handleViewers(rawPayload(t, shared.ViewersUpdate{EventID: "evt-1", Count: 12}))

	require.NotNil(t, gotWarning)
	assert.Equal(t, "your hold expires in 60 seconds", gotWarning.Message)
	assert.Equal(t, 12, gotViewers)
	// Advisory events never mutate the seat projection.
	assert.Equal(t, before, r.Seats())
}

func TestMalformedPayloadsAreDropped(t *testing.T) {
	r := seededReconciler("evt-1")
	before := r.Seats()

	r.handleAvailability(json.RawMessage(`{"event_id": 42}`))
	r.handleHoldExpired(json.RawMessage(`not json`))

	assert.Equal(t, before, r.Seats())
}

func liveSetup(t *testing.T) (*gatewaytest.Gateway, *realtime.Manager) {
	t.Helper()
	g := gatewaytest.New()
	t.Cleanup(g.Close)

	cfg := config.RealtimeConfig{
		HeartbeatInterval: time.Second,
		JoinTimeout:       2 * time.Second,
		QueryTimeout:      2 * time.Second,
		Reconnect: config.ReconnectConfig{
			MaxAttempts:  10,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
		},
	}
	m := realtime.NewManager(g.URL(), cfg, func() shared.ConnectAuth {
		return shared.ConnectAuth{SessionID: "session_1_test"}
	})
	t.Cleanup(m.Disconnect)
	return g, m
}

func TestStartJoinsAndAppliesBroadcasts(t *testing.T) {
	g, m := liveSetup(t)

	r := NewReconciler(m, "evt-1")
	r.SetSeats([]shared.Seat{{ID: "A1", Status: shared.SeatAvailable}})
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Eventually(t, func() bool {
		return g.RoomSize("evt-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	g.Broadcast("evt-1", shared.FrameSeatAvailabilityUpdate, shared.SeatAvailabilityUpdate{
		EventID:   "evt-1",
		Updates:   []shared.SeatDelta{{SeatID: "A1", Status: shared.SeatHeld}},
		Timestamp: time.Now(),
	})

	require.Eventually(t, func() bool {
		seat, ok := r.Seat("A1")
		return ok && seat.Status == shared.SeatHeld
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartJoinsOnceChannelComesUp(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	cfg := config.RealtimeConfig{
		HeartbeatInterval: time.Second,
		JoinTimeout:       2 * time.Second,
		QueryTimeout:      2 * time.Second,
		Reconnect: config.ReconnectConfig{
			MaxAttempts:  10,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
		},
	}
	m := realtime.NewManager("ws://"+addr, cfg, func() shared.ConnectAuth {
		return shared.ConnectAuth{SessionID: "session_1_test"}
	})
	t.Cleanup(m.Disconnect)

	// The backend is down when Start runs; the join is deferred to the
	// connect notification once the manager's retries get through.
	r := NewReconciler(m, "evt-1")
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	g, err := gatewaytest.NewAt(addr)
	require.NoError(t, err)
	defer g.Close()

	require.Eventually(t, func() bool {
		return g.RoomSize("evt-1") == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStartJoinsAtMostOnce(t *testing.T) {
	g, m := liveSetup(t)

	r := NewReconciler(m, "evt-1")
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Eventually(t, func() bool {
		return g.RoomSize("evt-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The guard swallows repeat attempts within one cycle.
	r.tryJoin(context.Background())
	r.tryJoin(context.Background())
	time.Sleep(100 * time.Millisecond)

	assert.Len(t, g.ReceivedOfType(shared.FrameJoinEvent), 1)
}

func TestStopLeavesRoom(t *testing.T) {
	g, m := liveSetup(t)

	r := NewReconciler(m, "evt-1")
	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool {
		return g.RoomSize("evt-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	require.Eventually(t, func() bool {
		return g.RoomSize("evt-1") == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, m.Rooms())
}
