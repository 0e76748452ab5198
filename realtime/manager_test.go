package realtime

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatsync/config"
	"seatsync/gatewaytest"
	"seatsync/shared"
)

func testConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		HeartbeatInterval: 50 * time.Millisecond,
		JoinTimeout:       2 * time.Second,
		QueryTimeout:      2 * time.Second,
		Reconnect: config.ReconnectConfig{
			MaxAttempts:  10,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
		},
	}
}

func testAuth() shared.ConnectAuth {
	return shared.ConnectAuth{Token: "test-token", SessionID: "session_1700000000000_abcd1234"}
}

func newTestManager(t *testing.T, g *gatewaytest.Gateway, cfg config.RealtimeConfig) *Manager {
	t.Helper()
	m := NewManager(g.URL(), cfg, testAuth)
	t.Cleanup(m.Disconnect)
	return m
}

func TestInitializeIsIdempotent(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	m := newTestManager(t, g, testConfig())

	first, err := m.Initialize()
	require.NoError(t, err)
	second, err := m.Initialize()
	require.NoError(t, err)
	assert.Same(t, first, second)

	viaGet, err := m.Get()
	require.NoError(t, err)
	assert.Same(t, first, viaGet)

	// Exactly one transport authenticated.
	require.Eventually(t, func() bool { return len(g.Auths()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "session_1700000000000_abcd1234", g.Auths()[0].SessionID)
	assert.Equal(t, "test-token", g.Auths()[0].Token)
}

func TestJoinEventSuccess(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	m := newTestManager(t, g, testConfig())

	_, err := m.Initialize()
	require.NoError(t, err)

	require.NoError(t, m.JoinEvent(context.Background(), "evt-1"))
	assert.Equal(t, 1, g.RoomSize("evt-1"))
	assert.Equal(t, []string{"evt-1"}, m.Rooms())
}

func TestJoinEventDenied(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	g.DenyJoin("evt-1", "event is sold out")
	m := newTestManager(t, g, testConfig())

	_, err := m.Initialize()
	require.NoError(t, err)

	err = m.JoinEvent(context.Background(), "evt-1")
	require.Error(t, err)
	assert.EqualError(t, err, "event is sold out")
	assert.Empty(t, m.Rooms())
}

func TestJoinEventTimeout(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	g.IgnoreJoins(true)

	cfg := testConfig()
	cfg.JoinTimeout = 200 * time.Millisecond
	m := newTestManager(t, g, cfg)

	_, err := m.Initialize()
	require.NoError(t, err)

	start := time.Now()
	err = m.JoinEvent(context.Background(), "evt-1")
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Empty(t, m.Rooms())
}

func TestJoinBeforeConnectionIsLive(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	m := newTestManager(t, g, testConfig())

	// Join first; the emission queues until the transport comes up.
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.JoinEvent(context.Background(), "evt-1")
	}()

	time.Sleep(200 * time.Millisecond)
	_, err := m.Initialize()
	require.NoError(t, err)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("join did not settle")
	}
	assert.Equal(t, 1, g.RoomSize("evt-1"))
}

func TestQuerySeatStatus(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	g.SeedSeats("evt-1", []shared.Seat{
		{ID: "A1", Status: shared.SeatAvailable},
		{ID: "A2", Status: shared.SeatHeld},
		{ID: "A3", Status: shared.SeatSold},
	})
	m := newTestManager(t, g, testConfig())

	_, err := m.Initialize()
	require.NoError(t, err)

	all, err := m.QuerySeatStatus(context.Background(), "evt-1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	subset, err := m.QuerySeatStatus(context.Background(), "evt-1", []string{"A2"})
	require.NoError(t, err)
	require.Len(t, subset, 1)
	assert.Equal(t, "A2", subset[0].ID)
	assert.Equal(t, shared.SeatHeld, subset[0].Status)
}

func TestQuerySeatStatusTimeout(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	g.IgnoreQueries(true)

	cfg := testConfig()
	cfg.QueryTimeout = 200 * time.Millisecond
	m := newTestManager(t, g, cfg)

	_, err := m.Initialize()
	require.NoError(t, err)

	_, err = m.QuerySeatStatus(context.Background(), "evt-1", []string{"A1"})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestHeartbeat(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	m := newTestManager(t, g, testConfig())

	_, err := m.Initialize()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(g.ReceivedOfType(shared.FramePing)) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectAfterInitialDialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	m := NewManager("ws://"+addr, testConfig(), testAuth)
	t.Cleanup(m.Disconnect)

	connected := make(chan struct{}, 1)
	m.OnConnect(func() {
		select {
		case connected <- struct{}{}:
		default:
		}
	})

	// Nothing is listening yet; the first dial fails but the manager
	// keeps retrying on its own.
	_, err = m.Initialize()
	require.Error(t, err)
	assert.False(t, m.Connected())

	time.Sleep(150 * time.Millisecond)
	g, err := gatewaytest.NewAt(addr)
	require.NoError(t, err)
	defer g.Close()

	select {
	case <-connected:
	case <-time.After(3 * time.Second):
		t.Fatal("manager never reconnected after a failed first dial")
	}
	assert.True(t, m.Connected())
	require.Eventually(t, func() bool { return len(g.Auths()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestFrameSurvivesWriteFailure(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	m := newTestManager(t, g, testConfig())

	conn, err := m.Initialize()
	require.NoError(t, err)

	// Kill the transport underneath the pumps; whether the join frame is
	// still queued or fails mid-write, it must go out on the next
	// connection.
	require.NoError(t, conn.ws.Close())
	require.NoError(t, m.JoinEvent(context.Background(), "evt-1"))
	assert.Equal(t, 1, g.RoomSize("evt-1"))
}

func TestRequeueKeepsFrameForNextTransport(t *testing.T) {
	m := offlineManager()
	frame := mustFrame(t, shared.FrameJoinEvent, shared.JoinEvent{EventID: "evt-1"})

	m.requeue(frame)

	select {
	case got := <-m.send:
		assert.Equal(t, frame, got)
	default:
		t.Fatal("frame was not requeued")
	}
}

func TestReplayedJoinDenialDropsMembership(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	m := newTestManager(t, g, testConfig())

	_, err := m.Initialize()
	require.NoError(t, err)
	require.NoError(t, m.JoinEvent(context.Background(), "evt-1"))

	// The backend refuses the room on the next connection; the replayed
	// join must not leave stale membership behind.
	g.DenyJoin("evt-1", "event is sold out")
	g.DropClients()

	require.Eventually(t, func() bool {
		return m.Connected() && len(m.Rooms()) == 0
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, g.RoomSize("evt-1"))
}

func TestReconnectReplaysRooms(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	m := newTestManager(t, g, testConfig())

	_, err := m.Initialize()
	require.NoError(t, err)
	require.NoError(t, m.JoinEvent(context.Background(), "evt-1"))
	require.Equal(t, 1, g.RoomSize("evt-1"))

	g.DropClients()

	// The manager reconnects on its own and replays the join.
	require.Eventually(t, func() bool {
		return g.RoomSize("evt-1") == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Len(t, g.Auths(), 2)
	assert.Equal(t, []string{"evt-1"}, m.Rooms())
}

func TestDisconnectClearsSingleton(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	m := newTestManager(t, g, testConfig())

	first, err := m.Initialize()
	require.NoError(t, err)
	m.Disconnect()
	assert.False(t, m.Connected())

	// No automatic reconnect after an explicit disconnect.
	time.Sleep(300 * time.Millisecond)
	assert.False(t, m.Connected())

	fresh, err := m.Get()
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	require.Eventually(t, func() bool { return len(g.Auths()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestRequestsFailFastAfterDisconnect(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	m := newTestManager(t, g, testConfig())

	_, err := m.Initialize()
	require.NoError(t, err)
	m.Disconnect()

	err = m.JoinEvent(context.Background(), "evt-1")
	require.ErrorIs(t, err, ErrClosed)
	_, err = m.QuerySeatStatus(context.Background(), "evt-1", nil)
	require.ErrorIs(t, err, ErrClosed)
}

func TestLeaveEventDropsMembership(t *testing.T) {
	g := gatewaytest.New()
	defer g.Close()
	m := newTestManager(t, g, testConfig())

	_, err := m.Initialize()
	require.NoError(t, err)
	require.NoError(t, m.JoinEvent(context.Background(), "evt-1"))

	m.LeaveEvent("evt-1")
	assert.Empty(t, m.Rooms())
	require.Eventually(t, func() bool {
		return g.RoomSize("evt-1") == 0
	}, time.Second, 10*time.Millisecond)
}
