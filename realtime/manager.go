// Package realtime owns the seat-availability channel: one lazily dialed,
// auto-reconnecting websocket shared by every consumer, room membership,
// and the correlated join / seat-status request protocols.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"

	"seatsync/config"
	"seatsync/shared"
)

// AuthFunc supplies the CONNECT payload at dial time so token rotation and
// session identity stay outside this package.
type AuthFunc func() shared.ConnectAuth

// Conn is the handle for one live transport. At most one exists per
// Manager; callers obtain it through Get or Initialize, never construct it.
type Conn struct {
	ws   *websocket.Conn
	done chan struct{}
}

// Done is closed when the transport dies.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Manager is the accessor around the connection singleton. All state is
// guarded by mu; handler callbacks run without the lock held.
type Manager struct {
	cfg     config.RealtimeConfig
	url     string
	auth    AuthFunc
	logTags log.Fields

	// Outbound queue. It outlives individual transports, so frames
	// emitted while the connection is down are delivered after the next
	// successful dial.
	send chan shared.Frame

	mu            sync.Mutex
	conn          *Conn
	closing       bool
	reconnecting  bool
	rooms         map[string]struct{}
	nextSubID     int64
	frameSubs     map[string]map[int64]func(json.RawMessage)
	connectSubs   map[int64]func()
	disconnectSub map[int64]func()
}

// NewManager builds a manager for the given endpoint. Nothing is dialed
// until Initialize or Get is called.
func NewManager(url string, cfg config.RealtimeConfig, auth AuthFunc) *Manager {
	return &Manager{
		cfg:           cfg,
		url:           url,
		auth:          auth,
		logTags:       log.Fields{"module": "realtime", "component": "manager", "url": url},
		send:          make(chan shared.Frame, 256),
		rooms:         make(map[string]struct{}),
		frameSubs:     make(map[string]map[int64]func(json.RawMessage)),
		connectSubs:   make(map[int64]func()),
		disconnectSub: make(map[int64]func()),
	}
}

// isClosing reports whether Disconnect shut the channel down on purpose.
func (m *Manager) isClosing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing
}

// Connected reports whether a live transport exists.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Get returns the live connection, dialing one if needed.
func (m *Manager) Get() (*Conn, error) {
	m.mu.Lock()
	if m.conn != nil {
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	}
	m.mu.Unlock()
	return m.Initialize()
}

// Initialize dials the channel. If a live connection already exists it is
// returned unchanged.
func (m *Manager) Initialize() (*Conn, error) {
	m.mu.Lock()
	if m.conn != nil {
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	}
	m.closing = false
	rooms := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		rooms = append(rooms, id)
	}
	m.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.Dial(m.url, nil)
	if err != nil {
		log.WithError(err).WithFields(m.logTags).Error("Dial failed")
		m.maybeReconnect()
		return nil, err
	}

	conn := &Conn{ws: ws, done: make(chan struct{})}
	m.mu.Lock()
	if m.conn != nil {
		// Lost the race against a concurrent Initialize. Keep the winner.
		existing := m.conn
		m.mu.Unlock()
		_ = ws.Close()
		return existing, nil
	}
	m.conn = conn
	m.mu.Unlock()

	// Authenticate before anything else goes out on the wire.
	authFrame, err := shared.NewFrame(shared.FrameConnect, m.auth())
	if err == nil {
		ws.SetWriteDeadline(time.Now().Add(shared.WebSocketWriteTimeout))
		err = ws.WriteJSON(authFrame)
	}
	if err != nil {
		log.WithError(err).WithFields(m.logTags).Error("Auth handshake failed")
		m.teardown(conn)
		return nil, err
	}

	go m.readPump(conn)
	go m.writePump(conn)

	log.WithFields(m.logTags).Info("Connected")
	m.replayRooms(rooms)
	m.notifyConnect()
	return conn, nil
}

// Disconnect tears down the transport and clears the singleton so a later
// Get dials a fresh connection. Tracked room membership survives and is
// replayed on the next connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.ws.Close()
		close(conn.done)
		m.notifyDisconnect()
		log.WithFields(m.logTags).Info("Disconnected")
	}
}

// Send queues a frame for delivery. Frames queue while the connection is
// down and flush once it comes up.
func (m *Manager) Send(frame shared.Frame) error {
	select {
	case m.send <- frame:
		return nil
	default:
		log.WithFields(m.logTags).WithField("frame", frame.Type).Warn("Outbound queue full, dropping frame")
		return ErrQueueFull
	}
}

// requeue puts a frame back on the outbound queue after a failed write so
// it goes out on the next transport instead of being lost.
func (m *Manager) requeue(frame shared.Frame) {
	select {
	case m.send <- frame:
	default:
		log.WithFields(m.logTags).WithField("frame", frame.Type).Warn("Outbound queue full, dropping frame")
	}
}

// Subscribe registers a handler for one inbound frame type and returns the
// removal func. Handlers run on the read loop goroutine.
func (m *Manager) Subscribe(frameType string, fn func(json.RawMessage)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	id := m.nextSubID
	subs := m.frameSubs[frameType]
	if subs == nil {
		subs = make(map[int64]func(json.RawMessage))
		m.frameSubs[frameType] = subs
	}
	subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.frameSubs[frameType], id)
	}
}

// OnConnect registers a callback fired after every successful dial,
// including reconnects. Returns the removal func.
func (m *Manager) OnConnect(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	id := m.nextSubID
	m.connectSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.connectSubs, id)
	}
}

// OnDisconnect registers a callback fired when the transport drops.
func (m *Manager) OnDisconnect(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	id := m.nextSubID
	m.disconnectSub[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.disconnectSub, id)
	}
}

// Rooms returns the event rooms this connection is a member of.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	return out
}

func (m *Manager) notifyConnect() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.connectSubs))
	for _, fn := range m.connectSubs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (m *Manager) notifyDisconnect() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.disconnectSub))
	for _, fn := range m.disconnectSub {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// replayRooms re-joins every room tracked before the transport dropped.
// Each replay runs the full correlated join, so a denial after reconnect
// drops the room from the membership set instead of going stale.
func (m *Manager) replayRooms(rooms []string) {
	for _, eventID := range rooms {
		go m.replayJoin(eventID)
	}
}

func (m *Manager) replayJoin(eventID string) {
	err := m.JoinEvent(context.Background(), eventID)
	switch {
	case err == nil:
		log.WithFields(m.logTags).WithField("event_id", eventID).Info("Replayed room join")
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrQueueFull), errors.Is(err, ErrClosed):
		// No verdict from the backend; keep the room for the next replay.
		log.WithError(err).WithFields(m.logTags).WithField("event_id", eventID).
			Warn("Room replay unconfirmed")
	default:
		log.WithError(err).WithFields(m.logTags).WithField("event_id", eventID).
			Warn("Room replay rejected, dropping membership")
		m.mu.Lock()
		delete(m.rooms, eventID)
		m.mu.Unlock()
	}
}

// dispatch hands an inbound frame to every subscriber of its type.
func (m *Manager) dispatch(frame shared.Frame) {
	m.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(m.frameSubs[frame.Type]))
	for _, fn := range m.frameSubs[frame.Type] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(frame.Data)
	}
}

// teardown closes a dead transport and, unless the drop was requested via
// Disconnect, starts the bounded reconnect loop.
func (m *Manager) teardown(conn *Conn) {
	m.mu.Lock()
	if m.conn != conn {
		// Already torn down (Disconnect won the race).
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	_ = conn.ws.Close()
	close(conn.done)
	m.notifyDisconnect()
	m.maybeReconnect()
}

// maybeReconnect starts the bounded reconnect loop unless a Disconnect is
// in progress or a loop is already running. Both failure paths funnel
// through here: a dial that never connected and a transport that dropped.
func (m *Manager) maybeReconnect() {
	m.mu.Lock()
	if m.closing || m.reconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnecting = true
	m.mu.Unlock()
	go m.reconnectLoop()
}

// reconnectLoop retries with exponential backoff until the transport comes
// back or attempts run out. Once exhausted the connection stays down until
// a caller explicitly reinitializes.
func (m *Manager) reconnectLoop() {
	defer func() {
		m.mu.Lock()
		m.reconnecting = false
		m.mu.Unlock()
	}()

	delay := m.cfg.Reconnect.InitialDelay
	for attempt := 1; attempt <= m.cfg.Reconnect.MaxAttempts; attempt++ {
		time.Sleep(delay)

		m.mu.Lock()
		closing := m.closing
		m.mu.Unlock()
		if closing {
			return
		}

		log.WithFields(m.logTags).WithField("attempt", attempt).Info("Reconnecting")
		if _, err := m.Initialize(); err == nil {
			return
		}

		delay *= 2
		if delay > m.cfg.Reconnect.MaxDelay {
			delay = m.cfg.Reconnect.MaxDelay
		}
	}
	log.WithFields(m.logTags).WithField("attempts", m.cfg.Reconnect.MaxAttempts).
		Error("Reconnect attempts exhausted")
}
