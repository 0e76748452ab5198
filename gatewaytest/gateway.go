// Package gatewaytest is an in-process double of the realtime gateway for
// tests: it speaks the real wire protocol over a live websocket and offers
// scriptable join/query behavior plus broadcast helpers.
package gatewaytest

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"seatsync/shared"
)

type client struct {
	id   string
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *client) write(frame shared.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(frame)
}

// Gateway is the scriptable realtime gateway double.
type Gateway struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	clients     map[string]*client
	rooms       map[string]map[string]*client
	seats       map[string][]shared.Seat
	denyJoin    map[string]string
	ignoreJoins bool
	ignoreQuery bool
	received    []shared.Frame
	auths       []shared.ConnectAuth
}

// New starts the gateway on an ephemeral port.
func New() *Gateway {
	g := newGateway()
	g.srv = httptest.NewServer(http.HandlerFunc(g.handleWebSocket))
	return g
}

// NewAt starts the gateway on a specific host:port, for tests that bring
// the backend up only after a client has already tried to dial it.
func NewAt(addr string) (*Gateway, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	g := newGateway()
	g.srv = httptest.NewUnstartedServer(http.HandlerFunc(g.handleWebSocket))
	g.srv.Listener.Close()
	g.srv.Listener = listener
	g.srv.Start()
	return g, nil
}

func newGateway() *Gateway {
	return &Gateway{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*client),
		rooms:    make(map[string]map[string]*client),
		seats:    make(map[string][]shared.Seat),
		denyJoin: make(map[string]string),
	}
}

// URL returns the websocket endpoint.
func (g *Gateway) URL() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

// Close shuts the gateway down.
func (g *Gateway) Close() {
	g.mu.Lock()
	for _, c := range g.clients {
		_ = c.conn.Close()
	}
	g.mu.Unlock()
	g.srv.Close()
}

// DropClients force-closes every live connection, simulating a transport
// failure, without stopping the server.
func (g *Gateway) DropClients() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, c := range g.clients {
		_ = c.conn.Close()
		delete(g.clients, id)
	}
	for _, room := range g.rooms {
		for id := range room {
			delete(room, id)
		}
	}
}

// SeedSeats installs the seat table answered by status queries.
func (g *Gateway) SeedSeats(eventID string, seats []shared.Seat) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seats[eventID] = seats
}

// DenyJoin makes joins for eventID fail with message.
func (g *Gateway) DenyJoin(eventID, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.denyJoin[eventID] = message
}

// IgnoreJoins silently drops join requests so timeouts can be exercised.
func (g *Gateway) IgnoreJoins(ignore bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ignoreJoins = ignore
}

// IgnoreQueries silently drops seat-status requests.
func (g *Gateway) IgnoreQueries(ignore bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ignoreQuery = ignore
}

// Received returns every frame the gateway has read, in arrival order.
func (g *Gateway) Received() []shared.Frame {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]shared.Frame, len(g.received))
	copy(out, g.received)
	return out
}

// ReceivedOfType filters Received by frame type.
func (g *Gateway) ReceivedOfType(frameType string) []shared.Frame {
	var out []shared.Frame
	for _, f := range g.Received() {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

// Auths returns the CONNECT payloads seen so far.
func (g *Gateway) Auths() []shared.ConnectAuth {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]shared.ConnectAuth, len(g.auths))
	copy(out, g.auths)
	return out
}

// RoomSize returns the current member count of an event room.
func (g *Gateway) RoomSize(eventID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms[eventID])
}

// Broadcast sends a frame to every member of eventID's room.
func (g *Gateway) Broadcast(eventID string, frameType string, payload interface{}) {
	frame, err := shared.NewFrame(frameType, payload)
	if err != nil {
		return
	}
	g.mu.Lock()
	members := make([]*client, 0, len(g.rooms[eventID]))
	for _, c := range g.rooms[eventID] {
		members = append(members, c)
	}
	g.mu.Unlock()
	for _, c := range members {
		_ = c.write(frame)
	}
}

// BroadcastToAll sends a frame to every connected client regardless of
// room membership, for testing the event-id filter.
func (g *Gateway) BroadcastToAll(frameType string, payload interface{}) {
	frame, err := shared.NewFrame(frameType, payload)
	if err != nil {
		return
	}
	g.mu.Lock()
	all := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		all = append(all, c)
	}
	g.mu.Unlock()
	for _, c := range all {
		_ = c.write(frame)
	}
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{id: uuid.NewString(), conn: conn}

	g.mu.Lock()
	g.clients[c.id] = c
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.clients, c.id)
		for _, room := range g.rooms {
			delete(room, c.id)
		}
		g.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var frame shared.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		g.mu.Lock()
		g.received = append(g.received, frame)
		g.mu.Unlock()
		g.handleFrame(c, frame)
	}
}

func (g *Gateway) handleFrame(c *client, frame shared.Frame) {
	switch frame.Type {
	case shared.FrameConnect:
		var auth shared.ConnectAuth
		if err := json.Unmarshal(frame.Data, &auth); err == nil {
			g.mu.Lock()
			g.auths = append(g.auths, auth)
			g.mu.Unlock()
		}

	case shared.FramePing:
		pong, _ := shared.NewFrame(shared.FramePong, nil)
		_ = c.write(pong)

	case shared.FrameJoinEvent:
		var join shared.JoinEvent
		if err := json.Unmarshal(frame.Data, &join); err != nil {
			return
		}
		g.mu.Lock()
		if g.ignoreJoins {
			g.mu.Unlock()
			return
		}
		if msg, denied := g.denyJoin[join.EventID]; denied {
			g.mu.Unlock()
			errFrame, _ := shared.NewFrame(shared.FrameError,
				shared.ErrorPayload{Message: msg, EventID: join.EventID})
			_ = c.write(errFrame)
			return
		}
		room := g.rooms[join.EventID]
		if room == nil {
			room = make(map[string]*client)
			g.rooms[join.EventID] = room
		}
		room[c.id] = c
		count := len(room)
		g.mu.Unlock()

		ack, _ := shared.NewFrame(shared.FrameJoinedEvent, shared.JoinedEvent{EventID: join.EventID})
		_ = c.write(ack)
		g.Broadcast(join.EventID, shared.FrameViewersUpdate,
			shared.ViewersUpdate{EventID: join.EventID, Count: count})

	case shared.FrameLeaveEvent:
		var leave shared.LeaveEvent
		if err := json.Unmarshal(frame.Data, &leave); err != nil {
			return
		}
		g.mu.Lock()
		delete(g.rooms[leave.EventID], c.id)
		count := len(g.rooms[leave.EventID])
		g.mu.Unlock()
		g.Broadcast(leave.EventID, shared.FrameViewersUpdate,
			shared.ViewersUpdate{EventID: leave.EventID, Count: count})

	case shared.FrameRequestSeatStatus:
		var req shared.SeatStatusRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return
		}
		g.mu.Lock()
		if g.ignoreQuery {
			g.mu.Unlock()
			return
		}
		seats := g.seats[req.EventID]
		g.mu.Unlock()

		if len(req.SeatIDs) > 0 {
			wanted := make(map[string]struct{}, len(req.SeatIDs))
			for _, id := range req.SeatIDs {
				wanted[id] = struct{}{}
			}
			filtered := make([]shared.Seat, 0, len(req.SeatIDs))
			for _, seat := range seats {
				if _, ok := wanted[seat.ID]; ok {
					filtered = append(filtered, seat)
				}
			}
			seats = filtered
		}
		resp, _ := shared.NewFrame(shared.FrameSeatStatusResponse,
			shared.SeatStatusResponse{EventID: req.EventID, Seats: seats})
		_ = c.write(resp)
	}
}
