package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zfdang/enclave-lottery-app-sub000/lottery/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxMessageSize = 512
)

// snapshotPayload is the bootstrap sent once per connection.
type snapshotPayload struct {
	Round          store.RoundPayload         `json:"round"`
	Participants   []store.ParticipantPayload `json:"participants"`
	History        []store.HistoryItemPayload `json:"history"`
	LiveFeed       []store.FeedItemPayload    `json:"live_feed"`
	OperatorStatus interface{}                `json:"operator_status"`
	ContractConfig *store.ConfigPayload       `json:"contract_config"`
}

func (s *Service) snapshot() interface{} {
	return snapshotPayload{
		Round:          store.SerializeRound(s.cfg.Store.CurrentRound()),
		Participants:   store.SerializeParticipants(s.cfg.Store.Participants()),
		History:        store.SerializeHistory(s.cfg.Store.History(10)),
		LiveFeed:       store.SerializeFeed(s.cfg.Store.LiveFeed(20)),
		OperatorStatus: s.cfg.Operator.GetStatus(),
		ContractConfig: store.SerializeConfig(s.cfg.Store.ContractConfig()),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS middleware for the REST
	// surface; the socket accepts any origin because every payload is
	// public read-only state.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// client is one connected socket.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	c := &client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, clientQueueSize),
		done: make(chan struct{}),
	}

	// The snapshot goes first, before any change frame can be queued.
	frame, err := s.hub.snapshotFrame()
	if err != nil {
		log.WithError(err).Error("Could not build snapshot")
		_ = conn.Close()
		return
	}
	c.send <- frame

	s.hub.register <- c
	go c.writePump()
	go c.readPump()
}

// writePump owns all writes to the socket.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(writeWait)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)
			return
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.unregister()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.unregister()
				return
			}
		}
	}
}

// readPump drains and discards client frames; they are keep-alives only.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.unregister()
			return
		}
	}
}

func (c *client) unregister() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.ctx.Done():
	}
}

// close stops the write pump. Only the hub goroutine calls it.
func (c *client) close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// shutdown closes a client during hub teardown.
func (c *client) shutdown() {
	c.close()
}
