package server

import (
	"context"
	"encoding/json"

	"github.com/zfdang/enclave-lottery-app-sub000/lottery/store"
)

const (
	// hubQueueSize bounds the store notification queue feeding the
	// broadcaster.
	hubQueueSize = 256
	// clientQueueSize bounds each socket's send queue; a client that
	// cannot drain it is dropped rather than backpressuring the hub.
	clientQueueSize = 64
)

// wsMessage is the frame sent to WebSocket clients.
type wsMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// Hub fans store notifications out to connected sockets. Payloads are
// serialized once per notification; network writes run per-client.
type Hub struct {
	ctx        context.Context
	store      *store.Store
	snapshotFn func() interface{}

	register   chan *client
	unregister chan *client
	clients    map[*client]struct{}
}

func newHub(ctx context.Context, st *store.Store, snapshotFn func() interface{}) *Hub {
	return &Hub{
		ctx:        ctx,
		store:      st,
		snapshotFn: snapshotFn,
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]struct{}),
	}
}

// run starts the broadcaster goroutine.
func (h *Hub) run() {
	notifications := make(chan store.Notification, hubQueueSize)
	sub := h.store.SubscribeEvents(notifications)

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-h.ctx.Done():
				for c := range h.clients {
					c.shutdown()
					delete(h.clients, c)
				}
				return
			case c := <-h.register:
				h.clients[c] = struct{}{}
				wsClients.Set(float64(len(h.clients)))
			case c := <-h.unregister:
				if _, ok := h.clients[c]; ok {
					delete(h.clients, c)
					c.close()
					wsClients.Set(float64(len(h.clients)))
				}
			case n := <-notifications:
				h.broadcast(n)
			}
		}
	}()
}

func (h *Hub) broadcast(n store.Notification) {
	frame, err := json.Marshal(wsMessage{
		Type:      n.Type.String(),
		Payload:   n.Payload,
		Timestamp: timestamp(),
	})
	if err != nil {
		log.WithError(err).Error("Could not marshal notification")
		return
	}
	wsMessagesSent.Add(float64(len(h.clients)))
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// Slow consumer: drop it so the rest keep receiving.
			delete(h.clients, c)
			c.close()
			wsClients.Set(float64(len(h.clients)))
		}
	}
}

// snapshotFrame builds the bootstrap message for a fresh connection.
func (h *Hub) snapshotFrame() ([]byte, error) {
	return json.Marshal(wsMessage{Type: "snapshot", Payload: h.snapshotFn()})
}
