package bus

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	hubWriteWait  = 2 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = 25 * time.Second
	hubReadLimit  = 1 << 16
)

// Hub is the broker side of the websocket pub/sub protocol. Mount it on an
// HTTP mux; each connection may subscribe to any number of topics and
// publish to any topic. Hub also satisfies Publisher so a server can embed
// the broker in-process.
type Hub struct {
	topics   map[string]map[*peer]struct{}
	logger   *log.Logger
	upgrader websocket.Upgrader
	mu       sync.RWMutex
}

type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (p *peer) send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
	return p.conn.WriteJSON(v)
}

func (p *peer) ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hubWriteWait))
}

// NewHub creates a hub with no subscribers.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*peer]struct{}),
		logger: orDefault(logger),
		upgrader: websocket.Upgrader{
			// Game clients connect from anywhere; there is no browser origin to check.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade: %v", err)
		return
	}
	p := &peer{conn: conn}
	defer func() {
		h.drop(p)
		conn.Close()
	}()

	conn.SetReadLimit(hubReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(hubPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(hubPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := p.ping(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var action brokerAction
		if err := conn.ReadJSON(&action); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Printf("read: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(hubPongWait))

		switch action.Action {
		case actionSub:
			h.subscribe(action.Topic, p)
		case actionUnsub:
			h.unsubscribe(action.Topic, p)
		case actionPub:
			h.broadcast(action.Topic, action.Data)
		default:
			h.logger.Printf("unknown broker action %q", action.Action)
		}
	}
}

// Publish fans payload out to the topic's subscribers.
func (h *Hub) Publish(ctx context.Context, topic, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.broadcast(topic, payload)
	return nil
}

// Subscribers returns the number of connections following topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) subscribe(topic string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*peer]struct{})
	}
	h.topics[topic][p] = struct{}{}
}

func (h *Hub) unsubscribe(topic string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.topics[topic], p)
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}
}

func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, peers := range h.topics {
		delete(peers, p)
		if len(peers) == 0 {
			delete(h.topics, topic)
		}
	}
}

func (h *Hub) broadcast(topic, payload string) {
	msg := BrokerMessage{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Topic:     topic,
		Data:      payload,
	}

	h.mu.RLock()
	targets := make([]*peer, 0, len(h.topics[topic]))
	for p := range h.topics[topic] {
		targets = append(targets, p)
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if err := p.send(msg); err != nil {
			h.logger.Printf("deliver to subscriber failed, dropping: %v", err)
			h.drop(p)
			p.conn.Close()
		}
	}
}
