package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

const (
	// defaultWriteTimeout bounds a write when the caller's context has no
	// deadline.
	defaultWriteTimeout = 2 * time.Second

	// dialTimeout bounds the initial connection attempts in Dial.
	dialTimeout = 10 * time.Second

	clientBuffer = 256
)

// Client is a websocket connection to a broker speaking the pub/sub action
// protocol served by Hub. It reconnects with exponential backoff after an
// unexpected close and re-subscribes every topic it was following.
type Client struct {
	subs   map[string]map[chan string]struct{} // topic -> subscriber channels
	conn   *websocket.Conn
	logger *log.Logger
	ctx    context.Context    // lifetime of the client
	cancel context.CancelFunc // cancels ctx on Close
	url    string
	mu     sync.Mutex // protects conn, subs, closed
	wmu    sync.Mutex // serializes writes on conn
	wg     sync.WaitGroup
	closed bool
}

// Dial connects to the broker at addr. addr may be a full ws:// or wss://
// URL or a bare host:port, in which case ws://host:port/ws is used.
func Dial(ctx context.Context, addr string, logger *log.Logger) (*Client, error) {
	lifetime, cancel := context.WithCancel(context.Background())
	c := &Client{
		subs:   make(map[string]map[chan string]struct{}),
		logger: orDefault(logger),
		ctx:    lifetime,
		cancel: cancel,
		url:    brokerURL(addr),
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = dialTimeout
	err := backoff.Retry(func() error {
		return c.connect(ctx)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("cannot connect to broker %s: %w", c.url, err)
	}

	c.wg.Add(1)
	go c.listen()
	return c, nil
}

func brokerURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + strings.TrimSuffix(addr, "/") + "/ws"
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return backoff.Permanent(ErrClosed)
	}
	c.conn = conn
	return nil
}

// Publish sends payload to topic. The write is bounded by ctx's deadline,
// or by a short default if it has none.
func (c *Client) Publish(ctx context.Context, topic, payload string) error {
	if err := c.write(ctx, brokerAction{Action: actionPub, Topic: topic, Data: payload}); err != nil {
		return fmt.Errorf("cannot publish to broker (%s): %w", topic, err)
	}
	return nil
}

// Subscribe starts following topic. The channel is closed when ctx is done
// or the client is closed. Events are dropped for a subscriber that falls
// behind.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan string, error) {
	ch := make(chan string, clientBuffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	first := len(c.subs[topic]) == 0
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[chan string]struct{})
	}
	c.subs[topic][ch] = struct{}{}
	c.mu.Unlock()

	if first {
		if err := c.write(ctx, brokerAction{Action: actionSub, Topic: topic}); err != nil {
			c.unsubscribe(topic, ch)
			return nil, fmt.Errorf("cannot subscribe to broker (%s): %w", topic, err)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			c.unsubscribe(topic, ch)
		case <-c.ctx.Done():
		}
	}()
	return ch, nil
}

func (c *Client) unsubscribe(topic string, ch chan string) {
	c.mu.Lock()
	if _, ok := c.subs[topic][ch]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs[topic], ch)
	close(ch)
	last := len(c.subs[topic]) == 0
	if last {
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	if last {
		ctx, cancel := context.WithTimeout(c.ctx, defaultWriteTimeout)
		defer cancel()
		_ = c.write(ctx, brokerAction{Action: actionUnsub, Topic: topic})
	}
}

func (c *Client) write(ctx context.Context, action brokerAction) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	conn := c.conn
	c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	c.wmu.Lock()
	err := conn.SetWriteDeadline(deadline)
	if err == nil {
		err = conn.WriteJSON(action)
	}
	c.wmu.Unlock()
	if err != nil {
		c.drop(conn)
	}
	return err
}

// drop closes conn after a failed write. A websocket whose write timed out
// is unusable for further writes; closing it makes listen see a read error
// and redial.
func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	current := c.conn == conn && !c.closed
	c.mu.Unlock()
	if current {
		c.logger.Printf("dropping broker connection after write failure")
		_ = conn.Close()
	}
}

// listen reads deliveries until the client is closed, reconnecting after
// connection failures.
func (c *Client) listen() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Printf("broker connection lost: %v", err)
			if !c.reconnect() {
				return
			}
			continue
		}

		var msg BrokerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Printf("received invalid broker message: %v", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg BrokerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs[msg.Topic] {
		select {
		case ch <- msg.Data:
		default:
		}
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// client is closed, then re-subscribes every followed topic.
func (c *Client) reconnect() bool {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // retry until closed
	err := backoff.Retry(func() error {
		if err := c.connect(c.ctx); err != nil {
			c.logger.Printf("broker reconnect failed: %v", err)
			return err
		}
		return nil
	}, backoff.WithContext(b, c.ctx))
	if err != nil {
		return false
	}

	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	for _, topic := range topics {
		ctx, cancel := context.WithTimeout(c.ctx, defaultWriteTimeout)
		if err := c.write(ctx, brokerAction{Action: actionSub, Topic: topic}); err != nil {
			c.logger.Printf("re-subscribe to %s failed: %v", topic, err)
		}
		cancel()
	}
	c.logger.Printf("reconnected to broker %s (%d topics)", c.url, len(topics))
	return true
}

// Close shuts the connection and closes all subscriber channels.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	for topic, chans := range c.subs {
		for ch := range chans {
			close(ch)
		}
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	c.cancel()

	c.wmu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()

	err := conn.Close()
	c.wg.Wait()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}
