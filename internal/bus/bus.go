// Package bus is the publish/subscribe boundary of the game server. The
// server only needs to publish a text payload to a named topic, and clients
// only need a lazy stream of text payloads from one; delivery guarantees are
// whatever the concrete transport provides.
//
// Three implementations are provided:
//   - Memory: in-process fan-out for single-process runs and tests
//   - Client: websocket connection to a broker, reconnecting with backoff
//   - Hub: the broker side of that websocket protocol, also usable in-process
package bus

import (
	"context"
	"errors"
	"log"
	"strings"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// MemoryAddr selects the in-process bus in Open.
const MemoryAddr = "memory"

// Publisher sends a payload to every current subscriber of a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
}

// Subscriber yields payloads published to a topic. The returned channel is
// closed when ctx is done or the bus is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan string, error)
}

// Bus is both ends plus lifecycle.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// Open returns the in-process bus for MemoryAddr and a websocket client for
// anything else.
func Open(ctx context.Context, addr string, logger *log.Logger) (Bus, error) {
	if strings.EqualFold(addr, MemoryAddr) {
		return NewMemory(), nil
	}
	return Dial(ctx, addr, logger)
}

// brokerAction is what clients send to the broker.
type brokerAction struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
	Data   string `json:"data,omitempty"`
}

// BrokerMessage is what the broker delivers to subscribers.
type BrokerMessage struct {
	Timestamp string `json:"timestamp"`
	Topic     string `json:"topic"`
	Data      string `json:"data"`
}

const (
	actionPub   = "pub"
	actionSub   = "sub"
	actionUnsub = "unsub"
)

func orDefault(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.Default()
	}
	return logger
}
