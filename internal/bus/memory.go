package bus

import (
	"context"
	"sync"
)

// memoryBuffer bounds each subscriber's backlog. A subscriber that falls
// further behind misses events.
const memoryBuffer = 256

// Memory is an in-process pub/sub keyed by topic.
type Memory struct {
	subs   map[string]map[chan string]struct{}
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{
		subs: make(map[string]map[chan string]struct{}),
		done: make(chan struct{}),
	}
}

// Publish delivers payload to every subscriber of topic without blocking.
func (m *Memory) Publish(ctx context.Context, topic, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	for ch := range m.subs[topic] {
		select {
		case ch <- payload:
		default:
			// Drop if subscriber is slow.
		}
	}
	return nil
}

// Subscribe registers a new subscriber for topic.
func (m *Memory) Subscribe(ctx context.Context, topic string) (<-chan string, error) {
	ch := make(chan string, memoryBuffer)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.subs[topic] == nil {
		m.subs[topic] = make(map[chan string]struct{})
	}
	m.subs[topic][ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			m.unsubscribe(topic, ch)
		case <-m.done:
		}
	}()
	return ch, nil
}

// Subscribers returns the number of live subscribers on topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[topic])
}

func (m *Memory) unsubscribe(topic string, ch chan string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[topic][ch]; !ok {
		return
	}
	delete(m.subs[topic], ch)
	if len(m.subs[topic]) == 0 {
		delete(m.subs, topic)
	}
	close(ch)
}

// Close closes every subscriber channel. Further calls return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	for topic, chans := range m.subs {
		for ch := range chans {
			close(ch)
		}
		delete(m.subs, topic)
	}
	return nil
}
