package bus

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func TestMemoryPublishSubscribe(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	a, err := m.Subscribe(ctx, "Monsters")
	require.NoError(t, err)
	b, err := m.Subscribe(ctx, "Monsters")
	require.NoError(t, err)
	other, err := m.Subscribe(ctx, "Other")
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "Monsters", "0 1 2"))
	require.NoError(t, m.Publish(ctx, "Monsters", "WINNER ana"))

	assert.Equal(t, "0 1 2", receive(t, a))
	assert.Equal(t, "WINNER ana", receive(t, a))
	assert.Equal(t, "0 1 2", receive(t, b))
	assert.Empty(t, other)
}

func TestMemoryUnsubscribeOnCancel(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := m.Subscribe(ctx, "Monsters")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Subscribers("Monsters"))

	cancel()
	require.Eventually(t, func() bool { return m.Subscribers("Monsters") == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-ch
	assert.False(t, ok)

	// Publishing with nobody listening is fine.
	assert.NoError(t, m.Publish(context.Background(), "Monsters", "1 1 1"))
}

func TestMemorySlowSubscriberDrops(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	ch, err := m.Subscribe(ctx, "t")
	require.NoError(t, err)
	for i := 0; i < memoryBuffer+10; i++ {
		require.NoError(t, m.Publish(ctx, "t", "x"))
	}
	assert.Len(t, ch, memoryBuffer)
}

func TestMemoryClose(t *testing.T) {
	m := NewMemory()
	ch, err := m.Subscribe(context.Background(), "t")
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.ErrorIs(t, m.Publish(context.Background(), "t", "x"), ErrClosed)
	_, err = m.Subscribe(context.Background(), "t")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenMemory(t *testing.T) {
	b, err := Open(context.Background(), "memory", nil)
	require.NoError(t, err)
	defer b.Close()
	assert.IsType(t, &Memory{}, b)
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:61616/ws", brokerURL("localhost:61616"))
	assert.Equal(t, "ws://broker/ws", brokerURL("broker/"))
	assert.Equal(t, "wss://example.com/mq", brokerURL("wss://example.com/mq"))
}

// TestHubClientRoundTrip runs a real websocket broker and two clients.
func TestHubClientRoundTrip(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	addr := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx := context.Background()
	pub, err := Dial(ctx, addr, nil)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := Dial(ctx, addr, nil)
	require.NoError(t, err)
	defer sub.Close()

	events, err := sub.Subscribe(ctx, "Monsters")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers("Monsters") == 1 }, 2*time.Second, 10*time.Millisecond)

	pctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, pub.Publish(pctx, "Monsters", "0 4 5"))
	require.NoError(t, pub.Publish(pctx, "Monsters", "WINNER bob"))

	assert.Equal(t, "0 4 5", receive(t, events))
	assert.Equal(t, "WINNER bob", receive(t, events))

	// In-process publishing through the hub reaches remote subscribers too.
	require.NoError(t, hub.Publish(ctx, "Monsters", "The game is over!"))
	assert.Equal(t, "The game is over!", receive(t, events))
}

// TestClientRecoversAfterWriteTimeout checks that one timed-out publish
// does not stop later publishes from being delivered.
func TestClientRecoversAfterWriteTimeout(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	addr := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx := context.Background()
	pub, err := Dial(ctx, addr, nil)
	require.NoError(t, err)
	defer pub.Close()
	sub, err := Dial(ctx, addr, nil)
	require.NoError(t, err)
	defer sub.Close()

	events, err := sub.Subscribe(ctx, "Monsters")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers("Monsters") == 1 }, 2*time.Second, 10*time.Millisecond)

	expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancel()
	assert.Error(t, pub.Publish(expired, "Monsters", "0 1 1"))

	delivered := false
	require.Eventually(t, func() bool {
		pctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		if pub.Publish(pctx, "Monsters", "WINNER ana") != nil {
			return false
		}
		select {
		case msg := <-events:
			delivered = msg == "WINNER ana"
		case <-time.After(100 * time.Millisecond):
		}
		return delivered
	}, 10*time.Second, 50*time.Millisecond)
}

func TestClientUnsubscribeAndClose(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	addr := "ws" + strings.TrimPrefix(srv.URL, "http")

	c, err := Dial(context.Background(), addr, nil)
	require.NoError(t, err)

	subCtx, cancel := context.WithCancel(context.Background())
	ch, err := c.Subscribe(subCtx, "Monsters")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers("Monsters") == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return hub.Subscribers("Monsters") == 0 }, 2*time.Second, 10*time.Millisecond)
	_, ok := <-ch
	assert.False(t, ok)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Publish(context.Background(), "Monsters", "x"), ErrClosed)
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := Dial(ctx, "127.0.0.1:1", nil)
	assert.Error(t, err)
}
