package game

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dreamware/monsters/internal/protocol"
)

// Pause bounds for continuous mode after a tick that published nothing.
const (
	idleInitial = 5 * time.Millisecond
	idleMax     = 250 * time.Millisecond
)

// Spawner is the part of Game the broadcaster drives.
type Spawner interface {
	Spawn(ctx context.Context) (protocol.Spawn, bool, error)
	Done() <-chan struct{}
}

// Broadcaster publishes a monster spawn on every tick until the game
// terminates or it is stopped.
// Thread-safe: Start and Stop may be called from different goroutines.
type Broadcaster struct {
	spawner  Spawner
	logger   *log.Logger
	ctx      context.Context    // internal cancellation
	cancel   context.CancelFunc // cancels ctx
	interval time.Duration      // time between spawns; <= 0 spawns back to back
	wg       sync.WaitGroup
}

// NewBroadcaster creates a broadcaster that calls s.Spawn every interval.
//
// Parameters:
//   - s: The game (or anything with Spawn and Done)
//   - interval: Time between spawns. Zero or negative spawns continuously,
//     which is how the stress mode runs.
//   - logger: Destination for log lines; nil uses log.Default()
//
// Example:
//
//	b := game.NewBroadcaster(g, time.Second, logger)
//	go b.Start(ctx)
//	defer b.Stop()
func NewBroadcaster(s Spawner, interval time.Duration, logger *log.Logger) *Broadcaster {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		spawner:  s,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
	}
}

// Start runs the spawn loop in the current goroutine. The first spawn
// happens immediately. It returns when ctx is canceled, Stop is called or
// the game terminates.
//
// In continuous mode (interval <= 0) a tick that publishes nothing, because
// the publish failed or the round is closing, is followed by an exponential
// pause that resets on the next successful spawn.
func (b *Broadcaster) Start(ctx context.Context) {
	b.wg.Add(1)
	defer b.wg.Done()

	if ctx == nil {
		ctx = b.ctx
	}
	if ctx.Err() != nil || b.ctx.Err() != nil {
		return
	}

	b.logger.Printf("spawn broadcaster started with interval %v", b.interval)
	defer b.logger.Println("spawn broadcaster stopped")

	if b.interval <= 0 {
		b.runContinuous(ctx)
		return
	}

	b.Tick(ctx)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Tick(ctx)
		case <-ctx.Done():
			return
		case <-b.ctx.Done():
			return
		case <-b.spawner.Done():
			return
		}
	}
}

func (b *Broadcaster) runContinuous(ctx context.Context) {
	pause := backoff.NewExponentialBackOff()
	pause.InitialInterval = idleInitial
	pause.MaxInterval = idleMax
	pause.MaxElapsedTime = 0
	pause.Reset()

	var delay time.Duration
	for b.wait(ctx, delay) {
		if b.Tick(ctx) {
			pause.Reset()
			delay = 0
		} else {
			delay = pause.NextBackOff()
		}
	}
}

// wait sleeps for d, or only polls for cancellation when d is zero. It
// reports whether the loop should go on.
func (b *Broadcaster) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-b.ctx.Done():
			return false
		case <-b.spawner.Done():
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-b.ctx.Done():
		return false
	case <-b.spawner.Done():
		return false
	}
}

// Tick performs one spawn and reports whether an event was published.
// Publish failures are logged and the loop goes on.
func (b *Broadcaster) Tick(ctx context.Context) bool {
	s, ok, err := b.spawner.Spawn(ctx)
	switch {
	case err != nil:
		b.logger.Printf("spawn failed: %v", err)
		return false
	case ok && b.interval > 0:
		b.logger.Printf("monster %d spawned at (%d, %d)", s.ID, s.X, s.Y)
	}
	return ok
}

// Stop cancels the loop and waits for it to return.
func (b *Broadcaster) Stop() {
	b.cancel()
	b.wg.Wait()
}
