package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dreamware/monsters/internal/bus"
	"github.com/dreamware/monsters/internal/ledger"
	"github.com/dreamware/monsters/internal/metrics"
	"github.com/dreamware/monsters/internal/protocol"
	"github.com/dreamware/monsters/internal/results"
)

// Notifier receives direct notifications for one open registration
// connection.
type Notifier interface {
	Notify(line string) error
}

// Options configures a Game.
type Options struct {
	// Publisher carries spawn, winner and game-over events. Required.
	Publisher bus.Publisher

	// Metrics enables latency collection when non-nil.
	Metrics *metrics.Collector

	// Results receives one row per won round when Metrics is set.
	Results results.Store

	Logger *log.Logger

	// Intn returns a uniform int in [0, n). Defaults to math/rand/v2.IntN.
	Intn func(n int) int

	// Now defaults to time.Now.
	Now func() time.Time

	Topic string

	// Threshold is the score that wins a round.
	Threshold int

	// RoundLimit stops the game after that many won rounds; 0 means never.
	RoundLimit int

	// ExpectedClients is the denominator of the success rate; 0 reports 100%.
	ExpectedClients int

	FieldWidth  int
	FieldHeight int

	// PublishTimeout bounds each publish. Zero means 500ms.
	PublishTimeout time.Duration
}

// HitResult describes what happened to one hit report.
type HitResult struct {
	Score    int64
	Accepted bool // false when the round was not running
	Won      bool // true for the single hit that claimed the round
}

// Status is a point-in-time view for diagnostics.
type Status struct {
	State      string `json:"state"`
	LastWinner string `json:"last_winner,omitempty"`
	Round      int64  `json:"round"`
	Spawns     int64  `json:"spawns"`
	Completed  int64  `json:"completed"`
	Threshold  int    `json:"threshold"`
	RoundLimit int    `json:"round_limit"`
	Players    int    `json:"players"`
	Sessions   int    `json:"sessions"`
}

// Game coordinates one sequence of rounds.
// Thread-safe: all methods are safe for concurrent access.
type Game struct {
	notifiers  map[string]Notifier
	ledger     *ledger.Ledger
	round      *Round
	done       chan struct{}
	logger     *log.Logger
	lastWinner string
	opts       Options
	gate       sync.RWMutex // round boundary, see package docs
	nmu        sync.Mutex   // protects notifiers and lastWinner
}

// New validates opts and returns a game in its first running round.
func New(opts Options) (*Game, error) {
	if opts.Publisher == nil {
		return nil, errors.New("game: publisher is required")
	}
	if opts.Threshold <= 0 {
		return nil, fmt.Errorf("game: threshold must be > 0, got %d", opts.Threshold)
	}
	if opts.FieldWidth <= 0 || opts.FieldHeight <= 0 {
		return nil, fmt.Errorf("game: field must be positive, got %dx%d", opts.FieldWidth, opts.FieldHeight)
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Intn == nil {
		opts.Intn = rand.IntN
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 500 * time.Millisecond
	}

	return &Game{
		notifiers: make(map[string]Notifier),
		ledger:    ledger.New(),
		round:     newRound(),
		done:      make(chan struct{}),
		logger:    opts.Logger,
		opts:      opts,
	}, nil
}

// Ledger exposes the score ledger for read-only use (snapshots).
func (g *Game) Ledger() *ledger.Ledger { return g.ledger }

// Round exposes the round cell for read-only use.
func (g *Game) Round() *Round { return g.round }

// Metrics returns the collector, or nil when metrics are disabled.
func (g *Game) Metrics() *metrics.Collector { return g.opts.Metrics }

// Results returns the results store, or nil.
func (g *Game) Results() results.Store { return g.opts.Results }

// Topic is the broadcast topic clients subscribe to.
func (g *Game) Topic() string { return g.opts.Topic }

// Done is closed when the game terminates.
func (g *Game) Done() <-chan struct{} { return g.done }

// Register looks up or creates the player and returns their current score.
func (g *Game) Register(name string) (int64, error) {
	return g.ledger.Register(name)
}

// RecordRegistration stores a registration latency sample for the current
// round.
func (g *Game) RecordRegistration(d time.Duration) {
	if g.opts.Metrics == nil {
		return
	}
	g.gate.RLock()
	defer g.gate.RUnlock()
	g.opts.Metrics.RecordRegistration(d)
}

// Attach registers an open connection for direct winner notifications.
func (g *Game) Attach(id string, n Notifier) {
	g.nmu.Lock()
	defer g.nmu.Unlock()
	g.notifiers[id] = n
}

// Detach removes a connection added with Attach.
func (g *Game) Detach(id string) {
	g.nmu.Lock()
	defer g.nmu.Unlock()
	delete(g.notifiers, id)
}

// Hit applies one hit report from name. Reports that arrive while the round
// is not running are ignored. The hit whose increment reaches the threshold
// and wins the claim closes the round before Hit returns.
func (g *Game) Hit(name string, rep protocol.Report) (HitResult, error) {
	g.gate.RLock()
	if g.round.State() != StateRunning {
		g.gate.RUnlock()
		return HitResult{}, nil
	}

	score, err := g.ledger.IncrementAndGet(name)
	if err != nil {
		g.gate.RUnlock()
		return HitResult{}, err
	}

	var reaction time.Duration
	if g.opts.Metrics != nil {
		reaction = g.opts.Now().Sub(time.UnixMilli(rep.Timestamp))
		g.opts.Metrics.RecordReaction(reaction)
	}

	won := score >= int64(g.opts.Threshold) && g.round.Claim()
	g.gate.RUnlock()

	if g.opts.Metrics != nil {
		g.logger.Printf("%s hit a monster. Score: %d | Reaction time: %dms", name, score, reaction.Milliseconds())
	} else {
		g.logger.Printf("%s hit a monster. Score: %d", name, score)
	}

	if won {
		g.finishRound(name)
	}
	return HitResult{Score: score, Accepted: true, Won: won}, nil
}

// finishRound runs once per round, by the session that won the claim.
func (g *Game) finishRound(winner string) {
	g.logger.Printf("%s won the game!", winner)
	g.publish(protocol.WinnerLine(winner))
	g.notifyAll(protocol.WinnerLine(winner))

	g.nmu.Lock()
	g.lastWinner = winner
	g.nmu.Unlock()

	// Wait for every hit that was already in flight, then close the round.
	g.gate.Lock()
	defer g.gate.Unlock()

	completed := g.round.completed.Add(1)
	if g.opts.Metrics != nil {
		g.persist(int(completed), winner)
	}

	if g.opts.RoundLimit > 0 && completed >= int64(g.opts.RoundLimit) {
		g.round.set(StateTerminated)
		g.logger.Printf("completed %d rounds, game over", completed)
		g.publish(protocol.GameOver)
		close(g.done)
		return
	}

	g.round.advance()
	g.ledger.Reset()
	if g.opts.Metrics != nil {
		g.opts.Metrics.Reset()
	}
	g.round.set(StateRunning)
	g.logger.Printf("restarting game, round %d", g.round.Seq())
}

func (g *Game) persist(gameID int, winner string) {
	sum := g.opts.Metrics.Snapshot().Summarize(g.opts.ExpectedClients)
	row := results.Row{
		GameID:          gameID,
		Winner:          winner,
		NumClients:      sum.NumClients,
		AvgReaction:     sum.Reaction.MeanMillis,
		StdReaction:     sum.Reaction.StdDevMillis,
		AvgRegistration: sum.Registration.MeanMillis,
		StdRegistration: sum.Registration.StdDevMillis,
		SuccessRate:     sum.SuccessRate,
	}
	if g.opts.Results == nil {
		g.logger.Printf("round %d metrics (not persisted): %+v", gameID, row)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.opts.Results.Append(ctx, row); err != nil {
		g.logger.Printf("failed to save results for round %d: %v", gameID, err)
		return
	}
	g.logger.Printf("results saved for round %d", gameID)
}

// Spawn publishes one spawn event if the round is running. It reports
// whether an event was produced; a publish error still consumes the id.
func (g *Game) Spawn(ctx context.Context) (protocol.Spawn, bool, error) {
	g.gate.RLock()
	defer g.gate.RUnlock()
	if g.round.State() != StateRunning {
		return protocol.Spawn{}, false, nil
	}

	s := protocol.Spawn{
		ID: g.round.nextSpawnID(),
		X:  g.opts.Intn(g.opts.FieldWidth),
		Y:  g.opts.Intn(g.opts.FieldHeight),
	}
	pctx, cancel := context.WithTimeout(ctx, g.opts.PublishTimeout)
	defer cancel()
	if err := g.opts.Publisher.Publish(pctx, g.opts.Topic, s.String()); err != nil {
		return s, true, fmt.Errorf("publish spawn %d: %w", s.ID, err)
	}
	return s, true, nil
}

// Status returns a diagnostic view of the game.
func (g *Game) Status() Status {
	g.nmu.Lock()
	winner := g.lastWinner
	sessions := len(g.notifiers)
	g.nmu.Unlock()

	return Status{
		State:      g.round.State().String(),
		LastWinner: winner,
		Round:      g.round.Seq(),
		Spawns:     g.round.Spawns(),
		Completed:  g.round.Completed(),
		Threshold:  g.opts.Threshold,
		RoundLimit: g.opts.RoundLimit,
		Players:    g.ledger.Len(),
		Sessions:   sessions,
	}
}

func (g *Game) publish(payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), g.opts.PublishTimeout)
	defer cancel()
	if err := g.opts.Publisher.Publish(ctx, g.opts.Topic, payload); err != nil {
		g.logger.Printf("publish %q failed: %v", payload, err)
	}
}

func (g *Game) notifyAll(line string) {
	g.nmu.Lock()
	targets := make(map[string]Notifier, len(g.notifiers))
	for id, n := range g.notifiers {
		targets[id] = n
	}
	g.nmu.Unlock()

	var wg sync.WaitGroup
	for id, n := range targets {
		wg.Add(1)
		go func(id string, n Notifier) {
			defer wg.Done()
			if err := n.Notify(line); err != nil {
				g.logger.Printf("notify session %s failed: %v", id, err)
			}
		}(id, n)
	}
	wg.Wait()
}
