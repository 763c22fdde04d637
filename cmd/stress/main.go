// Command stress simulates many players against a running server. Each
// player registers, prints how long registration took, then reports hits
// at random intervals until a winner is announced.
//
// Usage:
//
//	stress [-server host:port] [-clients n] [-max-pause d]
//
// Defaults come from STRESS_SERVER (localhost:5000) and STRESS_CLIENTS (500).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/monsters/internal/client"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

type options struct {
	server   string
	clients  int
	maxPause time.Duration
	timeout  time.Duration
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		logFatal("args: %v", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stdout, "[stress] ", log.LstdFlags)
	sum, err := simulate(ctx, opts, logger)
	if err != nil {
		logFatal("stress: %v", err)
		return
	}
	logger.Printf("%d/%d players registered, winner %q", sum.registered, opts.clients, sum.winner)
}

func parseArgs(argv []string, output io.Writer) (options, error) {
	clients, err := strconv.Atoi(getenv("STRESS_CLIENTS", "500"))
	if err != nil {
		return options{}, fmt.Errorf("STRESS_CLIENTS: %w", err)
	}

	fs := flag.NewFlagSet("stress", flag.ContinueOnError)
	fs.SetOutput(output)
	opts := options{}
	fs.StringVar(&opts.server, "server", getenv("STRESS_SERVER", "localhost:5000"), "registration address")
	fs.IntVar(&opts.clients, "clients", clients, "number of simulated players")
	fs.DurationVar(&opts.maxPause, "max-pause", 500*time.Millisecond, "upper bound of the random pause between hits")
	fs.DurationVar(&opts.timeout, "handshake-timeout", 30*time.Second, "per-player handshake timeout")
	if err := fs.Parse(argv); err != nil {
		return options{}, err
	}
	if opts.clients <= 0 {
		return options{}, fmt.Errorf("clients must be > 0, got %d", opts.clients)
	}
	return opts, nil
}

type summary struct {
	winner     string
	registered int
}

// simulate runs opts.clients players concurrently and returns once every
// player has seen a winner, failed or been canceled.
func simulate(ctx context.Context, opts options, logger *log.Logger) (summary, error) {
	var (
		registered atomic.Int32
		winner     atomic.Value
	)

	grp, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.clients; i++ {
		name := fmt.Sprintf("Player_%d", i)
		grp.Go(func() error {
			w, err := play(gctx, opts, name, logger, &registered)
			if err != nil {
				logger.Printf("%s: %v", name, err)
				return nil
			}
			winner.CompareAndSwap(nil, w)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return summary{}, err
	}

	sum := summary{registered: int(registered.Load())}
	if w, ok := winner.Load().(string); ok {
		sum.winner = w
	}
	if sum.registered == 0 {
		return sum, errors.New("no player could register")
	}
	return sum, nil
}

// play is one simulated player.
func play(ctx context.Context, opts options, name string, logger *log.Logger, registered *atomic.Int32) (string, error) {
	start := time.Now()
	hctx, cancel := context.WithTimeout(ctx, opts.timeout)
	p, err := client.Join(hctx, opts.server, name)
	cancel()
	if err != nil {
		return "", err
	}
	defer p.Close()
	registered.Add(1)
	logger.Printf("%s registration time: %dms", name, time.Since(start).Milliseconds())

	pctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		for {
			var pause time.Duration
			if opts.maxPause > 0 {
				pause = rand.N(opts.maxPause)
			}
			select {
			case <-pctx.Done():
				return
			case <-time.After(pause):
			}
			if err := p.Hit(time.Now()); err != nil {
				return
			}
		}
	}()

	w, err := p.WaitWinner(ctx)
	if err != nil {
		return "", err
	}
	stop()
	_ = p.Exit()
	return w, nil
}

// getenv returns $k, or def when it is unset or empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
