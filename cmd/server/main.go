// Command server runs the game coordination server.
//
// Usage:
//
//	server [-mode interactive|stress] [expectedClients]
//
// All other settings come from GAME_* environment variables, optionally
// loaded from a .env file (see internal/config). The positional argument
// overrides GAME_EXPECTED_CLIENTS; it is only meaningful in stress mode.
//
// Exit codes:
//   - 0: Normal shutdown via signal, or the round limit was reached
//   - 1: Invalid configuration
//   - 1: Registration port or bus unavailable at startup
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/monsters/internal/admin"
	"github.com/dreamware/monsters/internal/bus"
	"github.com/dreamware/monsters/internal/config"
	"github.com/dreamware/monsters/internal/game"
	"github.com/dreamware/monsters/internal/metrics"
	"github.com/dreamware/monsters/internal/registrar"
	"github.com/dreamware/monsters/internal/results"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	args, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		logFatal("args: %v", err)
		return
	}
	cfg, err := config.LoadMode(args.mode)
	if err != nil {
		logFatal("config: %v", err)
		return
	}
	if args.expected >= 0 {
		cfg.ExpectedClients = args.expected
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logFatal("listen %s: %v", cfg.ListenAddr, err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, ln); err != nil {
		logFatal("server: %v", err)
		return
	}
	log.Println("server stopped")
}

// cliArgs is the parsed command line. expected is -1 when not given.
type cliArgs struct {
	mode     string
	expected int
}

// parseArgs reads -mode and the optional expected-client count. A bad count
// is logged and ignored so the configured value stays in effect.
func parseArgs(argv []string, output io.Writer) (cliArgs, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(output)
	mode := fs.String("mode", "", "run mode: interactive or stress (overrides GAME_MODE)")
	if err := fs.Parse(argv); err != nil {
		return cliArgs{}, err
	}

	out := cliArgs{mode: *mode, expected: -1}
	if fs.NArg() > 0 {
		n, err := strconv.Atoi(fs.Arg(0))
		if err != nil || n < 0 {
			log.Printf("ignoring invalid expected client count %q", fs.Arg(0))
		} else {
			out.expected = n
		}
	}
	return out, nil
}

func newLogger(component string) *log.Logger {
	return log.New(os.Stdout, "["+component+"] ", log.LstdFlags)
}

// run serves the game on ln until ctx is canceled or the game terminates.
func run(ctx context.Context, cfg config.Config, ln net.Listener) error {
	logger := newLogger("server")
	logger.Printf("starting %s (mode %s, threshold %d, interval %v)", cfg.GameName, cfg.Mode, cfg.WinThreshold, cfg.SpawnInterval)

	b, err := bus.Open(ctx, cfg.BusAddr, newLogger("bus"))
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("open bus %s: %w", cfg.BusAddr, err)
	}
	defer b.Close()

	var (
		store     results.Store
		collector *metrics.Collector
	)
	if cfg.Metrics() {
		store, err = results.Open(cfg.ResultsBackend, cfg.ResultsPath)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("open results: %w", err)
		}
		defer store.Close()
		collector = metrics.NewCollector()
		logger.Printf("metrics enabled, results -> %s (%s), expecting %d clients", cfg.ResultsPath, cfg.ResultsBackend, cfg.ExpectedClients)
	}

	g, err := game.New(game.Options{
		Publisher:       b,
		Metrics:         collector,
		Results:         store,
		Logger:          newLogger("game"),
		Topic:           cfg.Topic,
		Threshold:       cfg.WinThreshold,
		RoundLimit:      cfg.RoundLimit,
		ExpectedClients: cfg.ExpectedClients,
		FieldWidth:      cfg.FieldWidth,
		FieldHeight:     cfg.FieldHeight,
		PublishTimeout:  cfg.PublishTimeout,
	})
	if err != nil {
		_ = ln.Close()
		return err
	}

	reg := registrar.New(g, registrar.Options{
		Logger:           newLogger("registrar"),
		GameName:         cfg.GameName,
		Channel:          cfg.BusAddr,
		HandshakeTimeout: cfg.HandshakeTimeout,
	})
	spawner := game.NewBroadcaster(g, cfg.SpawnInterval, newLogger("spawner"))

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return reg.Serve(gctx, ln) })
	grp.Go(func() error {
		spawner.Start(gctx)
		return nil
	})

	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		adminSrv = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           admin.NewServer(g, newLogger("admin")).Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		grp.Go(func() error {
			logger.Printf("admin listening on %s", cfg.AdminAddr)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin: %w", err)
			}
			return nil
		})
	}

	grp.Go(func() error {
		select {
		case <-gctx.Done():
		case <-g.Done():
			logger.Printf("game over after %d rounds", g.Round().Completed())
		}
		reg.Shutdown()
		if adminSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := adminSrv.Shutdown(sctx); err != nil {
				logger.Printf("admin shutdown error: %v", err)
			}
		}
		return nil
	})

	return grp.Wait()
}
