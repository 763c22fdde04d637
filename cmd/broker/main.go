// Command broker runs the publish/subscribe broker that carries the game's
// broadcast channel. The server publishes spawn and winner events to it and
// every client subscribes to the same topic.
//
// Configuration (environment):
//   - BROKER_LISTEN: Listen address (default: ":61616")
//
// Endpoints:
//   - /ws: websocket endpoint for publishers and subscribers
//   - /health: liveness probe
//   - /topics/{topic}: subscriber count for a topic
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dreamware/monsters/internal/bus"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	listen := getenv("BROKER_LISTEN", ":61616")
	logger := log.New(os.Stdout, "[broker] ", log.LstdFlags)

	s := &http.Server{
		Addr:              listen,
		Handler:           newMux(bus.NewHub(logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("broker listening on %s", listen)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
	logger.Println("broker stopped")
}

func newMux(hub *bus.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/topics/", func(w http.ResponseWriter, r *http.Request) {
		topic := strings.TrimPrefix(r.URL.Path, "/topics/")
		if topic == "" {
			http.Error(w, "missing topic", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Topic       string `json:"topic"`
			Subscribers int    `json:"subscribers"`
		}{Topic: topic, Subscribers: hub.Subscribers(topic)})
	})
	return mux
}

// getenv returns $k, or def when it is unset or empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
