package main

import (
	"context"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/monsters/internal/bus"
	"github.com/dreamware/monsters/internal/game"
	"github.com/dreamware/monsters/internal/registrar"
)

// TestParseArgs tests defaults, environment and flags
func TestParseArgs(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("STRESS_CLIENTS", "")
		t.Setenv("STRESS_SERVER", "")
		opts, err := parseArgs(nil, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, "localhost:5000", opts.server)
		assert.Equal(t, 500, opts.clients)
		assert.Equal(t, 500*time.Millisecond, opts.maxPause)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("STRESS_CLIENTS", "25")
		t.Setenv("STRESS_SERVER", "game:5000")
		opts, err := parseArgs(nil, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, "game:5000", opts.server)
		assert.Equal(t, 25, opts.clients)
	})

	t.Run("flags win", func(t *testing.T) {
		t.Setenv("STRESS_CLIENTS", "25")
		opts, err := parseArgs([]string{"-clients", "3", "-max-pause", "10ms"}, io.Discard)
		require.NoError(t, err)
		assert.Equal(t, 3, opts.clients)
		assert.Equal(t, 10*time.Millisecond, opts.maxPause)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("STRESS_CLIENTS", "many")
		_, err := parseArgs(nil, io.Discard)
		assert.Error(t, err)

		t.Setenv("STRESS_CLIENTS", "")
		_, err = parseArgs([]string{"-clients", "0"}, io.Discard)
		assert.Error(t, err)
	})
}

// TestSimulate runs a small swarm against an in-process server
func TestSimulate(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	mem := bus.NewMemory()
	defer mem.Close()
	g, err := game.New(game.Options{
		Publisher:   mem,
		Topic:       "Monsters",
		Threshold:   100,
		RoundLimit:  1,
		FieldWidth:  9,
		FieldHeight: 9,
		Logger:      logger,
	})
	require.NoError(t, err)

	srv := registrar.New(g, registrar.Options{Logger: logger, GameName: "THE STRESS TEST", Channel: "memory"})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(context.Background(), ln)
	defer srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sum, err := simulate(ctx, options{
		server:   ln.Addr().String(),
		clients:  20,
		maxPause: 5 * time.Millisecond,
		timeout:  5 * time.Second,
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, 20, sum.registered)
	assert.Regexp(t, `^Player_\d+$`, sum.winner)
	assert.Equal(t, game.StateTerminated, g.Round().State())
}

// TestSimulateNoServer tests that a swarm with no server fails
func TestSimulateNoServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = simulate(context.Background(), options{server: addr, clients: 3, timeout: time.Second}, log.New(io.Discard, "", 0))
	assert.Error(t, err)
}
