package client

import (
	"bufio"
	"context"
	"io"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/monsters/internal/bus"
	"github.com/dreamware/monsters/internal/game"
	"github.com/dreamware/monsters/internal/registrar"
)

// scripted runs fn against the first accepted connection.
func scripted(t *testing.T, fn func(r *bufio.Reader, w net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fn(bufio.NewReader(conn), conn)
	}()
	return ln.Addr().String()
}

func write(w io.Writer, lines ...string) {
	_, _ = io.WriteString(w, strings.Join(lines, "\n")+"\n")
}

// TestJoinHandshake tests parsing of every handshake line
func TestJoinHandshake(t *testing.T) {
	got := make(chan string, 2)
	addr := scripted(t, func(r *bufio.Reader, w net.Conn) {
		write(w, "WELCOME TO THE STRESS TEST", "Enter your name:")
		name, _ := r.ReadString('\n')
		got <- strings.TrimSpace(name)
		write(w, "Welcome Player_7! Your current score: 12", "INFO CHANNEL=broker:61616 TOPIC=Monsters")
		line, _ := r.ReadString('\n')
		got <- strings.TrimSpace(line)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := Join(ctx, addr, "Player_7")
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "Player_7", <-got)
	assert.Equal(t, "THE STRESS TEST", p.Game)
	assert.Equal(t, "Player_7", p.Name)
	assert.Equal(t, int64(12), p.Score)
	assert.Equal(t, "broker:61616", p.Channel)
	assert.Equal(t, "Monsters", p.Topic)

	require.NoError(t, p.Hit(time.UnixMilli(1700000000000)))
	assert.Equal(t, "hit 1700000000000", <-got)
}

// TestJoinFailures tests handshake errors
func TestJoinFailures(t *testing.T) {
	tests := []struct {
		name   string
		script func(r *bufio.Reader, w net.Conn)
	}{
		{
			name:   "closed before prompt",
			script: func(r *bufio.Reader, w net.Conn) { write(w, "WELCOME TO MONSTERS") },
		},
		{
			name:   "wrong prompt",
			script: func(r *bufio.Reader, w net.Conn) { write(w, "WELCOME TO MONSTERS", "who are you?") },
		},
		{
			name: "bad greeting",
			script: func(r *bufio.Reader, w net.Conn) {
				write(w, "WELCOME TO MONSTERS", "Enter your name:")
				_, _ = r.ReadString('\n')
				write(w, "hello")
			},
		},
		{
			name: "bad info",
			script: func(r *bufio.Reader, w net.Conn) {
				write(w, "WELCOME TO MONSTERS", "Enter your name:")
				_, _ = r.ReadString('\n')
				write(w, "Welcome ana! Your current score: 0", "INFO TOPIC=Monsters")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := scripted(t, tt.script)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := Join(ctx, addr, "ana")
			assert.Error(t, err)
		})
	}
}

// TestJoinTimeout tests that a silent server does not hang the handshake
func TestJoinTimeout(t *testing.T) {
	addr := scripted(t, func(r *bufio.Reader, w net.Conn) { time.Sleep(time.Second) })
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Join(ctx, addr, "ana")
	assert.Error(t, err)
}

// TestWaitWinner tests winner detection against a real registrar
func TestWaitWinner(t *testing.T) {
	mem := bus.NewMemory()
	defer mem.Close()
	logger := log.New(io.Discard, "", 0)
	g, err := game.New(game.Options{
		Publisher:   mem,
		Topic:       "Monsters",
		Threshold:   3,
		FieldWidth:  9,
		FieldHeight: 9,
		Logger:      logger,
	})
	require.NoError(t, err)
	srv := registrar.New(g, registrar.Options{Logger: logger, GameName: "MONSTERS", Channel: "memory"})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(context.Background(), ln)
	defer srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := Join(ctx, ln.Addr().String(), "ana")
	require.NoError(t, err)
	assert.Equal(t, "MONSTERS", p.Game)

	winner := make(chan string, 1)
	go func() {
		name, _ := p.WaitWinner(ctx)
		winner <- name
	}()

	require.NoError(t, p.Send("hit nope"))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Hit(time.Now()))
	}
	assert.Equal(t, "ana", <-winner)
	require.NoError(t, p.Exit())
}

// TestWaitWinnerClosed tests the error when the server hangs up
func TestWaitWinnerClosed(t *testing.T) {
	addr := scripted(t, func(r *bufio.Reader, w net.Conn) {
		write(w, "WELCOME TO MONSTERS", "Enter your name:")
		_, _ = r.ReadString('\n')
		write(w, "Welcome ana! Your current score: 0", "INFO CHANNEL=memory TOPIC=Monsters")
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := Join(ctx, addr, "ana")
	require.NoError(t, err)

	_, err = p.WaitWinner(ctx)
	assert.ErrorIs(t, err, ErrGameOver)
}
