package registrar

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/monsters/internal/game"
	"github.com/dreamware/monsters/internal/protocol"
)

// Options configures a Server.
type Options struct {
	Logger *log.Logger

	// GameName is sent in the welcome line.
	GameName string

	// Channel is the bus address advertised in the INFO line.
	Channel string

	// HandshakeTimeout bounds the whole handshake. Zero means 30s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each line written after the handshake. Zero means 5s.
	WriteTimeout time.Duration
}

// Server accepts players and runs their hit sessions.
// Thread-safe: all methods are safe for concurrent access.
type Server struct {
	game     *game.Game
	logger   *log.Logger
	sessions map[string]*session
	ln       net.Listener
	opts     Options
	wg       sync.WaitGroup
	mu       sync.Mutex // protects sessions, ln and closed
	closed   bool
}

// New creates a registrar for g.
func New(g *game.Game, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Server{
		game:     g,
		logger:   opts.Logger,
		sessions: make(map[string]*session),
		opts:     opts,
	}
}

// ListenAndServe listens on addr and calls Serve. A listen failure is
// returned immediately; it is the one registrar error that is fatal.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, Shutdown is
// called or the game terminates. It always returns nil once the listener
// has been closed by one of those.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.game.Done():
			s.logger.Println("game terminated, no longer accepting players")
		case <-stop:
			return
		}
		_ = ln.Close()
	}()

	s.logger.Printf("registrar listening on %s", ln.Addr())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Transient accept error: back off and keep accepting.
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			s.logger.Printf("accept error: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		sess := newSession(conn, s.opts.WriteTimeout)
		if !s.track(sess) {
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(sess)
			s.serveConn(sess, time.Now())
		}()
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Sessions returns the number of open connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops accepting, closes every open connection and waits for
// their goroutines to return.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	if s.ln != nil {
		_ = s.ln.Close()
	}
	open := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		_ = sess.conn.Close()
	}
	s.wg.Wait()
	s.logger.Printf("registrar stopped, closed %d connections", len(open))
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	_ = sess.conn.Close()
}

// serveConn runs the handshake and, if it succeeds, the hit session.
func (s *Server) serveConn(sess *session, accepted time.Time) {
	name, err := s.handshake(sess, accepted)
	if err != nil {
		s.logger.Printf("session %s: handshake from %s failed: %v", sess.id, sess.conn.RemoteAddr(), err)
		return
	}
	sess.name = name

	s.game.Attach(sess.id, sess)
	defer s.game.Detach(sess.id)

	s.logger.Printf("session %s: %s joined from %s", sess.id, name, sess.conn.RemoteAddr())
	s.hitLoop(sess)
	s.logger.Printf("session %s: %s left", sess.id, name)
}

// errEmptyName marks a handshake that sent a blank name.
var errEmptyName = errors.New("empty name")

func (s *Server) handshake(sess *session, accepted time.Time) (string, error) {
	if err := sess.conn.SetDeadline(accepted.Add(s.opts.HandshakeTimeout)); err != nil {
		return "", err
	}
	if err := sess.writeLines(protocol.WelcomeLine(s.opts.GameName), protocol.NamePrompt); err != nil {
		return "", fmt.Errorf("write welcome: %w", err)
	}

	if !sess.lines.Scan() {
		if err := sess.lines.Err(); err != nil {
			return "", fmt.Errorf("read name: %w", err)
		}
		return "", fmt.Errorf("read name: connection closed")
	}
	name := strings.TrimSpace(sess.lines.Text())
	if name == "" {
		return "", errEmptyName
	}

	score, err := s.game.Register(name)
	if err != nil {
		return "", fmt.Errorf("register %q: %w", name, err)
	}
	if err := sess.writeLines(
		protocol.GreetingLine(name, score),
		protocol.InfoLine(s.opts.Channel, s.game.Topic()),
	); err != nil {
		return "", fmt.Errorf("write greeting: %w", err)
	}
	if err := sess.conn.SetDeadline(time.Time{}); err != nil {
		return "", err
	}

	s.game.RecordRegistration(time.Since(accepted))
	return name, nil
}

// hitLoop reads reports until exit, EOF or a read error.
func (s *Server) hitLoop(sess *session) {
	for sess.lines.Scan() {
		rep, err := protocol.ParseReport(sess.lines.Text())
		switch {
		case errors.Is(err, protocol.ErrExit):
			return
		case err != nil:
			s.logger.Printf("session %s: ignoring %q: %v", sess.id, sess.lines.Text(), err)
			continue
		}

		if _, err := s.game.Hit(sess.name, rep); err != nil {
			s.logger.Printf("session %s: hit rejected: %v", sess.id, err)
		}
	}
	if err := sess.lines.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Printf("session %s: read error: %v", sess.id, err)
	}
}

// session is one player connection.
type session struct {
	conn         net.Conn
	lines        *bufio.Scanner
	id           string
	name         string
	writeTimeout time.Duration
	wmu          sync.Mutex // serializes writes from the session and the game
}

func newSession(conn net.Conn, writeTimeout time.Duration) *session {
	return &session{
		conn:         conn,
		lines:        bufio.NewScanner(conn),
		id:           uuid.NewString(),
		writeTimeout: writeTimeout,
	}
}

// Notify writes one line to the player. It is called by the game when a
// round is won.
func (sess *session) Notify(line string) error {
	sess.wmu.Lock()
	defer sess.wmu.Unlock()
	if err := sess.conn.SetWriteDeadline(time.Now().Add(sess.writeTimeout)); err != nil {
		return err
	}
	_, err := sess.conn.Write([]byte(line + "\n"))
	return err
}

func (sess *session) writeLines(lines ...string) error {
	sess.wmu.Lock()
	defer sess.wmu.Unlock()
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	_, err := sess.conn.Write([]byte(b.String()))
	return err
}
