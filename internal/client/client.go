// Package client speaks the player side of the registration channel. It is
// used by the stress client and by tests; the graphical client is not part
// of this repository.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/monsters/internal/protocol"
)

// ErrGameOver is returned by WaitWinner when the server closed the
// connection before announcing a winner.
var ErrGameOver = errors.New("connection closed before a winner was announced")

// Player is a registered connection.
type Player struct {
	conn net.Conn
	r    *bufio.Reader

	// Filled in by the handshake.
	Name    string
	Game    string
	Channel string
	Topic   string
	Score   int64

	wmu sync.Mutex
}

// Join dials addr and completes the handshake as name. The handshake is
// bounded by ctx.
//
// Example:
//
//	p, err := client.Join(ctx, "localhost:50000", "ana")
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//	_ = p.Hit(time.Now())
func Join(ctx context.Context, addr, name string) (*Player, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	p := &Player{conn: conn, r: bufio.NewReader(conn)}
	if err := p.handshake(ctx, name); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Player) handshake(ctx context.Context, name string) error {
	if dl, ok := ctx.Deadline(); ok {
		if err := p.conn.SetDeadline(dl); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { _ = p.conn.SetDeadline(time.Now()) })
	defer func() {
		stop()
		_ = p.conn.SetDeadline(time.Time{})
	}()

	welcome, err := p.readLine()
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	p.Game = strings.TrimPrefix(welcome, protocol.WelcomeLine(""))

	if prompt, err := p.readLine(); err != nil {
		return fmt.Errorf("read prompt: %w", err)
	} else if prompt != protocol.NamePrompt {
		return fmt.Errorf("unexpected prompt %q", prompt)
	}
	if err := p.writeLine(name); err != nil {
		return fmt.Errorf("send name: %w", err)
	}

	greeting, err := p.readLine()
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	if p.Name, p.Score, err = protocol.ParseGreeting(greeting); err != nil {
		return err
	}

	info, err := p.readLine()
	if err != nil {
		return fmt.Errorf("read info: %w", err)
	}
	p.Channel, p.Topic, err = protocol.ParseInfo(info)
	return err
}

// Hit reports a hit made at ts.
func (p *Player) Hit(ts time.Time) error {
	return p.writeLine(protocol.HitLine(ts.UnixMilli()))
}

// Send writes a raw line. Tests use it for malformed input.
func (p *Player) Send(line string) error {
	return p.writeLine(line)
}

// Exit tells the server the player is leaving and closes the connection.
func (p *Player) Exit() error {
	err := p.writeLine("exit")
	if cerr := p.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// WaitWinner reads lines until a winner announcement arrives and returns
// the winner's name. It must not be called concurrently with itself.
func (p *Player) WaitWinner(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() { _ = p.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		line, err := p.readLine()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return "", ErrGameOver
			}
			return "", err
		}
		if name, ok := protocol.ParseWinner(line); ok {
			return name, nil
		}
	}
}

// Close closes the connection without sending exit.
func (p *Player) Close() error {
	return p.conn.Close()
}

func (p *Player) readLine() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *Player) writeLine(line string) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_, err := p.conn.Write([]byte(line + "\n"))
	return err
}
