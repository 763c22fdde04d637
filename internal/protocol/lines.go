package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// NamePrompt is sent right after the welcome line.
	NamePrompt = "Enter your name:"

	// GameOver is broadcast once the round limit has been reached.
	GameOver = "The game is over!"

	winnerPrefix   = "WINNER "
	welcomePrefix  = "WELCOME TO "
	infoPrefix     = "INFO "
	greetingPrefix = "Welcome "
	scoreMarker    = "! Your current score: "
)

var (
	// ErrExit is returned by ParseReport when the player asked to leave.
	ErrExit = errors.New("player exit")

	// ErrMalformedHit is returned for hit reports with a wrong field count or a
	// non-numeric timestamp.
	ErrMalformedHit = errors.New("malformed hit report")

	// ErrUnknownCommand is returned for lines that are neither hits nor exit.
	ErrUnknownCommand = errors.New("unknown command")
)

// WelcomeLine is the first line of the handshake.
func WelcomeLine(gameName string) string {
	return welcomePrefix + gameName
}

// GreetingLine answers a valid name with the player's current score.
func GreetingLine(name string, score int64) string {
	return fmt.Sprintf("%s%s%s%d", greetingPrefix, name, scoreMarker, score)
}

// ParseGreeting extracts the score from a greeting line.
func ParseGreeting(line string) (name string, score int64, err error) {
	if !strings.HasPrefix(line, greetingPrefix) {
		return "", 0, fmt.Errorf("not a greeting: %q", line)
	}
	rest := strings.TrimPrefix(line, greetingPrefix)
	idx := strings.LastIndex(rest, scoreMarker)
	if idx < 0 {
		return "", 0, fmt.Errorf("greeting without score: %q", line)
	}
	score, err = strconv.ParseInt(rest[idx+len(scoreMarker):], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("greeting score: %w", err)
	}
	return rest[:idx], score, nil
}

// InfoLine tells the client where to subscribe for broadcast events.
func InfoLine(channel, topic string) string {
	return fmt.Sprintf("%sCHANNEL=%s TOPIC=%s", infoPrefix, channel, topic)
}

// ParseInfo reads the channel and topic back out of an INFO line. Unknown
// keys are ignored.
func ParseInfo(line string) (channel, topic string, err error) {
	if !strings.HasPrefix(line, infoPrefix) {
		return "", "", fmt.Errorf("not an info line: %q", line)
	}
	for _, part := range strings.Fields(strings.TrimPrefix(line, infoPrefix)) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch key {
		case "CHANNEL":
			channel = value
		case "TOPIC":
			topic = value
		}
	}
	if channel == "" || topic == "" {
		return "", "", fmt.Errorf("info line missing channel or topic: %q", line)
	}
	return channel, topic, nil
}

// WinnerLine announces the winner, both on the broadcast channel and
// directly to registered players.
func WinnerLine(name string) string {
	return winnerPrefix + name
}

// ParseWinner reports whether line is a winner announcement and for whom.
func ParseWinner(line string) (string, bool) {
	if !strings.HasPrefix(line, winnerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(line, winnerPrefix), true
}

// Report is one parsed line from a player after the handshake.
type Report struct {
	// Timestamp is the client's wall clock in milliseconds when the hit
	// was made.
	Timestamp int64
	// Column is the optional grid column sent by older clients, -1 if absent.
	Column int
}

// ParseReport parses "hit <ts>", "hit <x> <ts>" or "exit".
func ParseReport(line string) (Report, error) {
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, "exit") {
		return Report{}, ErrExit
	}
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "hit" {
		return Report{}, ErrUnknownCommand
	}

	r := Report{Column: -1}
	switch len(fields) {
	case 2:
	case 3:
		col, err := strconv.Atoi(fields[1])
		if err != nil {
			return Report{}, fmt.Errorf("%w: column %q", ErrMalformedHit, fields[1])
		}
		r.Column = col
	default:
		return Report{}, fmt.Errorf("%w: %d fields", ErrMalformedHit, len(fields))
	}

	ts, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return Report{}, fmt.Errorf("%w: timestamp %q", ErrMalformedHit, fields[len(fields)-1])
	}
	r.Timestamp = ts
	return r, nil
}

// HitLine formats a hit report the way the bundled clients send it.
func HitLine(timestampMillis int64) string {
	return "hit " + strconv.FormatInt(timestampMillis, 10)
}
