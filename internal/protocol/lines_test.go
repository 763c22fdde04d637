package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseReport covers both hit shapes, exit, and the malformed inputs
// a session must ignore.
func TestParseReport(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Report
		wantErr error
	}{
		{name: "timestamp only", line: "hit 1700000000000", want: Report{Timestamp: 1700000000000, Column: -1}},
		{name: "column and timestamp", line: "hit 4 1700000000123", want: Report{Timestamp: 1700000000123, Column: 4}},
		{name: "surrounding whitespace", line: "  hit 42  ", want: Report{Timestamp: 42, Column: -1}},
		{name: "exit", line: "exit", wantErr: ErrExit},
		{name: "exit any case", line: "EXIT", wantErr: ErrExit},
		{name: "non numeric timestamp", line: "hit abc", wantErr: ErrMalformedHit},
		{name: "non numeric column", line: "hit x 12", wantErr: ErrMalformedHit},
		{name: "missing timestamp", line: "hit", wantErr: ErrMalformedHit},
		{name: "too many fields", line: "hit 1 2 3", wantErr: ErrMalformedHit},
		{name: "unknown command", line: "miss 12", wantErr: ErrUnknownCommand},
		{name: "empty line", line: "", wantErr: ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReport(tt.line)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandshakeLines(t *testing.T) {
	assert.Equal(t, "WELCOME TO MONSTERS", WelcomeLine("MONSTERS"))
	assert.Equal(t, "Welcome ana! Your current score: 3", GreetingLine("ana", 3))
	assert.Equal(t, "INFO CHANNEL=localhost:61616 TOPIC=Monsters", InfoLine("localhost:61616", "Monsters"))
	assert.Equal(t, "WINNER ana", WinnerLine("ana"))
	assert.Equal(t, "hit 99", HitLine(99))
}

func TestParseGreeting(t *testing.T) {
	name, score, err := ParseGreeting("Welcome Player_7! Your current score: 12")
	require.NoError(t, err)
	assert.Equal(t, "Player_7", name)
	assert.Equal(t, int64(12), score)

	_, _, err = ParseGreeting("Welcome bob! Your current score: lots")
	assert.Error(t, err)

	_, _, err = ParseGreeting("WELCOME TO MONSTERS")
	assert.Error(t, err)
}

func TestParseInfo(t *testing.T) {
	channel, topic, err := ParseInfo("INFO CHANNEL=tcp://broker:61616 TOPIC=Monsters")
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:61616", channel)
	assert.Equal(t, "Monsters", topic)

	// The original client spelled the key BROKER_URL; it is not enough on its own.
	_, _, err = ParseInfo("INFO BROKER_URL=tcp://broker:61616 TOPIC=Monsters")
	assert.Error(t, err)

	_, _, err = ParseInfo("Welcome bob! Your current score: 0")
	assert.Error(t, err)
}

func TestParseWinner(t *testing.T) {
	name, ok := ParseWinner("WINNER ana")
	assert.True(t, ok)
	assert.Equal(t, "ana", name)

	_, ok = ParseWinner("3 4 5")
	assert.False(t, ok)
}
