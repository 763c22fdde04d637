package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// EventKind distinguishes the three broadcast payloads.
type EventKind int

const (
	EventSpawn EventKind = iota
	EventWinner
	EventGameOver
)

func (k EventKind) String() string {
	switch k {
	case EventSpawn:
		return "spawn"
	case EventWinner:
		return "winner"
	case EventGameOver:
		return "game-over"
	default:
		return "unknown"
	}
}

// Spawn says a target appeared at (X, Y). IDs are unique and increasing
// within a round.
type Spawn struct {
	ID int64
	X  int
	Y  int
}

// String is the broadcast payload for the spawn.
func (s Spawn) String() string {
	return fmt.Sprintf("%d %d %d", s.ID, s.X, s.Y)
}

// Event is a decoded broadcast payload.
type Event struct {
	Kind   EventKind
	Spawn  Spawn
	Winner string
}

// ParseEvent decodes a payload received from the broadcast channel.
func ParseEvent(payload string) (Event, error) {
	payload = strings.TrimSpace(payload)
	if payload == GameOver {
		return Event{Kind: EventGameOver}, nil
	}
	if name, ok := ParseWinner(payload); ok {
		return Event{Kind: EventWinner, Winner: name}, nil
	}

	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return Event{}, fmt.Errorf("unrecognized event %q", payload)
	}
	var nums [3]int64
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return Event{}, fmt.Errorf("spawn field %d: %w", i, err)
		}
		nums[i] = n
	}
	return Event{
		Kind:  EventSpawn,
		Spawn: Spawn{ID: nums[0], X: int(nums[1]), Y: int(nums[2])},
	}, nil
}
