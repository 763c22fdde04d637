package game

import "sync/atomic"

// RoundState is the state of the current round.
type RoundState int32

const (
	// StateRunning accepts hits and spawns.
	StateRunning RoundState = iota
	// StateWon means a winner has been claimed and the round is closing.
	StateWon
	// StateResetting is held while shared state is zeroed for the next round.
	StateResetting
	// StateTerminated means the round limit was reached; nothing more happens.
	StateTerminated
)

func (s RoundState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateWon:
		return "won"
	case StateResetting:
		return "resetting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Round is the single-writer cell holding the current round's state,
// sequence number and spawn counter. Only Claim may move the state out of
// Running; everything else is done by the claimant while it holds the
// game's round gate.
type Round struct {
	state     atomic.Int32
	seq       atomic.Int64 // 1-based round number
	spawns    atomic.Int64 // next spawn id
	completed atomic.Int64 // rounds that reached Won
}

func newRound() *Round {
	r := &Round{}
	r.seq.Store(1)
	return r
}

// State returns the current state.
func (r *Round) State() RoundState {
	return RoundState(r.state.Load())
}

// Seq returns the current round number, starting at 1.
func (r *Round) Seq() int64 {
	return r.seq.Load()
}

// Spawns returns how many spawn ids have been handed out this round.
func (r *Round) Spawns() int64 {
	return r.spawns.Load()
}

// Completed returns the number of rounds that have been won.
func (r *Round) Completed() int64 {
	return r.completed.Load()
}

// Claim atomically moves Running to Won. Exactly one caller per round gets
// true.
func (r *Round) Claim() bool {
	return r.state.CompareAndSwap(int32(StateRunning), int32(StateWon))
}

// nextSpawnID hands out 0, 1, 2, ... within a round.
func (r *Round) nextSpawnID() int64 {
	return r.spawns.Add(1) - 1
}

func (r *Round) set(s RoundState) {
	r.state.Store(int32(s))
}

// advance starts the next round. Caller holds the round gate exclusively.
func (r *Round) advance() {
	r.set(StateResetting)
	r.spawns.Store(0)
	r.seq.Add(1)
}
