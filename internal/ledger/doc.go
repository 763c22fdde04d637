// Package ledger implements the score ledger shared by every hit session:
// a map from player name to score with an atomic increment-and-read
// primitive.
//
// # Concurrency Model
//
// The ledger separates two kinds of access:
//
//	┌──────────────────────────────┐
//	│            Ledger            │
//	├──────────────────────────────┤
//	│  RLock + atomic add          │  IncrementAndGet (hot path, parallel)
//	│  Lock                        │  Register (new name), Reset, Snapshot
//	└──────────────────────────────┘
//
// Increments for existing players only take the read side of the lock and
// then add to the player's own atomic counter, so hit sessions for
// different players never contend and two increments for the same player
// always observe distinct post-increment values.
//
// Reset and Snapshot take the write side. Because every in-flight increment
// holds the read side, the write lock acts as a round boundary: a reset
// cannot interleave with a half-finished increment and a snapshot is a
// consistent cut across all players.
//
// # Lifecycle
//
// Players are created on their first successful handshake and are never
// removed; Reset zeroes scores but keeps names, so a player who reconnects
// under the same name resumes whatever score the current round holds for
// them.
package ledger
