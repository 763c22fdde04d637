// Package game implements the game coordination core: the round state
// machine, the hit and registration entry points used by player sessions,
// and the periodic event broadcaster.
//
// # Overview
//
// A Game owns the score ledger, the current round, and the optional metrics
// collector. Sessions never touch these directly; they call Register,
// RecordRegistration and Hit, and the broadcaster calls Spawn.
//
//	┌──────────────────────────────────────────┐
//	│                  Game                    │
//	├──────────────────────────────────────────┤
//	│  ┌────────────┐  ┌────────────────────┐  │
//	│  │  Ledger    │  │  Round             │  │
//	│  │  name→score│  │  state (CAS claim) │  │
//	│  └────────────┘  │  sequence, spawns  │  │
//	│                  └────────────────────┘  │
//	│  ┌────────────┐  ┌────────────────────┐  │
//	│  │  Metrics   │  │  Notifiers         │  │
//	│  │  samples   │  │  open sessions     │  │
//	│  └────────────┘  └────────────────────┘  │
//	└──────────────────────────────────────────┘
//	        ▲ Hit/Register          ▲ Spawn
//	   hit sessions             Broadcaster
//
// # Round State Machine
//
//	Running ──claim──▶ Won ──▶ Resetting ──▶ Running
//	                    │
//	                    └────▶ Terminated  (round limit reached)
//
// Won is entered through a single compare-and-swap on the round state, so
// when several sessions cross the threshold at the same instant exactly one
// of them wins the claim; the others see the swap fail and do nothing.
//
// # Round Boundary
//
// Every hit, registration sample and spawn runs inside the read side of a
// round gate (sync.RWMutex). The winner takes the write side before it
// snapshots metrics and resets state. That gives three orderings:
//   - the metrics snapshot happens after every hit that was already in
//     flight when the win was claimed
//   - a reset never interleaves with an increment or a spawn
//   - the first spawn of the next round is published only after the reset,
//     because spawns are refused until the state is Running again
//
// Hits that observe Won are discarded without touching the ledger or the
// metrics, so late reports cannot leak into the next round's baseline.
//
// # Failure Handling
//
// Publishing and result persistence are best-effort: failures are logged and
// the round carries on. Nothing a single session does can stop another.
package game
