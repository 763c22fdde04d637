// Package registrar runs the registration channel: a TCP listener that
// performs the line-oriented handshake with each player and then hands the
// connection to a hit session for the rest of its life.
//
// # Connection Lifecycle
//
//	accept ──► handshake ──► hit session ──► close
//	              │               │
//	              │ empty name,   │ "exit", EOF, read error,
//	              │ I/O error,    │ server shutdown
//	              │ timeout       │
//	              ▼               ▼
//	            close           Detach + close
//
// The handshake runs under a single deadline (Options.HandshakeTimeout).
// Once it completes the deadline is cleared; a hit session waits on its
// connection for as long as the player stays.
//
// # Failure Isolation
//
// Every connection is served by its own goroutine. Errors on one
// connection close that connection only. Accept errors are logged and the
// loop continues; only a closed listener ends it.
//
// # Shutdown
//
// The accept loop ends when the context is canceled, Shutdown is called
// or the game terminates. Terminating the game stops new registrations but
// leaves existing sessions open; Shutdown closes every open connection and
// waits for the session goroutines to return.
package registrar
