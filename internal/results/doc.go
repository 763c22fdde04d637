// Package results persists one summary row per completed round to a durable
// tabular store.
//
// # Row Format
//
// Rows carry the round id, the winner, the number of successful
// registrations, mean and standard deviation of reaction and registration
// latency in milliseconds, and the registration success rate as a
// percentage. The CSV form is:
//
//	GameID,Winner,NumClients,AvgReactionTime,StdReactionTime,AvgRegistrationTime,StdRegistrationTime,SuccessRate
//	1,Player_42,500,231.5,144.2,3.1,1.7,100.0
//
// # Implementations
//
// CSVStore: append-only file
//   - Writes the header only when the file is absent or empty
//   - Each Append opens, writes and closes the file
//
// SQLiteStore: embedded database (modernc.org/sqlite, no cgo)
//   - One game_results table created on open
//   - Useful when results from many runs are queried later
//
// Both are safe for concurrent use. Callers in the game loop log Append
// errors and carry on; a failed write never stops a round.
package results
