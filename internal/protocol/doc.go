// Package protocol defines the two text wire formats spoken by the game:
// the line-oriented registration channel between one player and the server,
// and the payloads published on the broadcast channel to every subscriber.
//
// # Registration Channel
//
// Every line is newline-terminated. The server speaks first:
//
//	S: WELCOME TO <GAME NAME>
//	S: Enter your name:
//	C: <name>
//	S: Welcome <name>! Your current score: <n>
//	S: INFO CHANNEL=<bus-address> TOPIC=<topic-name>
//	C: hit <clientTimestampMillis>        (repeatable)
//	S: WINNER <name>                      (at most once per round)
//	C: exit                               (optional)
//
// Older clients also send the grid column they clicked, as
// "hit <x> <clientTimestampMillis>". Both shapes are accepted; the last
// field is always the timestamp.
//
// # Broadcast Channel
//
// Payloads are plain text:
//
//	<spawnId> <x> <y>      a target appeared
//	WINNER <name>          the round was won
//	The game is over!      no further rounds will be played
//
// Consumers keep no state about past events other than watching for the
// two terminal forms.
package protocol
