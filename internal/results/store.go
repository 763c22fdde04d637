package results

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Header is the CSV header row.
var Header = []string{
	"GameID",
	"Winner",
	"NumClients",
	"AvgReactionTime",
	"StdReactionTime",
	"AvgRegistrationTime",
	"StdRegistrationTime",
	"SuccessRate",
}

// Row is the summary of one completed round.
type Row struct {
	Winner          string  `json:"winner"`
	GameID          int     `json:"game_id"`
	NumClients      int     `json:"num_clients"`
	AvgReaction     float64 `json:"avg_reaction_ms"`
	StdReaction     float64 `json:"std_reaction_ms"`
	AvgRegistration float64 `json:"avg_registration_ms"`
	StdRegistration float64 `json:"std_registration_ms"`
	SuccessRate     float64 `json:"success_rate"`
}

// Store defines the interface for result persistence.
// All implementations must be thread-safe for concurrent access.
type Store interface {
	// Append adds one row, creating the underlying store if needed
	Append(ctx context.Context, row Row) error

	// List returns every stored row in insertion order
	List(ctx context.Context) ([]Row, error)

	// Close releases any held resources
	Close() error
}

// Backend names accepted by Open.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Open returns the store for the named backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendCSV, "":
		return NewCSVStore(path), nil
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown results backend %q", backend)
	}
}

// Record renders the row as CSV fields.
func (r Row) Record() []string {
	return []string{
		strconv.Itoa(r.GameID),
		r.Winner,
		strconv.Itoa(r.NumClients),
		FormatFloat(r.AvgReaction),
		FormatFloat(r.StdReaction),
		FormatFloat(r.AvgRegistration),
		FormatFloat(r.StdRegistration),
		FormatFloat(r.SuccessRate),
	}
}

// ParseRecord is the inverse of Record.
func ParseRecord(rec []string) (Row, error) {
	if len(rec) != len(Header) {
		return Row{}, fmt.Errorf("expected %d fields, got %d", len(Header), len(rec))
	}
	var (
		r   Row
		err error
	)
	if r.GameID, err = strconv.Atoi(rec[0]); err != nil {
		return Row{}, fmt.Errorf("GameID: %w", err)
	}
	r.Winner = rec[1]
	if r.NumClients, err = strconv.Atoi(rec[2]); err != nil {
		return Row{}, fmt.Errorf("NumClients: %w", err)
	}
	floats := []*float64{&r.AvgReaction, &r.StdReaction, &r.AvgRegistration, &r.StdRegistration, &r.SuccessRate}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(rec[3+i], 64); err != nil {
			return Row{}, fmt.Errorf("%s: %w", Header[3+i], err)
		}
	}
	return r, nil
}

// FormatFloat writes the shortest exact decimal form, always keeping a
// fractional part so whole numbers read as 100.0 rather than 100.
func FormatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
