package results

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps results in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the
// results table exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Rounds finish one at a time; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS game_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id INTEGER NOT NULL,
		winner TEXT NOT NULL,
		num_clients INTEGER NOT NULL,
		avg_reaction REAL NOT NULL,
		std_reaction REAL NOT NULL,
		avg_registration REAL NOT NULL,
		std_registration REAL NOT NULL,
		success_rate REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("results migration failed: %w", err)
	}
	return nil
}

// Append inserts one row.
func (s *SQLiteStore) Append(ctx context.Context, row Row) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO game_results
		(game_id, winner, num_clients, avg_reaction, std_reaction, avg_registration, std_registration, success_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.GameID, row.Winner, row.NumClients,
		row.AvgReaction, row.StdReaction,
		row.AvgRegistration, row.StdRegistration,
		row.SuccessRate,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// List returns all rows in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game_id, winner, num_clients,
		avg_reaction, std_reaction, avg_registration, std_registration, success_rate
		FROM game_results ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.GameID, &r.Winner, &r.NumClients,
			&r.AvgReaction, &r.StdReaction, &r.AvgRegistration, &r.StdRegistration, &r.SuccessRate); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
