package results

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// CSVStore appends rows to a CSV file.
type CSVStore struct {
	path string
	mu   sync.Mutex // Serializes file access
}

// NewCSVStore returns a store writing to path. The file is created lazily.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the file the store writes to.
func (s *CSVStore) Path() string {
	return s.path
}

// Append writes row, preceded by the header if the file is absent or empty.
func (s *CSVStore) Append(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat results file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(row.Record()); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	return f.Sync()
}

// List reads every data row. A missing file yields no rows.
func (s *CSVStore) List(_ context.Context) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)

	var rows []Row
	for line := 0; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read results line %d: %w", line+1, err)
		}
		if line == 0 && rec[0] == Header[0] {
			continue
		}
		row, err := ParseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("parse results line %d: %w", line+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close is a no-op; the file is not held open between writes.
func (s *CSVStore) Close() error {
	return nil
}
