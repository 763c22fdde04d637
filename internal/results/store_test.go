package results

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRow(id int) Row {
	return Row{
		GameID:          id,
		Winner:          "Player_7",
		NumClients:      500,
		AvgReaction:     231.5,
		StdReaction:     12.25,
		AvgRegistration: 3,
		StdRegistration: 0.5,
		SuccessRate:     100,
	}
}

func TestFormatFloat(t *testing.T) {
	tests := map[float64]string{
		100:    "100.0",
		0:      "0.0",
		12.5:   "12.5",
		0.125:  "0.125",
		-3:     "-3.0",
		1e21:   "1000000000000000000000.0",
		33.333: "33.333",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatFloat(in), "FormatFloat(%v)", in)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	row := sampleRow(3)
	rec := row.Record()
	assert.Equal(t, []string{"3", "Player_7", "500", "231.5", "12.25", "3.0", "0.5", "100.0"}, rec)

	back, err := ParseRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, row, back)

	_, err = ParseRecord(rec[:4])
	assert.Error(t, err)
}

// TestCSVStore tests header handling and appends
func TestCSVStore(t *testing.T) {
	ctx := context.Background()

	t.Run("header written once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stress_results.csv")
		s := NewCSVStore(path)

		require.NoError(t, s.Append(ctx, sampleRow(1)))
		require.NoError(t, s.Append(ctx, sampleRow(2)))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, strings.Join(Header, ","), lines[0])
		assert.Equal(t, "1,Player_7,500,231.5,12.25,3.0,0.5,100.0", lines[1])
		assert.True(t, strings.HasPrefix(lines[2], "2,"))

		rows, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []Row{sampleRow(1), sampleRow(2)}, rows)
	})

	t.Run("empty existing file gets header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "results.csv")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		s := NewCSVStore(path)
		require.NoError(t, s.Append(ctx, sampleRow(1)))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "GameID,Winner,"))
	})

	t.Run("existing rows are preserved", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "results.csv")
		require.NoError(t, NewCSVStore(path).Append(ctx, sampleRow(1)))

		// A second store on the same file, as after a process restart.
		s := NewCSVStore(path)
		require.NoError(t, s.Append(ctx, sampleRow(1)))

		rows, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("missing file lists nothing", func(t *testing.T) {
		rows, err := NewCSVStore(filepath.Join(t.TempDir(), "none.csv")).List(ctx)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("unwritable path returns error", func(t *testing.T) {
		s := NewCSVStore(filepath.Join(t.TempDir(), "missing-dir", "results.csv"))
		assert.Error(t, s.Append(ctx, sampleRow(1)))
	})

	t.Run("concurrent appends", func(t *testing.T) {
		s := NewCSVStore(filepath.Join(t.TempDir(), "results.csv"))
		var wg sync.WaitGroup
		for i := 1; i <= 20; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				assert.NoError(t, s.Append(ctx, sampleRow(id)))
			}(i)
		}
		wg.Wait()

		rows, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, rows, 20)
	})
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, sampleRow(1)))
	require.NoError(t, s.Append(ctx, sampleRow(2)))
	require.NoError(t, s.Close())

	// Reopen to check the rows survived.
	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	rows, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Row{sampleRow(1), sampleRow(2)}, rows)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(BackendCSV, filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	assert.IsType(t, &CSVStore{}, s)

	s, err = Open(BackendSQLite, filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("parquet", filepath.Join(dir, "a.parquet"))
	assert.Error(t, err)
}
