package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)

	dir := t.TempDir()
	j, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultFile), j.Path())

	j, err = Open(filepath.Join(dir, "logs", "q.json"))
	require.NoError(t, err)
	_, err = os.Stat(j.Path())
	assert.True(t, os.IsNotExist(err), "nothing created before Append")
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "journal.json")
	j, err := Open(path)
	require.NoError(t, err)

	fixed := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	first, err := j.Append(Entry{Question: "how many orders?", SQL: "SELECT count(*) FROM orders"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, fixed, first.Timestamp)

	_, err = j.Append(Entry{Question: "how many orders?", SQL: "SELECT count(*) FROM orders", Cached: true,
		Metrics: map[string]any{"duration_ms": 1.5}})
	require.NoError(t, err)

	entries, err := j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.False(t, entries[0].Cached)
	assert.True(t, entries[1].Cached)
	assert.Equal(t, 1.5, entries[1].Metrics["duration_ms"])
}

func TestAppend_FileIsJSONArray(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = j.Append(Entry{Question: "q"})
	require.NoError(t, err)

	data, err := os.ReadFile(j.Path())
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "q", raw[0]["question"])
	assert.Contains(t, raw[0], "timestamp")
	_, err = time.Parse(time.RFC3339, raw[0]["timestamp"].(string))
	assert.NoError(t, err)

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(j.Path()), "*.tmp"))
	assert.Empty(t, leftovers)
}

func TestAppend_KeepsExistingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"timestamp":"2025-01-01T00:00:00Z","question":"old"}]`), 0o644))

	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Append(Entry{Question: "new"})
	require.NoError(t, err)

	entries, err := j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "old", entries[0].Question)
	assert.Equal(t, "new", entries[1].Question)
}

func TestAppend_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"}`), 0o644))

	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Append(Entry{Question: "q"})
	assert.ErrorIs(t, err, ErrCorrupt)

	data, _ := os.ReadFile(path)
	assert.JSONEq(t, `{"not":"an array"}`, string(data), "corrupt file left untouched")
}

func TestAppend_Concurrent(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := j.Append(Entry{Question: "q"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestEntries_Missing(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
