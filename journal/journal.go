// Package journal appends one record per answered question to a JSON file.
//
// The file holds a single JSON array, rewritten atomically on every append,
// so it can be read with any JSON tool while sqlops is running.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFile is the journal name used when a directory is configured.
const DefaultFile = "metrics_all.json"

// ErrCorrupt is returned when the journal file is not a JSON array.
var ErrCorrupt = errors.New("journal: file is not a JSON array")

// Entry is one journal record.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Question  string         `json:"question"`
	SQL       string         `json:"sql,omitempty"`
	Cached    bool           `json:"cached"`
	Error     string         `json:"error,omitempty"`
	Metrics   map[string]any `json:"metrics,omitempty"`
}

// Journal appends entries to a file. It is safe for concurrent use within
// one process.
type Journal struct {
	path  string
	mu    sync.Mutex
	now   func() time.Time
	newID func() uuid.UUID
}

// Open returns a journal writing to path. A path naming an existing
// directory gets DefaultFile inside it. Nothing is created until the first
// Append.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal: path is required")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFile)
	}
	return &Journal{path: path, now: time.Now, newID: uuid.New}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Append stamps e with an ID and timestamp when they are unset and adds it
// to the file.
func (j *Journal) Append(e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = j.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = j.now().UTC()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.read()
	if err != nil {
		return Entry{}, err
	}
	entries = append(entries, e)
	if err := j.write(entries); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Entries returns every record in file order. A missing file is empty.
func (j *Journal) Entries() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.read()
}

func (j *Journal) read() ([]Entry, error) {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, j.path, err)
	}
	return entries, nil
}

func (j *Journal) write(entries []Entry) error {
	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: encode: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(j.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("journal: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}
