// Package runs keeps a JSON ledger of ingestion runs and their per-file
// reports.
package runs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("runs: run not found")

// Status of a run.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run is one invocation of the ingestion pipeline.
type Run struct {
	ID         string      `json:"id"`
	Source     string      `json:"source"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Status     string      `json:"status"`
	Files      []FileEntry `json:"files"`
	Chunks     int         `json:"chunks"`
}

// FileEntry records the outcome of one processed file.
type FileEntry struct {
	File     string          `json:"file"`
	Chunks   int             `json:"chunks"`
	Uploaded int             `json:"uploaded"`
	Mappings int             `json:"mappings"`
	Error    string          `json:"error,omitempty"`
	Report   json.RawMessage `json:"report,omitempty"`
}

// Ledger persists runs to runs.json under its directory.
type Ledger struct {
	mu       sync.RWMutex
	runs     []Run
	filePath string
}

// Open initialises the ledger, creating the directory and loading any
// existing runs.
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs dir: %w", err)
	}
	l := &Ledger{filePath: filepath.Join(dir, "runs.json")}
	if data, err := os.ReadFile(l.filePath); err == nil {
		if err := json.Unmarshal(data, &l.runs); err != nil {
			return nil, fmt.Errorf("corrupt run ledger %s: %w", l.filePath, err)
		}
	}
	return l, nil
}

func (l *Ledger) save() error {
	data, err := json.MarshalIndent(l.runs, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, l.filePath)
}

// Start records a new running run for source.
func (l *Ledger) Start(source string) (*Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	run := Run{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now(),
		Status:    StatusRunning,
	}
	l.runs = append(l.runs, run)
	if err := l.save(); err != nil {
		return nil, err
	}
	return &run, nil
}

// Record appends a file entry to a run.
func (l *Ledger) Record(runID string, entry FileEntry) error {
	return l.update(runID, func(r *Run) {
		r.Files = append(r.Files, entry)
		r.Chunks += entry.Chunks
	})
}

// Finish marks a run as done with status.
func (l *Ledger) Finish(runID, status string) error {
	return l.update(runID, func(r *Run) {
		now := time.Now()
		r.FinishedAt = &now
		r.Status = status
	})
}

func (l *Ledger) update(runID string, fn func(*Run)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.runs {
		if l.runs[i].ID == runID {
			fn(&l.runs[i])
			return l.save()
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, runID)
}

func (l *Ledger) Get(id string) (*Run, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := range l.runs {
		if l.runs[i].ID == id {
			r := l.runs[i]
			r.Files = append([]FileEntry(nil), r.Files...)
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// List returns runs, most recent first.
func (l *Ledger) List() []Run {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Run, len(l.runs))
	copy(result, l.runs)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result
}
