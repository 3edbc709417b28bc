// Package telemetry records per-stage pipeline runs as Parquet files, one
// file per pipeline run, so long-running generation jobs leave an auditable
// trail of what ran, what was skipped, and how long each stage took.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// StageRecord represents one completed (or skipped) pipeline stage.
type StageRecord struct {
	RunID      string    `parquet:"run_id"`
	Stage      string    `parquet:"stage"`
	StartedAt  time.Time `parquet:"started_at"`
	FinishedAt time.Time `parquet:"finished_at"`
	DurationMS int64     `parquet:"duration_ms"`
	Rows       int64     `parquet:"rows"`
	Skipped    bool      `parquet:"skipped"`
	Error      string    `parquet:"error"`
}

// Recorder buffers stage records for one pipeline run and writes them to a
// single Parquet file on Flush.
type Recorder struct {
	outputDir string
	runID     string

	mu      sync.Mutex
	records []StageRecord
}

// NewRecorder creates a recorder with a fresh run ID. A nil recorder is safe
// to use; all methods become no-ops, so telemetry can be disabled by simply
// not configuring an output directory.
func NewRecorder(outputDir string) (*Recorder, error) {
	if outputDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	return &Recorder{
		outputDir: outputDir,
		runID:     uuid.New().String(),
	}, nil
}

// RunID returns the identifier shared by all records of this run.
func (r *Recorder) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Record appends a stage record. rows is the number of output rows the stage
// produced (0 for skipped stages); stageErr, when non-nil, is stored as text.
func (r *Recorder) Record(stage string, started time.Time, rows int, skipped bool, stageErr error) {
	if r == nil {
		return
	}
	now := time.Now().UTC()
	rec := StageRecord{
		RunID:      r.runID,
		Stage:      stage,
		StartedAt:  started.UTC(),
		FinishedAt: now,
		DurationMS: now.Sub(started).Milliseconds(),
		Rows:       int64(rows),
		Skipped:    skipped,
	}
	if stageErr != nil {
		rec.Error = stageErr.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Flush writes buffered records to a run-scoped Parquet file and clears the
// buffer. Flushing an empty recorder is a no-op.
func (r *Recorder) Flush() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return nil
	}

	filename := fmt.Sprintf("run_%s_%s.parquet", time.Now().UTC().Format("20060102_150405"), r.runID)
	path := filepath.Join(r.outputDir, filename)
	if err := parquet.WriteFile(path, r.records); err != nil {
		return fmt.Errorf("failed to write telemetry parquet file: %w", err)
	}
	r.records = r.records[:0]
	return nil
}

// ReadRecords loads all stage records from a telemetry Parquet file.
func ReadRecords(path string) ([]StageRecord, error) {
	records, err := parquet.ReadFile[StageRecord](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry parquet file %s: %w", path, err)
	}
	return records, nil
}
