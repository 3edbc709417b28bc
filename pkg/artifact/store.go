// Package artifact implements the on-disk artifact contract of the pipeline.
//
// Each stage writes exactly one named artifact into the working directory,
// and the presence of a non-empty artifact is the signal that the stage has
// already completed. All writes go through a temporary file plus rename, so
// an interrupted run never leaves a partial file that would satisfy the
// existence check.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Well-known artifact names, relative to the working directory.
const (
	CorpusFile       = "corpus.jsonl"
	HardNegativesFile = "hard-negatives.jsonl"
	TrainingDataFile = "gpl-training-data.tsv"
)

// ErrInvalidName is returned when an artifact name would escape the store's
// working directory.
var ErrInvalidName = errors.New("invalid artifact name")

// Store resolves artifact names against a working directory and answers
// completion checks. A Store assumes single-writer, single-reader access:
// concurrent runs against the same directory race on existence checks and
// are unsupported.
type Store struct {
	dir string
}

// NewStore creates the working directory if needed and returns a store
// rooted at it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the working directory.
func (s *Store) Dir() string { return s.dir }

// QueriesFile returns the generated-queries artifact name for a prefix.
func QueriesFile(prefix string) string { return prefix + "-queries.jsonl" }

// QrelsDir returns the generated-qrels artifact directory for a prefix.
func QrelsDir(prefix string) string { return prefix + "-qrels" }

// QrelsFile returns the train split file inside the qrels directory.
func QrelsFile(prefix string) string { return filepath.Join(QrelsDir(prefix), "train.tsv") }

// Path resolves an artifact name inside the working directory.
func (s *Store) Path(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", ErrInvalidName
	}
	p := filepath.Join(s.dir, name)
	rel, err := filepath.Rel(s.dir, p)
	if err != nil || rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return "", ErrInvalidName
	}
	return p, nil
}

// Exists reports whether the named artifact is present and non-empty. A
// directory artifact counts as present when it contains at least one entry.
func (s *Store) Exists(name string) bool {
	p, err := s.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	if info.IsDir() {
		entries, err := os.ReadDir(p)
		return err == nil && len(entries) > 0
	}
	return info.Size() > 0
}

// WriteAtomic writes data to the named artifact through a temporary file and
// rename. The parent directory is created if needed.
func (s *Store) WriteAtomic(name string, data []byte) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", name, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to finalize artifact %s: %w", name, err)
	}
	return nil
}

// Read returns the contents of the named artifact.
func (s *Store) Read(name string) ([]byte, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
	}
	return data, nil
}

// CheckpointDir returns the model checkpoint directory for a total step
// count. The train stage is keyed by step count so changing it invalidates
// only that checkpoint, not the upstream artifacts.
func CheckpointDir(outputDir string, steps int) string {
	return filepath.Join(outputDir, strconv.Itoa(steps))
}

// CheckpointExists reports whether a checkpoint directory is present and
// non-empty.
func CheckpointExists(outputDir string, steps int) bool {
	entries, err := os.ReadDir(CheckpointDir(outputDir, steps))
	return err == nil && len(entries) > 0
}
