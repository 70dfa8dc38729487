package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrMismatch indicates the checkpoint on disk belongs to a different input file.
var ErrMismatch = errors.New("checkpoint belongs to a different input file")

// Store persists a checkpoint at a fixed path.
// Saves are atomic (temp file plus rename) so a crash mid-write never
// corrupts previously recorded progress.
type Store struct {
	path string
}

// NewStore creates a Store writing to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns where the checkpoint lives on disk.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a checkpoint file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the checkpoint and verifies it matches inputPath.
// A checkpoint written for another file returns ErrMismatch; a missing
// file returns the underlying fs.ErrNotExist.
func (s *Store) Load(inputPath string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 -- path is constructed from the work dir
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", s.path, err)
	}

	if cp.InputPath != inputPath {
		return nil, fmt.Errorf("%w: checkpoint is for %q, current input is %q",
			ErrMismatch, cp.InputPath, inputPath)
	}

	return &cp, nil
}

// Save writes the checkpoint atomically.
func (s *Store) Save(cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil { // #nosec G301 -- work dir under user output dir
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("install checkpoint: %w", err)
	}
	return nil
}

// MarkComplete records a finished chunk and persists the checkpoint.
// Completion is set-only; a chunk never transitions back to pending.
func (s *Store) MarkComplete(cp *Checkpoint, index int, transcript string, meta *Metadata) error {
	for i := range cp.Chunks {
		if cp.Chunks[i].Index == index {
			cp.Chunks[i].Transcribed = true
			cp.Chunks[i].Transcript = &transcript
			cp.Chunks[i].Metadata = meta
			break
		}
	}
	return s.Save(cp)
}

// Discard removes the checkpoint file. Missing files are not an error.
func (s *Store) Discard() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
