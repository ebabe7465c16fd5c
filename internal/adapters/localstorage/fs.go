package localstorage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dailypost/internal/core/domain"
)

const (
	runFile     = "run.json"
	historyFile = "runs.jsonl"
)

// LocalStorage implements ports.Storage for the local filesystem.
type LocalStorage struct {
	BaseDir string

	mu sync.Mutex
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir}
}

// InitRun creates the run directory.
func (s *LocalStorage) InitRun(ctx context.Context, runID string) error {
	path := s.GetRunPath(runID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory %s: %w", path, err)
	}
	return nil
}

// SaveAsset writes an intermediate asset into the run directory.
func (s *LocalStorage) SaveAsset(ctx context.Context, runID, name string, data []byte) error {
	path := filepath.Join(s.GetRunPath(runID), filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}

// LoadAsset reads an asset previously written by SaveAsset.
func (s *LocalStorage) LoadAsset(ctx context.Context, runID, name string) ([]byte, error) {
	path := filepath.Join(s.GetRunPath(runID), filepath.Base(name))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// SaveRun writes run.json and appends the run to the history file.
func (s *LocalStorage) SaveRun(ctx context.Context, run domain.JobRun) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	if err := s.InitRun(ctx, run.ID); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.GetRunPath(run.ID), runFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to save %s: %w", runFile, err)
	}

	line, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(s.BaseDir, historyFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", historyFile, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append %s: %w", historyFile, err)
	}
	return nil
}

// Cleanup removes everything in the run directory except run.json.
func (s *LocalStorage) Cleanup(ctx context.Context, runID string) error {
	dir := s.GetRunPath(runID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list run directory %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.Name() == runFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// GetRunPath returns the path for a run directory.
func (s *LocalStorage) GetRunPath(runID string) string {
	return filepath.Join(s.BaseDir, "runs", runID)
}
