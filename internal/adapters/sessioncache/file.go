package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileCache keeps the serialized session in a single file.
type FileCache struct {
	Path string
}

func NewFileCache(path string) *FileCache {
	return &FileCache{Path: path}
}

// Load returns os.ErrNotExist (wrapped) when no session file exists.
func (c *FileCache) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, fmt.Errorf("read session cache %s: %w", c.Path, err)
	}
	return data, nil
}

// Save writes atomically through a temp file so a crash never leaves a truncated cache.
func (c *FileCache) Save(ctx context.Context, data []byte) error {
	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session cache dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create session cache temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write session cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close session cache: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod session cache: %w", err)
	}
	if err := os.Rename(tmpName, c.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session cache %s: %w", c.Path, err)
	}
	return nil
}

func (c *FileCache) Delete(ctx context.Context) error {
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session cache %s: %w", c.Path, err)
	}
	return nil
}
