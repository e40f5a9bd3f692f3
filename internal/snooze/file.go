package snooze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps the record in a small YAML file. Writes go through a
// temp file and rename so a crash never leaves a torn record.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Get(context.Context) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("snooze: read %s: %w", f.path, err)
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return 0, false, fmt.Errorf("snooze: parse %s: %w", f.path, err)
	}
	if rec.DisabledUntil == 0 {
		return 0, false, nil
	}
	return rec.DisabledUntil, true, nil
}

func (f *FileStore) Set(_ context.Context, until int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(Record{DisabledUntil: until})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("snooze: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".snooze-*.yaml")
	if err != nil {
		return fmt.Errorf("snooze: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("snooze: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("snooze: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("snooze: rename: %w", err)
	}
	return nil
}

func (f *FileStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snooze: clear: %w", err)
	}
	return nil
}
