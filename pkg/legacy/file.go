package legacy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// FileSource keeps the shadow in a JSON object file, {"key": "blob", ...}.
//
// The file is read on every call so edits made by other tools are seen. Writes
// replace it atomically through a temporary file and rename. A missing file is an
// empty shadow. Values that are not JSON strings are taken as their raw JSON text,
// which lets hand-written snapshots embed blobs without quoting them.
type FileSource struct {
	path string
	mu   sync.Mutex
}

var (
	_ ReadWriter = (*FileSource)(nil)
	_ Updater    = (*FileSource)(nil)
)

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the snapshot file location.
func (f *FileSource) Path() string {
	return f.path
}

func (f *FileSource) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read legacy snapshot: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse legacy snapshot %s: %w", f.path, err)
	}
	entries := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			entries[k] = s
			continue
		}
		entries[k] = string(v)
	}
	return entries, nil
}

func (f *FileSource) store(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode legacy snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".legacy-*.json")
	if err != nil {
		return fmt.Errorf("failed to write legacy snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write legacy snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write legacy snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace legacy snapshot: %w", err)
	}
	return nil
}

func (f *FileSource) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := entries[key]
	return v, ok, nil
}

func (f *FileSource) Set(ctx context.Context, key, value string) error {
	return f.Update(ctx, func(entries map[string]string) bool {
		entries[key] = value
		return true
	})
}

func (f *FileSource) Delete(ctx context.Context, key string) error {
	return f.Update(ctx, func(entries map[string]string) bool {
		if _, ok := entries[key]; !ok {
			return false
		}
		delete(entries, key)
		return true
	})
}

// Update applies fn to the current entries and writes them back when fn reports a change.
func (f *FileSource) Update(ctx context.Context, fn func(map[string]string) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return err
	}
	if !fn(entries) {
		return nil
	}
	return f.store(entries)
}
