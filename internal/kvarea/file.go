package kvarea

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/natefinch/atomic"
)

// File is a key-value area backed by a single JSON file.
//
// Every Set is a read-merge-replace of the whole file; the replace is an
// atomic rename so readers in other processes never observe a partial
// write. The change feed watches the parent directory (atomic renames make
// watching the file itself unreliable) and diffs the file content against
// the last observed snapshot to produce per-key changes.
type File struct {
	path   string
	logger *log.Logger

	mu sync.Mutex // serializes read-merge-replace cycles within this process
}

// NewFile creates a file-backed area at the given path. The parent
// directory is created if needed; the file itself is created on first Set.
func NewFile(path string, logger *log.Logger) (*File, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[kvarea] ", log.LstdFlags)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &File{path: path, logger: logger}, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Get returns the requested top-level fields, or every field when keys is nil.
func (f *File) Get(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	fields, err := f.readSnapshot()
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return fields, nil
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		if val, ok := fields[key]; ok {
			out[key] = val
		}
	}
	return out, nil
}

// Set merges the given fields into the stored value and atomically replaces
// the backing file. Fields not named are preserved.
func (f *File) Set(ctx context.Context, fields map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.readSnapshot()
	if err != nil {
		// A corrupt file is unrecoverable as-is; the merged write below
		// replaces it with a well-formed one.
		f.logger.Printf("Discarding unreadable store file: %v", err)
		current = map[string]json.RawMessage{}
	}
	for key, val := range fields {
		current[key] = val
	}
	return f.writeSnapshot(current)
}

// Clear atomically replaces the stored value with an empty one.
func (f *File) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeSnapshot(map[string]json.RawMessage{})
}

// Watch starts the change feed. The returned channel is closed when ctx is
// cancelled. Each event carries the per-key diff between the previously
// observed snapshot and the file content after the filesystem event.
func (f *File) Watch(ctx context.Context) (<-chan Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch storage directory: %w", err)
	}

	f.mu.Lock()
	last, err := f.readSnapshot()
	f.mu.Unlock()
	if err != nil {
		f.logger.Printf("Watch starting from empty snapshot: %v", err)
		last = map[string]json.RawMessage{}
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(f.path) {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
					!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
					continue
				}

				f.mu.Lock()
				current, err := f.readSnapshot()
				f.mu.Unlock()
				if err != nil {
					f.logger.Printf("Skipping change event, unreadable snapshot: %v", err)
					continue
				}

				changes := diffFields(last, current)
				last = current
				if changes == nil {
					continue
				}
				select {
				case events <- Event{Changes: changes}:
				case <-ctx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Printf("Watcher error: %v", err)
			}
		}
	}()

	return events, nil
}

// Close releases the area. The file backend holds no persistent resources
// outside of Watch goroutines, which are bound to their contexts.
func (f *File) Close() error {
	return nil
}

// readSnapshot reads and decodes the backing file. A missing file is an
// empty snapshot, not an error.
func (f *File) readSnapshot() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode store file: %w", err)
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	return fields, nil
}

// writeSnapshot encodes the fields and atomically replaces the backing file.
func (f *File) writeSnapshot(fields map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}
