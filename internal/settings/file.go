package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"imagetolink/internal/logging"
)

// FileStore keeps the settings object in a JSON file.
type FileStore struct {
	path string
	log  *logging.Logger
}

func NewFileStore(path string, logger *logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &FileStore{path: path, log: logger}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", s.path, err)
	}
	return data, nil
}

func (s *FileStore) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Watch calls onChange whenever the settings file is written, created,
// replaced or removed, until ctx ends. The parent directory is watched so
// editors that save through a rename are seen too.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					s.log.Debug("settings file changed", "path", s.path, "op", ev.Op.String())
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("settings watcher error", "error", err)
			}
		}
	}()
	return nil
}
