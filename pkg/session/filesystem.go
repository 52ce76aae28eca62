package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FileStorage persists state as JSON files under a root directory, one file
// per key. Writes are atomic (temp file + rename) so a concurrent reader
// never observes a partial session.
type FileStorage struct {
	rootDir string
	log     *logrus.Logger
}

// NewFileStorage creates the root directory if needed.
func NewFileStorage(rootDir string, log *logrus.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(rootDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	if log == nil {
		log = logrus.New()
	}
	return &FileStorage{rootDir: rootDir, log: log}, nil
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.rootDir, key+".json")
}

// Save implements Storage.
func (s *FileStorage) Save(_ context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(s.rootDir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Load implements Storage.
func (s *FileStorage) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return data, nil
}

// Delete implements Storage.
func (s *FileStorage) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

// Watch implements Watcher. onChange fires whenever the key's file is
// rewritten by anyone, including other processes, until ctx is done.
func (s *FileStorage) Watch(ctx context.Context, key string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory, not the file: atomic renames replace the inode.
	if err := watcher.Add(s.rootDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch state directory: %w", err)
	}

	target := s.path(key)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != target && !strings.HasPrefix(filepath.Base(ev.Name), key+".") {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				if ev.Name == target {
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.WithError(err).Warn("state file watcher error")
			}
		}
	}()
	return nil
}
