package transfer

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/socklab/internal/ports"
	"github.com/bft-labs/socklab/pkg/log"
)

// DefaultDebounce is how long the credential store waits after the last
// change to its file before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Credentials maps user names to hex SHA-512 password digests. It is
// the content of the auth file.
type Credentials map[string]string

// CredentialStore holds the accepted credentials and reloads them when
// the auth file changes.
type CredentialStore struct {
	path     string
	debounce time.Duration
	logger   ports.Logger

	mu    sync.RWMutex
	users Credentials

	timerMu sync.Mutex
	timer   *time.Timer
	reloads int
}

// LoadCredentials reads the JSON auth file at path.
func LoadCredentials(path string, logger ports.Logger) (*CredentialStore, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	s := &CredentialStore{path: path, debounce: DefaultDebounce, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewCredentialStore returns a store serving users, without a backing
// file. Watch is a no-op for such a store.
func NewCredentialStore(users Credentials) *CredentialStore {
	return &CredentialStore{users: users, logger: log.NewNoopLogger()}
}

// Reload re-reads the auth file. On error the previous credentials stay
// in effect.
func (s *CredentialStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read auth file: %w", err)
	}
	var users Credentials
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("parse auth file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()

	s.timerMu.Lock()
	s.reloads++
	s.timerMu.Unlock()
	return nil
}

// Verify reports whether hash is the stored digest for name.
func (s *CredentialStore) Verify(name, hash string) bool {
	s.mu.RLock()
	want, ok := s.users[name]
	s.mu.RUnlock()
	if !ok {
		// Compare anyway so unknown names cost the same.
		want = HashPassword("")
	}
	match := subtle.ConstantTimeCompare([]byte(want), []byte(hash)) == 1
	return ok && match
}

// Len returns the number of users.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Watch reloads the store whenever its file is written or replaced,
// until ctx is done. The parent directory is watched so that editors
// replacing the file are noticed.
func (s *CredentialStore) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}
	defer s.stopTimer()

	name := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("credential watcher error", log.Err(err))
		}
	}
}

func (s *CredentialStore) scheduleReload() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Reload(); err != nil {
			s.logger.Warn("credential reload failed, keeping previous users", log.Err(err))
			return
		}
		s.logger.Info("credentials reloaded", log.String("path", s.path), log.Int("users", s.Len()))
	})
}

func (s *CredentialStore) stopTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}

// reloadCount returns how many times the file was loaded.
func (s *CredentialStore) reloadCount() int {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.reloads
}
