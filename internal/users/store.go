// Package users owns the authorized-user allowlist: a YAML file mapping
// Discord IDs to display names and roles. The file is watched with
// fsnotify, so edits take effect without a restart.
package users

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ReignOfTea/protest-dash/internal/logging"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)

type User struct {
	DiscordID string `yaml:"discord_id" json:"discord_id"`
	Name      string `yaml:"name" json:"name"`
	Role      Role   `yaml:"role" json:"role"`
}

type allowlistFile struct {
	Users []User `yaml:"users"`
}

// Store keeps the allowlist in memory and re-reads the backing file
// whenever it changes. A reload that fails keeps the last good state.
type Store struct {
	path    string
	salt    []byte
	logger  *logging.Logger
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	users map[string]User
}

func NewStore(path string, salt []byte, logger *logging.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		salt:   salt,
		logger: logger,
		users:  map[string]User{},
	}

	if err := s.reload(); err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files via
	// rename, which drops a watch registered on the file itself.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating allowlist watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching allowlist directory: %w", err)
	}
	s.watcher = watcher

	go s.watchLoop()

	return s, nil
}

func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// watchLoop processes filesystem events
func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFSEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("allowlist watcher error", zap.Error(err))
		}
	}
}

func (s *Store) handleFSEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(s.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	if err := s.reload(); err != nil {
		s.logger.Error("allowlist reload failed, keeping previous state",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return
	}

	s.mu.RLock()
	count := len(s.users)
	s.mu.RUnlock()
	s.logger.Info("allowlist reloaded", zap.Int("users", count))
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading allowlist: %w", err)
	}

	var file allowlistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing allowlist: %w", err)
	}

	users := make(map[string]User, len(file.Users))
	for _, u := range file.Users {
		if u.DiscordID == "" {
			return fmt.Errorf("allowlist entry %q has no discord_id", u.Name)
		}
		if u.Role != RoleAdmin && u.Role != RoleEditor {
			return fmt.Errorf("allowlist entry %q has unknown role %q", u.DiscordID, u.Role)
		}
		users[u.DiscordID] = u
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	return nil
}

// Lookup returns the allowlisted user for a Discord ID.
func (s *Store) Lookup(discordID string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[discordID]
	return u, ok
}

// List returns every allowlisted user, sorted by name.
func (s *Store) List() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ActorTag derives the anonymized identifier written into commit
// messages in place of a username. HMAC keyed with the server salt
// keeps the mapping stable across restarts but non-reversible for
// anyone reading the public history.
func (s *Store) ActorTag(discordID string) string {
	mac := hmac.New(sha256.New, s.salt)
	mac.Write([]byte(discordID))
	return hex.EncodeToString(mac.Sum(nil))[:12]
}
