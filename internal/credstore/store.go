package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"staffsync-client/internal/logging"
)

// Store is the single source of truth for the current token pair and the
// cached user profile. The in-memory session is guarded by an RWMutex so a
// reader never observes a half-written pair; the on-disk copy is written
// atomically (temp file + rename) under a cross-process file lock.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *logging.Logger

	mu         sync.RWMutex
	current    Session
	hasSession bool
}

type UserProfile struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

type Session struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    int64       `json:"expires_at,omitempty"`
	User         UserProfile `json:"user"`
}

func (s Session) Complete() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.RefreshToken) != ""
}

func DefaultPath() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "staffsync", "credentials.json"), nil
}

func New(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		panic("credstore.New: logger must not be nil")
	}
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve credentials path: %w", err)
		}
		resolved = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("create credentials directory: %w", err)
	}
	store := &Store{
		path:   resolved,
		lock:   flock.New(resolved + ".lock"),
		logger: logger,
	}
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Path() string { return s.path }

// Load reads the persisted session from disk. A missing file is not an
// error; it just means nobody is logged in.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.current = Session{}
		s.hasSession = false
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("decode credentials: %w", err)
	}
	if !session.Complete() {
		s.logger.Warn("persisted credentials incomplete, treating as logged out")
		s.mu.Lock()
		s.current = Session{}
		s.hasSession = false
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.current = session
	s.hasSession = true
	s.mu.Unlock()
	s.logger.Debug("credentials loaded", logging.Field("user", session.User.Email))
	return nil
}

func (s *Store) Session() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.hasSession
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.RefreshToken
}

// SetSession replaces the whole session. Partial pairs are rejected so the
// store never holds an access token without its refresh counterpart.
func (s *Store) SetSession(session Session) error {
	if !session.Complete() {
		return errors.New("refusing to store incomplete token pair")
	}
	if err := s.persist(session); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = session
	s.hasSession = true
	s.mu.Unlock()
	return nil
}

// RotateAccessToken swaps in a fresh access token while keeping the rest of
// the session. Used by the refresh success path.
func (s *Store) RotateAccessToken(accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return errors.New("refusing to store empty access token")
	}
	s.mu.RLock()
	session := s.current
	has := s.hasSession
	s.mu.RUnlock()
	if !has {
		return errors.New("no session to rotate")
	}
	session.AccessToken = accessToken
	return s.SetSession(session)
}

// Clear wipes the session atomically: after Clear no reader can observe a
// leftover token from either half of the pair.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.current = Session{}
	s.hasSession = false
	s.mu.Unlock()

	if err := s.withFileLock(func() error {
		err := os.Remove(s.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}); err != nil {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

func (s *Store) persist(session Session) error {
	payload, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return s.withFileLock(func() error {
		tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
		if err != nil {
			return err
		}
		tmpPath := tmp.Name()
		if _, err := tmp.Write(payload); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpPath)
			return err
		}
		if err := os.Chmod(tmpPath, 0o600); err != nil {
			os.Remove(tmpPath)
			return err
		}
		if err := os.Rename(tmpPath, s.path); err != nil {
			os.Remove(tmpPath)
			return err
		}
		return nil
	})
}

func (s *Store) withFileLock(fn func() error) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire credentials lock: %w", err)
	}
	defer func() {
		_ = s.lock.Unlock()
	}()
	return fn()
}
