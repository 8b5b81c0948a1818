package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const sessionFileName = "session.json"

// FileStore persists the session as plain JSON in the application data
// directory. The session file is owned exclusively by the store; nothing
// else touches the path.
type FileStore struct {
	dir     string
	cleaner GuestCleaner
}

// NewFileStore creates the application data directory if needed. cleaner may
// be nil, in which case guest sessions are cleared locally only.
func NewFileStore(dir string, cleaner GuestCleaner) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dir: dir, cleaner: cleaner}, nil
}

// SetGuestCleaner installs the remote cleanup hook. The store is built
// before the task service that implements the hook, so it is wired late.
func (s *FileStore) SetGuestCleaner(cleaner GuestCleaner) {
	s.cleaner = cleaner
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, sessionFileName)
}

// Save overwrites any prior session. The write goes through a temp file and
// rename so a crash mid-write cannot leave a half-written session behind.
func (s *FileStore) Save(userID, email, token, refreshToken string, isGuest bool) error {
	sess := Session{
		UserID:       userID,
		Email:        email,
		LoggedIn:     true,
		IDToken:      token,
		RefreshToken: refreshToken,
		IsGuest:      isGuest,
	}
	data, err := json.Marshal(&sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := writeFileAtomic(s.path(), data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	log.Info().Str("email", email).Bool("isGuest", isGuest).Msg("session saved")
	return nil
}

// Load returns the persisted session, or (nil, nil) when none exists. A file
// that no longer parses is deleted and treated as no session; a missing
// session is a normal, recoverable state and must not surface as an error.
func (s *FileStore) Load() (*Session, error) {
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		log.Error().Err(err).Msg("corrupt session file, removing")
		if rmErr := os.Remove(s.path()); rmErr != nil {
			log.Error().Err(rmErr).Msg("failed to remove corrupt session file")
		}
		return nil, nil
	}
	return &sess, nil
}

// Clear removes the local session file. For guest sessions the guest's
// remote data is removed first, best effort; the local file goes away even
// when the remote cleanup fails.
func (s *FileStore) Clear() error {
	if sess, _ := s.Load(); sess != nil && sess.IsGuest && s.cleaner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.cleaner.RemoveUserData(ctx, sess.UserID); err != nil {
			log.Warn().Err(err).Str("userId", sess.UserID).Msg("failed to remove guest data")
		}
	}
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
