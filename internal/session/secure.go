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

const keyFileName = ".key"

// SecureStore persists the session encrypted with AES-256-GCM. The key is
// derived from locally generated material kept in a key file beside the
// session file, created once and reused thereafter. An unreadable key file
// or undecryptable blob is treated exactly like a missing session.
type SecureStore struct {
	dir     string
	key     []byte
	cleaner GuestCleaner
}

func NewSecureStore(dir string, cleaner GuestCleaner) (*SecureStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	material, err := loadOrCreateKeyFile(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(material)
	if err != nil {
		return nil, err
	}
	return &SecureStore{dir: dir, key: key, cleaner: cleaner}, nil
}

// SetGuestCleaner installs the remote cleanup hook.
func (s *SecureStore) SetGuestCleaner(cleaner GuestCleaner) {
	s.cleaner = cleaner
}

func (s *SecureStore) path() string {
	return filepath.Join(s.dir, sessionFileName)
}

func (s *SecureStore) Save(userID, email, token, refreshToken string, isGuest bool) error {
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
	blob, err := encrypt(data, s.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}
	if err := writeFileAtomic(s.path(), blob); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	log.Info().Str("email", email).Bool("isGuest", isGuest).Msg("encrypted session saved")
	return nil
}

func (s *SecureStore) Load() (*Session, error) {
	blob, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	data, err := decrypt(blob, s.key)
	if err != nil {
		return s.discardCorrupt(err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return s.discardCorrupt(err)
	}
	return &sess, nil
}

// discardCorrupt self-heals an unreadable session file. The failure is
// swallowed: a missing session means re-prompting login, which is the
// correct recovery either way.
func (s *SecureStore) discardCorrupt(cause error) (*Session, error) {
	log.Error().Err(cause).Msg("undecryptable session file, removing")
	if err := os.Remove(s.path()); err != nil {
		log.Error().Err(err).Msg("failed to remove corrupt session file")
	}
	return nil, nil
}

func (s *SecureStore) Clear() error {
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
