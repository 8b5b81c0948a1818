package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	removed []string
	err     error
}

func (f *fakeCleaner) RemoveUserData(ctx context.Context, userID string) error {
	f.removed = append(f.removed, userID)
	return f.err
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	err = store.Save("u1", "a@b.com", "tok1", "ref1", false)
	require.NoError(t, err)

	sess, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, &Session{
		UserID:       "u1",
		Email:        "a@b.com",
		LoggedIn:     true,
		IDToken:      "tok1",
		RefreshToken: "ref1",
		IsGuest:      false,
	}, sess)
}

func TestFileStoreLoadWithoutSession(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	sess, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, sess)
}

func TestFileStoreSaveOverwritesPriorSession(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, store.Save("u1", "a@b.com", "tok1", "ref1", false))
	require.NoError(t, store.Save("u2", "c@d.com", "tok2", "ref2", false))

	sess, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "u2", sess.UserID)
	assert.Equal(t, "c@d.com", sess.Email)
}

func TestFileStoreCorruptFileSelfHeals(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	path := filepath.Join(dir, sessionFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	sess, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, sess)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "corrupt session file should be removed")
}

func TestFileStoreClearRemovesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, store.Save("u1", "a@b.com", "tok1", "ref1", false))
	require.NoError(t, store.Clear())

	_, statErr := os.Stat(filepath.Join(dir, sessionFileName))
	assert.True(t, os.IsNotExist(statErr))

	// A second clear with no file present is not an error.
	assert.NoError(t, store.Clear())
}

func TestFileStoreClearGuestRemovesRemoteData(t *testing.T) {
	dir := t.TempDir()
	cleaner := &fakeCleaner{}
	store, err := NewFileStore(dir, cleaner)
	require.NoError(t, err)

	guest := NewGuestSession(time.Now())
	require.NoError(t, store.Save(guest.UserID, "", "", "", true))
	require.NoError(t, store.Clear())

	assert.Equal(t, []string{guest.UserID}, cleaner.removed)
}

func TestFileStoreClearGuestIgnoresRemoteFailure(t *testing.T) {
	dir := t.TempDir()
	cleaner := &fakeCleaner{err: errors.New("backend down")}
	store, err := NewFileStore(dir, cleaner)
	require.NoError(t, err)

	require.NoError(t, store.Save("guest_20240101_120000", "", "", "", true))
	require.NoError(t, store.Clear())

	// Remote cleanup failed but the local file is gone regardless.
	assert.Len(t, cleaner.removed, 1)
	_, statErr := os.Stat(filepath.Join(dir, sessionFileName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStoreClearNonGuestSkipsCleaner(t *testing.T) {
	cleaner := &fakeCleaner{}
	store, err := NewFileStore(t.TempDir(), cleaner)
	require.NoError(t, err)

	require.NoError(t, store.Save("u1", "a@b.com", "tok1", "ref1", false))
	require.NoError(t, store.Clear())
	assert.Empty(t, cleaner.removed)
}

func TestNewGuestSessionIDPattern(t *testing.T) {
	sess := NewGuestSession(time.Date(2024, 3, 7, 15, 4, 5, 0, time.UTC))
	assert.Equal(t, "guest_20240307_150405", sess.UserID)
	assert.True(t, sess.IsGuest)
	assert.True(t, sess.LoggedIn)
	assert.Regexp(t, regexp.MustCompile(`^guest_\d{8}_\d{6}$`), sess.UserID)
}
