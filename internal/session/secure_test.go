package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureStoreRoundTrip(t *testing.T) {
	store, err := NewSecureStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, store.Save("u1", "a@b.com", "tok1", "ref1", false))

	sess, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "a@b.com", sess.Email)
	assert.Equal(t, "tok1", sess.IDToken)
	assert.Equal(t, "ref1", sess.RefreshToken)
	assert.False(t, sess.IsGuest)
	assert.True(t, sess.LoggedIn)
}

func TestSecureStoreBytesAreNotPlaintext(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSecureStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, store.Save("u1", "a@b.com", "tok1", "ref1", false))

	onDisk, err := os.ReadFile(filepath.Join(dir, sessionFileName))
	require.NoError(t, err)

	plaintext, err := json.Marshal(&Session{
		UserID: "u1", Email: "a@b.com", LoggedIn: true,
		IDToken: "tok1", RefreshToken: "ref1",
	})
	require.NoError(t, err)

	assert.NotEqual(t, plaintext, onDisk)
	assert.NotContains(t, string(onDisk), "tok1")
	assert.NotContains(t, string(onDisk), "a@b.com")
}

func TestSecureStoreKeyFileReused(t *testing.T) {
	dir := t.TempDir()

	store1, err := NewSecureStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store1.Save("u1", "a@b.com", "tok1", "ref1", false))

	// A fresh store over the same directory picks up the same key file and
	// can read the session the first one wrote.
	store2, err := NewSecureStore(dir, nil)
	require.NoError(t, err)
	sess, err := store2.Load()
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "u1", sess.UserID)
}

func TestSecureStoreUndecryptableBlobSelfHeals(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSecureStore(dir, nil)
	require.NoError(t, err)

	path := filepath.Join(dir, sessionFileName)
	require.NoError(t, os.WriteFile(path, []byte("garbage bytes, not a ciphertext"), 0600))

	sess, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, sess)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSecureStoreWrongKeyTreatedAsNoSession(t *testing.T) {
	dir := t.TempDir()
	store1, err := NewSecureStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store1.Save("u1", "a@b.com", "tok1", "ref1", false))

	// Replace the key material; the old blob no longer decrypts.
	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte("different key material entirely"), 0600))

	store2, err := NewSecureStore(dir, nil)
	require.NoError(t, err)
	sess, err := store2.Load()
	assert.NoError(t, err)
	assert.Nil(t, sess)
}
