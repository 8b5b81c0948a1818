package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okarro/taskmaster/internal/firebase"
)

type fakeAuthClient struct {
	mu           sync.Mutex
	signInCreds  *firebase.Credentials
	signInErr    error
	refreshCreds *firebase.Credentials
	refreshErr   error
	refreshCalls int
	resetEmails  []string
	deletedWith  []string
}

func (f *fakeAuthClient) SignIn(ctx context.Context, email, password string) (*firebase.Credentials, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.signInCreds, nil
}

func (f *fakeAuthClient) SignUp(ctx context.Context, email, password string) (*firebase.Credentials, error) {
	return f.SignIn(ctx, email, password)
}

func (f *fakeAuthClient) Refresh(ctx context.Context, refreshToken string) (*firebase.Credentials, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshCreds, nil
}

func (f *fakeAuthClient) RefreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *fakeAuthClient) SendPasswordReset(ctx context.Context, email string) error {
	f.resetEmails = append(f.resetEmails, email)
	return nil
}

func (f *fakeAuthClient) DeleteAccount(ctx context.Context, idToken string) error {
	f.deletedWith = append(f.deletedWith, idToken)
	return nil
}

func newTestManager(t *testing.T, auth *fakeAuthClient) (*Manager, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return NewManager(store, auth, time.Hour), store
}

func TestManagerLoginPersistsSession(t *testing.T) {
	auth := &fakeAuthClient{signInCreds: &firebase.Credentials{
		UserID: "u1", Email: "a@b.com", IDToken: "tok1", RefreshToken: "ref1",
	}}
	m, store := newTestManager(t, auth)

	require.NoError(t, m.Login(context.Background(), "a@b.com", "secret123"))

	assert.True(t, m.LoggedIn())
	assert.Equal(t, "u1", m.Current().UserID)

	sess, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, &Session{
		UserID:       "u1",
		Email:        "a@b.com",
		LoggedIn:     true,
		IDToken:      "tok1",
		RefreshToken: "ref1",
		IsGuest:      false,
	}, sess)
}

func TestManagerLoginFailurePropagates(t *testing.T) {
	auth := &fakeAuthClient{signInErr: &firebase.Error{Code: "INVALID_PASSWORD"}}
	m, _ := newTestManager(t, auth)

	err := m.Login(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)
	assert.False(t, m.LoggedIn())
}

func TestManagerRestore(t *testing.T) {
	auth := &fakeAuthClient{}
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Save("u1", "a@b.com", "tok1", "ref1", false))

	m := NewManager(store, auth, time.Hour)
	require.NoError(t, m.Restore())

	assert.True(t, m.LoggedIn())
	assert.Equal(t, "a@b.com", m.Current().Email)

	token, err := m.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "tok1", token)
	assert.Equal(t, 0, auth.refreshCalls)
}

func TestManagerRestoreClearsStaleGuestSession(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Save("guest_20240101_120000", "", "", "", true))

	m := NewManager(store, &fakeAuthClient{}, time.Hour)
	require.NoError(t, m.Restore())

	assert.False(t, m.LoggedIn())
	sess, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, sess, "guest session must not survive a restart")
}

func TestManagerGuestLogin(t *testing.T) {
	m, store := newTestManager(t, &fakeAuthClient{})
	m.now = func() time.Time { return time.Date(2024, 3, 7, 15, 4, 5, 0, time.UTC) }

	require.NoError(t, m.GuestLogin())
	assert.Equal(t, "guest_20240307_150405", m.Current().UserID)
	assert.True(t, m.Current().IsGuest)

	sess, err := store.Load()
	require.NoError(t, err)
	assert.True(t, sess.IsGuest)

	// Guests have no token lifecycle.
	_, err = m.Token(context.Background(), false)
	assert.ErrorIs(t, err, firebase.ErrNoValidToken)
}

func TestManagerLogoutClearsEverything(t *testing.T) {
	auth := &fakeAuthClient{signInCreds: &firebase.Credentials{
		UserID: "u1", Email: "a@b.com", IDToken: "tok1", RefreshToken: "ref1",
	}}
	m, store := newTestManager(t, auth)
	require.NoError(t, m.Login(context.Background(), "a@b.com", "secret123"))

	require.NoError(t, m.Logout())
	assert.False(t, m.LoggedIn())

	sess, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, err = m.Token(context.Background(), false)
	assert.ErrorIs(t, err, firebase.ErrNoValidToken)
}

func TestManagerTokenRefreshPersistsNewToken(t *testing.T) {
	auth := &fakeAuthClient{
		signInCreds:  &firebase.Credentials{UserID: "u1", Email: "a@b.com", IDToken: "tok1", RefreshToken: "ref1"},
		refreshCreds: &firebase.Credentials{IDToken: "tok2"},
	}
	m, store := newTestManager(t, auth)
	require.NoError(t, m.Login(context.Background(), "a@b.com", "secret123"))

	token, err := m.Token(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "tok2", token)
	assert.Equal(t, 1, auth.refreshCalls)

	// The refreshed token reached the store so a later process start sees it.
	sess, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok2", sess.IDToken)
	assert.Equal(t, "ref1", sess.RefreshToken)
}

func TestManagerTokenConcurrentRefresh(t *testing.T) {
	auth := &fakeAuthClient{
		signInCreds:  &firebase.Credentials{UserID: "u1", Email: "a@b.com", IDToken: "tok1", RefreshToken: "ref1"},
		refreshCreds: &firebase.Credentials{IDToken: "tok2", RefreshToken: "ref2"},
	}
	m, store := newTestManager(t, auth)
	require.NoError(t, m.Login(context.Background(), "a@b.com", "secret123"))

	// A task command's token fetch and the keep-alive refresh hit Token
	// on the same manager at the same time.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := m.Token(context.Background(), true)
			assert.NoError(t, err)
			assert.Equal(t, "tok2", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, "tok2", m.Current().IDToken)
	assert.Equal(t, "ref2", m.Current().RefreshToken)

	sess, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok2", sess.IDToken)
	assert.Equal(t, "ref2", sess.RefreshToken)
}

func TestManagerTokenWithoutSession(t *testing.T) {
	m, _ := newTestManager(t, &fakeAuthClient{})
	_, err := m.Token(context.Background(), false)
	assert.ErrorIs(t, err, firebase.ErrNoValidToken)
}

func TestManagerDeleteAccount(t *testing.T) {
	auth := &fakeAuthClient{signInCreds: &firebase.Credentials{
		UserID: "u1", Email: "a@b.com", IDToken: "tok1", RefreshToken: "ref1",
	}}
	m, store := newTestManager(t, auth)
	require.NoError(t, m.Login(context.Background(), "a@b.com", "secret123"))

	require.NoError(t, m.DeleteAccount(context.Background()))
	assert.Equal(t, []string{"tok1"}, auth.deletedWith)
	assert.False(t, m.LoggedIn())

	sess, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestManagerResetPassword(t *testing.T) {
	auth := &fakeAuthClient{}
	m, _ := newTestManager(t, auth)

	require.NoError(t, m.ResetPassword(context.Background(), "a@b.com"))
	assert.Equal(t, []string{"a@b.com"}, auth.resetEmails)
}
