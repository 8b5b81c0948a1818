package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okarro/taskmaster/internal/firebase"
)

func TestKeepAliveRefreshesWhileLoggedIn(t *testing.T) {
	auth := &fakeAuthClient{
		signInCreds:  &firebase.Credentials{UserID: "u1", Email: "a@b.com", IDToken: "tok1", RefreshToken: "ref1"},
		refreshCreds: &firebase.Credentials{IDToken: "tok2"},
	}
	m, _ := newTestManager(t, auth)
	require.NoError(t, m.Login(context.Background(), "a@b.com", "secret123"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- KeepAlive(ctx, m, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool { return auth.RefreshCalls() >= 1 },
		time.Second, 5*time.Millisecond, "expected a forced refresh on tick")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("keep-alive did not stop after cancellation")
	}

	token, err := m.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "tok2", token)
}

func TestKeepAliveSkipsWhenLoggedOut(t *testing.T) {
	auth := &fakeAuthClient{}
	m, _ := newTestManager(t, auth)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- KeepAlive(ctx, m, time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keep-alive did not stop after cancellation")
	}
	assert.Equal(t, 0, auth.RefreshCalls(), "logged-out ticks must not hit the backend")
}
