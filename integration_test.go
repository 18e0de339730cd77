package identity_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/openwater/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Track methods make fakeRecoveryStore usable as a UserTracker so the full
// login path can run against one in-memory store.
func (s *fakeRecoveryStore) TrackAttemptedLogin(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.LoginAttempts++
	return nil
}

func (s *fakeRecoveryStore) TrackSuccessfulLogin(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.LoginAttempts = 0
	user.LoginAttemptAt = nil
	return nil
}

var _ identity.UserTracker = (*fakeRecoveryStore)(nil)

func TestLoginRecoveryAndGuardsIntegration(t *testing.T) {
	ctx := context.Background()

	hash, err := identity.HashPasswordWithCost("originalPassword123!", 6)
	require.NoError(t, err)

	user := &identity.User{
		ID:           uuid.New(),
		Username:     "integration-user",
		Email:        "integration@example.com",
		PasswordHash: hash,
		Role:         identity.RoleUser,
	}

	store := &fakeRecoveryStore{}
	store.add(user)

	sink := &captureSink{}
	provider := identity.NewUserProvider(store).WithLogger(nopLogger{})
	auther := identity.NewAuthenticator(provider, newTestConfig()).
		WithLogger(nopLogger{}).
		WithActivitySink(sink)

	// login with the original password and walk the session back to the record
	token, err := auther.Login(ctx, "integration@example.com", "originalPassword123!")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	session, err := auther.SessionFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), session.GetUserID())

	caller, err := auther.UserFromSession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, user.ID, caller.ID)

	// reset the password through the recovery flow
	lifecycle := identity.NewTokenLifecycle(store).
		WithConfig(newTestConfig()).
		WithActivitySink(sink).
		WithLogger(nopLogger{})

	resetToken, err := lifecycle.RequestPasswordReset(ctx, "integration@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, resetToken)

	require.NoError(t, lifecycle.ResetPassword(ctx, resetToken, "rotatedPassword456!"))

	// old password no longer works, new one does
	_, err = auther.Login(ctx, "integration@example.com", "originalPassword123!")
	assert.Equal(t, identity.ErrMismatchedHashAndPassword, err)

	token, err = auther.Login(ctx, "integration@example.com", "rotatedPassword456!")
	require.NoError(t, err)

	// the session still validates, but a lockout now blocks the guard chain
	session, err = auther.SessionFromToken(token)
	require.NoError(t, err)

	user.IsLockedOut = true

	caller, err = auther.UserFromSession(ctx, session)
	require.NoError(t, err)

	guard := identity.Compose(
		identity.RequireSession(),
		identity.RequireActiveAccount(),
	)
	err = guard(ctx, &identity.Access{Caller: caller})
	assert.Equal(t, identity.ErrAccountLocked, err)

	// the sink saw the whole story
	assert.Len(t, sink.EventsOfType(identity.ActivityEventLoginSuccess), 2)
	assert.Len(t, sink.EventsOfType(identity.ActivityEventLoginFailure), 1)
	assert.Len(t, sink.EventsOfType(identity.ActivityEventPasswordResetRequested), 1)
	assert.Len(t, sink.EventsOfType(identity.ActivityEventPasswordResetSuccess), 1)
}
