package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/openwater/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCredentialStore struct {
	users           map[uuid.UUID]*identity.User
	passwordUpdates int
	emailUpdates    int
}

func newFakeCredentialStore(users ...*identity.User) *fakeCredentialStore {
	s := &fakeCredentialStore{users: map[uuid.UUID]*identity.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeCredentialStore) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	for _, u := range s.users {
		if u.ID.String() == identifier || u.Email == identifier || u.Username == identifier {
			return u, nil
		}
	}
	return nil, notFoundErr()
}

func (s *fakeCredentialStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) (*identity.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, notFoundErr()
	}
	u.SetPassword(passwordHash, at)
	u.ClearPasswordResetToken()
	s.passwordUpdates++
	return u, nil
}

func (s *fakeCredentialStore) UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*identity.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, notFoundErr()
	}
	u.SetEmail(email)
	s.emailUpdates++
	return u, nil
}

var _ identity.CredentialStore = (*fakeCredentialStore)(nil)

func TestCredentialServiceChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("successful change", func(t *testing.T) {
		hash, _ := identity.HashPasswordWithCost("currentPassword123!", 6)
		user := &identity.User{ID: uuid.New(), Username: "testuser", PasswordHash: hash}
		store := newFakeCredentialStore(user)

		sink := &captureSink{}
		service := identity.NewCredentialService(store).
			WithConfig(newTestConfig()).
			WithActivitySink(sink).
			WithLogger(nopLogger{})

		err := service.ChangePassword(ctx, user.ID, "currentPassword123!", "newPassword123!")
		require.NoError(t, err)

		assert.Equal(t, 1, store.passwordUpdates)
		assert.NoError(t, identity.ComparePasswordAndHash("newPassword123!", user.PasswordHash))
		assert.NotNil(t, user.LastPasswordChange)
		assert.Len(t, sink.EventsOfType(identity.ActivityEventPasswordChanged), 1)
	})

	t.Run("wrong current password writes nothing", func(t *testing.T) {
		hash, _ := identity.HashPasswordWithCost("currentPassword123!", 6)
		user := &identity.User{ID: uuid.New(), Username: "testuser", PasswordHash: hash}
		store := newFakeCredentialStore(user)

		service := identity.NewCredentialService(store).WithLogger(nopLogger{})

		err := service.ChangePassword(ctx, user.ID, "wrongPassword", "newPassword123!")
		assert.Equal(t, identity.ErrMismatchedHashAndPassword, err)
		assert.Zero(t, store.passwordUpdates)
		assert.NoError(t, identity.ComparePasswordAndHash("currentPassword123!", user.PasswordHash))
	})

	t.Run("account without a password cannot change it", func(t *testing.T) {
		user := &identity.User{ID: uuid.New(), Username: "oauthonly"}
		store := newFakeCredentialStore(user)

		service := identity.NewCredentialService(store).WithLogger(nopLogger{})

		err := service.ChangePassword(ctx, user.ID, "", "newPassword123!")
		assert.Equal(t, identity.ErrMismatchedHashAndPassword, err)
		assert.Zero(t, store.passwordUpdates)
	})

	t.Run("unknown account", func(t *testing.T) {
		store := newFakeCredentialStore()
		service := identity.NewCredentialService(store).WithLogger(nopLogger{})

		err := service.ChangePassword(ctx, uuid.New(), "currentPassword123!", "newPassword123!")
		assert.Equal(t, identity.ErrIdentityNotFound, err)
	})
}

func TestCredentialServiceChangeEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("change resets verification state", func(t *testing.T) {
		token := "pending-token"
		expiration := time.Now().Add(time.Hour)
		user := &identity.User{
			ID:            uuid.New(),
			Username:      "testuser",
			Email:         "old@example.com",
			EmailVerified: true,
		}
		user.SetEmailVerificationToken(token, expiration)
		store := newFakeCredentialStore(user)

		service := identity.NewCredentialService(store).WithLogger(nopLogger{})

		updated, err := service.ChangeEmail(ctx, user.ID, "new@example.com")
		require.NoError(t, err)

		assert.Equal(t, "new@example.com", updated.Email)
		assert.False(t, updated.EmailVerified)
		assert.Nil(t, updated.EmailVerificationToken)
		assert.Equal(t, 1, store.emailUpdates)
	})

	t.Run("unknown account", func(t *testing.T) {
		store := newFakeCredentialStore()
		service := identity.NewCredentialService(store).WithLogger(nopLogger{})

		updated, err := service.ChangeEmail(ctx, uuid.New(), "new@example.com")
		assert.Nil(t, updated)
		assert.Equal(t, identity.ErrIdentityNotFound, err)
	})
}
