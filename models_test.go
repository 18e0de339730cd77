package identity_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openwater/identity"
	"github.com/stretchr/testify/assert"
)

func TestUserNormalizeIdentifiers(t *testing.T) {
	user := &identity.User{
		Username: "  TestUser ",
		Email:    "Test@Example.COM",
	}

	user.NormalizeIdentifiers()

	assert.Equal(t, "testuser", user.UsernameLowered)
	assert.Equal(t, "test@example.com", user.EmailLowered)
	// display values are untouched
	assert.Equal(t, "  TestUser ", user.Username)
	assert.Equal(t, "Test@Example.COM", user.Email)

	user.Email = ""
	user.NormalizeIdentifiers()
	assert.Equal(t, "", user.EmailLowered)
}

func TestUserSetEmail(t *testing.T) {
	user := &identity.User{
		Username:      "testuser",
		Email:         "old@example.com",
		EmailVerified: true,
	}
	user.SetEmailVerificationToken("pending-token", time.Now().Add(time.Hour))
	user.NormalizeIdentifiers()

	user.SetEmail("new@example.com")

	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "new@example.com", user.EmailLowered)
	assert.False(t, user.EmailVerified)
	assert.Nil(t, user.EmailVerificationToken)
	assert.Nil(t, user.EmailVerificationTokenExpiration)
}

func TestUserPasswordHelpers(t *testing.T) {
	user := &identity.User{}
	assert.False(t, user.HasPassword())

	now := time.Now()
	user.SetPassword("some-hash", now)

	assert.True(t, user.HasPassword())
	assert.Equal(t, "some-hash", user.PasswordHash)
	assert.Equal(t, now, *user.LastPasswordChange)
}

func TestUserRecoveryTokenPairs(t *testing.T) {
	user := &identity.User{}
	expiration := time.Now().Add(time.Hour)

	user.SetPasswordResetToken("reset-token", expiration)
	assert.Equal(t, "reset-token", *user.PasswordResetToken)
	assert.Equal(t, expiration, *user.PasswordResetTokenExpiration)

	user.ClearPasswordResetToken()
	assert.Nil(t, user.PasswordResetToken)
	assert.Nil(t, user.PasswordResetTokenExpiration)

	user.SetEmailVerificationToken("verify-token", expiration)
	assert.Equal(t, "verify-token", *user.EmailVerificationToken)

	user.ClearEmailVerificationToken()
	assert.Nil(t, user.EmailVerificationToken)
	assert.Nil(t, user.EmailVerificationTokenExpiration)
}

func TestUserEnsureRole(t *testing.T) {
	user := &identity.User{ID: uuid.New()}
	user.EnsureRole()
	assert.Equal(t, identity.RoleUser, user.Role)

	admin := &identity.User{ID: uuid.New(), Role: identity.RoleAdmin}
	admin.EnsureRole()
	assert.Equal(t, identity.RoleAdmin, admin.Role)
}

func TestUserIsAdmin(t *testing.T) {
	assert.True(t, (&identity.User{Role: identity.RoleAdmin}).IsAdmin())
	assert.False(t, (&identity.User{Role: identity.RoleUser}).IsAdmin())
	assert.False(t, (&identity.User{}).IsAdmin())
}
