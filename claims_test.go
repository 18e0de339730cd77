package identity_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/openwater/identity"
	"github.com/stretchr/testify/assert"
)

func TestFormatSubject(t *testing.T) {
	id := uuid.New()
	subject := identity.FormatSubject(id)
	assert.Equal(t, "user|"+id.String(), subject)
}

func TestParseSubject(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		subject string
		want    uuid.UUID
		wantErr bool
	}{
		{
			name:    "round trip",
			subject: identity.FormatSubject(id),
			want:    id,
		},
		{
			name:    "bare uuid without prefix",
			subject: id.String(),
			wantErr: true,
		},
		{
			name:    "wrong prefix",
			subject: "service|" + id.String(),
			wantErr: true,
		},
		{
			name:    "prefix with garbage id",
			subject: "user|not-a-uuid",
			wantErr: true,
		},
		{
			name:    "empty subject",
			subject: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := identity.ParseSubject(tt.subject)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, identity.ErrMalformedSubject, err)
				assert.Equal(t, uuid.Nil, got)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJWTClaims(t *testing.T) {
	id := uuid.New()
	issued := time.Now().Truncate(time.Second)
	expires := issued.Add(24 * time.Hour)

	claims := &identity.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.FormatSubject(id),
			Issuer:    "test-issuer",
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		UserRole: identity.RoleAdmin,
	}

	t.Run("Subject and UserID", func(t *testing.T) {
		assert.Equal(t, "user|"+id.String(), claims.Subject())
		assert.Equal(t, id.String(), claims.UserID())

		parsed, err := claims.UserUUID()
		assert.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("Role checks", func(t *testing.T) {
		assert.Equal(t, identity.RoleAdmin, claims.Role())
		assert.True(t, claims.HasRole(identity.RoleAdmin))
		assert.False(t, claims.HasRole(identity.RoleUser))
		assert.True(t, claims.IsAtLeast(identity.RoleUser))
		assert.True(t, claims.IsAtLeast(identity.RoleAdmin))
	})

	t.Run("Timestamps", func(t *testing.T) {
		assert.Equal(t, issued.Unix(), claims.IssuedAt().Unix())
		assert.Equal(t, expires.Unix(), claims.Expires().Unix())
	})

	t.Run("Malformed subject yields empty UserID", func(t *testing.T) {
		malformed := &identity.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()},
		}
		assert.Equal(t, "", malformed.UserID())

		_, err := malformed.UserUUID()
		assert.Equal(t, identity.ErrMalformedSubject, err)
	})

	t.Run("Zero timestamps", func(t *testing.T) {
		empty := &identity.JWTClaims{}
		assert.True(t, empty.Expires().IsZero())
		assert.True(t, empty.IssuedAt().IsZero())
	})
}
