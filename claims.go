package identity

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SubjectPrefix tags session token subjects as user references.
const SubjectPrefix = "user|"

// FormatSubject encodes a user id as a session token subject.
func FormatSubject(id uuid.UUID) string {
	return SubjectPrefix + id.String()
}

// ParseSubject decodes a "user|<id>" subject back into a user id. Any other
// shape is rejected so tokens minted for non-user principals never resolve.
func ParseSubject(subject string) (uuid.UUID, error) {
	if !strings.HasPrefix(subject, SubjectPrefix) {
		return uuid.Nil, ErrMalformedSubject
	}

	id, err := uuid.Parse(strings.TrimPrefix(subject, SubjectPrefix))
	if err != nil {
		return uuid.Nil, ErrMalformedSubject
	}

	return id, nil
}

// AuthClaims represents structured JWT claims
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UserRole string   `json:"role,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user id carried in the subject, or "" for malformed
// subjects.
func (c *JWTClaims) UserID() string {
	id, err := ParseSubject(c.RegisteredClaims.Subject)
	if err != nil {
		return ""
	}
	return id.String()
}

// UserUUID returns the parsed user id from the subject.
func (c *JWTClaims) UserUUID() (uuid.UUID, error) {
	return ParseSubject(c.RegisteredClaims.Subject)
}

// Role returns the global role
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// HasRole checks if the user has a specific role
func (c *JWTClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (c *JWTClaims) IsAtLeast(minRole string) bool {
	return RoleIsAtLeast(UserRole(c.UserRole), UserRole(minRole))
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
