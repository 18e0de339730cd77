package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the persisted account record. The lowered columns back the
// case-insensitive uniqueness constraints; they are derived, never set
// directly by callers.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID              uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role            UserRole  `bun:"user_role,notnull" json:"user_role,omitempty"`
	Username        string    `bun:"username,notnull" json:"username,omitempty"`
	UsernameLowered string    `bun:"username_lowered,notnull,unique" json:"-"`
	Email           string    `bun:"email,nullzero" json:"email,omitempty"`
	EmailLowered    string    `bun:"email_lowered,nullzero,unique" json:"-"`
	EmailVerified   bool      `bun:"is_email_verified" json:"is_email_verified"`

	PasswordHash       string     `bun:"password_hash,nullzero" json:"-"`
	LastPasswordChange *time.Time `bun:"last_password_change,nullzero" json:"last_password_change,omitempty"`

	IsLockedOut bool `bun:"is_locked_out" json:"is_locked_out"`

	// Recovery token columns travel in pairs: a token is never persisted
	// without its expiration, and both are cleared together.
	EmailVerificationToken           *string    `bun:"email_verification_token,nullzero" json:"-"`
	EmailVerificationTokenExpiration *time.Time `bun:"email_verification_token_expiration,nullzero" json:"-"`
	PasswordResetToken               *string    `bun:"password_reset_token,nullzero" json:"-"`
	PasswordResetTokenExpiration     *time.Time `bun:"password_reset_token_expiration,nullzero" json:"-"`

	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at,nullzero" json:"login_attempt_at,omitempty"`

	MemberSince time.Time  `bun:"member_since,nullzero,notnull,default:current_timestamp" json:"member_since,omitempty"`
	LastLogin   *time.Time `bun:"last_login,nullzero" json:"last_login,omitempty"`
}

// HasPassword reports whether the account can authenticate with a password.
// OAuth-only accounts have none.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsAdmin reports whether the account holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NormalizeIdentifiers derives the lowered uniqueness columns from the
// display values. Must run before every insert or identifier update.
func (u *User) NormalizeIdentifiers() {
	u.UsernameLowered = strings.ToLower(strings.TrimSpace(u.Username))
	if u.Email != "" {
		u.EmailLowered = strings.ToLower(strings.TrimSpace(u.Email))
	} else {
		u.EmailLowered = ""
	}
}

// SetPassword replaces the stored hash and stamps the change time. The two
// fields always move together.
func (u *User) SetPassword(hash string, at time.Time) {
	u.PasswordHash = hash
	u.LastPasswordChange = &at
}

// SetEmail replaces the address, resets verification state, and drops any
// outstanding verification token so a token minted for the previous address
// cannot be replayed against the new one.
func (u *User) SetEmail(email string) {
	u.Email = email
	u.EmailVerified = false
	u.ClearEmailVerificationToken()
	u.NormalizeIdentifiers()
}

// SetPasswordResetToken stores a reset token with its expiration. Issuing a
// new token silently invalidates the previous one.
func (u *User) SetPasswordResetToken(token string, expiration time.Time) {
	u.PasswordResetToken = &token
	u.PasswordResetTokenExpiration = &expiration
}

// ClearPasswordResetToken drops both reset token fields.
func (u *User) ClearPasswordResetToken() {
	u.PasswordResetToken = nil
	u.PasswordResetTokenExpiration = nil
}

// SetEmailVerificationToken stores a verification token with its expiration.
func (u *User) SetEmailVerificationToken(token string, expiration time.Time) {
	u.EmailVerificationToken = &token
	u.EmailVerificationTokenExpiration = &expiration
}

// ClearEmailVerificationToken drops both verification token fields.
func (u *User) ClearEmailVerificationToken() {
	u.EmailVerificationToken = nil
	u.EmailVerificationTokenExpiration = nil
}

// EnsureRole backfills the default role on records created without one.
func (u *User) EnsureRole() {
	if u.Role == "" {
		u.Role = RoleUser
	}
}
