package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidCreds identifies failed credential checks. The same code
	// covers unknown identifiers and wrong passwords so responses cannot be
	// used to probe which accounts exist.
	TextCodeInvalidCreds = "INVALID_CREDENTIALS"
	// TextCodeAccountLocked identifies a locked out account.
	TextCodeAccountLocked = "ACCOUNT_LOCKED"
	// TextCodeEmailNotVerified identifies an account pending email verification.
	TextCodeEmailNotVerified = "EMAIL_NOT_VERIFIED"
	// TextCodeAdminRequired identifies insufficient role errors.
	TextCodeAdminRequired = "ADMIN_REQUIRED"
	// TextCodeNotAccountOwner identifies ownership check failures.
	TextCodeNotAccountOwner = "NOT_ACCOUNT_OWNER"
	// TextCodeSessionRequired identifies requests with no resolved session.
	TextCodeSessionRequired = "SESSION_REQUIRED"
	// TextCodeTokenExpired identifies expired session tokens.
	TextCodeTokenExpired = "TOKEN_EXPIRED"
	// TextCodeTokenMalformed identifies undecodable session tokens.
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
	// TextCodeMalformedSubject identifies tokens whose subject does not carry
	// a user reference.
	TextCodeMalformedSubject = "MALFORMED_SUBJECT"
	// TextCodeUsernameTaken identifies username uniqueness conflicts.
	TextCodeUsernameTaken = "USERNAME_TAKEN"
	// TextCodeEmailTaken identifies email uniqueness conflicts.
	TextCodeEmailTaken = "EMAIL_TAKEN"
	// TextCodeEmptyPassword identifies empty password input.
	TextCodeEmptyPassword = "EMPTY_PASSWORD"
	// TextCodeTooManyAttempts identifies login attempt throttling.
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
)

// ErrMismatchedHashAndPassword is returned when credentials do not verify.
// Deliberately indistinguishable from an unknown identifier.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrAccountLocked is returned when a locked out account reaches a guard.
var ErrAccountLocked = errors.New("account is locked out", errors.CategoryAuthz).
	WithTextCode(TextCodeAccountLocked).
	WithCode(errors.CodeForbidden)

// ErrEmailNotVerified is returned by guards that demand a verified address.
var ErrEmailNotVerified = errors.New("email address is not verified", errors.CategoryAuthz).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrAdminRequired is returned when an admin-only operation is attempted.
var ErrAdminRequired = errors.New("administrator role required", errors.CategoryAuthz).
	WithTextCode(TextCodeAdminRequired).
	WithCode(errors.CodeForbidden)

// ErrNotAccountOwner is returned when a caller targets somebody else's account.
var ErrNotAccountOwner = errors.New("caller does not own the target account", errors.CategoryAuthz).
	WithTextCode(TextCodeNotAccountOwner).
	WithCode(errors.CodeForbidden)

// ErrSessionRequired is returned when no valid session was resolved.
var ErrSessionRequired = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeSessionRequired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned for session tokens past their expiration.
var ErrTokenExpired = errors.New("session token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that cannot be decoded or verified.
var ErrTokenMalformed = errors.New("session token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrMalformedSubject is returned when a token subject is not "user|<id>".
var ErrMalformedSubject = errors.New("session token subject is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeMalformedSubject).
	WithCode(errors.CodeUnauthorized)

// ErrUsernameTaken is returned on username uniqueness violations. Conflicts
// name the field since the caller supplied the value (see ErrMismatchedHashAndPassword
// for the opposite stance on lookups).
var ErrUsernameTaken = errors.New("username is already taken", errors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(errors.CodeConflict)

// ErrEmailTaken is returned on email uniqueness violations.
var ErrEmailTaken = errors.New("email is already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrNoEmptyString is returned when an empty password reaches the hasher.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrTooManyLoginAttempts is returned when the attempt cooldown kicks in.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsConflictError reports whether err is one of the uniqueness conflicts.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.Category == errors.CategoryConflict
	}
	return false
}

// IsUniqueViolation detects unique constraint failures across the supported
// drivers. The create path relies on the constraint, not on pre-checks.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
