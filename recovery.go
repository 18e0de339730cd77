package identity

import (
	"context"
	"crypto/subtle"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// TokenStatus describes the state of a recovery token without consuming it.
type TokenStatus string

const (
	TokenStatusValid   TokenStatus = "valid"
	TokenStatusInvalid TokenStatus = "invalid"
	TokenStatusExpired TokenStatus = "expired"
)

// DefaultRecoveryTokenTTL applies when no TTL is configured.
var DefaultRecoveryTokenTTL = 48 * time.Hour

// ErrRecoveryTokenInvalid is returned when a recovery token does not match
// any outstanding request.
var ErrRecoveryTokenInvalid = goerrors.New("recovery token is invalid", goerrors.CategoryValidation).
	WithTextCode("RECOVERY_TOKEN_INVALID").
	WithCode(goerrors.CodeBadRequest)

// ErrRecoveryTokenExpired is returned when a recovery token matched a request
// but its expiration has passed.
var ErrRecoveryTokenExpired = goerrors.New("recovery token has expired", goerrors.CategoryValidation).
	WithTextCode("RECOVERY_TOKEN_EXPIRED").
	WithCode(goerrors.CodeBadRequest)

// RecoveryTokenStore is the persistence surface the lifecycle needs. Users
// satisfies it.
type RecoveryTokenStore interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	StorePasswordResetToken(ctx context.Context, id uuid.UUID, token string, expiration time.Time) (*User, error)
	StoreEmailVerificationToken(ctx context.Context, id uuid.UUID, token string, expiration time.Time) (*User, error)
	FindByPasswordResetToken(ctx context.Context, token string) (*User, error)
	FindByEmailVerificationToken(ctx context.Context, token string) (*User, error)
	ConsumePasswordResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*User, error)
	ConsumeEmailVerificationToken(ctx context.Context, token string, now time.Time) (*User, error)
}

// TokenLifecycle issues, inspects, and redeems single-use recovery tokens.
type TokenLifecycle struct {
	store            RecoveryTokenStore
	resetTTL         time.Duration
	verificationTTL  time.Duration
	passwordHashCost int
	activity         ActivitySink
	logger           Logger
	now              func() time.Time
}

// NewTokenLifecycle creates a lifecycle with sane defaults.
func NewTokenLifecycle(store RecoveryTokenStore) *TokenLifecycle {
	return &TokenLifecycle{
		store:            store,
		resetTTL:         DefaultRecoveryTokenTTL,
		verificationTTL:  DefaultRecoveryTokenTTL,
		passwordHashCost: DefaultPasswordHashCost,
		activity:         noopActivitySink{},
		logger:           defLogger{},
		now:              time.Now,
	}
}

// WithConfig applies TTLs and hash cost from configuration.
func (l *TokenLifecycle) WithConfig(cfg Config) *TokenLifecycle {
	if cfg == nil {
		return l
	}
	if ttl := cfg.GetPasswordResetTokenTTL(); ttl > 0 {
		l.resetTTL = ttl
	}
	if ttl := cfg.GetEmailVerificationTokenTTL(); ttl > 0 {
		l.verificationTTL = ttl
	}
	if cost := cfg.GetPasswordHashCost(); cost > 0 {
		l.passwordHashCost = cost
	}
	return l
}

// WithActivitySink sets the sink used to emit recovery events.
func (l *TokenLifecycle) WithActivitySink(sink ActivitySink) *TokenLifecycle {
	l.activity = normalizeActivitySink(sink)
	return l
}

// WithLogger overrides the logger.
func (l *TokenLifecycle) WithLogger(logger Logger) *TokenLifecycle {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// WithClock injects a custom clock, useful for tests.
func (l *TokenLifecycle) WithClock(clock func() time.Time) *TokenLifecycle {
	if clock != nil {
		l.now = clock
	}
	return l
}

// RequestPasswordReset issues a reset token for the account behind the
// identifier. Unknown identifiers return an empty token and no error so the
// call gives nothing away about which accounts exist. Issuing a new token
// replaces any outstanding one.
func (l *TokenLifecycle) RequestPasswordReset(ctx context.Context, identifier string) (string, error) {
	user, err := l.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return "", nil
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token, err := GenerateRecoveryToken()
	if err != nil {
		return "", err
	}

	expiration := l.now().Add(l.resetTTL)
	if _, err := l.store.StorePasswordResetToken(ctx, user.ID, token, expiration); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password reset token")
	}

	l.recordActivity(ctx, ActivityEventPasswordResetRequested, user.ID.String(), nil)

	return token, nil
}

// PasswordResetTokenStatus inspects a reset token without consuming it.
func (l *TokenLifecycle) PasswordResetTokenStatus(ctx context.Context, token string) (TokenStatus, error) {
	user, err := l.store.FindByPasswordResetToken(ctx, token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return TokenStatusInvalid, nil
		}
		return TokenStatusInvalid, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up password reset token")
	}

	return l.tokenStatus(token, user.PasswordResetToken, user.PasswordResetTokenExpiration), nil
}

// ResetPassword redeems a reset token and installs the new password. The
// redeem is a single conditional update so a token can only ever be spent
// once, no matter how many callers race on it.
func (l *TokenLifecycle) ResetPassword(ctx context.Context, token, newPassword string) error {
	hash, err := HashPasswordWithCost(newPassword, l.passwordHashCost)
	if err != nil {
		return err
	}

	now := l.now()
	user, err := l.store.ConsumePasswordResetToken(ctx, token, hash, now)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return l.redeemFailure(ctx, token, l.store.FindByPasswordResetToken)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem password reset token")
	}

	l.recordActivity(ctx, ActivityEventPasswordResetSuccess, user.ID.String(), nil)

	return nil
}

// RequestEmailVerification issues a verification token for the account. An
// account without an email address or with an already verified address gets
// an empty token and no error.
func (l *TokenLifecycle) RequestEmailVerification(ctx context.Context, identifier string) (string, error) {
	user, err := l.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return "", nil
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for email verification")
	}

	if user.Email == "" || user.EmailVerified {
		return "", nil
	}

	token, err := GenerateRecoveryToken()
	if err != nil {
		return "", err
	}

	expiration := l.now().Add(l.verificationTTL)
	if _, err := l.store.StoreEmailVerificationToken(ctx, user.ID, token, expiration); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store email verification token")
	}

	l.recordActivity(ctx, ActivityEventEmailVerifyRequested, user.ID.String(), nil)

	return token, nil
}

// EmailVerificationTokenStatus inspects a verification token without
// consuming it.
func (l *TokenLifecycle) EmailVerificationTokenStatus(ctx context.Context, token string) (TokenStatus, error) {
	user, err := l.store.FindByEmailVerificationToken(ctx, token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return TokenStatusInvalid, nil
		}
		return TokenStatusInvalid, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up email verification token")
	}

	return l.tokenStatus(token, user.EmailVerificationToken, user.EmailVerificationTokenExpiration), nil
}

// VerifyEmail redeems a verification token and marks the address verified.
func (l *TokenLifecycle) VerifyEmail(ctx context.Context, token string) error {
	now := l.now()
	user, err := l.store.ConsumeEmailVerificationToken(ctx, token, now)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return l.redeemFailure(ctx, token, l.store.FindByEmailVerificationToken)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem email verification token")
	}

	l.recordActivity(ctx, ActivityEventEmailVerified, user.ID.String(), nil)

	return nil
}

func (l *TokenLifecycle) tokenStatus(presented string, stored *string, expiration *time.Time) TokenStatus {
	if stored == nil || expiration == nil {
		return TokenStatusInvalid
	}

	if subtle.ConstantTimeCompare([]byte(presented), []byte(*stored)) != 1 {
		return TokenStatusInvalid
	}

	if !expiration.After(l.now()) {
		return TokenStatusExpired
	}

	return TokenStatusValid
}

// redeemFailure turns a failed conditional update into the right caller
// facing error. The token either never existed or sat past its expiration.
func (l *TokenLifecycle) redeemFailure(ctx context.Context, token string, lookup func(context.Context, string) (*User, error)) error {
	user, err := lookup(ctx, token)
	if err != nil {
		return ErrRecoveryTokenInvalid
	}

	var expiration *time.Time
	switch {
	case user.PasswordResetToken != nil && *user.PasswordResetToken == token:
		expiration = user.PasswordResetTokenExpiration
	case user.EmailVerificationToken != nil && *user.EmailVerificationToken == token:
		expiration = user.EmailVerificationTokenExpiration
	}

	if expiration != nil && !expiration.After(l.now()) {
		return ErrRecoveryTokenExpired
	}

	return ErrRecoveryTokenInvalid
}

func (l *TokenLifecycle) recordActivity(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: l.now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := normalizeActivitySink(l.activity).Record(ctx, event); err != nil {
		l.logger.Warn("activity sink record error: %v", err)
	}
}
