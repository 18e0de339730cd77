package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// CredentialStore is the persistence surface the credential service needs.
// Users satisfies it.
type CredentialStore interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, at time.Time) (*User, error)
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*User, error)
}

// CredentialService handles password and email changes for authenticated
// accounts. Recovery flows that do not know the current password live in
// TokenLifecycle.
type CredentialService struct {
	store            CredentialStore
	passwordHashCost int
	activity         ActivitySink
	logger           Logger
	now              func() time.Time
}

// NewCredentialService creates a service with sane defaults.
func NewCredentialService(store CredentialStore) *CredentialService {
	return &CredentialService{
		store:            store,
		passwordHashCost: DefaultPasswordHashCost,
		activity:         noopActivitySink{},
		logger:           defLogger{},
		now:              time.Now,
	}
}

// WithConfig applies the hash cost from configuration.
func (s *CredentialService) WithConfig(cfg Config) *CredentialService {
	if cfg != nil && cfg.GetPasswordHashCost() > 0 {
		s.passwordHashCost = cfg.GetPasswordHashCost()
	}
	return s
}

// WithActivitySink sets the sink used to emit credential events.
func (s *CredentialService) WithActivitySink(sink ActivitySink) *CredentialService {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithLogger overrides the logger.
func (s *CredentialService) WithLogger(logger Logger) *CredentialService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock injects a custom clock, useful for tests.
func (s *CredentialService) WithClock(clock func() time.Time) *CredentialService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// ChangePassword verifies the current password before installing a new one.
// Nothing is written unless the current password checks out, including for
// accounts that have no password at all.
func (s *CredentialService) ChangePassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.store.GetByIdentifier(ctx, id.String())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrIdentityNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password change")
	}

	if !user.HasPassword() {
		return ErrMismatchedHashAndPassword
	}

	if err := ComparePasswordAndHash(currentPassword, user.PasswordHash); err != nil {
		return err
	}

	hash, err := HashPasswordWithCost(newPassword, s.passwordHashCost)
	if err != nil {
		return err
	}

	if _, err := s.store.UpdatePassword(ctx, user.ID, hash, s.now()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	s.recordActivity(ctx, ActivityEventPasswordChanged, user.ID.String())

	return nil
}

// ChangeEmail swaps the account email. Verification state and any pending
// verification token are reset along with it.
func (s *CredentialService) ChangeEmail(ctx context.Context, id uuid.UUID, email string) (*User, error) {
	user, err := s.store.UpdateEmail(ctx, id, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	return user, nil
}

func (s *CredentialService) recordActivity(ctx context.Context, eventType ActivityEventType, userID string) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   map[string]any{},
		OccurredAt: s.now(),
	}

	if err := normalizeActivitySink(s.activity).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
