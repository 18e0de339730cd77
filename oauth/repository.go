package oauth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/openwater/identity"
)

// Link represents a linked provider identity.
type Link struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Email          string    `json:"email,omitempty"`
	Username       string    `json:"username,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LinkStore manages provider link persistence. Create must fail with
// ErrLinkConflict when the (provider, provider_user_id) pair already exists.
type LinkStore interface {
	FindByProviderID(ctx context.Context, provider, providerUserID string) (*Link, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]*Link, error)
	Create(ctx context.Context, link *Link) (*Link, error)
	DeleteByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) error
	// DeleteIfNotLast removes the link only while the account keeps at least
	// one other provider link. The guard and the delete must be a single
	// statement so concurrent unlinks cannot both observe a sibling. Reports
	// whether a row was deleted.
	DeleteIfNotLast(ctx context.Context, userID uuid.UUID, provider string) (bool, error)
}

// UserStore is the account surface the resolver needs. identity.Users
// satisfies it.
type UserStore interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*identity.User, error)
	Register(ctx context.Context, record *identity.User) (*identity.User, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}
