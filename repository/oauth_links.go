package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/openwater/identity/oauth"
	"github.com/uptrace/bun"
)

// OAuthLinkModel is the Bun model for provider identity links. The unique
// groups enforce one local account per provider identity and one link per
// provider per account.
type OAuthLinkModel struct {
	bun.BaseModel `bun:"table:oauth_links,alias:lnk"`

	ID             uuid.UUID `bun:"id,pk,nullzero,type:uuid"`
	UserID         uuid.UUID `bun:"user_id,notnull,type:uuid,unique:user_provider"`
	Provider       string    `bun:"provider,notnull,unique:provider_subject,unique:user_provider"`
	ProviderUserID string    `bun:"provider_user_id,notnull,unique:provider_subject"`
	Email          string    `bun:"email"`
	Username       string    `bun:"username"`
	AvatarURL      string    `bun:"avatar_url"`
	CreatedAt      time.Time `bun:"created_at,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,default:current_timestamp"`
}

// OAuthLinkRepository implements oauth.LinkStore using Bun.
type OAuthLinkRepository struct {
	db *bun.DB
}

var _ oauth.LinkStore = (*OAuthLinkRepository)(nil)

// NewOAuthLinkRepository creates a new repository.
func NewOAuthLinkRepository(db *bun.DB) *OAuthLinkRepository {
	return &OAuthLinkRepository{db: db}
}

// FindByProviderID implements oauth.LinkStore.
func (r *OAuthLinkRepository) FindByProviderID(ctx context.Context, provider, providerUserID string) (*oauth.Link, error) {
	var model OAuthLinkModel
	err := r.db.NewSelect().
		Model(&model).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, goerrors.New("provider link not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{
					"provider": provider,
				})
		}
		return nil, err
	}
	return r.toLink(&model), nil
}

// FindByUserID implements oauth.LinkStore.
func (r *OAuthLinkRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*oauth.Link, error) {
	var models []OAuthLinkModel
	err := r.db.NewSelect().
		Model(&models).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return []*oauth.Link{}, nil
		}
		return nil, err
	}

	links := make([]*oauth.Link, len(models))
	for i, m := range models {
		links[i] = r.toLink(&m)
	}
	return links, nil
}

// Create implements oauth.LinkStore. Uniqueness violations surface as
// oauth.ErrLinkConflict so callers can tell a race from a real failure.
func (r *OAuthLinkRepository) Create(ctx context.Context, link *oauth.Link) (*oauth.Link, error) {
	model := r.fromLink(link)
	model.UpdatedAt = time.Now()

	_, err := r.db.NewInsert().
		Model(model).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, oauth.ErrLinkConflict
		}
		return nil, err
	}

	return r.toLink(model), nil
}

// DeleteByUserAndProvider implements oauth.LinkStore.
func (r *OAuthLinkRepository) DeleteByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) error {
	_, err := r.db.NewDelete().
		Model((*OAuthLinkModel)(nil)).
		Where("user_id = ? AND provider = ?", userID, provider).
		Exec(ctx)
	return err
}

// DeleteIfNotLast implements oauth.LinkStore. The sibling check rides inside
// the DELETE so two concurrent unlinks can never both succeed.
func (r *OAuthLinkRepository) DeleteIfNotLast(ctx context.Context, userID uuid.UUID, provider string) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*OAuthLinkModel)(nil)).
		Where("user_id = ? AND provider = ?", userID, provider).
		Where(`EXISTS (SELECT 1 FROM oauth_links AS other WHERE other.user_id = ? AND other.provider <> ?)`, userID, provider).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *OAuthLinkRepository) toLink(m *OAuthLinkModel) *oauth.Link {
	return &oauth.Link{
		ID:             m.ID,
		UserID:         m.UserID,
		Provider:       m.Provider,
		ProviderUserID: m.ProviderUserID,
		Email:          m.Email,
		Username:       m.Username,
		AvatarURL:      m.AvatarURL,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func (r *OAuthLinkRepository) fromLink(l *oauth.Link) *OAuthLinkModel {
	if l == nil {
		return &OAuthLinkModel{ID: uuid.New()}
	}

	id := l.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	return &OAuthLinkModel{
		ID:             id,
		UserID:         l.UserID,
		Provider:       l.Provider,
		ProviderUserID: l.ProviderUserID,
		Email:          l.Email,
		Username:       l.Username,
		AvatarURL:      l.AvatarURL,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
