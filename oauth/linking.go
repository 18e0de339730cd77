package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/openwater/identity"
)

// Result contains the resolved user and metadata.
type Result struct {
	User      *identity.User
	IsNewUser bool
	Linked    bool
}

// Resolver maps provider profiles to local accounts. The (provider,
// provider_user_id) pair is the source of truth; profile email and username
// are only hints used when a brand new account has to be created.
type Resolver struct {
	links       LinkStore
	users       UserStore
	defaultRole identity.UserRole
	activity    identity.ActivitySink
	logger      identity.Logger
	now         func() time.Time

	// OnUserCreated runs after a signup caused by an unknown provider identity.
	OnUserCreated func(ctx context.Context, user *identity.User, profile *Profile) error
}

// NewResolver creates a resolver with sane defaults.
func NewResolver(links LinkStore, users UserStore) *Resolver {
	return &Resolver{
		links:       links,
		users:       users,
		defaultRole: identity.RoleUser,
		activity:    identity.ActivitySinkFunc(nil),
		logger:      identity.NewDefaultLogger(),
		now:         time.Now,
	}
}

// WithDefaultRole sets the role assigned to accounts created from profiles.
func (r *Resolver) WithDefaultRole(role identity.UserRole) *Resolver {
	if parsed, ok := identity.ParseRole(role); ok {
		r.defaultRole = parsed
	}
	return r
}

// WithActivitySink sets the sink used to emit linking events.
func (r *Resolver) WithActivitySink(sink identity.ActivitySink) *Resolver {
	if sink != nil {
		r.activity = sink
	}
	return r
}

// WithLogger overrides the logger.
func (r *Resolver) WithLogger(logger identity.Logger) *Resolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithClock injects a custom clock, useful for tests.
func (r *Resolver) WithClock(clock func() time.Time) *Resolver {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Resolve maps a provider profile to a local account. currentUserID carries
// the session user for explicit link requests and is uuid.Nil for anonymous
// logins.
//
// Resolution order:
//  1. an existing link wins, and relinking the same pair is a no-op
//  2. a signed-in caller gets the identity linked to their own account
//  3. an anonymous caller gets a fresh account created for the identity
func (r *Resolver) Resolve(ctx context.Context, profile *Profile, currentUserID uuid.UUID) (*Result, error) {
	if !profile.Complete() {
		return nil, ErrProfileIncomplete
	}

	link, err := r.links.FindByProviderID(ctx, profile.Provider, profile.ProviderUserID)
	if err != nil && !goerrors.IsNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up provider link")
	}

	if link != nil {
		if currentUserID != uuid.Nil && currentUserID != link.UserID {
			return nil, ErrLinkedToAnotherAccount
		}

		user, err := r.users.GetByIdentifier(ctx, link.UserID.String())
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to find linked user")
		}

		r.recordLogin(ctx, user, profile)
		return &Result{User: user, IsNewUser: false}, nil
	}

	if currentUserID != uuid.Nil {
		return r.linkToExisting(ctx, profile, currentUserID)
	}

	return r.signup(ctx, profile)
}

// Unlink removes a provider link from an account. An account whose only way
// in is that link keeps it.
func (r *Resolver) Unlink(ctx context.Context, userID uuid.UUID, provider string) error {
	user, err := r.users.GetByIdentifier(ctx, userID.String())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to find user for unlink")
	}

	if user.HasPassword() {
		return r.links.DeleteByUserAndProvider(ctx, userID, provider)
	}

	// Passwordless accounts sign in only through their links. The keep-one
	// rule must hold even when two unlinks race, so it rides inside the
	// delete statement.
	deleted, err := r.links.DeleteIfNotLast(ctx, userID, provider)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete provider link")
	}
	if deleted {
		return nil
	}

	// Nothing deleted: either the provider was the last way in, or it was
	// never linked at all. Only the former is an error.
	links, err := r.links.FindByUserID(ctx, userID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list provider links")
	}
	for _, link := range links {
		if link.Provider == provider {
			return ErrLastAuthMethod
		}
	}

	return nil
}

func (r *Resolver) linkToExisting(ctx context.Context, profile *Profile, userID uuid.UUID) (*Result, error) {
	user, err := r.users.GetByIdentifier(ctx, userID.String())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to find user to link")
	}

	if _, err := r.links.Create(ctx, r.newLink(user.ID, profile)); err != nil {
		if goerrors.Is(err, ErrLinkConflict) {
			// Lost a race. Whoever won owns the pair now.
			return r.resolveConflict(ctx, profile, user.ID)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create provider link")
	}

	r.recordLogin(ctx, user, profile)
	return &Result{User: user, IsNewUser: false, Linked: true}, nil
}

func (r *Resolver) signup(ctx context.Context, profile *Profile) (*Result, error) {
	created, err := r.createUserFromProfile(ctx, profile)
	if err != nil {
		return nil, err
	}

	if _, err := r.links.Create(ctx, r.newLink(created.ID, profile)); err != nil {
		// Roll back the account we just made before handing the pair to
		// whichever request won the race.
		if delErr := r.users.DeleteByID(ctx, created.ID); delErr != nil {
			r.logger.Warn("failed to remove orphaned account after link race: %v", delErr)
		}

		if goerrors.Is(err, ErrLinkConflict) {
			return r.resolveConflict(ctx, profile, uuid.Nil)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create provider link")
	}

	if r.OnUserCreated != nil {
		if err := r.OnUserCreated(ctx, created, profile); err != nil {
			return nil, err
		}
	}

	r.recordLogin(ctx, created, profile)
	return &Result{User: created, IsNewUser: true, Linked: true}, nil
}

// resolveConflict re-reads the link after a create conflict and returns the
// winning account, enforcing the same ownership rule as the fast path.
func (r *Resolver) resolveConflict(ctx context.Context, profile *Profile, expectUserID uuid.UUID) (*Result, error) {
	link, err := r.links.FindByProviderID(ctx, profile.Provider, profile.ProviderUserID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to re-read provider link after conflict")
	}

	if expectUserID != uuid.Nil && link.UserID != expectUserID {
		return nil, ErrLinkedToAnotherAccount
	}

	user, err := r.users.GetByIdentifier(ctx, link.UserID.String())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to find linked user")
	}

	r.recordLogin(ctx, user, profile)
	return &Result{User: user, IsNewUser: false}, nil
}

// createUserFromProfile creates a local account for an unknown provider
// identity. Username and email conflicts degrade gracefully: a taken
// username is replaced by a generated one and a taken email is dropped,
// since the provider pair, not the email, is what ties the login together.
func (r *Resolver) createUserFromProfile(ctx context.Context, profile *Profile) (*identity.User, error) {
	user := &identity.User{
		Role:          r.defaultRole,
		Email:         profile.Email,
		EmailVerified: profile.Email != "" && profile.EmailVerified,
		Username:      r.usernameFromProfile(profile),
	}

	// Register reports one conflict per attempt and the store makes no
	// promise about which column it checks first, so resolve whichever class
	// comes back and try again.
	var err error
	for attempt := 0; attempt < 4; attempt++ {
		var created *identity.User
		if created, err = r.users.Register(ctx, user); err == nil {
			return created, nil
		}

		switch {
		case goerrors.Is(err, identity.ErrUsernameTaken):
			user.Username = generatedUsername(profile.Provider)
		case goerrors.Is(err, identity.ErrEmailTaken):
			user.Email = ""
			user.EmailVerified = false
		default:
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user from profile")
		}
	}

	return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create user from profile")
}

func (r *Resolver) usernameFromProfile(profile *Profile) string {
	if profile.Username != "" {
		return profile.Username
	}
	if profile.Email != "" {
		return strings.Split(profile.Email, "@")[0]
	}
	return generatedUsername(profile.Provider)
}

func (r *Resolver) newLink(userID uuid.UUID, profile *Profile) *Link {
	now := r.now()
	return &Link{
		ID:             uuid.New(),
		UserID:         userID,
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		Username:       profile.Username,
		AvatarURL:      profile.AvatarURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *Resolver) recordLogin(ctx context.Context, user *identity.User, profile *Profile) {
	event := identity.ActivityEvent{
		EventType: identity.ActivityEventOAuthLogin,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"provider": profile.Provider,
		},
		OccurredAt: r.now(),
	}

	if err := r.activity.Record(ctx, event); err != nil {
		r.logger.Warn("activity sink record error: %v", err)
	}
}

func generatedUsername(provider string) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s_%s", provider, uuid.NewString()[:8])
	}
	return fmt.Sprintf("%s_%s", provider, hex.EncodeToString(buf))
}
