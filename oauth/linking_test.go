package oauth_test

import (
	"context"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/openwater/identity"
	"github.com/openwater/identity/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLinkStore struct {
	links        map[string]*oauth.Link
	createErr    error  // consumed by the next Create call
	findMisses   int    // initial FindByProviderID calls that report not found
	beforeDelete func() // runs before DeleteIfNotLast evaluates its guard
	deleted      []string
}

func linkKey(provider, providerUserID string) string {
	return provider + ":" + providerUserID
}

func (s *stubLinkStore) FindByProviderID(ctx context.Context, provider, providerUserID string) (*oauth.Link, error) {
	if s.findMisses > 0 {
		s.findMisses--
		return nil, goerrors.New("provider link not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}
	if link, ok := s.links[linkKey(provider, providerUserID)]; ok {
		return link, nil
	}
	return nil, goerrors.New("provider link not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound)
}

func (s *stubLinkStore) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*oauth.Link, error) {
	var out []*oauth.Link
	for _, link := range s.links {
		if link.UserID == userID {
			out = append(out, link)
		}
	}
	return out, nil
}

func (s *stubLinkStore) Create(ctx context.Context, link *oauth.Link) (*oauth.Link, error) {
	if s.createErr != nil {
		err := s.createErr
		s.createErr = nil
		return nil, err
	}
	key := linkKey(link.Provider, link.ProviderUserID)
	if _, ok := s.links[key]; ok {
		return nil, oauth.ErrLinkConflict
	}
	if s.links == nil {
		s.links = map[string]*oauth.Link{}
	}
	s.links[key] = link
	return link, nil
}

func (s *stubLinkStore) DeleteByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) error {
	for key, link := range s.links {
		if link.UserID == userID && link.Provider == provider {
			delete(s.links, key)
			s.deleted = append(s.deleted, key)
		}
	}
	return nil
}

func (s *stubLinkStore) DeleteIfNotLast(ctx context.Context, userID uuid.UUID, provider string) (bool, error) {
	if s.beforeDelete != nil {
		s.beforeDelete()
	}

	var target string
	siblings := 0
	for key, link := range s.links {
		if link.UserID != userID {
			continue
		}
		if link.Provider == provider {
			target = key
		} else {
			siblings++
		}
	}

	if target == "" || siblings == 0 {
		return false, nil
	}

	delete(s.links, target)
	s.deleted = append(s.deleted, target)
	return true, nil
}

type stubUserStore struct {
	users          map[string]*identity.User
	takenUsernames map[string]bool
	takenEmails    map[string]bool
	registered     []*identity.User
	deletedIDs     []uuid.UUID

	// emailConflictFirst flips which unique violation Register reports when
	// both identifiers collide, mirroring stores that check indexes in a
	// different order.
	emailConflictFirst bool
}

func newStubUserStore(users ...*identity.User) *stubUserStore {
	s := &stubUserStore{
		users:          map[string]*identity.User{},
		takenUsernames: map[string]bool{},
		takenEmails:    map[string]bool{},
	}
	for _, u := range users {
		s.add(u)
	}
	return s
}

func (s *stubUserStore) add(u *identity.User) {
	s.users[u.ID.String()] = u
	if u.Username != "" {
		s.takenUsernames[strings.ToLower(u.Username)] = true
	}
	if u.Email != "" {
		s.takenEmails[strings.ToLower(u.Email)] = true
	}
}

func (s *stubUserStore) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*identity.User, error) {
	if user, ok := s.users[identifier]; ok {
		return user, nil
	}
	return nil, goerrors.New("user not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound)
}

func (s *stubUserStore) Register(ctx context.Context, record *identity.User) (*identity.User, error) {
	usernameTaken := s.takenUsernames[strings.ToLower(record.Username)]
	emailTaken := record.Email != "" && s.takenEmails[strings.ToLower(record.Email)]

	if s.emailConflictFirst && emailTaken {
		return nil, identity.ErrEmailTaken
	}
	if usernameTaken {
		return nil, identity.ErrUsernameTaken
	}
	if emailTaken {
		return nil, identity.ErrEmailTaken
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	s.add(record)
	s.registered = append(s.registered, record)
	return record, nil
}

func (s *stubUserStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	delete(s.users, id.String())
	s.deletedIDs = append(s.deletedIDs, id)
	return nil
}

func githubProfile() *oauth.Profile {
	return &oauth.Profile{
		Provider:       "github",
		ProviderUserID: "123",
		Email:          "dev@example.com",
		EmailVerified:  true,
		Username:       "devuser",
	}
}

func TestResolverExistingLink(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous login resolves the linked account", func(t *testing.T) {
		user := &identity.User{ID: uuid.New(), Username: "devuser", Role: identity.RoleUser}
		links := &stubLinkStore{links: map[string]*oauth.Link{
			linkKey("github", "123"): {UserID: user.ID, Provider: "github", ProviderUserID: "123"},
		}}
		users := newStubUserStore(user)

		sink := &captureSink{}
		resolver := oauth.NewResolver(links, users).WithActivitySink(sink)

		result, err := resolver.Resolve(ctx, githubProfile(), uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, user, result.User)
		assert.False(t, result.IsNewUser)
		assert.False(t, result.Linked)
		assert.Len(t, sink.events, 1)
		assert.Equal(t, identity.ActivityEventOAuthLogin, sink.events[0].EventType)
	})

	t.Run("relinking the same pair is a no-op", func(t *testing.T) {
		user := &identity.User{ID: uuid.New(), Username: "devuser", Role: identity.RoleUser}
		links := &stubLinkStore{links: map[string]*oauth.Link{
			linkKey("github", "123"): {UserID: user.ID, Provider: "github", ProviderUserID: "123"},
		}}
		users := newStubUserStore(user)

		resolver := oauth.NewResolver(links, users)

		result, err := resolver.Resolve(ctx, githubProfile(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, user, result.User)
		assert.False(t, result.IsNewUser)
	})

	t.Run("identity linked to another account", func(t *testing.T) {
		owner := &identity.User{ID: uuid.New(), Username: "owner", Role: identity.RoleUser}
		links := &stubLinkStore{links: map[string]*oauth.Link{
			linkKey("github", "123"): {UserID: owner.ID, Provider: "github", ProviderUserID: "123"},
		}}
		users := newStubUserStore(owner)

		resolver := oauth.NewResolver(links, users)

		result, err := resolver.Resolve(ctx, githubProfile(), uuid.New())
		assert.Nil(t, result)
		assert.Equal(t, oauth.ErrLinkedToAnotherAccount, err)
	})
}

func TestResolverLinkToExisting(t *testing.T) {
	ctx := context.Background()

	t.Run("signed-in caller gets the identity linked", func(t *testing.T) {
		user := &identity.User{ID: uuid.New(), Username: "devuser", Role: identity.RoleUser}
		links := &stubLinkStore{}
		users := newStubUserStore(user)

		resolver := oauth.NewResolver(links, users)

		result, err := resolver.Resolve(ctx, githubProfile(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, user, result.User)
		assert.False(t, result.IsNewUser)
		assert.True(t, result.Linked)

		link, err := links.FindByProviderID(ctx, "github", "123")
		require.NoError(t, err)
		assert.Equal(t, user.ID, link.UserID)
	})

	t.Run("race lost to the same account resolves quietly", func(t *testing.T) {
		user := &identity.User{ID: uuid.New(), Username: "devuser", Role: identity.RoleUser}
		// The initial lookup misses, Create collides, and the re-read finds
		// the winning link, which happens to belong to the same account.
		links := &stubLinkStore{
			links: map[string]*oauth.Link{
				linkKey("github", "123"): {UserID: user.ID, Provider: "github", ProviderUserID: "123"},
			},
			createErr:  oauth.ErrLinkConflict,
			findMisses: 1,
		}
		users := newStubUserStore(user)

		resolver := oauth.NewResolver(links, users)

		result, err := resolver.Resolve(ctx, githubProfile(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, user, result.User)
	})
}

func TestResolverSignup(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown identity creates an account", func(t *testing.T) {
		links := &stubLinkStore{}
		users := newStubUserStore()

		var hookUser *identity.User
		resolver := oauth.NewResolver(links, users)
		resolver.OnUserCreated = func(ctx context.Context, user *identity.User, profile *oauth.Profile) error {
			hookUser = user
			return nil
		}

		result, err := resolver.Resolve(ctx, githubProfile(), uuid.Nil)
		require.NoError(t, err)
		assert.True(t, result.IsNewUser)
		assert.True(t, result.Linked)
		assert.Equal(t, "devuser", result.User.Username)
		assert.Equal(t, "dev@example.com", result.User.Email)
		assert.True(t, result.User.EmailVerified)
		assert.Equal(t, identity.RoleUser, result.User.Role)
		assert.Equal(t, result.User, hookUser)
		assert.False(t, result.User.HasPassword())

		link, err := links.FindByProviderID(ctx, "github", "123")
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, link.UserID)
	})

	t.Run("unverified provider email stays unverified", func(t *testing.T) {
		links := &stubLinkStore{}
		users := newStubUserStore()

		profile := githubProfile()
		profile.EmailVerified = false

		resolver := oauth.NewResolver(links, users)

		result, err := resolver.Resolve(ctx, profile, uuid.Nil)
		require.NoError(t, err)
		assert.False(t, result.User.EmailVerified)
	})

	t.Run("taken username degrades to a generated one", func(t *testing.T) {
		existing := &identity.User{ID: uuid.New(), Username: "devuser"}
		links := &stubLinkStore{}
		users := newStubUserStore(existing)

		profile := githubProfile()
		profile.Email = ""

		resolver := oauth.NewResolver(links, users)

		result, err := resolver.Resolve(ctx, profile, uuid.Nil)
		require.NoError(t, err)
		assert.True(t, result.IsNewUser)
		assert.True(t, strings.HasPrefix(result.User.Username, "github_"))
	})

	t.Run("taken email is dropped", func(t *testing.T) {
		existing := &identity.User{ID: uuid.New(), Username: "someoneelse", Email: "dev@example.com"}
		links := &stubLinkStore{}
		users := newStubUserStore(existing)

		resolver := oauth.NewResolver(links, users)

		result, err := resolver.Resolve(ctx, githubProfile(), uuid.Nil)
		require.NoError(t, err)
		assert.True(t, result.IsNewUser)
		assert.Equal(t, "", result.User.Email)
		assert.False(t, result.User.EmailVerified)
	})

	t.Run("username and email both taken still creates an account", func(t *testing.T) {
		existing := &identity.User{ID: uuid.New(), Username: "devuser", Email: "dev@example.com"}
		links := &stubLinkStore{}
		users := newStubUserStore(existing)

		resolver := oauth.NewResolver(links, users)

		result, err := resolver.Resolve(ctx, githubProfile(), uuid.Nil)
		require.NoError(t, err)
		assert.True(t, result.IsNewUser)
		assert.True(t, strings.HasPrefix(result.User.Username, "github_"))
		assert.Equal(t, "", result.User.Email)
	})

	t.Run("both taken with the email conflict reported first", func(t *testing.T) {
		existing := &identity.User{ID: uuid.New(), Username: "devuser", Email: "dev@example.com"}
		links := &stubLinkStore{}
		users := newStubUserStore(existing)
		users.emailConflictFirst = true

		resolver := oauth.NewResolver(links, users)

		result, err := resolver.Resolve(ctx, githubProfile(), uuid.Nil)
		require.NoError(t, err)
		assert.True(t, result.IsNewUser)
		assert.True(t, strings.HasPrefix(result.User.Username, "github_"))
		assert.Equal(t, "", result.User.Email)
	})

	t.Run("losing the signup race rolls back the account", func(t *testing.T) {
		winner := &identity.User{ID: uuid.New(), Username: "winner"}
		links := &stubLinkStore{
			links: map[string]*oauth.Link{
				linkKey("github", "123"): {UserID: winner.ID, Provider: "github", ProviderUserID: "123"},
			},
			createErr:  oauth.ErrLinkConflict,
			findMisses: 1,
		}
		users := newStubUserStore(winner)

		resolver := oauth.NewResolver(links, users)

		result, err := resolver.Resolve(ctx, &oauth.Profile{
			Provider:       "github",
			ProviderUserID: "123",
			Username:       "loser",
		}, uuid.Nil)

		// The winner of the race owns the pair; the extra account is gone.
		require.NoError(t, err)
		assert.Equal(t, winner, result.User)
		assert.False(t, result.IsNewUser)
		require.Len(t, users.deletedIDs, 1)
		assert.NotEqual(t, winner.ID, users.deletedIDs[0])
	})

	t.Run("incomplete profile is rejected", func(t *testing.T) {
		resolver := oauth.NewResolver(&stubLinkStore{}, newStubUserStore())

		result, err := resolver.Resolve(ctx, &oauth.Profile{Provider: "github"}, uuid.Nil)
		assert.Nil(t, result)
		assert.Equal(t, oauth.ErrProfileIncomplete, err)
	})
}

func TestResolverUnlink(t *testing.T) {
	ctx := context.Background()

	t.Run("password account can always unlink", func(t *testing.T) {
		user := &identity.User{ID: uuid.New(), Username: "devuser", PasswordHash: "some-hash"}
		links := &stubLinkStore{links: map[string]*oauth.Link{
			linkKey("github", "123"): {UserID: user.ID, Provider: "github", ProviderUserID: "123"},
		}}
		users := newStubUserStore(user)

		resolver := oauth.NewResolver(links, users)

		err := resolver.Unlink(ctx, user.ID, "github")
		require.NoError(t, err)
		assert.Len(t, links.deleted, 1)
	})

	t.Run("last auth method is protected", func(t *testing.T) {
		user := &identity.User{ID: uuid.New(), Username: "devuser"}
		links := &stubLinkStore{links: map[string]*oauth.Link{
			linkKey("github", "123"): {UserID: user.ID, Provider: "github", ProviderUserID: "123"},
		}}
		users := newStubUserStore(user)

		resolver := oauth.NewResolver(links, users)

		err := resolver.Unlink(ctx, user.ID, "github")
		assert.Equal(t, oauth.ErrLastAuthMethod, err)
		assert.Empty(t, links.deleted)
	})

	t.Run("passwordless account with a second link can unlink", func(t *testing.T) {
		user := &identity.User{ID: uuid.New(), Username: "devuser"}
		links := &stubLinkStore{links: map[string]*oauth.Link{
			linkKey("github", "123"): {UserID: user.ID, Provider: "github", ProviderUserID: "123"},
			linkKey("google", "456"): {UserID: user.ID, Provider: "google", ProviderUserID: "456"},
		}}
		users := newStubUserStore(user)

		resolver := oauth.NewResolver(links, users)

		err := resolver.Unlink(ctx, user.ID, "github")
		require.NoError(t, err)
		assert.Len(t, links.deleted, 1)

		remaining, err := links.FindByUserID(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, remaining, 1)
		assert.Equal(t, "google", remaining[0].Provider)
	})

	t.Run("racing unlinks leave one method standing", func(t *testing.T) {
		user := &identity.User{ID: uuid.New(), Username: "devuser"}
		links := &stubLinkStore{links: map[string]*oauth.Link{
			linkKey("github", "123"): {UserID: user.ID, Provider: "github", ProviderUserID: "123"},
			linkKey("google", "456"): {UserID: user.ID, Provider: "google", ProviderUserID: "456"},
		}}
		// A concurrent unlink of the other provider wins between the caller's
		// view of two links and this delete.
		links.beforeDelete = func() {
			delete(links.links, linkKey("google", "456"))
		}
		users := newStubUserStore(user)

		resolver := oauth.NewResolver(links, users)

		err := resolver.Unlink(ctx, user.ID, "github")
		assert.Equal(t, oauth.ErrLastAuthMethod, err)

		remaining, ferr := links.FindByUserID(ctx, user.ID)
		require.NoError(t, ferr)
		require.Len(t, remaining, 1)
		assert.Equal(t, "github", remaining[0].Provider)
	})

	t.Run("unlinking a provider that was never linked is a no-op", func(t *testing.T) {
		user := &identity.User{ID: uuid.New(), Username: "devuser"}
		links := &stubLinkStore{links: map[string]*oauth.Link{
			linkKey("github", "123"): {UserID: user.ID, Provider: "github", ProviderUserID: "123"},
		}}
		users := newStubUserStore(user)

		resolver := oauth.NewResolver(links, users)

		err := resolver.Unlink(ctx, user.ID, "gitlab")
		require.NoError(t, err)
		assert.Empty(t, links.deleted)
	})
}

// captureSink collects activity events emitted by the resolver.
type captureSink struct {
	events []identity.ActivityEvent
}

func (s *captureSink) Record(ctx context.Context, event identity.ActivityEvent) error {
	s.events = append(s.events, event)
	return nil
}
