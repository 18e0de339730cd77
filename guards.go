package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// Access carries the resolved parties of a guarded operation. Caller is the
// account behind the session, freshly loaded for this request. Target is the
// account the operation acts on, when there is one.
type Access struct {
	Caller *User
	Target *User
	Claims AuthClaims
}

// Guard checks one precondition of a guarded operation. Guards mutate the
// Access only through resolvers like ResolveTargetUser.
type Guard func(ctx context.Context, access *Access) error

// Compose runs guards in order and stops at the first failure.
func Compose(guards ...Guard) Guard {
	return func(ctx context.Context, access *Access) error {
		for _, guard := range guards {
			if guard == nil {
				continue
			}
			if err := guard(ctx, access); err != nil {
				return err
			}
		}
		return nil
	}
}

// RequireSession demands an authenticated caller.
func RequireSession() Guard {
	return func(ctx context.Context, access *Access) error {
		if access == nil || access.Caller == nil {
			return ErrSessionRequired
		}
		return nil
	}
}

// RequireActiveAccount demands a caller whose account is not locked out.
// Lockout is read from the fresh record, not from the token, so locking an
// account takes effect on the next request even for sessions issued earlier.
func RequireActiveAccount() Guard {
	return func(ctx context.Context, access *Access) error {
		if access == nil || access.Caller == nil {
			return ErrSessionRequired
		}
		if access.Caller.IsLockedOut {
			return ErrAccountLocked
		}
		return nil
	}
}

// RequireVerifiedEmail demands a caller with a verified email address.
func RequireVerifiedEmail() Guard {
	return func(ctx context.Context, access *Access) error {
		if access == nil || access.Caller == nil {
			return ErrSessionRequired
		}
		if !access.Caller.EmailVerified {
			return ErrEmailNotVerified
		}
		return nil
	}
}

// RequireAdmin demands a caller holding the admin role.
func RequireAdmin() Guard {
	return func(ctx context.Context, access *Access) error {
		if access == nil || access.Caller == nil {
			return ErrSessionRequired
		}
		if !access.Caller.IsAdmin() {
			return ErrAdminRequired
		}
		return nil
	}
}

// ResolveTargetUser loads the account named by identifier into the Access.
// A missing target surfaces as not found before any ownership check runs, so
// callers cannot learn whether an account exists from a permission error.
func ResolveTargetUser(store UserTracker, identifier string) Guard {
	return func(ctx context.Context, access *Access) error {
		user, err := store.GetByIdentifier(ctx, identifier)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve target user")
		}
		access.Target = user
		return nil
	}
}

// RequireAccountOwnerOrAdmin demands that the caller either owns the target
// account or holds the admin role.
func RequireAccountOwnerOrAdmin() Guard {
	return func(ctx context.Context, access *Access) error {
		if access == nil || access.Caller == nil {
			return ErrSessionRequired
		}
		if access.Target == nil {
			return ErrIdentityNotFound
		}
		if access.Caller.IsAdmin() {
			return nil
		}
		if access.Caller.ID != access.Target.ID {
			return ErrNotAccountOwner
		}
		return nil
	}
}
