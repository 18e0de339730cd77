package oauth

import "github.com/goliatone/go-errors"

const (
	TextCodeProfileIncomplete = "oauth_profile_incomplete"
	TextCodeLinkedElsewhere   = "oauth_linked_to_another_account"
	TextCodeLinkConflict      = "oauth_link_conflict"
	TextCodeLastAuthMethod    = "oauth_last_auth_method"
	TextCodeUserInfoFail      = "oauth_user_info_failed"
)

// ErrProfileIncomplete is returned when a provider profile is missing the
// provider or subject identifier.
var ErrProfileIncomplete = errors.New("oauth profile is incomplete", errors.CategoryBadInput).
	WithTextCode(TextCodeProfileIncomplete).
	WithCode(errors.CodeBadRequest)

// ErrLinkedToAnotherAccount is returned when the external identity is
// already linked to a different local account.
var ErrLinkedToAnotherAccount = errors.New("provider identity is linked to another account", errors.CategoryConflict).
	WithTextCode(TextCodeLinkedElsewhere).
	WithCode(errors.CodeConflict)

// ErrLinkConflict is returned by stores on a link uniqueness violation.
var ErrLinkConflict = errors.New("provider identity link already exists", errors.CategoryConflict).
	WithTextCode(TextCodeLinkConflict).
	WithCode(errors.CodeConflict)

// ErrLastAuthMethod is returned when unlinking would remove the last auth method.
var ErrLastAuthMethod = errors.New("cannot unlink last authentication method", errors.CategoryValidation).
	WithTextCode(TextCodeLastAuthMethod).
	WithCode(errors.CodeBadRequest)

// ErrUserInfoFailed is returned when a provider profile cannot be resolved.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)
