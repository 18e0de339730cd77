package oauth

// Profile represents normalized user information from an OAuth provider.
// Provider and ProviderUserID together identify the external principal; the
// rest is best-effort metadata that may be empty.
type Profile struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
	Email          string `json:"email,omitempty"`
	EmailVerified  bool   `json:"email_verified,omitempty"`
	Name           string `json:"name,omitempty"`
	Username       string `json:"username,omitempty"`
	AvatarURL      string `json:"avatar_url,omitempty"`
}

// Complete reports whether the profile carries enough to identify the
// external principal.
func (p *Profile) Complete() bool {
	return p != nil && p.Provider != "" && p.ProviderUserID != ""
}
