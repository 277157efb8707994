package domain

import "time"

// AuthProvider represents an OAuth identity provider.
type AuthProvider string

const (
	AuthProviderGoogle AuthProvider = "google"
	AuthProviderGitHub AuthProvider = "github"
)

// Valid reports whether p is a known provider.
func (p AuthProvider) Valid() bool {
	return p == AuthProviderGoogle || p == AuthProviderGitHub
}

// OauthUserData is the canonical identity-provider profile extracted from
// the provider's userinfo response. Only the email is required; the rest
// depends on what the provider returns.
type OauthUserData struct {
	Email string `json:"email" validate:"required,email"`
	Sub   string `json:"sub,omitempty"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
}

// User is the resolved application identity. Nullable columns are pointer
// fields so an absent value stays absent after scanning.
type User struct {
	UserID          string    `json:"user_id" db:"user_id" validate:"required"`
	Email           string    `json:"email" db:"email" validate:"required,email"`
	DisplayName     *string   `json:"display_name,omitempty" db:"display_name"`
	AvatarURL       *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	LinkedProviders []string  `json:"linked_providers"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// UserPublic is the public profile slice keyed by user ID.
type UserPublic struct {
	UserID   string  `json:"user_id" db:"user_id" validate:"required"`
	Username *string `json:"username,omitempty" db:"username"`
}
