package domain

// Lang represents a UI language carried through the OAuth round trip.
type Lang string

const (
	LangEN Lang = "en"
	LangJA Lang = "ja"
)

// OauthState is the context round-tripped through the provider's `state`
// parameter. It is created when sign-in starts and consumed exactly once by
// the callback; it is never persisted.
type OauthState struct {
	CSRF           string       `json:"csrf" validate:"required"`
	Lang           Lang         `json:"lang" validate:"required,oneof=en ja"`
	Provider       AuthProvider `json:"provider" validate:"required,oneof=google github"`
	RedirectPort   string       `json:"redirect_port,omitempty"`
	RedirectOrigin string       `json:"redirect_origin,omitempty"`
}
