package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	googleOAuth "golang.org/x/oauth2/google"

	"github.com/sumire/setlist/internal/domain"
)

// providerTimeout bounds every outbound call to the identity provider.
const providerTimeout = 10 * time.Second

const (
	visitorTokenTTL = time.Hour
	userTokenTTL    = 15 * time.Minute
	sessionTokenTTL = 7 * 24 * time.Hour
)

// UserStore is the narrow data-access interface consumed by AuthService:
// the two lookups the sign-in pipeline needs, nothing more.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUsernameByUserID(ctx context.Context, userID string) (*string, error)
}

// AuthConfig holds sign-in configuration.
type AuthConfig struct {
	SessionSecret  string
	RedirectOrigin string
	RedirectPath   string

	// Credentials resolves a provider's client id and secret. Defaults are
	// wired in main from the config package's provider table.
	Credentials func(domain.AuthProvider) (id, secret string, err error)
}

// AuthService orchestrates the sign-in pipeline: code exchange, userinfo
// fetch, user resolution, and token issuance.
type AuthService struct {
	users    UserStore
	cfg      AuthConfig
	secret   []byte
	client   *http.Client
	validate *validator.Validate

	endpoints    map[domain.AuthProvider]oauth2.Endpoint
	scopes       map[domain.AuthProvider][]string
	userInfoURLs map[domain.AuthProvider]string
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, cfg AuthConfig) *AuthService {
	return &AuthService{
		users:    users,
		cfg:      cfg,
		secret:   []byte(cfg.SessionSecret),
		client:   &http.Client{Timeout: providerTimeout},
		validate: validator.New(),
		endpoints: map[domain.AuthProvider]oauth2.Endpoint{
			domain.AuthProviderGoogle: googleOAuth.Endpoint,
			domain.AuthProviderGitHub: github.Endpoint,
		},
		scopes: map[domain.AuthProvider][]string{
			domain.AuthProviderGoogle: {"openid", "profile", "email"},
			domain.AuthProviderGitHub: {"user:email"},
		},
		userInfoURLs: map[domain.AuthProvider]string{
			domain.AuthProviderGoogle: "https://www.googleapis.com/oauth2/v2/userinfo",
			domain.AuthProviderGitHub: "https://api.github.com/user",
		},
	}
}

func (s *AuthService) oauthConfig(provider domain.AuthProvider, redirectURI string) (*oauth2.Config, error) {
	endpoint, ok := s.endpoints[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	id, secret, err := s.cfg.Credentials(provider)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{
		ClientID:     id,
		ClientSecret: secret,
		Endpoint:     endpoint,
		Scopes:       s.scopes[provider],
		RedirectURL:  redirectURI,
	}, nil
}

// AuthCodeURL returns the provider's consent-page URL for the given encoded
// state.
func (s *AuthService) AuthCodeURL(provider domain.AuthProvider, encodedState, redirectURI string) (string, error) {
	cfg, err := s.oauthConfig(provider, redirectURI)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(encodedState), nil
}

// ResolveRedirectURI picks the redirect URI for the token exchange. The URI
// must exactly match the one used when the authorization request was made,
// even when a reverse proxy rewrites the externally visible scheme, so the
// state-carried origin wins over configuration, which wins over anything
// derived from the incoming request.
func (s *AuthService) ResolveRedirectURI(state *domain.OauthState, requestOrigin, requestSchemeHost string) string {
	path := s.cfg.RedirectPath

	if state != nil && state.RedirectOrigin != "" {
		origin := state.RedirectOrigin
		if state.RedirectPort != "" && !strings.Contains(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"), ":") {
			origin += ":" + state.RedirectPort
		}
		return origin + path
	}
	if s.cfg.RedirectOrigin != "" {
		return s.cfg.RedirectOrigin + path
	}
	if requestOrigin != "" {
		return requestOrigin + path
	}
	return requestSchemeHost + path
}

// CallbackResult is what a completed callback pipeline produces.
type CallbackResult struct {
	Profile      domain.OauthUserData
	ExistingUser *domain.User
	Username     *string
	SessionToken string
}

// Callback runs the sign-in pipeline for an authorization-code callback:
// exchange the code, fetch the provider profile, resolve the application
// user, and mint a session token. ExistingUser is nil when no application
// user matches the provider email; account creation happens elsewhere.
func (s *AuthService) Callback(ctx context.Context, provider domain.AuthProvider, code, redirectURI string) (*CallbackResult, error) {
	tokens, err := s.exchangeCode(ctx, provider, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	profile, err := s.fetchUserInfo(ctx, provider, tokens)
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}

	user, err := s.users.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, err
	}

	var username *string
	if user != nil {
		username, err = s.users.FindUsernameByUserID(ctx, user.UserID)
		if err != nil {
			return nil, err
		}
	}

	// The session subject is the provider email so the session stays usable
	// before an application user record exists.
	sessionToken, err := s.issueToken("session", profile.Email, sessionTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &CallbackResult{
		Profile:      profile,
		ExistingUser: user,
		Username:     username,
		SessionToken: sessionToken,
	}, nil
}

type providerTokens struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
}

func (s *AuthService) exchangeCode(ctx context.Context, provider domain.AuthProvider, code, redirectURI string) (providerTokens, error) {
	cfg, err := s.oauthConfig(provider, redirectURI)
	if err != nil {
		return providerTokens{}, err
	}

	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	if cfg.ClientID != "" {
		form.Set("client_id", cfg.ClientID)
	}
	if cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return providerTokens{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return providerTokens{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providerTokens{}, fmt.Errorf("provider token endpoint returned %d: %s", resp.StatusCode, readBodyText(resp.Body))
	}

	// Both token fields are optional here; fetchUserInfo requires at least
	// one of them.
	var tokens providerTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return providerTokens{}, fmt.Errorf("decode token response: %w", err)
	}
	return tokens, nil
}

func (s *AuthService) fetchUserInfo(ctx context.Context, provider domain.AuthProvider, tokens providerTokens) (domain.OauthUserData, error) {
	bearer := tokens.AccessToken
	if bearer == "" {
		bearer = tokens.IDToken
	}
	if bearer == "" {
		return domain.OauthUserData{}, fmt.Errorf("provider returned neither access_token nor id_token")
	}

	infoURL, ok := s.userInfoURLs[provider]
	if !ok {
		return domain.OauthUserData{}, fmt.Errorf("unknown provider %q", provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL, nil)
	if err != nil {
		return domain.OauthUserData{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.OauthUserData{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.OauthUserData{}, fmt.Errorf("provider userinfo returned %d: %s", resp.StatusCode, readBodyText(resp.Body))
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.OauthUserData{}, fmt.Errorf("decode userinfo: %w", err)
	}

	profile := domain.OauthUserData{
		Email: firstString(raw, "email", "email_address"),
		Name:  firstString(raw, "name", "preferred_username"),
		Sub:   firstString(raw, "sub"),
		ID:    firstString(raw, "id", "user_id"),
	}
	if err := s.validate.Struct(profile); err != nil {
		return domain.OauthUserData{}, fmt.Errorf("invalid userinfo: %w", err)
	}
	return profile, nil
}

// TokenGrant is the wire shape of the token issuance endpoints.
type TokenGrant struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// IssueVisitorToken mints an anonymous bearer token.
func (s *AuthService) IssueVisitorToken() (*TokenGrant, error) {
	token, err := s.issueToken("visitor", "", visitorTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign visitor token: %w", err)
	}
	return &TokenGrant{AccessToken: token, ExpiresIn: int64(visitorTokenTTL.Seconds())}, nil
}

// IssueUserToken mints an access token for the signed-in user.
func (s *AuthService) IssueUserToken(userID string) (*TokenGrant, error) {
	token, err := s.issueToken("access", userID, userTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign user token: %w", err)
	}
	return &TokenGrant{AccessToken: token, ExpiresIn: int64(userTokenTTL.Seconds())}, nil
}

// ValidateSessionToken checks a session cookie value and returns its subject.
func (s *AuthService) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", &domain.AuthenticationError{Message: "invalid session token"}
	}

	tokenType, _ := claims["type"].(string)
	if tokenType != "session" {
		return "", &domain.AuthenticationError{Message: "invalid session token"}
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return "", &domain.AuthenticationError{Message: "invalid session token"}
	}
	return subject, nil
}

// GetUser retrieves the signed-in user's record and username by the session
// subject (the provider email).
func (s *AuthService) GetUser(ctx context.Context, email string) (*domain.User, *string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, &domain.NotFoundError{Resource: "user", ID: email}
	}
	username, err := s.users.FindUsernameByUserID(ctx, user.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, username, nil
}

func (s *AuthService) issueToken(tokenType, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"type": tokenType,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if subject != "" {
		claims["sub"] = subject
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// readBodyText reads a response body for error reporting. It never fails:
// an unreadable body degrades to a placeholder.
func readBodyText(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return "<unreadable body>"
	}
	return string(body)
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
