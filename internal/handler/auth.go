package handler

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/setlist/internal/domain"
	"github.com/sumire/setlist/internal/service"
	"github.com/sumire/setlist/internal/session"
)

// originVerifier gates mutating requests. Satisfied by *OriginVerifier.
type originVerifier interface {
	Verify(r *http.Request) error
}

// AuthConfig holds the request-context facts the auth endpoints need.
type AuthConfig struct {
	Environment    string
	RedirectOrigin string
	FrontendURL    string
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	auth    *service.AuthService
	origins originVerifier
	cfg     AuthConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService, origins originVerifier, cfg AuthConfig) *AuthHandler {
	return &AuthHandler{auth: auth, origins: origins, cfg: cfg}
}

// Register mounts the auth routes on g.
func (h *AuthHandler) Register(g *echo.Group) {
	g.GET("/auth/:provider", Wrap(h.SignIn))
	g.GET("/auth/callback", Wrap(h.Callback))
	g.POST("/auth/signout", h.SignOut)
	g.POST("/auth/token", Wrap(h.VisitorToken, rawJSON))
	g.GET("/auth/session/token", Wrap(h.SessionToken, rawJSON))
	g.GET("/auth/me", Wrap(h.Me), SessionAuth(h.auth))
}

// rawJSON sends the operation value as-is, without the success envelope.
func rawJSON(c echo.Context, v any) error {
	return c.JSON(http.StatusOK, v)
}

// SignIn starts the OAuth flow: it encodes a fresh state and redirects to
// the provider's consent page.
func (h *AuthHandler) SignIn(c echo.Context) (any, error) {
	provider := domain.AuthProvider(c.Param("provider"))
	if !provider.Valid() {
		return nil, &domain.ValidationError{Field: "provider", Message: "unknown provider"}
	}

	lang := domain.Lang(c.QueryParam("lang"))
	if lang == "" {
		lang = domain.LangEN
	}
	if lang != domain.LangEN && lang != domain.LangJA {
		return nil, &domain.ValidationError{Field: "lang", Message: "unsupported language"}
	}

	state := domain.OauthState{
		CSRF:           generateNonce(),
		Lang:           lang,
		Provider:       provider,
		RedirectPort:   c.QueryParam("redirect_port"),
		RedirectOrigin: c.QueryParam("redirect_origin"),
	}

	encoded, err := service.EncodeState(state)
	if err != nil {
		return nil, err
	}

	redirectURI := h.auth.ResolveRedirectURI(&state, requestOrigin(c.Request()), schemeHost(c))
	consentURL, err := h.auth.AuthCodeURL(provider, encoded, redirectURI)
	if err != nil {
		return nil, err
	}

	return nil, c.Redirect(http.StatusTemporaryRedirect, consentURL)
}

// Callback handles the provider's authorization-code callback: decode the
// state, run the sign-in pipeline, set the session cookie, and send the
// browser back to the app.
func (h *AuthHandler) Callback(c echo.Context) (any, error) {
	state, err := service.DecodeState(c.QueryParam("state"))
	if err != nil {
		return nil, fmt.Errorf("decode oauth state: %w", err)
	}

	code := c.QueryParam("code")
	if code == "" {
		return nil, &domain.ValidationError{Field: "code", Message: "missing code parameter"}
	}

	redirectURI := h.auth.ResolveRedirectURI(&state, requestOrigin(c.Request()), schemeHost(c))
	result, err := h.auth.Callback(c.Request().Context(), state.Provider, code, redirectURI)
	if err != nil {
		return nil, err
	}

	cookie := session.BuildCookie(session.CookieName, result.SessionToken, session.CookieOptions{}, h.requestContext(c))
	c.Response().Header().Add(echo.HeaderSetCookie, cookie)

	target := h.cfg.FrontendURL
	if state.RedirectOrigin != "" {
		target = state.RedirectOrigin
		if state.RedirectPort != "" {
			target += ":" + state.RedirectPort
		}
	}
	return nil, c.Redirect(http.StatusTemporaryRedirect, target+"/?lang="+string(state.Lang))
}

// SignOut clears the session cookie. The whole body sits behind a catch-all:
// any failure, including a panicking verifier, yields the fixed 500 body and
// no cookie header is appended.
func (h *AuthHandler) SignOut(c echo.Context) error {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sign-out panic: %v", r)
			}
		}()

		if err := h.origins.Verify(c.Request()); err != nil {
			return err
		}

		c.Response().Header().Add(echo.HeaderSetCookie, session.ClearCookie(h.requestContext(c)))
		return nil
	}()
	if err != nil {
		slog.Error("sign-out failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed"})
	}

	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// VisitorToken issues an anonymous bearer token.
func (h *AuthHandler) VisitorToken(_ echo.Context) (any, error) {
	return h.auth.IssueVisitorToken()
}

// SessionToken issues an access token for the signed-in user, scoped by the
// session cookie.
func (h *AuthHandler) SessionToken(c echo.Context) (any, error) {
	token, ok := session.ExtractToken(c.Request().Header.Get("Cookie"))
	if !ok {
		return nil, &domain.AuthenticationError{Message: "missing session cookie"}
	}

	subject, err := h.auth.ValidateSessionToken(token)
	if err != nil {
		return nil, &domain.AuthenticationError{Message: "invalid session"}
	}

	return h.auth.IssueUserToken(subject)
}

// Me returns the currently signed-in user.
func (h *AuthHandler) Me(c echo.Context) (any, error) {
	subject, ok := SessionSubject(c)
	if !ok {
		return nil, &domain.AuthenticationError{}
	}

	user, username, err := h.auth.GetUser(c.Request().Context(), subject)
	if err != nil {
		return nil, err
	}

	return map[string]any{"user": user, "username": username}, nil
}

func (h *AuthHandler) requestContext(c echo.Context) session.RequestContext {
	scheme := "http"
	if c.Request().TLS != nil || c.Request().URL.Scheme == "https" {
		scheme = "https"
	}
	return session.RequestContext{
		Environment:    h.cfg.Environment,
		RedirectOrigin: h.cfg.RedirectOrigin,
		RequestScheme:  scheme,
		ForwardedProto: c.Request().Header.Get("X-Forwarded-Proto"),
	}
}

func schemeHost(c echo.Context) string {
	scheme := "http"
	if c.Request().TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request().Host
}

func generateNonce() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "fallback-state"
	}
	return base64.URLEncoding.EncodeToString(b)
}
