package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/sumire/setlist/internal/domain"
)

// OriginVerifier gates mutating requests behind an origin allow-list. It is
// a coarse same-origin check; the OAuth state nonce is round-tripped but not
// verified against a stored value here.
type OriginVerifier struct {
	allowed map[string]struct{}
}

// NewOriginVerifier creates a verifier for the given allowed origins.
// Trailing slashes are normalized away.
func NewOriginVerifier(origins []string) *OriginVerifier {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &OriginVerifier{allowed: allowed}
}

// Verify checks the request's declared origin against the allow-list,
// falling back to the Referer's origin when no Origin header is present.
// It fails with AuthenticationError for a missing or unlisted origin.
func (v *OriginVerifier) Verify(r *http.Request) error {
	origin := requestOrigin(r)
	if origin == "" {
		return &domain.AuthenticationError{Message: "missing request origin"}
	}
	if _, ok := v.allowed[strings.TrimRight(origin, "/")]; !ok {
		return &domain.AuthenticationError{Message: "origin not allowed"}
	}
	return nil
}

// requestOrigin derives the caller's origin from the Origin header, falling
// back to the Referer's scheme and host.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		return origin
	}
	referer := r.Header.Get("Referer")
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
