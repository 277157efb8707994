// Package session builds and parses the application session cookie.
package session

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CookieName is the session cookie name, shared by issuance and extraction.
const CookieName = "setlist_session"

// DefaultMaxAge is the session cookie lifetime in seconds (seven days).
const DefaultMaxAge = 604800

// CookieOptions overrides the builder defaults. Nil fields keep the default
// (Max-Age 604800, HttpOnly on).
type CookieOptions struct {
	MaxAge   *int
	HTTPOnly *bool
}

// RequestContext carries the request and environment facts the builder
// needs to derive the Secure and SameSite attributes.
type RequestContext struct {
	Environment    string
	RedirectOrigin string
	RequestScheme  string
	ForwardedProto string
}

// IsSecure reports whether any transport-security signal is present: the
// production environment, an https redirect origin, an https request URL, or
// an https x-forwarded-proto from a reverse proxy.
func (rc RequestContext) IsSecure() bool {
	return rc.Environment == "production" ||
		strings.HasPrefix(rc.RedirectOrigin, "https://") ||
		rc.RequestScheme == "https" ||
		strings.HasPrefix(strings.ToLower(rc.ForwardedProto), "https")
}

// SameSitePolicy picks the SameSite attribute. Cross-site redirects from the
// provider need SameSite=None, which browsers only accept together with
// Secure; same-site and local development use Lax.
func SameSitePolicy(_ bool, _ string, secure bool) string {
	if secure {
		return "None"
	}
	return "Lax"
}

var spaceRun = regexp.MustCompile(`\s+`)

// BuildCookie renders a Set-Cookie header value. The Domain attribute is
// always omitted so local development works without subdomain setup. An
// Expires attribute is emitted only for MaxAge 0, the clear-cookie idiom.
func BuildCookie(name, value string, opts CookieOptions, rc RequestContext) string {
	secure := rc.IsSecure()
	sameSite := SameSitePolicy(rc.Environment == "production", rc.RedirectOrigin, secure)

	maxAge := DefaultMaxAge
	if opts.MaxAge != nil {
		maxAge = *opts.MaxAge
	}
	httpOnly := opts.HTTPOnly == nil || *opts.HTTPOnly

	var b strings.Builder
	b.WriteString(name + "=" + value + "; ")
	if httpOnly {
		b.WriteString("HttpOnly; ")
	}
	b.WriteString("Path=/; ")
	b.WriteString("SameSite=" + sameSite + "; ")
	b.WriteString("Max-Age=" + strconv.Itoa(maxAge) + "; ")
	if opts.MaxAge != nil && *opts.MaxAge == 0 {
		b.WriteString("Expires=" + time.Unix(0, 0).UTC().Format(http.TimeFormat) + "; ")
	}
	if secure {
		b.WriteString("Secure;")
	}

	return strings.TrimSpace(spaceRun.ReplaceAllString(b.String(), " "))
}

// ClearCookie renders the header value that clears the session cookie.
func ClearCookie(rc RequestContext) string {
	zero := 0
	return BuildCookie(CookieName, "", CookieOptions{MaxAge: &zero}, rc)
}

var tokenPattern = regexp.MustCompile(`(?:^|;\s*)` + regexp.QuoteMeta(CookieName) + `=([^;]+)`)

// ExtractToken pulls the session token out of a raw Cookie header. The
// pattern anchors on start-of-string or a semicolon so a cookie whose name
// merely ends with CookieName cannot match.
func ExtractToken(cookieHeader string) (string, bool) {
	if cookieHeader == "" {
		return "", false
	}
	m := tokenPattern.FindStringSubmatch(cookieHeader)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}
