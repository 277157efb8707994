package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sumire/setlist/internal/domain"
)

type stubStore struct {
	user          *domain.User
	username      *string
	findErr       error
	usernameErr   error
	usernameCalls int
}

func (s *stubStore) FindByEmail(context.Context, string) (*domain.User, error) {
	return s.user, s.findErr
}

func (s *stubStore) FindUsernameByUserID(context.Context, string) (*string, error) {
	s.usernameCalls++
	return s.username, s.usernameErr
}

type fakeProvider struct {
	srv *httptest.Server

	tokenStatus   int
	tokenBody     map[string]any
	userInfoBody  map[string]any
	lastTokenForm map[string][]string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	fp := &fakeProvider{
		tokenStatus:  http.StatusOK,
		tokenBody:    map[string]any{"access_token": "t1"},
		userInfoBody: map[string]any{"email": "a@b.com"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		fp.lastTokenForm = r.PostForm
		if fp.tokenStatus != http.StatusOK {
			w.WriteHeader(fp.tokenStatus)
			_, _ = w.Write([]byte("provider says no"))
			return
		}
		_ = json.NewEncoder(w).Encode(fp.tokenBody)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(fp.userInfoBody)
	})

	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func newTestService(t *testing.T, store UserStore, fp *fakeProvider) *AuthService {
	t.Helper()

	svc := NewAuthService(store, AuthConfig{
		SessionSecret: "test-secret",
		RedirectPath:  "/api/v1/auth/callback",
		Credentials: func(domain.AuthProvider) (string, string, error) {
			return "client-id", "client-secret", nil
		},
	})
	svc.endpoints[domain.AuthProviderGoogle] = oauth2.Endpoint{
		AuthURL:  fp.srv.URL + "/auth",
		TokenURL: fp.srv.URL + "/token",
	}
	svc.userInfoURLs[domain.AuthProviderGoogle] = fp.srv.URL + "/userinfo"
	return svc
}

func TestCallbackNoMatchingUser(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	store := &stubStore{}
	svc := newTestService(t, store, fp)

	result, err := svc.Callback(context.Background(), domain.AuthProviderGoogle, "code-1", "http://localhost/api/v1/auth/callback")
	require.NoError(t, err)

	assert.Nil(t, result.ExistingUser)
	assert.Nil(t, result.Username)
	assert.Equal(t, "a@b.com", result.Profile.Email)
	assert.Zero(t, store.usernameCalls, "username lookup must be skipped without a user")

	subject, err := svc.ValidateSessionToken(result.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", subject)

	form := fp.lastTokenForm
	assert.Equal(t, "authorization_code", form["grant_type"][0])
	assert.Equal(t, "code-1", form["code"][0])
	assert.Equal(t, "http://localhost/api/v1/auth/callback", form["redirect_uri"][0])
	assert.Equal(t, "client-id", form["client_id"][0])
}

func TestCallbackExistingUser(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	name := "dj_sumire"
	store := &stubStore{
		user: &domain.User{
			UserID:          "u-1",
			Email:           "a@b.com",
			LinkedProviders: []string{"google"},
		},
		username: &name,
	}
	svc := newTestService(t, store, fp)

	result, err := svc.Callback(context.Background(), domain.AuthProviderGoogle, "code-1", "http://localhost/cb")
	require.NoError(t, err)

	require.NotNil(t, result.ExistingUser)
	assert.Equal(t, "u-1", result.ExistingUser.UserID)
	require.NotNil(t, result.Username)
	assert.Equal(t, "dj_sumire", *result.Username)
	assert.Equal(t, 1, store.usernameCalls)
}

func TestCallbackIDTokenFallback(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	fp.tokenBody = map[string]any{"id_token": "idt-1"}
	svc := newTestService(t, &stubStore{}, fp)

	result, err := svc.Callback(context.Background(), domain.AuthProviderGoogle, "c", "http://localhost/cb")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", result.Profile.Email)
}

func TestCallbackNoTokensAtAll(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	fp.tokenBody = map[string]any{"token_type": "bearer"}
	svc := newTestService(t, &stubStore{}, fp)

	_, err := svc.Callback(context.Background(), domain.AuthProviderGoogle, "c", "http://localhost/cb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither access_token nor id_token")
}

func TestCallbackExchangeFailureIncludesStatusAndBody(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	fp.tokenStatus = http.StatusBadGateway
	svc := newTestService(t, &stubStore{}, fp)

	_, err := svc.Callback(context.Background(), domain.AuthProviderGoogle, "c", "http://localhost/cb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "provider says no")
}

func TestCallbackUserInfoMissingEmail(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	fp.userInfoBody = map[string]any{"name": "nameless"}
	svc := newTestService(t, &stubStore{}, fp)

	_, err := svc.Callback(context.Background(), domain.AuthProviderGoogle, "c", "http://localhost/cb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid userinfo")
}

func TestCallbackUserInfoFieldCoercion(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	fp.userInfoBody = map[string]any{
		"email_address":      "alt@b.com",
		"preferred_username": "pref",
		"user_id":            float64(12345),
	}
	svc := newTestService(t, &stubStore{}, fp)

	result, err := svc.Callback(context.Background(), domain.AuthProviderGoogle, "c", "http://localhost/cb")
	require.NoError(t, err)

	assert.Equal(t, "alt@b.com", result.Profile.Email)
	assert.Equal(t, "pref", result.Profile.Name)
	assert.Equal(t, "12345", result.Profile.ID)
}

func TestCallbackStoreErrorPropagates(t *testing.T) {
	t.Parallel()

	fp := newFakeProvider(t)
	store := &stubStore{findErr: &domain.DatabaseError{Message: "find user"}}
	svc := newTestService(t, store, fp)

	_, err := svc.Callback(context.Background(), domain.AuthProviderGoogle, "c", "http://localhost/cb")
	require.Error(t, err)

	var dbErr *domain.DatabaseError
	assert.ErrorAs(t, err, &dbErr)
}

func TestResolveRedirectURIOrdering(t *testing.T) {
	t.Parallel()

	svc := NewAuthService(&stubStore{}, AuthConfig{
		RedirectOrigin: "https://api.example.com",
		RedirectPath:   "/cb",
		Credentials:    func(domain.AuthProvider) (string, string, error) { return "", "", nil },
	})

	testCases := []struct {
		name          string
		state         *domain.OauthState
		requestOrigin string
		schemeHost    string
		want          string
	}{
		{
			name:  "state origin wins",
			state: &domain.OauthState{RedirectOrigin: "http://localhost", RedirectPort: "5173"},
			want:  "http://localhost:5173/cb",
		},
		{
			name:  "state origin with embedded port",
			state: &domain.OauthState{RedirectOrigin: "http://localhost:4000", RedirectPort: "5173"},
			want:  "http://localhost:4000/cb",
		},
		{
			name:          "configured origin over request",
			state:         &domain.OauthState{},
			requestOrigin: "http://proxy.internal",
			want:          "https://api.example.com/cb",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := svc.ResolveRedirectURI(tc.state, tc.requestOrigin, tc.schemeHost)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("request origin then scheme-host without config", func(t *testing.T) {
		t.Parallel()

		bare := NewAuthService(&stubStore{}, AuthConfig{
			RedirectPath: "/cb",
			Credentials:  func(domain.AuthProvider) (string, string, error) { return "", "", nil },
		})

		assert.Equal(t, "http://origin.example/cb", bare.ResolveRedirectURI(nil, "http://origin.example", "http://host.example"))
		assert.Equal(t, "http://host.example/cb", bare.ResolveRedirectURI(nil, "", "http://host.example"))
	})
}

func TestTokenIssuance(t *testing.T) {
	t.Parallel()

	svc := NewAuthService(&stubStore{}, AuthConfig{
		SessionSecret: "test-secret",
		Credentials:   func(domain.AuthProvider) (string, string, error) { return "", "", nil },
	})

	visitor, err := svc.IssueVisitorToken()
	require.NoError(t, err)
	assert.NotEmpty(t, visitor.AccessToken)
	assert.Equal(t, int64(3600), visitor.ExpiresIn)

	user, err := svc.IssueUserToken("a@b.com")
	require.NoError(t, err)
	assert.NotEmpty(t, user.AccessToken)
	assert.Equal(t, int64(900), user.ExpiresIn)

	// Neither bearer token is a valid session token.
	_, err = svc.ValidateSessionToken(visitor.AccessToken)
	assert.Error(t, err)
	_, err = svc.ValidateSessionToken(user.AccessToken)
	assert.Error(t, err)
}

func TestCallbackRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc := NewAuthService(&stubStore{}, AuthConfig{
		SessionSecret: "test-secret",
		Credentials:   func(domain.AuthProvider) (string, string, error) { return "", "", nil },
	})
	svc.endpoints[domain.AuthProviderGoogle] = oauth2.Endpoint{TokenURL: srv.URL + "/token"}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.Callback(ctx, domain.AuthProviderGoogle, "c", "http://localhost/cb")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
