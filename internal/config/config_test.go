package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/setlist/internal/domain"
)

func TestLoadRequiresSessionSecret(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "/api/v1/auth/callback", cfg.RedirectPath)
}

func TestOriginsIncludeFrontendAndRedirect(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("FRONTEND_URL", "https://app.example.com")
	t.Setenv("REDIRECT_ORIGIN", "https://api.example.com")
	t.Setenv("ALLOWED_ORIGINS", "https://staging.example.com,https://preview.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://app.example.com",
		"https://api.example.com",
		"https://staging.example.com",
		"https://preview.example.com",
	}, cfg.Origins())
}

func TestProviderCredentials(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "gid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")

	id, secret, err := ProviderCredentials(domain.AuthProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "gid", id)
	assert.Equal(t, "gsecret", secret)

	_, _, err = ProviderCredentials(domain.AuthProvider("myspace"))
	assert.Error(t, err)
}
