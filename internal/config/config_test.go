package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearBackendEnv(t *testing.T) {
	for _, k := range backendEnv {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("DJANGO_API_URL", "http://django:8000/")
	t.Setenv("NEXTAUTH_SECRET", "secret")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://django:8000", cfg.BackendURL)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "memory", cfg.SessionStore)
	assert.Equal(t, "/login", cfg.LoginPath)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.Nil(t, cfg.KafkaBrokers)
}

func TestFromEnv_BackendPriority(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("NEXTAUTH_SECRET", "secret")
	t.Setenv("NEXT_PUBLIC_API_URL", "http://public-api")
	t.Setenv("NEXT_PUBLIC_BACKEND_URL", "http://public-backend")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://public-backend", cfg.BackendURL)
}

func TestFromEnv_MissingRequired(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("NEXTAUTH_SECRET", "")
	t.Setenv("SESSION_STORE", "db")
	t.Setenv("DATABASE_URL", "")

	cfg, err := FromEnv()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrMissingEnv)
	assert.Contains(t, err.Error(), "NEXTAUTH_SECRET")
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestFromEnv_UnknownSessionStore(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("DJANGO_API_URL", "http://django")
	t.Setenv("NEXTAUTH_SECRET", "secret")
	t.Setenv("SESSION_STORE", "cassandra")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestCSV(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, CSV(" a:9092, ,b:9092 "))
	assert.Nil(t, CSV(""))
}
