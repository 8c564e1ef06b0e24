package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSkipsDevelopment(t *testing.T) {
	cfg := &Config{Environment: "development", JWTSecret: "dev-only-insecure-secret"}
	assert.NoError(t, cfg.Validate())
}

func TestValidateProductionSecrets(t *testing.T) {
	strong := "fJ8#mQ2xL9@pW4zR7!vN3kT6yB1cH5dG"

	cfg := &Config{Environment: "production", JWTSecret: strong}
	assert.NoError(t, cfg.Validate())

	cases := []struct {
		name   string
		secret string
	}{
		{"too short", "abc123!@#"},
		{"placeholder", "changeme-changeme-changeme-changeme"},
		{"default", "dev-only-insecure-secret-padded-out-long"},
		{"low entropy", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaab"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Environment: "production", JWTSecret: tc.secret}
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "JWT_SECRET")
		})
	}
}

func TestValidateDatabaseURL(t *testing.T) {
	strong := "fJ8#mQ2xL9@pW4zR7!vN3kT6yB1cH5dG"

	ok := &Config{Environment: "production", JWTSecret: strong,
		DatabaseURL: "postgres://judge:pw@db.internal:5432/judge"}
	assert.NoError(t, ok.Validate())

	bad := &Config{Environment: "production", JWTSecret: strong,
		DatabaseURL: "mysql://db.internal/judge"}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	// An empty URL is fine: the judge falls back to embedded sqlite.
	sqlite := &Config{Environment: "production", JWTSecret: strong}
	assert.NoError(t, sqlite.Validate())
}
