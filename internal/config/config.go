// Package config loads judge configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the judge.
type Config struct {
	Port        string
	Environment string

	// Persistence
	DatabaseURL string // postgres DSN; empty selects the embedded sqlite file
	SQLitePath  string
	RedisURL    string // optional listing cache; empty disables it

	// Identity
	JWTSecret   string
	AdminEmails []string

	// Execution engine
	ExecutionImageTag string        // appended to language images without an explicit tag
	PerTestTimeout    time.Duration // wall clock per test case
	MaxParallelRuns   int64         // global container ceiling
	ContainerMemory   int64         // bytes
	ContainerPids     int64
	TempRoot          string
	FixturesDir       string
}

// Load reads configuration from environment variables, applying the documented
// defaults. It never fails; invalid numeric values fall back to defaults.
func Load() *Config {
	return &Config{
		Port:        envOr("PORT", "8080"),
		Environment: envOr("ENVIRONMENT", "development"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  envOr("SQLITE_PATH", "judge.db"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret:   envOr("JWT_SECRET", "dev-only-insecure-secret"),
		AdminEmails: splitList(os.Getenv("ADMIN_EMAILS")),

		ExecutionImageTag: envOr("EXECUTION_IMAGE_TAG", "latest"),
		PerTestTimeout:    time.Duration(envInt("PER_TEST_TIMEOUT_MS", 30000)) * time.Millisecond,
		MaxParallelRuns:   envInt("MAX_PARALLEL_EXECUTIONS", 4),
		ContainerMemory:   envInt("CONTAINER_MEMORY_CAP", 256*1024*1024),
		ContainerPids:     envInt("CONTAINER_PIDS_CAP", 128),
		TempRoot:          envOr("TEMP_ROOT_DIR", os.TempDir()),
		FixturesDir:       envOr("FIXTURES_DIR", "fixtures"),
	}
}

// IsProduction reports whether the judge runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
