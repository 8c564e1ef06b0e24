package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
)

const minJWTSecretLength = 32

// knownWeakSecrets are placeholder values that must never sign tokens in
// production.
var knownWeakSecrets = []string{
	"secret",
	"jwt-secret",
	"jwt_secret",
	"changeme",
	"password",
	"test",
	"development",
	"example",
	"default",
	"placeholder",
	"replace-me",
	"dev-only-insecure-secret",
}

// ValidationError collects every problem found in one pass so operators fix
// the whole configuration at once.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate enforces production configuration constraints. Development setups
// get a pass: the insecure defaults exist exactly for them.
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}

	verr := &ValidationError{}
	if err := validateJWTSecret(c.JWTSecret); err != nil {
		verr.Problems = append(verr.Problems, fmt.Sprintf("JWT_SECRET: %v", err))
	}
	if c.DatabaseURL != "" {
		if err := validateDatabaseURL(c.DatabaseURL); err != nil {
			verr.Problems = append(verr.Problems, fmt.Sprintf("DATABASE_URL: %v", err))
		}
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

func validateJWTSecret(secret string) error {
	if len(secret) < minJWTSecretLength {
		return fmt.Errorf("too short (%d chars, need >= %d)", len(secret), minJWTSecretLength)
	}

	lower := strings.ToLower(secret)
	for _, weak := range knownWeakSecrets {
		if strings.Contains(lower, weak) {
			return fmt.Errorf("contains weak/placeholder value %q", weak)
		}
	}

	if entropy := shannonEntropy(secret); entropy < 3.0 {
		return fmt.Errorf("entropy too low (%.1f bits/char, need >= 3.0)", entropy)
	}
	return nil
}

func validateDatabaseURL(rawURL string) error {
	if !strings.HasPrefix(rawURL, "postgres://") && !strings.HasPrefix(rawURL, "postgresql://") {
		return errors.New("must be a postgres:// or postgresql:// URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Hostname() == "" {
		return errors.New("must include a hostname")
	}
	return nil
}

// shannonEntropy measures bits per character; random keys land well above 3.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	for _, r := range s {
		freq[r]++
	}
	n := float64(len([]rune(s)))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
