package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				Env:        tt.env,
				DBSSLMode:  tt.sslMode,
				JWTSecret:  "secure-secret-at-least-32-chars-long",
				DBPassword: "secure-password",
				Port:       "8080",
			}

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateProductionSecrets(t *testing.T) {
	base := Config{
		Env:        "production",
		DBSSLMode:  "require",
		JWTSecret:  "secure-secret-at-least-32-chars-long",
		DBPassword: "secure-password",
		Port:       "8080",
	}

	c := base
	c.JWTSecret = "your-secret-key-change-in-production"
	assert.Error(t, c.Validate())

	c = base
	c.DBPassword = "password"
	assert.Error(t, c.Validate())

	c = base
	c.SheetsAPIURL = "https://sheets.example.com"
	assert.Error(t, c.Validate(), "sheets API key is required with a remote provider")

	c.SheetsAPIKey = "key"
	assert.NoError(t, c.Validate())
}

func TestConfig_ValidateRejectsNegativeLimits(t *testing.T) {
	c := &Config{Port: "8080", JWTSecret: "x", SheetsRatePerSec: -1}
	assert.Error(t, c.Validate())

	c = &Config{Port: "8080", JWTSecret: "x", GenerationCostCents: -5}
	assert.Error(t, c.Validate())
}

func TestConfig_ValidateJoinsAllProblems(t *testing.T) {
	c := &Config{Env: "production", SheetsRatePerSec: -1}
	err := c.Validate()
	require.Error(t, err)
	for _, want := range []string{"PORT", "JWT_SECRET is required", "SHEETS_RATE_PER_SEC", "DB_PASSWORD", "DB_SSLMODE"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestConfig_Warnings(t *testing.T) {
	assert.Equal(t, []string{"JWT_SECRET is shorter than 32 characters"}, (&Config{Env: "development", JWTSecret: "short"}).Warnings())
	assert.Equal(t, []string{"ALLOWED_ORIGINS is '*' in production"},
		(&Config{Env: "prod", JWTSecret: "secure-secret-at-least-32-chars-long", AllowedOrigins: "*"}).Warnings())
	assert.Empty(t, (&Config{Env: "test", JWTSecret: "secure-secret-at-least-32-chars-long"}).Warnings())
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "8375", c.Port)
	assert.Equal(t, 250*time.Millisecond, c.SheetsDevStepDelay)
	assert.Equal(t, int64(100), c.GenerationCostCents)
	assert.Equal(t, 100, c.RateLimitPerMinute)
	assert.Empty(t, c.SheetsAPIURL)
	assert.False(t, c.IsProduction())
}

func TestLoadConfig_ProfileFileRequired(t *testing.T) {
	t.Setenv("APP_ENV", "staging-nowhere")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.staging-nowhere.yml")
}
