// Package config loads studiodesk settings from config*.yml files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds every setting. Keys are the environment variable names.
type Config struct {
	Env       string `mapstructure:"APP_ENV"`
	Port      string `mapstructure:"PORT"`
	JWTSecret string `mapstructure:"JWT_SECRET"`

	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	DBReadHost     string `mapstructure:"DB_READ_HOST"`
	DBReadPort     string `mapstructure:"DB_READ_PORT"`
	DBReadUser     string `mapstructure:"DB_READ_USER"`
	DBReadPassword string `mapstructure:"DB_READ_PASSWORD"`

	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	// Requests per minute per client IP across the whole API.
	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	FeatureFlags       string `mapstructure:"FEATURE_FLAGS"`

	DevBootstrapRoot        bool   `mapstructure:"DEV_BOOTSTRAP_ROOT"`
	DevRootUsername         string `mapstructure:"DEV_ROOT_USERNAME"`
	DevRootEmail            string `mapstructure:"DEV_ROOT_EMAIL"`
	DevRootPassword         string `mapstructure:"DEV_ROOT_PASSWORD"`
	DevRootForceCredentials bool   `mapstructure:"DEV_ROOT_FORCE_CREDENTIALS"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`

	// Spreadsheet generation. An empty SheetsAPIURL selects the local dev provider.
	SheetsAPIURL       string        `mapstructure:"SHEETS_API_URL"`
	SheetsAPIKey       string        `mapstructure:"SHEETS_API_KEY"`
	SheetsRatePerSec   float64       `mapstructure:"SHEETS_RATE_PER_SEC"`
	SheetsTemplateID   string        `mapstructure:"SHEETS_TEMPLATE_ID"`
	SheetsDevStepDelay time.Duration `mapstructure:"SHEETS_DEV_STEP_DELAY"`

	GenerationCostCents int64  `mapstructure:"GENERATION_COST_CENTS"`
	ForumSeedPreset     string `mapstructure:"FORUM_SEED_PRESET"`
}

// defaults doubles as the key list: viper only maps environment variables
// onto keys it already knows.
var defaults = map[string]any{
	"APP_ENV":    "development",
	"PORT":       "8375",
	"JWT_SECRET": defaultJWTSecret,

	"DB_HOST":          "localhost",
	"DB_PORT":          "5432",
	"DB_USER":          "user",
	"DB_PASSWORD":      "password",
	"DB_NAME":          "studiodesk",
	"DB_SSLMODE":       "disable",
	"DB_READ_HOST":     "",
	"DB_READ_PORT":     "5432",
	"DB_READ_USER":     "user",
	"DB_READ_PASSWORD": "password",

	"DB_SCHEMA_MODE":                   "hybrid",
	"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE": false,
	"DB_MAX_OPEN_CONNS":                25,
	"DB_MAX_IDLE_CONNS":                5,
	"DB_CONN_MAX_LIFETIME_MINUTES":     5,

	"REDIS_URL":             "localhost:6379",
	"ALLOWED_ORIGINS":       "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173",
	"RATE_LIMIT_PER_MINUTE": 100,
	"FEATURE_FLAGS":         "forum_seed=on",

	"DEV_BOOTSTRAP_ROOT":         false,
	"DEV_ROOT_USERNAME":          "studio_root",
	"DEV_ROOT_EMAIL":             "root@studiodesk.local",
	"DEV_ROOT_PASSWORD":          "",
	"DEV_ROOT_FORCE_CREDENTIALS": false,

	"TRACING_ENABLED":      false,
	"TRACING_EXPORTER":     "stdout",
	"OTLP_ENDPOINT":        "localhost:4318",
	"TRACING_SAMPLE_RATIO": 1.0,

	"SHEETS_API_URL":        "",
	"SHEETS_API_KEY":        "",
	"SHEETS_RATE_PER_SEC":   5.0,
	"SHEETS_TEMPLATE_ID":    "default-model-sheet",
	"SHEETS_DEV_STEP_DELAY": "250ms",

	"GENERATION_COST_CENTS": 100,
	"FORUM_SEED_PRESET":     "demo",
}

// LoadConfig reads config.yml (optional) and, outside development and
// test, the required config.<APP_ENV>.yml overlay. Environment variables
// win over both.
func LoadConfig() (*Config, error) {
	v := viper.New()
	for _, dir := range []string{".", "..", "../.."} {
		v.AddConfigPath(dir)
	}
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	_ = v.ReadInConfig()

	if env := v.GetString("APP_ENV"); env != "development" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config.%s.yml is required for APP_ENV=%s: %w", env, env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DBSSLMode = strings.ToLower(strings.TrimSpace(cfg.DBSSLMode))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate reports every missing or unsafe setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(bad bool, msg string) {
		if bad {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Port == "", "PORT is required")
	check(c.JWTSecret == "", "JWT_SECRET is required")
	check(c.SheetsRatePerSec < 0, "SHEETS_RATE_PER_SEC must not be negative")
	check(c.GenerationCostCents < 0, "GENERATION_COST_CENTS must not be negative")
	check(c.RateLimitPerMinute < 0, "RATE_LIMIT_PER_MINUTE must not be negative")

	if c.IsProduction() {
		check(c.JWTSecret == defaultJWTSecret, "JWT_SECRET must be changed from the default value in production")
		check(len(c.JWTSecret) < 32, "JWT_SECRET must be at least 32 characters in production")
		check(c.DBPassword == "" || c.DBPassword == "password", "a strong DB_PASSWORD is required in production")
		check(c.DBSSLMode == "" || c.DBSSLMode == "disable", "DB_SSLMODE must enable TLS in production")
		check(c.SheetsAPIURL != "" && c.SheetsAPIKey == "", "SHEETS_API_KEY is required when SHEETS_API_URL is set in production")
	}
	return errors.Join(errs...)
}

// Warnings lists settings that are allowed but worth a log line at startup.
func (c *Config) Warnings() []string {
	var out []string
	if c.IsProduction() && c.AllowedOrigins == "*" {
		out = append(out, "ALLOWED_ORIGINS is '*' in production")
	}
	if !c.IsProduction() && len(c.JWTSecret) < 32 {
		out = append(out, "JWT_SECRET is shorter than 32 characters")
	}
	return out
}
