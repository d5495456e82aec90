package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Port               string
	GoEnv              string
	DatabasePath       string
	ForeignKeys        bool
	QueryTimeout       time.Duration
	QueryMaxRows       int
	QueryReadOnly      bool
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	GeminiAPIVersion   string
	PostmarkToken      string
	PostmarkFrom       string
	PostmarkBaseURL    string
	WebhookUsername    string
	WebhookPassword    string
	Auth0Domain        string
	Auth0Audience      string
	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	ChartDir           string
	RedisAddress       string
	DedupTTL           time.Duration
	AttachWorkbook     bool
	CORSAllowedOrigins []string
	LogLevel           string
}

var appConfig *Config

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	var parseErrs []string
	duration := func(key string, def time.Duration) time.Duration {
		raw := getEnv(key, "")
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return d
	}
	integer := func(key string, def int) int {
		raw := getEnv(key, "")
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return n
	}
	boolean := func(key string, def bool) bool {
		raw := getEnv(key, "")
		if raw == "" {
			return def
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return b
	}

	config := &Config{
		Port:               getEnv("PORT", "8000"),
		GoEnv:              getEnv("GO_ENV", "development"),
		DatabasePath:       getEnv("DATABASE_PATH", "northwind.db"),
		ForeignKeys:        boolean("DB_FOREIGN_KEYS", true),
		QueryTimeout:       duration("QUERY_TIMEOUT", 5*time.Second),
		QueryMaxRows:       integer("QUERY_MAX_ROWS", 10000),
		QueryReadOnly:      boolean("QUERY_READ_ONLY", false),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/"),
		GeminiAPIVersion:   getEnv("GEMINI_API_VERSION", "v1beta"),
		PostmarkToken:      getEnv("POSTMARK_TOKEN", ""),
		PostmarkFrom:       getEnv("POSTMARK_FROM", "ask@sudharshanks.in"),
		PostmarkBaseURL:    getEnv("POSTMARK_BASE_URL", "https://api.postmarkapp.com"),
		WebhookUsername:    getEnv("WEBHOOK_USERNAME", ""),
		WebhookPassword:    getEnv("WEBHOOK_PASSWORD", ""),
		Auth0Domain:        getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:      getEnv("AUTH0_AUDIENCE", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		ChartDir:           getEnv("CHART_DIR", "./charts"),
		RedisAddress:       getEnv("REDIS_ADDRESS", ""),
		DedupTTL:           duration("DEDUP_TTL", 24*time.Hour),
		AttachWorkbook:     boolean("ATTACH_WORKBOOK", true),
		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	if len(parseErrs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(parseErrs, "; "))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	appConfig = config
	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive")
	}
	if c.QueryMaxRows <= 0 {
		return fmt.Errorf("QUERY_MAX_ROWS must be positive")
	}
	if (c.WebhookUsername == "") != (c.WebhookPassword == "") {
		return fmt.Errorf("WEBHOOK_USERNAME and WEBHOOK_PASSWORD must be set together")
	}
	if c.IsProduction() {
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required in production")
		}
		if c.PostmarkToken == "" {
			return fmt.Errorf("POSTMARK_TOKEN is required in production")
		}
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// AuthEnabled reports whether the Auth0 settings needed by the query API are present
func (c *Config) AuthEnabled() bool {
	return c.Auth0Domain != "" && c.Auth0Audience != ""
}

// ArchiveToS3 reports whether rendered charts should be stored in S3
func (c *Config) ArchiveToS3() bool {
	return c.AWSS3Bucket != ""
}

// GetConfig returns the configuration loaded by the last successful Load call
func GetConfig() *Config {
	return appConfig
}

// SetConfig replaces the loaded configuration (primarily for testing)
func SetConfig(cfg *Config) {
	appConfig = cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
