package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	MongoDB  MongoDBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	S3       S3Config
	Workflow WorkflowConfig
	Session  SessionConfig
	OTEL     OTELConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	MaxUploadSizeMB int64
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
}

// AuthConfig holds the identity provider configuration
type AuthConfig struct {
	BaseURL    string // GoTrue-compatible auth API base URL
	AnonKey    string
	ServiceKey string // service-role key, required for admin endpoints
	JWTSecret  string // HS256 secret the provider signs access tokens with
}

// S3Config holds the object storage configuration for clinic logos
type S3Config struct {
	Endpoint string
	Region   string
	Bucket   string
}

// WorkflowConfig holds the n8n webhook configuration
type WorkflowConfig struct {
	BaseURL   string // empty disables workflow notifications
	AuthToken string
}

// SessionConfig holds session manager tuning knobs
type SessionConfig struct {
	LoadTimeout      time.Duration
	MaxProfileAge    time.Duration
	ResetRedirectURL string
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	Enabled        bool
	Endpoint       string
	InstanceID     string
	Token          string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRatio    float64
}

// Load reads configuration from environment variables
// It attempts to load from .env file first, then falls back to system env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			MaxUploadSizeMB: getEnvAsInt64("MAX_UPLOAD_SIZE_MB", 5),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "luxclinic"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Auth: AuthConfig{
			BaseURL:    getEnv("AUTH_BASE_URL", ""),
			AnonKey:    getEnv("AUTH_ANON_KEY", ""),
			ServiceKey: getEnv("AUTH_SERVICE_KEY", ""),
			JWTSecret:  getEnv("AUTH_JWT_SECRET", ""),
		},
		S3: S3Config{
			Endpoint: getEnv("S3_ENDPOINT", ""),
			Region:   getEnv("S3_REGION", "us-east-1"),
			Bucket:   getEnv("S3_BUCKET", "clinic-logos"),
		},
		Workflow: WorkflowConfig{
			BaseURL:   getEnv("WORKFLOW_BASE_URL", ""),
			AuthToken: getEnv("WORKFLOW_AUTH_TOKEN", ""),
		},
		Session: SessionConfig{
			LoadTimeout:      time.Duration(getEnvAsInt64("SESSION_LOAD_TIMEOUT_SECONDS", 10)) * time.Second,
			MaxProfileAge:    time.Duration(getEnvAsInt64("SESSION_MAX_PROFILE_AGE_MINUTES", 0)) * time.Minute,
			ResetRedirectURL: getEnv("SESSION_RESET_REDIRECT_URL", ""),
		},
		OTEL: OTELConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			InstanceID:     getEnv("OTEL_INSTANCE_ID", ""),
			Token:          getEnv("OTEL_TOKEN", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "luxclinic-sessiond"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
			SampleRatio:    getEnvAsFloat64("OTEL_SAMPLE_RATIO", 1),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.Auth.BaseURL == "" {
		return fmt.Errorf("AUTH_BASE_URL is required")
	}
	if c.Auth.AnonKey == "" {
		return fmt.Errorf("AUTH_ANON_KEY is required")
	}
	if c.OTEL.Enabled && c.OTEL.Endpoint == "" {
		return fmt.Errorf("OTEL_ENDPOINT is required when OTEL_ENABLED is set")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat64 retrieves an environment variable as float64 or returns a default value
func getEnvAsFloat64(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool retrieves an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
