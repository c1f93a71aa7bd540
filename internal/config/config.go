package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"kinship/internal/agegroup"
)

// Config holds application configuration
type Config struct {
	ServerPort      string
	DatabaseType    string
	DatabasePath    string
	DatabaseURL     string
	SessionDuration time.Duration
	StaticFilesPath string
	TemplatesPath   string
	MigrationsPath  string

	CSRFSecret       string
	OAuthStateSecret string

	GoogleClientID       string
	GoogleClientSecret   string
	OAuthRedirectBaseURL string

	SESRegion    string
	SESFromEmail string
	SESFromName  string
	AppBaseURL   string

	LogLevel  string
	LogFormat string
	Debug     bool

	PageSize               int
	DuplicateNameThreshold int
	SymmetricRelationships bool

	AgeBrackets        agegroup.Brackets
	MinBodyTemperature float64
	MaxBodyTemperature float64
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	defaults := agegroup.DefaultBrackets()

	return &Config{
		ServerPort:      getEnv("PORT", "8080"),
		DatabaseType:    getEnv("DB_TYPE", "sqlite"),
		DatabasePath:    getEnv("DB_PATH", "./kinship.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SessionDuration: getEnvDuration("SESSION_DURATION", 24*time.Hour),
		StaticFilesPath: getEnv("STATIC_PATH", "./static"),
		TemplatesPath:   getEnv("TEMPLATES_PATH", "./templates"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),

		CSRFSecret:       getEnv("CSRF_SECRET", randomSecret()),
		OAuthStateSecret: getEnv("OAUTH_STATE_SECRET", randomSecret()),

		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		OAuthRedirectBaseURL: getEnv("OAUTH_REDIRECT_BASE_URL", ""),

		SESRegion:    getEnv("SES_REGION", "us-east-1"),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "Kinship"),
		AppBaseURL:   getEnv("APP_BASE_URL", "http://localhost:8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		Debug:     getEnvBool("DEBUG", false),

		PageSize:               getEnvInt("PAGE_SIZE", 20),
		DuplicateNameThreshold: getEnvInt("DUPLICATE_NAME_THRESHOLD", 100),
		SymmetricRelationships: getEnvBool("SYMMETRIC_RELATIONSHIPS", false),

		AgeBrackets: agegroup.Brackets{
			TeenageStart:    getEnvInt("TEENAGE_START", defaults.TeenageStart),
			YoungAdultStart: getEnvInt("YOUNG_ADULT_START", defaults.YoungAdultStart),
			YoungAdultEnd:   getEnvInt("YOUNG_ADULT_END", defaults.YoungAdultEnd),
			MiddleAgeStart:  getEnvInt("MIDDLE_AGE_START", defaults.MiddleAgeStart),
			MiddleAgeEnd:    getEnvInt("MIDDLE_AGE_END", defaults.MiddleAgeEnd),
			SeniorityStart:  getEnvInt("SENIORITY_START", defaults.SeniorityStart),
			MaxHumanAge:     getEnvInt("MAX_HUMAN_AGE", defaults.MaxHumanAge),
		},
		MinBodyTemperature: getEnvFloat("MIN_BODY_TEMPERATURE", 34.0),
		MaxBodyTemperature: getEnvFloat("MAX_BODY_TEMPERATURE", 43.0),
	}
}

// Validate reports configuration values the server cannot start with
func (c *Config) Validate() error {
	if err := c.AgeBrackets.Validate(); err != nil {
		return fmt.Errorf("invalid age brackets: %w", err)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.DuplicateNameThreshold < 0 || c.DuplicateNameThreshold > 100 {
		return fmt.Errorf("DUPLICATE_NAME_THRESHOLD must be between 0 and 100, got %d", c.DuplicateNameThreshold)
	}
	if c.MinBodyTemperature >= c.MaxBodyTemperature {
		return fmt.Errorf("MIN_BODY_TEMPERATURE (%.1f) must be below MAX_BODY_TEMPERATURE (%.1f)",
			c.MinBodyTemperature, c.MaxBodyTemperature)
	}
	switch strings.ToLower(c.DatabaseType) {
	case "postgres", "postgresql", "mysql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for DB_TYPE=%s", c.DatabaseType)
		}
	}
	return nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// randomSecret is used when no secret is configured; tokens then only survive until restart
func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "kinship-insecure-fallback-secret"
	}
	return hex.EncodeToString(b)
}
