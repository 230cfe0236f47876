package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the incident report service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port           string
	AllowedOrigins string

	// LLM provider selection ("watson" or "stub")
	LLMProvider string

	// Watson chat backend configuration
	WatsonAPIKey     string
	WatsonTokenURL   string
	WatsonScoringURL string
	WatsonModelID    string
	WatsonMaxRetries int

	// Report generation backend
	GenerationURL     string
	GenerationProject string

	// Transcription backend
	TranscribeURL string

	// Auth
	JWTSecret string

	// Rate limiting
	RateLimitPerMinute int

	// Chat session lifetime
	SessionTTL time.Duration

	// RabbitMQ (optional best-effort event publishing)
	AMQPURL               string
	AMQPExchange          string
	AMQPReportsRoutingKey string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "incident_reports"),

		// Server defaults
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),

		LLMProvider: getEnv("LLM_PROVIDER", "watson"),

		// Watson defaults
		WatsonAPIKey:     getEnv("WATSON_API_KEY", ""),
		WatsonTokenURL:   getEnv("WATSON_TOKEN_URL", "https://iam.cloud.ibm.com/identity/token"),
		WatsonScoringURL: getEnv("WATSON_SCORING_URL", ""),
		WatsonModelID:    getEnv("WATSON_MODEL_ID", "ibm/granite-13b-chat-v2"),
		WatsonMaxRetries: getIntEnv("WATSON_MAX_RETRIES", 3),

		// Generation backend
		GenerationURL:     getEnv("GENERATION_URL", ""),
		GenerationProject: getEnv("GENERATION_PROJECT", "incident-reports"),

		// Transcription backend
		TranscribeURL: getEnv("TRANSCRIBE_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 60),

		SessionTTL: getDurationEnv("SESSION_TTL", 30*time.Minute),

		AMQPURL:               getEnv("AMQP_URL", ""),
		AMQPExchange:          getEnv("AMQP_EXCHANGE", "incident-reports"),
		AMQPReportsRoutingKey: getEnv("AMQP_REPORTS_ROUTING_KEY", "report.saved"),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable with a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable with a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
