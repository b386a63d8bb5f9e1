package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LLM backends.
const (
	LLMBackendNone   = "none"
	LLMBackendGemini = "gemini"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	MaxSnapshotBytes   int64

	// Audit log storage; empty disables persistence in the API process
	SQLiteDBPath string

	// AMQP; empty URL disables audit event publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Composer
	LLMBackend   string
	GeminiAPIKey string
	GeminiModel  string
	LLMTimeout   time.Duration

	// Answer cache
	AnswerCacheSize int
	AnswerCacheTTL  time.Duration

	// Facts and audit
	OperationLimit int
	AuditTolerance float64

	// Worker
	AuditReportInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		MaxSnapshotBytes:   int64(getEnvInt("MAX_SNAPSHOT_BYTES", 4<<20)),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ledgerqa.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledgerqa"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "audit_events"),

		LLMBackend:   strings.ToLower(getEnv("LLM_BACKEND", LLMBackendNone)),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMTimeout:   getEnvDuration("LLM_TIMEOUT", 30*time.Second),

		AnswerCacheSize: getEnvInt("ANSWER_CACHE_SIZE", 256),
		AnswerCacheTTL:  getEnvDuration("ANSWER_CACHE_TTL", 10*time.Minute),

		OperationLimit: getEnvInt("OPERATION_LIMIT", 50),
		AuditTolerance: getEnvFloat("AUDIT_TOLERANCE", 1),

		AuditReportInterval: getEnvDuration("AUDIT_REPORT_INTERVAL", time.Minute),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.MaxSnapshotBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid max snapshot size %d: must be at least 1024 bytes", c.MaxSnapshotBytes))
	}

	// Make sure the SQLite directory exists or can be created
	if c.SQLiteDBPath != "" {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate composer backend
	switch c.LLMBackend {
	case LLMBackendNone:
	case LLMBackendGemini:
		if c.GeminiAPIKey == "" {
			errors = append(errors, "GEMINI_API_KEY is required when using gemini backend")
		}
		if c.GeminiModel == "" {
			errors = append(errors, "GEMINI_MODEL cannot be empty when using gemini backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid LLM backend '%s': must be one of [%s %s]", c.LLMBackend, LLMBackendNone, LLMBackendGemini))
	}
	if c.LLMTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be at least 1 second", c.LLMTimeout))
	}

	if c.AnswerCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid answer cache size %d: must not be negative", c.AnswerCacheSize))
	}
	if c.AnswerCacheSize > 0 && c.AnswerCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid answer cache TTL %v: must be positive", c.AnswerCacheTTL))
	}

	if c.OperationLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid operation limit %d: must be at least 1", c.OperationLimit))
	} else if c.OperationLimit > 1000 {
		errors = append(errors, fmt.Sprintf("invalid operation limit %d: must be at most 1000", c.OperationLimit))
	}
	if c.AuditTolerance <= 0 {
		errors = append(errors, fmt.Sprintf("invalid audit tolerance %v: must be positive", c.AuditTolerance))
	}

	if c.AuditReportInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid audit report interval %v: must be at least 1 second", c.AuditReportInterval))
	} else if c.AuditReportInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid audit report interval %v: must be at most 24 hours", c.AuditReportInterval))
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks the settings the audit worker cannot run without.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the audit worker")
	}
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLITE_DB_PATH is required for the audit worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return c.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
