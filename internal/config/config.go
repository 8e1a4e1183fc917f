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

// Data backends accepted by DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// MinSessionKeyLength mirrors the cookie sealer's key requirement.
const MinSessionKeyLength = 32

type Config struct {
	// HTTP Server
	Port           string
	MaxUploadBytes int64

	// Storage
	DataBackend  string
	SQLiteDBPath string
	DatabaseURL  string
	SeedDir      string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Sessions
	SessionKey        string
	SessionSigningKey string
	SessionTTL        time.Duration

	// HouseholdUsers are the ids offered in user selectors and checked by
	// settlement. Empty means "whoever has an account".
	HouseholdUsers []string

	// Optional sinks
	ImportArchiveBucket string
	ElasticsearchURLs   []string
	ElasticsearchIndex  string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Worker
	WorkerPrefetch int

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 5<<20)),

		DataBackend:  getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/gastos.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SeedDir:      getEnv("SEED_DIR", "./data"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gastos"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_events"),

		SessionKey:        getEnv("SESSION_KEY", ""),
		SessionSigningKey: getEnv("SESSION_SIGNING_KEY", ""),
		SessionTTL:        getEnvDuration("SESSION_TTL", 7*24*time.Hour),

		HouseholdUsers: getEnvList("HOUSEHOLD_USERS", true),

		ImportArchiveBucket: getEnv("IMPORT_ARCHIVE_BUCKET", ""),
		ElasticsearchURLs:   getEnvList("ELASTICSEARCH_URLS", false),
		ElasticsearchIndex:  getEnv("ELASTICSEARCH_INDEX", "gastos-transactions"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transacciones"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		WorkerPrefetch: getEnvInt("WORKER_PREFETCH", 10),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks the settings the HTTP server needs. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	errs := c.validateCommon()

	if len(c.SessionKey) < MinSessionKeyLength {
		errs = append(errs, fmt.Sprintf("SESSION_KEY must be at least %d characters", MinSessionKeyLength))
	}
	if len(c.SessionSigningKey) < MinSessionKeyLength {
		errs = append(errs, fmt.Sprintf("SESSION_SIGNING_KEY must be at least %d characters", MinSessionKeyLength))
	}
	if c.SessionKey != "" && c.SessionKey == c.SessionSigningKey {
		errs = append(errs, "SESSION_KEY and SESSION_SIGNING_KEY must differ")
	}
	if c.SessionTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Sprintf("invalid max upload size %d", c.MaxUploadBytes))
	}

	return joinErrors(errs)
}

// ValidateWorker checks the settings the event consumer needs.
func (c *Config) ValidateWorker() error {
	errs := c.validateCommon()
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required for the worker")
	}
	if c.GoogleSpreadsheetID == "" && len(c.ElasticsearchURLs) == 0 {
		errs = append(errs, "the worker needs GOOGLE_SPREADSHEET_ID or ELASTICSEARCH_URLS")
	}
	if c.GoogleSpreadsheetID != "" && c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
		errs = append(errs, "GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON is required with GOOGLE_SPREADSHEET_ID")
	}
	if c.WorkerPrefetch < 1 || c.WorkerPrefetch > 1000 {
		errs = append(errs, fmt.Sprintf("invalid worker prefetch %d: must be between 1 and 1000", c.WorkerPrefetch))
	}
	return joinErrors(errs)
}

// ValidateStorage checks only the data backend settings, for CLI commands.
func (c *Config) ValidateStorage() error {
	return joinErrors(c.validateBackend())
}

func (c *Config) validateCommon() []string {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	errs = append(errs, c.validateBackend()...)

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	for _, raw := range c.ElasticsearchURLs {
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("invalid Elasticsearch URL '%s': must be http or https", raw))
		}
	}
	if len(c.ElasticsearchURLs) > 0 && c.ElasticsearchIndex == "" {
		errs = append(errs, "ELASTICSEARCH_INDEX cannot be empty when ELASTICSEARCH_URLS is set")
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	return errs
}

func (c *Config) validateBackend() []string {
	var errs []string
	switch c.DataBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errs = append(errs, "invalid DATABASE_URL: must be a postgres:// URL")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s %s]",
			c.DataBackend, BackendMemory, BackendSQLite, BackendPostgres))
	}
	return errs
}

// IsHouseholdUser reports whether id is configured, or true when no list is set.
func (c *Config) IsHouseholdUser(id string) bool {
	if len(c.HouseholdUsers) == 0 {
		return true
	}
	for _, u := range c.HouseholdUsers {
		if u == id {
			return true
		}
	}
	return false
}

func joinErrors(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, lower bool) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if lower {
			part = strings.ToLower(part)
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
