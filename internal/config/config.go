package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendGorm   = "gorm"
)

var validBackends = []string{BackendSQLite, BackendMemory, BackendGorm}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config is read from an optional TOML file and then from the environment.
// Environment variables win over file values.
type Config struct {
	// HTTP Server
	Port string `toml:"port"`

	// Storage
	DataBackend  string `toml:"data_backend"`
	SQLiteDBPath string `toml:"sqlite_db_path"`

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string `toml:"amqp_url"`
	AMQPExchange string `toml:"amqp_exchange"`
	AMQPQueue    string `toml:"amqp_queue"`

	// Google Sheets export, disabled when GoogleSpreadsheetID is empty
	GoogleSpreadsheetID      string `toml:"google_spreadsheet_id"`
	GoogleSheetName          string `toml:"google_sheet_name"`
	GoogleServiceAccountJSON string `toml:"google_service_account_json"`
	GoogleServiceAccountFile string `toml:"google_service_account_file"`

	// Dashboard cache
	OverviewCacheTTL  time.Duration `toml:"overview_cache_ttl"`
	OverviewCacheSize int           `toml:"overview_cache_size"`

	LogLevel string `toml:"log_level"`
}

func Default() *Config {
	return &Config{
		Port:              "8081",
		DataBackend:       BackendSQLite,
		SQLiteDBPath:      "./data/budgets.db",
		AMQPExchange:      "budgets",
		AMQPQueue:         "budget_events",
		GoogleSheetName:   "Transactions",
		OverviewCacheTTL:  30 * time.Second,
		OverviewCacheSize: 100,
		LogLevel:          "info",
	}
}

// Load builds the configuration from defaults, the TOML file named by
// BUDGETS_CONFIG_FILE (if set) and the environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("BUDGETS_CONFIG_FILE")); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DataBackend = getEnv("DATA_BACKEND", cfg.DataBackend)
	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)

	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", cfg.GoogleSheetName)
	cfg.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", cfg.GoogleServiceAccountJSON)
	cfg.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", cfg.GoogleServiceAccountFile)

	cfg.OverviewCacheTTL = getEnvDuration("OVERVIEW_CACHE_TTL", cfg.OverviewCacheTTL)
	cfg.OverviewCacheSize = getEnvInt("OVERVIEW_CACHE_SIZE", cfg.OverviewCacheSize)

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))

	return cfg, nil
}

// EventsEnabled reports whether an AMQP broker is configured.
func (c *Config) EventsEnabled() bool { return c.AMQPURL != "" }

// ExportEnabled reports whether the Google Sheets ledger is configured.
func (c *Config) ExportEnabled() bool { return c.GoogleSpreadsheetID != "" }

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if (c.DataBackend == BackendSQLite || c.DataBackend == BackendGorm) && strings.TrimSpace(c.SQLiteDBPath) == "" {
		problems = append(problems, fmt.Sprintf("SQLite database path cannot be empty when using %s backend", c.DataBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			problems = append(problems, "Google sheet name is required when a spreadsheet ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			problems = append(problems, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); errors.Is(err, os.ErrNotExist) {
				problems = append(problems, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.OverviewCacheTTL <= 0 {
		problems = append(problems, fmt.Sprintf("invalid overview cache TTL %v: must be positive", c.OverviewCacheTTL))
	}
	if c.OverviewCacheSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid overview cache size %d: must be at least 1", c.OverviewCacheSize))
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		problems = append(problems, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
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
