package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	MinJWTSecretLength = 16
)

type Config struct {
	// HTTP Server
	Port               string
	CORSAllowedOrigins []string
	LoginRateLimit     int
	RequestTimeout     time.Duration

	// Backend selection
	DataBackend  string
	SQLiteDBPath string
	PostgresDSN  string

	// Auth
	JWTSecret  string
	JWTIssuer  string
	TokenTTL   time.Duration
	BcryptCost int

	// Ledger
	SeedOnStartup bool
	Location      string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	LogLevel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8000")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LOGIN_RATE_LIMIT", 20)
	v.SetDefault("REQUEST_TIMEOUT", "15s")

	v.SetDefault("DATA_BACKEND", BackendSQLite)
	v.SetDefault("SQLITE_DB_PATH", "./data/fintraka.db")
	v.SetDefault("POSTGRES_DSN", "")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "fintraka")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 10)

	v.SetDefault("SEED_ON_STARTUP", true)
	v.SetDefault("LOCATION", "Local")

	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "fintraka")
	v.SetDefault("AMQP_QUEUE", "ledger_events")

	v.SetDefault("GOOGLE_SPREADSHEET_ID", "")
	v.SetDefault("GOOGLE_SHEET_NAME", "Transactions")
	v.SetDefault("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	v.SetDefault("GOOGLE_SERVICE_ACCOUNT_JSON", "")

	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads defaults, then the optional YAML file at path (or ./config.yaml
// when path is empty), then the environment. Environment variables win.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// keys are upper-case env names; YAML files use the same keys
	v.AutomaticEnv()

	cfg := &Config{
		Port:               v.GetString("PORT"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		LoginRateLimit:     v.GetInt("LOGIN_RATE_LIMIT"),
		RequestTimeout:     v.GetDuration("REQUEST_TIMEOUT"),

		DataBackend:  strings.ToLower(strings.TrimSpace(v.GetString("DATA_BACKEND"))),
		SQLiteDBPath: v.GetString("SQLITE_DB_PATH"),
		PostgresDSN:  v.GetString("POSTGRES_DSN"),

		JWTSecret:  v.GetString("JWT_SECRET"),
		JWTIssuer:  v.GetString("JWT_ISSUER"),
		TokenTTL:   v.GetDuration("TOKEN_TTL"),
		BcryptCost: v.GetInt("BCRYPT_COST"),

		SeedOnStartup: v.GetBool("SEED_ON_STARTUP"),
		Location:      v.GetString("LOCATION"),

		AMQPURL:      v.GetString("AMQP_URL"),
		AMQPExchange: v.GetString("AMQP_EXCHANGE"),
		AMQPQueue:    v.GetString("AMQP_QUEUE"),

		GoogleSpreadsheetID:      v.GetString("GOOGLE_SPREADSHEET_ID"),
		GoogleSheetName:          v.GetString("GOOGLE_SHEET_NAME"),
		GoogleServiceAccountFile: v.GetString("GOOGLE_SERVICE_ACCOUNT_FILE"),
		GoogleServiceAccountJSON: v.GetString("GOOGLE_SERVICE_ACCOUNT_JSON"),

		LogLevel: v.GetString("LOG_LEVEL"),
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TimeLocation resolves Location; "Local" and "" mean the process zone.
func (c *Config) TimeLocation() (*time.Location, error) {
	if c.Location == "" || c.Location == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Location)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendPostgres}
	switch c.DataBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN is required when using postgres backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend != BackendMemory && len(c.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least %d characters", MinJWTSecretLength))
	}
	if c.JWTIssuer == "" {
		errs = append(errs, "JWT_ISSUER cannot be empty")
	}
	if c.TokenTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid token ttl %v: must be at least 1 minute", c.TokenTTL))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Sprintf("invalid bcrypt cost %d: must be between 4 and 31", c.BcryptCost))
	}
	if c.LoginRateLimit < 1 {
		errs = append(errs, fmt.Sprintf("invalid login rate limit %d: must be at least 1", c.LoginRateLimit))
	}
	if c.RequestTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}
	if _, err := c.TimeLocation(); err != nil {
		errs = append(errs, fmt.Sprintf("invalid location '%s': %v", c.Location, err))
	}

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

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings the mirror worker needs on top of Validate.
func (c *Config) ValidateWorker() error {
	var errs []string
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required for the worker")
	}
	if c.GoogleSpreadsheetID != "" && c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" &&
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided with GOOGLE_SPREADSHEET_ID")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
