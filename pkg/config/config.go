package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mcclellann/saccoLoan/pkg/amortization"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Loan      LoanConfig      `yaml:"loan"`
	Auth      AuthConfig      `yaml:"auth"`
	Receipt   ReceiptConfig   `yaml:"receipt"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig points at the SQLite file
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoanConfig supplies schedule generation settings
type LoanConfig struct {
	InterestRatePercent decimal.Decimal `yaml:"interest_rate_percent"`
	TermMonths          int             `yaml:"term_months"`
}

// AuthConfig holds the single administrator credential and session signing settings
type AuthConfig struct {
	AdminUser            string `yaml:"admin_user"`
	AdminPasswordHash    string `yaml:"admin_password_hash"` // bcrypt
	SessionSecret        string `yaml:"session_secret"`
	SessionExpiryMinutes int    `yaml:"session_expiry_minutes"`
}

// ReceiptConfig controls where emitted receipts are written
type ReceiptConfig struct {
	OutputPath string `yaml:"output_path"` // empty means stdout
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	RecomputeBonuses string `yaml:"recompute_bonuses"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies environment overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	if val := os.Getenv("SACCO_SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SACCO_SERVER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Server.Port = port
		}
	}
	if val := os.Getenv("SACCO_DB_PATH"); val != "" {
		c.Database.Path = val
	}
	if val := os.Getenv("SACCO_INTEREST_RATE"); val != "" {
		if rate, err := decimal.NewFromString(val); err == nil {
			c.Loan.InterestRatePercent = rate
		}
	}
	if val := os.Getenv("SACCO_LOAN_TERM"); val != "" {
		if term, err := strconv.Atoi(val); err == nil {
			c.Loan.TermMonths = term
		}
	}
	if val := os.Getenv("SACCO_SESSION_SECRET"); val != "" {
		c.Auth.SessionSecret = val
	}
	if val := os.Getenv("SACCO_ADMIN_PASSWORD_HASH"); val != "" {
		c.Auth.AdminPasswordHash = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		c.Database.Path = "sacco.db"
	}

	// Defaults match the stock association settings: 10% over 12 months
	if c.Loan.TermMonths == 0 {
		c.Loan.TermMonths = 12
	}
	if c.Loan.TermMonths < 0 || c.Loan.TermMonths > amortization.MaxTermMonths {
		return fmt.Errorf("invalid loan term: %d", c.Loan.TermMonths)
	}
	if c.Loan.InterestRatePercent.IsNegative() {
		return fmt.Errorf("interest rate must not be negative: %s", c.Loan.InterestRatePercent)
	}

	if c.Auth.AdminUser == "" {
		c.Auth.AdminUser = "admin"
	}
	if c.Auth.AdminPasswordHash == "" {
		return fmt.Errorf("admin password hash is required")
	}
	if len(c.Auth.SessionSecret) < 32 {
		return fmt.Errorf("session secret must be at least 32 characters")
	}
	if c.Auth.SessionExpiryMinutes == 0 {
		c.Auth.SessionExpiryMinutes = 60
	}

	if c.Scheduler.RecomputeBonuses == "" {
		c.Scheduler.RecomputeBonuses = "0 0 1 1 * *" // 1st of month at 1 AM UTC
	}

	return nil
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
