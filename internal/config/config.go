package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// AdminConfig holds configuration for the admin API.
type AdminConfig struct {
	Password string `yaml:"password"`
}

// SessionConfig holds configuration for the JWT session cookie.
type SessionConfig struct {
	Secret     string `yaml:"secret"`
	CookieName string `yaml:"cookie_name"`
	TTLHours   int    `yaml:"ttl_hours"`
	Secure     bool   `yaml:"secure"`
}

// RateLimitConfig holds the abuse-control thresholds.
type RateLimitConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`
	WindowMinutes int `yaml:"window_minutes"`
	BlockMinutes  int `yaml:"block_minutes"`
}

// LoggingConfig controls the access audit log. Enabled is a pointer so
// an absent key defaults to true rather than false.
type LoggingConfig struct {
	Enabled       *bool `yaml:"enabled"`
	RetentionDays int   `yaml:"retention_days"`
}

// LinksConfig holds link namespace and redirect settings.
type LinksConfig struct {
	DefaultRedirect     string   `yaml:"default_redirect"`
	SlugLength          int      `yaml:"slug_length"`
	ReservedPaths       []string `yaml:"reserved_paths"`
	TrustedProxyHeaders []string `yaml:"trusted_proxy_headers"`
	ExposeReasons       bool     `yaml:"expose_reasons"`
}

// SchedulerConfig holds configuration for periodic maintenance.
type SchedulerConfig struct {
	MaintenanceInterval string `yaml:"maintenance_interval"`
}

// Config holds the configuration for the access-link service.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Admin     AdminConfig     `yaml:"admin"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Links     LinksConfig     `yaml:"links"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Port      int             `yaml:"port"`
	Debug     bool            `yaml:"debug"`
}

// LoggingEnabled reports whether audit logging is on (default true).
func (c *Config) LoggingEnabled() bool {
	return c.Logging.Enabled == nil || *c.Logging.Enabled
}

// defaultReservedPaths are path segments the dispatcher must never
// treat as slug candidates, so links cannot shadow application routes.
var defaultReservedPaths = []string{
	"admin", "api", "login", "logout", "healthz", "static", "assets",
	"favicon.ico", "robots.txt", "sitemap.xml",
}

// defaultTrustedProxyHeaders is the preference order for extracting the
// client address when the service sits behind a proxy.
var defaultTrustedProxyHeaders = []string{
	"CF-Connecting-IP", "X-Forwarded-For", "X-Forwarded",
}

// LoadConfig reads and parses the configuration file. It returns the
// config and a potential warning message.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config
	var warning string

	data, err := os.ReadFile(path)
	if err == nil {
		if err = yaml.Unmarshal(data, &config); err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}
	// If the file does not exist we continue with an empty config and
	// rely on environment variables.

	// Set default values
	if config.RateLimit.MaxAttempts == 0 {
		config.RateLimit.MaxAttempts = 5
		warning = "rate_limit.max_attempts not set, using default value of 5"
	}
	if config.RateLimit.WindowMinutes == 0 {
		config.RateLimit.WindowMinutes = 15
	}
	if config.RateLimit.BlockMinutes == 0 {
		config.RateLimit.BlockMinutes = 60
	}
	if config.Logging.RetentionDays == 0 {
		config.Logging.RetentionDays = 30
	}
	if config.Links.SlugLength == 0 {
		config.Links.SlugLength = 12
	}
	if config.Links.DefaultRedirect == "" {
		config.Links.DefaultRedirect = "/"
	}
	if len(config.Links.ReservedPaths) == 0 {
		config.Links.ReservedPaths = defaultReservedPaths
	}
	if len(config.Links.TrustedProxyHeaders) == 0 {
		config.Links.TrustedProxyHeaders = defaultTrustedProxyHeaders
	}
	if config.Session.CookieName == "" {
		config.Session.CookieName = "qa_session"
	}
	if config.Session.TTLHours == 0 {
		config.Session.TTLHours = 24
	}
	if config.Scheduler.MaintenanceInterval == "" {
		config.Scheduler.MaintenanceInterval = "@hourly"
	}
	if config.Port == 0 {
		config.Port = 8080
	}

	// Override with environment variables if they exist
	if dsn := os.Getenv("QUICKACCESS_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("QUICKACCESS_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if port := os.Getenv("QUICKACCESS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if password := os.Getenv("QUICKACCESS_ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}
	if secret := os.Getenv("QUICKACCESS_SESSION_SECRET"); secret != "" {
		config.Session.Secret = secret
	}
	if debug := os.Getenv("QUICKACCESS_DEBUG"); debug != "" {
		config.Debug = (debug == "true")
	}

	// Final validation after overrides
	if config.Database.Type == "" || config.Database.DSN == "" {
		return nil, "", fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	if config.Session.Secret == "" {
		return nil, "", fmt.Errorf("session secret must be configured in config.yaml or via QUICKACCESS_SESSION_SECRET")
	}
	if config.Admin.Password == "" {
		return nil, "", fmt.Errorf("admin password must be configured in config.yaml or via QUICKACCESS_ADMIN_PASSWORD")
	}

	return &config, warning, nil
}
