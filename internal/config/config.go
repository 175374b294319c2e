// Package config provides configuration loading and management for the sync engine.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/NovaUNL/Supernova-sub000/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the engine
const EnvPrefix = "SUPERNOVA"

const (
	// StorageTypePostgres stores synchronized data in PostgreSQL
	StorageTypePostgres = "postgres"

	// StorageTypeMemory keeps synchronized data in memory for the life of the process
	StorageTypeMemory = "memory"
)

const (
	// StatusTypeFile persists run status as YAML files
	StatusTypeFile = "file"

	// StatusTypeDatabase persists run status in the sync_run table
	StatusTypeDatabase = "database"
)

const (
	// DefaultUpstreamTimeout bounds every upstream request
	DefaultUpstreamTimeout = 30 * time.Second

	// DefaultListenAddress is where the schedule daemon serves its API
	DefaultListenAddress = ":8080"

	// DefaultStatusPath is where the file status backend writes
	DefaultStatusPath = "./data/status"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path  string
	viper *viper.Viper
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithViper overlays values from v, typically bound to command line flags, on top of
// the file. Without it, only the environment is overlaid.
func WithViper(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		if v == nil {
			return fmt.Errorf("viper instance is required")
		}
		cfg.viper = v
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`

	// Storage selects the store: postgres (default) or memory
	Storage string `yaml:"storage,omitempty"`

	Database  *DatabaseConfig   `yaml:"database,omitempty"`
	Sync      SyncConfig        `yaml:"sync,omitempty"`
	Status    StatusConfig      `yaml:"status,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	// Listen is the address of the schedule daemon API
	Listen string `yaml:"listen,omitempty"`
}

// UpstreamConfig locates the crawler service
type UpstreamConfig struct {
	// URL is the base URL, e.g. "http://crawler:893"
	URL string `yaml:"url"`

	// Timeout bounds a single request (e.g., "30s")
	Timeout string `yaml:"timeout,omitempty"`
}

// SyncConfig tunes the synchronization runs. Zero values fall back to the engine defaults.
type SyncConfig struct {
	// Year and Period pin the academic calendar. When unset they follow the clock.
	Year   int `yaml:"year,omitempty"`
	Period int `yaml:"period,omitempty"`

	// RecentYearMargin is how many years back slow and full runs recurse fully
	RecentYearMargin int `yaml:"recentYearMargin,omitempty"`

	// Concurrency is the number of top-level workers
	Concurrency int `yaml:"concurrency,omitempty"`

	FastStaleness string `yaml:"fastStaleness,omitempty"`
	SlowStaleness string `yaml:"slowStaleness,omitempty"`
	RetryCooldown string `yaml:"retryCooldown,omitempty"`

	Schedule ScheduleConfig `yaml:"schedule,omitempty"`
}

// ScheduleConfig holds the interval of each mode for the schedule daemon.
// "0" disables a mode.
type ScheduleConfig struct {
	Fast           string `yaml:"fast,omitempty"`
	Slow           string `yaml:"slow,omitempty"`
	Full           string `yaml:"full,omitempty"`
	FailureBackoff string `yaml:"failureBackoff,omitempty"`
}

// StatusConfig selects where run status is persisted
type StatusConfig struct {
	// Type is file or database. Defaults to database with postgres storage, file otherwise
	Type string `yaml:"type,omitempty"`

	// Path is the base directory of the file backend
	Path string `yaml:"path,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// MigrationUser runs schema migrations when set; it usually owns the schema
	MigrationUser string `yaml:"migrationUser,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// password holds a value overlaid from the environment or flags
	password string
}

// GetPassword returns the database password using the following priority:
// 1. A password overlaid from SUPERNOVA_DATABASE_PASSWORD or a flag
// 2. Read from PasswordFile if specified
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.password != "" {
		return d.password, nil
	}

	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable",
		EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	return d.connectionString(d.User)
}

// GetMigrationUser returns the user that runs migrations
func (d *DatabaseConfig) GetMigrationUser() string {
	if d.MigrationUser != "" {
		return d.MigrationUser
	}
	return d.User
}

// GetMigrationConnectionString is GetConnectionString for the migration user
func (d *DatabaseConfig) GetMigrationConnectionString() (string, error) {
	return d.connectionString(d.GetMigrationUser())
}

func (d *DatabaseConfig) connectionString(user string) (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(user),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file, then overlays the
// environment and any bound flags
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	v := loaderCfg.viper
	if v == nil {
		v = viper.New()
	}
	if err := overlay(&config, v); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// overlay applies the keys set in v or in the SUPERNOVA_ environment on top of config
func overlay(config *Config, v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{"upstream.url", "database.host", "database.password", "sync.concurrency", "storage"} {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if s := v.GetString("upstream.url"); s != "" {
		config.Upstream.URL = s
	}
	if s := v.GetString("storage"); s != "" {
		config.Storage = s
	}
	if n := v.GetInt("sync.concurrency"); n != 0 {
		config.Sync.Concurrency = n
	}
	host, password := v.GetString("database.host"), v.GetString("database.password")
	if host != "" || password != "" {
		if config.Database == nil {
			config.Database = &DatabaseConfig{}
		}
		if host != "" {
			config.Database.Host = host
		}
		config.Database.password = password
	}
	return nil
}

// GetStorage returns the storage type, using postgres if not specified
func (c *Config) GetStorage() string {
	if c.Storage == "" {
		return StorageTypePostgres
	}
	return c.Storage
}

// GetStatusType returns where run status is persisted
func (c *Config) GetStatusType() string {
	if c.Status.Type != "" {
		return c.Status.Type
	}
	if c.GetStorage() == StorageTypePostgres {
		return StatusTypeDatabase
	}
	return StatusTypeFile
}

// GetStatusPath returns the base directory of the file status backend
func (c *Config) GetStatusPath() string {
	if c.Status.Path == "" {
		return DefaultStatusPath
	}
	return c.Status.Path
}

// GetListen returns the daemon listen address
func (c *Config) GetListen() string {
	if c.Listen == "" {
		return DefaultListenAddress
	}
	return c.Listen
}

// GetTimeout returns the upstream request timeout
func (u *UpstreamConfig) GetTimeout() time.Duration {
	d, _ := parseDuration(u.Timeout)
	if d <= 0 {
		return DefaultUpstreamTimeout
	}
	return d
}

// Durations returns the parsed staleness and cooldown settings. Unset values are zero.
func (s *SyncConfig) Durations() (fastStaleness, slowStaleness, retryCooldown time.Duration) {
	fastStaleness, _ = parseDuration(s.FastStaleness)
	slowStaleness, _ = parseDuration(s.SlowStaleness)
	retryCooldown, _ = parseDuration(s.RetryCooldown)
	return fastStaleness, slowStaleness, retryCooldown
}

// Intervals returns the parsed schedule. ok is false for modes left unset, so the
// caller can keep its default.
func (s ScheduleConfig) Intervals() map[string]Interval {
	out := make(map[string]Interval, 4)
	for name, raw := range map[string]string{
		"fast":           s.Fast,
		"slow":           s.Slow,
		"full":           s.Full,
		"failureBackoff": s.FailureBackoff,
	} {
		d, ok := parseDuration(raw)
		out[name] = Interval{Duration: d, Set: ok}
	}
	return out
}

// Interval is one parsed schedule entry
type Interval struct {
	Duration time.Duration
	Set      bool
}

// parseDuration parses a configured duration. An empty string is unset.
func parseDuration(raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.validateUpstream(); err != nil {
		return err
	}

	switch c.GetStorage() {
	case StorageTypePostgres:
		if c.Database == nil {
			return fmt.Errorf("database configuration is required with %s storage", StorageTypePostgres)
		}
		if err := c.Database.validate(); err != nil {
			return err
		}
	case StorageTypeMemory:
	default:
		return fmt.Errorf("storage must be %s or %s, got %s", StorageTypePostgres, StorageTypeMemory, c.Storage)
	}

	if err := c.Sync.validate(); err != nil {
		return err
	}

	switch c.GetStatusType() {
	case StatusTypeFile:
	case StatusTypeDatabase:
		if c.GetStorage() != StorageTypePostgres {
			return fmt.Errorf("status type %s requires %s storage", StatusTypeDatabase, StorageTypePostgres)
		}
	default:
		return fmt.Errorf("status.type must be %s or %s, got %s", StatusTypeFile, StatusTypeDatabase, c.Status.Type)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func (c *Config) validateUpstream() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	u, err := url.Parse(c.Upstream.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.url must be an absolute http(s) URL, got %q", c.Upstream.URL)
	}
	if err := validateDuration("upstream.timeout", c.Upstream.Timeout); err != nil {
		return err
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("database.connMaxLifetime must be a valid duration: %w", err)
		}
	}
	return nil
}

func (s *SyncConfig) validate() error {
	if s.Period < 0 || s.Period > 2 {
		return fmt.Errorf("sync.period must be 1 or 2, got %d", s.Period)
	}
	if (s.Year == 0) != (s.Period == 0) {
		return fmt.Errorf("sync.year and sync.period must be set together")
	}
	if s.Concurrency < 0 || s.RecentYearMargin < 0 {
		return fmt.Errorf("sync.concurrency and sync.recentYearMargin must not be negative")
	}
	for name, raw := range map[string]string{
		"sync.fastStaleness":           s.FastStaleness,
		"sync.slowStaleness":           s.SlowStaleness,
		"sync.retryCooldown":           s.RetryCooldown,
		"sync.schedule.fast":           s.Schedule.Fast,
		"sync.schedule.slow":           s.Schedule.Slow,
		"sync.schedule.full":           s.Schedule.Full,
		"sync.schedule.failureBackoff": s.Schedule.FailureBackoff,
	} {
		if err := validateDuration(name, raw); err != nil {
			return err
		}
	}
	return nil
}

func validateDuration(name, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	return nil
}
