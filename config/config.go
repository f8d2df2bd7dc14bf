package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Labs       LabsConfig       `yaml:"labs"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Lock       LockConfig       `yaml:"lock"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Auditor    AuditorConfig    `yaml:"auditor"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateBurst       int     `yaml:"rate_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	PublicBaseURL   string  `yaml:"public_base_url"`
}

// CacheTTL is the lifetime of cached history responses.
func (s ServerConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// LabsConfig describes the fixed set of laboratories.
type LabsConfig struct {
	Count    int    `yaml:"count"`
	Timezone string `yaml:"timezone"`
}

// Location resolves the configured timezone, falling back to time.Local.
func (l LabsConfig) Location() *time.Location {
	if l.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AttendanceConfig selects where raw check-in/check-out records live.
type AttendanceConfig struct {
	Backend string       `yaml:"backend"`
	Sheets  SheetsConfig `yaml:"sheets"`
}

// SheetsConfig points at the Google spreadsheet mirroring attendance.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
	CredentialsFile string `yaml:"credentials_file"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// LockConfig selects the per-instructor lock implementation.
type LockConfig struct {
	Backend    string `yaml:"backend"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL is the lease duration of a per-instructor lock.
func (l LockConfig) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds the token signing settings for admin routes.
type AuthConfig struct {
	SigningKey string `yaml:"signing_key"`
	Issuer     string `yaml:"issuer"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// TokenTTL is the lifetime of issued tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TTLMinutes) * time.Minute
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// AuditorConfig controls the double-occupancy audit loop.
type AuditorConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

const (
	AttendanceSheets   = "sheets"
	AttendanceDatabase = "database"

	LockMemory = "memory"
	LockRedis  = "redis"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads the configuration from the given path. A .env file next to the
// process, when present, is loaded first and ${VAR} placeholders in the YAML
// are expanded from the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 5
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 30
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Labs.Count <= 0 {
		c.Labs.Count = 10
	}
	if c.Attendance.Backend == "" {
		c.Attendance.Backend = AttendanceDatabase
	}
	if c.Attendance.Sheets.SheetName == "" {
		c.Attendance.Sheets.SheetName = "Sheet1"
	}
	if c.Attendance.Sheets.TimeoutSeconds <= 0 {
		c.Attendance.Sheets.TimeoutSeconds = 15
	}
	if c.Lock.Backend == "" {
		c.Lock.Backend = LockMemory
	}
	if c.Lock.TTLSeconds <= 0 {
		c.Lock.TTLSeconds = 10
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "comlab-status"
	}
	if c.Auth.TTLMinutes <= 0 {
		c.Auth.TTLMinutes = 12 * 60
	}
	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}
	if c.WorkerPool.Size <= 0 {
		c.WorkerPool.Size = 1
	}
	if c.Auditor.IntervalSeconds <= 0 {
		c.Auditor.IntervalSeconds = 60
	}
	c.Auditor.Interval = time.Duration(c.Auditor.IntervalSeconds) * time.Second
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects unknown enum values and missing required settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	switch c.Attendance.Backend {
	case AttendanceDatabase:
	case AttendanceSheets:
		if c.Attendance.Sheets.SpreadsheetID == "" {
			errs = append(errs, errors.New("attendance.sheets.spreadsheet_id is required for the sheets backend"))
		}
		if c.Attendance.Sheets.CredentialsFile == "" {
			errs = append(errs, errors.New("attendance.sheets.credentials_file is required for the sheets backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("attendance.backend: unknown backend %q", c.Attendance.Backend))
	}
	switch c.Lock.Backend {
	case LockMemory:
	case LockRedis:
		if c.Redis.Address == "" {
			errs = append(errs, errors.New("redis.address is required for the redis lock backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.backend: unknown backend %q", c.Lock.Backend))
	}
	if c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("auth.signing_key is required"))
	}
	return errors.Join(errs...)
}
