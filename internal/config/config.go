package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverValkey     = "valkey"
	DriverRedis      = "redis"
	DriverPostgres   = "postgres"
	DriverClickHouse = "clickhouse"
	DriverSQLite     = "sqlite"
	DriverMemory     = "memory"
)

var drivers = []string{DriverValkey, DriverRedis, DriverPostgres, DriverClickHouse, DriverSQLite, DriverMemory}

var fieldTypes = []string{"tag", "text", "numeric", "date"}

// Config holds the tablekit configuration.
type Config struct {
	HTTP     HTTPConfig      `yaml:"http"`
	Database DatabaseConfig  `yaml:"database"`
	Table    TableConfig     `yaml:"table"`
	Doctypes []DoctypeConfig `yaml:"doctypes"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the remote store settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, postgres, clickhouse, sqlite, memory
	Addrs            []string `yaml:"addrs"`  // redis/valkey
	Password         string   `yaml:"password"`
	DSN              string   `yaml:"dsn"` // sql drivers
	SeedFile         string   `yaml:"seed_file"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IsRedis reports whether the driver speaks RESP.
func (d DatabaseConfig) IsRedis() bool {
	return d.Driver == DriverValkey || d.Driver == DriverRedis
}

// IsSQL reports whether the driver is a database/sql backend.
func (d DatabaseConfig) IsSQL() bool {
	return d.Driver == DriverPostgres || d.Driver == DriverClickHouse || d.Driver == DriverSQLite
}

// TableConfig holds fetch and paging settings.
type TableConfig struct {
	DebounceMs      int `yaml:"debounce_ms"` // negative disables the debounce
	CacheTTLSec     int `yaml:"cache_ttl_sec"` // 0 disables the page cache
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
	FacetLimit      int `yaml:"facet_limit"`
}

// Debounce returns the search debounce window.
func (t TableConfig) Debounce() time.Duration {
	return time.Duration(max(t.DebounceMs, 0)) * time.Millisecond
}

// CacheTTL returns the page cache TTL; zero disables the cache.
func (t TableConfig) CacheTTL() time.Duration {
	return time.Duration(t.CacheTTLSec) * time.Second
}

// DoctypeConfig declares one listable record type.
type DoctypeConfig struct {
	Name   string        `yaml:"name"`
	Fields []FieldConfig `yaml:"fields"`
}

// FieldConfig declares one field of a doctype.
type FieldConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // tag, text, numeric, date
	Sortable bool   `yaml:"sortable"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Table.DebounceMs == 0 {
		c.Table.DebounceMs = 300
	}
	if c.Table.CacheTTLSec < 0 {
		c.Table.CacheTTLSec = 0
	}
	if c.Table.DefaultPageSize <= 0 {
		c.Table.DefaultPageSize = 20
	}
	if c.Table.MaxPageSize <= 0 {
		c.Table.MaxPageSize = 500
	}
	if c.Table.FacetLimit <= 0 {
		c.Table.FacetLimit = 50
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !slices.Contains(drivers, c.Database.Driver) {
		return fmt.Errorf("database.driver must be one of %s, got %q", strings.Join(drivers, ", "), c.Database.Driver)
	}
	if c.Database.IsRedis() && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required for driver %s", c.Database.Driver)
	}
	if c.Database.IsSQL() && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
	}
	if c.Table.DefaultPageSize > c.Table.MaxPageSize {
		return fmt.Errorf("table.default_page_size (%d) exceeds table.max_page_size (%d)",
			c.Table.DefaultPageSize, c.Table.MaxPageSize)
	}
	if len(c.Doctypes) == 0 {
		return fmt.Errorf("at least one doctype is required")
	}
	seen := make(map[string]bool, len(c.Doctypes))
	for i, dt := range c.Doctypes {
		if dt.Name == "" {
			return fmt.Errorf("doctypes[%d].name is required", i)
		}
		if seen[dt.Name] {
			return fmt.Errorf("doctype %q declared twice", dt.Name)
		}
		seen[dt.Name] = true
		if len(dt.Fields) == 0 {
			return fmt.Errorf("doctype %q has no fields", dt.Name)
		}
		for _, f := range dt.Fields {
			if !slices.Contains(fieldTypes, f.Type) {
				return fmt.Errorf("doctype %q field %q: type must be one of %s, got %q",
					dt.Name, f.Name, strings.Join(fieldTypes, ", "), f.Type)
			}
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
