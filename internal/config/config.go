package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Database        DatabaseConfig        `yaml:"database"`
	Instance        InstanceConfig        `yaml:"instance"`
	Auth            AuthConfig            `yaml:"auth"`
	Sync            SyncConfig            `yaml:"sync"`
	Worker          WorkerConfig          `yaml:"worker"`
	SnapshotStorage SnapshotStorageConfig `yaml:"snapshot_storage"`
	Log             LogConfig             `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path      string `yaml:"path"`
	SpoolPath string `yaml:"spool_path"`
}

// InstanceConfig identifies this replica. An empty ID is generated on start.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// SyncConfig contains pull and push settings.
type SyncConfig struct {
	PullBatchSize     int      `yaml:"pull_batch_size"`
	PartialRequestTTL Duration `yaml:"partial_request_ttl"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	SnapshotInterval     Duration `yaml:"snapshot_interval"`
	SpoolCleanupInterval Duration `yaml:"spool_cleanup_interval"`
}

// SnapshotStorageConfig contains S3-compatible snapshot upload settings.
// Upload is disabled when Bucket is empty.
type SnapshotStorageConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	UseSSL    *bool    `yaml:"use_ssl"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	URLExpiry Duration `yaml:"url_expiry"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("NOTESYNC_CONFIG_PATH", "config/notesync.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadUnvalidated loads configuration like Load but skips validation. It
// serves the offline CLI commands, which never authenticate.
func LoadUnvalidated() (*Config, error) {
	cfg := newDefaults()

	if err := loadYAMLFile(cfg, getEnv("NOTESYNC_CONFIG_PATH", "config/notesync.yaml")); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// The file must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path:      "data/notesync.db",
			SpoolPath: "data/partial.db",
		},
		Sync: SyncConfig{
			PullBatchSize:     1000,
			PartialRequestTTL: Duration(20 * time.Minute),
		},
		Worker: WorkerConfig{
			SnapshotInterval:     Duration(1 * time.Hour),
			SpoolCleanupInterval: Duration(1 * time.Minute),
		},
		SnapshotStorage: SnapshotStorageConfig{
			Region:    "us-east-1",
			UseSSL:    &useSSL,
			URLExpiry: Duration(15 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("NOTESYNC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	setDuration("NOTESYNC_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("NOTESYNC_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDuration("NOTESYNC_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	if v := os.Getenv("NOTESYNC_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NOTESYNC_SPOOL_PATH"); v != "" {
		cfg.Database.SpoolPath = v
	}

	// Instance
	if v := os.Getenv("NOTESYNC_INSTANCE_ID"); v != "" {
		cfg.Instance.ID = v
	}

	// Auth
	if v := os.Getenv("NOTESYNC_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Sync
	if v := os.Getenv("NOTESYNC_PULL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.PullBatchSize = n
		}
	}
	setDuration("NOTESYNC_PARTIAL_REQUEST_TTL", &cfg.Sync.PartialRequestTTL)

	// Worker
	setDuration("NOTESYNC_SNAPSHOT_INTERVAL", &cfg.Worker.SnapshotInterval)
	setDuration("NOTESYNC_SPOOL_CLEANUP_INTERVAL", &cfg.Worker.SpoolCleanupInterval)

	// Snapshot storage
	if v := os.Getenv("NOTESYNC_SNAPSHOT_BUCKET"); v != "" {
		cfg.SnapshotStorage.Bucket = v
	}
	if v := os.Getenv("NOTESYNC_S3_ENDPOINT"); v != "" {
		cfg.SnapshotStorage.Endpoint = v
	}
	if v := os.Getenv("NOTESYNC_S3_REGION"); v != "" {
		cfg.SnapshotStorage.Region = v
	}
	if v := os.Getenv("NOTESYNC_S3_ACCESS_KEY"); v != "" {
		cfg.SnapshotStorage.AccessKey = v
	}
	if v := os.Getenv("NOTESYNC_S3_SECRET_KEY"); v != "" {
		cfg.SnapshotStorage.SecretKey = v
	}
	if v := os.Getenv("NOTESYNC_S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SnapshotStorage.UseSSL = &b
		}
	}
	setDuration("NOTESYNC_S3_URL_EXPIRY", &cfg.SnapshotStorage.URLExpiry)

	// Log
	if v := os.Getenv("NOTESYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NOTESYNC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// validate checks that required configuration values are set.
// In dev mode (NOTESYNC_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	if c.Sync.PullBatchSize <= 0 {
		return fmt.Errorf("sync.pull_batch_size must be positive, got %d", c.Sync.PullBatchSize)
	}

	if os.Getenv("NOTESYNC_DEV_MODE") == "true" {
		return nil
	}

	if c.Auth.APIKey == "" {
		return errors.New("NOTESYNC_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
