// Package config holds the service configuration: startup settings loaded
// from YAML and environment variables, the runtime-editable folder routing
// settings with their file-backed store, and database connection helpers.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ServiceConfig is the startup configuration for the pipeline server.
// Values are resolved defaults < YAML file < environment.
type ServiceConfig struct {
	// Listen is the HTTP listen address, e.g. ":8080".
	Listen string `yaml:"listen"`

	// SDMXBaseURL overrides the statistics API root. Empty selects the
	// production endpoint.
	SDMXBaseURL string `yaml:"sdmxBaseURL"`

	// DefaultPipeline is what GET /run triggers.
	DefaultPipeline string `yaml:"defaultPipeline"`

	// TriggerIntervalSeconds is the minimum spacing between synchronous
	// triggers of the same pipeline. Zero disables rate limiting.
	TriggerIntervalSeconds int `yaml:"triggerIntervalSeconds"`

	// SettingsPath is the folder-routing settings file managed by the
	// settings store.
	SettingsPath string `yaml:"settingsPath"`

	Database DatabaseConfig      `yaml:"database"`
	Drive    DriveConfig         `yaml:"drive"`
	Datasets DatasetSourceConfig `yaml:"datasets"`
}

// DatabaseConfig selects the GORM dialect and connection.
type DatabaseConfig struct {
	// Type is sqlite, postgres or mysql.
	Type string `yaml:"type"`

	// DSN is passed to the driver verbatim when set. For mysql it can be
	// left empty and assembled from the discrete fields below.
	DSN string `yaml:"dsn"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// DriveConfig configures the cloud file-store backend. When disabled the
// server falls back to the database-backed store (local mode).
type DriveConfig struct {
	Enabled bool `yaml:"enabled"`

	// CredentialsFile is a service-account JSON key file.
	CredentialsFile string `yaml:"credentialsFile"`

	// BaseURL overrides the API root, used by tests.
	BaseURL string `yaml:"baseURL"`
}

// DatasetSourceConfig points at extra matrix dataset definitions loaded at
// startup, from a local directory and/or a git repository.
type DatasetSourceConfig struct {
	Dir string          `yaml:"dir"`
	Git GitSourceConfig `yaml:"git"`
}

// GitSourceConfig describes a git-hosted definition source.
type GitSourceConfig struct {
	URL   string `yaml:"url"`
	Ref   string `yaml:"ref"`
	Token string `yaml:"token"`
	Glob  string `yaml:"glob"`
}

// Default returns the built-in configuration.
func Default() *ServiceConfig {
	return &ServiceConfig{
		Listen:                 ":8080",
		DefaultPipeline:        "income",
		TriggerIntervalSeconds: 30,
		SettingsPath:           "settings.yaml",
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "statpipe.db",
		},
		Datasets: DatasetSourceConfig{
			Git: GitSourceConfig{Glob: "*.yaml"},
		},
	}
}

// LoadFromFile reads a YAML config file over the defaults. A missing path
// argument returns the defaults unchanged.
func LoadFromFile(path string) (*ServiceConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto the config. Environment
// wins over file values so containerized deployments can tune a baked-in
// config file.
func (c *ServiceConfig) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			c.Listen = ":" + v
		}
	}
	if v := os.Getenv("STATPIPE_SDMX_BASE_URL"); v != "" {
		c.SDMXBaseURL = v
	}
	if v := os.Getenv("STATPIPE_DEFAULT_PIPELINE"); v != "" {
		c.DefaultPipeline = v
	}
	if v := os.Getenv("STATPIPE_TRIGGER_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.TriggerIntervalSeconds = n
		}
	}
	if v := os.Getenv("STATPIPE_SETTINGS_PATH"); v != "" {
		c.SettingsPath = v
	}

	if v := os.Getenv("DATABASE_TYPE"); v != "" {
		c.Database.Type = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv("STATPIPE_DRIVE_ENABLED"); v != "" {
		c.Drive.Enabled, _ = strconv.ParseBool(v)
	}
	// The canonical service-account variable doubles as the credentials
	// path so existing deployments keep working.
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && c.Drive.CredentialsFile == "" {
		c.Drive.CredentialsFile = v
	}
	if v := os.Getenv("STATPIPE_DRIVE_BASE_URL"); v != "" {
		c.Drive.BaseURL = v
	}

	if v := os.Getenv("STATPIPE_DATASET_DIR"); v != "" {
		c.Datasets.Dir = v
	}
	if v := os.Getenv("STATPIPE_DATASET_GIT_URL"); v != "" {
		c.Datasets.Git.URL = v
	}
	if v := os.Getenv("STATPIPE_DATASET_GIT_REF"); v != "" {
		c.Datasets.Git.Ref = v
	}
	if v := os.Getenv("STATPIPE_DATASET_GIT_TOKEN"); v != "" {
		c.Datasets.Git.Token = v
	}
	if v := os.Getenv("STATPIPE_DATASET_GIT_GLOB"); v != "" {
		c.Datasets.Git.Glob = v
	}
}

// Validate checks the configuration for startup-blocking mistakes.
func (c *ServiceConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is required")
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unknown database type %q (expected sqlite, postgres or mysql)", c.Database.Type)
	}
	if c.Database.Type == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("config: postgres requires a DSN")
	}
	if c.Database.Type == "mysql" && c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("config: mysql requires a DSN or host")
	}
	if c.TriggerIntervalSeconds < 0 {
		return fmt.Errorf("config: trigger interval cannot be negative")
	}
	if c.Drive.Enabled && c.Drive.CredentialsFile == "" {
		return fmt.Errorf("config: drive backend requires a credentials file")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
