package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the orbis retrieval engine configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Index     IndexConfig     `yaml:"index"`
	Auth      AuthConfig      `yaml:"auth"`
	Classify  ClassifyConfig  `yaml:"classify"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication and domain grant settings.
type AuthConfig struct {
	APIKeys []string               `yaml:"api_keys"` // bearer tokens for the admin surface
	Grants  map[string]GrantConfig `yaml:"grants"`   // principal -> allowed domains/actions
}

// GrantConfig names the domains and actions a principal may use.
// "*" matches everything.
type GrantConfig struct {
	Domains []string `yaml:"domains"`
	Actions []string `yaml:"actions"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds similarity index and maintenance settings.
type IndexConfig struct {
	FlushEvery         int     `yaml:"flush_every"`              // writes between automatic snapshots
	CompactRatio       float64 `yaml:"compact_ratio"`            // tombstone ratio triggering compaction
	DomainTimeoutMs    int     `yaml:"domain_timeout_ms"`        // per-domain budget in fan-out searches
	MaintenanceSec     int     `yaml:"maintenance_interval_sec"` // background flush/compact cadence
	RegistryRefreshSec int     `yaml:"registry_refresh_sec"`     // domain registry reload cadence
}

// RetrievalConfig holds two-phase retrieval settings.
type RetrievalConfig struct {
	AutoDetect    bool    `yaml:"auto_detect"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// ClassifyConfig holds keyword classifier settings.
type ClassifyConfig struct {
	Keywords map[string][]string `yaml:"keywords"` // domain name -> keywords
}

// StorageConfig holds snapshot storage settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Dimensions  int     `yaml:"dimensions"`
	RateRPS     float64 `yaml:"rate_rps"`
	RateBurst   int     `yaml:"rate_burst"`
	Retries     int     `yaml:"retries"`
	CacheTTLSec int     `yaml:"cache_ttl_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	// Unknown keys are a config typo in development but must not take
	// down a running fleet: strict everywhere except prod.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if env != "prod" {
		dec.KnownFields(true)
	}

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.FlushEvery <= 0 {
		c.Index.FlushEvery = 64
	}
	if c.Index.CompactRatio <= 0 {
		c.Index.CompactRatio = 0.3
	}
	if c.Index.DomainTimeoutMs <= 0 {
		c.Index.DomainTimeoutMs = 2000
	}
	if c.Index.MaintenanceSec <= 0 {
		c.Index.MaintenanceSec = 60
	}
	if c.Index.RegistryRefreshSec <= 0 {
		c.Index.RegistryRefreshSec = 30
	}
	if c.Retrieval.MinConfidence <= 0 {
		c.Retrieval.MinConfidence = 0.5
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Embedding.RateRPS <= 0 {
		c.Embedding.RateRPS = 10
	}
	if c.Embedding.RateBurst <= 0 {
		c.Embedding.RateBurst = 5
	}
	if c.Embedding.Retries <= 0 {
		c.Embedding.Retries = 3
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 3600
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	case "memory":
		// no connection settings needed
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"memory\", got %q", c.Database.Driver)
	}
	if c.Retrieval.MinConfidence < 0 || c.Retrieval.MinConfidence > 1 {
		return fmt.Errorf("retrieval.min_confidence must be in [0, 1], got %g", c.Retrieval.MinConfidence)
	}
	if c.Index.CompactRatio <= 0 || c.Index.CompactRatio > 1 {
		return fmt.Errorf("index.compact_ratio must be in (0, 1], got %g", c.Index.CompactRatio)
	}
	for principal, grant := range c.Auth.Grants {
		if len(grant.Domains) == 0 {
			return fmt.Errorf("auth.grants.%s.domains must not be empty", principal)
		}
		for _, action := range grant.Actions {
			switch action {
			case "*", "search", "write":
				// ok
			default:
				return fmt.Errorf(
					"auth.grants.%s.actions: unknown action %q", principal, action)
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
