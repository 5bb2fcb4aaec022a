package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository kinds accepted in the chain definition.
const (
	KindMavenRemote = "maven-remote"
	KindMavenLocal  = "maven-local"
)

// Config represents the complete application configuration.
// Layers, lowest first: built-in defaults, the YAML config file,
// REPOCHAIN_* environment variables, runtime overrides.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`
	Debug      DebugConfig      `mapstructure:"debug"`
	Workers    int              `mapstructure:"workers"`

	RateLimits      map[string]int `mapstructure:"rate_limits"`
	RateLimitMargin float64        `mapstructure:"rate_limit_margin"`

	// Repositories is the ordered resolution chain.
	Repositories []RepositoryConfig `mapstructure:"repositories"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// CacheConfig contains module and metadata-document cache TTLs.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ModuleTTL   time.Duration `mapstructure:"module_ttl"`
	ChangingTTL time.Duration `mapstructure:"changing_ttl"`
	MissingTTL  time.Duration `mapstructure:"missing_ttl"`
	ResourceTTL time.Duration `mapstructure:"resource_ttl"`
}

// ResolutionConfig tunes the chain resolver.
type ResolutionConfig struct {
	// LatestChanging keeps searching for the newest changing module instead
	// of stopping at the first hit.
	LatestChanging bool          `mapstructure:"latest_changing"`
	Parallelism    int           `mapstructure:"parallelism"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// RepositoryConfig is one entry of the resolution chain.
type RepositoryConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Kind     string `mapstructure:"kind" yaml:"kind"`
	URL      string `mapstructure:"url" yaml:"url,omitempty"`
	Path     string `mapstructure:"path" yaml:"path,omitempty"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	// AllowGenerated accepts a bare artifact without a POM.
	AllowGenerated bool `mapstructure:"allow_generated" yaml:"allow_generated,omitempty"`
	// AuthoritativeMissing trusts cached misses without asking the remote tier.
	AuthoritativeMissing bool `mapstructure:"authoritative_missing" yaml:"authoritative_missing,omitempty"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Resolution.Parallelism < 0 {
		return fmt.Errorf("resolution.parallelism must not be negative: %d", c.Resolution.Parallelism)
	}
	if c.RateLimitMargin < 0 || c.RateLimitMargin > 1 {
		return fmt.Errorf("rate_limit_margin must be within [0, 1]: %v", c.RateLimitMargin)
	}
	return ValidateRepositories(c.Repositories)
}

// ValidateRepositories checks a chain definition.
func ValidateRepositories(repos []RepositoryConfig) error {
	seen := make(map[string]struct{}, len(repos))
	for i, repo := range repos {
		name := strings.TrimSpace(repo.Name)
		if name == "" {
			return fmt.Errorf("repositories[%d]: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("repositories[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}

		switch strings.TrimSpace(repo.Kind) {
		case "", KindMavenRemote:
			if strings.TrimSpace(repo.URL) == "" {
				return fmt.Errorf("repository %s: url is required", name)
			}
		case KindMavenLocal:
		default:
			return fmt.Errorf("repository %s: unsupported kind %q", name, repo.Kind)
		}
	}
	return nil
}
