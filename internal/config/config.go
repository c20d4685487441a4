// ABOUTME: Configuration loading and parsing for agentdesk
// ABOUTME: YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config path
const EnvConfigPath = "AGENTDESK_CONFIG"

// Persistence backends
const (
	PersistenceSQLite = "sqlite"
	PersistenceRemote = "remote"
	PersistenceNone   = "none"
)

// Config represents the complete agentdesk configuration
type Config struct {
	Backend     BackendConfig     `yaml:"backend" toml:"backend"`
	Persistence PersistenceConfig `yaml:"persistence" toml:"persistence"`
	Agents      AgentsConfig      `yaml:"agents" toml:"agents"`
	Messages    MessagesConfig    `yaml:"messages" toml:"messages"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// BackendConfig locates the agent-execution service
type BackendConfig struct {
	URL       string `yaml:"url" toml:"url"`
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"`
	Language  string `yaml:"language" toml:"language"`
}

// PersistenceConfig selects where conversations are recorded
type PersistenceConfig struct {
	Backend   string `yaml:"backend" toml:"backend"`
	Path      string `yaml:"path" toml:"path"`
	URL       string `yaml:"url" toml:"url"`
	QueueSize int    `yaml:"queue_size" toml:"queue_size"`

	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// AgentsConfig controls which agents are offered
type AgentsConfig struct {
	Default string   `yaml:"default" toml:"default"`
	Enabled []string `yaml:"enabled" toml:"enabled"`
}

// MessagesConfig overrides the user-facing texts of the chat engine
type MessagesConfig struct {
	Placeholder string `yaml:"placeholder" toml:"placeholder"`
	Fallback    string `yaml:"fallback" toml:"fallback"`
	Failure     string `yaml:"failure" toml:"failure"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:      "http://localhost:8000",
			Language: "en",
		},
		Persistence: PersistenceConfig{
			Backend:         PersistenceSQLite,
			Path:            DefaultDataPath(),
			QueueSize:       256,
			WriteTimeout:    5 * time.Second,
			WriteTimeoutRaw: "5s",
		},
		Agents: AgentsConfig{
			Default: "general",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Files ending in .toml are read as TOML, anything else as YAML.
// Fields missing from the file keep their Default values.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist and was not explicitly requested.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return nil, err
}

// LoadEnvFiles loads KEY=value pairs from .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments ./.env is tried.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ResolvePath picks the config file: the flag value, then $AGENTDESK_CONFIG,
// then the XDG config location. explicit reports whether the user named it.
func ResolvePath(flagValue string) (path string, explicit bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, true
	}
	return filepath.Join(configHome(), "agentdesk", "config.yaml"), false
}

// DefaultDataPath is where the local conversation database lives by default
func DefaultDataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "agentdesk", "agentdesk.db")
}

func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if err := validateHTTPURL(c.Backend.URL); err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	if c.Backend.Language == "" {
		return fmt.Errorf("backend.language is required")
	}

	switch c.Persistence.Backend {
	case PersistenceSQLite:
		if c.Persistence.Path == "" {
			return fmt.Errorf("persistence.path is required for the sqlite backend")
		}
	case PersistenceRemote:
		if c.Persistence.URL == "" {
			return fmt.Errorf("persistence.url is required for the remote backend")
		}
		if err := validateHTTPURL(c.Persistence.URL); err != nil {
			return fmt.Errorf("persistence.url: %w", err)
		}
	case PersistenceNone:
	default:
		return fmt.Errorf("persistence.backend must be sqlite, remote or none, got %q", c.Persistence.Backend)
	}
	if c.Persistence.QueueSize < 0 {
		return fmt.Errorf("persistence.queue_size must not be negative")
	}
	if c.Persistence.WriteTimeout < 0 {
		return fmt.Errorf("persistence.write_timeout must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Persistence.WriteTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Persistence.WriteTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing write_timeout %q: %w", cfg.Persistence.WriteTimeoutRaw, err)
		}
		cfg.Persistence.WriteTimeout = d
	}
	return nil
}
