// Package config loads the service configuration from a YAML file and
// MUDRA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/gesture"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MUDRA"

// Config is the complete service configuration.
type Config struct {
	Recognizer gesture.Config `yaml:"recognizer" split_words:"true"`
	Buffer     capture.Config `yaml:"buffer" split_words:"true"`
	Server     ServerConfig   `yaml:"server" split_words:"true"`
	Store      StoreConfig    `yaml:"store" split_words:"true"`
	Library    LibraryConfig  `yaml:"library" split_words:"true"`
	Plugins    PluginsConfig  `yaml:"plugins" split_words:"true"`
	MQTT       MQTTConfig     `yaml:"mqtt" split_words:"true"`
	Tracker    TrackerConfig  `yaml:"tracker" split_words:"true"`
	Log        LogConfig      `yaml:"log" split_words:"true"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr      string `yaml:"addr" split_words:"true"`
	StaticDir string `yaml:"static_dir" split_words:"true"`
}

// StoreConfig configures the SQLite database.
type StoreConfig struct {
	Path    string `yaml:"path" split_words:"true"`
	Enabled bool   `yaml:"enabled" split_words:"true"`
}

// LibraryConfig configures the gesture text file.
type LibraryConfig struct {
	File     string        `yaml:"file" split_words:"true"`
	Watch    bool          `yaml:"watch" split_words:"true"`
	Debounce time.Duration `yaml:"debounce" split_words:"true"`
}

// PluginsConfig configures announcement plugins.
type PluginsConfig struct {
	Dir      string        `yaml:"dir" split_words:"true"`
	Timeout  time.Duration `yaml:"timeout" split_words:"true"`
	Announce string        `yaml:"announce" split_words:"true"`
}

// MQTTConfig configures the match event publisher. An empty broker
// disables publishing.
type MQTTConfig struct {
	Broker      string `yaml:"broker" split_words:"true"`
	TopicPrefix string `yaml:"topic_prefix" split_words:"true"`
	ClientID    string `yaml:"client_id" split_words:"true"`
	Username    string `yaml:"username" split_words:"true"`
	Password    string `yaml:"password" split_words:"true"`
}

// TrackerConfig names an external skeleton tracker whose output is fed to
// the recognizer. An empty command disables it.
type TrackerConfig struct {
	Command string   `yaml:"command" split_words:"true"`
	Args    []string `yaml:"args" split_words:"true"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" split_words:"true"`
	Development bool   `yaml:"development" split_words:"true"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Recognizer: gesture.DefaultConfig(),
		Buffer:     capture.DefaultConfig(),
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			Path:    filepath.Join(HomeDir(), "mudra.db"),
			Enabled: true,
		},
		Library: LibraryConfig{
			Debounce: 250 * time.Millisecond,
		},
		Plugins: PluginsConfig{
			Dir:      filepath.Join(HomeDir(), "plugins"),
			Timeout:  5 * time.Second,
			Announce: "speak",
		},
		MQTT: MQTTConfig{
			TopicPrefix: "mudra",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// HomeDir returns the per-user data directory, ~/.mudra.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mudra"
	}
	return filepath.Join(home, ".mudra")
}

// Load reads the defaults, then the YAML file at path if it is non-empty,
// then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config environment: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate reports the first invalid section.
func (c *Config) Validate() error {
	if err := c.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}
	if err := c.Buffer.Validate(); err != nil {
		return fmt.Errorf("buffer: %w", err)
	}
	if c.Server.Addr == "" {
		return errors.New("server: addr is required")
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return errors.New("store: path is required when enabled")
	}
	if c.Library.Watch && c.Library.File == "" {
		return errors.New("library: watch requires a file")
	}
	if c.Plugins.Timeout <= 0 {
		return fmt.Errorf("plugins: timeout must be positive, got %s", c.Plugins.Timeout)
	}
	return nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) expandPaths() {
	c.Store.Path = expandHome(c.Store.Path)
	c.Library.File = expandHome(c.Library.File)
	c.Plugins.Dir = expandHome(c.Plugins.Dir)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
