// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// Loader handles configuration loading from files and the environment
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig *Config

	// Environment access
	lookupEnv func(string) (string, bool)
	environ   func() []string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	home, _ := os.UserHomeDir()
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"./configs",
			"/etc/actorkit",
			filepath.Join(home, ".actorkit"),
		},
		envPrefix:     "ACTORKIT",
		defaultConfig: DefaultConfig(),
		lookupEnv:     os.LookupEnv,
		environ:       os.Environ,
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load loads configuration from the specified file. An empty filename
// falls back to AutoLoad.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		return l.AutoLoad()
	}
	config, err := l.loadFromFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from file %s: %w", filename, err)
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	return l.loadFromFile(filename)
}

// LoadFromReader loads configuration from an io.Reader. Missing fields keep
// their default values; environment overrides are not applied.
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	return l.parseConfig(data, format)
}

// AutoLoad discovers a configuration file in the search paths. Without one
// the defaults are used. Environment overrides are applied either way.
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, _, err := l.findConfigFile()
	if errors.Is(err, ErrConfigFileNotFound) {
		config := l.defaults()
		if err := l.finish(config); err != nil {
			return nil, err
		}
		return config, nil
	}
	if err != nil {
		return nil, err
	}
	return l.loadFromFile(configFile)
}

func (l *Loader) defaults() *Config {
	if l.defaultConfig == nil {
		return DefaultConfig()
	}
	return l.defaultConfig.Clone()
}

func (l *Loader) finish(config *Config) error {
	if err := l.loadFromEnv(config); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigValidateError, err)
	}
	return nil
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, ConfigFormat, error) {
	filenames := []string{
		"actorkit.yaml", "actorkit.yml",
		"config.yaml", "config.yml",
		"actorkit.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				format, err := formatOf(fullPath)
				if err != nil {
					continue
				}
				return fullPath, format, nil
			}
		}
	}

	return "", "", ErrConfigFileNotFound
}

func formatOf(filename string) (ConfigFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// loadFromFile loads configuration from a file
func (l *Loader) loadFromFile(filename string) (*Config, error) {
	format, err := formatOf(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}
	if err := l.finish(config); err != nil {
		return nil, err
	}
	return config, nil
}

// parseConfig decodes data on top of the default configuration
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	config := l.defaults()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: YAML: %w", ErrConfigParseError, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: JSON: %w", ErrConfigParseError, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}

	return config, nil
}

func (l *Loader) env(key string) (string, bool) {
	val, ok := l.lookupEnv(l.envPrefix + "_" + key)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv(config *Config) error {
	// App configuration
	if val, ok := l.env("APP_NAME"); ok {
		config.App.Name = val
	}
	if val, ok := l.env("APP_VERSION"); ok {
		config.App.Version = val
	}
	if val, ok := l.env("APP_ENVIRONMENT"); ok {
		config.App.Environment = Environment(val)
	}
	if val, ok := l.env("APP_DEBUG"); ok {
		config.App.Debug = strings.ToLower(val) == "true"
	}

	// Log configuration
	if val, ok := l.env("LOG_LEVEL"); ok {
		config.Log.Level = LogLevel(strings.ToLower(val))
	}
	if val, ok := l.env("LOG_FORMAT"); ok {
		config.Log.Format = val
	}
	if val, ok := l.env("LOG_OUTPUT"); ok {
		config.Log.Output = val
	}

	// Server configuration
	if val, ok := l.env("SERVER_ADDRESS"); ok {
		config.Server.Address = val
	}
	if val, ok := l.env("SERVER_PORT"); ok {
		port, err := parsePort(val)
		if err != nil {
			return fmt.Errorf("%w: %s_SERVER_PORT: %w", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Server.Port = port
	}

	// Discovery configuration
	if val, ok := l.env("DISCOVERY_ENABLED"); ok {
		config.Discovery.Enabled = strings.ToLower(val) == "true"
	}
	if val, ok := l.env("DISCOVERY_STRATEGY"); ok {
		config.Discovery.Strategy = val
	}
	if val, ok := l.env("SERVICE_NAME"); ok {
		config.Discovery.ServiceName = val
	}

	// Actor configuration
	ints := []struct {
		key string
		dst *int
	}{
		{"ACTOR_CORE_WORKERS", &config.Actor.CoreWorkers},
		{"ACTOR_MAX_WORKERS", &config.Actor.MaxWorkers},
		{"ACTOR_QUEUE_CAPACITY", &config.Actor.QueueCapacity},
	}
	for _, it := range ints {
		if val, ok := l.env(it.key); ok {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%w: %s_%s: %w", ErrEnvironmentVarError, l.envPrefix, it.key, err)
			}
			*it.dst = n
		}
	}
	if val, ok := l.env("ACTOR_DISPATCH_MODE"); ok {
		config.Actor.DispatchMode = strings.ToLower(val)
	}
	if val, ok := l.env("ACTOR_ASK_TIMEOUT"); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: %s_ACTOR_ASK_TIMEOUT: %w", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Actor.AskTimeout = d
	}

	// Remote fallback entries: <PREFIX>_REMOTE_FALLBACK_PLAYER_SERVICE=url
	// maps service "player-service".
	fallbackPrefix := l.envPrefix + "_REMOTE_FALLBACK_"
	for _, kv := range l.environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || val == "" || !strings.HasPrefix(key, fallbackPrefix) {
			continue
		}
		service := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, fallbackPrefix), "_", "-"))
		if service == "" {
			continue
		}
		if config.Remote.Fallback == nil {
			config.Remote.Fallback = make(map[string]string)
		}
		config.Remote.Fallback[service] = val
	}

	return nil
}

// Helper function to parse port number
func parsePort(val string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port number: %d", port)
	}
	return port, nil
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	out := *c
	out.Log.Fields = maps.Clone(c.Log.Fields)
	out.Remote.Fallback = maps.Clone(c.Remote.Fallback)
	out.Actor.Spawn = append([]SpawnConfig(nil), c.Actor.Spawn...)
	if c.Discovery.Services != nil {
		out.Discovery.Services = make(map[string][]string, len(c.Discovery.Services))
		for k, v := range c.Discovery.Services {
			out.Discovery.Services[k] = append([]string(nil), v...)
		}
	}
	return &out
}
