// Package config provides configuration management for actorkit nodes
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// Config represents the complete node configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Actor system configuration
	Actor ActorConfig `yaml:"actor" json:"actor"`

	// Outbound remote call configuration
	Remote RemoteConfig `yaml:"remote" json:"remote"`

	// Service discovery configuration
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Actor endpoint configuration
	Server ServerConfig `yaml:"server" json:"server"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name, also used as the actor system name
	Name string `yaml:"name" json:"name"`

	// Application version
	Version string `yaml:"version" json:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Fields to include in every log record
	Fields map[string]any `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// ActorConfig contains actor system configuration
type ActorConfig struct {
	// Core worker count, 0 means one per CPU
	CoreWorkers int `yaml:"core_workers" json:"core_workers"`

	// Maximum worker count, 0 means twice the core count
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`

	// Capacity of the shared work queue
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// Idle time after which extra workers retire
	WorkerIdleTimeout time.Duration `yaml:"worker_idle_timeout" json:"worker_idle_timeout"`

	// Dispatch mode (mailbox, unordered)
	DispatchMode string `yaml:"dispatch_mode" json:"dispatch_mode"`

	// Default ask timeout
	AskTimeout time.Duration `yaml:"ask_timeout" json:"ask_timeout"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Restart budget per actor
	RestartLimit RestartLimitConfig `yaml:"restart_limit" json:"restart_limit"`

	// Actors spawned when the node starts
	Spawn []SpawnConfig `yaml:"spawn,omitempty" json:"spawn,omitempty"`
}

// SpawnConfig names one actor to spawn at startup. Its kind must take no
// constructor arguments.
type SpawnConfig struct {
	Kind string `yaml:"kind" json:"kind"`
	ID   string `yaml:"id" json:"id"`
}

// RestartLimitConfig bounds restarts within a sliding window
type RestartLimitConfig struct {
	Max    int           `yaml:"max" json:"max"`
	Within time.Duration `yaml:"within" json:"within"`
}

// RemoteConfig contains outbound remote call settings
type RemoteConfig struct {
	// Timeout for fire-and-forget posts
	TellTimeout time.Duration `yaml:"tell_timeout" json:"tell_timeout"`

	// Default timeout for remote asks
	AskTimeout time.Duration `yaml:"ask_timeout" json:"ask_timeout"`

	// Timeout for health probes
	HealthTimeout time.Duration `yaml:"health_timeout" json:"health_timeout"`

	// How long resolved remote refs are cached
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// Service name -> base URL used when discovery has no instance
	Fallback map[string]string `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// DiscoveryConfig contains service discovery configuration
type DiscoveryConfig struct {
	// Enable service discovery
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Name this node registers under
	ServiceName string `yaml:"service_name" json:"service_name"`

	// Load balancing strategy
	Strategy string `yaml:"strategy" json:"strategy"`

	// Static service -> addresses table
	Services map[string][]string `yaml:"services,omitempty" json:"services,omitempty"`
}

// ServerConfig contains the actor endpoint settings
type ServerConfig struct {
	// Listening address
	Address string `yaml:"address" json:"address"`

	// Listening port
	Port int `yaml:"port" json:"port"`

	// Health endpoint path
	HealthPath string `yaml:"health_path" json:"health_path"`

	// Ask timeout applied to inbound requests
	AskTimeout time.Duration `yaml:"ask_timeout" json:"ask_timeout"`
}

// ListenAddr returns the host:port the endpoint binds to
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "actorkit",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "text",
			Output: "stdout",
		},
		Actor: ActorConfig{
			QueueCapacity:     1000,
			WorkerIdleTimeout: 60 * time.Second,
			DispatchMode:      "mailbox",
			AskTimeout:        5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RestartLimit: RestartLimitConfig{
				Max:    3,
				Within: time.Minute,
			},
		},
		Remote: RemoteConfig{
			TellTimeout:   5 * time.Second,
			AskTimeout:    5 * time.Second,
			HealthTimeout: 2 * time.Second,
			CacheTTL:      30 * time.Second,
			Fallback:      make(map[string]string),
		},
		Discovery: DiscoveryConfig{
			Enabled:  true,
			Strategy: "round_robin",
			Services: make(map[string][]string),
		},
		Server: ServerConfig{
			Address:    "0.0.0.0",
			Port:       8080,
			HealthPath: "/actuator/health",
			AskTimeout: 5 * time.Second,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if !strings.HasPrefix(c.Server.HealthPath, "/") {
		return fmt.Errorf("%w: health path %q", ErrInvalidPath, c.Server.HealthPath)
	}

	if c.Actor.CoreWorkers < 0 || c.Actor.MaxWorkers < 0 ||
		(c.Actor.MaxWorkers > 0 && c.Actor.MaxWorkers < c.Actor.CoreWorkers) {
		return ErrInvalidWorkers
	}
	if c.Actor.QueueCapacity <= 0 {
		return ErrInvalidQueueCapacity
	}
	switch c.Actor.DispatchMode {
	case "", "mailbox", "unordered":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDispatchMode, c.Actor.DispatchMode)
	}

	for _, sp := range c.Actor.Spawn {
		if sp.Kind == "" || strings.Contains(sp.Kind, "/") || strings.Contains(sp.ID, "/") {
			return fmt.Errorf("%w: kind %q id %q", ErrInvalidSpawn, sp.Kind, sp.ID)
		}
	}

	for service, url := range c.Remote.Fallback {
		if service == "" || !(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")) {
			return fmt.Errorf("%w: %q -> %q", ErrInvalidFallback, service, url)
		}
	}

	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// GetServiceName returns the service name for registration
func (c *Config) GetServiceName() string {
	if c.Discovery.ServiceName != "" {
		return c.Discovery.ServiceName
	}
	return c.App.Name
}
