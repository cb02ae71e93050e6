package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// TestDefaultConfig tests that the defaults are usable as is
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Default config validation failed: %v", err)
	}

	if config.Server.ListenAddr() != "0.0.0.0:8080" {
		t.Errorf("Expected listen address 0.0.0.0:8080, got %s", config.Server.ListenAddr())
	}
	if config.Actor.RestartLimit.Max != 3 || config.Actor.RestartLimit.Within != time.Minute {
		t.Errorf("Unexpected restart limit %+v", config.Actor.RestartLimit)
	}
	if config.GetServiceName() != "actorkit" {
		t.Errorf("Expected service name to default to the app name, got %s", config.GetServiceName())
	}

	config.Discovery.ServiceName = "player-service"
	if config.GetServiceName() != "player-service" {
		t.Errorf("Expected service name player-service, got %s", config.GetServiceName())
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"valid config", func(c *Config) {}, nil},
		{"invalid app name", func(c *Config) { c.App.Name = "" }, ErrInvalidAppName},
		{"invalid environment", func(c *Config) { c.App.Environment = "moon" }, ErrInvalidEnvironment},
		{"invalid log level", func(c *Config) { c.Log.Level = "trace" }, ErrInvalidLogLevel},
		{"invalid log format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidLogFormat},
		{"invalid port", func(c *Config) { c.Server.Port = 70000 }, ErrInvalidPort},
		{"invalid health path", func(c *Config) { c.Server.HealthPath = "health" }, ErrInvalidPath},
		{"max below core", func(c *Config) { c.Actor.CoreWorkers, c.Actor.MaxWorkers = 8, 4 }, ErrInvalidWorkers},
		{"negative workers", func(c *Config) { c.Actor.CoreWorkers = -1 }, ErrInvalidWorkers},
		{"empty queue", func(c *Config) { c.Actor.QueueCapacity = 0 }, ErrInvalidQueueCapacity},
		{"unknown dispatch mode", func(c *Config) { c.Actor.DispatchMode = "lifo" }, ErrInvalidDispatchMode},
		{"spawn without kind", func(c *Config) { c.Actor.Spawn = []SpawnConfig{{ID: "s1"}} }, ErrInvalidSpawn},
		{"bad fallback url", func(c *Config) { c.Remote.Fallback["svc"] = "localhost:8081" }, ErrInvalidFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Config.Validate() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Config.Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoader tests configuration loading
func TestLoader(t *testing.T) {
	loader := NewLoader()

	yamlContent := `
app:
  name: test-app
  version: "1.0.0"
  environment: development

log:
  level: debug
  format: json

actor:
  core_workers: 4
  max_workers: 8
  dispatch_mode: unordered
  ask_timeout: 2s
  spawn:
    - kind: StatsActor
      id: s1

remote:
  cache_ttl: 1m
  fallback:
    player-service: http://localhost:8081

discovery:
  strategy: random
  services:
    team-service:
      - localhost:8082

server:
  address: 127.0.0.1
  port: 9000
`
	yamlFile := writeFile(t, t.TempDir(), "test-config.yaml", yamlContent)

	config, err := loader.LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load YAML config: %v", err)
	}

	if config.App.Name != "test-app" {
		t.Errorf("Expected app name 'test-app', got '%s'", config.App.Name)
	}
	if config.Log.Level != LogLevelDebug || config.Log.Format != "json" {
		t.Errorf("Unexpected log config %+v", config.Log)
	}
	if config.Actor.CoreWorkers != 4 || config.Actor.MaxWorkers != 8 {
		t.Errorf("Unexpected worker counts %+v", config.Actor)
	}
	if config.Actor.AskTimeout != 2*time.Second {
		t.Errorf("Expected ask timeout 2s, got %v", config.Actor.AskTimeout)
	}
	if config.Actor.QueueCapacity != 1000 {
		t.Errorf("Expected default queue capacity to survive, got %d", config.Actor.QueueCapacity)
	}
	if len(config.Actor.Spawn) != 1 || config.Actor.Spawn[0] != (SpawnConfig{Kind: "StatsActor", ID: "s1"}) {
		t.Errorf("Unexpected spawn list %+v", config.Actor.Spawn)
	}
	if config.Remote.CacheTTL != time.Minute {
		t.Errorf("Expected cache ttl 1m, got %v", config.Remote.CacheTTL)
	}
	if config.Remote.Fallback["player-service"] != "http://localhost:8081" {
		t.Errorf("Unexpected fallback table %v", config.Remote.Fallback)
	}
	if got := config.Discovery.Services["team-service"]; len(got) != 1 || got[0] != "localhost:8082" {
		t.Errorf("Unexpected discovery services %v", config.Discovery.Services)
	}
	if config.Server.ListenAddr() != "127.0.0.1:9000" {
		t.Errorf("Expected 127.0.0.1:9000, got %s", config.Server.ListenAddr())
	}
	if config.Server.HealthPath != "/actuator/health" {
		t.Errorf("Expected default health path, got %s", config.Server.HealthPath)
	}
}

// TestLoaderJSON tests JSON configuration loading
func TestLoaderJSON(t *testing.T) {
	loader := NewLoader()

	jsonContent := `{
	"app": {
		"name": "json-test-app",
		"version": "2.0.0",
		"environment": "production"
	},
	"log": {
		"level": "warn",
		"format": "text",
		"output": "stderr"
	},
	"server": {
		"port": 9090
	}
}`
	jsonFile := writeFile(t, t.TempDir(), "test-config.json", jsonContent)

	config, err := loader.LoadFromFile(jsonFile)
	if err != nil {
		t.Fatalf("Failed to load JSON config: %v", err)
	}

	if config.App.Name != "json-test-app" {
		t.Errorf("Expected app name 'json-test-app', got '%s'", config.App.Name)
	}
	if !config.IsProduction() {
		t.Errorf("Expected env production, got %v", config.App.Environment)
	}
	if config.Log.Level != LogLevelWarn {
		t.Errorf("Expected log level warn, got %v", config.Log.Level)
	}
	if config.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", config.Server.Port)
	}
}

func TestLoaderErrors(t *testing.T) {
	loader := NewLoader()
	dir := t.TempDir()

	if _, err := loader.LoadFromFile(filepath.Join(dir, "missing.yaml")); !errors.Is(err, ErrConfigFileNotFound) {
		t.Errorf("Expected ErrConfigFileNotFound, got %v", err)
	}

	bad := writeFile(t, dir, "bad.yaml", "app: [unclosed")
	if _, err := loader.LoadFromFile(bad); !errors.Is(err, ErrConfigParseError) {
		t.Errorf("Expected ErrConfigParseError, got %v", err)
	}

	invalid := writeFile(t, dir, "invalid.yaml", "actor:\n  dispatch_mode: lifo\n")
	_, err := loader.LoadFromFile(invalid)
	if !errors.Is(err, ErrConfigValidateError) || !errors.Is(err, ErrInvalidDispatchMode) {
		t.Errorf("Expected a validation error, got %v", err)
	}

	if _, err := loader.LoadFromFile(writeFile(t, dir, "config.toml", "")); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

// TestEnvironmentOverrides tests environment variable overrides
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ACTORKIT_APP_NAME", "env-test-app")
	t.Setenv("ACTORKIT_SERVER_PORT", "7777")
	t.Setenv("ACTORKIT_LOG_LEVEL", "ERROR")
	t.Setenv("ACTORKIT_SERVICE_NAME", "stats-service")
	t.Setenv("ACTORKIT_ACTOR_CORE_WORKERS", "2")
	t.Setenv("ACTORKIT_ACTOR_DISPATCH_MODE", "Unordered")
	t.Setenv("ACTORKIT_ACTOR_ASK_TIMEOUT", "750ms")
	t.Setenv("ACTORKIT_REMOTE_FALLBACK_PLAYER_SERVICE", "http://players:8081")

	loader := NewLoader()

	yamlContent := `
app:
  name: base-app
  environment: development
server:
  port: 8080
`
	yamlFile := writeFile(t, t.TempDir(), "env-test-config.yaml", yamlContent)

	config, err := loader.LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.App.Name != "env-test-app" {
		t.Errorf("Expected app name 'env-test-app', got '%s'", config.App.Name)
	}
	if config.Server.Port != 7777 {
		t.Errorf("Expected port 7777, got %d", config.Server.Port)
	}
	if config.Log.Level != LogLevelError {
		t.Errorf("Expected log level error, got %v", config.Log.Level)
	}
	if config.GetServiceName() != "stats-service" {
		t.Errorf("Expected service name stats-service, got %s", config.GetServiceName())
	}
	if config.Actor.CoreWorkers != 2 || config.Actor.DispatchMode != "unordered" {
		t.Errorf("Unexpected actor overrides %+v", config.Actor)
	}
	if config.Actor.AskTimeout != 750*time.Millisecond {
		t.Errorf("Expected ask timeout 750ms, got %v", config.Actor.AskTimeout)
	}
	if config.Remote.Fallback["player-service"] != "http://players:8081" {
		t.Errorf("Expected fallback from environment, got %v", config.Remote.Fallback)
	}
}

func TestEnvironmentOverrideErrors(t *testing.T) {
	t.Setenv("ACTORKIT_SERVER_PORT", "eighty")

	_, err := NewLoader().SetSearchPaths([]string{t.TempDir()}).AutoLoad()
	if !errors.Is(err, ErrEnvironmentVarError) {
		t.Errorf("Expected ErrEnvironmentVarError, got %v", err)
	}
}

// TestAutoLoad tests automatic configuration discovery
func TestAutoLoad(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader().SetSearchPaths([]string{dir})

	// Nothing to find: defaults
	config, err := loader.AutoLoad()
	if err != nil {
		t.Fatalf("Failed to auto-load defaults: %v", err)
	}
	if config.App.Name != "actorkit" {
		t.Errorf("Expected default app name, got '%s'", config.App.Name)
	}

	writeFile(t, dir, "actorkit.yaml", `
app:
  name: auto-load-app
  environment: testing
`)

	config, err = loader.AutoLoad()
	if err != nil {
		t.Fatalf("Failed to auto-load config: %v", err)
	}
	if config.App.Name != "auto-load-app" {
		t.Errorf("Expected app name 'auto-load-app', got '%s'", config.App.Name)
	}

	// Load with an empty name behaves like AutoLoad
	config, err = loader.Load("")
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if config.App.Environment != EnvTesting {
		t.Errorf("Expected env testing, got %v", config.App.Environment)
	}
}

func TestClone(t *testing.T) {
	config := DefaultConfig()
	config.Remote.Fallback["a"] = "http://a:1"
	config.Discovery.Services["b"] = []string{"b:1"}

	clone := config.Clone()
	clone.Remote.Fallback["a"] = "http://changed:1"
	clone.Discovery.Services["b"][0] = "changed:1"

	if config.Remote.Fallback["a"] != "http://a:1" {
		t.Error("Clone shares the fallback table")
	}
	if config.Discovery.Services["b"][0] != "b:1" {
		t.Error("Clone shares the discovery table")
	}
}

// TestWatcher tests configuration file watching
func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	initialContent := `
app:
  name: watch-test-app
remote:
  fallback:
    player-service: http://localhost:8081
`
	configFile := writeFile(t, dir, "watch-test-config.yaml", initialContent)

	watcher, err := NewWatcher(configFile, NewLoader(), nil)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	watcher.SetDebounce(50 * time.Millisecond)

	if got := watcher.GetConfig().App.Name; got != "watch-test-app" {
		t.Errorf("Expected initial app name 'watch-test-app', got '%s'", got)
	}

	changeDetected := make(chan *Config, 1)
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		if oldConfig.Remote.Fallback["player-service"] == "http://localhost:8081" {
			changeDetected <- newConfig
		}
	})
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		panic("callbacks are isolated from each other")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watcher returned error: %v", err)
		}
	}()

	updatedContent := strings.Replace(initialContent, "localhost:8081", "players.internal:8081", 1)

	// Give the watcher time to register before writing, then keep writing
	// until the change is seen.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case newConfig := <-changeDetected:
			if got := newConfig.Remote.Fallback["player-service"]; got != "http://players.internal:8081" {
				t.Errorf("Expected updated fallback, got %s", got)
			}
			if got := watcher.GetConfig().Remote.Fallback["player-service"]; got != "http://players.internal:8081" {
				t.Errorf("Watcher did not keep the reloaded config, fallback is %s", got)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(configFile, []byte(updatedContent), 0644); err != nil {
				t.Fatalf("Failed to update config file: %v", err)
			}
		case <-deadline:
			t.Fatal("Configuration change was not detected within timeout")
		}
	}
}

func TestWatcherRejectsInvalidReload(t *testing.T) {
	dir := t.TempDir()
	configFile := writeFile(t, dir, "config.yaml", "app:\n  name: stable\n")

	watcher, err := NewWatcher(configFile, NewLoader(), nil)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}

	writeFile(t, dir, "config.yaml", "app:\n  name: \"\"\n")
	if err := watcher.Reload(); !errors.Is(err, ErrInvalidAppName) {
		t.Errorf("Expected ErrInvalidAppName, got %v", err)
	}
	if watcher.GetConfig().App.Name != "stable" {
		t.Errorf("Expected previous config to be kept, got %s", watcher.GetConfig().App.Name)
	}

	if _, err := NewWatcher(filepath.Join(dir, "config.ini"), nil, nil); err == nil {
		t.Error("Expected error for unsupported format")
	}
}
