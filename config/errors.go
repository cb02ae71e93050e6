// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName       = errors.New("invalid application name")
	ErrInvalidEnvironment   = errors.New("invalid environment")
	ErrInvalidLogLevel      = errors.New("invalid log level")
	ErrInvalidLogFormat     = errors.New("invalid log format")
	ErrInvalidPort          = errors.New("invalid port number")
	ErrInvalidPath          = errors.New("invalid endpoint path")
	ErrInvalidWorkers       = errors.New("invalid worker counts")
	ErrInvalidQueueCapacity = errors.New("invalid queue capacity")
	ErrInvalidDispatchMode  = errors.New("invalid dispatch mode")
	ErrInvalidFallback      = errors.New("invalid remote fallback entry")
	ErrInvalidSpawn         = errors.New("invalid spawn entry")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrConfigValidateError = errors.New("configuration validation error")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
)
