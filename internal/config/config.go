// Package config provides Viper-based configuration loading for the chat server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// ListenConfig holds settings for the framed TCP listener.
type ListenConfig struct {
	// Host is the bind address for the listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-frame read timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-frame write timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxFrameSize is the largest accepted frame payload in bytes.
	MaxFrameSize int `mapstructure:"max_frame_size"`
	// SendQueueDepth is the per-connection outbound queue length.
	SendQueueDepth int `mapstructure:"send_queue_depth"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// ChatConfig holds request processing and content limits.
type ChatConfig struct {
	// Shards is the number of request worker goroutines.
	Shards int `mapstructure:"shards"`
	// ShardQueueDepth is the per-shard task queue length.
	ShardQueueDepth int `mapstructure:"shard_queue_depth"`
	// MaxUsernameLength bounds account names in bytes.
	MaxUsernameLength int `mapstructure:"max_username_length"`
	// MaxRoomNameLength bounds room names in bytes.
	MaxRoomNameLength int `mapstructure:"max_room_name_length"`
	// MaxMessageLength bounds chat messages in bytes.
	MaxMessageLength int `mapstructure:"max_message_length"`
	// MaxHashLength bounds client-supplied salts and credential hashes.
	MaxHashLength int `mapstructure:"max_hash_length"`
	// HistoryDefault is the message count returned when a history request
	// carries no limit.
	HistoryDefault int `mapstructure:"history_default"`
	// HistoryMax caps client-requested history limits.
	HistoryMax int `mapstructure:"history_max"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Listen   ListenConfig   `mapstructure:"listen"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateListen(c.Listen); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateChat(c.Chat); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateListen(l ListenConfig) error {
	var errs []string
	if l.Port < 1 || l.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be 1-65535, got %d", l.Port))
	}
	if l.ReadTimeout < 0 {
		errs = append(errs, "listen.read_timeout must not be negative")
	}
	if l.WriteTimeout < 0 {
		errs = append(errs, "listen.write_timeout must not be negative")
	}
	if l.MaxFrameSize < 1 {
		errs = append(errs, fmt.Sprintf("listen.max_frame_size must be >= 1, got %d", l.MaxFrameSize))
	}
	if l.SendQueueDepth < 1 {
		errs = append(errs, fmt.Sprintf("listen.send_queue_depth must be >= 1, got %d", l.SendQueueDepth))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateChat(c ChatConfig) error {
	var errs []string
	if c.Shards < 1 {
		errs = append(errs, fmt.Sprintf("chat.shards must be >= 1, got %d", c.Shards))
	}
	if c.ShardQueueDepth < 1 {
		errs = append(errs, fmt.Sprintf("chat.shard_queue_depth must be >= 1, got %d", c.ShardQueueDepth))
	}
	for _, bound := range []struct {
		name  string
		value int
	}{
		{"chat.max_username_length", c.MaxUsernameLength},
		{"chat.max_room_name_length", c.MaxRoomNameLength},
		{"chat.max_message_length", c.MaxMessageLength},
		{"chat.max_hash_length", c.MaxHashLength},
		{"chat.history_default", c.HistoryDefault},
		{"chat.history_max", c.HistoryMax},
	} {
		if bound.value < 1 {
			errs = append(errs, fmt.Sprintf("%s must be >= 1, got %d", bound.name, bound.value))
		}
	}
	if c.HistoryDefault > c.HistoryMax {
		errs = append(errs, "chat.history_default must not exceed chat.history_max")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with CHATD_ prefix
	v.SetEnvPrefix("CHATD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chat")
	v.SetDefault("database.password", "chat")
	v.SetDefault("database.name", "chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("listen.host", "0.0.0.0")
	v.SetDefault("listen.port", 4900)
	v.SetDefault("listen.read_timeout", "5m")
	v.SetDefault("listen.write_timeout", "30s")
	v.SetDefault("listen.max_frame_size", 65536)
	v.SetDefault("listen.send_queue_depth", 64)

	v.SetDefault("chat.shards", 8)
	v.SetDefault("chat.shard_queue_depth", 128)
	v.SetDefault("chat.max_username_length", 64)
	v.SetDefault("chat.max_room_name_length", 128)
	v.SetDefault("chat.max_message_length", 1024)
	v.SetDefault("chat.max_hash_length", 128)
	v.SetDefault("chat.history_default", 50)
	v.SetDefault("chat.history_max", 200)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
