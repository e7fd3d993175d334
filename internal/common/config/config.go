// Package config provides configuration management for Thalassa.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the Thalassa daemon.
type Config struct {
	NATS     NATSConfig     `mapstructure:"nats"`
	Projects ProjectsConfig `mapstructure:"projects"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Store    StoreConfig    `mapstructure:"store"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Subject       string `mapstructure:"subject"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// ProjectsConfig holds the project runtime configuration.
type ProjectsConfig struct {
	// Root is the directory containing one subdirectory per project.
	Root string `mapstructure:"root"`
	// AgentCommand is the command spawned inside a project to start the agent.
	AgentCommand string `mapstructure:"agentCommand"`
	// AgentCwd is the working directory reported to the agent in session/new.
	// The project name is appended.
	AgentCwd string `mapstructure:"agentCwd"`
}

// BridgeConfig holds agent session bridge configuration.
type BridgeConfig struct {
	// CallTimeout bounds a single protocol call in seconds. 0 disables the timeout.
	CallTimeout int `mapstructure:"callTimeout"`
	// SingleFlight serializes prompt turns per agent session instead of
	// relying on the agent to do so.
	SingleFlight bool `mapstructure:"singleFlight"`
}

// StoreConfig holds the message store configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// GatewayConfig holds the chat gateway HTTP server configuration.
type GatewayConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// CallTimeoutDuration returns the protocol call timeout as a time.Duration.
func (b *BridgeConfig) CallTimeoutDuration() time.Duration {
	return time.Duration(b.CallTimeout) * time.Second
}

// Load reads configuration from default locations.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("THALASSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("projects.agentCommand", "THALASSA_PROJECTS_AGENT_COMMAND")
	_ = v.BindEnv("projects.agentCwd", "THALASSA_PROJECTS_AGENT_CWD")
	_ = v.BindEnv("bridge.callTimeout", "THALASSA_BRIDGE_CALL_TIMEOUT")
	_ = v.BindEnv("bridge.singleFlight", "THALASSA_BRIDGE_SINGLE_FLIGHT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/thalassa/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 1 and 65535")
	}

	if cfg.Projects.Root == "" {
		errs = append(errs, "projects.root must be set")
	}

	if cfg.Bridge.CallTimeout < 0 {
		errs = append(errs, "bridge.callTimeout must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "thalassa.events")
	v.SetDefault("nats.clientId", "thalassa-daemon")
	v.SetDefault("nats.maxReconnects", 10)

	// Project runtime defaults
	v.SetDefault("projects.root", home+"/projects")
	v.SetDefault("projects.agentCommand", "opencode acp")
	v.SetDefault("projects.agentCwd", "/home/devuser/projects")

	// Bridge defaults
	v.SetDefault("bridge.callTimeout", 0) // no timeout unless configured
	v.SetDefault("bridge.singleFlight", false)

	// Store defaults
	v.SetDefault("store.path", home+"/.thalassa/thalassa.db")

	// Gateway defaults
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	if env := os.Getenv("THALASSA_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	return "text"
}
