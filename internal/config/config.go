// Package config loads service settings from a YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/formrules/internal/logger"
	"github.com/liamcoop/formrules/rules"
	"github.com/liamcoop/formrules/sandbox"
)

// Config defines runtime settings for the formrules service and CLI.
type Config struct {
	Port           string       `yaml:"port"`
	DefinitionsDir string       `yaml:"definitions"`
	LogLevel       string       `yaml:"logLevel"`
	Script         ScriptConfig `yaml:"script"`
	Rules          RulesConfig  `yaml:"rules"`
	Cache          CacheConfig  `yaml:"cache"`
	Host           HostConfig   `yaml:"host"`
	RateLimit      RateLimit    `yaml:"rateLimit"`
}

// ScriptConfig maps onto sandbox.Config.
type ScriptConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxMemoryMB  int           `yaml:"maxMemoryMB"`
	AllowConsole *bool         `yaml:"allowConsole"`
}

// RulesConfig maps onto rules.EngineConfig.
type RulesConfig struct {
	AwaitCustomConditions bool `yaml:"awaitCustomConditions"`
}

// CacheConfig maps onto sandbox.CacheConfig.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"maxEntries"`
}

// HostConfig configures the in-memory script host.
type HostConfig struct {
	APIBaseURL string `yaml:"apiBaseURL"`
}

// RateLimit bounds script requests per client on the HTTP API. A zero RPS
// disables limiting.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns the settings used when no file or environment overrides them.
func Default() *Config {
	allow := true
	return &Config{
		Port:     "8080",
		LogLevel: "info",
		Script: ScriptConfig{
			Timeout:      sandbox.DefaultMaxExecutionTime,
			MaxMemoryMB:  sandbox.DefaultMaxMemoryMB,
			AllowConsole: &allow,
		},
		Cache: CacheConfig{
			MaxEntries: sandbox.DefaultCacheConfig().MaxEntries,
		},
		RateLimit: RateLimit{RPS: 10, Burst: 20},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigPath returns FORMRULES_CONFIG, or "" when unset.
func DefaultConfigPath() string {
	return os.Getenv("FORMRULES_CONFIG")
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Port = port
	}
	if port := os.Getenv("FORMRULES_PORT"); port != "" {
		c.Port = port
	}
	if dir := os.Getenv("FORMRULES_DEFINITIONS"); dir != "" {
		c.DefinitionsDir = dir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if base := os.Getenv("FORMRULES_API_BASE_URL"); base != "" {
		c.Host.APIBaseURL = base
	}

	if raw := os.Getenv("FORMRULES_SCRIPT_TIMEOUT"); raw != "" {
		timeout, err := parseTimeout(raw)
		if err != nil {
			return fmt.Errorf("invalid FORMRULES_SCRIPT_TIMEOUT: %w", err)
		}
		c.Script.Timeout = timeout
	}
	if raw := os.Getenv("FORMRULES_ALLOW_CONSOLE"); raw != "" {
		allow, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid FORMRULES_ALLOW_CONSOLE: %w", err)
		}
		c.Script.AllowConsole = &allow
	}
	if raw := os.Getenv("FORMRULES_SCRIPT_RPS"); raw != "" {
		rps, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid FORMRULES_SCRIPT_RPS: %w", err)
		}
		c.RateLimit.RPS = rps
	}
	if raw := os.Getenv("FORMRULES_AWAIT_CONDITIONS"); raw != "" {
		await, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid FORMRULES_AWAIT_CONDITIONS: %w", err)
		}
		c.Rules.AwaitCustomConditions = await
	}
	return nil
}

// parseTimeout accepts a Go duration ("250ms", "2s") or a bare number of
// milliseconds.
func parseTimeout(raw string) (time.Duration, error) {
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(raw)
}

// Validate checks the settings for values no component accepts.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535, got %q", c.Port)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Script.Timeout <= 0 {
		return fmt.Errorf("script timeout must be positive, got %s", c.Script.Timeout)
	}
	if c.Script.MaxMemoryMB < 0 {
		return fmt.Errorf("script memory limit cannot be negative, got %d", c.Script.MaxMemoryMB)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative, got %s", c.Cache.TTL)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache size cannot be negative, got %d", c.Cache.MaxEntries)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %g rps burst %d", c.RateLimit.RPS, c.RateLimit.Burst)
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate limit burst must be positive when rps is set")
	}
	if c.DefinitionsDir != "" {
		info, err := os.Stat(c.DefinitionsDir)
		if err != nil {
			return fmt.Errorf("definitions directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("definitions path is not a directory: %s", c.DefinitionsDir)
		}
	}
	return nil
}

// SandboxConfig returns the script sandbox settings.
func (c *Config) SandboxConfig() sandbox.Config {
	cfg := sandbox.Config{
		MaxExecutionTime: c.Script.Timeout,
		MaxMemoryMB:      c.Script.MaxMemoryMB,
		AllowConsole:     true,
	}
	if c.Script.AllowConsole != nil {
		cfg.AllowConsole = *c.Script.AllowConsole
	}
	return cfg
}

// CacheConfig returns the compiled program cache settings.
func (c *Config) CacheConfig() sandbox.CacheConfig {
	return sandbox.CacheConfig{TTL: c.Cache.TTL, MaxEntries: c.Cache.MaxEntries}
}

// EngineConfig returns the rule engine settings with host attached.
func (c *Config) EngineConfig(host sandbox.HostContext) rules.EngineConfig {
	return rules.EngineConfig{
		Host:                  host,
		AwaitCustomConditions: c.Rules.AwaitCustomConditions,
	}
}
