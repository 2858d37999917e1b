package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/liamcoop/formrules/sandbox"
)

var envKeys = []string{
	"PORT", "FORMRULES_PORT", "FORMRULES_DEFINITIONS", "LOG_LEVEL", "FORMRULES_API_BASE_URL",
	"FORMRULES_SCRIPT_TIMEOUT", "FORMRULES_ALLOW_CONSOLE", "FORMRULES_AWAIT_CONDITIONS", "FORMRULES_SCRIPT_RPS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "formrules.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoad_Defaults verifies an empty path yields the defaults
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if got := cfg.SandboxConfig(); !reflect.DeepEqual(got, sandbox.DefaultConfig()) {
		t.Errorf("SandboxConfig() = %+v, want %+v", got, sandbox.DefaultConfig())
	}
	if got := cfg.CacheConfig(); got != sandbox.DefaultCacheConfig() {
		t.Errorf("CacheConfig() = %+v, want %+v", got, sandbox.DefaultCacheConfig())
	}
	if cfg.EngineConfig(sandbox.HostContext{}).AwaitCustomConditions {
		t.Error("custom conditions should not be awaited by default")
	}
}

// TestLoad_File verifies YAML values override defaults
func TestLoad_File(t *testing.T) {
	clearEnv(t)
	defs := t.TempDir()
	path := writeConfig(t, `
port: "9090"
definitions: `+defs+`
logLevel: debug
script:
  timeout: 250ms
  maxMemoryMB: 64
  allowConsole: false
rules:
  awaitCustomConditions: true
cache:
  ttl: 1m
  maxEntries: 10
host:
  apiBaseURL: http://localhost:9999
rateLimit:
  rps: 2.5
  burst: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := sandbox.Config{MaxExecutionTime: 250 * time.Millisecond, MaxMemoryMB: 64, AllowConsole: false}
	if got := cfg.SandboxConfig(); got.MaxExecutionTime != want.MaxExecutionTime || got.MaxMemoryMB != want.MaxMemoryMB || got.AllowConsole {
		t.Errorf("SandboxConfig() = %+v, want %+v", got, want)
	}
	if got := cfg.CacheConfig(); got.TTL != time.Minute || got.MaxEntries != 10 {
		t.Errorf("CacheConfig() = %+v", got)
	}
	if !cfg.EngineConfig(sandbox.HostContext{}).AwaitCustomConditions {
		t.Error("expected awaitCustomConditions from file")
	}
	if cfg.Port != "9090" || cfg.DefinitionsDir != defs || cfg.LogLevel != "debug" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Host.APIBaseURL != "http://localhost:9999" {
		t.Errorf("APIBaseURL = %q", cfg.Host.APIBaseURL)
	}
	if cfg.RateLimit != (RateLimit{RPS: 2.5, Burst: 5}) {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
}

// TestLoad_EnvOverrides verifies environment variables win over the file
func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "port: \"9090\"\nscript:\n  timeout: 1s\n")

	t.Setenv("PORT", "7000")
	t.Setenv("FORMRULES_PORT", "7001")
	t.Setenv("FORMRULES_SCRIPT_TIMEOUT", "1500")
	t.Setenv("FORMRULES_ALLOW_CONSOLE", "false")
	t.Setenv("FORMRULES_AWAIT_CONDITIONS", "true")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("FORMRULES_SCRIPT_RPS", "0")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "7001" {
		t.Errorf("Port = %q, want FORMRULES_PORT to win", cfg.Port)
	}
	if cfg.Script.Timeout != 1500*time.Millisecond {
		t.Errorf("Timeout = %s, want 1.5s", cfg.Script.Timeout)
	}
	if cfg.SandboxConfig().AllowConsole {
		t.Error("expected console disabled by env")
	}
	if !cfg.Rules.AwaitCustomConditions {
		t.Error("expected awaited conditions from env")
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.RateLimit.RPS != 0 {
		t.Errorf("RateLimit.RPS = %g, want limiting disabled", cfg.RateLimit.RPS)
	}
}

// TestLoad_Invalid verifies bad values are rejected with a descriptive error
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", "port: abc\n", nil, "port"},
		{"port range", "port: \"70000\"\n", nil, "port"},
		{"bad level", "logLevel: loud\n", nil, "log level"},
		{"zero timeout", "script:\n  timeout: 0s\n", nil, "timeout"},
		{"negative memory", "script:\n  maxMemoryMB: -1\n", nil, "memory"},
		{"negative cache", "cache:\n  maxEntries: -5\n", nil, "cache"},
		{"missing definitions", "definitions: /does/not/exist\n", nil, "definitions"},
		{"env timeout", "", map[string]string{"FORMRULES_SCRIPT_TIMEOUT": "soon"}, "FORMRULES_SCRIPT_TIMEOUT"},
		{"env console", "", map[string]string{"FORMRULES_ALLOW_CONSOLE": "maybe"}, "FORMRULES_ALLOW_CONSOLE"},
		{"negative rps", "rateLimit:\n  rps: -1\n", nil, "rate limit"},
		{"rps without burst", "rateLimit:\n  rps: 5\n  burst: 0\n", nil, "burst"},
		{"env rps", "", map[string]string{"FORMRULES_SCRIPT_RPS": "fast"}, "FORMRULES_SCRIPT_RPS"},
		{"bad yaml", "script: [", nil, "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}

			_, err := Load(path)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

// TestLoad_MissingFile verifies an unreadable config path is an error
func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}
