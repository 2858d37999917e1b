package sandbox

import "time"

// Config bounds a script execution.
type Config struct {
	// MaxExecutionTime is raced against every execution. Zero means DefaultMaxExecutionTime.
	MaxExecutionTime time.Duration `json:"maxExecutionTime" yaml:"maxExecutionTime"`

	// MaxMemoryMB is accepted for compatibility with script hosts that declare
	// it. The interpreter has no allocation ceiling, so it is not enforced.
	MaxMemoryMB int `json:"maxMemoryMB" yaml:"maxMemoryMB"`

	// AllowConsole captures console.* output into the execution logs. When
	// false the console methods exist but discard their arguments.
	AllowConsole bool `json:"allowConsole" yaml:"allowConsole"`

	// CustomAPIs are exposed to scripts as additional top-level names and as
	// properties of the context object. Values are converted with goja's
	// ToValue, so Go funcs become callable.
	CustomAPIs map[string]any `json:"-" yaml:"-"`
}

const (
	DefaultMaxExecutionTime = 5 * time.Second
	DefaultMaxMemoryMB      = 50

	// maxCallStackSize caps recursion depth inside a script.
	maxCallStackSize = 1024
)

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		MaxExecutionTime: DefaultMaxExecutionTime,
		MaxMemoryMB:      DefaultMaxMemoryMB,
		AllowConsole:     true,
	}
}

func (c Config) normalized() Config {
	if c.MaxExecutionTime <= 0 {
		c.MaxExecutionTime = DefaultMaxExecutionTime
	}
	if c.MaxMemoryMB <= 0 {
		c.MaxMemoryMB = DefaultMaxMemoryMB
	}
	if len(c.CustomAPIs) > 0 {
		apis := make(map[string]any, len(c.CustomAPIs))
		for k, v := range c.CustomAPIs {
			apis[k] = v
		}
		c.CustomAPIs = apis
	}
	return c
}
