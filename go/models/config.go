package models

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

type Config struct {
	NEnv   int `toml:"nenv" envconfig:"NENV"`
	NPages int `toml:"npages" envconfig:"NPAGES"`

	// bound on ipc send retries in the user library, 0 retries forever
	MaxSendRetries int `toml:"max_send_retries" envconfig:"MAX_SEND_RETRIES"`

	TraceSys  bool   `toml:"strace" envconfig:"STRACE"`
	TraceFile string `toml:"trace_file" envconfig:"TRACE_FILE"`
	Color     bool   `toml:"color" envconfig:"COLOR"`
	Strsize   int    `toml:"strsize" envconfig:"STRSIZE"`
	Verbose   bool   `toml:"verbose" envconfig:"VERBOSE"`

	LogLevel string `toml:"log_level" envconfig:"LOG_LEVEL"`
	LogDev   bool   `toml:"log_dev" envconfig:"LOG_DEV"`

	MetricsAddr string `toml:"metrics_addr" envconfig:"METRICS_ADDR"`

	Output io.Writer `toml:"-" ignored:"true"`
}

func DefaultConfig() *Config {
	return &Config{
		NEnv:     NENV,
		NPages:   2048,
		Strsize:  30,
		LogLevel: "info",
		Output:   os.Stderr,
	}
}

func (c *Config) Init() *Config {
	if c == nil {
		c = DefaultConfig()
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	return c
}

func (c *Config) Validate() error {
	if c.NEnv <= 0 || c.NEnv > MAXNENV || c.NEnv&(c.NEnv-1) != 0 {
		return errors.Errorf("nenv must be a power of two in [1, %d], got %d", MAXNENV, c.NEnv)
	}
	if c.NPages <= 0 {
		return errors.Errorf("npages must be positive, got %d", c.NPages)
	}
	if c.MaxSendRetries < 0 {
		return errors.Errorf("max_send_retries must not be negative, got %d", c.MaxSendRetries)
	}
	return nil
}
