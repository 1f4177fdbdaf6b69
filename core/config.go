package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultPollIntervalMS     = 5000
	minPollIntervalMS         = 500
	defaultPollMaxAttempts    = 120
	defaultPollTimeoutSeconds = 5
	minPollTimeoutSeconds     = 1
	maxPollTimeoutSeconds     = 60
)

// PollConfig bounds the status-poll loop. IntervalMS is the inter-attempt
// sleep, MaxAttempts the attempt budget, TimeoutSeconds the per-remote-read
// deadline passed to the result endpoint.
type PollConfig struct {
	IntervalMS     int `koanf:"interval_ms" mapstructure:"interval_ms"`
	MaxAttempts    int `koanf:"max_attempts" mapstructure:"max_attempts"`
	TimeoutSeconds int `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// Normalize applies defaults and the documented floors/clamps: interval
// floors at 500ms, timeout clamps to [1,60] seconds.
func (c PollConfig) Normalize() PollConfig {
	out := c
	if out.IntervalMS <= 0 {
		out.IntervalMS = defaultPollIntervalMS
	}
	if out.IntervalMS < minPollIntervalMS {
		out.IntervalMS = minPollIntervalMS
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = defaultPollMaxAttempts
	}
	if out.TimeoutSeconds <= 0 {
		out.TimeoutSeconds = defaultPollTimeoutSeconds
	}
	if out.TimeoutSeconds < minPollTimeoutSeconds {
		out.TimeoutSeconds = minPollTimeoutSeconds
	}
	if out.TimeoutSeconds > maxPollTimeoutSeconds {
		out.TimeoutSeconds = maxPollTimeoutSeconds
	}
	return out
}

func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.Normalize().IntervalMS) * time.Millisecond
}

func (c PollConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Normalize().TimeoutSeconds) * time.Second
}

type Config struct {
	ServiceName string     `koanf:"service_name" mapstructure:"service_name"`
	Poll        PollConfig `koanf:"poll" mapstructure:"poll"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "dispatch",
		Poll: PollConfig{
			IntervalMS:     defaultPollIntervalMS,
			MaxAttempts:    defaultPollMaxAttempts,
			TimeoutSeconds: defaultPollTimeoutSeconds,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Poll.IntervalMS < 0 {
		return fmt.Errorf("core: poll interval_ms must not be negative")
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("core: poll max_attempts must not be negative")
	}
	if c.Poll.TimeoutSeconds < 0 {
		return fmt.Errorf("core: poll timeout_seconds must not be negative")
	}
	return nil
}
