package ota

import (
	"time"

	"github.com/juju/clock"
)

type ConfigOption func(*Config)

type Config struct {
	Port             int
	Timeout          time.Duration
	RecvBufferSize   int
	ProgressInterval time.Duration
	RestartDelay     time.Duration
	Clock            clock.Clock
}

func defaultConfig() *Config {
	return &Config{
		Port:             80,
		Timeout:          5 * time.Second,
		RecvBufferSize:   1024,
		ProgressInterval: 3 * time.Second,
		RestartDelay:     200 * time.Millisecond,
		Clock:            clock.WallClock,
	}
}

func WithPort(port int) ConfigOption {
	return func(cfg *Config) {
		if port > 0 {
			cfg.Port = port
		}
	}
}

func WithTimeout(timeout time.Duration) ConfigOption {
	return func(cfg *Config) {
		if timeout > 0 {
			cfg.Timeout = timeout
		}
	}
}

// WithRecvBufferSize sets the receive buffer, which must hold the whole
// response head.
func WithRecvBufferSize(size int) ConfigOption {
	return func(cfg *Config) {
		if size > 0 {
			cfg.RecvBufferSize = size
		}
	}
}

func WithProgressInterval(interval time.Duration) ConfigOption {
	return func(cfg *Config) {
		cfg.ProgressInterval = interval
	}
}

func WithRestartDelay(delay time.Duration) ConfigOption {
	return func(cfg *Config) {
		cfg.RestartDelay = delay
	}
}

func WithClock(clk clock.Clock) ConfigOption {
	return func(cfg *Config) {
		if clk != nil {
			cfg.Clock = clk
		}
	}
}
