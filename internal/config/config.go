// Package config holds socklab's shared configuration and its file,
// environment and flag layers.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Lab constants shared by every exercise.
const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 65000
	DefaultMessage = "Hello darkness, my old friend..."
	DefaultCount   = 10

	// DefaultServerName is the TLS name the transfer client expects.
	DefaultServerName = "projekt.psi"
)

// Per-exercise read or send buffer sizes.
const (
	TCPBufSize    = 32
	UDPBufSize    = 512
	FramedBufSize = 20
	StreamBufSize = 1024
)

// Data channel modes of the transfer service.
const (
	ModePassive = "p"
	ModeActive  = "a"
)

// Config holds CLI configuration for socklab.
type Config struct {
	Host string
	Port int

	Message       string
	Count         int
	BufSize       int
	NullTerminate bool

	ReadDelay      time.Duration
	PollInterval   time.Duration
	Timeout        time.Duration
	ConnectRetries int
	RetryBackoff   time.Duration

	CertFile   string
	KeyFile    string
	CAFile     string
	ServerName string
	AuthFile   string
	RootDir    string
	DataMode   string

	Journal string
	Capture string

	LogLevel string
}

// DefaultConfig returns a Config with the lab defaults.
func DefaultConfig() Config {
	return Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		Message:      DefaultMessage,
		Count:        DefaultCount,
		ReadDelay:    time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		Timeout:      5 * time.Second,
		RetryBackoff: 200 * time.Millisecond,
		ServerName:   DefaultServerName,
		AuthFile:     "auth.json",
		RootDir:      ".",
		DataMode:     ModePassive,
		LogLevel:     "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	if c.BufSize < 0 {
		return fmt.Errorf("buffer size must not be negative")
	}
	if c.ReadDelay < 0 || c.PollInterval < 0 || c.Timeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.ConnectRetries < 0 {
		return fmt.Errorf("connect retries must not be negative")
	}
	if c.DataMode != ModePassive && c.DataMode != ModeActive {
		return fmt.Errorf("data mode must be %q or %q, got %q", ModePassive, ModeActive, c.DataMode)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("cert and key must be set together")
	}
	return nil
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BufSizeOr returns BufSize, or def when BufSize is unset.
func (c Config) BufSizeOr(def int) int {
	if c.BufSize > 0 {
		return c.BufSize
	}
	return def
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if
// positive. Used for environment variables.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
