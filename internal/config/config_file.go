package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Message        string `toml:"message"`
	Count          int    `toml:"count"`
	BufSize        int    `toml:"buf_size"`
	NullTerminate  *bool  `toml:"null_terminate"`
	ReadDelay      string `toml:"read_delay"`
	PollInterval   string `toml:"poll_interval"`
	Timeout        string `toml:"timeout"`
	ConnectRetries int    `toml:"connect_retries"`
	RetryBackoff   string `toml:"retry_backoff"`
	CertFile       string `toml:"cert_file"`
	KeyFile        string `toml:"key_file"`
	CAFile         string `toml:"ca_file"`
	ServerName     string `toml:"server_name"`
	AuthFile       string `toml:"auth_file"`
	RootDir        string `toml:"root_dir"`
	DataMode       string `toml:"data_mode"`
	Journal        string `toml:"journal"`
	Capture        string `toml:"capture"`
	LogLevel       string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.socklab/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".socklab", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("host", fc.Host, &cfg.Host)
	s.setString("message", fc.Message, &cfg.Message)
	s.setString("cert", fc.CertFile, &cfg.CertFile)
	s.setString("key", fc.KeyFile, &cfg.KeyFile)
	s.setString("ca", fc.CAFile, &cfg.CAFile)
	s.setString("server-name", fc.ServerName, &cfg.ServerName)
	s.setString("auth-file", fc.AuthFile, &cfg.AuthFile)
	s.setString("root", fc.RootDir, &cfg.RootDir)
	s.setString("mode", fc.DataMode, &cfg.DataMode)
	s.setString("journal", fc.Journal, &cfg.Journal)
	s.setString("capture", fc.Capture, &cfg.Capture)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("port", fc.Port, &cfg.Port)
	s.setInt("count", fc.Count, &cfg.Count)
	s.setInt("buf-size", fc.BufSize, &cfg.BufSize)
	s.setInt("retries", fc.ConnectRetries, &cfg.ConnectRetries)

	if err := s.setDuration("read-delay", fc.ReadDelay, &cfg.ReadDelay); err != nil {
		return err
	}
	if err := s.setDuration("poll-interval", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.Timeout, &cfg.Timeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-backoff", fc.RetryBackoff, &cfg.RetryBackoff); err != nil {
		return err
	}

	s.setBool("null", fc.NullTerminate, &cfg.NullTerminate)
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
