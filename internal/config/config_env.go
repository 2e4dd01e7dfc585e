package config

import "os"

// EnvPrefix prefixes every environment variable socklab reads.
const EnvPrefix = "SOCKLAB_"

// ApplyEnvConfig applies configuration from environment variables
// (SOCKLAB_*). It respects flags that have been explicitly set (changed
// map) and returns an error if a variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("host", env("HOST"), &cfg.Host)
	s.setString("message", env("MESSAGE"), &cfg.Message)
	s.setString("cert", env("CERT_FILE"), &cfg.CertFile)
	s.setString("key", env("KEY_FILE"), &cfg.KeyFile)
	s.setString("ca", env("CA_FILE"), &cfg.CAFile)
	s.setString("server-name", env("SERVER_NAME"), &cfg.ServerName)
	s.setString("auth-file", env("AUTH_FILE"), &cfg.AuthFile)
	s.setString("root", env("ROOT_DIR"), &cfg.RootDir)
	s.setString("mode", env("DATA_MODE"), &cfg.DataMode)
	s.setString("journal", env("JOURNAL"), &cfg.Journal)
	s.setString("capture", env("CAPTURE"), &cfg.Capture)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	for _, v := range []struct {
		flag, name string
		dst        *int
	}{
		{"port", "PORT", &cfg.Port},
		{"count", "COUNT", &cfg.Count},
		{"buf-size", "BUF_SIZE", &cfg.BufSize},
		{"retries", "CONNECT_RETRIES", &cfg.ConnectRetries},
	} {
		if err := s.setIntFromString(v.flag, env(v.name), v.dst); err != nil {
			return err
		}
	}

	if err := s.setDuration("read-delay", env("READ_DELAY"), &cfg.ReadDelay); err != nil {
		return err
	}
	if err := s.setDuration("poll-interval", env("POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", env("TIMEOUT"), &cfg.Timeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-backoff", env("RETRY_BACKOFF"), &cfg.RetryBackoff); err != nil {
		return err
	}

	s.setBoolFromString("null", env("NULL_TERMINATE"), &cfg.NullTerminate)
	return nil
}
