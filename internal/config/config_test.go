package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Addr() != "127.0.0.1:65000" {
		t.Errorf("Addr() = %v, want 127.0.0.1:65000", cfg.Addr())
	}
	if cfg.Message != "Hello darkness, my old friend..." {
		t.Errorf("Message = %q", cfg.Message)
	}
	if cfg.Count != 10 {
		t.Errorf("Count = %v, want 10", cfg.Count)
	}
	if cfg.ReadDelay != time.Millisecond {
		t.Errorf("ReadDelay = %v, want 1ms", cfg.ReadDelay)
	}
	if cfg.DataMode != ModePassive {
		t.Errorf("DataMode = %v, want p", cfg.DataMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"ephemeral port", func(c *Config) { c.Port = 0 }, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"port too large", func(c *Config) { c.Port = 70000 }, true},
		{"negative count", func(c *Config) { c.Count = -1 }, true},
		{"negative buffer", func(c *Config) { c.BufSize = -4 }, true},
		{"negative delay", func(c *Config) { c.ReadDelay = -time.Second }, true},
		{"negative retries", func(c *Config) { c.ConnectRetries = -1 }, true},
		{"bad mode", func(c *Config) { c.DataMode = "x" }, true},
		{"active mode", func(c *Config) { c.DataMode = ModeActive }, false},
		{"cert without key", func(c *Config) { c.CertFile = "cert.pem" }, true},
		{"cert and key", func(c *Config) { c.CertFile, c.KeyFile = "cert.pem", "key.pem" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_BufSizeOr(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.BufSizeOr(TCPBufSize); got != 32 {
		t.Errorf("BufSizeOr() = %d, want 32", got)
	}
	cfg.BufSize = 7
	if got := cfg.BufSizeOr(TCPBufSize); got != 7 {
		t.Errorf("BufSizeOr() = %d, want 7", got)
	}
}

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	fc := FileConfig{
		Host:          "0.0.0.0",
		Port:          7000,
		Count:         3,
		NullTerminate: &trueVal,
		ReadDelay:     "5ms",
		DataMode:      ModeActive,
		Journal:       "/tmp/j.db",
	}
	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{"port": true}); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %v", cfg.Host)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %v, want %v (flag set)", cfg.Port, DefaultPort)
	}
	if cfg.Count != 3 || !cfg.NullTerminate || cfg.ReadDelay != 5*time.Millisecond {
		t.Errorf("count/null/delay = %v/%v/%v", cfg.Count, cfg.NullTerminate, cfg.ReadDelay)
	}
	if cfg.DataMode != ModeActive || cfg.Journal != "/tmp/j.db" {
		t.Errorf("mode/journal = %v/%v", cfg.DataMode, cfg.Journal)
	}
	// Untouched values keep their defaults.
	if cfg.Message != DefaultMessage {
		t.Errorf("Message = %q", cfg.Message)
	}
}

func TestApplyFileConfig_InvalidDuration(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyFileConfig(&cfg, FileConfig{PollInterval: "soon"}, map[string]bool{})
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
host = "192.168.1.5"
port = 6000
message = "ping"
timeout = "2s"
null_terminate = true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Fatal("FileExists() = false")
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig: %v", err)
	}
	if fc.Host != "192.168.1.5" || fc.Port != 6000 || fc.Message != "ping" || fc.Timeout != "2s" {
		t.Errorf("unexpected file config %+v", fc)
	}
	if fc.NullTerminate == nil || !*fc.NullTerminate {
		t.Errorf("NullTerminate = %v", fc.NullTerminate)
	}
}

func TestLoadFileConfig_Errors(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("port = [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		changed map[string]bool
		check   func(t *testing.T, c Config)
		wantErr bool
	}{
		{
			name: "applies values",
			env: map[string]string{
				"SOCKLAB_HOST":           "10.0.0.1",
				"SOCKLAB_PORT":           "6500",
				"SOCKLAB_POLL_INTERVAL":  "1s",
				"SOCKLAB_NULL_TERMINATE": "1",
				"SOCKLAB_DATA_MODE":      "a",
			},
			check: func(t *testing.T, c Config) {
				if c.Host != "10.0.0.1" || c.Port != 6500 || c.PollInterval != time.Second || !c.NullTerminate || c.DataMode != "a" {
					t.Errorf("unexpected config %+v", c)
				}
			},
		},
		{
			name:    "respects changed flags",
			env:     map[string]string{"SOCKLAB_HOST": "10.0.0.1"},
			changed: map[string]bool{"host": true},
			check: func(t *testing.T, c Config) {
				if c.Host != DefaultHost {
					t.Errorf("Host = %v, want %v", c.Host, DefaultHost)
				}
			},
		},
		{
			name:    "invalid int",
			env:     map[string]string{"SOCKLAB_COUNT": "many"},
			wantErr: true,
		},
		{
			name:    "invalid duration",
			env:     map[string]string{"SOCKLAB_TIMEOUT": "later"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			changed := tt.changed
			if changed == nil {
				changed = map[string]bool{}
			}
			cfg := DefaultConfig()
			err := ApplyEnvConfig(&cfg, changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// Precedence: flags > env > file > defaults.
func TestConfigPrecedence(t *testing.T) {
	fc := FileConfig{Host: "file-host", Message: "from file", Count: 4}
	t.Setenv("SOCKLAB_MESSAGE", "from env")
	t.Setenv("SOCKLAB_HOST", "env-host")

	changed := map[string]bool{"host": true}
	cfg := DefaultConfig()
	cfg.Host = "flag-host"

	if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
		t.Fatal(err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatal(err)
	}

	if cfg.Host != "flag-host" {
		t.Errorf("Host = %v, want flag-host", cfg.Host)
	}
	if cfg.Message != "from env" {
		t.Errorf("Message = %v, want from env", cfg.Message)
	}
	if cfg.Count != 4 {
		t.Errorf("Count = %v, want 4 from file", cfg.Count)
	}
}
