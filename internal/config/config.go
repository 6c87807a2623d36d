package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
)

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the global ~/.rentchat/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	Remote         Remote `toml:"remote"`
	Sync           Sync   `toml:"sync"`
	Log            Log    `toml:"log"`
}

// Remote configures the portal REST client.
type Remote struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
	// RateLimit caps requests per second to the portal; 0 disables it.
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
}

// Sync configures polling.
type Sync struct {
	MessageInterval      Duration `toml:"message_interval"`
	ConversationInterval Duration `toml:"conversation_interval"`
	DegradedAfter        int      `toml:"degraded_after"`
}

// Log configures the daemon logger.
type Log struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Remote: Remote{
			BaseURL:   "http://localhost:8080/api",
			Timeout:   Duration(10 * time.Second),
			RateLimit: 5,
			Burst:     10,
		},
		Sync: Sync{
			MessageInterval:      Duration(5 * time.Second),
			ConversationInterval: Duration(15 * time.Second),
			DegradedAfter:        3,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads config from the given path. Fields missing from the file keep
// their defaults. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote.base_url %q: must be an http(s) URL", c.Remote.BaseURL)
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}
	if c.Remote.RateLimit < 0 || c.Remote.Burst < 0 {
		return fmt.Errorf("remote.rate_limit and remote.burst must not be negative")
	}
	if c.Sync.MessageInterval.Std() < 500*time.Millisecond {
		return fmt.Errorf("sync.message_interval %s: must be at least 500ms", c.Sync.MessageInterval.Std())
	}
	if c.Sync.ConversationInterval.Std() < 500*time.Millisecond {
		return fmt.Errorf("sync.conversation_interval %s: must be at least 500ms", c.Sync.ConversationInterval.Std())
	}
	if c.Sync.DegradedAfter < 1 {
		return fmt.Errorf("sync.degraded_after must be at least 1")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
