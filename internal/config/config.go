// Package config loads relayhub's configuration from YAML. Env overrides take precedence.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the relay's tunables: session lifetime, lockout and trust
// windows, transfer limits, heartbeat cadence, and the listen port.
type Config struct {
	Port int `yaml:"port"`

	SessionTimeout       time.Duration `yaml:"session_timeout"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
	MaxSessionsPerUser   int           `yaml:"max_sessions_per_user"`
	MaxFailedAttempts    int           `yaml:"max_failed_attempts"`
	LockoutDuration      time.Duration `yaml:"lockout_duration"`
	TrustedDeviceExpiry  time.Duration `yaml:"trusted_device_expiry"`
	SecurityLogLimit     int           `yaml:"security_log_limit"`
	RecentFilesLimit     int           `yaml:"recent_files_limit"`
	MaxFileSize          int64         `yaml:"max_file_size"`
	AllowedMimePrefixes  []string      `yaml:"allowed_mime_prefixes"`
	AllowedMimeTypes     []string      `yaml:"allowed_mime_types"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	TransferGrace        time.Duration `yaml:"transfer_grace_period"`
	ChunkDetectionStrict bool          `yaml:"chunk_detection_strict"`
}

type rawConfig struct {
	Port                 int      `yaml:"port"`
	SessionTimeoutSec    int      `yaml:"session_timeout_seconds"`
	CleanupIntervalSec   int      `yaml:"cleanup_interval_seconds"`
	MaxSessionsPerUser   int      `yaml:"max_sessions_per_user"`
	MaxFailedAttempts    int      `yaml:"max_failed_attempts"`
	LockoutDurationSec   int      `yaml:"lockout_duration_seconds"`
	TrustedDeviceExpSec  int      `yaml:"trusted_device_expiry_seconds"`
	SecurityLogLimit     int      `yaml:"security_log_limit"`
	RecentFilesLimit     int      `yaml:"recent_files_limit"`
	MaxFileSize          int64    `yaml:"max_file_size"`
	AllowedMimePrefixes  []string `yaml:"allowed_mime_prefixes"`
	AllowedMimeTypes     []string `yaml:"allowed_mime_types"`
	HeartbeatIntervalSec int      `yaml:"heartbeat_interval_seconds"`
	TransferGraceSec     int      `yaml:"transfer_grace_period_seconds"`
	ChunkDetectionStrict bool     `yaml:"chunk_detection_strict"`
}

// Default returns relayhub's out-of-the-box configuration.
func Default() *Config {
	return &Config{
		Port:                 3000,
		SessionTimeout:       30 * time.Minute,
		CleanupInterval:      time.Minute,
		MaxSessionsPerUser:   5,
		MaxFailedAttempts:    5,
		LockoutDuration:      15 * time.Minute,
		TrustedDeviceExpiry:  90 * 24 * time.Hour,
		SecurityLogLimit:     200,
		RecentFilesLimit:     20,
		MaxFileSize:          100 * 1024 * 1024,
		AllowedMimePrefixes:  []string{"text/"},
		AllowedMimeTypes:     []string{"application/pdf", "application/zip", "image/png", "image/jpeg", "application/json"},
		HeartbeatInterval:    30 * time.Second,
		TransferGrace:        60 * time.Second,
		ChunkDetectionStrict: false,
	}
}

// Load reads config from XDG_CONFIG_HOME/relayhub/config.yaml, falling back
// to defaults when the file is absent, then applies the PORT environment
// override last so it always wins.
func Load() (*Config, error) {
	c := Default()

	path := filepath.Join(xdgConfigHome(), "relayhub", "config.yaml")
	b, err := os.ReadFile(path)
	if err == nil {
		var raw rawConfig
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return nil, err
		}
		applyRaw(c, &raw)
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}

	return c, nil
}

func applyRaw(c *Config, raw *rawConfig) {
	if raw.Port > 0 {
		c.Port = raw.Port
	}
	if raw.SessionTimeoutSec > 0 {
		c.SessionTimeout = time.Duration(raw.SessionTimeoutSec) * time.Second
	}
	if raw.CleanupIntervalSec > 0 {
		c.CleanupInterval = time.Duration(raw.CleanupIntervalSec) * time.Second
	}
	if raw.MaxSessionsPerUser > 0 {
		c.MaxSessionsPerUser = raw.MaxSessionsPerUser
	}
	if raw.MaxFailedAttempts > 0 {
		c.MaxFailedAttempts = raw.MaxFailedAttempts
	}
	if raw.LockoutDurationSec > 0 {
		c.LockoutDuration = time.Duration(raw.LockoutDurationSec) * time.Second
	}
	if raw.TrustedDeviceExpSec > 0 {
		c.TrustedDeviceExpiry = time.Duration(raw.TrustedDeviceExpSec) * time.Second
	}
	if raw.SecurityLogLimit > 0 {
		c.SecurityLogLimit = raw.SecurityLogLimit
	}
	if raw.RecentFilesLimit > 0 {
		c.RecentFilesLimit = raw.RecentFilesLimit
	}
	if raw.MaxFileSize > 0 {
		c.MaxFileSize = raw.MaxFileSize
	}
	if len(raw.AllowedMimePrefixes) > 0 {
		c.AllowedMimePrefixes = raw.AllowedMimePrefixes
	}
	if len(raw.AllowedMimeTypes) > 0 {
		c.AllowedMimeTypes = raw.AllowedMimeTypes
	}
	if raw.HeartbeatIntervalSec > 0 {
		c.HeartbeatInterval = time.Duration(raw.HeartbeatIntervalSec) * time.Second
	}
	if raw.TransferGraceSec > 0 {
		c.TransferGrace = time.Duration(raw.TransferGraceSec) * time.Second
	}
	c.ChunkDetectionStrict = raw.ChunkDetectionStrict
}

func xdgConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}
