package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr         = ":8080"
	DefaultSecretKey    = "dev-key-change-in-production"
	DefaultDatabasePath = "/data/wish-journal.db"
	DefaultContentPath  = "/content"
	DefaultPython       = "python3"

	SessionLifetime   = 7 * 24 * time.Hour
	KeepaliveInterval = 60 * time.Second
	WatchDebounce     = time.Second

	minProductionSecretLen = 16
)

// Config is the runtime configuration of the blog server.
type Config struct {
	Addr           string
	SecretKey      string
	DatabasePath   string
	ContentPath    string
	Production     bool
	Python         string
	ScriptTimeout  time.Duration
	SessionMaxAge  time.Duration
	WatchInterval  time.Duration
	MDNSEnable     bool
	MDNSInstance   string
	LogLevel       string
	ConfigFilePath string
}

// File is the optional YAML overlay named by WISHJOURNAL_CONFIG.
type File struct {
	Addr                 string `yaml:"addr"`
	SecretKey            string `yaml:"secret_key"`
	DatabasePath         string `yaml:"database_path"`
	ContentPath          string `yaml:"content_path"`
	Production           *bool  `yaml:"production"`
	Python               string `yaml:"python"`
	ScriptTimeoutSeconds int    `yaml:"script_timeout_seconds"`
	SessionMaxAgeSeconds int    `yaml:"session_max_age_seconds"`
	WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	MDNSEnable           *bool  `yaml:"mdns_enable"`
	MDNSInstance         string `yaml:"mdns_instance"`
	LogLevel             string `yaml:"log_level"`
}

func Defaults() Config {
	return Config{
		Addr:          DefaultAddr,
		SecretKey:     DefaultSecretKey,
		DatabasePath:  DefaultDatabasePath,
		ContentPath:   DefaultContentPath,
		Python:        DefaultPython,
		ScriptTimeout: 300 * time.Second,
		SessionMaxAge: time.Hour,
		WatchInterval: 5 * time.Second,
		LogLevel:      "info",
	}
}

// FromEnv builds the configuration from defaults, the optional YAML file and
// environment variables, in that order of precedence.
func FromEnv() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("WISHJOURNAL_CONFIG")); path != "" {
		f, err := Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = f.apply(cfg)
		cfg.ConfigFilePath = path
	}

	var errs []string
	setString(&cfg.Addr, "WISHJOURNAL_ADDR")
	setString(&cfg.SecretKey, "SECRET_KEY")
	setString(&cfg.DatabasePath, "DATABASE_PATH")
	setString(&cfg.ContentPath, "CONTENT_PATH")
	setString(&cfg.Python, "WISHJOURNAL_PYTHON")
	setString(&cfg.MDNSInstance, "WISHJOURNAL_MDNS_INSTANCE")
	setString(&cfg.LogLevel, "WISHJOURNAL_LOG_LEVEL")
	if v := strings.TrimSpace(os.Getenv("WISHJOURNAL_ENV")); v != "" {
		cfg.Production = strings.EqualFold(v, "production")
	}
	if v := strings.TrimSpace(os.Getenv("WISHJOURNAL_MDNS_ENABLE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("WISHJOURNAL_MDNS_ENABLE: %v", err))
		}
		cfg.MDNSEnable = b
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"WISHJOURNAL_SCRIPT_TIMEOUT", &cfg.ScriptTimeout},
		{"WISHJOURNAL_SESSION_MAX_AGE", &cfg.SessionMaxAge},
		{"WISHJOURNAL_WATCH_INTERVAL", &cfg.WatchInterval},
	} {
		if err := setSeconds(d.dst, d.key); err != nil {
			errs = append(errs, err.Error())
		}
	}

	errs = append(errs, cfg.Validate()...)
	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	return Parse(data, path)
}

func Parse(data []byte, source string) (File, error) {
	var f File

	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return f, fmt.Errorf("parse YAML in %q: %w", source, err)
	}
	return f, nil
}

func (f File) apply(cfg Config) Config {
	if v := strings.TrimSpace(f.Addr); v != "" {
		cfg.Addr = v
	}
	if v := f.SecretKey; v != "" {
		cfg.SecretKey = v
	}
	if v := strings.TrimSpace(f.DatabasePath); v != "" {
		cfg.DatabasePath = v
	}
	if v := strings.TrimSpace(f.ContentPath); v != "" {
		cfg.ContentPath = v
	}
	if f.Production != nil {
		cfg.Production = *f.Production
	}
	if v := strings.TrimSpace(f.Python); v != "" {
		cfg.Python = v
	}
	if f.ScriptTimeoutSeconds > 0 {
		cfg.ScriptTimeout = time.Duration(f.ScriptTimeoutSeconds) * time.Second
	}
	if f.SessionMaxAgeSeconds > 0 {
		cfg.SessionMaxAge = time.Duration(f.SessionMaxAgeSeconds) * time.Second
	}
	if f.WatchIntervalSeconds > 0 {
		cfg.WatchInterval = time.Duration(f.WatchIntervalSeconds) * time.Second
	}
	if f.MDNSEnable != nil {
		cfg.MDNSEnable = *f.MDNSEnable
	}
	if v := strings.TrimSpace(f.MDNSInstance); v != "" {
		cfg.MDNSInstance = v
	}
	if v := strings.TrimSpace(f.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}

func (cfg Config) Validate() []string {
	var errs []string

	if strings.TrimSpace(cfg.Addr) == "" {
		errs = append(errs, "addr is required")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "secret key is required")
	}
	if cfg.Production {
		if cfg.SecretKey == DefaultSecretKey {
			errs = append(errs, "secret key must be changed in production")
		} else if len(cfg.SecretKey) < minProductionSecretLen {
			errs = append(errs, fmt.Sprintf("secret key must be at least %d bytes in production", minProductionSecretLen))
		}
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		errs = append(errs, "database path is required")
	}
	if strings.TrimSpace(cfg.ContentPath) == "" {
		errs = append(errs, "content path is required")
	}
	if strings.TrimSpace(cfg.Python) == "" {
		errs = append(errs, "python interpreter is required")
	}
	if cfg.ScriptTimeout <= 0 {
		errs = append(errs, "script timeout must be positive")
	}
	if cfg.SessionMaxAge <= 0 {
		errs = append(errs, "session max age must be positive")
	}
	if cfg.WatchInterval <= 0 {
		errs = append(errs, "watch interval must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unsupported log level %q", cfg.LogLevel))
	}
	return errs
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setSeconds(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s must be a positive number of seconds, got %q", key, v)
	}
	*dst = time.Duration(n) * time.Second
	return nil
}
