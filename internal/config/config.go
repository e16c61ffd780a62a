package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Defaults mirror the limits the deployed script tree was tuned for.
const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 5179
	DefaultTimeoutSec     = 300
	MaxTimeoutSec         = 3600
	DefaultMaxOutputChars = 200_000
	DefaultMaxUploadBytes = 25 * 1024 * 1024
)

// Limits bounds per-request resource use. Zero fields take defaults.
type Limits struct {
	DefaultTimeoutSec int   `toml:"default_timeout_sec"`
	MaxTimeoutSec     int   `toml:"max_timeout_sec"`
	MaxOutputChars    int   `toml:"max_output_chars"`
	MaxUploadBytes    int64 `toml:"max_upload_bytes"`
}

// Config is the process-wide server configuration. It is read once at
// startup and never mutated afterwards.
type Config struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	ExecRoot    string   `toml:"exec_root"`
	Interpreter string   `toml:"interpreter"`
	CorsOrigins []string `toml:"cors_origins"`
	Limits      Limits   `toml:"limits"`
}

// Load reads an optional TOML file, applies environment overrides, fills
// defaults and validates. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if err := loadToml(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("TOOLHOST_HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("TOOLHOST_PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	} else if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := strings.TrimSpace(os.Getenv("TOOLHOST_API_KEY")); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TOOLHOST_EXEC_ROOT")); v != "" {
		cfg.ExecRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("TOOLHOST_INTERPRETER")); v != "" {
		cfg.Interpreter = v
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if strings.TrimSpace(cfg.ExecRoot) == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.ExecRoot = cwd
		}
	}
	if abs, err := filepath.Abs(cfg.ExecRoot); err == nil {
		cfg.ExecRoot = abs
	}
	if cfg.Limits.DefaultTimeoutSec <= 0 {
		cfg.Limits.DefaultTimeoutSec = DefaultTimeoutSec
	}
	if cfg.Limits.MaxTimeoutSec <= 0 {
		cfg.Limits.MaxTimeoutSec = MaxTimeoutSec
	}
	if cfg.Limits.MaxOutputChars <= 0 {
		cfg.Limits.MaxOutputChars = DefaultMaxOutputChars
	}
	if cfg.Limits.MaxUploadBytes <= 0 {
		cfg.Limits.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

// Validate checks structural requirements; it does not touch the network.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("config missing host")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("config port out of range: %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.ExecRoot) == "" {
		return fmt.Errorf("config missing exec_root")
	}
	info, err := os.Stat(cfg.ExecRoot)
	if err != nil {
		return fmt.Errorf("exec_root not accessible (%s): %w", cfg.ExecRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exec_root is not a directory: %s", cfg.ExecRoot)
	}
	if cfg.Limits.DefaultTimeoutSec > cfg.Limits.MaxTimeoutSec {
		return fmt.Errorf("default timeout %ds exceeds max %ds",
			cfg.Limits.DefaultTimeoutSec, cfg.Limits.MaxTimeoutSec)
	}
	return nil
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
