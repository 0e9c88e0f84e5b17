package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingVaultPassword = errors.New("VAULT_PASSWORD is required")
	ErrMissingDataDir       = errors.New("data directory could not be resolved; set MUPPETD_DATA_DIR")
	ErrInvalidKDFParams     = errors.New("VAULT_KDF_* values must be positive")
)

type Config struct {
	DataDir    string
	ListenAddr string

	HealthPath  string
	MetricsPath string

	VaultPassword string

	DB   DBConfig
	KDF  KDFConfig
	HTTP HTTPConfig
	Exa  ExaConfig
	Mem  MemoryConfig
	Log  LogConfig
}

type DBConfig struct {
	MaxConns int
}

type KDFConfig struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

type HTTPConfig struct {
	ClientTimeout time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
}

type ExaConfig struct {
	BaseURL string
}

type MemoryConfig struct {
	BaseURL string
	APIKey  string
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		DataDir:       mustEnv("MUPPETD_DATA_DIR", defaultDataDir()),
		ListenAddr:    mustEnv("LISTEN_ADDR", "127.0.0.1:8787"),
		HealthPath:    mustEnv("HEALTH_PATH", "/healthz"),
		MetricsPath:   mustEnv("METRICS_PATH", "/metrics"),
		VaultPassword: mustEnv("VAULT_PASSWORD", ""),
		DB: DBConfig{
			MaxConns: mustInt("DB_MAX_CONNS", 5),
		},
		KDF: KDFConfig{
			Time:      uint32(mustInt("VAULT_KDF_TIME", 10)),
			MemoryKiB: uint32(mustInt("VAULT_KDF_MEMORY_KIB", 10_000)),
			Threads:   uint8(mustInt("VAULT_KDF_THREADS", 4)),
		},
		HTTP: HTTPConfig{
			ClientTimeout: mustDuration("HTTP_TIMEOUT", 30*time.Second),
			MaxRetries:    mustInt("HTTP_MAX_RETRIES", 2),
			BackoffBase:   mustDuration("HTTP_BACKOFF_BASE", 400*time.Millisecond),
		},
		Exa: ExaConfig{
			BaseURL: mustEnv("EXA_BASE_URL", "https://api.exa.ai"),
		},
		Mem: MemoryConfig{
			BaseURL: mustEnv("MEMORY_BASE_URL", ""),
			APIKey:  mustEnv("MEMORY_API_KEY", ""),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.DataDir == "" {
		return nil, ErrMissingDataDir
	}
	if cfg.VaultPassword == "" {
		return nil, ErrMissingVaultPassword
	}
	if cfg.KDF.Time == 0 || cfg.KDF.MemoryKiB == 0 || cfg.KDF.Threads == 0 {
		return nil, ErrInvalidKDFParams
	}
	if cfg.DB.MaxConns < 1 {
		return nil, fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}

	return cfg, nil
}

func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "muppet.db")
}

func (c *Config) SaltPath() string {
	return filepath.Join(c.DataDir, "salt.txt")
}

func (c *Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, "vault.snapshot")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".local", "share", "muppet")
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
