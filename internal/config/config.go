package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendAuto     = "auto"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
)

type Config struct {
	HTTPAddr string
	GinMode  string

	StoreBackend         string
	PostgresDSN          string
	PostgresMaxOpenConns int
	BoltPath             string

	KeyCacheTTLSeconds int
	RedisAddr          string
	RedisPassword      string
	RedisDB            int

	LogLevel  string
	LogFormat string
}

// fileConfig mirrors the TOML layout.
type fileConfig struct {
	HTTP struct {
		Addr    string `toml:"addr"`
		GinMode string `toml:"gin_mode"`
	} `toml:"http"`
	Store struct {
		Backend              string `toml:"backend"`
		PostgresDSN          string `toml:"postgres_dsn"`
		PostgresMaxOpenConns int    `toml:"postgres_max_open_conns"`
		BoltPath             string `toml:"bolt_path"`
	} `toml:"store"`
	Cache struct {
		TTLSeconds    int    `toml:"ttl_seconds"`
		RedisAddr     string `toml:"redis_addr"`
		RedisPassword string `toml:"redis_password"`
		RedisDB       int    `toml:"redis_db"`
	} `toml:"cache"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

func Defaults() Config {
	return Config{
		HTTPAddr:             ":8080",
		GinMode:              "release",
		StoreBackend:         BackendAuto,
		PostgresMaxOpenConns: 10,
		BoltPath:             "keygate.db",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load layers defaults, the TOML file named by KEYGATE_CONFIG (if any) and
// the environment, in that order of increasing precedence.
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("KEYGATE_CONFIG")); path != "" {
		var err error
		cfg, err = LoadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv is Load without a config file and without validation.
func FromEnv() Config {
	return applyEnv(Defaults())
}

// LoadFile overlays the TOML file at path onto base. Keys absent from the
// file keep their base values.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	var fc fileConfig
	if _, err := toml.Decode(string(data), &fc); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg := base
	setString(&cfg.HTTPAddr, fc.HTTP.Addr)
	setString(&cfg.GinMode, fc.HTTP.GinMode)
	setString(&cfg.StoreBackend, fc.Store.Backend)
	setString(&cfg.PostgresDSN, fc.Store.PostgresDSN)
	setInt(&cfg.PostgresMaxOpenConns, fc.Store.PostgresMaxOpenConns)
	setString(&cfg.BoltPath, fc.Store.BoltPath)
	setInt(&cfg.KeyCacheTTLSeconds, fc.Cache.TTLSeconds)
	setString(&cfg.RedisAddr, fc.Cache.RedisAddr)
	setString(&cfg.RedisPassword, fc.Cache.RedisPassword)
	setInt(&cfg.RedisDB, fc.Cache.RedisDB)
	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.LogFormat, fc.Log.Format)
	return cfg, nil
}

func applyEnv(cfg Config) Config {
	cfg.HTTPAddr = envDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.GinMode = envDefault("GIN_MODE", cfg.GinMode)
	cfg.StoreBackend = strings.ToLower(envDefault("STORE_BACKEND", cfg.StoreBackend))
	cfg.PostgresDSN = envDefault("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresMaxOpenConns = envIntDefault("POSTGRES_MAX_OPEN_CONNS", cfg.PostgresMaxOpenConns)
	cfg.BoltPath = envDefault("BOLT_PATH", cfg.BoltPath)
	cfg.KeyCacheTTLSeconds = envIntDefault("KEY_CACHE_TTL_SECONDS", cfg.KeyCacheTTLSeconds)
	cfg.RedisAddr = envDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = envIntDefault("REDIS_DB", cfg.RedisDB)
	cfg.LogLevel = envDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envDefault("LOG_FORMAT", cfg.LogFormat)
	return cfg
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendAuto, BackendBolt, BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported store backend %q", c.StoreBackend)
	}
	if c.StoreBackend == BackendBolt && c.BoltPath == "" {
		return fmt.Errorf("STORE_BACKEND=bolt requires BOLT_PATH")
	}
	switch c.GinMode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("unsupported GIN_MODE %q", c.GinMode)
	}
	if c.KeyCacheTTLSeconds < 0 {
		return fmt.Errorf("KEY_CACHE_TTL_SECONDS must not be negative")
	}
	return nil
}

// ResolvedBackend turns "auto" into a concrete backend: postgres when a DSN
// is configured, bolt otherwise.
func (c Config) ResolvedBackend() string {
	if c.StoreBackend != BackendAuto && c.StoreBackend != "" {
		return c.StoreBackend
	}
	if c.PostgresDSN != "" {
		return BackendPostgres
	}
	return BackendBolt
}

func (c Config) KeyCacheTTL() time.Duration {
	if c.KeyCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.KeyCacheTTLSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
