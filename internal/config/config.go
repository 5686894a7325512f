package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	LLM      LLMConfig      `toml:"llm"`
	Exec     ExecConfig     `toml:"exec"`
	Observer ObserverConfig `toml:"observer"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Addr      string `toml:"addr"`
	AuthToken string `toml:"auth_token"`
}

type StoreConfig struct {
	// Backend selects the persistence layer: "memory", "file", "sqlite",
	// or "postgres".
	Backend     string `toml:"backend"`
	DataDir     string `toml:"data_dir"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresURL string `toml:"postgres_url"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	// Retries is the attempt count for transient provider failures.
	Retries int `toml:"retries"`
	// RPM caps planning requests per minute; 0 disables the limiter.
	RPM int `toml:"rpm"`
}

type ExecConfig struct {
	TimeoutMS      int `toml:"timeout_ms"`
	MaxResultBytes int `toml:"max_result_bytes"`
}

type ObserverConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	Service  string `toml:"service"`
}

type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Store: StoreConfig{
			Backend:    "memory",
			DataDir:    "mirage-data",
			SQLitePath: "mirage.db",
		},
		LLM:      LLMConfig{Provider: "anthropic", Retries: 3},
		Exec:     ExecConfig{TimeoutMS: 8000, MaxResultBytes: 32768},
		Observer: ObserverConfig{Service: "mirage"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "mirage.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("MIRAGE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MIRAGE_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("MIRAGE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("MIRAGE_DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv("MIRAGE_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("MIRAGE_POSTGRES_URL"); v != "" {
		cfg.Store.PostgresURL = v
	}
	if v := os.Getenv("MIRAGE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("MIRAGE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("MIRAGE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("MIRAGE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("MIRAGE_LLM_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.LLM.RPM = n
		}
	}
	if v := os.Getenv("MIRAGE_EXEC_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Exec.TimeoutMS = n
		}
	}
	if v := os.Getenv("MIRAGE_MAX_RESULT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Exec.MaxResultBytes = n
		}
	}
	if v := os.Getenv("MIRAGE_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}
	if v := os.Getenv("MIRAGE_OBSERVER_ENDPOINT"); v != "" {
		cfg.Observer.Endpoint = v
	}
	if v := os.Getenv("MIRAGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg
}

// Validate reports configuration errors that would only surface at runtime.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresURL == "" {
		return fmt.Errorf("postgres backend requires postgres_url")
	}
	if c.Exec.TimeoutMS <= 0 {
		return fmt.Errorf("exec timeout_ms must be positive")
	}
	return nil
}
