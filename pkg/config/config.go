// Package config loads evqlite's YAML configuration, covering every
// tunable named in the arena, page manager, connection pool, async
// client, and query operation handler.
package config

import (
	"os"
	"strconv"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/nainya/evqlite/pkg/evqerr"
)

// ArenaConfig bounds the CST arena / page manager.
type ArenaConfig struct {
	DataDir            string `json:"dataDir"`
	PageCompressionMin int    `json:"pageCompressionMin"`
}

// PoolConfig mirrors pool.Config's tunables.
type PoolConfig struct {
	MaxConns        int           `json:"maxConns"`
	MaxConnsPerHost int           `json:"maxConnsPerHost"`
	MaxConnAge      time.Duration `json:"maxConnAge"`
	IOTimeout       time.Duration `json:"ioTimeout"`
}

// ClientConfig mirrors client.Config's tunables.
type ClientConfig struct {
	MaxConnsPerHost  int           `json:"maxConnsPerHost"`
	IOTimeout        time.Duration `json:"ioTimeout"`
	TolerateFailures bool          `json:"tolerateFailures"`
}

// QueryConfig mirrors query.Config's tunables.
type QueryConfig struct {
	ProgressRateLimit time.Duration `json:"progressRateLimit"`
	HeartbeatInterval time.Duration `json:"heartbeatInterval"`
}

// ServerConfig holds listener-level settings.
type ServerConfig struct {
	ListenAddr string `json:"listenAddr"`
	AdminAddr  string `json:"adminAddr"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

// Config is evqlite's full configuration surface.
type Config struct {
	Server ServerConfig `json:"server"`
	Arena  ArenaConfig  `json:"arena"`
	Pool   PoolConfig   `json:"pool"`
	Client ClientConfig `json:"client"`
	Query  QueryConfig  `json:"query"`
	Log    LogConfig    `json:"log"`
}

// Default returns a Config with conservative defaults, the starting
// point Load overlays a file and environment variables on top of.
func Default() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":4780", AdminAddr: ":4781"},
		Arena:  ArenaConfig{DataDir: "./data", PageCompressionMin: 4096},
		Pool:   PoolConfig{MaxConns: 256, MaxConnsPerHost: 8, MaxConnAge: 10 * time.Minute, IOTimeout: 5 * time.Second},
		Client: ClientConfig{MaxConnsPerHost: 4, IOTimeout: 5 * time.Second, TolerateFailures: true},
		Query:  QueryConfig{ProgressRateLimit: 200 * time.Millisecond, HeartbeatInterval: 15 * time.Second},
		Log:    LogConfig{Level: "info", Pretty: false},
	}
}

// Load reads path (YAML) over Default(), then applies EVQLITE_*
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, evqerr.Wrap(evqerr.KindIOError, "reading config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, evqerr.Wrap(evqerr.KindInvalidArgument, "parsing config file", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EVQLITE_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("EVQLITE_ADMIN_ADDR"); v != "" {
		cfg.Server.AdminAddr = v
	}
	if v := os.Getenv("EVQLITE_DATA_DIR"); v != "" {
		cfg.Arena.DataDir = v
	}
	if v := os.Getenv("EVQLITE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EVQLITE_POOL_MAX_CONNS_PER_HOST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxConnsPerHost = n
		}
	}
	if v := os.Getenv("EVQLITE_CLIENT_TOLERATE_FAILURES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Client.TolerateFailures = b
		}
	}
}
