package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns the baseline configuration before file, env and flag
// overrides are layered on top.
func Default() *Config {
	var cfg Config
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.Server.MutationsAddr = "127.0.0.1:8081"
	cfg.Storage.DBPath = "./data"
	cfg.Logging.Level = "info"
	cfg.Security.RateLimit.RPS = 50
	cfg.Security.RateLimit.Burst = 100
	cfg.Retention.Cron = "0 3 * * *"
	cfg.Retention.MaxAge = Duration(30 * 24 * time.Hour)
	cfg.Ingest.Queue.Capacity = 64 * 1024
	cfg.Ingest.Queue.MaxPooledBufferBytes = 256 * 1024
	cfg.Ingest.Processor.Shards = 8
	return &cfg
}

// Load reads a YAML config file into a Config layered over Default().
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Addr returns the read-side listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

// Flags captures command line values and which of them were explicitly set.
type Flags struct {
	Addr          string
	MutationsAddr string
	DBPath        string
	ConfigPath    string
	Set           map[string]bool
}

// ParseCommandFlags parses the standard command line flags. Only flags the
// user actually passed are recorded in Set, so later merging can tell an
// explicit value apart from an omission.
func ParseCommandFlags(args []string) (*Flags, error) {
	fs := flag.NewFlagSet("cardstate", flag.ContinueOnError)
	addr := fs.String("addr", "", "read listen address (host:port)")
	maddr := fs.String("mutations-addr", "", "mutation listen address (host:port)")
	db := fs.String("db", "", "path to database directory")
	cfgPath := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f := &Flags{Addr: *addr, MutationsAddr: *maddr, DBPath: *db, ConfigPath: *cfgPath, Set: map[string]bool{}}
	fs.Visit(func(fl *flag.Flag) { f.Set[fl.Name] = true })
	return f, nil
}

// ResolveConfigPath picks the config file path from flag, env, or the
// default location. Returns "" when no config file is in play.
func ResolveConfigPath(f *Flags) string {
	if f != nil && f.Set["config"] {
		return f.ConfigPath
	}
	if v := os.Getenv("CARDSTATE_CONFIG"); v != "" {
		return v
	}
	if _, err := os.Stat("cardstate.yaml"); err == nil {
		return "cardstate.yaml"
	}
	return ""
}

// LoadEnvOverrides applies CARDSTATE_* environment variables on top of cfg.
func LoadEnvOverrides(cfg *Config) {
	if v := os.Getenv("CARDSTATE_ADDR"); v != "" {
		if host, port, err := net.SplitHostPort(v); err == nil {
			if p, perr := strconv.Atoi(port); perr == nil {
				cfg.Server.Address = host
				cfg.Server.Port = p
			}
		}
	}
	if v := os.Getenv("CARDSTATE_MUTATIONS_ADDR"); v != "" {
		cfg.Server.MutationsAddr = v
	}
	if v := os.Getenv("CARDSTATE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("CARDSTATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CARDSTATE_TLS_CERT"); v != "" {
		cfg.Server.TLS.CertFile = v
	}
	if v := os.Getenv("CARDSTATE_TLS_KEY"); v != "" {
		cfg.Server.TLS.KeyFile = v
	}
	if v := os.Getenv("CARDSTATE_CORS_ORIGINS"); v != "" {
		cfg.Security.CORS.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("CARDSTATE_IP_WHITELIST"); v != "" {
		cfg.Security.IPWhitelist = splitCSV(v)
	}
	if v := os.Getenv("CARDSTATE_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("CARDSTATE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("CARDSTATE_API_BACKEND_KEYS"); v != "" {
		cfg.Security.APIKeys.Backend = splitCSV(v)
	}
	if v := os.Getenv("CARDSTATE_API_FRONTEND_KEYS"); v != "" {
		cfg.Security.APIKeys.Frontend = splitCSV(v)
	}
	if v := os.Getenv("CARDSTATE_API_ADMIN_KEYS"); v != "" {
		cfg.Security.APIKeys.Admin = splitCSV(v)
	}
	if v := os.Getenv("CARDSTATE_RETENTION_ENABLED"); v != "" {
		cfg.Retention.Enabled = parseBool(v)
	}
	if v := os.Getenv("CARDSTATE_RETENTION_CRON"); v != "" {
		cfg.Retention.Cron = v
	}
	if v := os.Getenv("CARDSTATE_RETENTION_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention.MaxAge = Duration(d)
		}
	}
	if v := os.Getenv("CARDSTATE_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ingest.Queue.Capacity = n
		}
	}
	if v := os.Getenv("CARDSTATE_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ingest.Processor.Shards = n
		}
	}
}

// LoadEffective builds the running configuration: defaults, then the config
// file (if any), then environment variables, then explicit flags.
func LoadEffective(f *Flags) (*Config, error) {
	cfg := Default()
	if path := ResolveConfigPath(f); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	LoadEnvOverrides(cfg)
	if f != nil {
		if f.Set["addr"] {
			host, port, err := net.SplitHostPort(f.Addr)
			if err != nil {
				return nil, fmt.Errorf("invalid -addr %q: %w", f.Addr, err)
			}
			p, err := strconv.Atoi(port)
			if err != nil {
				return nil, fmt.Errorf("invalid -addr port %q", port)
			}
			cfg.Server.Address = host
			cfg.Server.Port = p
		}
		if f.Set["mutations-addr"] {
			cfg.Server.MutationsAddr = f.MutationsAddr
		}
		if f.Set["db"] {
			cfg.Storage.DBPath = f.DBPath
		}
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// RuntimeConfig holds the effective config for concurrent readers after
// startup. Handlers consult it instead of threading *Config everywhere.
type RuntimeConfig struct {
	mu  sync.RWMutex
	cfg *Config
}

var runtime RuntimeConfig

// SetRuntime installs the effective configuration at startup.
func SetRuntime(cfg *Config) {
	runtime.mu.Lock()
	runtime.cfg = cfg
	runtime.mu.Unlock()
}

// GetRuntime returns the installed configuration, or nil before startup.
func GetRuntime() *Config {
	runtime.mu.RLock()
	defer runtime.mu.RUnlock()
	return runtime.cfg
}
