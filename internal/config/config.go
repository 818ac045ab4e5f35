// Package config loads dbconn settings from ~/.dbconn/config.yaml with
// DBCONN_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// MCP transports.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Config holds all runtime settings.
type Config struct {
	Backend       string            `yaml:"backend"`
	DBPath        string            `yaml:"db_path"`
	PostgresURL   string            `yaml:"postgres_url"`
	BadgerDir     string            `yaml:"badger_dir"`
	LogLevel      string            `yaml:"log_level"`
	DocumentDBURI string            `yaml:"documentdb_uri"`
	Server        ServerConfig      `yaml:"server"`
	MCP           MCPConfig         `yaml:"mcp"`
	Maintenance   MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	TLSCert  string `yaml:"tls_cert"`
	TLSKey   string `yaml:"tls_key"`
	APIToken string `yaml:"api_token"`
}

// MCPConfig configures the MCP server transport.
type MCPConfig struct {
	Transport string `yaml:"transport"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
}

// MaintenanceConfig bounds the orphan reconciliation loop.
type MaintenanceConfig struct {
	Disabled      bool `yaml:"disabled"`
	MaxIterations int  `yaml:"max_iterations"`
	MaxStalled    int  `yaml:"max_stalled"`
}

// Dir returns the dbconn home directory (~/.dbconn).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dbconn"
	}
	return filepath.Join(home, ".dbconn")
}

// Default returns a Config with sensible defaults.
func Default() Config {
	dir := Dir()
	return Config{
		Backend:   BackendSQLite,
		DBPath:    filepath.Join(dir, "store.db"),
		BadgerDir: filepath.Join(dir, "badger"),
		LogLevel:  "info",
		Server: ServerConfig{
			Port: 8377,
			Bind: "127.0.0.1",
		},
		MCP: MCPConfig{
			Transport: TransportStdio,
			Host:      "localhost",
			Port:      8070,
		},
		Maintenance: MaintenanceConfig{
			MaxIterations: 20,
			MaxStalled:    3,
		},
	}
}

// Load reads ~/.dbconn/config.yaml (if present) over the defaults and then
// applies environment overrides.
func Load() (Config, error) {
	return LoadFile(filepath.Join(Dir(), "config.yaml"))
}

// LoadFile is Load with an explicit config path. A missing file is not an error.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("DBCONN_BACKEND", &cfg.Backend)
	str("DBCONN_DB", &cfg.DBPath)
	str("DBCONN_POSTGRES_URL", &cfg.PostgresURL)
	str("DBCONN_BADGER_DIR", &cfg.BadgerDir)
	str("DBCONN_LOG_LEVEL", &cfg.LogLevel)
	str("DOCUMENTDB_URI", &cfg.DocumentDBURI)

	num("DBCONN_SERVER_PORT", &cfg.Server.Port)
	str("DBCONN_SERVER_BIND", &cfg.Server.Bind)
	str("DBCONN_SERVER_TLS_CERT", &cfg.Server.TLSCert)
	str("DBCONN_SERVER_TLS_KEY", &cfg.Server.TLSKey)
	str("DBCONN_SERVER_API_TOKEN", &cfg.Server.APIToken)

	// TRANSPORT/HOST/PORT match the names the document tools have always used.
	str("TRANSPORT", &cfg.MCP.Transport)
	str("HOST", &cfg.MCP.Host)
	num("PORT", &cfg.MCP.Port)

	num("DBCONN_MAINTENANCE_MAX_ITERATIONS", &cfg.Maintenance.MaxIterations)
	num("DBCONN_MAINTENANCE_MAX_STALLED", &cfg.Maintenance.MaxStalled)
	if v := os.Getenv("DBCONN_MAINTENANCE_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Maintenance.Disabled = b
		}
	}
}

// Validate rejects unknown backends and transports.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendSQLite, BackendPostgres, BackendBadger:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if strings.EqualFold(c.Backend, BackendPostgres) && c.PostgresURL == "" {
		return fmt.Errorf("backend %q requires postgres_url", BackendPostgres)
	}
	switch c.MCP.Transport {
	case TransportStdio, TransportSSE, TransportStreamableHTTP:
	default:
		return fmt.Errorf("invalid MCP transport %q", c.MCP.Transport)
	}
	if c.Maintenance.MaxIterations < 1 || c.Maintenance.MaxStalled < 1 {
		return fmt.Errorf("maintenance bounds must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address as "bind:port".
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// HasTLS returns true if both TLS cert and key are configured.
func (s ServerConfig) HasTLS() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}

// Addr returns the MCP HTTP listen address as "host:port".
func (m MCPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}
