package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DBCONN_BACKEND", "DBCONN_DB", "DBCONN_POSTGRES_URL", "DBCONN_BADGER_DIR",
		"DBCONN_LOG_LEVEL", "DOCUMENTDB_URI", "DBCONN_SERVER_PORT", "DBCONN_SERVER_BIND",
		"DBCONN_SERVER_TLS_CERT", "DBCONN_SERVER_TLS_KEY", "DBCONN_SERVER_API_TOKEN",
		"TRANSPORT", "HOST", "PORT", "DBCONN_MAINTENANCE_MAX_ITERATIONS",
		"DBCONN_MAINTENANCE_MAX_STALLED", "DBCONN_MAINTENANCE_DISABLED",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Backend, cfg.Backend)
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Equal(t, TransportStdio, cfg.MCP.Transport)
	assert.Equal(t, 20, cfg.Maintenance.MaxIterations)
}

func TestLoadFile_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: badger
badger_dir: /tmp/b
server:
  port: 9000
mcp:
  transport: sse
maintenance:
  max_iterations: 5
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, cfg.Backend)
	assert.Equal(t, "/tmp/b", cfg.BadgerDir)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Bind)
	assert.Equal(t, TransportSSE, cfg.MCP.Transport)
	assert.Equal(t, 5, cfg.Maintenance.MaxIterations)
	assert.Equal(t, 3, cfg.Maintenance.MaxStalled)
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))

	t.Setenv("DBCONN_SERVER_PORT", "9100")
	t.Setenv("TRANSPORT", "streamable-http")
	t.Setenv("PORT", "8099")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, TransportStreamableHTTP, cfg.MCP.Transport)
	assert.Equal(t, "localhost:8099", cfg.MCP.Addr())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown backend", func(c *Config) { c.Backend = "mysql" }, true},
		{"postgres without url", func(c *Config) { c.Backend = BackendPostgres }, true},
		{"postgres with url", func(c *Config) { c.Backend = BackendPostgres; c.PostgresURL = "postgres://x" }, false},
		{"bad transport", func(c *Config) { c.MCP.Transport = "websocket" }, true},
		{"zero iterations", func(c *Config) { c.Maintenance.MaxIterations = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServerConfig_HasTLS(t *testing.T) {
	assert.False(t, ServerConfig{TLSCert: "c"}.HasTLS())
	assert.True(t, ServerConfig{TLSCert: "c", TLSKey: "k"}.HasTLS())
	assert.Equal(t, "0.0.0.0:1", ServerConfig{Bind: "0.0.0.0", Port: 1}.Addr())
}
