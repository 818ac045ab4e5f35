package cmd

import (
	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/server"
)

var (
	servePort     int
	serveBind     string
	serveTLSCert  string
	serveTLSKey   string
	serveAPIToken string
	serveMCP      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dbconn HTTP API server",
	Long: `Start the HTTP API over the configured store.

The server exposes the catalog operations: item CRUD, tree rendering, move,
delete, reconcile and running tasks, plus /metrics and a read-only admin UI.
Unless --mcp=false is given, the MCP tools are served at /mcp over
streamable-http in the same process, so document tool calls show up as
running tasks and block conflicting deletes and moves.

Configuration can be provided via flags, environment variables
(DBCONN_SERVER_PORT, DBCONN_SERVER_BIND, DBCONN_SERVER_TLS_CERT,
DBCONN_SERVER_TLS_KEY, DBCONN_SERVER_API_TOKEN), or the server section of
~/.dbconn/config.yaml.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8377, "Listen port")
	serveCmd.Flags().StringVar(&serveBind, "bind", "127.0.0.1", "Bind address")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file path")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS key file path")
	serveCmd.Flags().StringVar(&serveAPIToken, "api-token", "", "Bearer token required on /api and /admin")
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", true, "Serve the MCP tools at /mcp")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg.Server
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	if cmd.Flags().Changed("bind") {
		cfg.Bind = serveBind
	}
	if cmd.Flags().Changed("tls-cert") {
		cfg.TLSCert = serveTLSCert
	}
	if cmd.Flags().Changed("tls-key") {
		cfg.TLSKey = serveTLSKey
	}
	if cmd.Flags().Changed("api-token") {
		cfg.APIToken = serveAPIToken
	}

	srv := server.New(a.catalog, a.orch, a.registry, cfg)
	if serveMCP {
		srv.MountMCP(mcpHTTPHandler(a))
	}
	return srv.ListenAndServe()
}
