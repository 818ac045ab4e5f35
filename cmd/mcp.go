package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/config"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/logger"
	"github.com/microsoft/vscode-documentdb-sub002/internal/metrics"
	"github.com/microsoft/vscode-documentdb-sub002/internal/orchestrate"
	"github.com/microsoft/vscode-documentdb-sub002/internal/view"
)

var (
	mcpTransport string
	mcpHost      string
	mcpPort      int
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server for catalog and document tools",
	Long: `Runs an MCP server exposing the connection catalog and DocumentDB document
operations. Transports: stdio (default), sse, streamable-http.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "", "Transport: stdio, sse, streamable-http")
	mcpCmd.Flags().StringVar(&mcpHost, "host", "", "Listen host for HTTP transports")
	mcpCmd.Flags().IntVar(&mcpPort, "port", 0, "Listen port for HTTP transports")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg.MCP
	if mcpTransport != "" {
		cfg.Transport = mcpTransport
	}
	if mcpHost != "" {
		cfg.Host = mcpHost
	}
	if mcpPort != 0 {
		cfg.Port = mcpPort
	}

	s := newMCPServer(a)

	log := logger.WithModule("mcp")
	switch cfg.Transport {
	case config.TransportSSE:
		log.Info("mcp server listening", zap.String("transport", cfg.Transport), zap.String("addr", cfg.Addr()))
		return server.NewSSEServer(s).Start(cfg.Addr())
	case config.TransportStreamableHTTP:
		log.Info("mcp server listening", zap.String("transport", cfg.Transport), zap.String("addr", cfg.Addr()))
		return server.NewStreamableHTTPServer(s).Start(cfg.Addr())
	case config.TransportStdio:
		return server.ServeStdio(s)
	default:
		return fmt.Errorf("invalid MCP transport %q", cfg.Transport)
	}
}

func newMCPServer(a *app) *server.MCPServer {
	s := server.NewMCPServer(
		"dbconn",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	tools := &mcpTools{app: a}
	tools.register(s)
	return s
}

// mcpHTTPHandler exposes the tools over streamable-http for mounting inside
// another HTTP server.
func mcpHTTPHandler(a *app) http.Handler {
	return server.NewStreamableHTTPServer(newMCPServer(a), server.WithEndpointPath("/mcp"))
}

// mcpTools holds the components shared by every tool call of one server, so
// that document tools and catalog tools see the same task registry.
type mcpTools struct {
	app *app
}

func (t *mcpTools) register(s *server.MCPServer) {
	t.registerCatalogTools(s)
	t.registerDocumentTools(s)
}

// add registers a tool and counts its calls.
func (t *mcpTools) add(s *server.MCPServer, tool mcp.Tool, h server.ToolHandlerFunc) {
	name := tool.Name
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := h(ctx, req)
		outcome := "ok"
		if err != nil || (res != nil && res.IsError) {
			outcome = "error"
		}
		metrics.ToolCalls.WithLabelValues(name, outcome).Inc()
		return res, err
	})
}

func zoneOption() mcp.ToolOption {
	return mcp.WithString("zone",
		mcp.Description("Catalog zone (default: Clusters)"),
		mcp.Enum(string(db.ZoneClusters), string(db.ZoneEmulators)),
	)
}

func (t *mcpTools) registerCatalogTools(s *server.MCPServer) {
	t.add(s, mcp.NewTool("list_connections",
		mcp.WithDescription("List the folders and connections directly under a folder, or the whole zone"),
		zoneOption(),
		mcp.WithString("parent_id",
			mcp.Description("Folder id (default: root)"),
		),
		mcp.WithString("type",
			mcp.Description("Only return this item type"),
			mcp.Enum(string(catalog.ItemTypeConnection), string(catalog.ItemTypeFolder)),
		),
		mcp.WithBoolean("all",
			mcp.Description("List every item in the zone"),
		),
	), t.handleListConnections)

	t.add(s, mcp.NewTool("render_tree",
		mcp.WithDescription("Render the folder tree of a zone as markdown"),
		zoneOption(),
		mcp.WithString("under",
			mcp.Description("Only render below this folder id"),
		),
	), t.handleRenderTree)

	t.add(s, mcp.NewTool("show_item",
		mcp.WithDescription("Show a folder or connection with its path. Secrets are never returned."),
		zoneOption(),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Item id"),
		),
	), t.handleShowItem)

	t.add(s, mcp.NewTool("create_folder",
		mcp.WithDescription("Create a folder"),
		zoneOption(),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Folder name, unique among sibling folders"),
		),
		mcp.WithString("parent_id",
			mcp.Description("Parent folder id (default: root)"),
		),
	), t.handleCreateFolder)

	t.add(s, mcp.NewTool("create_connection",
		mcp.WithDescription("Save a connection. Credentials in the connection string are stored separately."),
		zoneOption(),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Connection name, unique among sibling connections"),
		),
		mcp.WithString("connection_string",
			mcp.Required(),
			mcp.Description("mongodb:// or mongodb+srv:// connection string"),
		),
		mcp.WithString("parent_id",
			mcp.Description("Parent folder id (default: root)"),
		),
		mcp.WithString("api",
			mcp.Description("API kind (e.g. DocumentDB)"),
		),
		mcp.WithBoolean("is_emulator",
			mcp.Description("Mark as a local emulator"),
		),
	), t.handleCreateConnection)

	t.add(s, mcp.NewTool("rename_item",
		mcp.WithDescription("Rename a folder or connection"),
		zoneOption(),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Item id"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("New name"),
		),
	), t.handleRenameItem)

	t.add(s, mcp.NewTool("list_move_targets",
		mcp.WithDescription("List the folders the selected items can be moved into"),
		zoneOption(),
		mcp.WithString("ids",
			mcp.Required(),
			mcp.Description("Comma-separated item ids"),
		),
	), t.handleMoveTargets)

	t.add(s, mcp.NewTool("move_items",
		mcp.WithDescription("Move items into a folder. Without confirm=true only the plan is returned."),
		zoneOption(),
		mcp.WithString("ids",
			mcp.Required(),
			mcp.Description("Comma-separated item ids"),
		),
		mcp.WithString("destination_id",
			mcp.Description("Destination folder id (default: root)"),
		),
		mcp.WithBoolean("confirm",
			mcp.Description("Apply the move"),
		),
	), t.handleMoveItems)

	t.add(s, mcp.NewTool("delete_item",
		mcp.WithDescription("Delete items and everything nested below them. Without confirm=true only the plan is returned."),
		zoneOption(),
		mcp.WithString("ids",
			mcp.Required(),
			mcp.Description("Comma-separated item ids"),
		),
		mcp.WithBoolean("confirm",
			mcp.Description("Apply the delete"),
		),
	), t.handleDeleteItem)

	t.add(s, mcp.NewTool("list_tasks",
		mcp.WithDescription("List running tasks and the connections, databases and collections they use"),
	), t.handleListTasks)

	t.add(s, mcp.NewTool("reconcile",
		mcp.WithDescription("Repair folder placeholders, normalize connection strings and remove orphaned items"),
	), t.handleReconcile)
}

func toolZone(req mcp.CallToolRequest) (db.Zone, error) {
	return db.ParseZone(req.GetString("zone", string(db.ZoneClusters)))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *mcpTools) handleListConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	zone, err := toolZone(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tree, err := t.app.catalog.Snapshot(ctx, zone)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("catalog error: %v", err)), nil
	}

	var filter []catalog.ItemType
	if typ := catalog.ItemType(req.GetString("type", "")); typ != "" {
		if !typ.Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("unknown type %q", typ)), nil
		}
		filter = append(filter, typ)
	}

	var items []*catalog.StoredItem
	if req.GetBool("all", false) {
		for _, item := range tree.Items() {
			if len(filter) == 0 || item.Type == filter[0] {
				items = append(items, item)
			}
		}
	} else {
		parentID := req.GetString("parent_id", "")
		if parentID != "" {
			parent, ok := tree.Get(parentID)
			if !ok || !parent.IsFolder() {
				return mcp.NewToolResultError(fmt.Sprintf("folder %s not found", parentID)), nil
			}
		}
		items = tree.Children(parentID, filter...)
	}

	if len(items) == 0 {
		return mcp.NewToolResultText("No items found."), nil
	}
	entries := make([]listEntry, len(items))
	for i, item := range items {
		entries[i] = listEntry{StoredItem: item, Path: tree.Path(item.ID)}
	}
	return jsonResult(entries)
}

func (t *mcpTools) handleRenderTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	zone, err := toolZone(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tree, err := t.app.catalog.Snapshot(ctx, zone)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("catalog error: %v", err)), nil
	}
	v, err := view.Compose(tree, view.ComposeOptions{Under: req.GetString("under", "")})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(view.RenderMarkdown(v)), nil
}

func (t *mcpTools) handleShowItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	zone, err := toolZone(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := t.app.catalog.Get(ctx, zone, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("item not found: %v", err)), nil
	}
	path, err := t.app.catalog.GetPath(ctx, zone, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"item": item, "path": path})
}

func (t *mcpTools) handleCreateFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	zone, err := toolZone(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := t.app.catalog.CreateFolder(ctx, catalog.CreateFolderInput{
		Zone:     zone,
		Name:     name,
		ParentID: req.GetString("parent_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create error: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created folder %s (%s)", item.ID, item.Name)), nil
}

func (t *mcpTools) handleCreateConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	zone, err := toolZone(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	connStr, err := req.RequireString("connection_string")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := t.app.catalog.CreateConnection(ctx, catalog.CreateConnectionInput{
		Zone:             zone,
		Name:             name,
		ParentID:         req.GetString("parent_id", ""),
		ConnectionString: connStr,
		API:              req.GetString("api", ""),
		IsEmulator:       req.GetBool("is_emulator", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create error: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created connection %s (%s)", item.ID, item.Name)), nil
}

func (t *mcpTools) handleRenameItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	zone, err := toolZone(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := t.app.catalog.Rename(ctx, zone, id, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rename error: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Renamed %s to %s", item.ID, item.Name)), nil
}

func (t *mcpTools) handleMoveTargets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	zone, err := toolZone(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	targets, err := t.app.orch.MoveTargets(ctx, zone, splitAndTrim(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(targets)
}

func (t *mcpTools) handleMoveItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	zone, err := toolZone(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids := splitAndTrim(raw)
	dest := req.GetString("destination_id", "")

	if !req.GetBool("confirm", false) {
		plan, err := t.app.orch.PlanMove(ctx, zone, ids, dest)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(plan)
	}
	result, err := t.app.orch.Move(ctx, zone, ids, dest, orchestrate.AutoConfirm)
	return orchestrationResult(result, err)
}

func (t *mcpTools) handleDeleteItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	zone, err := toolZone(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids := splitAndTrim(raw)

	if !req.GetBool("confirm", false) {
		plan, err := t.app.orch.PlanDelete(ctx, zone, ids)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(plan)
	}
	result, err := t.app.orch.Delete(ctx, zone, ids, orchestrate.AutoConfirm)
	return orchestrationResult(result, err)
}

// orchestrationResult reports blocked and partially failed runs as tool
// errors that still carry the per-step outcome.
func orchestrationResult(result *orchestrate.Result, err error) (*mcp.CallToolResult, error) {
	if err == nil {
		return jsonResult(result)
	}
	var conflictErr *orchestrate.ConflictError
	if errors.As(err, &conflictErr) {
		data, _ := json.MarshalIndent(conflictErr.Report, "", "  ")
		return mcp.NewToolResultError(fmt.Sprintf("%v\n%s", err, data)), nil
	}
	if result != nil {
		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultError(fmt.Sprintf("%v\n%s", err, data)), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func (t *mcpTools) handleListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	used := t.app.registry.GetAllUsedResources()
	if len(used) == 0 {
		return mcp.NewToolResultText("No running tasks."), nil
	}
	return jsonResult(used)
}

func (t *mcpTools) handleReconcile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := t.app.catalog.RunMaintenance(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reconcile error: %v", err)), nil
	}
	return jsonResult(report)
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
