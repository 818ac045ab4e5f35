package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/config"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/logger"
	"github.com/microsoft/vscode-documentdb-sub002/internal/orchestrate"
	"github.com/microsoft/vscode-documentdb-sub002/internal/tasks"
	"github.com/microsoft/vscode-documentdb-sub002/internal/transfer"
	"github.com/microsoft/vscode-documentdb-sub002/internal/view"
)

// Server is the dbconn HTTP API server.
type Server struct {
	catalog  *catalog.Catalog
	orch     *orchestrate.Orchestrator
	registry *tasks.Registry
	engine   *gin.Engine
	config   config.ServerConfig
	log      *zap.Logger
}

// New creates a Server over an already wired catalog, orchestrator and
// task registry.
func New(c *catalog.Catalog, orch *orchestrate.Orchestrator, registry *tasks.Registry, cfg config.ServerConfig) *Server {
	s := &Server{
		catalog:  c,
		orch:     orch,
		registry: registry,
		engine:   gin.New(),
		config:   cfg,
		log:      logger.WithModule("http"),
	}
	s.engine.Use(Recovery(), Logger(), Metrics())
	s.registerRoutes()
	s.registerWebUIRoutes()
	return s
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// MountMCP serves an MCP streamable-http handler at /mcp behind the API
// token. Tool calls made there share this server's task registry.
func (s *Server) MountMCP(h http.Handler) {
	g := s.engine.Group("/mcp", RequireToken(s.config.APIToken))
	wrapped := gin.WrapH(h)
	g.POST("", wrapped)
	g.GET("", wrapped)
	g.DELETE("", wrapped)
}

// ListenAndServe starts the server. Uses TLS if configured.
func (s *Server) ListenAndServe() error {
	addr := s.config.Addr()
	if s.config.HasTLS() {
		s.log.Info("dbconn server listening", zap.String("url", "https://"+addr))
		return http.ListenAndServeTLS(addr, s.config.TLSCert, s.config.TLSKey, s.engine)
	}
	s.log.Info("dbconn server listening", zap.String("url", "http://"+addr))
	return http.ListenAndServe(addr, s.engine)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api", RequireToken(s.config.APIToken))
	api.GET("/status", s.handleStatus)
	api.GET("/tasks", s.handleTasks)
	api.POST("/maintenance", s.handleMaintenance)
	api.GET("/export", s.handleExport)

	zone := api.Group("/zones/:zone")
	zone.GET("/items", s.handleListItems)
	zone.GET("/tree", s.handleTree)
	zone.POST("/folders", s.handleCreateFolder)
	zone.POST("/connections", s.handleCreateConnection)
	zone.GET("/items/:id", s.handleGetItem)
	zone.PATCH("/items/:id", s.handleRenameItem)
	zone.GET("/items/:id/children", s.handleChildren)
	zone.GET("/move-targets", s.handleMoveTargets)
	zone.POST("/move", s.handleMove)
	zone.POST("/delete", s.handleDelete)
}

// --- Health ---

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Status ---

type zoneStatus struct {
	Zone        db.Zone `json:"zone"`
	Folders     int     `json:"folders"`
	Connections int     `json:"connections"`
	Orphans     int     `json:"orphans"`
}

func (s *Server) handleStatus(c *gin.Context) {
	var zones []zoneStatus
	for _, zone := range s.catalog.Zones() {
		tree, err := s.catalog.Snapshot(c.Request.Context(), zone)
		if err != nil {
			respondError(c, err)
			return
		}
		st := zoneStatus{Zone: zone, Orphans: len(tree.Orphans())}
		for _, item := range tree.Items() {
			if item.IsFolder() {
				st.Folders++
			} else {
				st.Connections++
			}
		}
		zones = append(zones, st)
	}
	c.JSON(http.StatusOK, gin.H{
		"zones":        zones,
		"active_tasks": len(s.registry.List()),
	})
}

func (s *Server) handleTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": s.registry.GetAllUsedResources()})
}

func (s *Server) handleMaintenance(c *gin.Context) {
	report, err := s.catalog.RunMaintenance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleExport always redacts secrets; full bundles are CLI-only.
func (s *Server) handleExport(c *gin.Context) {
	var zones []db.Zone
	if raw := c.Query("zone"); raw != "" {
		zone, err := db.ParseZone(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		zones = append(zones, zone)
	}
	bundle, err := transfer.Export(c.Request.Context(), s.catalog.Store(), transfer.ExportOptions{Zones: zones, RedactSecrets: true})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

// --- Items ---

func (s *Server) handleListItems(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	var (
		items []*catalog.StoredItem
		err   error
	)
	if c.Query("type") == string(catalog.ItemTypeConnection) {
		items, err = s.catalog.GetAllConnectionsOnly(c.Request.Context(), zone)
	} else {
		items, err = s.catalog.GetAll(c.Request.Context(), zone)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "items": items})
}

func (s *Server) handleTree(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	tree, err := s.catalog.Snapshot(c.Request.Context(), zone)
	if err != nil {
		respondError(c, err)
		return
	}
	v, err := view.Compose(tree, view.ComposeOptions{
		Under:           c.Query("under"),
		ConnectionsOnly: c.Query("connections_only") == "true",
	})
	if err != nil {
		respondError(c, err)
		return
	}

	switch format := c.Query("format"); format {
	case "text", "markdown":
		c.String(http.StatusOK, view.RenderTemplate(v, format))
	default:
		c.JSON(http.StatusOK, v)
	}
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

func (s *Server) handleCreateFolder(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := s.catalog.CreateFolder(c.Request.Context(), catalog.CreateFolderInput{
		Zone:     zone,
		Name:     req.Name,
		ParentID: req.ParentID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

type createConnectionRequest struct {
	Name                    string `json:"name"`
	ParentID                string `json:"parent_id"`
	ConnectionString        string `json:"connection_string"`
	API                     string `json:"api"`
	Username                string `json:"username"`
	Password                string `json:"password"`
	TenantID                string `json:"tenant_id"`
	SubscriptionID          string `json:"subscription_id"`
	AuthMethod              string `json:"auth_method"`
	IsEmulator              bool   `json:"is_emulator"`
	DisableEmulatorSecurity bool   `json:"disable_emulator_security"`
}

func (s *Server) handleCreateConnection(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := s.catalog.CreateConnection(c.Request.Context(), catalog.CreateConnectionInput{
		Zone:                    zone,
		Name:                    req.Name,
		ParentID:                req.ParentID,
		ConnectionString:        req.ConnectionString,
		API:                     req.API,
		Username:                req.Username,
		Password:                req.Password,
		TenantID:                req.TenantID,
		SubscriptionID:          req.SubscriptionID,
		AuthMethod:              req.AuthMethod,
		IsEmulator:              req.IsEmulator,
		DisableEmulatorSecurity: req.DisableEmulatorSecurity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) handleGetItem(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	item, err := s.catalog.Get(ctx, zone, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	path, err := s.catalog.GetPath(ctx, zone, item.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item, "path": path})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenameItem(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := s.catalog.Rename(c.Request.Context(), zone, c.Param("id"), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) handleChildren(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	var filter []catalog.ItemType
	if t := catalog.ItemType(c.Query("type")); t != "" {
		if !t.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown item type %q", t)})
			return
		}
		filter = append(filter, t)
	}
	id := c.Param("id")
	if id == "root" {
		id = ""
	}
	children, err := s.catalog.GetChildren(c.Request.Context(), zone, id, filter...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(children), "items": children})
}

// --- Move / delete ---

type moveRequest struct {
	IDs           []string `json:"ids" binding:"required,min=1"`
	DestinationID string   `json:"destination_id"`
	DryRun        bool     `json:"dry_run"`
}

func (s *Server) handleMoveTargets(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	ids := splitIDs(c.Query("ids"))
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}
	targets, err := s.orch.MoveTargets(c.Request.Context(), zone, ids)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": targets})
}

// handleMove treats the request itself as the user's confirmation.
func (s *Server) handleMove(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if req.DryRun {
		plan, err := s.orch.PlanMove(ctx, zone, req.IDs, req.DestinationID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, plan)
		return
	}
	result, err := s.orch.Move(ctx, zone, req.IDs, req.DestinationID, orchestrate.AutoConfirm)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type deleteRequest struct {
	IDs    []string `json:"ids" binding:"required,min=1"`
	DryRun bool     `json:"dry_run"`
}

func (s *Server) handleDelete(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if req.DryRun {
		plan, err := s.orch.PlanDelete(ctx, zone, req.IDs)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, plan)
		return
	}
	result, err := s.orch.Delete(ctx, zone, req.IDs, orchestrate.AutoConfirm)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// --- Helpers ---

func zoneParam(c *gin.Context) (db.Zone, bool) {
	zone, err := db.ParseZone(c.Param("zone"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", false
	}
	return zone, true
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// statusFor maps catalog and orchestration errors to HTTP status codes.
func statusFor(err error) int {
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrDuplicateName),
		errors.Is(err, db.ErrAlreadyExists),
		errors.Is(err, orchestrate.ErrInUse),
		errors.Is(err, orchestrate.ErrNamingConflict):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrInvalidParent),
		errors.Is(err, catalog.ErrCircularReference),
		errors.Is(err, orchestrate.ErrNothingToDo):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}

	var conflictErr *orchestrate.ConflictError
	if errors.As(err, &conflictErr) {
		body["report"] = conflictErr.Report
	}
	var partial *orchestrate.PartialFailureError
	if errors.As(err, &partial) {
		body["result"] = partial.Result
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.WithModule("http").Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, body)
}
