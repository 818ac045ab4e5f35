package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/config"
	"github.com/microsoft/vscode-documentdb-sub002/internal/conflict"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/docdb"
	"github.com/microsoft/vscode-documentdb-sub002/internal/logger"
	"github.com/microsoft/vscode-documentdb-sub002/internal/orchestrate"
	"github.com/microsoft/vscode-documentdb-sub002/internal/tasks"
)

var (
	configPath string
	dbPath     string
	backend    string
	format     string
	zoneName   string
)

var rootCmd = &cobra.Command{
	Use:   "dbconn",
	Short: "Manage a tree of DocumentDB connections",
	Long: `dbconn keeps saved DocumentDB and MongoDB connections organised in folders,
repairs the catalog when it drifts, and serves it over HTTP and MCP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.dbconn/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Storage backend: sqlite, postgres, badger")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "Output format: text, json, markdown")
	rootCmd.PersistentFlags().StringVar(&zoneName, "zone", string(db.ZoneClusters), "Catalog zone: Clusters, Emulators")
}

func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

// app is the wired set of components a command works with.
type app struct {
	cfg      config.Config
	store    db.Store
	catalog  *catalog.Catalog
	registry *tasks.Registry
	orch     *orchestrate.Orchestrator
	pool     *docdb.Pool
	docs     *docdb.Service
}

func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if backend != "" {
		cfg.Backend = strings.ToLower(backend)
	}
	return cfg, cfg.Validate()
}

func openStore(cfg config.Config) (db.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendPostgres:
		return db.OpenPostgres(cfg.PostgresURL)
	case config.BackendBadger:
		return db.OpenBadger(db.BadgerConfig{
			Dir:        cfg.BadgerDir,
			SyncWrites: true,
			Logger:     logger.WithModule("badger"),
		})
	default:
		return db.Open(cfg.DBPath)
	}
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newApp(cfg, store), nil
}

func newApp(cfg config.Config, store db.Store) *app {
	c := catalog.New(store,
		catalog.WithLogger(logger.WithModule("catalog")),
		catalog.WithMaintenanceOptions(catalog.MaintenanceOptions{
			Disabled:             cfg.Maintenance.Disabled,
			MaxIterations:        cfg.Maintenance.MaxIterations,
			MaxStalledIterations: cfg.Maintenance.MaxStalled,
		}),
	)
	registry := tasks.NewRegistry()
	pool := docdb.NewPool()
	return &app{
		cfg:      cfg,
		store:    store,
		catalog:  c,
		registry: registry,
		orch:     orchestrate.New(c, conflict.NewVerifier(c, registry)),
		pool:     pool,
		docs:     docdb.NewService(pool, c, registry, cfg.DocumentDBURI),
	}
}

func (a *app) Close() error {
	return multierr.Combine(
		a.pool.Close(context.Background()),
		a.store.Close(),
	)
}

func currentZone() (db.Zone, error) {
	return db.ParseZone(zoneName)
}

// resolveArg finds an item by exact id, unique id prefix or slash path.
func resolveArg(ctx context.Context, a *app, zone db.Zone, arg string) (*catalog.StoredItem, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, fmt.Errorf("missing id")
	}
	tree, err := a.catalog.Snapshot(ctx, zone)
	if err != nil {
		return nil, err
	}
	if item, ok := tree.Get(arg); ok {
		return item, nil
	}

	var matches []*catalog.StoredItem
	path := strings.Trim(arg, "/")
	for _, item := range tree.Items() {
		if tree.Path(item.ID) == path {
			return item, nil
		}
		if strings.HasPrefix(strings.ToUpper(item.ID), strings.ToUpper(arg)) {
			matches = append(matches, item)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("cannot resolve %q: %w", arg, db.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous id prefix %q matches %d items", arg, len(matches))
	}
}

// resolveParent maps "", "/" and "root" to the root, anything else to a folder.
func resolveParent(ctx context.Context, a *app, zone db.Zone, arg string) (string, error) {
	switch strings.TrimSpace(arg) {
	case "", orchestrate.RootPath, "root":
		return "", nil
	}
	item, err := resolveArg(ctx, a, zone, arg)
	if err != nil {
		return "", err
	}
	if !item.IsFolder() {
		return "", fmt.Errorf("%q is not a folder: %w", item.Name, catalog.ErrInvalidParent)
	}
	return item.ID, nil
}
