package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/logger"
	"github.com/microsoft/vscode-documentdb-sub002/internal/metrics"
)

// Catalog is the data-access layer for connections and folders. It owns
// every write to the underlying store.
type Catalog struct {
	store    db.Store
	log      *zap.Logger
	validate *validator.Validate
	maint    MaintenanceOptions

	initOnce sync.Once
}

type Option func(*Catalog)

func WithLogger(l *zap.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMaintenanceOptions(opts MaintenanceOptions) Option {
	return func(c *Catalog) {
		c.maint = opts.withDefaults()
	}
}

// New creates a catalog over store. Consistency maintenance runs lazily on
// the first public call.
func New(store db.Store, opts ...Option) *Catalog {
	c := &Catalog{
		store:    store,
		log:      logger.WithModule("catalog"),
		validate: validator.New(),
		maint:    DefaultMaintenanceOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the underlying item store for raw export/import.
func (c *Catalog) Store() db.Store {
	return c.store
}

// Zones lists the partitions the catalog manages.
func (c *Catalog) Zones() []db.Zone {
	return append([]db.Zone(nil), db.Zones...)
}

func (c *Catalog) ensureInitialized(ctx context.Context) {
	c.initOnce.Do(func() {
		if c.maint.Disabled {
			return
		}
		report, err := c.RunMaintenance(context.WithoutCancel(ctx))
		if err != nil {
			c.log.Warn("consistency maintenance finished with errors", zap.Error(err))
			return
		}
		if report.Changed() {
			c.log.Info("consistency maintenance repaired items",
				zap.Int("placeholders", report.PlaceholdersRepaired()),
				zap.Int("normalized", report.SecretsNormalized()),
				zap.Int("orphans_removed", report.OrphansRemoved()))
		}
	})
}

// scan decodes every item of a zone. Items that cannot be decoded are left
// out of items and reported in opaque so callers never mistake them for
// missing ids.
func (c *Catalog) scan(ctx context.Context, zone db.Zone) (items []*StoredItem, opaque map[string]bool, err error) {
	raws, err := c.store.GetItems(ctx, zone)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s items: %w", zone, err)
	}
	opaque = make(map[string]bool)
	items = make([]*StoredItem, 0, len(raws))
	for _, raw := range raws {
		item, err := Decode(zone, raw)
		if err != nil {
			opaque[raw.ID] = true
			reason := "malformed"
			if errors.Is(err, ErrUnknownStorageVersion) {
				reason = "unknown_version"
				c.log.Debug("skipping item with unknown storage version",
					zap.String("zone", string(zone)), zap.String("id", raw.ID), zap.String("version", raw.Version))
			} else {
				c.log.Warn("skipping malformed item",
					zap.String("zone", string(zone)), zap.String("id", raw.ID), zap.Error(err))
			}
			metrics.DecodeFailures.WithLabelValues(string(zone), reason).Inc()
			continue
		}
		items = append(items, item)
	}
	return items, opaque, nil
}

func (c *Catalog) list(ctx context.Context, zone db.Zone) ([]*StoredItem, error) {
	items, _, err := c.scan(ctx, zone)
	return items, err
}

func (c *Catalog) get(ctx context.Context, zone db.Zone, id string) (*StoredItem, error) {
	raw, err := c.store.GetItem(ctx, zone, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("item %s: %w", id, db.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	item, err := Decode(zone, raw)
	if err != nil {
		if errors.Is(err, ErrUnknownStorageVersion) {
			return nil, fmt.Errorf("item %s: %w", id, db.ErrNotFound)
		}
		return nil, err
	}
	return item, nil
}

func (c *Catalog) put(ctx context.Context, item *StoredItem, overwrite bool, op string) error {
	if item.Zone == "" {
		return fmt.Errorf("item %s has no zone", item.ID)
	}
	if item.ID == "" {
		return fmt.Errorf("item id cannot be empty")
	}
	if !item.Type.Valid() {
		return fmt.Errorf("item %s has invalid type %q", item.ID, item.Type)
	}
	if err := c.store.Push(ctx, item.Zone, Encode(item), overwrite); err != nil {
		return fmt.Errorf("failed to save item %s: %w", item.ID, err)
	}
	metrics.ItemMutations.WithLabelValues(string(item.Zone), op).Inc()
	return nil
}

// GetAll lists every readable item of the zone.
func (c *Catalog) GetAll(ctx context.Context, zone db.Zone) ([]*StoredItem, error) {
	c.ensureInitialized(ctx)
	return c.list(ctx, zone)
}

// GetAllConnectionsOnly lists the connections of the zone.
func (c *Catalog) GetAllConnectionsOnly(ctx context.Context, zone db.Zone) ([]*StoredItem, error) {
	c.ensureInitialized(ctx)
	items, err := c.list(ctx, zone)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, item := range items {
		if item.IsConnection() {
			out = append(out, item)
		}
	}
	return out, nil
}

// Get returns the item or db.ErrNotFound when it is absent or unreadable.
func (c *Catalog) Get(ctx context.Context, zone db.Zone, id string) (*StoredItem, error) {
	c.ensureInitialized(ctx)
	return c.get(ctx, zone, id)
}

// Snapshot returns a tree view of the zone.
func (c *Catalog) Snapshot(ctx context.Context, zone db.Zone) (*Tree, error) {
	c.ensureInitialized(ctx)
	items, err := c.list(ctx, zone)
	if err != nil {
		return nil, err
	}
	return newTree(zone, items), nil
}

// GetChildren returns the direct children of parentID ("" for root).
func (c *Catalog) GetChildren(ctx context.Context, zone db.Zone, parentID string, filter ...ItemType) ([]*StoredItem, error) {
	tree, err := c.Snapshot(ctx, zone)
	if err != nil {
		return nil, err
	}
	return tree.Children(parentID, filter...), nil
}

// Save creates the item, or replaces it when overwrite is set.
func (c *Catalog) Save(ctx context.Context, item *StoredItem, overwrite bool) error {
	c.ensureInitialized(ctx)
	op := "create"
	if overwrite {
		op = "update"
	}
	return c.put(ctx, item, overwrite, op)
}

// Delete removes exactly one item. Children are left in place.
func (c *Catalog) Delete(ctx context.Context, zone db.Zone, id string) error {
	c.ensureInitialized(ctx)
	if err := c.store.Delete(ctx, zone, id); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	metrics.ItemMutations.WithLabelValues(string(zone), "delete").Inc()
	return nil
}

// IsNameDuplicateInParent reports whether a sibling of the same type already
// uses name under parentID. The item with excludeID is ignored.
func (c *Catalog) IsNameDuplicateInParent(ctx context.Context, zone db.Zone, name, parentID string, typ ItemType, excludeID string) (bool, error) {
	siblings, err := c.GetChildren(ctx, zone, parentID, typ)
	if err != nil {
		return false, err
	}
	for _, s := range siblings {
		if s.Name == name && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// GetPath returns the root-to-node name path of id.
func (c *Catalog) GetPath(ctx context.Context, zone db.Zone, id string) (string, error) {
	tree, err := c.Snapshot(ctx, zone)
	if err != nil {
		return "", err
	}
	if _, ok := tree.Get(id); !ok {
		return "", fmt.Errorf("item %s: %w", id, db.ErrNotFound)
	}
	return tree.Path(id), nil
}

// UpdateParentID moves an item under newParentID ("" for root). Only the
// parent pointer changes. A folder can never be moved into itself or any of
// its descendants.
func (c *Catalog) UpdateParentID(ctx context.Context, zone db.Zone, id, newParentID string) error {
	tree, err := c.Snapshot(ctx, zone)
	if err != nil {
		return err
	}
	item, ok := tree.Get(id)
	if !ok {
		return fmt.Errorf("item %s: %w", id, db.ErrNotFound)
	}
	if item.ParentID == newParentID {
		return nil
	}

	if newParentID != "" {
		if newParentID == id {
			return fmt.Errorf("cannot move %q into itself: %w", item.Name, ErrCircularReference)
		}
		parent, ok := tree.Get(newParentID)
		if !ok || !parent.IsFolder() {
			return fmt.Errorf("parent %s is not a folder in %s: %w", newParentID, zone, ErrInvalidParent)
		}
		if item.IsFolder() && tree.IsAncestor(id, newParentID) {
			return fmt.Errorf("cannot move %q into its descendant %q: %w",
				tree.Path(id), tree.Path(newParentID), ErrCircularReference)
		}
	}

	moved := *item
	moved.ParentID = newParentID
	if err := c.put(ctx, &moved, true, "move"); err != nil {
		return err
	}
	c.log.Debug("item moved",
		zap.String("zone", string(zone)), zap.String("id", id), zap.String("parent_id", newParentID))
	return nil
}

// GetDescendants returns every item below id in depth-first pre-order.
func (c *Catalog) GetDescendants(ctx context.Context, zone db.Zone, id string) ([]*StoredItem, error) {
	tree, err := c.Snapshot(ctx, zone)
	if err != nil {
		return nil, err
	}
	if _, ok := tree.Get(id); !ok {
		return nil, fmt.Errorf("item %s: %w", id, db.ErrNotFound)
	}
	return tree.Descendants(id), nil
}

// CountDescendants returns the number of items below id.
func (c *Catalog) CountDescendants(ctx context.Context, zone db.Zone, id string) (int, error) {
	items, err := c.GetDescendants(ctx, zone, id)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

type CreateFolderInput struct {
	Zone     db.Zone `validate:"required"`
	Name     string  `validate:"required,max=255"`
	ParentID string
}

type CreateConnectionInput struct {
	Zone             db.Zone `validate:"required"`
	Name             string  `validate:"required,max=255"`
	ParentID         string
	ConnectionString string `validate:"required,startswith=mongodb"`
	API              string

	Username       string
	Password       string
	TenantID       string
	SubscriptionID string
	AuthMethod     string `validate:"omitempty,oneof=NativeAuth MicrosoftEntraID"`

	IsEmulator              bool
	DisableEmulatorSecurity bool
}

// CreateFolder creates a folder under input.ParentID.
func (c *Catalog) CreateFolder(ctx context.Context, input CreateFolderInput) (*StoredItem, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := c.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid folder: %w", err)
	}
	item := &StoredItem{
		ID:       NewID(),
		Name:     input.Name,
		Type:     ItemTypeFolder,
		ParentID: input.ParentID,
		Zone:     input.Zone,
		Secrets:  Secrets{ConnectionString: FolderPlaceholderConnectionString},
	}
	if err := c.create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// CreateConnection creates a connection under input.ParentID. Credentials
// embedded in the connection string are moved into the native auth secret.
func (c *Catalog) CreateConnection(ctx context.Context, input CreateConnectionInput) (*StoredItem, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := c.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid connection: %w", err)
	}

	connStr, user, pass := extractCredentials(input.ConnectionString)
	if input.Username != "" {
		user, pass = input.Username, input.Password
	}

	item := &StoredItem{
		ID:       NewID(),
		Name:     input.Name,
		Type:     ItemTypeConnection,
		ParentID: input.ParentID,
		Zone:     input.Zone,
		Properties: Properties{
			API:                input.API,
			SelectedAuthMethod: input.AuthMethod,
		},
		Secrets: Secrets{ConnectionString: NormalizeConnectionString(connStr)},
	}
	if input.IsEmulator || input.DisableEmulatorSecurity {
		item.Properties.EmulatorConfiguration = &EmulatorConfiguration{
			IsEmulator:              input.IsEmulator,
			DisableEmulatorSecurity: input.DisableEmulatorSecurity,
		}
	}
	if user != "" || pass != "" {
		item.Secrets.NativeAuth = &NativeAuth{Username: user, Password: pass}
		item.Properties.AvailableAuthMethods = append(item.Properties.AvailableAuthMethods, AuthMethodNativeAuth)
	}
	if input.TenantID != "" || input.SubscriptionID != "" {
		item.Secrets.EntraID = &EntraID{TenantID: input.TenantID, SubscriptionID: input.SubscriptionID}
		item.Properties.AvailableAuthMethods = append(item.Properties.AvailableAuthMethods, AuthMethodEntraID)
	}
	if item.Properties.SelectedAuthMethod == "" && len(item.Properties.AvailableAuthMethods) > 0 {
		item.Properties.SelectedAuthMethod = item.Properties.AvailableAuthMethods[0]
	}

	if err := c.create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Catalog) create(ctx context.Context, item *StoredItem) error {
	c.ensureInitialized(ctx)
	if err := c.checkParent(ctx, item.Zone, item.ParentID); err != nil {
		return err
	}
	dup, err := c.IsNameDuplicateInParent(ctx, item.Zone, item.Name, item.ParentID, item.Type, "")
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%s %q already exists here: %w", item.Type, item.Name, ErrDuplicateName)
	}
	return c.put(ctx, item, false, "create")
}

func (c *Catalog) checkParent(ctx context.Context, zone db.Zone, parentID string) error {
	if parentID == "" {
		return nil
	}
	parent, err := c.get(ctx, zone, parentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("parent %s not found in %s: %w", parentID, zone, ErrInvalidParent)
		}
		return err
	}
	if !parent.IsFolder() {
		return fmt.Errorf("parent %q is not a folder: %w", parent.Name, ErrInvalidParent)
	}
	return nil
}

// Rename changes the display name of an item. The id never changes.
func (c *Catalog) Rename(ctx context.Context, zone db.Zone, id, newName string) (*StoredItem, error) {
	newName = strings.TrimSpace(newName)
	if err := c.validate.Var(newName, "required,max=255"); err != nil {
		return nil, fmt.Errorf("invalid name: %w", err)
	}
	item, err := c.Get(ctx, zone, id)
	if err != nil {
		return nil, err
	}
	if item.Name == newName {
		return item, nil
	}
	dup, err := c.IsNameDuplicateInParent(ctx, zone, newName, item.ParentID, item.Type, item.ID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, fmt.Errorf("%s %q already exists here: %w", item.Type, newName, ErrDuplicateName)
	}
	item.Name = newName
	if err := c.put(ctx, item, true, "rename"); err != nil {
		return nil, err
	}
	return item, nil
}
