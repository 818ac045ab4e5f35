package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/metrics"
)

const (
	DefaultMaxIterations        = 20
	DefaultMaxStalledIterations = 3
)

// MaintenanceOptions bounds the orphan reconciliation loop.
type MaintenanceOptions struct {
	Disabled bool

	// MaxIterations caps the number of orphan scans per zone.
	MaxIterations int

	// MaxStalledIterations aborts when the same orphans are found this many
	// scans in a row, meaning removals are not taking effect.
	MaxStalledIterations int
}

func DefaultMaintenanceOptions() MaintenanceOptions {
	return MaintenanceOptions{
		MaxIterations:        DefaultMaxIterations,
		MaxStalledIterations: DefaultMaxStalledIterations,
	}
}

func (o MaintenanceOptions) withDefaults() MaintenanceOptions {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.MaxStalledIterations <= 0 {
		o.MaxStalledIterations = DefaultMaxStalledIterations
	}
	return o
}

// ZoneReport summarizes the maintenance of one zone.
type ZoneReport struct {
	Zone                 db.Zone  `json:"zone"`
	PlaceholdersRepaired int      `json:"placeholders_repaired"`
	SecretsNormalized    int      `json:"secrets_normalized"`
	OrphansRemoved       int      `json:"orphans_removed"`
	RemovedIDs           []string `json:"removed_ids,omitempty"`
	Iterations           int      `json:"iterations"`
	Stalled              bool     `json:"stalled,omitempty"`
	HitIterationLimit    bool     `json:"hit_iteration_limit,omitempty"`
}

type MaintenanceReport struct {
	Zones []*ZoneReport `json:"zones"`
}

func (r *MaintenanceReport) PlaceholdersRepaired() int {
	n := 0
	for _, z := range r.Zones {
		n += z.PlaceholdersRepaired
	}
	return n
}

func (r *MaintenanceReport) SecretsNormalized() int {
	n := 0
	for _, z := range r.Zones {
		n += z.SecretsNormalized
	}
	return n
}

func (r *MaintenanceReport) OrphansRemoved() int {
	n := 0
	for _, z := range r.Zones {
		n += z.OrphansRemoved
	}
	return n
}

// Changed reports whether any pass wrote to the store.
func (r *MaintenanceReport) Changed() bool {
	return r.PlaceholdersRepaired()+r.SecretsNormalized()+r.OrphansRemoved() > 0
}

// RunMaintenance repairs folder placeholders, normalizes connection strings
// and removes orphaned items in every zone. A failing zone does not stop the
// others; all errors are returned combined.
func (c *Catalog) RunMaintenance(ctx context.Context) (*MaintenanceReport, error) {
	report := &MaintenanceReport{}
	var errs error
	for _, zone := range db.Zones {
		zr := &ZoneReport{Zone: zone}
		report.Zones = append(report.Zones, zr)

		if err := c.repairPlaceholders(ctx, zone, zr); err != nil {
			errs = multierr.Append(errs, err)
		}
		if err := c.normalizeSecrets(ctx, zone, zr); err != nil {
			errs = multierr.Append(errs, err)
		}
		if err := c.reconcileOrphans(ctx, zone, zr); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return report, errs
}

func (c *Catalog) repairPlaceholders(ctx context.Context, zone db.Zone, zr *ZoneReport) error {
	items, err := c.list(ctx, zone)
	if err != nil {
		return err
	}
	var errs error
	for _, item := range items {
		if !item.IsFolder() || item.Secrets.ConnectionString != "" {
			continue
		}
		if err := c.put(ctx, item, true, "repair"); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		zr.PlaceholdersRepaired++
		metrics.MaintenanceRepairs.WithLabelValues(string(zone), "placeholder").Inc()
		c.log.Info("repaired folder placeholder", zap.String("zone", string(zone)), zap.String("id", item.ID))
	}
	return errs
}

func (c *Catalog) normalizeSecrets(ctx context.Context, zone db.Zone, zr *ZoneReport) error {
	items, err := c.list(ctx, zone)
	if err != nil {
		return err
	}
	var errs error
	for _, item := range items {
		if !item.IsConnection() {
			continue
		}
		normalized := NormalizeConnectionString(item.Secrets.ConnectionString)
		if normalized == item.Secrets.ConnectionString {
			continue
		}
		item.Secrets.ConnectionString = normalized
		if err := c.put(ctx, item, true, "repair"); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		zr.SecretsNormalized++
		metrics.MaintenanceRepairs.WithLabelValues(string(zone), "normalize").Inc()
		c.log.Info("normalized connection string", zap.String("zone", string(zone)), zap.String("id", item.ID))
	}
	return errs
}

// reconcileOrphans deletes items whose parent does not resolve to a folder,
// rescanning until a pass finds nothing. Deleting a folder orphans its
// children, so valid parents are recomputed on every pass. Items that could
// not be decoded still count as valid parents.
func (c *Catalog) reconcileOrphans(ctx context.Context, zone db.Zone, zr *ZoneReport) error {
	var lastKey string
	repeats := 0

	for iteration := 1; iteration <= c.maint.MaxIterations; iteration++ {
		zr.Iterations = iteration

		items, opaque, err := c.scan(ctx, zone)
		if err != nil {
			return err
		}
		validParents := make(map[string]bool, len(opaque))
		for id := range opaque {
			validParents[id] = true
		}
		for _, item := range items {
			if item.IsFolder() {
				validParents[item.ID] = true
			}
		}

		var orphans []*StoredItem
		for _, item := range items {
			if item.ParentID != "" && !validParents[item.ParentID] {
				orphans = append(orphans, item)
			}
		}
		if len(orphans) == 0 {
			return nil
		}

		key := orphanKey(orphans)
		if key == lastKey {
			repeats++
		} else {
			lastKey, repeats = key, 1
		}
		if repeats >= c.maint.MaxStalledIterations {
			zr.Stalled = true
			c.log.Warn("orphan reconciliation stalled",
				zap.String("zone", string(zone)), zap.Int("iteration", iteration), zap.Int("orphans", len(orphans)))
			return fmt.Errorf("zone %s: %d orphans remain after %d passes: %w",
				zone, len(orphans), iteration, ErrReconcileStalled)
		}

		removed := 0
		for _, orphan := range orphans {
			err := c.store.Delete(ctx, zone, orphan.ID)
			if err != nil && !errors.Is(err, db.ErrNotFound) {
				c.log.Warn("failed to remove orphan",
					zap.String("zone", string(zone)), zap.String("id", orphan.ID), zap.Error(err))
				continue
			}
			if err == nil {
				removed++
				zr.RemovedIDs = append(zr.RemovedIDs, orphan.ID)
				metrics.ItemMutations.WithLabelValues(string(zone), "delete").Inc()
			}
		}
		zr.OrphansRemoved += removed
		metrics.MaintenanceRepairs.WithLabelValues(string(zone), "orphan").Add(float64(removed))
		c.log.Info("removed orphaned items",
			zap.String("zone", string(zone)), zap.Int("iteration", iteration), zap.Int("removed", removed))
	}

	zr.HitIterationLimit = true
	c.log.Warn("orphan reconciliation hit iteration limit",
		zap.String("zone", string(zone)), zap.Int("max_iterations", c.maint.MaxIterations))
	return fmt.Errorf("zone %s: %w", zone, ErrReconcileLimit)
}

func orphanKey(items []*StoredItem) string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}
