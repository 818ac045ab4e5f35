package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Zone partitions the item store. Trees never span zones.
type Zone string

const (
	ZoneClusters  Zone = "Clusters"
	ZoneEmulators Zone = "Emulators"
)

// Zones lists every known zone in display order.
var Zones = []Zone{ZoneClusters, ZoneEmulators}

// ParseZone resolves a zone name case-insensitively.
func ParseZone(s string) (Zone, error) {
	for _, z := range Zones {
		if strings.EqualFold(string(z), s) {
			return z, nil
		}
	}
	return "", fmt.Errorf("unknown zone %q", s)
}

// RawItem is the persisted shape of a catalog entry. Properties and secrets
// are opaque at this layer; the catalog codec interprets them per Version.
type RawItem struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Version    string         `json:"version,omitempty"`
	Properties map[string]any `json:"properties"`
	Secrets    []string       `json:"secrets"`

	// Unreadable is set by a backend whose stored value could not be
	// decoded. Only ID is meaningful then.
	Unreadable bool `json:"-"`
}

// Store is the interface for item persistence. SQLite (local), PostgreSQL
// (shared) and Badger (embedded) backends implement it. Each call is atomic
// on its own; there are no multi-item transactions.
type Store interface {
	// Close closes the underlying database.
	Close() error

	// GetItems returns every item in the zone. An unknown or empty zone
	// yields an empty slice.
	GetItems(ctx context.Context, zone Zone) ([]*RawItem, error)

	// GetItem returns ErrNotFound when the id does not exist in the zone.
	GetItem(ctx context.Context, zone Zone, id string) (*RawItem, error)

	// Push stores the item. Without overwrite an existing id yields
	// ErrAlreadyExists.
	Push(ctx context.Context, zone Zone, item *RawItem, overwrite bool) error

	// Delete removes exactly one item, returning ErrNotFound if absent.
	Delete(ctx context.Context, zone Zone, id string) error
}

func validateItem(item *RawItem) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	if item.ID == "" {
		return fmt.Errorf("item id cannot be empty")
	}
	return nil
}
