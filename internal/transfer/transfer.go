// Package transfer moves raw catalog items between stores as JSON bundles.
package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
)

// BundleFormat is bumped when the bundle layout changes.
const BundleFormat = 1

// Bundle is a portable snapshot of raw items per zone. Items keep their
// stored version so a newer writer's items survive a round trip untouched.
// Redacted bundles carry no connection secrets.
type Bundle struct {
	Format     int                       `json:"format"`
	ExportedAt time.Time                 `json:"exported_at"`
	Redacted   bool                      `json:"redacted,omitempty"`
	Zones      map[db.Zone][]*db.RawItem `json:"zones"`
}

type ExportOptions struct {
	// Zones to include. Empty means every zone.
	Zones []db.Zone
	// RedactSecrets drops every secret except the first slot of folders.
	RedactSecrets bool
}

// ImportResult counts what Apply did. NameClashes lists ids skipped because
// a different sibling of the same type already uses their name.
type ImportResult struct {
	Applied     int      `json:"applied"`
	Conflicts   int      `json:"conflicts"`
	Conflicted  []string `json:"conflicted,omitempty"`
	NameClashes []string `json:"name_clashes,omitempty"`
}

// Export reads every item of the selected zones.
func Export(ctx context.Context, store db.Store, opts ExportOptions) (*Bundle, error) {
	zones := opts.Zones
	if len(zones) == 0 {
		zones = db.Zones
	}

	b := &Bundle{
		Format:     BundleFormat,
		ExportedAt: time.Now().UTC(),
		Redacted:   opts.RedactSecrets,
		Zones:      make(map[db.Zone][]*db.RawItem, len(zones)),
	}
	for _, zone := range zones {
		items, err := store.GetItems(ctx, zone)
		if err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", zone, err)
		}
		if opts.RedactSecrets {
			for _, item := range items {
				item.Secrets = redact(item)
			}
		}
		b.Zones[zone] = items
	}
	return b, nil
}

func redact(item *db.RawItem) []string {
	if t, _ := item.Properties["type"].(string); t == "folder" && len(item.Secrets) > 0 {
		return item.Secrets[:1]
	}
	return nil
}

// Apply writes the bundle into store. Without overwrite, ids that already
// exist are counted as conflicts and the local item is kept. Items whose name
// is taken by a different same-type sibling are skipped. Overwriting from a
// redacted bundle keeps the local secrets.
func Apply(ctx context.Context, store db.Store, b *Bundle, overwrite bool) (*ImportResult, error) {
	res := &ImportResult{}
	for _, zone := range db.Zones {
		incoming := b.Zones[zone]
		if len(incoming) == 0 {
			continue
		}
		existing, err := store.GetItems(ctx, zone)
		if err != nil {
			return res, fmt.Errorf("failed to read %s: %w", zone, err)
		}
		names := newSiblingIndex(existing)
		local := make(map[string]*db.RawItem, len(existing))
		for _, item := range existing {
			local[item.ID] = item
		}

		for _, item := range incoming {
			if cur, ok := local[item.ID]; ok && !overwrite {
				res.Conflicts++
				res.Conflicted = append(res.Conflicted, item.ID)
				continue
			} else if ok && b.Redacted {
				kept := *item
				kept.Secrets = cur.Secrets
				item = &kept
			}
			if names.taken(item) {
				res.NameClashes = append(res.NameClashes, item.ID)
				continue
			}

			err := store.Push(ctx, zone, item, overwrite)
			if errors.Is(err, db.ErrAlreadyExists) {
				res.Conflicts++
				res.Conflicted = append(res.Conflicted, item.ID)
				continue
			}
			if err != nil {
				return res, fmt.Errorf("failed to import item %s: %w", item.ID, err)
			}
			names.put(item)
			local[item.ID] = item
			res.Applied++
		}
	}
	return res, nil
}

type siblingKey struct {
	parentID string
	typ      string
	name     string
}

// siblingIndex maps (parent, type, name) to the id using it.
type siblingIndex struct {
	owner map[siblingKey]string
	keyOf map[string]siblingKey
}

func newSiblingIndex(items []*db.RawItem) *siblingIndex {
	idx := &siblingIndex{owner: map[siblingKey]string{}, keyOf: map[string]siblingKey{}}
	for _, item := range items {
		idx.put(item)
	}
	return idx
}

// keyFor reads placement from the raw properties. Items the catalog cannot
// decode have no placement.
func keyFor(item *db.RawItem) (siblingKey, bool) {
	if item.Unreadable {
		return siblingKey{}, false
	}
	switch item.Version {
	case catalog.StorageVersionLegacy, catalog.StorageVersion1, catalog.StorageVersion2:
		return siblingKey{typ: string(catalog.ItemTypeConnection), name: item.Name}, true
	case catalog.StorageVersion3:
		typ, _ := item.Properties["type"].(string)
		if typ == "" {
			typ = string(catalog.ItemTypeConnection)
		}
		parent, _ := item.Properties["parentId"].(string)
		return siblingKey{parentID: parent, typ: typ, name: item.Name}, true
	}
	return siblingKey{}, false
}

func (idx *siblingIndex) taken(item *db.RawItem) bool {
	k, ok := keyFor(item)
	if !ok {
		return false
	}
	owner, used := idx.owner[k]
	return used && owner != item.ID
}

func (idx *siblingIndex) put(item *db.RawItem) {
	if old, ok := idx.keyOf[item.ID]; ok && idx.owner[old] == item.ID {
		delete(idx.owner, old)
	}
	k, ok := keyFor(item)
	if !ok {
		delete(idx.keyOf, item.ID)
		return
	}
	idx.owner[k] = item.ID
	idx.keyOf[item.ID] = k
}

// Write encodes the bundle as indented JSON.
func Write(w io.Writer, b *Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// Read decodes a bundle and rejects unknown formats and zones.
func Read(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	if b.Format != BundleFormat {
		return nil, fmt.Errorf("unsupported bundle format %d", b.Format)
	}
	for zone := range b.Zones {
		if _, err := db.ParseZone(string(zone)); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
