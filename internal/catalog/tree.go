package catalog

import (
	"sort"
	"strings"

	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
)

// Tree is an in-memory adjacency view of one zone, built from a single scan.
// It is a snapshot; later writes are not reflected.
type Tree struct {
	Zone     db.Zone
	items    []*StoredItem
	byID     map[string]*StoredItem
	children map[string][]*StoredItem
}

func newTree(zone db.Zone, items []*StoredItem) *Tree {
	t := &Tree{
		Zone:     zone,
		items:    items,
		byID:     make(map[string]*StoredItem, len(items)),
		children: make(map[string][]*StoredItem),
	}
	for _, item := range items {
		t.byID[item.ID] = item
		t.children[item.ParentID] = append(t.children[item.ParentID], item)
	}
	for _, kids := range t.children {
		sortItems(kids)
	}
	return t
}

// sortItems orders folders before connections, then by name and id.
func sortItems(items []*StoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// Items returns every decodable item in the zone.
func (t *Tree) Items() []*StoredItem {
	return t.items
}

func (t *Tree) Len() int {
	return len(t.items)
}

func (t *Tree) Get(id string) (*StoredItem, bool) {
	item, ok := t.byID[id]
	return item, ok
}

// Children returns the direct children of parentID ("" for root), optionally
// restricted to the given types.
func (t *Tree) Children(parentID string, filter ...ItemType) []*StoredItem {
	kids := t.children[parentID]
	if len(filter) == 0 {
		return append([]*StoredItem(nil), kids...)
	}
	var out []*StoredItem
	for _, kid := range kids {
		for _, typ := range filter {
			if kid.Type == typ {
				out = append(out, kid)
				break
			}
		}
	}
	return out
}

// Descendants returns every item below id in depth-first pre-order.
func (t *Tree) Descendants(id string) []*StoredItem {
	var out []*StoredItem
	visited := map[string]bool{id: true}
	var walk func(parentID string)
	walk = func(parentID string) {
		for _, kid := range t.children[parentID] {
			if visited[kid.ID] {
				continue
			}
			visited[kid.ID] = true
			out = append(out, kid)
			if kid.IsFolder() {
				walk(kid.ID)
			}
		}
	}
	walk(id)
	return out
}

// Ancestors returns the ids above id, nearest parent first. The walk stops at
// the root, at an unresolvable parent or when a cycle is detected.
func (t *Tree) Ancestors(id string) []string {
	var out []string
	visited := map[string]bool{id: true}
	item, ok := t.byID[id]
	for ok && item.ParentID != "" {
		if visited[item.ParentID] {
			break
		}
		visited[item.ParentID] = true
		out = append(out, item.ParentID)
		item, ok = t.byID[item.ParentID]
	}
	return out
}

// IsAncestor reports whether ancestorID appears on the parent chain of id.
func (t *Tree) IsAncestor(ancestorID, id string) bool {
	for _, a := range t.Ancestors(id) {
		if a == ancestorID {
			return true
		}
	}
	return false
}

// Path returns the root-to-node name path joined with "/".
func (t *Tree) Path(id string) string {
	item, ok := t.byID[id]
	if !ok {
		return ""
	}
	names := []string{item.Name}
	for _, a := range t.Ancestors(id) {
		parent, ok := t.byID[a]
		if !ok {
			break
		}
		names = append(names, parent.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "/")
}

// IsOrphan reports whether the item's parent does not resolve to a folder.
func (t *Tree) IsOrphan(item *StoredItem) bool {
	if item.ParentID == "" {
		return false
	}
	parent, ok := t.byID[item.ParentID]
	return !ok || !parent.IsFolder()
}

// Orphans returns the items whose parent does not resolve to a folder.
func (t *Tree) Orphans() []*StoredItem {
	var out []*StoredItem
	for _, item := range t.items {
		if t.IsOrphan(item) {
			out = append(out, item)
		}
	}
	return out
}

// Folders returns every folder in the zone ordered by path.
func (t *Tree) Folders() []*StoredItem {
	var out []*StoredItem
	for _, item := range t.items {
		if item.IsFolder() {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return t.Path(out[i].ID) < t.Path(out[j].ID)
	})
	return out
}
