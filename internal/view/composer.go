package view

import (
	"fmt"
	"time"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
)

type ComposeOptions struct {
	// Under restricts the view to the subtree of this folder.
	Under string
	// ConnectionsOnly hides folders that contain no connection.
	ConnectionsOnly bool
}

type Node struct {
	Item     *catalog.StoredItem `json:"item"`
	Path     string              `json:"path"`
	Children []*Node             `json:"children,omitempty"`
}

type ZoneView struct {
	Zone            db.Zone               `json:"zone"`
	Roots           []*Node               `json:"roots"`
	Orphans         []*catalog.StoredItem `json:"orphans,omitempty"`
	FolderCount     int                   `json:"folder_count"`
	ConnectionCount int                   `json:"connection_count"`
	RenderedAt      time.Time             `json:"rendered_at"`
}

// Compose builds the nested view of a zone snapshot. Orphans are listed
// separately instead of being attached anywhere.
func Compose(tree *catalog.Tree, opts ComposeOptions) (*ZoneView, error) {
	v := &ZoneView{
		Zone:       tree.Zone,
		RenderedAt: time.Now().UTC(),
	}

	start := ""
	if opts.Under != "" {
		under, ok := tree.Get(opts.Under)
		if !ok {
			return nil, fmt.Errorf("item %s: %w", opts.Under, db.ErrNotFound)
		}
		if !under.IsFolder() {
			return nil, fmt.Errorf("%q is not a folder", under.Name)
		}
		start = under.ID
	} else {
		v.Orphans = tree.Orphans()
	}

	visited := map[string]bool{}
	var build func(parentID string) []*Node
	build = func(parentID string) []*Node {
		var nodes []*Node
		for _, item := range tree.Children(parentID) {
			if visited[item.ID] {
				continue
			}
			visited[item.ID] = true
			n := &Node{Item: item, Path: tree.Path(item.ID)}
			switch item.Type {
			case catalog.ItemTypeFolder:
				n.Children = build(item.ID)
				if opts.ConnectionsOnly && !hasConnection(n) {
					continue
				}
				v.FolderCount++
			case catalog.ItemTypeConnection:
				v.ConnectionCount++
			}
			nodes = append(nodes, n)
		}
		return nodes
	}
	v.Roots = build(start)
	return v, nil
}

func hasConnection(n *Node) bool {
	for _, c := range n.Children {
		if c.Item.IsConnection() || hasConnection(c) {
			return true
		}
	}
	return false
}
