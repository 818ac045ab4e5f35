package view

import (
	"fmt"
	"strings"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
)

// RenderTemplate renders a zone view by name: "text" (default) or
// "markdown".
func RenderTemplate(v *ZoneView, templateName string) string {
	switch templateName {
	case "markdown":
		return RenderMarkdown(v)
	default:
		return RenderText(v)
	}
}

// RenderText draws the zone as an indented tree.
func RenderText(v *ZoneView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d folders, %d connections)\n", v.Zone, v.FolderCount, v.ConnectionCount)

	var walk func(nodes []*Node, prefix string)
	walk = func(nodes []*Node, prefix string) {
		for i, n := range nodes {
			branch, next := "├── ", "│   "
			if i == len(nodes)-1 {
				branch, next = "└── ", "    "
			}
			fmt.Fprintf(&b, "%s%s%s\n", prefix, branch, label(n.Item))
			walk(n.Children, prefix+next)
		}
	}
	walk(v.Roots, "")

	if len(v.Orphans) > 0 {
		fmt.Fprintf(&b, "orphaned (%d):\n", len(v.Orphans))
		for _, o := range v.Orphans {
			fmt.Fprintf(&b, "  %s parent=%s\n", label(o), o.ParentID)
		}
	}
	return b.String()
}

// RenderMarkdown renders the zone as a nested list.
func RenderMarkdown(v *ZoneView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", v.Zone)
	fmt.Fprintf(&b, "> %d folders, %d connections\n\n", v.FolderCount, v.ConnectionCount)

	var walk func(nodes []*Node, depth int)
	walk = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			indent := strings.Repeat("  ", depth)
			if n.Item.IsFolder() {
				fmt.Fprintf(&b, "%s- **%s/**\n", indent, n.Item.Name)
			} else {
				fmt.Fprintf(&b, "%s- %s `%s`\n", indent, n.Item.Name, n.Item.ID)
			}
			walk(n.Children, depth+1)
		}
	}
	walk(v.Roots, 0)

	if len(v.Orphans) > 0 {
		b.WriteString("\n### Orphaned\n\n")
		for _, o := range v.Orphans {
			fmt.Fprintf(&b, "- %s `%s` (missing parent `%s`)\n", o.Name, o.ID, o.ParentID)
		}
	}
	return b.String()
}

func label(item *catalog.StoredItem) string {
	if item.IsFolder() {
		return item.Name + "/"
	}
	suffix := ""
	if item.Properties.EmulatorConfiguration != nil && item.Properties.EmulatorConfiguration.IsEmulator {
		suffix = " (emulator)"
	}
	return fmt.Sprintf("%s [%s]%s", item.Name, shortID(item.ID), suffix)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
