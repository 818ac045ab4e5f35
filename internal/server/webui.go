package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/view"
)

// registerWebUIRoutes adds the read-only admin pages.
func (s *Server) registerWebUIRoutes() {
	admin := s.engine.Group("/admin", RequireToken(s.config.APIToken))
	admin.GET("", s.handleAdminDashboard)
	admin.GET("/zones/:zone", s.handleZoneBrowser)
	admin.GET("/tasks", s.handleTaskBrowser)
}

// --- Dashboard ---

func (s *Server) handleAdminDashboard(c *gin.Context) {
	type zoneCard struct {
		Zone        db.Zone
		Folders     int
		Connections int
		Orphans     int
	}
	var cards []zoneCard
	for _, zone := range s.catalog.Zones() {
		tree, err := s.catalog.Snapshot(c.Request.Context(), zone)
		if err != nil {
			respondError(c, err)
			return
		}
		card := zoneCard{Zone: zone, Orphans: len(tree.Orphans())}
		for _, item := range tree.Items() {
			if item.IsFolder() {
				card.Folders++
			} else {
				card.Connections++
			}
		}
		cards = append(cards, card)
	}

	renderHTML(c, dashboardTmpl, map[string]any{
		"Zones":       cards,
		"ActiveTasks": len(s.registry.List()),
	})
}

// --- Zone browser ---

type itemRow struct {
	ID         string
	Name       string
	Type       catalog.ItemType
	Path       string
	Depth      int
	AuthMethod string
	Emulator   bool
}

func (s *Server) handleZoneBrowser(c *gin.Context) {
	zone, ok := zoneParam(c)
	if !ok {
		return
	}
	tree, err := s.catalog.Snapshot(c.Request.Context(), zone)
	if err != nil {
		respondError(c, err)
		return
	}
	v, err := view.Compose(tree, view.ComposeOptions{})
	if err != nil {
		respondError(c, err)
		return
	}

	var rows []itemRow
	var walk func(nodes []*view.Node, depth int)
	walk = func(nodes []*view.Node, depth int) {
		for _, n := range nodes {
			rows = append(rows, newItemRow(n.Item, n.Path, depth))
			walk(n.Children, depth+1)
		}
	}
	walk(v.Roots, 0)

	var orphans []itemRow
	for _, item := range v.Orphans {
		orphans = append(orphans, newItemRow(item, "", 0))
	}

	renderHTML(c, zoneBrowserTmpl, map[string]any{
		"Zone":    zone,
		"Rows":    rows,
		"Orphans": orphans,
	})
}

func newItemRow(item *catalog.StoredItem, path string, depth int) itemRow {
	row := itemRow{
		ID:         item.ID,
		Name:       item.Name,
		Type:       item.Type,
		Path:       path,
		Depth:      depth,
		AuthMethod: item.Properties.SelectedAuthMethod,
	}
	if emu := item.Properties.EmulatorConfiguration; emu != nil {
		row.Emulator = emu.IsEmulator
	}
	return row
}

// --- Tasks ---

func (s *Server) handleTaskBrowser(c *gin.Context) {
	renderHTML(c, taskBrowserTmpl, map[string]any{
		"Tasks": s.registry.GetAllUsedResources(),
	})
}

func renderHTML(c *gin.Context, tmpl *template.Template, data any) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	_ = tmpl.Execute(c.Writer, data)
}

// --- Templates ---

const baseCSS = `
<style>
* { box-sizing: border-box; margin: 0; padding: 0; }
body { font-family: system-ui, -apple-system, sans-serif; background: #f8f9fa; color: #1a1a2e; }
nav { background: #1a1a2e; padding: 12px 24px; display: flex; gap: 24px; align-items: center; }
nav a { color: #e0e0e0; text-decoration: none; font-size: 14px; }
nav a:hover { color: #fff; }
nav .brand { font-weight: 700; font-size: 18px; color: #fff; margin-right: 24px; }
.container { max-width: 1100px; margin: 24px auto; padding: 0 24px; }
.cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 16px; margin-bottom: 24px; }
.card { background: #fff; border-radius: 8px; padding: 20px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
.card .label { font-size: 12px; text-transform: uppercase; color: #666; margin-bottom: 4px; }
.card .value { font-size: 28px; font-weight: 700; }
table { width: 100%; border-collapse: collapse; background: #fff; border-radius: 8px; overflow: hidden; box-shadow: 0 1px 3px rgba(0,0,0,0.1); margin-bottom: 24px; }
th { background: #f0f0f0; text-align: left; padding: 10px 14px; font-size: 12px; text-transform: uppercase; color: #666; }
td { padding: 10px 14px; border-top: 1px solid #eee; font-size: 14px; }
tr:hover td { background: #f8f8ff; }
.type { display: inline-block; background: #e8ffe8; color: #228822; padding: 2px 8px; border-radius: 10px; font-size: 11px; }
.tag { display: inline-block; background: #e8e8ff; color: #4444aa; padding: 2px 8px; border-radius: 10px; font-size: 11px; margin: 1px; }
.orphan { color: #ef4444; font-weight: 600; }
h2 { margin-bottom: 16px; }
.id { font-family: monospace; font-size: 12px; color: #666; }
.empty { text-align: center; padding: 40px; color: #999; }
</style>
`

const navHTML = `
<nav>
<span class="brand">dbconn</span>
<a href="/admin">Dashboard</a>
<a href="/admin/zones/Clusters">Clusters</a>
<a href="/admin/zones/Emulators">Emulators</a>
<a href="/admin/tasks">Tasks</a>
</nav>
`

var tmplFuncs = template.FuncMap{
	"indent": func(depth int) string { return strings.Repeat("    ", depth) },
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html><head><title>dbconn | Dashboard</title>` + baseCSS + `</head><body>
` + navHTML + `
<div class="container">
<h2>Dashboard</h2>
<div class="cards">
<div class="card"><div class="label">Active tasks</div><div class="value">{{.ActiveTasks}}</div></div>
</div>
<table>
<thead><tr><th>Zone</th><th>Folders</th><th>Connections</th><th>Orphans</th></tr></thead>
<tbody>
{{range .Zones}}
<tr>
<td><a href="/admin/zones/{{.Zone}}">{{.Zone}}</a></td>
<td>{{.Folders}}</td>
<td>{{.Connections}}</td>
<td>{{if .Orphans}}<span class="orphan">{{.Orphans}}</span>{{else}}0{{end}}</td>
</tr>
{{end}}
</tbody>
</table>
</div>
</body></html>`))

var zoneBrowserTmpl = template.Must(template.New("zone").Funcs(tmplFuncs).Parse(`<!DOCTYPE html>
<html><head><title>dbconn | {{.Zone}}</title>` + baseCSS + `</head><body>
` + navHTML + `
<div class="container">
<h2>{{.Zone}}</h2>
{{if .Rows}}
<table>
<thead><tr><th>Name</th><th>Type</th><th>Path</th><th>Auth</th><th>ID</th></tr></thead>
<tbody>
{{range .Rows}}
<tr>
<td>{{indent .Depth}}{{.Name}}{{if .Emulator}} <span class="tag">emulator</span>{{end}}</td>
<td><span class="type">{{.Type}}</span></td>
<td>{{.Path}}</td>
<td>{{.AuthMethod}}</td>
<td class="id">{{.ID}}</td>
</tr>
{{end}}
</tbody>
</table>
{{else}}<div class="empty">No items in this zone.</div>{{end}}
{{if .Orphans}}
<h2 class="orphan">Orphaned</h2>
<table>
<thead><tr><th>Name</th><th>Type</th><th>ID</th></tr></thead>
<tbody>
{{range .Orphans}}
<tr><td>{{.Name}}</td><td><span class="type">{{.Type}}</span></td><td class="id">{{.ID}}</td></tr>
{{end}}
</tbody>
</table>
{{end}}
</div>
</body></html>`))

var taskBrowserTmpl = template.Must(template.New("tasks").Parse(`<!DOCTYPE html>
<html><head><title>dbconn | Tasks</title>` + baseCSS + `</head><body>
` + navHTML + `
<div class="container">
<h2>Running tasks</h2>
{{if .Tasks}}
<table>
<thead><tr><th>Task</th><th>Type</th><th>Resources</th><th>Started</th></tr></thead>
<tbody>
{{range .Tasks}}
<tr>
<td>{{.Task.TaskName}} <span class="id">{{.Task.TaskID}}</span></td>
<td><span class="type">{{.Task.TaskType}}</span></td>
<td>{{range .Resources}}<span class="tag">{{.ConnectionID}}{{if .DatabaseName}}/{{.DatabaseName}}{{end}}{{if .CollectionName}}/{{.CollectionName}}{{end}}</span>{{end}}</td>
<td>{{.StartedAt.Format "2006-01-02 15:04:05"}}</td>
</tr>
{{end}}
</tbody>
</table>
{{else}}<div class="empty">No running tasks.</div>{{end}}
</div>
</body></html>`))
