package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/sweeney/home-sensors/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "unknown"
		}
		return s
	},
	"stateClass": func(s string) string {
		switch s {
		case "ON", "open", "opening":
			return "on"
		case "OFF", "closed", "closing":
			return "off"
		}
		return "unknown"
	},
	"sortedKeys": func(m map[string]string) []string {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Home Sensors</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.3em; }
h2 { font-size: 1.1em; margin-top: 1.5em; }
table { border-collapse: collapse; width: 100%; margin: 0.5em 0 1em; }
td, th { text-align: left; padding: 3px 8px; border-bottom: 1px solid #e4e4e4; }
th { width: 35%; font-weight: normal; color: #333; }
.on, .connected { color: #1a7f37; font-weight: bold; }
.off { color: #777; }
.unknown { color: #c77700; }
.disconnected { color: #c0392b; font-weight: bold; }
.attrs th, .attrs td { color: #666; font-size: 0.9em; }
</style>
</head>
<body>
<h1>Home Sensors{{if .Config.Mode}} ({{.Config.Mode}}){{end}}</h1>

<h2>Devices</h2>
{{range .Devices}}
<table id="device-{{.ID}}">
<tr><th>{{.Name}}</th><td class="{{stateClass .State}}">{{stateOrUnknown .State}}</td></tr>
<tr><th>Kind</th><td>{{.Kind}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
{{if not .LastChange.IsZero}}<tr><th>Last change</th><td>{{.LastChange.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
<tr><th>Reports</th><td>{{.Counts.Reports}}</td></tr>
{{if .Counts.Triggers}}<tr><th>Triggers</th><td>{{.Counts.Triggers}}</td></tr>{{end}}
{{if .Counts.Suppressed}}<tr><th>Suppressed</th><td>{{.Counts.Suppressed}}</td></tr>{{end}}
{{if .Counts.ReadErrors}}<tr><th>Read errors</th><td>{{.Counts.ReadErrors}}</td></tr>{{end}}
{{$attrs := .Attributes}}{{range sortedKeys $attrs}}<tr class="attrs"><th>{{.}}</th><td>{{index $attrs .}}</td></tr>
{{end}}
</table>
{{else}}
<p>No devices yet.</p>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, snap)
}

// formatUptime renders d as "1d 2h 3m 4s", omitting leading zero units.
func formatUptime(d time.Duration) string {
	total := int64(d.Truncate(time.Second) / time.Second)
	units := []struct {
		size   int64
		suffix string
	}{
		{86400, "d"},
		{3600, "h"},
		{60, "m"},
	}
	var parts []string
	for _, u := range units {
		if n := total / u.size; n > 0 || len(parts) > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
		}
		total %= u.size
	}
	parts = append(parts, fmt.Sprintf("%ds", total))
	return strings.Join(parts, " ")
}
