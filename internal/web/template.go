package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/prox-alert/internal/ranging"
	"github.com/sweeney/prox-alert/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"command": func(cmd ranging.Command) string {
		if cmd == nil {
			return "UNKNOWN"
		}
		return cmd.String()
	},
	"color": func(cmd ranging.Command) string {
		if cmd == nil {
			return "unknown"
		}
		return string(ranging.ColorOf(cmd))
	},
	"timestamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Proximity Alert</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.red { color: red; font-weight: bold; }
.green { color: green; font-weight: bold; }
.blue { color: blue; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Proximity Alert</h1>

<h2>Range</h2>
<table>
<tr><th>LED</th><td id="led" class="{{color .Command}}">{{command .Command}}</td></tr>
{{if .Measured}}<tr><th>Distance</th><td id="distance">{{printf "%.1f" .Distance}} cm</td></tr>
<tr><th>Band</th><td id="band">{{.Band}}</td></tr>{{else}}<tr><th>Distance</th><td id="distance" class="unknown">no echo yet</td></tr>{{end}}
<tr><th>Last measurement</th><td>{{timestamp .LastMeasurement}}</td></tr>
<tr><th>Last echo timeout</th><td>{{timestamp .LastTimeout}}</td></tr>
</table>

<h2>Pipeline</h2>
<table>
<tr><th>Trigger cycles</th><td>{{.Counters.TriggerCycles}}</td></tr>
<tr><th>Echo captures</th><td>{{.Counters.Capture.Captures}}</td></tr>
<tr><th>Spurious interrupts</th><td>{{.Counters.Capture.Spurious}}</td></tr>
<tr><th>Duplicate edges</th><td>{{.Counters.Capture.Duplicates}}</td></tr>
<tr><th>Echo timeouts</th><td>{{.Counters.Monitor.Timeouts}}</td></tr>
<tr><th>Measurements</th><td>{{.Counters.Monitor.Measurements}}</td></tr>
<tr><th>Range changes</th><td>{{.Counters.Monitor.Changes}}</td></tr>
<tr><th>Rejected</th><td>{{.Counters.Monitor.Rejected}}</td></tr>
<tr><th>Actuator</th><td>{{.Counters.ActuatorState}} ({{.Counters.Wakes}} wakes)</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Trigger period</th><td>{{.Config.PeriodMs}}ms</td></tr>
<tr><th>Trigger pulse</th><td>{{.Config.PulseUs}}us</td></tr>
<tr><th>Echo timeout</th><td>{{.Config.EchoTimeoutMs}}ms</td></tr>
<tr><th>Timer</th><td>{{.Config.TickHz}} Hz</td></tr>
<tr><th>Bands</th><td>{{.Config.Bands}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() and Measured() methods but the template reads fields.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Measured bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Measured: snap.Measured(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
