// Package report renders a run summary as text, JSON or HTML.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/FranksOps/leadgen/internal/pipeline"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat accepts text, json or html, case-insensitively. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("report: unknown format %q", s)
	}
}

// Write renders summary in format f.
func Write(w io.Writer, f Format, summary *pipeline.Summary) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, summary)
	case FormatHTML:
		return WriteHTML(w, summary)
	default:
		return WriteText(w, summary)
	}
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, summary *pipeline.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

var funcs = map[string]any{
	"ts": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	"dur": func(d time.Duration) string {
		return d.Round(time.Millisecond).String()
	},
}

const textTmpl = `Lead Generation Run {{.RunID}}
------------------------------------------------------------
Time:       {{ts .StartedAt}} - {{ts .FinishedAt}} ({{dur .Duration}})
Attempted:  {{.Attempted}}
Succeeded:  {{.Succeeded}}
Failed:     {{.Failed}}
Skipped:    {{.Skipped}}
Leads:      {{.LeadsInserted}}

Targets:
{{- range .Outcomes}}
  [{{.Status}}] #{{.TargetID}} {{.Name}}
{{- if .Query}}
      query: {{.Query}}
{{- end}}
      leads: {{.Leads}}
{{- if .Kind}}
      {{.Kind}}: {{.Error}}
{{- end}}
{{- else}}
  None pending
{{- end}}
`

// WriteText writes a human-readable summary.
func WriteText(w io.Writer, summary *pipeline.Summary) error {
	t, err := template.New("textReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Lead Generation Run {{.RunID}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 120px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; vertical-align: top; }
  th { background: #eaeaea; }
  .failed { color: #b00; }
  .skipped { color: #888; }
</style>
</head>
<body>
  <h1>Lead Generation Run</h1>
  <p><strong>Run:</strong> {{.RunID}}<br>
  <strong>Time:</strong> {{ts .StartedAt}} to {{ts .FinishedAt}} ({{dur .Duration}})</p>

  <div class="stat-card"><div>Attempted</div><div class="stat-val">{{.Attempted}}</div></div>
  <div class="stat-card"><div>Succeeded</div><div class="stat-val">{{.Succeeded}}</div></div>
  <div class="stat-card"><div>Failed</div><div class="stat-val {{if gt .Failed 0}}failed{{end}}">{{.Failed}}</div></div>
  <div class="stat-card"><div>Skipped</div><div class="stat-val">{{.Skipped}}</div></div>
  <div class="stat-card"><div>Leads</div><div class="stat-val">{{.LeadsInserted}}</div></div>

  <h3>Targets</h3>
  <table>
    <tr><th>ID</th><th>Name</th><th>Status</th><th>Query</th><th>Leads</th><th>Error</th></tr>
    {{- range .Outcomes}}
    <tr class="{{.Status}}"><td>{{.TargetID}}</td><td>{{.Name}}</td><td>{{.Status}}</td><td>{{.Query}}</td><td>{{.Leads}}</td><td>{{if .Kind}}{{.Kind}}: {{.Error}}{{end}}</td></tr>
    {{- else}}
    <tr><td colspan="6">None pending</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a standalone HTML page. Target data is escaped.
func WriteHTML(w io.Writer, summary *pipeline.Summary) error {
	t, err := htmltemplate.New("htmlReport").Funcs(funcs).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}
