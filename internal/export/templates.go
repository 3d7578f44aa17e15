package export

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"
)

var componentOrder = []string{"team", "market", "tokenomics", "traction", "docs"}

var funcs = template.FuncMap{
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("Jan 2, 2006")
	},
	"number": formatNumber,
	"rich":   RichText,
}

var (
	reportTemplate     = template.Must(template.New("report.html").Funcs(funcs).Parse(styleBlock + reportHTML))
	whitepaperTemplate = template.Must(template.New("whitepaper.html").Funcs(funcs).Parse(styleBlock + whitepaperHTML))
)

type componentRow struct {
	Name  string
	Score int
}

type reportView struct {
	ReportData
	Rows []componentRow
}

// RenderReportHTML renders the pitch analysis report.
func RenderReportHTML(data ReportData) (string, error) {
	view := reportView{ReportData: data, Rows: orderedComponents(data.Components)}
	var buf bytes.Buffer
	if err := reportTemplate.ExecuteTemplate(&buf, "report", view); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

// RenderWhitepaperHTML renders the generated project whitepaper.
func RenderWhitepaperHTML(data WhitepaperData) (string, error) {
	var buf bytes.Buffer
	if err := whitepaperTemplate.ExecuteTemplate(&buf, "whitepaper", data); err != nil {
		return "", fmt.Errorf("render whitepaper: %w", err)
	}
	return buf.String(), nil
}

// orderedComponents lists known components first, then any others by name.
func orderedComponents(components map[string]int) []componentRow {
	rows := make([]componentRow, 0, len(components))
	seen := map[string]bool{}
	for _, name := range componentOrder {
		if score, ok := components[name]; ok {
			rows = append(rows, componentRow{Name: name, Score: score})
			seen[name] = true
		}
	}
	var rest []string
	for name := range components {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		rows = append(rows, componentRow{Name: name, Score: components[name]})
	}
	return rows
}

func formatNumber(v float64) string {
	switch {
	case v >= 1e9:
		return trimZero(fmt.Sprintf("%.2f", v/1e9)) + "B"
	case v >= 1e6:
		return trimZero(fmt.Sprintf("%.2f", v/1e6)) + "M"
	case v >= 1e3:
		return trimZero(fmt.Sprintf("%.1f", v/1e3)) + "K"
	}
	return trimZero(fmt.Sprintf("%.2f", v))
}

func trimZero(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	return strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
}

const styleBlock = `{{define "style"}}<style>
  body { font-family: Helvetica, Arial, sans-serif; line-height: 1.55; color: #1b1f24; max-width: 760px; margin: 0 auto; }
  h1 { border-bottom: 3px solid #3b5bdb; padding-bottom: .4rem; margin-bottom: .2rem; }
  h2 { color: #3b5bdb; margin-top: 1.8rem; }
  .meta { color: #5c6670; font-size: .9em; }
  .score { font-size: 2.4em; font-weight: bold; }
  .rating-High { color: #2b8a3e; } .rating-Normal { color: #e67700; } .rating-Low { color: #c92a2a; }
  table { border-collapse: collapse; width: 100%; }
  td, th { border-bottom: 1px solid #dee2e6; padding: .35rem .5rem; text-align: left; }
  .badge { display: inline-block; background: #edf2ff; color: #3b5bdb; border-radius: 4px; padding: 0 .4rem; margin-right: .3rem; font-size: .85em; }
  .footer { margin-top: 2.5rem; color: #868e96; font-size: .8em; }
</style>{{end}}`

const reportHTML = `{{define "list"}}{{if .}}<ul>{{range .}}<li>{{.}}</li>{{end}}</ul>{{else}}<p class="meta">None recorded.</p>{{end}}{{end}}
{{define "report"}}<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.ProjectName}} - RaftAI analysis</title>
  {{template "style"}}
</head>
<body>
  <h1>{{.ProjectName}}</h1>
  <div class="meta">{{.Sector}} | {{.Stage}} | {{.Chain}}{{if .FounderName}} | {{.FounderName}}{{end}}</div>
  <p><span class="score rating-{{.Rating}}">{{.Score}}</span> / 100 &middot; <strong class="rating-{{.Rating}}">{{.Rating}}</strong> &middot; confidence {{.Confidence}}%</p>
  {{if .Badges}}<p>{{range .Badges}}<span class="badge">{{.}}</span>{{end}}</p>{{end}}
  {{if .Summary}}<h2>Summary</h2><p>{{.Summary}}</p>{{end}}
  <h2>Components</h2>
  <table>
    <tr><th>Component</th><th>Score</th></tr>
    {{range .Rows}}<tr><td>{{title .Name}}</td><td>{{.Score}}</td></tr>
    {{end}}
  </table>
  <h2>Strengths</h2>{{template "list" .Strengths}}
  <h2>Weaknesses</h2>{{template "list" .Weaknesses}}
  <h2>Risks</h2>{{template "list" .Risks}}
  <h2>Recommendations</h2>{{template "list" .Recommendations}}
  <div class="footer">Generated by RaftAI ({{.Source}}) on {{date .AnalysedAt}}. Scores are indicative and not investment advice.</div>
</body>
</html>{{end}}`

const whitepaperHTML = `{{define "whitepaper"}}<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.ProjectName}} whitepaper</title>
  {{template "style"}}
</head>
<body>
  <h1>{{.ProjectName}}</h1>
  <div class="meta">Whitepaper{{if .FounderName}} | {{.FounderName}}{{end}} | {{date .GeneratedAt}}</div>
  <h2>Overview</h2>
  {{if .Summary}}{{rich .Summary}}{{else}}<p>{{.ProjectName}} is a {{.Stage}} stage {{.Sector}} project building on {{.Chain}}.</p>{{end}}
  <h2>Market</h2>
  <p>{{.ProjectName}} operates in the {{.Sector}} sector and is deployed on {{.Chain}}.</p>
  <h2>Team and traction</h2>
  <table>
    <tr><td>Stage</td><td>{{.Stage}}</td></tr>
    <tr><td>Team size</td><td>{{if .TeamSize}}{{.TeamSize}}{{else}}Not disclosed{{end}}</td></tr>
    <tr><td>Users</td><td>{{if .Users}}{{.Users}}{{else}}Not disclosed{{end}}</td></tr>
    <tr><td>Monthly revenue</td><td>{{if .Revenue}}${{number .Revenue}}{{else}}Not disclosed{{end}}</td></tr>
  </table>
  <h2>Tokenomics</h2>
  {{if .HasTokens}}<table>
    <tr><td>Total supply</td><td>{{number .TotalSupply}}</td></tr>
    <tr><td>Unlocked at TGE</td><td>{{.TGEPercent}}%</td></tr>
  </table>{{else}}<p>Token model to be announced.</p>{{end}}
  {{if .Website}}<h2>Links</h2><p>{{.Website}}</p>{{end}}
  <div class="footer">This document was generated from the project's CryptoRafts profile.</div>
</body>
</html>{{end}}`
