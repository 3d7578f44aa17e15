// Package export renders project reports and whitepapers to PDF.
package export

import (
	"errors"
	"time"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat accepts "", "pdf" and "html". Empty means PDF.
func ParseFormat(raw string) (Format, bool) {
	switch Format(raw) {
	case "", FormatPDF:
		return FormatPDF, true
	case FormatHTML:
		return FormatHTML, true
	}
	return "", false
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates headless Chrome is not available.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrNoAnalysis is returned when a report is requested for an unanalysed project.
	ErrNoAnalysis = errors.New("project has no analysis")
)

// ReportData is the input of the pitch analysis report.
type ReportData struct {
	ProjectName string
	FounderName string
	Sector      string
	Stage       string
	Chain       string
	Score       int
	Rating      string
	Confidence  int
	Source      string
	Components  map[string]int

	Summary         string
	Strengths       []string
	Weaknesses      []string
	Risks           []string
	Recommendations []string
	Badges          []string
	AnalysedAt      time.Time
}

// WhitepaperData is the input of the generated project whitepaper.
type WhitepaperData struct {
	ProjectName string
	FounderName string
	Sector      string
	Stage       string
	Chain       string
	Summary     string
	TeamSize    int
	Users       int64
	Revenue     float64
	TotalSupply float64
	TGEPercent  float64
	HasTokens   bool
	Website     string
	GeneratedAt time.Time
}
