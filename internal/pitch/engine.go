// Package pitch scores project pitches with a lookup-table heuristic and
// blends the result with an optional LLM opinion.
package pitch

import (
	"fmt"
	"math"
	"strings"
)

type Rating string

const (
	RatingHigh   Rating = "High"
	RatingNormal Rating = "Normal"
	RatingLow    Rating = "Low"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const (
	SourceData = "data"
	SourceLLM  = "llm"
)

// Input is the part of a project the heuristic looks at.
type Input struct {
	Name           string
	Sector         string
	Stage          string
	Chain          string
	Summary        string
	TeamSize       int
	Users          int64
	MonthlyRevenue float64
	// Tokenomics without a positive total supply count as undefined.
	Tokenomics    *Tokenomics
	HasWhitepaper bool
	HasDeck       bool
}

type Tokenomics struct {
	TotalSupply float64
	TGEPercent  float64
}

// Defined reports whether a total supply has been set.
func (t *Tokenomics) Defined() bool {
	return t != nil && t.TotalSupply > 0
}

type Components struct {
	Team       int `json:"team"`
	Market     int `json:"market"`
	Tokenomics int `json:"tokenomics"`
	Traction   int `json:"traction"`
	Docs       int `json:"docs"`
}

func (c Components) Map() map[string]int {
	return map[string]int{
		"team":       c.Team,
		"market":     c.Market,
		"tokenomics": c.Tokenomics,
		"traction":   c.Traction,
		"docs":       c.Docs,
	}
}

type Risk struct {
	Severity    Severity
	Description string
}

type Result struct {
	Score           int
	Rating          Rating
	Confidence      int
	Components      Components
	Summary         string
	Strengths       []string
	Weaknesses      []string
	Risks           []Risk
	Recommendations []string
	Source          string
}

func (r Result) RiskDescriptions() []string {
	out := make([]string, 0, len(r.Risks))
	for _, risk := range r.Risks {
		out = append(out, risk.Description)
	}
	return out
}

func (r Result) HasHighRisk() bool {
	for _, risk := range r.Risks {
		if risk.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Engine evaluates pitches against a fixed set of tables. It is safe for
// concurrent use.
type Engine struct {
	tables Tables
}

func NewEngine(tables Tables) *Engine {
	return &Engine{tables: tables}
}

func (e *Engine) Tables() Tables {
	return e.tables
}

// Evaluate runs the data-driven heuristic.
func (e *Engine) Evaluate(in Input) Result {
	sectorName, sector := e.tables.sector(in.Sector)
	stageName, stage := e.tables.stage(in.Stage)
	chainName, chain := e.tables.chain(in.Chain)

	hasSummary := strings.TrimSpace(in.Summary) != ""
	tokenomics := in.Tokenomics
	if !tokenomics.Defined() {
		tokenomics = nil
	}
	hasTokenomics := tokenomics != nil
	summaryLen := len([]rune(strings.TrimSpace(in.Summary)))

	tokenomicsScore, tokenomicsDetail := TokenomicsScore(tokenomics)
	components := Components{
		Team:       teamScore(in.TeamSize, stage.Score),
		Market:     clamp(int(math.Round(float64(sector.Score+chain.Score) / 2))),
		Tokenomics: tokenomicsScore,
		Traction:   tractionScore(stage.Score, in.Users, in.MonthlyRevenue),
		Docs:       DocsScore(in.Summary, in.HasWhitepaper, in.HasDeck),
	}
	score := e.weighted(components)
	rating := e.Rate(score)

	result := Result{
		Score:      score,
		Rating:     rating,
		Confidence: DataConfidence(hasSummary, hasTokenomics, score),
		Components: components,
		Source:     SourceData,
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "This project"
	}
	switch {
	case hasSummary && hasTokenomics:
		result.Summary = fmt.Sprintf("%s is a %s project on %s at %s stage (score %d/100). %s. %s.", name, sectorName, chainName, stageName, score, sector.Label, stage.Label)
	case hasSummary:
		result.Summary = fmt.Sprintf("%s is a %s project on %s at %s stage (score %d/100). %s. Tokenomics are missing, which prevents a full evaluation.", name, sectorName, chainName, stageName, score, sector.Label)
	default:
		result.Summary = fmt.Sprintf("%s is a %s project on %s at %s stage (score %d/100). Essential information is missing; add a detailed project description.", name, sectorName, chainName, stageName, score)
	}

	result.Strengths = []string{
		fmt.Sprintf("%s (sector score %d/100)", sector.Label, sector.Score),
		fmt.Sprintf("%s on %s", chain.Label, chainName),
		fmt.Sprintf("%s (stage score %d/100)", stage.Label, stage.Score),
	}
	if hasTokenomics && tokenomicsScore >= 70 {
		result.Strengths = append(result.Strengths, tokenomicsDetail)
	}
	if summaryLen > 200 {
		result.Strengths = append(result.Strengths, fmt.Sprintf("Comprehensive project description (%d characters)", summaryLen))
	}
	if in.TeamSize >= 5 {
		result.Strengths = append(result.Strengths, fmt.Sprintf("Team of %d people", in.TeamSize))
	}

	result.Weaknesses = []string{}
	switch {
	case !hasSummary:
		result.Weaknesses = append(result.Weaknesses, "No project description; value proposition, team and technology cannot be evaluated")
	case summaryLen < 100:
		result.Weaknesses = append(result.Weaknesses, "Project description is too brief")
	}
	if !hasTokenomics {
		result.Weaknesses = append(result.Weaknesses, "Tokenomics undefined; supply, distribution and economics cannot be assessed")
	} else if tokenomicsScore < 50 {
		result.Weaknesses = append(result.Weaknesses, tokenomicsDetail)
	}
	if stage.Score < 60 {
		result.Weaknesses = append(result.Weaknesses, "Early development stage; product-market fit is not yet demonstrated")
	}
	if sector.Score < 60 {
		result.Weaknesses = append(result.Weaknesses, sector.Label)
	}
	if in.TeamSize == 0 {
		result.Weaknesses = append(result.Weaknesses, "Team size not reported")
	}

	competition := "requires a clear differentiation strategy"
	if sector.Score >= 80 {
		competition = "has high competition from established players"
	}
	result.Risks = []Risk{
		{Severity: stage.Severity, Description: stage.Risk},
		{Severity: SeverityMedium, Description: fmt.Sprintf("Market competition: the %s sector %s", sectorName, competition)},
		{Severity: SeverityMedium, Description: "Crypto market volatility and regulatory uncertainty"},
	}
	if !hasSummary {
		result.Risks = append(result.Risks, Risk{Severity: SeverityHigh, Description: "Team, technology and execution risk cannot be assessed without project details"})
	}
	if !hasTokenomics {
		result.Risks = append(result.Risks, Risk{Severity: SeverityHigh, Description: "Token economics risk: no clarity on supply, distribution or vesting"})
	} else if tokenomics.TGEPercent > 20 {
		result.Risks = append(result.Risks, Risk{Severity: SeverityHigh, Description: fmt.Sprintf("TGE unlock of %.0f%% creates sell pressure at launch", tokenomics.TGEPercent)})
	}
	if chain.Score < 70 {
		result.Risks = append(result.Risks, Risk{Severity: SeverityMedium, Description: fmt.Sprintf("Blockchain choice: %s has %s", chainName, strings.ToLower(chain.Label))})
	}

	result.Recommendations = []string{}
	switch {
	case !hasSummary:
		result.Recommendations = append(result.Recommendations, "Provide a detailed project description covering team, technology, problem and go-to-market")
	case summaryLen <= 200:
		result.Recommendations = append(result.Recommendations, "Expand the project description with technical details and competitive advantages")
	}
	if !hasTokenomics {
		result.Recommendations = append(result.Recommendations, "Define complete tokenomics: total supply, distribution, vesting, TGE and utility")
	}
	if stage.Score < 60 {
		result.Recommendations = append(result.Recommendations, "Build an MVP and gather user feedback to validate product-market fit")
	} else {
		result.Recommendations = append(result.Recommendations, "Increase traction metrics and publish them")
	}
	if !in.HasWhitepaper {
		result.Recommendations = append(result.Recommendations, "Upload a whitepaper")
	}
	result.Recommendations = append(result.Recommendations, "Complete a professional smart contract audit")

	return result
}

// TokenomicsScore scores supply and TGE unlock. Tokenomics without a total
// supply count as missing and score 20.
func TokenomicsScore(t *Tokenomics) (int, string) {
	if !t.Defined() {
		return 20, "Tokenomics not defined"
	}
	score := 70
	var details []string
	switch {
	case t.TotalSupply >= 1e6 && t.TotalSupply <= 1e10:
		score += 15
		details = append(details, fmt.Sprintf("Total supply of %.0f tokens is reasonable", t.TotalSupply))
	case t.TotalSupply > 1e10:
		score += 5
		details = append(details, fmt.Sprintf("Total supply of %.0f tokens may be too high", t.TotalSupply))
	}
	switch {
	case t.TGEPercent >= 5 && t.TGEPercent <= 20:
		score += 15
		details = append(details, fmt.Sprintf("TGE unlock of %.0f%% is in the healthy range", t.TGEPercent))
	case t.TGEPercent > 20:
		score -= 10
		details = append(details, fmt.Sprintf("TGE unlock of %.0f%% is too high", t.TGEPercent))
	}
	if len(details) == 0 {
		details = append(details, "Tokenomics are incomplete")
	}
	return clamp(score), strings.Join(details, "; ")
}

// DocsScore scores the summary length plus supporting documents.
func DocsScore(summary string, hasWhitepaper, hasDeck bool) int {
	summary = strings.TrimSpace(summary)
	score := 20
	switch {
	case len([]rune(summary)) > 200:
		score = 80
	case summary != "":
		score = 60
	}
	if hasWhitepaper {
		score += 10
	}
	if hasDeck {
		score += 10
	}
	return clamp(score)
}

// DataConfidence reports how much the heuristic trusts its own score given
// the data it had.
func DataConfidence(hasSummary, hasTokenomics bool, score int) int {
	s := float64(score)
	var conf float64
	switch {
	case hasSummary && hasTokenomics:
		conf = math.Min(85, 60+0.25*s)
	case hasSummary || hasTokenomics:
		conf = math.Min(60, 40+0.20*s)
	default:
		conf = math.Min(35, 20+0.15*s)
	}
	return clamp(int(math.Round(conf)))
}

func teamScore(size, stageScore int) int {
	if size <= 0 {
		return clamp(20 + stageScore/5)
	}
	return clamp(30 + min(size, 8)*5 + stageScore/5)
}

func tractionScore(stageScore int, users int64, revenue float64) int {
	score := stageScore
	switch {
	case users >= 100_000:
		score += 10
	case users >= 1_000:
		score += 5
	}
	switch {
	case revenue >= 100_000:
		score += 10
	case revenue > 0:
		score += 5
	}
	return clamp(score)
}

func (e *Engine) weighted(c Components) int {
	w := e.tables.Weights
	total := float64(c.Team)*w.Team +
		float64(c.Market)*w.Market +
		float64(c.Tokenomics)*w.Tokenomics +
		float64(c.Traction)*w.Traction +
		float64(c.Docs)*w.Docs
	return clamp(int(math.Round(total)))
}

// Rate buckets a score using the configured thresholds.
func (e *Engine) Rate(score int) Rating {
	switch {
	case score >= e.tables.Thresholds.High:
		return RatingHigh
	case score >= e.tables.Thresholds.Normal:
		return RatingNormal
	default:
		return RatingLow
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
