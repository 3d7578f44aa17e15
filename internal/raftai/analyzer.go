package raftai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cryptorafts/api/internal/logger"
	"cryptorafts/api/internal/pitch"
)

const analysisTemperature = 0.3

const analysisSystemPrompt = `You are RaftAI, a crypto venture analyst. Evaluate the project pitch you are given.
Respond with a single JSON object with these keys:
"score" (integer 0-100), "confidence" (integer 0-100, how sure you are given the data),
"summary" (string), "strengths", "weaknesses", "risks", "recommendations" (arrays of short strings).
Be critical: missing tokenomics or a missing description are serious gaps.`

// Analyzer scores pitches, asking the LLM when one is configured and falling
// back to the data-driven heuristic otherwise.
type Analyzer struct {
	llm    Completer
	engine *pitch.Engine
	log    *logger.Logger
}

// NewAnalyzer accepts a nil llm, in which case every analysis is data-driven.
func NewAnalyzer(llm Completer, engine *pitch.Engine, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{llm: llm, engine: engine, log: log}
}

func (a *Analyzer) Enabled() bool {
	return a.llm != nil
}

type llmOpinion struct {
	Score           *int     `json:"score"`
	Confidence      int      `json:"confidence"`
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Risks           []string `json:"risks"`
	Recommendations []string `json:"recommendations"`
}

// Analyze never fails: LLM errors degrade to the heuristic result.
func (a *Analyzer) Analyze(ctx context.Context, in pitch.Input) pitch.Result {
	if a.llm == nil {
		return a.engine.Decide(in, nil)
	}
	opinion, err := a.ask(ctx, in)
	if err != nil {
		a.log.Warn("raftai analysis falling back to data", "project", in.Name, "error", err.Error())
		return a.engine.Decide(in, nil)
	}
	return a.engine.Decide(in, opinion)
}

func (a *Analyzer) ask(ctx context.Context, in pitch.Input) (*pitch.Opinion, error) {
	content, err := a.llm.Complete(ctx, []ChatMessage{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: describePitch(in)},
	}, CompletionOptions{Temperature: analysisTemperature, JSON: true, MaxTokens: 1200})
	if err != nil {
		return nil, err
	}
	var parsed llmOpinion
	if err := json.Unmarshal([]byte(extractJSON(content)), &parsed); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	if parsed.Score == nil || *parsed.Score < 0 || *parsed.Score > 100 {
		return nil, fmt.Errorf("analysis score out of range")
	}
	return &pitch.Opinion{
		Score:           *parsed.Score,
		Confidence:      parsed.Confidence,
		Summary:         strings.TrimSpace(parsed.Summary),
		Strengths:       parsed.Strengths,
		Weaknesses:      parsed.Weaknesses,
		Risks:           parsed.Risks,
		Recommendations: parsed.Recommendations,
	}, nil
}

func describePitch(in pitch.Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", in.Name)
	fmt.Fprintf(&b, "Sector: %s\nStage: %s\nChain: %s\n", in.Sector, in.Stage, in.Chain)
	fmt.Fprintf(&b, "Team size: %d\n", in.TeamSize)
	fmt.Fprintf(&b, "Users: %d\nMonthly revenue (USD): %.0f\n", in.Users, in.MonthlyRevenue)
	if in.Tokenomics.Defined() {
		fmt.Fprintf(&b, "Total supply: %.0f\nTGE unlock: %.1f%%\n", in.Tokenomics.TotalSupply, in.Tokenomics.TGEPercent)
	} else {
		b.WriteString("Tokenomics: not provided\n")
	}
	fmt.Fprintf(&b, "Whitepaper: %t\nPitch deck: %t\n", in.HasWhitepaper, in.HasDeck)
	summary := strings.TrimSpace(in.Summary)
	if summary == "" {
		summary = "not provided"
	}
	fmt.Fprintf(&b, "Description: %s\n", summary)
	return b.String()
}

// extractJSON tolerates models that wrap the object in prose or code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
