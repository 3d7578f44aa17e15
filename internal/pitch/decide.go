package pitch

import "math"

// Opinion is what an LLM reported about a pitch.
type Opinion struct {
	Score           int
	Confidence      int
	Summary         string
	Strengths       []string
	Weaknesses      []string
	Risks           []string
	Recommendations []string
}

// Decide blends the heuristic with an LLM opinion. The LLM weight grows with
// its self-reported confidence and never exceeds one half:
//
//	final = heuristic*(1-w) + llm*w, w = confidence/100 * 0.5
//
// A nil opinion returns the heuristic result unchanged.
func (e *Engine) Decide(in Input, opinion *Opinion) Result {
	result := e.Evaluate(in)
	if opinion == nil {
		return result
	}

	llmConfidence := clamp(opinion.Confidence)
	result.Score = BlendScore(result.Score, opinion.Score, llmConfidence)
	result.Rating = e.Rate(result.Score)
	result.Confidence = max(result.Confidence, llmConfidence)
	result.Source = SourceLLM

	if opinion.Summary != "" {
		result.Summary = opinion.Summary
	}
	if len(opinion.Strengths) > 0 {
		result.Strengths = opinion.Strengths
	}
	if len(opinion.Weaknesses) > 0 {
		result.Weaknesses = opinion.Weaknesses
	}
	if len(opinion.Recommendations) > 0 {
		result.Recommendations = opinion.Recommendations
	}
	// High-severity heuristic risks stay so visibility cannot be talked up.
	if len(opinion.Risks) > 0 {
		risks := make([]Risk, 0, len(opinion.Risks)+len(result.Risks))
		for _, risk := range result.Risks {
			if risk.Severity == SeverityHigh {
				risks = append(risks, risk)
			}
		}
		for _, description := range opinion.Risks {
			risks = append(risks, Risk{Severity: SeverityMedium, Description: description})
		}
		result.Risks = risks
	}
	return result
}

func BlendScore(heuristic, llm, confidence int) int {
	w := float64(clamp(confidence)) / 100 * 0.5
	final := float64(clamp(heuristic))*(1-w) + float64(clamp(llm))*w
	return clamp(int(math.Round(final)))
}

type Visibility struct {
	ListingOrder int
	Badges       []string
	Highlight    bool
}

// VisibilityFor computes the dealflow sort key and badges.
func VisibilityFor(result Result) Visibility {
	highRisk := result.HasHighRisk()
	v := Visibility{Badges: []string{}}
	switch {
	case result.Rating == RatingHigh && !highRisk:
		v.ListingOrder = 1000 + result.Score
	case result.Rating == RatingNormal:
		v.ListingOrder = 500 + result.Score
	default:
		v.ListingOrder = result.Score
	}
	if result.Rating == RatingHigh {
		v.Badges = append(v.Badges, "high-potential")
	}
	if result.Score >= 90 {
		v.Badges = append(v.Badges, "top-rated")
	}
	if !highRisk {
		v.Badges = append(v.Badges, "low-risk")
	}
	v.Highlight = result.Rating == RatingHigh && result.Score >= 85
	return v
}
