// Package judge synthesizes the verdict for an execution: per-category
// scores, a weighted overall score, a qualitative risk level, and a short
// summary with prioritized recommendations.
package judge

import (
	"context"
	"fmt"
	"sort"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/logging"
)

// categoryWeights are the fixed contribution of each category to the
// overall score. Categories with no findings still contribute their full
// weight at score 100.
var categoryWeights = map[core.Category]float64{
	core.CategorySecurity:     0.35,
	core.CategoryQuality:      0.25,
	core.CategoryArchitecture: 0.20,
	core.CategoryPerformance:  0.15,
	core.CategoryOther:        0.05,
}

// maxRecommendations caps the recommendation list of a judgment.
const maxRecommendations = 5

// Synthesizer turns a normalized finding set into a Judgment. The optional
// Summarizer provides generative summary text; on failure or absence the
// synthesizer falls back to a deterministic heuristic.
type Synthesizer struct {
	summarizer core.Summarizer
	clock      core.Clock
	logger     *logging.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithSummarizer installs a generative summarizer.
func WithSummarizer(s core.Summarizer) Option {
	return func(j *Synthesizer) {
		j.summarizer = s
	}
}

// WithClock overrides the wall clock (for tests).
func WithClock(clock core.Clock) Option {
	return func(j *Synthesizer) {
		j.clock = clock
	}
}

// New creates a Synthesizer.
func New(logger *logging.Logger, opts ...Option) *Synthesizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	j := &Synthesizer{
		clock:  core.SystemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Synthesize computes the judgment for an execution's finding set.
func (j *Synthesizer) Synthesize(ctx context.Context, exec *core.AnalysisExecution, findings []core.NormalizedFinding) *core.Judgment {
	categoryScores := ComputeCategoryScores(findings)
	overall := ComputeOverallScore(categoryScores)
	risk := ComputeRiskLevel(overall, findings)
	severityCounts := core.CountBySeverity(findings)

	summary, recommendations := j.summarize(ctx, core.SummaryInput{
		ProjectID:      exec.ProjectID,
		OverallScore:   overall,
		CategoryScores: categoryScores,
		SeverityCounts: severityCounts,
		RiskLevel:      risk,
	})

	return &core.Judgment{
		ExecutionID:     exec.ID,
		OverallScore:    overall,
		CategoryScores:  categoryScores,
		Summary:         summary,
		Recommendations: recommendations,
		RiskLevel:       risk,
		GeneratedAt:     j.clock.Now(),
	}
}

func (j *Synthesizer) summarize(ctx context.Context, in core.SummaryInput) (string, []string) {
	if j.summarizer != nil {
		summary, recs, err := j.summarizer.Summarize(ctx, in)
		if err == nil {
			if len(recs) > maxRecommendations {
				recs = recs[:maxRecommendations]
			}
			return summary, recs
		}
		j.logger.Warn("generative summary failed, using heuristic fallback",
			"project_id", in.ProjectID, "error", err)
	}
	return heuristicSummary(in)
}

// ComputeCategoryScores buckets findings by category and scores each
// bucket as max(0, 100 - sum of severity weights). Every category gets a
// score even with zero findings.
func ComputeCategoryScores(findings []core.NormalizedFinding) map[core.Category]float64 {
	penalties := make(map[core.Category]int)
	for _, f := range findings {
		penalties[core.NormalizeCategory(string(f.Category))] += f.Severity.Weight()
	}

	scores := make(map[core.Category]float64, len(categoryWeights))
	for _, cat := range core.AllCategories() {
		score := 100 - float64(penalties[cat])
		if score < 0 {
			score = 0
		}
		scores[cat] = score
	}
	return scores
}

// ComputeOverallScore is the weighted average of the category scores,
// normalized over the weights of the categories present in the map.
// Terms are summed in fixed category order so the same finding set always
// produces the identical float.
func ComputeOverallScore(categoryScores map[core.Category]float64) float64 {
	var weighted, totalWeight float64
	for _, cat := range core.AllCategories() {
		score, ok := categoryScores[cat]
		if !ok {
			continue
		}
		w := categoryWeights[cat]
		weighted += score * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 100
	}
	return weighted / totalWeight
}

// ComputeRiskLevel classifies an execution's risk. A single CRITICAL
// security finding forces CRITICAL regardless of score.
func ComputeRiskLevel(overallScore float64, findings []core.NormalizedFinding) core.RiskLevel {
	for _, f := range findings {
		if f.Severity == core.SeverityCritical && f.Category == core.CategorySecurity {
			return core.RiskCritical
		}
	}
	switch {
	case overallScore < 40:
		return core.RiskHigh
	case overallScore < 70:
		return core.RiskMedium
	default:
		return core.RiskLow
	}
}

// heuristicSummary is the deterministic fallback when no generative
// summarizer is available. It names the weakest category and issues a
// small set of category-triggered recommendations.
func heuristicSummary(in core.SummaryInput) (string, []string) {
	weakest := weakestCategory(in.CategoryScores)

	total := 0
	for _, n := range in.SeverityCounts {
		total += n
	}
	summary := fmt.Sprintf(
		"Analysis scored %.1f/100 (risk %s) across %d findings; the weakest area is %s at %.1f.",
		in.OverallScore, in.RiskLevel, total, weakest, in.CategoryScores[weakest],
	)

	var recs []string
	if in.SeverityCounts[core.SeverityCritical] > 0 && in.CategoryScores[core.CategorySecurity] < 100 {
		recs = append(recs, "Fix critical security findings before any other remediation work.")
	}
	if in.CategoryScores[core.CategoryQuality] < 70 {
		recs = append(recs, "Schedule a refactoring pass: the quality bucket carries a heavy penalty.")
	}
	if in.CategoryScores[core.CategoryArchitecture] < 60 {
		recs = append(recs, "Document the intended architecture and align the flagged modules with it.")
	}
	recs = append(recs,
		"Re-run the analysis after each remediation batch to track score movement.",
		"Review low-confidence enrichments manually before acting on them.",
	)
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return summary, recs
}

func weakestCategory(scores map[core.Category]float64) core.Category {
	cats := make([]core.Category, 0, len(scores))
	for cat := range scores {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, k int) bool { return cats[i] < cats[k] })

	weakest := core.CategoryOther
	lowest := 101.0
	for _, cat := range cats {
		if scores[cat] < lowest {
			lowest = scores[cat]
			weakest = cat
		}
	}
	return weakest
}
