package core

import "time"

// RiskLevel is the qualitative risk classification of an execution.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Judgment is the synthesized verdict for one execution. It is transient:
// only the overall score is written back onto the execution record.
type Judgment struct {
	ExecutionID     ExecutionID          `json:"execution_id"`
	OverallScore    float64              `json:"overall_score"`
	CategoryScores  map[Category]float64 `json:"category_scores"`
	Summary         string               `json:"summary"`
	Recommendations []string             `json:"recommendations"`
	RiskLevel       RiskLevel            `json:"risk_level"`
	GeneratedAt     time.Time            `json:"generated_at"`
}
