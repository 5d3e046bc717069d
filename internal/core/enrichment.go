package core

// EnrichmentKind identifies one of the generative finding-enrichment shapes.
type EnrichmentKind string

const (
	EnrichmentExplanation    EnrichmentKind = "explanation"
	EnrichmentImprovement    EnrichmentKind = "improvement"
	EnrichmentSecurityAdvice EnrichmentKind = "security_advice"
)

// EffortLevel grades the estimated effort of an improvement.
type EffortLevel string

const (
	EffortLow    EffortLevel = "low"
	EffortMedium EffortLevel = "medium"
	EffortHigh   EffortLevel = "high"
)

// ValidEffort checks if an effort level is known.
func ValidEffort(e EffortLevel) bool {
	return e == EffortLow || e == EffortMedium || e == EffortHigh
}

// Explanation is raw generative output explaining a finding.
type Explanation struct {
	Text       string   `json:"text"`
	RootCause  string   `json:"root_cause,omitempty"`
	Impact     string   `json:"impact,omitempty"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
}

// Improvement is raw generative output proposing a remediation direction.
type Improvement struct {
	Direction  string      `json:"direction"`
	Effort     EffortLevel `json:"effort"`
	Priority   EffortLevel `json:"priority"`
	Confidence float64     `json:"confidence"`
}

// SecurityAdvice is raw generative output for a security finding.
type SecurityAdvice struct {
	Recommendation string   `json:"recommendation"`
	Severity       Severity `json:"severity"`
	Confidence     float64  `json:"confidence"`
	CWE            string   `json:"cwe,omitempty"`
	OWASP          string   `json:"owasp,omitempty"`
	Mitigations    []string `json:"mitigations,omitempty"`
}
