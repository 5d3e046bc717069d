// Package validator gates generative enrichment output before it touches
// findings. Structurally invalid or low-confidence payloads are rejected;
// soft problems (missing evidence, duplicated text) surface as warnings.
package validator

import (
	"sync"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// DefaultMinConfidence is the acceptance threshold applied when no
// explicit minimum is configured.
const DefaultMinConfidence = 0.6

// Result is the validator's verdict over one piece of generative output.
// It is transient: callers use Success to decide whether the payload may
// populate a finding's enrichment fields.
type Result struct {
	Success    bool                `json:"success"`
	Kind       core.EnrichmentKind `json:"kind"`
	Confidence float64             `json:"confidence"`
	Warnings   []string            `json:"warnings,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Validator enforces the structural schema, the confidence gate, and the
// evidence policy over generative enrichment payloads, and tracks content
// hashes to flag near-duplicate text.
//
// The hash set is the only state. It is scoped to one pipeline run: create
// a fresh Validator per run (or call Reset between runs) so unrelated
// projects never trip each other's duplicate detection.
type Validator struct {
	minConfidence   float64
	requireEvidence bool
	strict          bool

	mu   sync.Mutex
	seen map[string]struct{}
}

// Option configures a Validator.
type Option func(*Validator)

// WithMinConfidence overrides the acceptance threshold. Payloads with
// confidence strictly below min are rejected; exactly min is accepted.
func WithMinConfidence(min float64) Option {
	return func(v *Validator) {
		v.minConfidence = min
	}
}

// WithEvidencePolicy makes missing evidence a warning (strict=false) or a
// rejection (strict=true) for explanation payloads.
func WithEvidencePolicy(require, strict bool) Option {
	return func(v *Validator) {
		v.requireEvidence = require
		v.strict = strict
	}
}

// New creates a validator with an empty duplicate set.
func New(opts ...Option) *Validator {
	v := &Validator{
		minConfidence: DefaultMinConfidence,
		seen:          make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Reset clears the accumulated duplicate-hash set.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen = make(map[string]struct{})
}

// ValidateExplanation validates a finding explanation payload.
func (v *Validator) ValidateExplanation(e core.Explanation) Result {
	res := Result{Kind: core.EnrichmentExplanation, Confidence: e.Confidence}

	if e.Text == "" {
		return v.reject(res, "text: must not be empty")
	}
	if err := checkConfidenceRange(e.Confidence); err != "" {
		return v.reject(res, err)
	}
	if e.Confidence < v.minConfidence {
		return v.reject(res, "confidence: below configured minimum")
	}
	if v.requireEvidence && len(e.Evidence) == 0 {
		if v.strict {
			return v.reject(res, "evidence: required but absent")
		}
		res.Warnings = append(res.Warnings, "no evidence reference provided")
	}

	res.Success = true
	v.recordDuplicate(&res, e.Text)
	return res
}

// ValidateImprovement validates an improvement suggestion payload.
func (v *Validator) ValidateImprovement(imp core.Improvement) Result {
	res := Result{Kind: core.EnrichmentImprovement, Confidence: imp.Confidence}

	if imp.Direction == "" {
		return v.reject(res, "direction: must not be empty")
	}
	if !core.ValidEffort(imp.Effort) {
		return v.reject(res, "effort: unknown level "+string(imp.Effort))
	}
	if !core.ValidEffort(imp.Priority) {
		return v.reject(res, "priority: unknown level "+string(imp.Priority))
	}
	if err := checkConfidenceRange(imp.Confidence); err != "" {
		return v.reject(res, err)
	}
	if imp.Confidence < v.minConfidence {
		return v.reject(res, "confidence: below configured minimum")
	}

	res.Success = true
	v.recordDuplicate(&res, imp.Direction)
	return res
}

// ValidateSecurityAdvice validates a security advisory payload.
func (v *Validator) ValidateSecurityAdvice(adv core.SecurityAdvice) Result {
	res := Result{Kind: core.EnrichmentSecurityAdvice, Confidence: adv.Confidence}

	if adv.Recommendation == "" {
		return v.reject(res, "recommendation: must not be empty")
	}
	if !core.ValidSeverity(adv.Severity) {
		return v.reject(res, "severity: unknown level "+string(adv.Severity))
	}
	if err := checkConfidenceRange(adv.Confidence); err != "" {
		return v.reject(res, err)
	}
	if adv.Confidence < v.minConfidence {
		return v.reject(res, "confidence: below configured minimum")
	}
	if adv.CWE == "" && adv.OWASP == "" {
		res.Warnings = append(res.Warnings, "no CWE or OWASP reference")
	}

	res.Success = true
	v.recordDuplicate(&res, adv.Recommendation)
	return res
}

func (v *Validator) reject(res Result, reason string) Result {
	res.Success = false
	res.Error = reason
	return res
}

// recordDuplicate checks the primary text against the seen set and records
// it. Only accepted payloads reach here, so rejected text never pollutes
// the set.
func (v *Validator) recordDuplicate(res *Result, text string) {
	h := normalizeHash(text)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, dup := v.seen[h]; dup {
		res.Warnings = append(res.Warnings, "duplicate of previously seen output")
	}
	v.seen[h] = struct{}{}
}

func checkConfidenceRange(c float64) string {
	if c < 0 || c > 1 {
		return "confidence: must be within [0, 1]"
	}
	return ""
}
