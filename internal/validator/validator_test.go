package validator

import (
	"strings"
	"testing"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

func validExplanation() core.Explanation {
	return core.Explanation{
		Text:       "The query concatenates user input into SQL.",
		RootCause:  "missing parameterization",
		Confidence: 0.9,
		Evidence:   []string{"db.go:42"},
	}
}

func TestValidateExplanation_Accepts(t *testing.T) {
	res := New().ValidateExplanation(validExplanation())
	if !res.Success {
		t.Fatalf("rejected: %s", res.Error)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", res.Warnings)
	}
}

func TestValidateExplanation_StructuralRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Explanation)
		want   string
	}{
		{"empty text", func(e *core.Explanation) { e.Text = "" }, "text"},
		{"negative confidence", func(e *core.Explanation) { e.Confidence = -0.1 }, "confidence"},
		{"confidence above one", func(e *core.Explanation) { e.Confidence = 1.5 }, "confidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validExplanation()
			tt.mutate(&e)
			res := New().ValidateExplanation(e)
			if res.Success {
				t.Fatal("expected rejection")
			}
			if !strings.Contains(res.Error, tt.want) {
				t.Errorf("error = %q, want field %q named", res.Error, tt.want)
			}
		})
	}
}

func TestConfidenceGate_ExactBoundary(t *testing.T) {
	v := New(WithMinConfidence(0.6))

	e := validExplanation()
	e.Confidence = 0.6
	if res := v.ValidateExplanation(e); !res.Success {
		t.Errorf("confidence exactly at minimum rejected: %s", res.Error)
	}

	e.Text = "different text so the duplicate check stays quiet"
	e.Confidence = 0.59999
	if res := v.ValidateExplanation(e); res.Success {
		t.Error("confidence below minimum accepted")
	}
}

func TestEvidencePolicy(t *testing.T) {
	e := validExplanation()
	e.Evidence = nil

	// Permissive: warning only.
	res := New(WithEvidencePolicy(true, false)).ValidateExplanation(e)
	if !res.Success {
		t.Fatalf("permissive mode rejected: %s", res.Error)
	}
	if len(res.Warnings) == 0 {
		t.Error("permissive mode should warn about missing evidence")
	}

	// Strict: rejection.
	res = New(WithEvidencePolicy(true, true)).ValidateExplanation(e)
	if res.Success {
		t.Error("strict mode should reject missing evidence")
	}
	if !strings.Contains(res.Error, "evidence") {
		t.Errorf("error = %q, want evidence named", res.Error)
	}
}

func TestDuplicateDetection_SecondOnly(t *testing.T) {
	v := New()

	first := v.ValidateExplanation(validExplanation())
	if !first.Success || hasDuplicateWarning(first) {
		t.Fatalf("first submission: success=%v warnings=%v", first.Success, first.Warnings)
	}

	// Whitespace and casing variations collapse to the same hash.
	e := validExplanation()
	e.Text = "  THE query\tconcatenates   user input into SQL.\n"
	second := v.ValidateExplanation(e)
	if !second.Success {
		t.Fatalf("second submission rejected: %s", second.Error)
	}
	if !hasDuplicateWarning(second) {
		t.Errorf("second submission warnings = %v, want duplicate flagged", second.Warnings)
	}
}

func TestDuplicateDetection_RejectedTextNotRecorded(t *testing.T) {
	v := New()

	e := validExplanation()
	e.Confidence = 0.1
	if res := v.ValidateExplanation(e); res.Success {
		t.Fatal("low confidence accepted")
	}

	// Same text, now above threshold: must not be flagged as duplicate.
	res := v.ValidateExplanation(validExplanation())
	if !res.Success {
		t.Fatalf("rejected: %s", res.Error)
	}
	if hasDuplicateWarning(res) {
		t.Error("rejected payload's hash leaked into the duplicate set")
	}
}

func TestReset_ClearsDuplicateSet(t *testing.T) {
	v := New()
	_ = v.ValidateExplanation(validExplanation())
	v.Reset()

	res := v.ValidateExplanation(validExplanation())
	if hasDuplicateWarning(res) {
		t.Error("duplicate warning after Reset")
	}
}

func TestValidateImprovement(t *testing.T) {
	v := New()

	imp := core.Improvement{Direction: "use prepared statements", Effort: core.EffortLow, Priority: core.EffortHigh, Confidence: 0.8}
	if res := v.ValidateImprovement(imp); !res.Success {
		t.Errorf("rejected: %s", res.Error)
	}

	imp.Effort = "enormous"
	if res := v.ValidateImprovement(imp); res.Success || !strings.Contains(res.Error, "effort") {
		t.Errorf("bad effort: success=%v error=%q", res.Success, res.Error)
	}

	imp.Effort = core.EffortLow
	imp.Direction = ""
	if res := v.ValidateImprovement(imp); res.Success {
		t.Error("empty direction accepted")
	}
}

func TestValidateSecurityAdvice(t *testing.T) {
	v := New()

	adv := core.SecurityAdvice{
		Recommendation: "rotate the leaked credential",
		Severity:       core.SeverityCritical,
		Confidence:     0.95,
		CWE:            "CWE-798",
	}
	res := v.ValidateSecurityAdvice(adv)
	if !res.Success || len(res.Warnings) != 0 {
		t.Fatalf("success=%v warnings=%v", res.Success, res.Warnings)
	}

	// Missing both references is a warning, never a rejection.
	adv.CWE = ""
	adv.OWASP = ""
	adv.Recommendation = "use a secrets manager"
	res = v.ValidateSecurityAdvice(adv)
	if !res.Success {
		t.Fatalf("rejected: %s", res.Error)
	}
	if len(res.Warnings) == 0 {
		t.Error("missing CWE/OWASP should warn")
	}

	adv.Severity = "catastrophic"
	if res := v.ValidateSecurityAdvice(adv); res.Success {
		t.Error("unknown severity accepted")
	}
}

func TestNormalizeHash_LongTextLengthSuffix(t *testing.T) {
	base := strings.Repeat("a", 400)
	// Same 256-char prefix, different length: distinct hashes.
	if normalizeHash(base) == normalizeHash(base+"b") {
		t.Error("length suffix not part of the hash")
	}
	if normalizeHash(base) != normalizeHash(base) {
		t.Error("hash not stable")
	}
}

func hasDuplicateWarning(r Result) bool {
	for _, w := range r.Warnings {
		if strings.Contains(w, "duplicate") {
			return true
		}
	}
	return false
}
