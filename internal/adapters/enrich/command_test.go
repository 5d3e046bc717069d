package enrich

import (
	"context"
	"os/exec"
	"testing"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func testFinding() core.NormalizedFinding {
	return core.NormalizedFinding{
		FilePath: "a.go", LineStart: 10, LineEnd: 10,
		Severity: core.SeverityHigh, Category: core.CategorySecurity,
		RuleID: "SEC002", Message: "weak hash algorithm",
	}
}

func TestExplain(t *testing.T) {
	requireSh(t)

	enricher, err := NewCommandEnricher([]string{"sh", "-c",
		`cat > /dev/null; echo '{"text":"MD5 is broken","confidence":0.9,"evidence":["a.go:10"]}'`}, nil)
	if err != nil {
		t.Fatal(err)
	}

	explanation, err := enricher.Explain(context.Background(), testFinding())
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if explanation.Text != "MD5 is broken" || explanation.Confidence != 0.9 {
		t.Errorf("explanation = %+v", explanation)
	}
}

func TestExplain_ProseWrappedJSON(t *testing.T) {
	requireSh(t)

	enricher, err := NewCommandEnricher([]string{"sh", "-c",
		`cat > /dev/null; echo 'Here is my analysis: {"text":"use {} sha256","confidence":0.8} hope it helps'`}, nil)
	if err != nil {
		t.Fatal(err)
	}

	explanation, err := enricher.Explain(context.Background(), testFinding())
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if explanation.Text != "use {} sha256" {
		t.Errorf("text = %q", explanation.Text)
	}
}

func TestExplain_CommandFailure(t *testing.T) {
	requireSh(t)

	enricher, err := NewCommandEnricher([]string{"sh", "-c", "exit 3"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enricher.Explain(context.Background(), testFinding()); !core.IsRetryable(err) {
		t.Errorf("error = %v, want retryable execution error", err)
	}
}

func TestExplain_NoJSON(t *testing.T) {
	requireSh(t)

	enricher, err := NewCommandEnricher([]string{"sh", "-c", "echo no json here"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enricher.Explain(context.Background(), testFinding()); err == nil {
		t.Error("expected error for non-JSON output")
	}
}

func TestNewCommandEnricher_Empty(t *testing.T) {
	if _, err := NewCommandEnricher(nil, nil); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`, false},
		{"braces in strings", `{"a":"}{"}`, `{"a":"}{"}`, false},
		{"leading prose", `sure! {"a":1}`, `{"a":1}`, false},
		{"no object", "nothing", "", true},
		{"unterminated", `{"a":1`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractJSON(%q) succeeded with %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSON(%q) error = %v", tt.input, err)
			}
			if string(got) != tt.want {
				t.Errorf("extractJSON(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
