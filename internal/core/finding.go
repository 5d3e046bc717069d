package core

import (
	"fmt"
	"strings"
)

// Severity classifies the impact of a finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// AllSeverities returns severities ordered from most to least severe.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

// Weight returns the scoring penalty for a finding of this severity.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 25
	case SeverityHigh:
		return 15
	case SeverityMedium:
		return 5
	case SeverityLow:
		return 2
	default:
		return 0
	}
}

// Rank returns the ordering rank of the severity, 0 being most severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	case SeverityInfo:
		return 4
	default:
		return 5
	}
}

// ValidSeverity checks if a severity value is known.
func ValidSeverity(s Severity) bool {
	return s.Rank() < 5
}

// NormalizeSeverity maps arbitrary analyzer severity labels onto the fixed
// set. Unknown labels degrade to INFO rather than being dropped.
func NormalizeSeverity(v string) Severity {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "CRITICAL", "BLOCKER", "FATAL":
		return SeverityCritical
	case "HIGH", "ERROR", "MAJOR":
		return SeverityHigh
	case "MEDIUM", "WARNING", "WARN", "MODERATE":
		return SeverityMedium
	case "LOW", "MINOR":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Category is the main bucket a finding is scored under.
type Category string

const (
	CategorySecurity     Category = "SECURITY"
	CategoryQuality      Category = "QUALITY"
	CategoryArchitecture Category = "ARCHITECTURE"
	CategoryPerformance  Category = "PERFORMANCE"
	CategoryOther        Category = "OTHER"
)

// AllCategories returns the fixed scoring categories.
func AllCategories() []Category {
	return []Category{
		CategorySecurity,
		CategoryQuality,
		CategoryArchitecture,
		CategoryPerformance,
		CategoryOther,
	}
}

// NormalizeCategory maps arbitrary category labels onto the fixed set.
// Unrecognized categories fall into OTHER.
func NormalizeCategory(v string) Category {
	switch Category(strings.ToUpper(strings.TrimSpace(v))) {
	case CategorySecurity:
		return CategorySecurity
	case CategoryQuality:
		return CategoryQuality
	case CategoryArchitecture:
		return CategoryArchitecture
	case CategoryPerformance:
		return CategoryPerformance
	default:
		return CategoryOther
	}
}

// RawFinding is one issue as reported by an analysis agent, before
// normalization. Severity and category labels are free-form at this point.
type RawFinding struct {
	FilePath   string `json:"file_path"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
	Severity   string `json:"severity"`
	Category   string `json:"category"`
	RuleID     string `json:"rule_id"`
	Agent      string `json:"agent"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// NormalizedFinding is a single issue after merging and normalization.
type NormalizedFinding struct {
	ID            string   `json:"id,omitempty"`
	FilePath      string   `json:"file_path"`
	LineStart     int      `json:"line_start"`
	LineEnd       int      `json:"line_end"`
	Severity      Severity `json:"severity"`
	Category      Category `json:"category"`
	SubCategory   string   `json:"sub_category,omitempty"`
	RuleID        string   `json:"rule_id"`
	Message       string   `json:"message"`
	Suggestion    string   `json:"suggestion,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
	Deterministic bool     `json:"deterministic"`
}

// Fingerprint returns the stable identity of the finding across snapshots.
// Two findings sharing a fingerprint are the same issue for diffing purposes
// even when their message text differs.
func (f *NormalizedFinding) Fingerprint() string {
	return fmt.Sprintf("%s:%d:%s", f.FilePath, f.LineStart, f.RuleID)
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(findings []NormalizedFinding) map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
