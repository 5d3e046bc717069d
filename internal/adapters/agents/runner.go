// Package agents provides the built-in AgentRunner: pattern-based source
// scanners keyed by agent name. They stand in for external analyzers so
// the pipeline runs end to end without extra tooling installed.
package agents

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/logging"
)

const (
	defaultMaxFiles    = 5000
	deepScanMaxFiles   = 20000
	maxLineLength      = 64 * 1024
	oversizedFileLines = 800
)

// Runner scans project sources with the rule set registered for the
// requested agent. Unknown agents produce no findings.
type Runner struct {
	logger *logging.Logger
}

var _ core.AgentRunner = (*Runner)(nil)

// NewRunner creates the built-in pattern runner.
func NewRunner(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{logger: logger}
}

// Run applies the agent's rule set to every eligible source file under the
// project path.
func (r *Runner) Run(ctx context.Context, agent core.AgentConfig, req core.AnalysisRequest) ([]core.RawFinding, error) {
	rules, ok := ruleSets[agent.Name]
	if !ok {
		r.logger.WithAgent(agent.Name).Debug("no builtin rule set for agent")
		return nil, nil
	}
	if req.ProjectPath == "" {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "analysis request has no project path")
	}

	maxFiles := defaultMaxFiles
	if req.DeepScan {
		maxFiles = deepScanMaxFiles
	}

	var findings []core.RawFinding
	visited := 0
	err := filepath.WalkDir(req.ProjectPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDir(d.Name()) && path != req.ProjectPath {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(req.ProjectPath, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		if !req.IncludeTests && !rules.scanTests && isTestFile(rel) {
			return nil
		}
		visited++
		if visited > maxFiles {
			return filepath.SkipAll
		}

		fileFindings, err := r.scanFile(path, rel, rules)
		if err != nil {
			// Unreadable files are reported as a scan gap, not a failure.
			r.logger.WithAgent(agent.Name).Warn("skipping unreadable file", "path", rel, "error", err)
			return nil
		}
		findings = append(findings, fileFindings...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", req.ProjectPath, err)
	}

	r.logger.WithAgent(agent.Name).Debug("scan finished",
		"files", visited, "findings", len(findings))
	return findings, nil
}

// scanFile applies each applicable rule line by line, then the whole-file
// rules.
func (r *Runner) scanFile(path, rel string, rules ruleSet) ([]core.RawFinding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var findings []core.RawFinding
	applicable := rules.applicableTo(rel)
	if len(applicable) == 0 && len(rules.fileRules) == 0 {
		return nil, nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, rule := range applicable {
			if rule.pattern.MatchString(line) {
				findings = append(findings, core.RawFinding{
					FilePath:   rel,
					LineStart:  lineNo,
					LineEnd:    lineNo,
					Severity:   rule.severity,
					Category:   rule.category,
					RuleID:     rule.id,
					Message:    rule.message,
					Suggestion: rule.suggestion,
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for _, rule := range rules.fileRules {
		if finding := rule(rel, lineNo); finding != nil {
			findings = append(findings, *finding)
		}
	}
	return findings, nil
}

func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "vendor", "dist", "build", "target", "__pycache__":
		return true
	}
	return false
}

func isTestFile(rel string) bool {
	base := filepath.Base(rel)
	if strings.HasSuffix(base, "_test.go") {
		return true
	}
	if strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py") {
		return true
	}
	for _, marker := range []string{".test.", ".spec."} {
		if strings.Contains(base, marker) {
			return true
		}
	}
	return false
}
