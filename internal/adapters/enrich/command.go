// Package enrich implements the generative enricher by shelling out to a
// configured AI CLI. The finding is written to the command's stdin as
// JSON; the command answers with an explanation JSON object, optionally
// wrapped in surrounding prose.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/logging"
)

// CommandEnricher runs one external command per finding.
type CommandEnricher struct {
	command []string
	logger  *logging.Logger
}

var _ core.Enricher = (*CommandEnricher)(nil)

// NewCommandEnricher creates an enricher invoking command (program plus
// arguments).
func NewCommandEnricher(command []string, logger *logging.Logger) (*CommandEnricher, error) {
	if len(command) == 0 {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "enricher command is empty")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CommandEnricher{command: command, logger: logger}, nil
}

// enrichRequest is the stdin payload handed to the command.
type enrichRequest struct {
	Kind    string                 `json:"kind"`
	Finding core.NormalizedFinding `json:"finding"`
}

// Explain asks the command for an explanation of the finding. The command
// must print a JSON object with text, confidence, and optional root_cause,
// impact, and evidence fields.
func (e *CommandEnricher) Explain(ctx context.Context, finding core.NormalizedFinding) (*core.Explanation, error) {
	payload, err := json.Marshal(enrichRequest{Kind: "explanation", Finding: finding})
	if err != nil {
		return nil, fmt.Errorf("encoding enrichment request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.command[0], e.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, core.ErrTimeout("enricher command timed out")
		}
		return nil, core.ErrExecution(core.CodeAgentFailed,
			fmt.Sprintf("enricher command failed: %v: %s", err, strings.TrimSpace(stderr.String())))
	}

	raw, err := extractJSON(stdout.String())
	if err != nil {
		return nil, core.ErrExecution(core.CodeAgentFailed, err.Error())
	}

	var explanation core.Explanation
	if err := json.Unmarshal(raw, &explanation); err != nil {
		return nil, core.ErrExecution(core.CodeAgentFailed,
			fmt.Sprintf("decoding enricher output: %v", err))
	}
	e.logger.Debug("enricher responded", "fingerprint", finding.Fingerprint(),
		"confidence", explanation.Confidence)
	return &explanation, nil
}

// extractJSON returns the first balanced top-level JSON object in output.
// AI CLIs frequently wrap their answer in explanatory prose.
func extractJSON(output string) ([]byte, error) {
	start := strings.IndexByte(output, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in enricher output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(output); i++ {
		c := output[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return []byte(output[start : i+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("unterminated JSON object in enricher output")
}
