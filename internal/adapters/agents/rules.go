package agents

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// lineRule matches one source line.
type lineRule struct {
	id         string
	pattern    *regexp.Regexp
	severity   string
	category   string
	message    string
	suggestion string
	// extensions limits the rule to these file extensions (without dot).
	// Empty means every file.
	extensions []string
	// basenames limits the rule to exact file names. Checked before
	// extensions when set.
	basenames []string
}

// fileRule inspects whole-file properties after the line scan.
type fileRule func(rel string, lines int) *core.RawFinding

type ruleSet struct {
	lineRules []lineRule
	fileRules []fileRule
	// scanTests forces test files into scope regardless of the request's
	// IncludeTests option.
	scanTests bool
}

func (s ruleSet) applicableTo(rel string) []lineRule {
	base := filepath.Base(rel)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	var out []lineRule
	for _, rule := range s.lineRules {
		if len(rule.basenames) > 0 {
			for _, name := range rule.basenames {
				if base == name {
					out = append(out, rule)
					break
				}
			}
			continue
		}
		if len(rule.extensions) == 0 {
			out = append(out, rule)
			continue
		}
		for _, e := range rule.extensions {
			if ext == e {
				out = append(out, rule)
				break
			}
		}
	}
	return out
}

var codeExtensions = []string{"go", "js", "ts", "tsx", "jsx", "py", "java", "rb", "rs", "c", "cc", "cpp", "h"}

// ruleSets maps builtin agent names to their rules. Names follow the
// embedded registry defaults.
var ruleSets = map[string]ruleSet{
	"security": {
		lineRules: []lineRule{
			{
				id:         "SEC001",
				pattern:    regexp.MustCompile(`(?i)(password|passwd|secret|api[_-]?key|auth[_-]?token)\s*[:=]\s*["'][^"']{4,}["']`),
				severity:   "CRITICAL",
				category:   "SECURITY",
				message:    "hardcoded credential in source",
				suggestion: "move the secret to environment configuration or a secret manager",
				extensions: codeExtensions,
			},
			{
				id:         "SEC002",
				pattern:    regexp.MustCompile(`\b(md5|sha1)\.(New|Sum)\b|hashlib\.(md5|sha1)\b`),
				severity:   "HIGH",
				category:   "SECURITY",
				message:    "weak hash algorithm",
				suggestion: "use SHA-256 or stronger",
				extensions: codeExtensions,
			},
			{
				id:         "SEC003",
				pattern:    regexp.MustCompile(`InsecureSkipVerify\s*:\s*true|verify\s*=\s*False|rejectUnauthorized\s*:\s*false`),
				severity:   "HIGH",
				category:   "SECURITY",
				message:    "TLS certificate verification disabled",
				suggestion: "enable certificate verification outside local development",
				extensions: codeExtensions,
			},
			{
				id:         "SEC004",
				pattern:    regexp.MustCompile(`(?i)\bexec\s*\(\s*["']?\s*\+|os\.system\s*\(.*\+|subprocess\..*shell\s*=\s*True`),
				severity:   "HIGH",
				category:   "SECURITY",
				message:    "possible command injection via string concatenation",
				suggestion: "pass arguments as a list and avoid shell interpolation",
				extensions: codeExtensions,
			},
		},
	},
	"quality": {
		lineRules: []lineRule{
			{
				id:         "QUA001",
				pattern:    regexp.MustCompile(`(?i)\b(TODO|FIXME|HACK)\b`),
				severity:   "LOW",
				category:   "QUALITY",
				message:    "unresolved marker comment",
				suggestion: "track the follow-up in the issue tracker",
				extensions: codeExtensions,
			},
			{
				id:         "QUA002",
				pattern:    regexp.MustCompile(`\bpanic\s*\(`),
				severity:   "MEDIUM",
				category:   "QUALITY",
				message:    "panic in library code",
				suggestion: "return an error instead of panicking",
				extensions: []string{"go"},
			},
			{
				id:         "QUA003",
				pattern:    regexp.MustCompile(`console\.log\s*\(|fmt\.Println\s*\(|print\s*\(\s*["']debug`),
				severity:   "LOW",
				category:   "QUALITY",
				message:    "debug print left in source",
				suggestion: "use the structured logger",
				extensions: codeExtensions,
			},
		},
	},
	"structural": {
		fileRules: []fileRule{
			func(rel string, lines int) *core.RawFinding {
				if lines <= oversizedFileLines || !isCodeFile(rel) {
					return nil
				}
				return &core.RawFinding{
					FilePath:   rel,
					LineStart:  1,
					LineEnd:    lines,
					Severity:   "MEDIUM",
					Category:   "ARCHITECTURE",
					RuleID:     "STR001",
					Message:    fmt.Sprintf("file has %d lines", lines),
					Suggestion: "split the file along responsibility boundaries",
				}
			},
		},
	},
	"dependency": {
		lineRules: []lineRule{
			{
				id:         "DEP001",
				pattern:    regexp.MustCompile(`^replace\s+\S+\s*=>`),
				severity:   "MEDIUM",
				category:   "SECURITY",
				message:    "module replace directive in go.mod",
				suggestion: "remove the replace before release",
				basenames:  []string{"go.mod"},
			},
			{
				id:         "DEP002",
				pattern:    regexp.MustCompile(`"\s*:\s*"(\*|latest)"`),
				severity:   "MEDIUM",
				category:   "SECURITY",
				message:    "unpinned dependency version",
				suggestion: "pin the dependency to a specific version",
				basenames:  []string{"package.json"},
			},
		},
	},
	"style": {
		lineRules: []lineRule{
			{
				id:         "STY001",
				pattern:    regexp.MustCompile(`[ \t]+$`),
				severity:   "INFO",
				category:   "QUALITY",
				message:    "trailing whitespace",
				extensions: codeExtensions,
			},
			{
				id:         "STY002",
				pattern:    regexp.MustCompile(`.{161,}`),
				severity:   "INFO",
				category:   "QUALITY",
				message:    "line exceeds 160 characters",
				extensions: codeExtensions,
			},
		},
	},
	"test": {
		scanTests: true,
		lineRules: []lineRule{
			{
				id:         "TST001",
				pattern:    regexp.MustCompile(`\bt\.Skip\s*\(|@pytest\.mark\.skip|\bit\.skip\s*\(|\bxit\s*\(`),
				severity:   "LOW",
				category:   "QUALITY",
				message:    "skipped test",
				suggestion: "re-enable or delete the skipped test",
				extensions: codeExtensions,
			},
		},
	},
}

func isCodeFile(rel string) bool {
	ext := strings.TrimPrefix(filepath.Ext(rel), ".")
	for _, e := range codeExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
