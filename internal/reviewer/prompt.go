package reviewer

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/joescharf/crev/internal/models"
)

// DefaultMaxContentBytes is the largest slice of a file sent to the model.
const DefaultMaxContentBytes = 8000

// TruncationMarker is appended to the prompt when content was cut.
const TruncationMarker = "[... code truncated due to length ...]"

// Truncate cuts code to at most max bytes without splitting a UTF-8 sequence.
func Truncate(code string, max int) (string, bool) {
	if max <= 0 || len(code) <= max {
		return code, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(code[cut]) {
		cut--
	}
	return code[:cut], true
}

// SystemPrompt returns the fixed instructions, including the closed
// vocabularies and the exact JSON output contract.
func SystemPrompt() string {
	types := make([]string, len(models.IssueTypes))
	for i, t := range models.IssueTypes {
		types[i] = fmt.Sprintf("%q", string(t))
	}
	severities := make([]string, len(models.Severities))
	for i, s := range models.Severities {
		severities[i] = fmt.Sprintf("%q", string(s))
	}

	var b strings.Builder
	b.WriteString("You are a professional code reviewer. Review the single file you are given and respond with ONLY valid JSON, no markdown fencing or explanation.\n\n")
	b.WriteString("The JSON must have this EXACT structure:\n")
	b.WriteString(`{
  "filename": "<file name>",
  "file_path": "<relative path>",
  "file_type": "<extension>",
  "issues": [
    {
      "line_range": [start, end],
      "type": "<issue type>",
      "severity": "<severity>",
      "message": "Clear description of the issue",
      "recommendation": "Specific fix or improvement",
      "code_example": "Optional: corrected code"
    }
  ],
  "improvements": [
    {
      "title": "Improvement title",
      "description": "What could be better",
      "impact": "Code quality improvement",
      "suggestion": "How to implement"
    }
  ],
  "feedback": {
    "strengths": ["Good practices observed"],
    "weaknesses": ["Areas for improvement"],
    "best_practices_found": ["Best practices already in use"],
    "best_practices_missing": ["Industry best practices not found"]
  },
  "file_score": {
    "maintainability": 0-100,
    "readability": 0-100,
    "robustness": 0-100,
    "security": 0-100,
    "performance": 0-100,
    "best_practices": 0-100,
    "overall": 0-100
  }
}`)
	b.WriteString("\n\nRules:\n")
	fmt.Fprintf(&b, "- \"type\" must be exactly one of: %s\n", strings.Join(types, ", "))
	fmt.Fprintf(&b, "- \"severity\" must be exactly one of: %s\n", strings.Join(severities, ", "))
	b.WriteString("- Scores are integers from 0 to 100\n")
	b.WriteString("- Include actual line numbers when possible\n")
	b.WriteString("- Provide actionable recommendations\n")
	b.WriteString("- Flag security issues as Critical when they are exploitable\n")
	b.WriteString("- Return an empty \"issues\" array if the file has no problems\n")
	return b.String()
}

// UserPrompt builds the per-file prompt. The returned bool reports truncation.
func UserPrompt(target models.ReviewTarget, maxBytes int) (string, bool) {
	ext := filepath.Ext(target.Filename)
	code, truncated := Truncate(target.Code, maxBytes)

	var b strings.Builder
	fmt.Fprintf(&b, "Review the following file: `%s` (extension: %s)\n", target.FilePath, extLabel(ext))
	fmt.Fprintf(&b, "Use filename %q, file_path %q and file_type %q in your answer.\n\n", target.Filename, target.FilePath, ext)
	fmt.Fprintf(&b, "Code to review:\n```%s\n", strings.TrimPrefix(ext, "."))
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
	if truncated {
		b.WriteString(TruncationMarker)
		b.WriteString("\n")
	}
	return b.String(), truncated
}

func extLabel(ext string) string {
	if ext == "" {
		return "none"
	}
	return ext
}
