// Package validate turns raw model text into a FileReview that satisfies the
// closed vocabularies. Parse never fails: unparseable text yields a fixed
// fallback review.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joescharf/crev/internal/models"
)

// Outcome records how a review was produced.
type Outcome string

const (
	OutcomeParsed   Outcome = "parsed"
	OutcomeRepaired Outcome = "repaired"
	OutcomeFallback Outcome = "fallback"
)

// FallbackScore is the score assigned to every dimension of a fallback review.
const FallbackScore = 75

// MalformedOutputError reports model output that could not be decoded.
type MalformedOutputError struct {
	Reason string
	Err    error
}

func (e *MalformedOutputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed model output: %s: %v", e.Reason, e.Err)
	}
	return "malformed model output: " + e.Reason
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// Result is the outcome of Parse.
type Result struct {
	Review  models.FileReview
	Outcome Outcome
	Repairs int
	Err     error
}

// Parse validates raw against the review contract and repairs what it can.
// Identity fields always come from target.
func Parse(raw string, target models.ReviewTarget) Result {
	text := Normalize(raw)

	var r rawReview
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&r); err != nil {
		return fallback(target, &MalformedOutputError{Reason: "invalid JSON", Err: err})
	}
	if r.FileScore == nil {
		return fallback(target, &MalformedOutputError{Reason: "missing file_score"})
	}

	review := base(target)
	review.FileScore = r.FileScore.toModel()

	repairs := 0
	for _, ri := range r.Issues {
		issue := models.Issue{
			LineRange:      normalizeRange(ri.LineRange),
			Type:           models.IssueType(ri.Type),
			Severity:       models.Severity(ri.Severity),
			Message:        string(ri.Message),
			Recommendation: string(ri.Recommendation),
		}
		if ri.CodeExample != nil {
			code := string(*ri.CodeExample)
			issue.CodeExample = &code
		}
		if !issue.Type.Valid() {
			issue.Type = models.IssueTypeCodeSmell
			repairs++
		}
		if !issue.Severity.Valid() {
			issue.Severity = models.SeverityMinor
			repairs++
		}
		review.Issues = append(review.Issues, issue)
	}
	for _, ri := range r.Improvements {
		review.Improvements = append(review.Improvements, models.Improvement{
			Title:       string(ri.Title),
			Description: string(ri.Description),
			Impact:      string(ri.Impact),
			Suggestion:  string(ri.Suggestion),
		})
	}
	review.Feedback = models.Feedback{
		Strengths:            r.Feedback.Strengths.strings(),
		Weaknesses:           r.Feedback.Weaknesses.strings(),
		BestPracticesFound:   r.Feedback.BestPracticesFound.strings(),
		BestPracticesMissing: r.Feedback.BestPracticesMissing.strings(),
	}
	review.IssueDistribution = Distribution(review.Issues)

	outcome := OutcomeParsed
	if repairs > 0 {
		outcome = OutcomeRepaired
	}
	return Result{Review: review, Outcome: outcome, Repairs: repairs}
}

// Normalize trims the text, strips a surrounding markdown fence and, when the
// result is still not a bare object, keeps the outermost {...} span.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) >= 2 {
			end := len(lines)
			if strings.TrimSpace(lines[end-1]) == "```" {
				end--
			}
			s = strings.TrimSpace(strings.Join(lines[1:end], "\n"))
		}
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// Distribution counts issues per type, omitting zero counts.
func Distribution(issues []models.Issue) models.IssueDistribution {
	dist := models.IssueDistribution{}
	for _, is := range issues {
		dist[is.Type]++
	}
	return dist
}

// Fallback returns the fixed review used when model output is unusable.
func Fallback(target models.ReviewTarget) models.FileReview {
	review := base(target)
	review.Issues = []models.Issue{{
		LineRange:      models.LineRange{0, 0},
		Type:           models.IssueTypeCodeSmell,
		Severity:       models.SeverityMinor,
		Message:        "Could not parse response",
		Recommendation: "Manual review needed",
	}}
	review.FileScore = models.UniformScore(FallbackScore)
	review.IssueDistribution = models.IssueDistribution{models.IssueTypeCodeSmell: 1}
	return review
}

func fallback(target models.ReviewTarget, err error) Result {
	return Result{Review: Fallback(target), Outcome: OutcomeFallback, Err: err}
}

func base(target models.ReviewTarget) models.FileReview {
	return models.FileReview{
		Filename:     target.Filename,
		FilePath:     target.FilePath,
		FileType:     filepath.Ext(target.Filename),
		Issues:       []models.Issue{},
		Improvements: []models.Improvement{},
		Feedback: models.Feedback{
			Strengths:            []string{},
			Weaknesses:           []string{},
			BestPracticesFound:   []string{},
			BestPracticesMissing: []string{},
		},
		IssueDistribution: models.IssueDistribution{},
	}
}

// normalizeRange maps whatever the model sent for line_range onto a valid
// pair. Anything that is not an array of numbers becomes [0, 0].
func normalizeRange(raw json.RawMessage) models.LineRange {
	var r []score
	if len(raw) == 0 || json.Unmarshal(raw, &r) != nil {
		return models.LineRange{0, 0}
	}
	switch len(r) {
	case 0:
		return models.LineRange{0, 0}
	case 1:
		v := r[0].int(0, math.MaxInt32)
		return models.LineRange{v, v}
	default:
		start := r[0].int(0, math.MaxInt32)
		end := r[1].int(0, math.MaxInt32)
		if end < start {
			end = start
		}
		return models.LineRange{start, end}
	}
}

// rawReview mirrors the review contract with lenient field types.
type rawReview struct {
	Issues       []rawIssue       `json:"issues"`
	Improvements []rawImprovement `json:"improvements"`
	Feedback     rawFeedback      `json:"feedback"`
	FileScore    *rawScore        `json:"file_score"`
}

type rawIssue struct {
	LineRange      json.RawMessage `json:"line_range"`
	Type           text            `json:"type"`
	Severity       text            `json:"severity"`
	Message        text            `json:"message"`
	Recommendation text            `json:"recommendation"`
	CodeExample    *text           `json:"code_example"`
}

type rawImprovement struct {
	Title       text `json:"title"`
	Description text `json:"description"`
	Impact      text `json:"impact"`
	Suggestion  text `json:"suggestion"`
}

type rawFeedback struct {
	Strengths            textList `json:"strengths"`
	Weaknesses           textList `json:"weaknesses"`
	BestPracticesFound   textList `json:"best_practices_found"`
	BestPracticesMissing textList `json:"best_practices_missing"`
}

// text accepts any JSON value. Strings decode as usual, numbers and booleans
// keep their literal form, and null, objects and arrays become empty. A
// non-string type or severity therefore falls through to the vocabulary
// rewrite.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0:
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
	case b[0] == '{' || b[0] == '[' || bytes.Equal(b, []byte("null")):
		*t = ""
	default:
		*t = text(b)
	}
	return nil
}

// textList accepts an array of any values or a single string.
type textList []text

func (l *textList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var one text
		if err := one.UnmarshalJSON(b); err != nil {
			return err
		}
		*l = textList{one}
		return nil
	}
	var items []text
	if err := json.Unmarshal(b, &items); err != nil {
		*l = nil
		return nil
	}
	*l = items
	return nil
}

func (l textList) strings() []string {
	out := make([]string, 0, len(l))
	for _, t := range l {
		if t != "" {
			out = append(out, string(t))
		}
	}
	return out
}

type rawScore struct {
	Maintainability score `json:"maintainability"`
	Readability     score `json:"readability"`
	Robustness      score `json:"robustness"`
	Security        score `json:"security"`
	Performance     score `json:"performance"`
	BestPractices   score `json:"best_practices"`
	Overall         score `json:"overall"`
}

func (s rawScore) toModel() models.FileScore {
	return models.FileScore{
		Maintainability: s.Maintainability.int(0, 100),
		Readability:     s.Readability.int(0, 100),
		Robustness:      s.Robustness.int(0, 100),
		Security:        s.Security.int(0, 100),
		Performance:     s.Performance.int(0, 100),
		BestPractices:   s.BestPractices.int(0, 100),
		Overall:         s.Overall.int(0, 100),
	}
}

// score accepts a JSON number or a numeric string. Null and anything that
// does not parse as a number count as 0.
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			*s = 0
			return nil
		}
		b = []byte(strings.TrimSpace(str))
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsInf(f, 0) {
		*s = 0
		return nil
	}
	*s = score(f)
	return nil
}

func (s score) int(lo, hi int) int {
	f := math.Round(float64(s))
	if math.IsNaN(f) || f < float64(lo) {
		return lo
	}
	if f > float64(hi) {
		return hi
	}
	return int(f)
}
