package models

import "encoding/json"

// LineRange is a [start, end] pair of 1-based line numbers. [0, 0] means unknown.
type LineRange [2]int

// Issue is a single problem reported for a file.
type Issue struct {
	LineRange      LineRange `json:"line_range"`
	Type           IssueType `json:"type"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	Recommendation string    `json:"recommendation"`
	CodeExample    *string   `json:"code_example,omitempty"`
}

// Improvement is a free-form suggestion with no vocabulary constraint.
type Improvement struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Suggestion  string `json:"suggestion"`
}

// Feedback holds qualitative observations about a file.
type Feedback struct {
	Strengths            []string `json:"strengths"`
	Weaknesses           []string `json:"weaknesses"`
	BestPracticesFound   []string `json:"best_practices_found"`
	BestPracticesMissing []string `json:"best_practices_missing"`
}

// FileScore rates a file on six 0-100 dimensions plus an overall score.
type FileScore struct {
	Maintainability int `json:"maintainability"`
	Readability     int `json:"readability"`
	Robustness      int `json:"robustness"`
	Security        int `json:"security"`
	Performance     int `json:"performance"`
	BestPractices   int `json:"best_practices"`
	Overall         int `json:"overall"`
}

// UniformScore returns a FileScore with every dimension set to v.
func UniformScore(v int) FileScore {
	return FileScore{
		Maintainability: v,
		Readability:     v,
		Robustness:      v,
		Security:        v,
		Performance:     v,
		BestPractices:   v,
		Overall:         v,
	}
}

// IssueDistribution counts issues per type. Zero counts are never stored.
type IssueDistribution map[IssueType]int

// FileReview is the validated review of one file.
// Error is set only when the file could not be reviewed at all; such entries
// carry a zero score and are excluded from report averages.
type FileReview struct {
	Filename          string            `json:"filename"`
	FilePath          string            `json:"file_path"`
	FileType          string            `json:"file_type"`
	Issues            []Issue           `json:"issues"`
	Improvements      []Improvement     `json:"improvements"`
	Feedback          Feedback          `json:"feedback"`
	FileScore         FileScore         `json:"file_score"`
	IssueDistribution IssueDistribution `json:"issue_distribution"`
	Error             string            `json:"error,omitempty"`
}

// MarshalJSON emits the reduced {filename, file_path, error, file_score} shape
// for error-marked entries.
func (r FileReview) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Filename  string         `json:"filename"`
			FilePath  string         `json:"file_path"`
			Error     string         `json:"error"`
			FileScore map[string]int `json:"file_score"`
		}{r.Filename, r.FilePath, r.Error, map[string]int{"overall": r.FileScore.Overall}})
	}
	type plain FileReview
	return json.Marshal(plain(r))
}

// Valid reports whether the review contributes to project statistics.
func (r FileReview) Valid() bool {
	return r.Error == ""
}

// FailedReview builds the error-marked entry for a file the reviewer could not process.
func FailedReview(filename, filePath string, err error) FileReview {
	return FileReview{
		Filename: filename,
		FilePath: filePath,
		Error:    err.Error(),
	}
}
