package models

import "time"

// ReportStatus is the outcome of a review run.
type ReportStatus string

const (
	ReportStatusSuccess ReportStatus = "success"
	ReportStatusWarning ReportStatus = "warning"
)

// ReviewedBy identifies the engine in report metadata.
const ReviewedBy = "crev AI Code Review Engine"

// ReportMetadata describes a review run.
type ReportMetadata struct {
	ReviewedBy         string       `json:"reviewed_by"`
	RunID              string       `json:"run_id,omitempty"`
	Input              InputKind    `json:"input,omitempty"`
	Commit             string       `json:"commit,omitempty"`
	Status             ReportStatus `json:"status"`
	Message            string       `json:"message,omitempty"`
	TotalFilesScanned  int          `json:"total_files_scanned"`
	TotalFilesReviewed int          `json:"total_files_reviewed"`
}

// ReportSummary holds project-level statistics over valid file reviews.
type ReportSummary struct {
	TotalFiles                 int               `json:"total_files"`
	AverageScore               float64           `json:"average_score"`
	AverageMaintainability     float64           `json:"average_maintainability"`
	AverageSecurity            float64           `json:"average_security"`
	TotalIssuesFound           int               `json:"total_issues_found"`
	TotalImprovementsSuggested int               `json:"total_improvements_suggested"`
	CriticalIssues             int               `json:"critical_issues"`
	IssueDistribution          IssueDistribution `json:"issue_distribution"`
	Recommendation             string            `json:"recommendation"`
}

// ProjectReport is the terminal artifact of a review run.
type ProjectReport struct {
	Metadata ReportMetadata `json:"metadata"`
	Files    []FileReview   `json:"files"`
	Summary  ReportSummary  `json:"summary"`
}

// StoredReport is a ProjectReport persisted for an identity.
type StoredReport struct {
	ID        string        `json:"id"`
	Identity  string        `json:"identity"`
	Report    ProjectReport `json:"report"`
	CreatedAt time.Time     `json:"created_at"`
}

// ReportHeader is the list view of a stored report.
type ReportHeader struct {
	ID             string       `json:"id"`
	Identity       string       `json:"identity"`
	RunID          string       `json:"run_id"`
	Status         ReportStatus `json:"status"`
	TotalFiles     int          `json:"total_files"`
	AverageScore   float64      `json:"average_score"`
	CriticalIssues int          `json:"critical_issues"`
	Recommendation string       `json:"recommendation"`
	CreatedAt      time.Time    `json:"created_at"`
}
