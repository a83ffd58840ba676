// Package aggregate folds per-file reviews into a project report.
package aggregate

import (
	"math"
	"sort"

	"github.com/joescharf/crev/internal/models"
)

// Recommendation texts, checked in order.
const (
	RecommendCritical  = "CRITICAL: Address critical issues immediately before deployment"
	RecommendExcellent = "EXCELLENT: Code quality is very high"
	RecommendGood      = "GOOD: Code is acceptable but has areas for improvement"
	RecommendPoor      = "POOR: Significant refactoring recommended"
)

// NoFilesMessage is the warning attached to a run with an empty queue.
const NoFilesMessage = "No reviewable files found in the uploaded folder"

// Meta carries run-level fields that are not derived from the reviews.
type Meta struct {
	RunID  string
	Input  models.InputKind
	Commit string
}

// Recommend maps an average score and a critical-issue count to a verdict.
func Recommend(avg float64, critical int) string {
	switch {
	case critical > 0:
		return RecommendCritical
	case avg >= 85:
		return RecommendExcellent
	case avg >= 70:
		return RecommendGood
	default:
		return RecommendPoor
	}
}

// Aggregate builds the project report. Error-marked reviews are listed but do
// not contribute to any statistic. The input slice is not modified.
func Aggregate(reviews []models.FileReview, meta Meta) models.ProjectReport {
	files := make([]models.FileReview, len(reviews))
	copy(files, reviews)
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].FileScore.Overall > files[j].FileScore.Overall
	})

	var (
		valid                             int
		sumOverall, sumMaint, sumSecurity int
		issues, improvements, critical    int
		dist                              = models.IssueDistribution{}
	)
	for _, r := range reviews {
		if !r.Valid() {
			continue
		}
		valid++
		sumOverall += r.FileScore.Overall
		sumMaint += r.FileScore.Maintainability
		sumSecurity += r.FileScore.Security
		issues += len(r.Issues)
		improvements += len(r.Improvements)
		for _, is := range r.Issues {
			if is.Severity == models.SeverityCritical {
				critical++
			}
		}
		for t, n := range r.IssueDistribution {
			if n > 0 {
				dist[t] += n
			}
		}
	}

	summary := models.ReportSummary{
		TotalFiles:                 valid,
		TotalIssuesFound:           issues,
		TotalImprovementsSuggested: improvements,
		CriticalIssues:             critical,
		IssueDistribution:          dist,
	}
	var avg float64
	if valid > 0 {
		avg = float64(sumOverall) / float64(valid)
		summary.AverageScore = mean(sumOverall, valid)
		summary.AverageMaintainability = mean(sumMaint, valid)
		summary.AverageSecurity = mean(sumSecurity, valid)
	}
	// Recommend sees the unrounded mean.
	summary.Recommendation = Recommend(avg, critical)

	return models.ProjectReport{
		Metadata: models.ReportMetadata{
			ReviewedBy:         models.ReviewedBy,
			RunID:              meta.RunID,
			Input:              meta.Input,
			Commit:             meta.Commit,
			Status:             models.ReportStatusSuccess,
			TotalFilesScanned:  len(reviews),
			TotalFilesReviewed: valid,
		},
		Files:   files,
		Summary: summary,
	}
}

// Empty builds the warning report for a run that found nothing to review.
func Empty(meta Meta, message string) models.ProjectReport {
	if message == "" {
		message = NoFilesMessage
	}
	return models.ProjectReport{
		Metadata: models.ReportMetadata{
			ReviewedBy: models.ReviewedBy,
			RunID:      meta.RunID,
			Input:      meta.Input,
			Commit:     meta.Commit,
			Status:     models.ReportStatusWarning,
			Message:    message,
		},
		Files: []models.FileReview{},
		Summary: models.ReportSummary{
			IssueDistribution: models.IssueDistribution{},
			Recommendation:    Recommend(0, 0),
		},
	}
}

func mean(sum, n int) float64 {
	return math.Round(float64(sum)/float64(n)*100) / 100
}
