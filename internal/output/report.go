package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/joescharf/crev/internal/models"
)

// Report formats accepted by Render.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Render writes rep in the named format.
func (u *UI) Render(format string, rep models.ProjectReport) error {
	switch format {
	case "", FormatTable:
		return u.Report(rep)
	case FormatJSON:
		return WriteJSON(u.Out, rep)
	case FormatMarkdown, "md":
		return WriteMarkdown(u.Out, rep)
	default:
		return fmt.Errorf("unknown format %q (want table, json or markdown)", format)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Report prints a colored summary, a per-file table and the notable issues.
func (u *UI) Report(rep models.ProjectReport) error {
	if rep.Metadata.Status == models.ReportStatusWarning {
		u.Warning("%s", rep.Metadata.Message)
		return nil
	}

	s := rep.Summary
	fmt.Fprintf(u.Out, "%s %s\n", Cyan("Run:"), rep.Metadata.RunID)
	fmt.Fprintf(u.Out, "%s %d reviewed / %d scanned\n", Cyan("Files:"),
		rep.Metadata.TotalFilesReviewed, rep.Metadata.TotalFilesScanned)
	fmt.Fprintf(u.Out, "%s %s  (maintainability %s, security %s)\n", Cyan("Average:"),
		ScoreColor(s.AverageScore), ScoreColor(s.AverageMaintainability), ScoreColor(s.AverageSecurity))
	fmt.Fprintf(u.Out, "%s %d issues (%d critical), %d improvements\n", Cyan("Found:"),
		s.TotalIssuesFound, s.CriticalIssues, s.TotalImprovementsSuggested)
	fmt.Fprintln(u.Out)

	table := u.Table([]string{"File", "Score", "Issues", "Critical", "Note"})
	for _, f := range rep.Files {
		if !f.Valid() {
			_ = table.Append([]string{f.FilePath, Red("-"), "-", "-", Red(f.Error)})
			continue
		}
		_ = table.Append([]string{
			f.FilePath,
			ScoreColor(float64(f.FileScore.Overall)),
			fmt.Sprintf("%d", len(f.Issues)),
			fmt.Sprintf("%d", countSeverity(f.Issues, models.SeverityCritical)),
			"",
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	notable := notableIssues(rep.Files)
	if len(notable) > 0 {
		fmt.Fprintln(u.Out)
		fmt.Fprintln(u.Out, Cyan("Notable issues:"))
		for _, n := range notable {
			fmt.Fprintf(u.Out, "  %s %s:%s [%s] %s\n", SeverityColor(string(n.issue.Severity)),
				n.path, lineLabel(n.issue.LineRange), n.issue.Type, n.issue.Message)
		}
	}

	fmt.Fprintln(u.Out)
	fmt.Fprintln(u.Out, recommendationColor(s)(s.Recommendation))
	return nil
}

// ReportList prints stored report headers.
func (u *UI) ReportList(headers []*models.ReportHeader) error {
	if len(headers) == 0 {
		u.Info("No saved reports")
		return nil
	}
	table := u.Table([]string{"ID", "Created", "Identity", "Files", "Score", "Critical", "Status"})
	for _, h := range headers {
		_ = table.Append([]string{
			h.ID,
			h.CreatedAt.Local().Format("2006-01-02 15:04"),
			h.Identity,
			fmt.Sprintf("%d", h.TotalFiles),
			ScoreColor(h.AverageScore),
			fmt.Sprintf("%d", h.CriticalIssues),
			string(h.Status),
		})
	}
	return table.Render()
}

// WriteMarkdown writes rep as a markdown document.
func WriteMarkdown(w io.Writer, rep models.ProjectReport) error {
	var b strings.Builder
	s := rep.Summary

	b.WriteString("# Code Review Report\n\n")
	if rep.Metadata.Status == models.ReportStatusWarning {
		fmt.Fprintf(&b, "> %s\n", rep.Metadata.Message)
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(&b, "**%s**\n\n", s.Recommendation)
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Files reviewed | %d of %d |\n", rep.Metadata.TotalFilesReviewed, rep.Metadata.TotalFilesScanned)
	fmt.Fprintf(&b, "| Average score | %.2f |\n", s.AverageScore)
	fmt.Fprintf(&b, "| Average maintainability | %.2f |\n", s.AverageMaintainability)
	fmt.Fprintf(&b, "| Average security | %.2f |\n", s.AverageSecurity)
	fmt.Fprintf(&b, "| Issues | %d |\n", s.TotalIssuesFound)
	fmt.Fprintf(&b, "| Critical issues | %d |\n", s.CriticalIssues)
	fmt.Fprintf(&b, "| Improvements | %d |\n", s.TotalImprovementsSuggested)

	if len(s.IssueDistribution) > 0 {
		b.WriteString("\n## Issue distribution\n\n")
		types := make([]string, 0, len(s.IssueDistribution))
		for t := range s.IssueDistribution {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(&b, "- %s: %d\n", t, s.IssueDistribution[models.IssueType(t)])
		}
	}

	for _, f := range rep.Files {
		fmt.Fprintf(&b, "\n## `%s`\n\n", f.FilePath)
		if !f.Valid() {
			fmt.Fprintf(&b, "Review failed: %s\n", f.Error)
			continue
		}
		fmt.Fprintf(&b, "Score: **%d**/100\n", f.FileScore.Overall)
		if len(f.Issues) > 0 {
			b.WriteString("\n| Lines | Severity | Type | Message | Recommendation |\n|---|---|---|---|---|\n")
			for _, is := range f.Issues {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", lineLabel(is.LineRange), is.Severity, is.Type,
					cell(is.Message), cell(is.Recommendation))
			}
		}
		if len(f.Improvements) > 0 {
			b.WriteString("\n**Improvements**\n\n")
			for _, im := range f.Improvements {
				fmt.Fprintf(&b, "- **%s**: %s\n", im.Title, im.Suggestion)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

type locatedIssue struct {
	path  string
	issue models.Issue
}

// notableIssues returns Critical and Major issues, most severe first.
func notableIssues(files []models.FileReview) []locatedIssue {
	var out []locatedIssue
	for _, f := range files {
		for _, is := range f.Issues {
			if is.Severity.Rank() >= models.SeverityMajor.Rank() {
				out = append(out, locatedIssue{path: f.FilePath, issue: is})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].issue.Severity.Rank() > out[j].issue.Severity.Rank()
	})
	return out
}

func countSeverity(issues []models.Issue, sev models.Severity) int {
	n := 0
	for _, is := range issues {
		if is.Severity == sev {
			n++
		}
	}
	return n
}

func lineLabel(r models.LineRange) string {
	switch {
	case r[0] == 0 && r[1] == 0:
		return "?"
	case r[0] == r[1]:
		return fmt.Sprintf("%d", r[0])
	default:
		return fmt.Sprintf("%d-%d", r[0], r[1])
	}
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func recommendationColor(s models.ReportSummary) func(string) string {
	switch {
	case s.CriticalIssues > 0:
		return Red
	case s.AverageScore >= 85:
		return Green
	case s.AverageScore >= 70:
		return Yellow
	default:
		return Red
	}
}
