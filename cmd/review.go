package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/crev/internal/git"
	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/output"
)

var (
	reviewZip      string
	reviewFormat   string
	reviewSave     bool
	reviewIdentity string
	reviewWorkers  int
	reviewFailOn   string
	reviewChanged  bool
	reviewBase     string
)

var reviewCmd = &cobra.Command{
	Use:   "review [paths...]",
	Short: "Review files, a directory, or a .zip archive",
	Long: `Review source code and print a project report.

  crev review                 review the current directory
  crev review ./service       review a directory tree
  crev review a.go b.go       review specific files, in the given order
  crev review --zip repo.zip  review an archive
  crev review --changed       review files changed since HEAD (or --base)

Directories and archives are filtered: dependency and build folders are
skipped, only reviewable extensions are sent, and entry points come first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(args)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewZip, "zip", "", "Review a .zip archive")
	reviewCmd.Flags().StringVarP(&reviewFormat, "format", "f", output.FormatTable, "Output format: table, json, markdown")
	reviewCmd.Flags().BoolVar(&reviewSave, "save", false, "Save the report to the local database")
	reviewCmd.Flags().StringVar(&reviewIdentity, "identity", "", "Identity recorded with a saved report")
	reviewCmd.Flags().IntVarP(&reviewWorkers, "workers", "w", 0, "Concurrent reviewer calls (default review.workers)")
	reviewCmd.Flags().StringVar(&reviewFailOn, "fail-on", "none", "Exit non-zero when an issue at or above this severity is found: minor, major, critical, none")
	reviewCmd.Flags().BoolVar(&reviewChanged, "changed", false, "Review only files changed in the git working tree")
	reviewCmd.Flags().StringVar(&reviewBase, "base", "", "Base ref for --changed (default HEAD)")
	rootCmd.AddCommand(reviewCmd)
}

func reviewRun(args []string) error {
	threshold, err := parseFailOn(reviewFailOn)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr)
	p, err := newPipeline(logger, reviewWorkers)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	var report models.ProjectReport
	switch {
	case reviewChanged:
		if reviewZip != "" || len(args) > 1 {
			return fmt.Errorf("--changed takes at most one path and cannot be combined with --zip")
		}
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		cs, err := changedFiles(git.NewClient(), dir, reviewBase)
		if err != nil {
			return err
		}
		ui.VerboseLog("Reviewing %d changed path(s) in %s at %s", len(cs.files), cs.root, cs.commit)
		report, err = p.RunPaths(ctx, cs.root, cs.files)
		if err != nil {
			return err
		}
		report.Metadata.Commit = cs.commit
	case reviewZip != "":
		if len(args) > 0 {
			return fmt.Errorf("--zip cannot be combined with path arguments")
		}
		data, err := os.ReadFile(reviewZip)
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		ui.VerboseLog("Reviewing archive %s (%d bytes)", reviewZip, len(data))
		report, err = p.RunArchive(ctx, filepath.Base(reviewZip), data)
		if err != nil {
			return err
		}
	default:
		if len(args) == 0 {
			args = []string{"."}
		}
		dir, blobs, err := collectReviewInputs(args)
		if err != nil {
			return err
		}
		if dir != "" {
			ui.VerboseLog("Reviewing directory %s", dir)
			report, err = p.RunDirectory(ctx, dir)
		} else {
			ui.VerboseLog("Reviewing %d file(s)", len(blobs))
			report, err = p.RunFiles(ctx, blobs)
		}
		if err != nil {
			return err
		}
	}
	ui.VerboseLog("Input %s: %d queued, %d reviewed", report.Metadata.Input,
		report.Metadata.TotalFilesScanned, report.Metadata.TotalFilesReviewed)

	if err := ui.Render(reviewFormat, report); err != nil {
		return err
	}

	if reviewSave {
		if err := saveReport(ctx, report); err != nil {
			ui.Warning("Report not saved: %v", err)
		}
	}

	if threshold != "" && hasIssueAtOrAbove(report, threshold) {
		return fmt.Errorf("found issues at or above severity %s", threshold)
	}
	return nil
}

// collectReviewInputs returns either a single directory or the file blobs to review.
func collectReviewInputs(args []string) (string, []models.Blob, error) {
	if len(args) == 1 {
		info, err := os.Stat(args[0])
		if err != nil {
			return "", nil, err
		}
		if info.IsDir() {
			return args[0], nil, nil
		}
	}

	blobs := make([]models.Blob, 0, len(args))
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil {
			return "", nil, err
		}
		if info.IsDir() {
			return "", nil, fmt.Errorf("%s is a directory; review directories one at a time", a)
		}
		data, err := os.ReadFile(a)
		if err != nil {
			return "", nil, err
		}
		blobs = append(blobs, models.Blob{Name: filepath.Base(a), Data: data})
	}
	return "", blobs, nil
}

type changeSet struct {
	root   string
	commit string
	files  []string
}

// changedFiles resolves the repository containing dir and lists the files
// that differ from base. The commit is empty in a repository with no commits.
func changedFiles(c git.Client, dir, base string) (changeSet, error) {
	root, err := c.RepoRoot(dir)
	if err != nil {
		return changeSet{}, err
	}
	files, err := c.ChangedFiles(root, base)
	if err != nil {
		return changeSet{}, err
	}
	commit, _ := c.HeadCommit(root)
	return changeSet{root: root, commit: commit, files: files}, nil
}

func saveReport(ctx context.Context, report models.ProjectReport) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	stored, err := s.CreateReport(ctx, reviewIdentity, report)
	if err != nil {
		return err
	}
	if reviewFormat == output.FormatTable || reviewFormat == "" {
		ui.Success("Saved report %s", stored.ID)
	} else {
		fmt.Fprintf(ui.ErrOut, "saved report %s\n", stored.ID)
	}
	return nil
}

// parseFailOn returns the threshold severity, or "" for none.
func parseFailOn(v string) (models.Severity, error) {
	switch strings.ToLower(v) {
	case "", "none":
		return "", nil
	case "minor":
		return models.SeverityMinor, nil
	case "major":
		return models.SeverityMajor, nil
	case "critical":
		return models.SeverityCritical, nil
	default:
		return "", fmt.Errorf("invalid --fail-on %q (use minor, major, critical or none)", v)
	}
}

func hasIssueAtOrAbove(report models.ProjectReport, threshold models.Severity) bool {
	for _, f := range report.Files {
		if !f.Valid() {
			continue
		}
		for _, is := range f.Issues {
			if is.Severity.Rank() >= threshold.Rank() {
				return true
			}
		}
	}
	return false
}
