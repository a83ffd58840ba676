package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/output"
	"github.com/joescharf/crev/internal/store"
)

var (
	reportListIdentity string
	reportListLimit    int
	reportShowFormat   string
	reportExportFormat string
)

var reportCmd = &cobra.Command{
	Use:     "report",
	Aliases: []string{"reports"},
	Short:   "Browse saved review reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportListRun()
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved reports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportListRun()
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a saved report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportShowRun(args[0])
	},
}

var reportDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportDeleteRun(args[0])
	},
}

var reportExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a saved report as JSON, CSV, or Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportExportRun(args[0])
	},
}

func init() {
	reportListCmd.Flags().StringVar(&reportListIdentity, "identity", "", "Only reports saved for this identity")
	reportListCmd.Flags().IntVar(&reportListLimit, "limit", store.DefaultListLimit, "Maximum reports to list")
	reportShowCmd.Flags().StringVarP(&reportShowFormat, "format", "f", output.FormatTable, "Output format: table, json, markdown")
	reportExportCmd.Flags().StringVar(&reportExportFormat, "format", "json", "Export format: json, csv, markdown")

	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportDeleteCmd)
	reportCmd.AddCommand(reportExportCmd)
	rootCmd.AddCommand(reportCmd)
}

func reportListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	headers, err := s.ListReports(context.Background(), store.ReportListFilter{
		Identity: reportListIdentity,
		Limit:    reportListLimit,
	})
	if err != nil {
		return err
	}
	return ui.ReportList(headers)
}

func reportShowRun(id string) error {
	stored, err := loadReport(id)
	if err != nil {
		return err
	}
	if reportShowFormat == "" || reportShowFormat == output.FormatTable {
		ui.Info("Report %s (%s, saved %s)", stored.ID, identityLabel(stored.Identity), stored.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return ui.Render(reportShowFormat, stored.Report)
}

func reportDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		if _, err := s.GetReport(ctx, id); err != nil {
			return reportLookupError(id, err)
		}
		ui.DryRunMsg("Would delete report %s", id)
		return nil
	}

	if err := s.DeleteReport(ctx, id); err != nil {
		return reportLookupError(id, err)
	}
	ui.Success("Deleted report %s", id)
	return nil
}

func reportExportRun(id string) error {
	stored, err := loadReport(id)
	if err != nil {
		return err
	}
	return exportReport(ui.Out, reportExportFormat, stored)
}

func exportReport(w io.Writer, format string, stored *models.StoredReport) error {
	switch format {
	case "json":
		return output.WriteJSON(w, stored)
	case "csv":
		return writeReportCSV(w, stored.Report)
	case "markdown", "md":
		return output.WriteMarkdown(w, stored.Report)
	default:
		return fmt.Errorf("unknown export format: %s (use: json, csv, markdown)", format)
	}
}

// writeReportCSV writes one row per file in report order.
func writeReportCSV(w io.Writer, rep models.ProjectReport) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"Filename", "Path", "Type", "Overall", "Maintainability", "Readability",
		"Robustness", "Security", "Performance", "BestPractices", "Issues", "Critical", "Error",
	})
	for _, f := range rep.Files {
		s := f.FileScore
		critical := 0
		for _, is := range f.Issues {
			if is.Severity == models.SeverityCritical {
				critical++
			}
		}
		_ = cw.Write([]string{
			f.Filename, f.FilePath, f.FileType,
			strconv.Itoa(s.Overall), strconv.Itoa(s.Maintainability), strconv.Itoa(s.Readability),
			strconv.Itoa(s.Robustness), strconv.Itoa(s.Security), strconv.Itoa(s.Performance),
			strconv.Itoa(s.BestPractices), strconv.Itoa(len(f.Issues)), strconv.Itoa(critical),
			f.Error,
		})
	}
	cw.Flush()
	return cw.Error()
}

func loadReport(id string) (*models.StoredReport, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	stored, err := s.GetReport(context.Background(), id)
	if err != nil {
		return nil, reportLookupError(id, err)
	}
	return stored, nil
}

func reportLookupError(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("report %s not found", id)
	}
	return err
}

func identityLabel(identity string) string {
	if identity == "" {
		return "no identity"
	}
	return identity
}
