package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/crev/internal/extract"
	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/store"
)

// Runner executes a review run.
type Runner interface {
	RunFiles(ctx context.Context, blobs []models.Blob) (models.ProjectReport, error)
	RunArchive(ctx context.Context, name string, data []byte) (models.ProjectReport, error)
	RunDirectory(ctx context.Context, root string) (models.ProjectReport, error)
}

// Server exposes the review pipeline and report store as MCP tools.
type Server struct {
	runner  Runner
	store   store.Store
	version string
}

// NewServer creates the MCP server wrapper. The store may be nil.
func NewServer(r Runner, s store.Store, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{runner: r, store: s, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("crev", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.reviewPathTool())
	srv.AddTool(s.listReportsTool())
	srv.AddTool(s.getReportTool())
	srv.AddTool(s.issueVocabularyTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// review_path
func (s *Server) reviewPathTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_path",
		mcp.WithDescription("Review a source file, a directory tree, or a .zip archive and return the project report as JSON."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path to a file, directory, or .zip archive")),
		mcp.WithString("identity", mcp.Description("Owner identity recorded with the saved report")),
		mcp.WithBoolean("save", mcp.Description("Persist the report (default true when storage is available)")),
	)
	return tool, s.handleReviewPath
}

type reviewPathResult struct {
	ReportID string               `json:"report_id,omitempty"`
	Report   models.ProjectReport `json:"report"`
}

func (s *Server) handleReviewPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot access %s: %v", path, err)), nil
	}

	var report models.ProjectReport
	switch {
	case info.IsDir():
		report, err = s.runner.RunDirectory(ctx, path)
	case extract.IsArchiveName(path):
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", path, rerr)), nil
		}
		report, err = s.runner.RunArchive(ctx, filepath.Base(path), data)
	default:
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", path, rerr)), nil
		}
		report, err = s.runner.RunFiles(ctx, []models.Blob{{Name: filepath.Base(path), Data: data}})
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	out := reviewPathResult{Report: report}
	if s.store != nil && request.GetBool("save", true) {
		stored, err := s.store.CreateReport(ctx, request.GetString("identity", ""), report)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to save report: %v", err)), nil
		}
		out.ReportID = stored.ID
	}
	return jsonResult(out)
}

// list_reports
func (s *Server) listReportsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_reports",
		mcp.WithDescription("List saved review reports, newest first. Returns id, identity, status, average score and recommendation for each."),
		mcp.WithString("identity", mcp.Description("Only reports saved for this identity")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of reports (default 50)")),
	)
	return tool, s.handleListReports
}

func (s *Server) handleListReports(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("report storage is not configured"), nil
	}
	reports, err := s.store.ListReports(ctx, store.ReportListFilter{
		Identity: request.GetString("identity", ""),
		Limit:    request.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reports: %v", err)), nil
	}
	if reports == nil {
		reports = []*models.ReportHeader{}
	}
	return jsonResult(reports)
}

// get_report
func (s *Server) getReportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_report",
		mcp.WithDescription("Get a saved review report by ID, including every file review."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Report ID")),
	)
	return tool, s.handleGetReport
}

func (s *Server) handleGetReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("report storage is not configured"), nil
	}
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	report, err := s.store.GetReport(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("report not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get report: %v", err)), nil
	}
	return jsonResult(report)
}

// issue_vocabulary
func (s *Server) issueVocabularyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issue_vocabulary",
		mcp.WithDescription("List the issue types and severities a review may use."),
	)
	return tool, s.handleIssueVocabulary
}

func (s *Server) handleIssueVocabulary(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"issue_types": models.IssueTypes,
		"severities":  models.Severities,
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
