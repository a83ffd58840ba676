package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/store"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockStore implements store.Store for testing.
type mockStore struct {
	mu      sync.Mutex
	reports []*models.StoredReport

	createErr error
	listErr   error
}

func (m *mockStore) CreateReport(_ context.Context, identity string, report models.ProjectReport) (*models.StoredReport, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &models.StoredReport{
		ID:        fmt.Sprintf("R%03d", len(m.reports)+1),
		Identity:  identity,
		Report:    report,
		CreatedAt: time.Now(),
	}
	m.reports = append(m.reports, r)
	return r, nil
}

func (m *mockStore) GetReport(_ context.Context, id string) (*models.StoredReport, error) {
	for _, r := range m.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

func (m *mockStore) ListReports(_ context.Context, filter store.ReportListFilter) ([]*models.ReportHeader, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.ReportHeader
	for i := len(m.reports) - 1; i >= 0; i-- {
		r := m.reports[i]
		if filter.Identity != "" && r.Identity != filter.Identity {
			continue
		}
		out = append(out, &models.ReportHeader{ID: r.ID, Identity: r.Identity, AverageScore: r.Report.Summary.AverageScore})
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) DeleteReport(_ context.Context, id string) error { return nil }
func (m *mockStore) Migrate(_ context.Context) error                 { return nil }
func (m *mockStore) Close() error                                    { return nil }

// mockRunner records which entry point was used.
type mockRunner struct {
	calls []string
	blobs []models.Blob
	err   error
}

func (m *mockRunner) report() models.ProjectReport {
	return models.ProjectReport{
		Metadata: models.ReportMetadata{ReviewedBy: models.ReviewedBy, Status: models.ReportStatusSuccess},
		Files:    []models.FileReview{},
		Summary:  models.ReportSummary{AverageScore: 88, Recommendation: "EXCELLENT: Code quality is very high"},
	}
}

func (m *mockRunner) RunFiles(_ context.Context, blobs []models.Blob) (models.ProjectReport, error) {
	m.calls = append(m.calls, "files")
	m.blobs = blobs
	return m.report(), m.err
}

func (m *mockRunner) RunArchive(_ context.Context, name string, _ []byte) (models.ProjectReport, error) {
	m.calls = append(m.calls, "archive:"+name)
	return m.report(), m.err
}

func (m *mockRunner) RunDirectory(_ context.Context, root string) (models.ProjectReport, error) {
	m.calls = append(m.calls, "dir")
	return m.report(), m.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, *mockStore, *mockRunner) {
	t.Helper()
	ms := &mockStore{}
	mr := &mockRunner{}
	srv := NewServer(mr, ms, "test")
	require.NotNil(t, srv)
	return srv, ms, mr
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// ---------------------------------------------------------------------------
// Tests: review_path
// ---------------------------------------------------------------------------

func TestHandleReviewPath_File(t *testing.T) {
	srv, ms, mr := newTestServer(t)
	path := filepath.Join(t.TempDir(), "main.py")
	require.NoError(t, os.WriteFile(path, []byte("print(1)"), 0o644))

	result, err := srv.handleReviewPath(context.Background(), callToolReq("review_path", map[string]any{
		"path":     path,
		"identity": "agent-7",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	assert.Equal(t, []string{"files"}, mr.calls)
	require.Len(t, mr.blobs, 1)
	assert.Equal(t, "main.py", mr.blobs[0].Name)

	var out reviewPathResult
	resultJSON(t, result, &out)
	assert.Equal(t, "R001", out.ReportID)
	assert.Equal(t, 88.0, out.Report.Summary.AverageScore)
	require.Len(t, ms.reports, 1)
	assert.Equal(t, "agent-7", ms.reports[0].Identity)
}

func TestHandleReviewPath_Directory(t *testing.T) {
	srv, _, mr := newTestServer(t)
	result, err := srv.handleReviewPath(context.Background(), callToolReq("review_path", map[string]any{
		"path": t.TempDir(),
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"dir"}, mr.calls)
}

func TestHandleReviewPath_Archive(t *testing.T) {
	srv, _, mr := newTestServer(t)
	path := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK"), 0o644))

	result, err := srv.handleReviewPath(context.Background(), callToolReq("review_path", map[string]any{"path": path}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"archive:bundle.zip"}, mr.calls)
}

func TestHandleReviewPath_NoSave(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	result, err := srv.handleReviewPath(context.Background(), callToolReq("review_path", map[string]any{
		"path": t.TempDir(),
		"save": false,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Empty(t, ms.reports)

	var out reviewPathResult
	resultJSON(t, result, &out)
	assert.Empty(t, out.ReportID)
}

func TestHandleReviewPath_Errors(t *testing.T) {
	srv, _, mr := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleReviewPath(ctx, callToolReq("review_path", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "path")

	result, err = srv.handleReviewPath(ctx, callToolReq("review_path", map[string]any{
		"path": filepath.Join(t.TempDir(), "missing.go"),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	mr.err = fmt.Errorf("archive extraction failed")
	result, err = srv.handleReviewPath(ctx, callToolReq("review_path", map[string]any{"path": t.TempDir()}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "archive extraction failed")
}

func TestHandleReviewPath_SaveError(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	ms.createErr = fmt.Errorf("disk full")
	result, err := srv.handleReviewPath(context.Background(), callToolReq("review_path", map[string]any{"path": t.TempDir()}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "disk full")
}

func TestHandleReviewPath_WithoutStore(t *testing.T) {
	mr := &mockRunner{}
	srv := NewServer(mr, nil, "")
	result, err := srv.handleReviewPath(context.Background(), callToolReq("review_path", map[string]any{"path": t.TempDir()}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: list_reports / get_report
// ---------------------------------------------------------------------------

func seedReports(t *testing.T, ms *mockStore) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "alice"} {
		_, err := ms.CreateReport(ctx, id, models.ProjectReport{})
		require.NoError(t, err)
	}
}

func TestHandleListReports(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	seedReports(t, ms)
	ctx := context.Background()

	result, err := srv.handleListReports(ctx, callToolReq("list_reports", map[string]any{}))
	require.NoError(t, err)
	var all []models.ReportHeader
	resultJSON(t, result, &all)
	assert.Len(t, all, 3)

	result, err = srv.handleListReports(ctx, callToolReq("list_reports", map[string]any{"identity": "alice", "limit": 1}))
	require.NoError(t, err)
	var alice []models.ReportHeader
	resultJSON(t, result, &alice)
	require.Len(t, alice, 1)
	assert.Equal(t, "R003", alice[0].ID)
}

func TestHandleListReports_Empty(t *testing.T) {
	srv, _, _ := newTestServer(t)
	result, err := srv.handleListReports(context.Background(), callToolReq("list_reports", nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleListReports_StoreError(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	ms.listErr = fmt.Errorf("db connection failed")
	result, err := srv.handleListReports(context.Background(), callToolReq("list_reports", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "db connection failed")
}

func TestHandleGetReport(t *testing.T) {
	srv, ms, _ := newTestServer(t)
	seedReports(t, ms)
	ctx := context.Background()

	result, err := srv.handleGetReport(ctx, callToolReq("get_report", map[string]any{"id": "R002"}))
	require.NoError(t, err)
	var got models.StoredReport
	resultJSON(t, result, &got)
	assert.Equal(t, "bob", got.Identity)

	result, err = srv.handleGetReport(ctx, callToolReq("get_report", map[string]any{"id": "R999"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "report not found")

	result, err = srv.handleGetReport(ctx, callToolReq("get_report", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestReportTools_WithoutStore(t *testing.T) {
	srv := NewServer(&mockRunner{}, nil, "")
	ctx := context.Background()

	result, err := srv.handleListReports(ctx, callToolReq("list_reports", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.handleGetReport(ctx, callToolReq("get_report", map[string]any{"id": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: issue_vocabulary
// ---------------------------------------------------------------------------

func TestHandleIssueVocabulary(t *testing.T) {
	srv, _, _ := newTestServer(t)
	result, err := srv.handleIssueVocabulary(context.Background(), callToolReq("issue_vocabulary", nil))
	require.NoError(t, err)

	var v struct {
		IssueTypes []string `json:"issue_types"`
		Severities []string `json:"severities"`
	}
	resultJSON(t, result, &v)
	assert.Len(t, v.IssueTypes, len(models.IssueTypes))
	assert.Contains(t, v.IssueTypes, "Code Smell")
	assert.Equal(t, []string{"Minor", "Major", "Critical"}, v.Severities)
}

// ---------------------------------------------------------------------------
// Tests: registration
// ---------------------------------------------------------------------------

func TestMCPServer_ToolsRegistered(t *testing.T) {
	srv, _, _ := newTestServer(t)

	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	// Call tools/list via HandleMessage to verify registration.
	ctx := context.Background()
	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(ctx, reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpcResp))

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}
	for _, name := range []string{"review_path", "list_reports", "get_report", "issue_vocabulary"} {
		assert.True(t, toolNames[name], "expected tool %q to be registered", name)
	}
}

// Compile-time interface checks for mocks.
var (
	_ store.Store = (*mockStore)(nil)
	_ Runner      = (*mockRunner)(nil)
)
