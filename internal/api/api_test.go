package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/crev/internal/extract"
	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/store"
)

// fakeRunner records the blobs it receives and returns a canned report.
type fakeRunner struct {
	mu         sync.Mutex
	blobs      []models.Blob
	archive    string
	archiveErr error
}

func (f *fakeRunner) RunFiles(ctx context.Context, blobs []models.Blob) (models.ProjectReport, error) {
	f.mu.Lock()
	f.blobs = append(f.blobs, blobs...)
	f.mu.Unlock()
	return reportFor(len(blobs)), nil
}

func (f *fakeRunner) RunArchive(ctx context.Context, name string, data []byte) (models.ProjectReport, error) {
	f.mu.Lock()
	f.archive = name
	f.mu.Unlock()
	if f.archiveErr != nil {
		return models.ProjectReport{}, f.archiveErr
	}
	return reportFor(3), nil
}

func reportFor(n int) models.ProjectReport {
	return models.ProjectReport{
		Metadata: models.ReportMetadata{
			ReviewedBy:         models.ReviewedBy,
			RunID:              fmt.Sprintf("run-%d", n),
			Status:             models.ReportStatusSuccess,
			TotalFilesScanned:  n,
			TotalFilesReviewed: n,
		},
		Files: []models.FileReview{},
		Summary: models.ReportSummary{
			TotalFiles:        n,
			AverageScore:      80,
			IssueDistribution: models.IssueDistribution{},
			Recommendation:    "GOOD: Code is acceptable but has areas for improvement",
		},
	}
}

func setupTestServer(t *testing.T) (*Server, *fakeRunner, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	runner := &fakeRunner{}
	srv := NewServer(runner, s, Options{AllowedOrigins: []string{"http://localhost:5173"}})
	return srv, runner, s
}

type part struct {
	field, name, body string
}

func multipartRequest(t *testing.T, path string, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadFile(t *testing.T) {
	srv, runner, s := setupTestServer(t)
	router := srv.Router()

	req := multipartRequest(t, "/upload/file/", part{"file", "main.py", "print('hi')"})
	req.Header.Set(IdentityHeader, "user-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, runner.blobs, 1)
	assert.Equal(t, "main.py", runner.blobs[0].Name)
	assert.Equal(t, "print('hi')", string(runner.blobs[0].Data))

	var rep models.ProjectReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, "run-1", rep.Metadata.RunID)

	id := w.Header().Get(ReportIDHeader)
	require.NotEmpty(t, id)
	stored, err := s.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.Identity)
}

func TestUploadFile_MissingField(t *testing.T) {
	srv, runner, _ := setupTestServer(t)
	req := multipartRequest(t, "/upload/file/", part{"other", "main.py", "x"})
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing form field: file")
	assert.Empty(t, runner.blobs)
}

func TestUploadFile_NotMultipart(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	req := httptest.NewRequest("POST", "/upload/file/", bytes.NewBufferString(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadFiles(t *testing.T) {
	srv, runner, _ := setupTestServer(t)
	req := multipartRequest(t, "/upload/files/",
		part{"files", "a.js", "a"},
		part{"files", "b.js", "b"},
		part{"files", "c.js", "c"},
	)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, runner.blobs, 3)
	assert.Equal(t, "a.js", runner.blobs[0].Name)
	assert.Equal(t, "b.js", runner.blobs[1].Name)
	assert.Equal(t, "c.js", runner.blobs[2].Name)
}

func TestUploadFolder(t *testing.T) {
	srv, runner, _ := setupTestServer(t)
	req := multipartRequest(t, "/upload/folder/", part{"zip_file", "project.zip", "PK"})
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "project.zip", runner.archive)
}

func TestUploadFolder_RejectsNonZip(t *testing.T) {
	srv, runner, _ := setupTestServer(t)
	req := multipartRequest(t, "/upload/folder/", part{"zip_file", "project.tar.gz", "x"})
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Please upload a .zip file")
	assert.Empty(t, runner.archive)
}

func TestUploadFolder_ExtractionFailure(t *testing.T) {
	srv, runner, _ := setupTestServer(t)
	runner.archiveErr = fmt.Errorf("%w: entry escapes workspace", extract.ErrExtraction)

	req := multipartRequest(t, "/upload/folder/", part{"zip_file", "evil.zip", "PK"})
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, w.Header().Get(ReportIDHeader))
}

func TestUploadFolder_InternalError(t *testing.T) {
	srv, runner, _ := setupTestServer(t)
	runner.archiveErr = errors.New("disk full")

	req := multipartRequest(t, "/upload/folder/", part{"zip_file", "p.zip", "PK"})
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestUpload_TooLarge(t *testing.T) {
	runner := &fakeRunner{}
	srv := NewServer(runner, nil, Options{MaxUploadBytes: 64})
	req := multipartRequest(t, "/upload/file/", part{"file", "big.py", string(bytes.Repeat([]byte("x"), 4096))})
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusOK, w.Code)
	assert.Empty(t, runner.blobs)
}

func TestUpload_WithoutStore(t *testing.T) {
	runner := &fakeRunner{}
	srv := NewServer(runner, nil, Options{})
	req := multipartRequest(t, "/upload/file/", part{"file", "a.go", "package a"})
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(ReportIDHeader))

	req = httptest.NewRequest("GET", "/api/v1/reports", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReports_API(t *testing.T) {
	srv, _, s := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()

	a, err := s.CreateReport(ctx, "alice", reportFor(1))
	require.NoError(t, err)
	_, err = s.CreateReport(ctx, "bob", reportFor(2))
	require.NoError(t, err)

	// List all
	req := httptest.NewRequest("GET", "/api/v1/reports", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var headers []models.ReportHeader
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &headers))
	assert.Len(t, headers, 2)

	// List by identity
	req = httptest.NewRequest("GET", "/api/v1/reports?identity=alice&limit=5", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &headers))
	require.Len(t, headers, 1)
	assert.Equal(t, a.ID, headers[0].ID)

	// Identity from header
	req = httptest.NewRequest("GET", "/api/v1/reports", nil)
	req.Header.Set(IdentityHeader, "bob")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &headers))
	require.Len(t, headers, 1)
	assert.Equal(t, "bob", headers[0].Identity)

	// Bad limit
	req = httptest.NewRequest("GET", "/api/v1/reports?limit=abc", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Get
	req = httptest.NewRequest("GET", "/api/v1/reports/"+a.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var stored models.StoredReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, "run-1", stored.Report.Metadata.RunID)

	// Delete
	req = httptest.NewRequest("DELETE", "/api/v1/reports/"+a.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Gone
	req = httptest.NewRequest("GET", "/api/v1/reports/"+a.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest("DELETE", "/api/v1/reports/"+a.ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListReports_EmptyIsArray(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/reports", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestVocabulary(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/vocabulary", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var v vocabularyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, models.IssueTypes, v.IssueTypes)
	assert.Equal(t, models.Severities, v.Severities)
}

func TestHealth(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","storage":true}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	router := srv.Router()

	// Preflight from an allowed origin
	req := httptest.NewRequest("OPTIONS", "/upload/file/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	// Disallowed origin gets no allow header
	req = httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Wildcard(t *testing.T) {
	srv := NewServer(&fakeRunner{}, nil, Options{AllowedOrigins: []string{"*"}})
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("Origin", "http://anything.example")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, "http://anything.example", w.Header().Get("Access-Control-Allow-Origin"))
}
