package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/joescharf/crev/internal/extract"
	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/store"
)

// IdentityHeader carries the caller's opaque identity token.
const IdentityHeader = "X-Identity"

// ReportIDHeader is set on upload responses when the report was persisted.
const ReportIDHeader = "X-Report-ID"

// DefaultMaxUploadBytes caps one upload request body.
const DefaultMaxUploadBytes int64 = 100 << 20

// multipartMemory is the in-memory threshold before parts spill to disk.
const multipartMemory = 32 << 20

// Runner executes a review run.
type Runner interface {
	RunFiles(ctx context.Context, blobs []models.Blob) (models.ProjectReport, error)
	RunArchive(ctx context.Context, name string, data []byte) (models.ProjectReport, error)
}

// Options configures a Server.
type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Server provides the upload and report HTTP handlers.
type Server struct {
	runner    Runner
	store     store.Store
	logger    *slog.Logger
	origins   map[string]bool
	anyOrigin bool
	maxUpload int64
}

// NewServer creates a new API server.
// The store may be nil, in which case reports are not persisted and the
// report routes answer 503.
func NewServer(runner Runner, s store.Store, opts Options) *Server {
	srv := &Server{
		runner:    runner,
		store:     s,
		logger:    opts.Logger,
		origins:   make(map[string]bool),
		maxUpload: opts.MaxUploadBytes,
	}
	if srv.logger == nil {
		srv.logger = slog.Default()
	}
	if srv.maxUpload <= 0 {
		srv.maxUpload = DefaultMaxUploadBytes
	}
	for _, o := range opts.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			srv.anyOrigin = true
		}
		if o != "" {
			srv.origins[o] = true
		}
	}
	return srv
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload/file/", s.uploadFile)
	mux.HandleFunc("POST /upload/files/", s.uploadFiles)
	mux.HandleFunc("POST /upload/folder/", s.uploadFolder)

	mux.HandleFunc("GET /api/v1/reports", s.listReports)
	mux.HandleFunc("GET /api/v1/reports/{id}", s.getReport)
	mux.HandleFunc("DELETE /api/v1/reports/{id}", s.deleteReport)

	mux.HandleFunc("GET /api/v1/vocabulary", s.vocabulary)
	mux.HandleFunc("GET /api/v1/health", s.health)

	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && (s.anyOrigin || s.origins[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+IdentityHeader)
		w.Header().Set("Access-Control-Expose-Headers", ReportIDHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Uploads ---

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	if !s.parseUpload(w, r) {
		return
	}
	blob, err := readPart(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.runner.RunFiles(r.Context(), []models.Blob{blob})
	s.respondReport(w, r, report, err)
}

func (s *Server) uploadFiles(w http.ResponseWriter, r *http.Request) {
	if !s.parseUpload(w, r) {
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "missing form field: files")
		return
	}
	blobs := make([]models.Blob, 0, len(headers))
	for _, h := range headers {
		blob, err := readHeader(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		blobs = append(blobs, blob)
	}
	report, err := s.runner.RunFiles(r.Context(), blobs)
	s.respondReport(w, r, report, err)
}

func (s *Server) uploadFolder(w http.ResponseWriter, r *http.Request) {
	if !s.parseUpload(w, r) {
		return
	}
	blob, err := readPart(r, "zip_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !extract.IsArchiveName(blob.Name) {
		writeError(w, http.StatusBadRequest, "Please upload a .zip file")
		return
	}
	report, err := s.runner.RunArchive(r.Context(), blob.Name, blob.Data)
	s.respondReport(w, r, report, err)
}

// parseUpload caps the body and parses the multipart form. It writes the
// error response and returns false on failure.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUpload))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return false
	}
	return true
}

func readPart(r *http.Request, field string) (models.Blob, error) {
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return models.Blob{}, fmt.Errorf("missing form field: %s", field)
	}
	return readHeader(headers[0])
}

func readHeader(h *multipart.FileHeader) (models.Blob, error) {
	f, err := h.Open()
	if err != nil {
		return models.Blob{}, fmt.Errorf("open %s: %w", h.Filename, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.Blob{}, fmt.Errorf("read %s: %w", h.Filename, err)
	}
	return models.Blob{Name: h.Filename, Data: data}, nil
}

func (s *Server) respondReport(w http.ResponseWriter, r *http.Request, report models.ProjectReport, err error) {
	switch {
	case errors.Is(err, extract.ErrInvalidArchive):
		writeError(w, http.StatusBadRequest, "Please upload a .zip file")
		return
	case errors.Is(err, extract.ErrExtraction):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.logger.Error("review failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.store != nil {
		identity := r.Header.Get(IdentityHeader)
		stored, serr := s.store.CreateReport(r.Context(), identity, report)
		if serr != nil {
			s.logger.Error("failed to persist report", "run_id", report.Metadata.RunID, "error", serr)
		} else {
			w.Header().Set(ReportIDHeader, stored.ID)
		}
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Reports ---

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "report storage is not configured")
		return false
	}
	return true
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	filter := store.ReportListFilter{Identity: r.URL.Query().Get("identity")}
	if filter.Identity == "" {
		filter.Identity = r.Header.Get(IdentityHeader)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	reports, err := s.store.ListReports(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reports == nil {
		reports = []*models.ReportHeader{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	report, err := s.store.GetReport(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	err := s.store.DeleteReport(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Misc ---

type vocabularyResponse struct {
	IssueTypes []models.IssueType `json:"issue_types"`
	Severities []models.Severity  `json:"severities"`
}

func (s *Server) vocabulary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, vocabularyResponse{IssueTypes: models.IssueTypes, Severities: models.Severities})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"storage": s.store != nil,
	})
}
