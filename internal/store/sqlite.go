package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/crev/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers from concurrent uploads.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string. IDs from one process sort in creation order.
func newULID() string {
	return ulid.Make().String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Reports ---

func (s *SQLiteStore) CreateReport(ctx context.Context, identity string, report models.ProjectReport) (*models.StoredReport, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	stored := &models.StoredReport{
		ID:        newULID(),
		Identity:  identity,
		Report:    report,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, identity, run_id, status, total_files, average_score, critical_issues, recommendation, report_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, identity, report.Metadata.RunID, string(report.Metadata.Status),
		report.Summary.TotalFiles, report.Summary.AverageScore, report.Summary.CriticalIssues,
		report.Summary.Recommendation, string(data), stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	return stored, nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*models.StoredReport, error) {
	r := &models.StoredReport{}
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, identity, report_json, created_at FROM reports WHERE id = ?`, id,
	).Scan(&r.ID, &r.Identity, &data, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &r.Report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportListFilter) ([]*models.ReportHeader, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, identity, run_id, status, total_files, average_score, critical_issues, recommendation, created_at FROM reports`
	var args []any
	if filter.Identity != "" {
		query += ` WHERE identity = ?`
		args = append(args, filter.Identity)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var headers []*models.ReportHeader
	for rows.Next() {
		h := &models.ReportHeader{}
		var status string
		if err := rows.Scan(&h.ID, &h.Identity, &h.RunID, &status, &h.TotalFiles, &h.AverageScore, &h.CriticalIssues, &h.Recommendation, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		h.Status = models.ReportStatus(status)
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
