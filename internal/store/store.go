package store

import (
	"context"
	"errors"

	"github.com/joescharf/crev/internal/models"
)

// ErrNotFound is returned when a report ID does not exist.
var ErrNotFound = errors.New("report not found")

// DefaultListLimit caps ListReports when no limit is given.
const DefaultListLimit = 50

// ReportListFilter narrows ListReports. An empty Identity matches all.
type ReportListFilter struct {
	Identity string
	Limit    int
}

// Store defines the persistence interface for review reports.
type Store interface {
	CreateReport(ctx context.Context, identity string, report models.ProjectReport) (*models.StoredReport, error)
	GetReport(ctx context.Context, id string) (*models.StoredReport, error)
	ListReports(ctx context.Context, filter ReportListFilter) ([]*models.ReportHeader, error)
	DeleteReport(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
