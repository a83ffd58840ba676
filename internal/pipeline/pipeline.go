// Package pipeline runs uploads through extraction, selection, review,
// validation and aggregation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/crev/internal/aggregate"
	"github.com/joescharf/crev/internal/extract"
	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/selector"
	"github.com/joescharf/crev/internal/validate"
)

// DefaultWorkers bounds concurrent reviewer calls.
const DefaultWorkers = 4

// NoUploadMessage is the warning attached to a direct upload with no files.
const NoUploadMessage = "No files were uploaded"

// Reviewer returns the raw model response for one file.
type Reviewer interface {
	Review(ctx context.Context, target models.ReviewTarget) (string, error)
}

// Config configures a Pipeline.
type Config struct {
	Workers int
	Limits  extract.Limits
}

// Pipeline reviews a set of files and produces a project report. It holds no
// per-run state and is safe for concurrent use.
type Pipeline struct {
	reviewer Reviewer
	logger   *slog.Logger
	workers  int
	limits   extract.Limits
}

// New creates a Pipeline. A nil logger discards output.
func New(r Reviewer, logger *slog.Logger, cfg Config) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Pipeline{reviewer: r, logger: logger, workers: cfg.Workers, limits: cfg.Limits}
}

// job is one queued file. load defers reading until a worker picks it up.
type job struct {
	filename string
	relPath  string
	load     func() ([]byte, error)
}

// RunFiles reviews directly uploaded files in upload order.
func (p *Pipeline) RunFiles(ctx context.Context, blobs []models.Blob) (models.ProjectReport, error) {
	candidates := extract.Files(blobs)
	jobs := make([]job, len(candidates))
	for i, c := range candidates {
		jobs[i] = job{
			filename: c.DisplayName,
			relPath:  c.RelativePath,
			load:     func() ([]byte, error) { return c.RawBytes, nil },
		}
	}
	meta := aggregate.Meta{Input: models.BlobsKind(blobs)}
	if len(jobs) == 0 {
		meta.RunID = newRunID()
		return aggregate.Empty(meta, NoUploadMessage), nil
	}
	return p.run(ctx, meta, jobs)
}

// RunArchive extracts a zip upload into a temporary workspace, reviews the
// selected files and removes the workspace on every return path.
func (p *Pipeline) RunArchive(ctx context.Context, name string, data []byte) (models.ProjectReport, error) {
	ws, err := extract.Archive(name, data, p.limits)
	if err != nil {
		return models.ProjectReport{}, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			p.logger.Warn("failed to remove workspace", "path", ws.Root, "error", cerr)
		}
	}()

	return p.runTree(ctx, ws.Root, models.InputArchive)
}

// RunDirectory reviews the selected files under root. The tree is only read.
func (p *Pipeline) RunDirectory(ctx context.Context, root string) (models.ProjectReport, error) {
	return p.runTree(ctx, root, models.InputDirectory)
}

func (p *Pipeline) runTree(ctx context.Context, root string, kind models.InputKind) (models.ProjectReport, error) {
	entries, err := selector.Select(root, func(path string, err error) {
		p.logger.Warn("skipping unreadable path", "path", path, "error", err)
	})
	if err != nil {
		return models.ProjectReport{}, fmt.Errorf("select files: %w", err)
	}
	meta := aggregate.Meta{Input: kind}
	if len(entries) == 0 {
		meta.RunID = newRunID()
		return aggregate.Empty(meta, aggregate.NoFilesMessage), nil
	}
	return p.run(ctx, meta, entryJobs(entries))
}

// RunPaths reviews an explicit list of paths relative to root, filtered and
// ordered the same way as a directory walk.
func (p *Pipeline) RunPaths(ctx context.Context, root string, relPaths []string) (models.ProjectReport, error) {
	entries := selector.FromPaths(root, relPaths)
	meta := aggregate.Meta{Input: models.InputChanged}
	if len(entries) == 0 {
		meta.RunID = newRunID()
		return aggregate.Empty(meta, aggregate.NoFilesMessage), nil
	}
	return p.run(ctx, meta, entryJobs(entries))
}

func entryJobs(entries []selector.Entry) []job {
	jobs := make([]job, len(entries))
	for i, e := range entries {
		jobs[i] = job{
			filename: e.Name,
			relPath:  e.RelativePath,
			load:     func() ([]byte, error) { return os.ReadFile(e.Path) },
		}
	}
	return jobs
}

func (p *Pipeline) run(ctx context.Context, meta aggregate.Meta, jobs []job) (models.ProjectReport, error) {
	runID := newRunID()
	meta.RunID = runID
	total := len(jobs)
	p.logger.Info("review started", "run_id", runID, "input", meta.Input, "files", total, "workers", p.workers)

	results := make([]models.FileReview, total)
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = p.reviewOne(ctx, runID, i, total, j)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		p.logger.Warn("review cancelled", "run_id", runID, "error", err)
		return models.ProjectReport{}, err
	}

	report := aggregate.Aggregate(results, meta)
	p.logger.Info("review finished",
		"run_id", runID,
		"reviewed", report.Metadata.TotalFilesReviewed,
		"scanned", report.Metadata.TotalFilesScanned,
		"average", report.Summary.AverageScore,
	)
	return report, nil
}

func (p *Pipeline) reviewOne(ctx context.Context, runID string, idx, total int, j job) models.FileReview {
	log := p.logger.With("run_id", runID, "index", idx+1, "total", total, "path", j.relPath)

	data, err := j.load()
	if err != nil {
		log.Warn("read failed", "error", err)
		return models.FailedReview(j.filename, j.relPath, fmt.Errorf("read file: %w", err))
	}

	target := models.UploadCandidate{
		DisplayName:  j.filename,
		RelativePath: j.relPath,
		RawBytes:     data,
	}.Target()

	raw, err := p.reviewer.Review(ctx, target)
	if err != nil {
		log.Warn("review failed", "error", err)
		return models.FailedReview(j.filename, j.relPath, err)
	}

	res := validate.Parse(raw, target)
	switch res.Outcome {
	case validate.OutcomeFallback:
		log.Warn("unparseable response, using fallback review", "error", res.Err)
	default:
		log.Info("reviewed", "outcome", res.Outcome, "repairs", res.Repairs, "score", res.Review.FileScore.Overall)
	}
	return res.Review
}

func newRunID() string {
	return ulid.Make().String()
}
