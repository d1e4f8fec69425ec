package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/gdrive2preservica/internal/gdrive"
	"github.com/tonimelisma/gdrive2preservica/internal/ledger"
	"github.com/tonimelisma/gdrive2preservica/internal/preservica"
)

// ArtifactExporter materializes one listed file; nil means nothing to ingest.
type ArtifactExporter interface {
	Export(ctx context.Context, f gdrive.File) (*Artifact, error)
}

// ArtifactIngester ingests one artifact under folder.
type ArtifactIngester interface {
	Ingest(ctx context.Context, a *Artifact, folder *preservica.Folder) (Outcome, error)
}

// FolderResolver looks up the destination folder.
type FolderResolver interface {
	Folder(ctx context.Context, ref string) (*preservica.Folder, error)
}

// Journal receives one entry per listed file. Optional.
type Journal interface {
	Record(ctx context.Context, o ledger.Outcome) error
}

// Summary counts what a run did.
type Summary struct {
	Pages            int
	Seen             int
	Ingested         int
	SkippedExisting  int
	SkippedContainer int
	Bytes            int64
}

// Totals converts s for the run ledger.
func (s *Summary) Totals() ledger.Totals {
	return ledger.Totals{
		Pages:            s.Pages,
		Seen:             s.Seen,
		Ingested:         s.Ingested,
		SkippedExisting:  s.SkippedExisting,
		SkippedContainer: s.SkippedContainer,
		Bytes:            s.Bytes,
	}
}

type state int

const (
	statePaging state = iota
	stateDone
)

func (s state) String() string {
	if s == stateDone {
		return "done"
	}

	return "paging"
}

// DriverConfig wires a Driver.
type DriverConfig struct {
	Lister    gdrive.PageLister
	Folders   FolderResolver
	Exporter  ArtifactExporter
	Ingester  ArtifactIngester
	Journal   Journal  // may be nil
	Metrics   *Metrics // may be nil
	FolderRef string
	PageSize  int
	Logger    *slog.Logger
}

// Driver walks the whole listing once, sequentially.
type Driver struct {
	cfg    DriverConfig
	logger *slog.Logger
}

// NewDriver creates a Driver.
func NewDriver(cfg DriverConfig) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = gdrive.DefaultPageSize
	}

	return &Driver{cfg: cfg, logger: logger}
}

// Run resolves the destination folder, then exports and ingests every
// listed file page by page. It is done after the first page without a
// continuation token and never asks for another. Any error aborts the run
// and is returned with the summary so far.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	if d.cfg.FolderRef == "" {
		return summary, errors.New("migrate: no destination folder configured")
	}

	folder, err := d.cfg.Folders.Folder(ctx, d.cfg.FolderRef)
	if err != nil {
		return summary, fmt.Errorf("migrate: resolving destination folder: %w", err)
	}

	d.logger.Info("destination folder",
		slog.String("ref", folder.Ref),
		slog.String("title", folder.Title),
	)

	st := statePaging

	for page, err := range gdrive.Pages(ctx, d.cfg.Lister, d.cfg.PageSize) {
		if err != nil {
			return summary, fmt.Errorf("migrate: listing page %d: %w", summary.Pages+1, err)
		}

		summary.Pages++
		d.cfg.Metrics.observePage()

		for i := range page.Files {
			if err := d.process(ctx, page.Files[i], folder, summary); err != nil {
				return summary, err
			}
		}

		if page.NextPageToken == "" {
			st = stateDone
		}

		d.logger.Debug("page processed",
			slog.Int("page", summary.Pages),
			slog.Int("files", len(page.Files)),
			slog.String("state", st.String()),
		)
	}

	d.logger.Info("migration complete",
		slog.Int("pages", summary.Pages),
		slog.Int("seen", summary.Seen),
		slog.Int("ingested", summary.Ingested),
		slog.Int("skipped_existing", summary.SkippedExisting),
		slog.Int("skipped_folders", summary.SkippedContainer),
		slog.Int64("bytes", summary.Bytes),
	)

	return summary, nil
}

func (d *Driver) process(ctx context.Context, f gdrive.File, folder *preservica.Folder, s *Summary) error {
	s.Seen++

	entry := ledger.Outcome{FileID: f.ID, Name: f.Name, MimeType: f.MimeType}

	a, err := d.cfg.Exporter.Export(ctx, f)
	if err != nil {
		entry.Result = ledger.ResultFailed
		d.record(ctx, entry)

		return err
	}

	if a == nil {
		s.SkippedContainer++
		entry.Result = ledger.ResultSkippedContainer
		d.record(ctx, entry)

		return nil
	}

	s.Bytes += a.Size
	entry.Bytes = a.Size

	out, err := d.cfg.Ingester.Ingest(ctx, a, folder)
	if err != nil {
		entry.Result = ledger.ResultFailed
		d.record(ctx, entry)

		return err
	}

	switch out.Result {
	case ledger.ResultIngested:
		s.Ingested++
	case ledger.ResultSkippedExisting:
		s.SkippedExisting++
	}

	entry.Result = out.Result
	entry.PackageKey = out.PackageKey
	d.record(ctx, entry)

	return nil
}

// record journals e and counts it. Journal failures are logged; they do
// not abort the run.
func (d *Driver) record(ctx context.Context, e ledger.Outcome) {
	d.cfg.Metrics.observeFile(e.Result, e.Bytes)

	if d.cfg.Journal == nil {
		return
	}

	if err := d.cfg.Journal.Record(ctx, e); err != nil {
		d.logger.Warn("journal write failed",
			slog.String("file_id", e.FileID),
			slog.String("error", err.Error()),
		)
	}
}
