package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tonimelisma/gdrive2preservica/internal/ledger"
	"github.com/tonimelisma/gdrive2preservica/internal/preservica"
	"github.com/tonimelisma/gdrive2preservica/internal/sip"
)

// DefaultIdentifierType tags ingested assets with their Drive file ID.
const DefaultIdentifierType = "google-drive-id"

// Repository is the part of the Preservica client used here.
type Repository interface {
	FindByIdentifier(ctx context.Context, idType, value string) ([]preservica.EntityRef, error)
	Folder(ctx context.Context, ref string) (*preservica.Folder, error)
}

// Uploader delivers a built package for ingest under folder.
type Uploader interface {
	UploadPackage(ctx context.Context, path string, folder *preservica.Folder) (string, error)
}

// Packager builds a submission package and returns its path.
type Packager interface {
	Build(p sip.Package) (string, error)
}

// Outcome is the result of ingesting one artifact.
type Outcome struct {
	Result     ledger.Result
	PackageKey string
}

// IngestOptions configure the identifier and metadata written per asset.
type IngestOptions struct {
	IdentifierType    string
	MetadataDir       string
	MetadataNamespace string
	SecurityTag       string
}

// Ingester uploads artifacts the repository does not hold yet.
//
// The existence check and the upload are separate requests, and the
// repository ingests asynchronously after upload. Two runs started close
// together can both see "absent" and both upload the same file. The run
// lock serializes runs on one host; nothing prevents it across hosts.
type Ingester struct {
	repo     Repository
	uploader Uploader
	packager Packager
	opts     IngestOptions
	logger   *slog.Logger
}

// NewIngester creates an Ingester.
func NewIngester(repo Repository, uploader Uploader, packager Packager, opts IngestOptions, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.IdentifierType == "" {
		opts.IdentifierType = DefaultIdentifierType
	}

	return &Ingester{repo: repo, uploader: uploader, packager: packager, opts: opts, logger: logger}
}

// Ingest skips a when an entity already carries its Drive ID, otherwise it
// packages and uploads it. The artifact and every intermediate file are
// removed before Ingest returns, whatever the outcome.
func (i *Ingester) Ingest(ctx context.Context, a *Artifact, folder *preservica.Folder) (Outcome, error) {
	defer i.remove("artifact", a.Remove)

	f := a.File

	existing, err := i.repo.FindByIdentifier(ctx, i.opts.IdentifierType, f.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("migrate: looking up %s: %w", f.ID, err)
	}

	if len(existing) > 0 {
		i.logger.Info("already ingested, skipping",
			slog.String("name", f.Name),
			slog.String("file_id", f.ID),
			slog.String("entity", existing[0].Ref),
		)

		return Outcome{Result: ledger.ResultSkippedExisting}, nil
	}

	desc := sip.Descriptive{
		ID:             f.ID,
		Name:           f.Name,
		MimeType:       f.MimeType,
		Version:        f.Version,
		CreatedTime:    f.CreatedTime,
		ModifiedTime:   f.ModifiedTime,
		ViewedByMeTime: f.ViewedByMeTime,
	}

	metaPath, err := sip.WriteMetadata(i.opts.MetadataDir, desc, i.opts.MetadataNamespace)
	if err != nil {
		return Outcome{}, err
	}
	defer i.remove("metadata", removeFile(metaPath))

	meta, err := os.ReadFile(metaPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("migrate: reading metadata %s: %w", metaPath, err)
	}

	ns := i.opts.MetadataNamespace
	if ns == "" {
		ns = sip.DefaultMetadataNamespace
	}

	pkgPath, err := i.packager.Build(sip.Package{
		PayloadPath:    a.Path,
		Title:          f.Name,
		SecurityTag:    i.opts.SecurityTag,
		ParentRef:      folder.Ref,
		Identifiers:    []sip.Identifier{{Type: i.opts.IdentifierType, Value: f.ID}},
		Metadata:       meta,
		MetadataSchema: ns,
	})
	if err != nil {
		return Outcome{}, err
	}
	defer i.remove("package", removeFile(pkgPath))

	key, err := i.uploader.UploadPackage(ctx, pkgPath, folder)
	if err != nil {
		return Outcome{}, err
	}

	i.logger.Info("ingested file",
		slog.String("name", f.Name),
		slog.String("file_id", f.ID),
		slog.String("package", key),
		slog.String("folder", folder.Ref),
	)

	return Outcome{Result: ledger.ResultIngested, PackageKey: key}, nil
}

func (i *Ingester) remove(what string, fn func() error) {
	if err := fn(); err != nil {
		i.logger.Warn("cleanup failed", slog.String("what", what), slog.String("error", err.Error()))
	}
}

func removeFile(path string) func() error {
	return func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("migrate: removing %s: %w", path, err)
		}

		return nil
	}
}
