// Package migrate moves Drive files into the preservation repository: it
// exports each listed file to a local artifact, ingests the artifact when
// the repository does not already hold it, and drives the listing to the
// end.
package migrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/gdrive2preservica/internal/formats"
	"github.com/tonimelisma/gdrive2preservica/internal/gdrive"
)

// Downloads is the part of *gdrive.Client the exporter uses.
type Downloads interface {
	NewMediaDownload(fileID string, w io.Writer, chunkSize int64) *gdrive.ChunkedDownload
	NewExportDownload(fileID, mimeType string, w io.Writer, chunkSize int64) *gdrive.ChunkedDownload
}

// Artifact is a file materialized on local disk, ready for ingest. The
// ingester owns it once Export returns.
type Artifact struct {
	Path string
	File gdrive.File
	Size int64

	dir string
}

// Remove deletes the artifact and its per-file directory.
func (a *Artifact) Remove() error {
	if err := os.RemoveAll(a.dir); err != nil {
		return fmt.Errorf("migrate: removing artifact %s: %w", a.Path, err)
	}

	return nil
}

// Exporter downloads Drive files, converting Google-native formats.
type Exporter struct {
	drive     Downloads
	tempDir   string
	chunkSize int64
	logger    *slog.Logger
}

// NewExporter creates an Exporter writing under tempDir. An empty tempDir
// means os.TempDir().
func NewExporter(drive Downloads, tempDir string, chunkSize int64, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}

	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &Exporter{drive: drive, tempDir: tempDir, chunkSize: chunkSize, logger: logger}
}

// Export materializes f at "<temp>/<id>/<name>[.<ext>]". Folders produce no
// artifact and a nil error.
func (e *Exporter) Export(ctx context.Context, f gdrive.File) (*Artifact, error) {
	if formats.IsContainer(f.MimeType) {
		e.logger.Info("skipping folder", slog.String("name", f.Name), slog.String("file_id", f.ID))
		return nil, nil
	}

	export, converted := formats.Resolve(f.MimeType)

	ext := ""
	if converted {
		ext = export.Extension
	}

	name := artifactName(f.Name, ext)

	dir := filepath.Join(e.tempDir, safeSegment(f.ID))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("migrate: creating export directory for %s: %w", f.ID, err)
	}

	a := &Artifact{Path: filepath.Join(dir, name), File: f, dir: dir}

	n, err := e.download(ctx, f, export, converted, a.Path)
	if err != nil {
		if rmErr := a.Remove(); rmErr != nil {
			e.logger.Warn("cleanup after failed export", slog.String("error", rmErr.Error()))
		}

		return nil, err
	}

	a.Size = n

	e.logger.Info("exported file",
		slog.String("file_id", f.ID),
		slog.String("path", a.Path),
		slog.Int64("bytes", n),
		slog.Bool("converted", converted),
	)

	return a, nil
}

func (e *Exporter) download(
	ctx context.Context, f gdrive.File, export formats.Export, converted bool, path string,
) (int64, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("migrate: creating %s: %w", path, err)
	}

	var dl *gdrive.ChunkedDownload
	if converted {
		dl = e.drive.NewExportDownload(f.ID, export.MimeType, out, e.chunkSize)
	} else {
		dl = e.drive.NewMediaDownload(f.ID, out, e.chunkSize)
	}

	n, err := dl.Run(ctx)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("migrate: downloading %s (%s): %w", f.Name, f.ID, err)
	}

	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("migrate: closing %s: %w", path, err)
	}

	return n, nil
}

// maxNameBytes is NAME_MAX on the filesystems the tool runs on.
const maxNameBytes = 255

// artifactName turns a display name into a single path segment, NFC
// normalized so the name on disk matches what Drive shows. Names too long
// for the filesystem are cut on a character boundary, leaving room for
// ".<ext>".
func artifactName(name, ext string) string {
	suffix := ""
	if ext != "" {
		suffix = "." + ext
	}

	base := safeSegment(norm.NFC.String(name))

	if limit := maxNameBytes - len(suffix); len(base) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(base[cut]) {
			cut--
		}

		base = base[:cut]
	}

	return base + suffix
}

func safeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}

		return r
	}, s)

	switch strings.TrimSpace(s) {
	case "", ".", "..":
		return "_" + s
	}

	return s
}
