package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive2preservica/internal/formats"
	"github.com/tonimelisma/gdrive2preservica/internal/gdrive"
	"github.com/tonimelisma/gdrive2preservica/internal/ledger"
	"github.com/tonimelisma/gdrive2preservica/internal/preservica"
)

// memLister splits files into pages of the requested size. Tokens are the
// index of the next page's first file.
type memLister struct {
	files []gdrive.File
	calls []string
	errAt int // fail on this call number (1-based); 0 never
}

func (l *memLister) ListPage(_ context.Context, token string, pageSize int) (*gdrive.Page, error) {
	l.calls = append(l.calls, token)

	if l.errAt > 0 && len(l.calls) == l.errAt {
		return nil, &gdrive.APIError{StatusCode: 503, Err: gdrive.ErrServerError}
	}

	start := 0
	if token != "" {
		fmt.Sscanf(token, "tok%d", &start)
	}

	end := min(start+pageSize, len(l.files))
	page := &gdrive.Page{Files: l.files[start:end]}

	if end < len(l.files) {
		page.NextPageToken = fmt.Sprintf("tok%d", end)
	}

	return page, nil
}

type recordingExporter struct {
	exported []string
	failOn   string
}

func (e *recordingExporter) Export(_ context.Context, f gdrive.File) (*Artifact, error) {
	if f.ID == e.failOn {
		return nil, errors.New("migrate: downloading: boom")
	}

	if formats.IsContainer(f.MimeType) {
		return nil, nil
	}

	e.exported = append(e.exported, f.ID)

	return &Artifact{Path: "/nonexistent/" + f.Name, File: f, Size: 10}, nil
}

type recordingIngester struct {
	ingested map[string]int
	present  map[string]bool
}

func (i *recordingIngester) Ingest(_ context.Context, a *Artifact, _ *preservica.Folder) (Outcome, error) {
	if i.present[a.File.ID] {
		return Outcome{Result: ledger.ResultSkippedExisting}, nil
	}

	i.ingested[a.File.ID]++
	i.present[a.File.ID] = true

	return Outcome{Result: ledger.ResultIngested, PackageKey: a.File.ID + ".zip"}, nil
}

type memJournal struct {
	entries []ledger.Outcome
}

func (j *memJournal) Record(_ context.Context, o ledger.Outcome) error {
	j.entries = append(j.entries, o)
	return nil
}

func makeFiles(n int) []gdrive.File {
	files := make([]gdrive.File, n)
	for i := range files {
		files[i] = gdrive.File{ID: fmt.Sprintf("id-%02d", i), Name: fmt.Sprintf("file %d", i), MimeType: "text/plain"}
	}

	return files
}

func TestRun_VisitsEveryFileOnceForAnyPageSize(t *testing.T) {
	const total = 17

	for _, size := range []int{1, 2, 3, 7, 17, 25, 100} {
		t.Run(fmt.Sprintf("page_size_%d", size), func(t *testing.T) {
			lister := &memLister{files: makeFiles(total)}
			exp := &recordingExporter{}
			ing := &recordingIngester{ingested: map[string]int{}, present: map[string]bool{}}

			d := NewDriver(DriverConfig{
				Lister: lister, Folders: &fakeRepository{}, Exporter: exp, Ingester: ing,
				FolderRef: "so-1", PageSize: size, Logger: testLogger(t),
			})

			s, err := d.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, total, s.Seen)
			assert.Equal(t, total, s.Ingested)
			assert.Len(t, exp.exported, total)

			for _, f := range lister.files {
				assert.Equal(t, 1, ing.ingested[f.ID], "file %s", f.ID)
			}

			wantPages := (total + size - 1) / size
			assert.Equal(t, wantPages, s.Pages)
			assert.Len(t, lister.calls, wantPages, "no request after the last page")
			assert.Empty(t, lister.calls[0], "first request carries no token")
		})
	}
}

func TestRun_SecondRunSkipsEverything(t *testing.T) {
	lister := &memLister{files: makeFiles(5)}
	ing := &recordingIngester{ingested: map[string]int{}, present: map[string]bool{}}

	cfg := DriverConfig{
		Lister: lister, Folders: &fakeRepository{}, Exporter: &recordingExporter{}, Ingester: ing,
		FolderRef: "so-1", PageSize: 2,
	}

	_, err := NewDriver(cfg).Run(context.Background())
	require.NoError(t, err)

	s, err := NewDriver(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Ingested)
	assert.Equal(t, 5, s.SkippedExisting)

	for id, n := range ing.ingested {
		assert.Equal(t, 1, n, "file %s", id)
	}
}

func TestRun_EmptyListing(t *testing.T) {
	lister := &memLister{}

	s, err := NewDriver(DriverConfig{
		Lister: lister, Folders: &fakeRepository{}, Exporter: &recordingExporter{},
		Ingester: &recordingIngester{}, FolderRef: "so-1",
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Summary{Pages: 1}, s)
	assert.Len(t, lister.calls, 1)
}

func TestRun_ListingErrorAborts(t *testing.T) {
	lister := &memLister{files: makeFiles(6), errAt: 2}
	ing := &recordingIngester{ingested: map[string]int{}, present: map[string]bool{}}

	s, err := NewDriver(DriverConfig{
		Lister: lister, Folders: &fakeRepository{}, Exporter: &recordingExporter{}, Ingester: ing,
		FolderRef: "so-1", PageSize: 3,
	}).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, gdrive.ErrServerError)
	assert.Equal(t, 1, s.Pages)
	assert.Equal(t, 3, s.Ingested)
	assert.Len(t, lister.calls, 2)
}

func TestRun_ExportErrorAbortsAndJournals(t *testing.T) {
	lister := &memLister{files: makeFiles(4)}
	journal := &memJournal{}

	s, err := NewDriver(DriverConfig{
		Lister: lister, Folders: &fakeRepository{},
		Exporter: &recordingExporter{failOn: "id-01"},
		Ingester: &recordingIngester{ingested: map[string]int{}, present: map[string]bool{}},
		Journal:  journal, FolderRef: "so-1", PageSize: 25,
	}).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 2, s.Seen)
	assert.Equal(t, 1, s.Ingested)

	require.Len(t, journal.entries, 2)
	assert.Equal(t, ledger.ResultIngested, journal.entries[0].Result)
	assert.Equal(t, ledger.ResultFailed, journal.entries[1].Result)
	assert.Equal(t, "id-01", journal.entries[1].FileID)
}

func TestRun_FolderResolutionFailsBeforeListing(t *testing.T) {
	lister := &memLister{files: makeFiles(3)}

	_, err := NewDriver(DriverConfig{
		Lister: lister, Folders: &fakeRepository{}, Exporter: &recordingExporter{},
		Ingester: &recordingIngester{}, FolderRef: "missing",
	}).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, preservica.ErrNotFound)
	assert.Empty(t, lister.calls)
}

func TestRun_NoFolderConfigured(t *testing.T) {
	_, err := NewDriver(DriverConfig{Lister: &memLister{}}).Run(context.Background())
	assert.Error(t, err)
}

// Two pages: a spreadsheet "Budget" then a folder "Archive". The
// spreadsheet is exported to xlsx and ingested once, the folder is skipped
// and the run stops after the second page.
func TestRun_EndToEnd(t *testing.T) {
	drive := &fakeDrive{
		pages: [][]map[string]string{
			{{"id": "abc", "name": "Budget", "mimeType": formats.MimeSpreadsheet,
				"createdTime": "2024-01-02T03:04:05.000Z", "version": "7"}},
			{{"id": "def", "name": "Archive", "mimeType": formats.MimeFolder}},
		},
		content: map[string][]byte{"abc": []byte("xlsx-bytes")},
	}

	client := newDriveClient(t, drive)
	repo := &fakeRepository{entities: map[string]string{}}
	up := &fakeUploader{t: t, repo: repo, registerOnUpload: true}
	tmp := t.TempDir()
	journal := &memJournal{}

	metrics, err := NewMetrics()
	require.NoError(t, err)

	cfg := DriverConfig{
		Lister:  client,
		Folders: repo,
		Exporter: NewExporter(client, filepath.Join(tmp, "work"), 0, testLogger(t)),
		Ingester: NewIngester(repo, up, newPackager(t), IngestOptions{
			MetadataDir: filepath.Join(tmp, "meta"),
		}, testLogger(t)),
		Journal:   journal,
		Metrics:   metrics,
		FolderRef: "so-1",
		Logger:    testLogger(t),
	}

	s, err := NewDriver(cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Summary{Pages: 2, Seen: 2, Ingested: 1, SkippedContainer: 1, Bytes: 10}, s)
	assert.Equal(t, []string{"", "tok1"}, drive.listTokens)
	assert.Equal(t, []string{"abc:" + xlsxMime}, drive.exports)

	require.Len(t, up.uploads, 1)
	assert.Equal(t, []byte("xlsx-bytes"), up.uploads[0].entries["content/Budget.xlsx"])
	assert.Equal(t, "so-1", up.uploads[0].folder)
	assert.Contains(t, string(up.uploads[0].entries["metadata.xml"]), "<Title>Budget</Title>")
	assert.Equal(t, []string{"google-drive-id=abc"}, repo.lookups)

	require.Len(t, journal.entries, 2)
	assert.Equal(t, ledger.ResultIngested, journal.entries[0].Result)
	assert.Equal(t, ledger.ResultSkippedContainer, journal.entries[1].Result)

	assertDirEmpty(t, filepath.Join(tmp, "work"))
	assertDirEmpty(t, filepath.Join(tmp, "meta"))

	// A second run finds the asset and uploads nothing.
	s, err = NewDriver(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Ingested)
	assert.Equal(t, 1, s.SkippedExisting)
	assert.Len(t, up.uploads, 1)

	textfile := filepath.Join(tmp, "gdrive2preservica.prom")
	metrics.Finish(time.Now().Add(-time.Second), time.Now(), nil)
	require.NoError(t, metrics.WriteTextfile(textfile))

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)

	prom := string(data)
	assert.Contains(t, prom, `gdrive2preservica_files_total{result="ingested"} 1`)
	assert.Contains(t, prom, `gdrive2preservica_files_total{result="skipped_existing"} 1`)
	assert.Contains(t, prom, `gdrive2preservica_files_total{result="skipped_container"} 2`)
	assert.Contains(t, prom, "gdrive2preservica_pages_total 4")
	assert.Contains(t, prom, "gdrive2preservica_last_run_success 1")
}
