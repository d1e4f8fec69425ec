package migrate

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive2preservica/internal/gdrive"
	"github.com/tonimelisma/gdrive2preservica/internal/preservica"
	"github.com/tonimelisma/gdrive2preservica/internal/sip"
)

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

// fakeDrive serves the listing, export and media endpoints. Page i (from
// zero) is requested with token "tok<i>" and the first page without one.
type fakeDrive struct {
	mu      sync.Mutex
	pages   [][]map[string]string
	content map[string][]byte

	listTokens []string
	exports    []string
	media      []string
}

func (f *fakeDrive) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("pageToken")

		f.mu.Lock()
		f.listTokens = append(f.listTokens, tok)
		f.mu.Unlock()

		idx := 0
		if tok != "" {
			n, err := strconv.Atoi(strings.TrimPrefix(tok, "tok"))
			if err != nil || n >= len(f.pages) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			idx = n
		}

		body := map[string]any{"files": []map[string]string{}}
		if idx < len(f.pages) {
			body["files"] = f.pages[idx]
		}

		if idx+1 < len(f.pages) {
			body["nextPageToken"] = fmt.Sprintf("tok%d", idx+1)
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	})

	mux.HandleFunc("GET /files/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		f.mu.Lock()
		f.exports = append(f.exports, id+":"+r.URL.Query().Get("mimeType"))
		data, ok := f.content[id]
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Write(data)
	})

	mux.HandleFunc("GET /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		f.mu.Lock()
		f.media = append(f.media, id)
		data, ok := f.content[id]
		f.mu.Unlock()

		if !ok || r.URL.Query().Get("alt") != "media" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
	})

	return mux
}

func newDriveClient(t *testing.T, drive *fakeDrive) *gdrive.Client {
	t.Helper()

	srv := httptest.NewServer(drive.handler(t))
	t.Cleanup(srv.Close)

	return gdrive.NewClient(srv.URL, nil, staticToken("access"), testLogger(t))
}

// fakeRepository holds entities by Drive ID. Uploads register entities
// when registerOnUpload is set, standing in for a completed ingest.
type fakeRepository struct {
	mu       sync.Mutex
	entities map[string]string
	lookups  []string
	err      error
}

func (r *fakeRepository) FindByIdentifier(_ context.Context, idType, value string) ([]preservica.EntityRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookups = append(r.lookups, idType+"="+value)

	if r.err != nil {
		return nil, r.err
	}

	if ref, ok := r.entities[value]; ok {
		return []preservica.EntityRef{{Ref: ref, Type: "IO"}}, nil
	}

	return nil, nil
}

func (r *fakeRepository) Folder(_ context.Context, ref string) (*preservica.Folder, error) {
	if ref != "so-1" {
		return nil, fmt.Errorf("preservica: fetching folder %s: %w", ref, preservica.ErrNotFound)
	}

	return &preservica.Folder{Ref: "so-1", Title: "Drive imports"}, nil
}

type upload struct {
	key     string
	folder  string
	entries map[string][]byte
}

type fakeUploader struct {
	t                *testing.T
	repo             *fakeRepository
	registerOnUpload bool
	uploads          []upload
	err              error
}

// UploadPackage reads the zip while it still exists, so tests can inspect
// what would have been ingested after the caller has deleted it.
func (u *fakeUploader) UploadPackage(_ context.Context, path string, folder *preservica.Folder) (string, error) {
	if u.err != nil {
		return "", u.err
	}

	zr, err := zip.OpenReader(path)
	require.NoError(u.t, err)
	defer zr.Close()

	entries := make(map[string][]byte)

	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(u.t, err)

		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		require.NoError(u.t, err)
		rc.Close()

		// Drop the package ref directory to keep assertions stable.
		_, rel, _ := strings.Cut(f.Name, "/")
		entries[rel] = buf.Bytes()
	}

	key := filepath.Base(path)
	u.uploads = append(u.uploads, upload{key: key, folder: folder.Ref, entries: entries})

	if u.registerOnUpload {
		u.repo.mu.Lock()
		for _, id := range identifiersIn(entries["metadata.xml"]) {
			u.repo.entities[id] = "io-" + id
		}
		u.repo.mu.Unlock()
	}

	return key, nil
}

// identifiersIn pulls the identifier values out of a manifest.
func identifiersIn(manifest []byte) []string {
	var ids []string

	s := string(manifest)
	for {
		_, rest, ok := strings.Cut(s, "<Identifier>")
		if !ok {
			return ids
		}

		_, rest, _ = strings.Cut(rest, "<Value>")
		val, rest, _ := strings.Cut(rest, "</Value>")
		ids = append(ids, val)
		s = rest
	}
}

func newPackager(t *testing.T) *sip.Builder {
	t.Helper()

	return sip.NewBuilder(filepath.Join(t.TempDir(), "packages"), testLogger(t))
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}

	require.NoError(t, err)
	require.Empty(t, entries, "expected %s to be empty", dir)
}
