package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultPageSize is the number of files requested per listing page.
const DefaultPageSize = 25

// File describes one Drive file or folder. Fields are normalized from the
// API response; optional timestamps are zero when absent and Version is 0
// when the API did not report one.
type File struct {
	ID             string
	Name           string
	MimeType       string
	CreatedTime    time.Time
	ModifiedTime   time.Time
	ViewedByMeTime time.Time
	Version        int64
}

// Page is one batch of the file listing. NextPageToken is empty on the
// last page.
type Page struct {
	Files         []File
	NextPageToken string
}

// fileResponse mirrors the Drive files resource. Drive encodes int64
// fields such as version as JSON strings.
type fileResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	CreatedTime    string `json:"createdTime"`
	ModifiedTime   string `json:"modifiedTime"`
	ViewedByMeTime string `json:"viewedByMeTime"`
	Version        string `json:"version"`
}

type fileListResponse struct {
	Files         []fileResponse `json:"files"`
	NextPageToken string         `json:"nextPageToken"`
}

func (r *fileResponse) toFile(logger *slog.Logger) File {
	f := File{
		ID:       r.ID,
		Name:     r.Name,
		MimeType: r.MimeType,
	}

	f.CreatedTime = parseTimestamp(r.CreatedTime, "createdTime", r.ID, logger)
	f.ModifiedTime = parseTimestamp(r.ModifiedTime, "modifiedTime", r.ID, logger)
	f.ViewedByMeTime = parseTimestamp(r.ViewedByMeTime, "viewedByMeTime", r.ID, logger)

	if r.Version != "" {
		v, err := strconv.ParseInt(r.Version, 10, 64)
		if err != nil {
			logger.Warn("invalid version, ignoring",
				slog.String("file_id", r.ID),
				slog.String("raw", r.Version),
			)
		} else {
			f.Version = v
		}
	}

	return f
}

// parseTimestamp parses an RFC 3339 timestamp. Absent or malformed values
// yield the zero time; the record is still usable without them.
func parseTimestamp(raw, field, fileID string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		logger.Warn("invalid timestamp, ignoring",
			slog.String("field", field),
			slog.String("file_id", fileID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	return t.UTC()
}

// ListPage fetches one page of the file listing. Pass an empty pageToken for
// the first page. The response carries all available fields.
func (c *Client) ListPage(ctx context.Context, pageToken string, pageSize int) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("fields", "*")

	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	c.logger.Info("fetching file listing page",
		slog.Bool("first_page", pageToken == ""),
		slog.Int("page_size", pageSize),
	)

	resp, err := c.Do(ctx, http.MethodGet, "/files?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lr fileListResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("gdrive: decoding file list: %w", err)
	}

	files := make([]File, 0, len(lr.Files))
	for i := range lr.Files {
		files = append(files, lr.Files[i].toFile(c.logger))
	}

	c.logger.Debug("fetched file listing page",
		slog.Int("count", len(files)),
		slog.Bool("has_next_page", lr.NextPageToken != ""),
	)

	return &Page{Files: files, NextPageToken: lr.NextPageToken}, nil
}

// PageLister fetches one page of a listing. *Client implements it.
type PageLister interface {
	ListPage(ctx context.Context, pageToken string, pageSize int) (*Page, error)
}

// Pages walks the listing from the first page, following continuation
// tokens until a page arrives without one. Each call starts a fresh
// traversal. A failed fetch is yielded once and ends the sequence.
func Pages(ctx context.Context, l PageLister, pageSize int) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		token := ""

		for {
			page, err := l.ListPage(ctx, token, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}

			if !yield(page, nil) {
				return
			}

			if page.NextPageToken == "" {
				return
			}

			token = page.NextPageToken
		}
	}
}
