package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultChunkSize is the Range window used per NextChunk call (100 MiB).
const DefaultChunkSize int64 = 100 * 1024 * 1024

// Progress reports how far a chunked download has got. Total is -1 until
// the server has reported the full size.
type Progress struct {
	Received int64
	Total    int64
}

// ChunkedDownload streams a file in Range-sized chunks into a writer. It is
// polled with NextChunk until done. There is no resume: a failed chunk
// leaves the writer with a partial payload and the error is returned as-is.
type ChunkedDownload struct {
	client    *Client
	path      string
	w         io.Writer
	chunkSize int64
	received  int64
	total     int64
	done      bool
}

// NewMediaDownload prepares a verbatim byte download of a file.
func (c *Client) NewMediaDownload(fileID string, w io.Writer, chunkSize int64) *ChunkedDownload {
	return c.newChunkedDownload("/files/"+url.PathEscape(fileID)+"?alt=media", w, chunkSize)
}

// NewExportDownload prepares a download of a Google-native file converted
// to mimeType.
func (c *Client) NewExportDownload(fileID, mimeType string, w io.Writer, chunkSize int64) *ChunkedDownload {
	q := url.Values{}
	q.Set("mimeType", mimeType)

	return c.newChunkedDownload("/files/"+url.PathEscape(fileID)+"/export?"+q.Encode(), w, chunkSize)
}

func (c *Client) newChunkedDownload(path string, w io.Writer, chunkSize int64) *ChunkedDownload {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &ChunkedDownload{
		client:    c,
		path:      path,
		w:         w,
		chunkSize: chunkSize,
		total:     -1,
	}
}

// NextChunk fetches the next Range window. done is true once the whole
// payload has been written. Calling NextChunk after done is a no-op.
func (d *ChunkedDownload) NextChunk(ctx context.Context) (Progress, bool, error) {
	if d.done {
		return d.progress(), true, nil
	}

	rangeHeader := http.Header{
		"Range": {fmt.Sprintf("bytes=%d-%d", d.received, d.received+d.chunkSize-1)},
	}

	resp, err := d.client.Do(ctx, http.MethodGet, d.path, rangeHeader)
	if err != nil {
		// Zero-length media answers any range with 416, and so does a
		// request just past the end when the length was never reported.
		if errors.Is(err, ErrRangeNotAllowed) && d.total < 0 {
			d.total = d.received
			d.done = true

			return d.progress(), true, nil
		}

		return d.progress(), false, err
	}
	defer resp.Body.Close()

	n, copyErr := io.Copy(d.w, resp.Body)
	d.received += n

	if copyErr != nil {
		d.client.logger.Error("streaming download chunk failed",
			slog.String("error", copyErr.Error()),
			slog.Int64("bytes_before_error", d.received),
		)

		return d.progress(), false, fmt.Errorf("gdrive: streaming download content: %w", copyErr)
	}

	// Exports and servers without Range support answer 200 with the
	// whole body.
	if resp.StatusCode != http.StatusPartialContent {
		d.total = d.received
		d.done = true

		return d.progress(), true, nil
	}

	if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
		d.total = total
	}

	// Without a reported length, a window that came back short is the last.
	if n == 0 || (d.total >= 0 && d.received >= d.total) || (d.total < 0 && n < d.chunkSize) {
		d.total = d.received
		d.done = true
	}

	d.client.logger.Debug("download chunk complete",
		slog.Int64("received", d.received),
		slog.Int64("total", d.total),
	)

	return d.progress(), d.done, nil
}

// Run polls NextChunk until the download completes and returns the number
// of bytes written.
func (d *ChunkedDownload) Run(ctx context.Context) (int64, error) {
	for {
		p, done, err := d.NextChunk(ctx)
		if err != nil {
			return p.Received, err
		}

		if done {
			return p.Received, nil
		}
	}
}

func (d *ChunkedDownload) progress() Progress {
	return Progress{Received: d.received, Total: d.total}
}

// parseContentRangeTotal extracts the complete length from a header like
// "bytes 0-99/1234". An unknown length ("*") reports ok=false.
func parseContentRangeTotal(h string) (int64, bool) {
	_, total, found := strings.Cut(h, "/")
	if !found || total == "*" {
		return 0, false
	}

	n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}
