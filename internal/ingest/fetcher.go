package ingest

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/epgsync/epgsync/internal/models"
	"github.com/epgsync/epgsync/pkg/httpclient"
)

// Fetcher retrieves raw XMLTV content for a source from its URL or its
// file path. A ".gz" suffix on either means the payload is gzip-compressed
// and is decompressed before returning.
type Fetcher struct {
	client *httpclient.Client
	epgDir string
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. Relative file paths are resolved against
// epgDir.
func NewFetcher(client *httpclient.Client, epgDir string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, epgDir: epgDir, logger: logger}
}

// Fetch returns a reader over the source's raw XML content. The caller must
// close it. Fetch failures are reported as ErrContentUnavailable so the
// caller can record them without aborting sibling sources.
func (f *Fetcher) Fetch(ctx context.Context, source *models.EpgSource) (io.ReadCloser, error) {
	switch {
	case source.FilePath != "":
		return f.fetchFile(source.FilePath)
	case source.URL != "":
		return f.fetchURL(ctx, source.URL)
	default:
		return nil, fmt.Errorf("%w: source has neither url nor file_path", ErrContentUnavailable)
	}
}

func (f *Fetcher) fetchFile(path string) (io.ReadCloser, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.epgDir, path)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file not found: %s", ErrContentUnavailable, path)
		}
		return nil, fmt.Errorf("%w: opening file: %v", ErrContentUnavailable, err)
	}

	body, err := nonEmpty(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: empty file: %s", ErrContentUnavailable, path)
	}

	if strings.HasSuffix(path, ".gz") {
		return gunzip(body)
	}
	return body, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.client.Get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrContentUnavailable, rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned status %d", ErrContentUnavailable, rawURL, resp.StatusCode)
	}

	body, err := nonEmpty(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned an empty body", ErrContentUnavailable, rawURL)
	}

	if gzipURLPath(rawURL) {
		return gunzip(body)
	}
	return body, nil
}

// gzipURLPath reports whether the URL path component ends in ".gz".
// Query strings are excluded so "guide.xml?fmt=gz" is not misread.
func gzipURLPath(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(rawURL, ".gz")
	}
	return strings.HasSuffix(u.Path, ".gz")
}

// nonEmpty wraps r, failing if it yields no bytes at all.
func nonEmpty(r io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	if _, err := br.Peek(1); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	return &bufferedReadCloser{reader: br, closer: r}, nil
}

// gunzip wraps r with gzip decompression, closing both on Close.
func gunzip(r io.ReadCloser) (io.ReadCloser, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: invalid gzip payload: %v", ErrContentUnavailable, err)
	}
	return &gzipReadCloser{reader: gz, closer: r}, nil
}

type bufferedReadCloser struct {
	reader *bufio.Reader
	closer io.Closer
}

func (b *bufferedReadCloser) Read(p []byte) (int, error) { return b.reader.Read(p) }
func (b *bufferedReadCloser) Close() error               { return b.closer.Close() }

type gzipReadCloser struct {
	reader *gzip.Reader
	closer io.Closer
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.reader.Read(p) }

func (g *gzipReadCloser) Close() error {
	g.reader.Close()
	return g.closer.Close()
}
