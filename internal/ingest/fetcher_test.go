package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epgsync/epgsync/internal/models"
	"github.com/epgsync/epgsync/pkg/httpclient"
)

func newTestFetcher(t *testing.T, epgDir string) *Fetcher {
	t.Helper()

	cfg := httpclient.DefaultConfig()
	cfg.RetryAttempts = 0
	cfg.Timeout = 5 * time.Second
	return NewFetcher(httpclient.New(cfg), epgDir, nil)
}

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()

	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestFetcher_File(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide.xml"), []byte("<tv/>"), 0o644))

	fetcher := newTestFetcher(t, dir)
	body, err := fetcher.Fetch(context.Background(), &models.EpgSource{FilePath: "guide.xml"})
	require.NoError(t, err)
	assert.Equal(t, "<tv/>", readAll(t, body))
}

func TestFetcher_FileAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abs.xml")
	require.NoError(t, os.WriteFile(path, []byte("<tv/>"), 0o644))

	fetcher := newTestFetcher(t, t.TempDir())
	body, err := fetcher.Fetch(context.Background(), &models.EpgSource{FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, "<tv/>", readAll(t, body))
}

func TestFetcher_GzipFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide.xml.gz"), gzipBytes(t, "<tv/>"), 0o644))

	fetcher := newTestFetcher(t, dir)
	body, err := fetcher.Fetch(context.Background(), &models.EpgSource{FilePath: "guide.xml.gz"})
	require.NoError(t, err)
	assert.Equal(t, "<tv/>", readAll(t, body))
}

func TestFetcher_FileNotFound(t *testing.T) {
	fetcher := newTestFetcher(t, t.TempDir())

	_, err := fetcher.Fetch(context.Background(), &models.EpgSource{FilePath: "missing.xml"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentUnavailable)
}

func TestFetcher_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.xml"), nil, 0o644))

	fetcher := newTestFetcher(t, dir)
	_, err := fetcher.Fetch(context.Background(), &models.EpgSource{FilePath: "empty.xml"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentUnavailable)
}

func TestFetcher_URL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<tv/>"))
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, t.TempDir())
	body, err := fetcher.Fetch(context.Background(), &models.EpgSource{URL: server.URL + "/guide.xml"})
	require.NoError(t, err)
	assert.Equal(t, "<tv/>", readAll(t, body))
}

func TestFetcher_GzipURL(t *testing.T) {
	payload := gzipBytes(t, "<tv/>")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, t.TempDir())
	body, err := fetcher.Fetch(context.Background(), &models.EpgSource{URL: server.URL + "/guide.xml.gz"})
	require.NoError(t, err)
	assert.Equal(t, "<tv/>", readAll(t, body))
}

func TestFetcher_URLErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, t.TempDir())
	_, err := fetcher.Fetch(context.Background(), &models.EpgSource{URL: server.URL + "/guide.xml"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentUnavailable)
}

func TestFetcher_URLEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, t.TempDir())
	_, err := fetcher.Fetch(context.Background(), &models.EpgSource{URL: server.URL + "/guide.xml"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentUnavailable)
}

func TestFetcher_URLUnreachable(t *testing.T) {
	fetcher := newTestFetcher(t, t.TempDir())

	_, err := fetcher.Fetch(context.Background(), &models.EpgSource{URL: "http://127.0.0.1:1/guide.xml"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentUnavailable)
}

func TestFetcher_NoLocation(t *testing.T) {
	fetcher := newTestFetcher(t, t.TempDir())

	_, err := fetcher.Fetch(context.Background(), &models.EpgSource{Name: "bare"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentUnavailable)
}

func TestGzipURLPath(t *testing.T) {
	assert.True(t, gzipURLPath("http://example.com/guide.xml.gz"))
	assert.True(t, gzipURLPath("http://example.com/guide.xml.gz?token=abc"))
	assert.False(t, gzipURLPath("http://example.com/guide.xml"))
	assert.False(t, gzipURLPath("http://example.com/guide.xml?fmt=gz"))
}
