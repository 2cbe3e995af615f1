package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	appErrors "skylight/internal/errors"
)

const (
	// DefaultDownloadTimeout bounds connect plus transfer of one artifact.
	DefaultDownloadTimeout = 2 * time.Minute

	downloadChunkSize = 32 * 1024
)

// LocalFile is an artifact written to disk by the Downloader.
type LocalFile struct {
	Path string
	Size uint64
	// ContentLength is the server-declared length, -1 when absent.
	ContentLength int64
	// Destination is where the file moves once verified. Empty means Path
	// is already final.
	Destination string
}

// ProgressFunc receives transfer snapshots in order.
type ProgressFunc func(ProgressSnapshot)

// artifactWriter stages artifact bytes until the transfer is complete.
type artifactWriter interface {
	io.Writer
	Commit() error
	Discard() error
}

// Downloader streams an artifact to disk, reporting progress as it goes.
type Downloader struct {
	client   *http.Client
	timeout  time.Duration
	logEvery time.Duration
	logger   Logger
	now      func() time.Time
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloadClient sets the HTTP client used for artifact requests.
func WithDownloadClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

// WithDownloadTimeout bounds the whole download.
func WithDownloadTimeout(timeout time.Duration) DownloaderOption {
	return func(d *Downloader) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDownloaderLogger sets the diagnostic logger.
func WithDownloaderLogger(l Logger) DownloaderOption {
	return func(d *Downloader) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDownloader creates a Downloader with default timeouts.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		client:   &http.Client{},
		timeout:  DefaultDownloadTimeout,
		logEvery: time.Second,
		logger:   defaultLogger("downloader"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches artifactURL into destinationPath, overwriting any previous
// file there. onProgress may be nil.
func (d *Downloader) Download(ctx context.Context, artifactURL, destinationPath string, onProgress ProgressFunc) (LocalFile, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	//nolint:gosec // G301: download directory is user-visible
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return LocalFile{}, appErrors.New(appErrors.CodeStorage, "create download directory", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return LocalFile{}, configurationError(fmt.Sprintf("invalid artifact URL %q: %v", artifactURL, err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := d.client.Do(req)
	if err != nil {
		return LocalFile{}, networkError(fmt.Sprintf("download %s", artifactURL), errors.Join(err, ctx.Err()))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return LocalFile{}, networkError(fmt.Sprintf("download %s: status %d", artifactURL, resp.StatusCode), nil)
	}

	out, err := openArtifact(destinationPath)
	if err != nil {
		return LocalFile{}, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("open %s", destinationPath), err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = out.Discard()
		}
	}()

	total := resp.ContentLength
	limiter := rate.NewLimiter(rate.Every(d.logEvery), 1)
	d.logger.Info("download started", "url", artifactURL, "dest", destinationPath, "size", sizeLabel(total))

	var transferred uint64
	buf := make([]byte, downloadChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return LocalFile{}, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("write %s", destinationPath), err)
			}
			transferred += uint64(n)
			if onProgress != nil {
				onProgress(d.snapshot(PhaseDownloading, transferred, total))
			}
			if limiter.Allow() {
				d.logger.Debug("download progress", "transferred", humanize.Bytes(transferred), "total", sizeLabel(total))
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		// The transport reports a body shorter than its Content-Length as an
		// unexpected EOF.
		if errors.Is(readErr, io.ErrUnexpectedEOF) && ctx.Err() == nil && total >= 0 && transferred < uint64(total) {
			return LocalFile{}, sizeMismatchError(uint64(total), transferred)
		}
		if readErr != nil {
			return LocalFile{}, networkError(fmt.Sprintf("download %s interrupted after %s", artifactURL, humanize.Bytes(transferred)), errors.Join(readErr, ctx.Err()))
		}
	}

	if total >= 0 && transferred != uint64(total) {
		return LocalFile{}, sizeMismatchError(uint64(total), transferred)
	}
	if err := out.Commit(); err != nil {
		return LocalFile{}, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("finalize %s", destinationPath), err)
	}
	committed = true

	if onProgress != nil {
		final := d.snapshot(PhaseDownloaded, transferred, total)
		final.Percent = 100
		final.TotalBytes = transferred
		onProgress(final)
	}
	d.logger.Info("download complete", "dest", destinationPath, "size", humanize.Bytes(transferred))
	return LocalFile{Path: destinationPath, Size: transferred, ContentLength: total}, nil
}

func (d *Downloader) snapshot(phase Phase, transferred uint64, total int64) ProgressSnapshot {
	s := ProgressSnapshot{Phase: phase, BytesTransferred: transferred, Timestamp: d.now()}
	if total > 0 {
		s.TotalBytes = uint64(total)
		s.Percent = float64(transferred) / float64(total) * 100
		if s.Percent > 100 {
			s.Percent = 100
		}
	}
	return s
}

func sizeLabel(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}
