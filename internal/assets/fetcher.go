// Package assets downloads cover images next to the record file. Downloads
// are retried, skipped when the file is already present and counted.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nelcapetown/audible-scraper/internal/metrics"
	"github.com/nelcapetown/audible-scraper/internal/models"
)

// ErrStorage marks a local write failure. It is never retried.
var ErrStorage = errors.New("asset storage error")

// StatusError is a non-2xx response from the image host.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

type Outcome int

const (
	OutcomeNoURL Outcome = iota
	OutcomeDownloaded
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoURL:
		return "no_url"
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Success reports whether the asset is present locally or not needed.
func (o Outcome) Success() bool {
	return o != OutcomeFailed
}

// Stats counts outcomes over a batch.
type Stats struct {
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	NoURL      int `json:"noUrl"`
}

func (s Stats) Succeeded() int {
	return s.Downloaded + s.Skipped
}

func (s *Stats) add(o Outcome) {
	switch o {
	case OutcomeDownloaded:
		s.Downloaded++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	case OutcomeNoURL:
		s.NoURL++
	}
}

type Options struct {
	Folder      string
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
	UserAgent   string
	Concurrency int
	// Transport replaces the HTTP transport, for tests.
	Transport http.RoundTripper
}

func DefaultOptions() Options {
	return Options{
		Folder:      "images",
		MaxRetries:  5,
		RetryDelay:  10 * time.Second,
		Timeout:     10 * time.Second,
		Concurrency: 1,
	}
}

type Fetcher struct {
	client  *resty.Client
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewFetcher(opts Options, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	logger = logger.With("component", "assets")

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetLogger(restyLogger{logger}).
		SetHeader("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Transport != nil {
		client.SetTransport(opts.Transport)
	}

	return &Fetcher{
		client:  client,
		opts:    opts,
		metrics: m,
		logger:  logger,
	}
}

// FileName is the local name for a cover URL: the URL path's basename, or a
// name derived from the URL's hash when the path has none.
func FileName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		base := u.Path[strings.LastIndex(u.Path, "/")+1:]
		if base != "" && base != "." && base != ".." {
			return base
		}
	}
	sum := sha256.Sum256([]byte(rawURL))
	return "cover-" + hex.EncodeToString(sum[:])[:16]
}

// Path is where the cover for rawURL is stored.
func (f *Fetcher) Path(rawURL string) string {
	return filepath.Join(f.opts.Folder, FileName(rawURL))
}

// Fetch downloads rawURL into the configured folder.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Outcome {
	return f.fetch(ctx, rawURL, f.opts.Folder, f.opts.MaxRetries, f.opts.RetryDelay)
}

// FetchAsset downloads rawURL into folder with up to maxRetries attempts and
// reports whether the asset is now present. An empty URL is a success.
func (f *Fetcher) FetchAsset(ctx context.Context, rawURL, folder string, maxRetries int, retryDelay time.Duration) bool {
	return f.fetch(ctx, rawURL, folder, maxRetries, retryDelay).Success()
}

// FetchAll fetches the cover of every record. Records without a cover URL
// are counted but not attempted. Individual failures never stop the batch.
func (f *Fetcher) FetchAll(ctx context.Context, records []models.Record) Stats {
	var (
		mu    sync.Mutex
		stats Stats
		g     errgroup.Group
	)
	g.SetLimit(f.opts.Concurrency)

	// URLs sharing a destination file are fetched in order by one worker, so
	// only the first of them can download.
	var names []string
	byName := make(map[string][]string)
	for _, rec := range records {
		if !rec.HasCover() {
			stats.add(OutcomeNoURL)
			continue
		}
		name := FileName(rec.CoverImageURL)
		if _, ok := byName[name]; !ok {
			names = append(names, name)
		}
		byName[name] = append(byName[name], rec.CoverImageURL)
	}

	for _, name := range names {
		urls := byName[name]
		g.Go(func() error {
			for _, u := range urls {
				o := f.Fetch(ctx, u)
				mu.Lock()
				stats.add(o)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	f.logger.Info("cover images processed",
		"downloaded", stats.Downloaded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"no_url", stats.NoURL)
	return stats
}

func (f *Fetcher) fetch(ctx context.Context, rawURL, folder string, maxRetries int, retryDelay time.Duration) Outcome {
	if rawURL == "" {
		return OutcomeNoURL
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}

	dest := filepath.Join(folder, FileName(rawURL))
	if _, err := os.Stat(dest); err == nil {
		f.logger.Debug("cover already present", "path", dest)
		f.metrics.IncAsset(OutcomeSkipped.String())
		return OutcomeSkipped
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			f.metrics.IncRetries()
		}

		err := f.download(ctx, rawURL, dest)
		if err == nil {
			f.logger.Debug("cover downloaded", "url", rawURL, "path", dest, "attempt", attempt)
			f.metrics.IncAsset(OutcomeDownloaded.String())
			return OutcomeDownloaded
		}

		if errors.Is(err, ErrStorage) {
			f.logger.Error("cover could not be written", "url", rawURL, "path", dest, "error", err)
			f.metrics.IncError("storage")
			break
		}

		f.logger.Warn("cover download failed", "url", rawURL, "attempt", attempt, "of", maxRetries, "error", err)
		if attempt == maxRetries {
			break
		}
		if err := sleep(ctx, retryDelay); err != nil {
			break
		}
	}

	f.metrics.IncAsset(OutcomeFailed.String())
	f.metrics.IncError("recoverable_asset")
	return OutcomeFailed
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if resp != nil && resp.RawBody() != nil {
		defer resp.RawBody().Close()
	}
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if !resp.IsSuccess() {
		return &StatusError{URL: rawURL, StatusCode: resp.StatusCode()}
	}

	return writeAtomic(dest, resp.RawBody())
}

// writeAtomic streams body into a temporary file next to dest and renames it
// into place, so a partial download never looks complete.
func writeAtomic(dest string, body io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrStorage, err)
	}
	tmpName := tmp.Name()

	w := &trackingWriter{w: tmp}
	_, copyErr := io.Copy(w, body)
	closeErr := tmp.Close()

	switch {
	case w.err != nil:
		os.Remove(tmpName)
		return fmt.Errorf("%w: write: %w", ErrStorage, w.err)
	case copyErr != nil:
		os.Remove(tmpName)
		return fmt.Errorf("read body: %w", copyErr)
	case closeErr != nil:
		os.Remove(tmpName)
		return fmt.Errorf("%w: close: %w", ErrStorage, closeErr)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %w", ErrStorage, err)
	}
	return nil
}

// trackingWriter remembers write errors so they can be told apart from
// errors reading the response.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "source", "resty")
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "source", "resty")
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "source", "resty")
}
