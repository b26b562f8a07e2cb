package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nelcapetown/audible-scraper/internal/browser"
	"github.com/nelcapetown/audible-scraper/internal/metrics"
	"github.com/nelcapetown/audible-scraper/internal/models"
	"github.com/nelcapetown/audible-scraper/internal/ratelimit"
	"github.com/nelcapetown/audible-scraper/internal/selectors"
)

type Options struct {
	// LoadTimeout bounds the wait for the first row of a page.
	LoadTimeout time.Duration
	// NavigationTimeout bounds each next-page navigation.
	NavigationTimeout time.Duration
	// MaxPages stops traversal after this many pages. Zero means no cap.
	MaxPages int
	// Limiter spaces out page navigations. Nil means no delay.
	Limiter ratelimit.RateLimiter
}

func DefaultOptions() Options {
	return Options{
		LoadTimeout:       30 * time.Second,
		NavigationTimeout: 60 * time.Second,
	}
}

// Result is the outcome of one traversal. Records holds everything
// accumulated, also when FinalState is StateAborted.
type Result struct {
	Records    []models.Record
	Pages      int
	Skipped    int
	FinalState State
	StopReason StopReason
}

type Paginator struct {
	selectors selectors.Map
	extractor *Extractor
	opts      Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewPaginator(sel selectors.Map, opts Options, m *metrics.Metrics, logger *slog.Logger) *Paginator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = def.LoadTimeout
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = def.NavigationTimeout
	}
	return &Paginator{
		selectors: sel,
		extractor: NewExtractor(sel, logger),
		opts:      opts,
		metrics:   m,
		logger:    logger.With("component", "paginator"),
	}
}

// run is the mutable state of one traversal.
type run struct {
	state    State
	result   Result
	previous []models.Record
	html     string
	started  time.Time
}

// Run drives page from the listing page it is on until the catalog ends or
// traversal fails. The returned Result is never nil.
func (p *Paginator) Run(ctx context.Context, page browser.Page) (*Result, error) {
	r := &run{state: StateLoading}
	var err error

	for !r.state.Terminal() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.stop(StateAborted, StopCanceled)
			err = fmt.Errorf("pagination canceled: %w", ctxErr)
			break
		}

		switch r.state {
		case StateLoading:
			err = p.load(page, r)
		case StateExtracting:
			err = p.extract(page, r)
		case StateAdvancing:
			err = p.advance(ctx, page, r)
		}
		if err != nil {
			if r.result.StopReason == "" {
				r.stop(StateAborted, StopNavigationError)
			}
			p.metrics.IncError("fatal_navigation")
			break
		}
	}

	r.result.FinalState = r.state
	p.logger.Info("pagination finished",
		"state", r.state.String(),
		"reason", r.result.StopReason,
		"pages", r.result.Pages,
		"records", len(r.result.Records),
		"skipped_rows", r.result.Skipped)

	return &r.result, err
}

func (r *run) stop(state State, reason StopReason) {
	r.state = state
	r.result.StopReason = reason
}

func (p *Paginator) load(page browser.Page, r *run) error {
	r.started = time.Now()
	r.result.Pages++
	r.html = ""
	current := page.URL()

	err := page.WaitForSelector(p.selectors.Row, p.opts.LoadTimeout)
	switch {
	case err == nil:
		r.state = StateExtracting
		return nil
	case errors.Is(err, browser.ErrTimeout):
		p.logger.Warn("listing rows did not appear, treating page as empty",
			"page", PageNumber(current), "url", current, "timeout", p.opts.LoadTimeout)
		p.metrics.IncPage("timeout")
		p.feedback(false)
		r.previous = nil
		r.state = StateAdvancing
		return nil
	default:
		return fmt.Errorf("%w: load page %d: %w", ErrFatalNavigation, PageNumber(current), err)
	}
}

func (p *Paginator) extract(page browser.Page, r *run) error {
	number := PageNumber(page.URL())

	html, err := page.Content()
	if err != nil {
		return fmt.Errorf("%w: read page %d: %w", ErrFatalNavigation, number, err)
	}
	r.html = html

	pr, err := p.extractor.ExtractHTML(html)
	if err != nil {
		p.logger.Warn("page could not be parsed, treating page as empty", "page", number, "error", err)
		p.metrics.IncError("recoverable_extraction")
	}
	for _, s := range pr.Skipped {
		p.metrics.IncSkipped(string(s.Skip))
	}
	r.result.Skipped += len(pr.Skipped)
	p.metrics.ObservePage(time.Since(r.started))

	switch {
	case len(pr.Records) > 0 && models.SameSet(pr.Records, r.previous):
		p.logger.Info("page repeats the previous page, stopping", "page", number, "records", len(pr.Records))
		p.metrics.IncPage("duplicate")
		r.stop(StateDone, StopDuplicatePage)
		return nil
	case len(pr.Records) == 0 && len(r.previous) > 0:
		p.logger.Info("page is empty after a non-empty page, stopping", "page", number)
		p.metrics.IncPage("empty")
		r.stop(StateDone, StopTrailingEmptyPage)
		return nil
	}

	r.result.Records = append(r.result.Records, pr.Records...)
	r.previous = pr.Records
	p.metrics.AddRecords(len(pr.Records))
	p.metrics.IncPage("scraped")
	p.feedback(true)
	p.logger.Info("page scraped", "page", number, "rows", pr.Rows, "records", len(pr.Records), "total", len(r.result.Records))

	r.state = StateAdvancing
	return nil
}

func (p *Paginator) advance(ctx context.Context, page browser.Page, r *run) error {
	current := page.URL()
	number := PageNumber(current)

	if p.opts.MaxPages > 0 && r.result.Pages >= p.opts.MaxPages {
		p.logger.Info("page cap reached, stopping", "max_pages", p.opts.MaxPages)
		r.stop(StateDone, StopMaxPages)
		return nil
	}

	if r.html == "" {
		html, err := page.Content()
		if err != nil {
			return fmt.Errorf("%w: read page %d: %w", ErrFatalNavigation, number, err)
		}
		r.html = html
	}

	href, found := p.nextHref(r.html)
	if !found {
		p.logger.Info("no next page control, stopping", "page", number)
		r.stop(StateDone, StopNoNextLink)
		return nil
	}
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		p.logger.Info("next page control has no target, stopping", "page", number)
		r.stop(StateDone, StopEmptyNextLink)
		return nil
	}

	next, err := ResolveNext(current, href)
	if err != nil {
		p.logger.Warn("next page link is malformed, stopping", "page", number, "href", href, "error", err)
		r.stop(StateDone, StopEmptyNextLink)
		return nil
	}

	if candidate := PageNumber(next); candidate <= number {
		p.logger.Info("next page does not advance, stopping", "page", number, "candidate", candidate, "url", next)
		r.stop(StateDone, StopNonIncreasingPage)
		return nil
	}

	if p.opts.Limiter != nil {
		if err := p.opts.Limiter.Wait(ctx); err != nil {
			r.stop(StateAborted, StopCanceled)
			return fmt.Errorf("pagination canceled: %w", err)
		}
	}

	p.logger.Debug("navigating to next page", "url", next)
	if err := page.Goto(next, p.opts.NavigationTimeout); err != nil {
		return fmt.Errorf("%w: navigate to page %d: %w", ErrFatalNavigation, PageNumber(next), err)
	}

	r.state = StateLoading
	return nil
}

func (p *Paginator) nextHref(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	link := doc.Find(p.selectors.NextPageLink).First()
	if link.Length() == 0 {
		return "", false
	}
	href, _ := link.Attr("href")
	return strings.TrimSpace(href), true
}

func (p *Paginator) feedback(ok bool) {
	fb, isFeedback := p.opts.Limiter.(ratelimit.Feedback)
	if !isFeedback {
		return
	}
	if ok {
		fb.RecordSuccess()
	} else {
		fb.RecordError()
	}
}
