// Package pipeline runs one scrape end to end: session, traversal, record
// file, optional sinks, cover images and session persistence. The browser is
// released on every exit path.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nelcapetown/audible-scraper/internal/assets"
	"github.com/nelcapetown/audible-scraper/internal/events"
	"github.com/nelcapetown/audible-scraper/internal/metrics"
	"github.com/nelcapetown/audible-scraper/internal/models"
	"github.com/nelcapetown/audible-scraper/internal/scraper"
	"github.com/nelcapetown/audible-scraper/internal/session"
	"github.com/nelcapetown/audible-scraper/internal/storage"
)

// sinkTimeout bounds each optional sink call.
const sinkTimeout = 30 * time.Second

// RecordSink receives the full record list after it has been saved.
type RecordSink interface {
	ReplaceAll(ctx context.Context, runID uuid.UUID, records []models.Record) error
}

// EventPublisher announces finished runs.
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, payload *events.RunCompleted) (string, error)
}

type Config struct {
	ListingURL  string
	TokenPath   string
	AuthTimeout time.Duration
	// Folders are created before anything touches the network.
	Folders []string
}

type Deps struct {
	Sessions  *session.Manager
	Paginator *scraper.Paginator
	Store     *storage.RecordStore
	Fetcher   *assets.Fetcher
	// Sink and Publisher are optional.
	Sink      RecordSink
	Publisher EventPublisher
	Progress  *Progress
	Metrics   *metrics.Metrics
}

// Summary describes a run that got past authentication.
type Summary struct {
	RunID      uuid.UUID
	Records    []models.Record
	Pages      int
	Skipped    int
	FinalState scraper.State
	StopReason scraper.StopReason
	// TraversalErr is set when traversal aborted. The run still counts as
	// successful.
	TraversalErr error
	RecordFile   string
	Assets       assets.Stats
	Started      time.Time
	Finished     time.Time
}

type Runner struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "pipeline"),
	}
}

// Run executes one scrape. It returns an error only when the run could not
// reach the listing or the record file could not be written; traversal and
// asset failures are reported in the Summary.
func (r *Runner) Run(ctx context.Context) (summary *Summary, err error) {
	summary = &Summary{RunID: uuid.New(), Started: time.Now()}
	logger := r.logger.With("run_id", summary.RunID.String())
	progress := r.deps.Progress

	progress.update(func(s *Snapshot) {
		*s = Snapshot{RunID: summary.RunID.String(), Stage: StagePreparing, Started: summary.Started}
	})
	defer func() {
		summary.Finished = time.Now()
		progress.update(func(s *Snapshot) {
			s.Finished = summary.Finished
			if err != nil {
				s.Stage = StageFailed
				s.Error = err.Error()
			} else {
				s.Stage = StageFinished
			}
		})
		if err != nil {
			r.deps.Metrics.IncError(Category(err))
		}
	}()

	for _, dir := range r.cfg.Folders {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return summary, fmt.Errorf("%w: create folder %s: %w", ErrEnvironment, dir, mkErr)
		}
	}

	sess, err := r.deps.Sessions.Acquire(ctx, r.cfg.TokenPath)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrEnvironment, err)
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			logger.Warn("failed to release browser", "error", closeErr)
		}
	}()

	progress.stage(StageAuthenticating)
	page, err := r.deps.Sessions.EnsureAuthenticated(ctx, sess, r.cfg.ListingURL, r.cfg.AuthTimeout)
	if err != nil {
		logger.Error("authentication failed, nothing scraped", "error", err)
		return summary, err
	}

	progress.stage(StageScraping)
	result, travErr := r.deps.Paginator.Run(ctx, page)
	summary.Records = result.Records
	summary.Pages = result.Pages
	summary.Skipped = result.Skipped
	summary.FinalState = result.FinalState
	summary.StopReason = result.StopReason
	summary.TraversalErr = travErr
	progress.update(func(s *Snapshot) {
		s.Records = len(result.Records)
		s.Pages = result.Pages
		s.FinalState = result.FinalState.String()
		s.StopReason = string(result.StopReason)
	})
	if travErr != nil {
		logger.Error("traversal aborted, keeping partial results",
			"error", travErr,
			"category", Category(travErr),
			"records", len(result.Records))
	}

	progress.stage(StageSaving)
	var saveErr error
	if len(summary.Records) == 0 {
		logger.Warn("no records collected, record file left untouched")
	} else if saveErr = r.deps.Store.Save(summary.Records); saveErr != nil {
		logger.Error("failed to save records", "path", r.deps.Store.Path(), "error", saveErr)
	} else {
		summary.RecordFile = r.deps.Store.Path()
		logger.Info("records saved", "path", summary.RecordFile, "records", len(summary.Records))
		r.mirror(ctx, logger, summary)
	}

	progress.stage(StageFetchingAssets)
	if ctx.Err() != nil {
		logger.Warn("run canceled, skipping cover images")
	} else {
		summary.Assets = r.deps.Fetcher.FetchAll(ctx, summary.Records)
		progress.update(func(s *Snapshot) { s.Assets = summary.Assets })
	}

	r.publish(ctx, logger, summary)
	r.deps.Sessions.Persist(sess, r.cfg.TokenPath)

	logger.Info("run finished",
		"records", len(summary.Records),
		"pages", summary.Pages,
		"state", summary.FinalState.String(),
		"reason", summary.StopReason,
		"images_downloaded", summary.Assets.Downloaded,
		"images_skipped", summary.Assets.Skipped,
		"images_failed", summary.Assets.Failed)

	if saveErr != nil {
		return summary, fmt.Errorf("save records: %w", saveErr)
	}
	return summary, nil
}

func (r *Runner) mirror(ctx context.Context, logger *slog.Logger, summary *Summary) {
	if r.deps.Sink == nil {
		return
	}
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if err := r.deps.Sink.ReplaceAll(sinkCtx, summary.RunID, summary.Records); err != nil {
		logger.Warn("failed to mirror records", "error", err)
		r.deps.Metrics.IncError("sink")
		return
	}
	logger.Info("records mirrored", "records", len(summary.Records))
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, summary *Summary) {
	if r.deps.Publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	_, err := r.deps.Publisher.PublishRunCompleted(pubCtx, &events.RunCompleted{
		RunID:            summary.RunID.String(),
		Records:          len(summary.Records),
		Pages:            summary.Pages,
		FinalState:       summary.FinalState.String(),
		StopReason:       string(summary.StopReason),
		ImagesDownloaded: summary.Assets.Downloaded,
		ImagesSkipped:    summary.Assets.Skipped,
		ImagesFailed:     summary.Assets.Failed,
		RecordFile:       summary.RecordFile,
	})
	if err != nil {
		logger.Warn("failed to publish run event", "error", err)
		r.deps.Metrics.IncError("publish")
	}
}
