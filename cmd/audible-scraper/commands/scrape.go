package commands

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nelcapetown/audible-scraper/internal/api"
	"github.com/nelcapetown/audible-scraper/internal/assets"
	"github.com/nelcapetown/audible-scraper/internal/browser"
	"github.com/nelcapetown/audible-scraper/internal/config"
	"github.com/nelcapetown/audible-scraper/internal/database"
	"github.com/nelcapetown/audible-scraper/internal/events"
	"github.com/nelcapetown/audible-scraper/internal/metrics"
	"github.com/nelcapetown/audible-scraper/internal/pipeline"
	"github.com/nelcapetown/audible-scraper/internal/ratelimit"
	"github.com/nelcapetown/audible-scraper/internal/scraper"
	"github.com/nelcapetown/audible-scraper/internal/session"
	"github.com/nelcapetown/audible-scraper/internal/storage"
)

var scrapeExport bool

func init() {
	scrapeCmd.Flags().Bool("headless", false, "Run the browser without a window. Manual login is then impossible.")
	scrapeCmd.Flags().Int("max-pages", 0, "Stop after this many listing pages (0 means all).")
	scrapeCmd.Flags().BoolVar(&scrapeExport, "export", false, "Write the CSV table and markdown catalog after scraping.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--headless] [--max-pages N] [--export]",
	Short: "Logs in, walks the library listing and downloads cover images.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Close()

		ctx := cmd.Context()
		m := metrics.New()
		progress := pipeline.NewProgress()

		deps := pipeline.Deps{
			Sessions:  newSessionManager(cfg, log.Logger),
			Paginator: newPaginator(cfg, m, log.Logger),
			Store:     storage.NewRecordStore(cfg.OutputJSONFile),
			Fetcher:   newFetcher(cfg, m, log.Logger),
			Progress:  progress,
			Metrics:   m,
		}

		if cfg.Database.Enabled {
			db, err := database.New(ctx, database.Config{
				URL:      cfg.Database.DatabaseURL(),
				MaxConns: 4,
			})
			if err != nil {
				log.Warn("database disabled for this run", "error", err)
			} else {
				defer db.Close()
				repo := database.NewRecordRepository(db)
				if err := repo.EnsureSchema(ctx); err != nil {
					log.Warn("database disabled for this run", "error", err)
				} else {
					deps.Sink = repo
				}
			}
		}

		if cfg.Redis.Enabled {
			publisher := events.NewPublisher(
				events.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB),
				cfg.Redis.Stream,
				log.Logger,
			)
			defer publisher.Close()
			deps.Publisher = publisher
		}

		if cfg.Status.Enabled {
			srvCtx, stop := context.WithCancel(ctx)
			done := make(chan struct{})
			srv := api.NewServer(cfg.Status.Addr, api.NewRouter(progress, m.Registry, log.Logger), log.Logger)
			go func() {
				defer close(done)
				if err := srv.Run(srvCtx); err != nil {
					log.Error("status server failed", "error", err)
				}
			}()
			defer func() {
				stop()
				<-done
			}()
		}

		runner := pipeline.New(pipeline.Config{
			ListingURL:  cfg.LibraryURL,
			TokenPath:   cfg.AuthFile,
			AuthTimeout: cfg.PageTimeout(),
			Folders:     cfg.Folders(),
		}, deps, log.Logger)

		summary, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)

		if scrapeExport && len(summary.Records) > 0 {
			return runExports(ctx, cfg, summary.Records, log.Logger)
		}
		return nil
	},
}

func newSessionManager(cfg *config.Config, logger *slog.Logger) *session.Manager {
	bopts := browser.DefaultOptions()
	bopts.Headless = cfg.Headless
	bopts.Timeout = cfg.PageTimeout()
	if cfg.UserAgent != "" {
		bopts.UserAgent = cfg.UserAgent
	}

	var operator session.Operator = session.NewTerminalOperator(os.Stdin, os.Stderr)
	if cfg.Headless {
		operator = session.AutoOperator{Answer: false}
	}

	return session.NewManager(
		session.BrowserLauncher(*bopts, logger),
		operator,
		session.Options{RowSelector: cfg.Selectors.Row},
		logger,
	)
}

func newPaginator(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *scraper.Paginator {
	opts := scraper.DefaultOptions()
	opts.MaxPages = cfg.MaxPages
	opts.NavigationTimeout = cfg.PageTimeout()

	lo, hi := cfg.PageDelay()
	if hi > 0 {
		opts.Limiter = ratelimit.NewAdaptiveRateLimiter(lo, hi)
	}

	return scraper.NewPaginator(cfg.Selectors, opts, m, logger)
}

func newFetcher(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *assets.Fetcher {
	opts := assets.DefaultOptions()
	opts.Folder = cfg.ImagesFolder
	opts.MaxRetries = cfg.MaxImageDownloadRetries
	opts.RetryDelay = cfg.RetryDelay()
	opts.Concurrency = cfg.ImageConcurrency
	opts.Timeout = 30 * time.Second
	if cfg.UserAgent != "" {
		opts.UserAgent = cfg.UserAgent
	}
	return assets.NewFetcher(opts, m, logger)
}
