package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nelcapetown/audible-scraper/internal/config"
	"github.com/nelcapetown/audible-scraper/internal/export"
	"github.com/nelcapetown/audible-scraper/internal/models"
	"github.com/nelcapetown/audible-scraper/internal/storage"
)

var exportThumbnails bool

func init() {
	exportCmd.Flags().BoolVar(&exportThumbnails, "thumbnails", true, "Generate 75px JPEG thumbnails and link them from the catalog.")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [--thumbnails=false]",
	Short: "Writes the CSV table, xlsx workbook and markdown catalog from a previously saved library file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		defer log.Close()

		records, err := storage.NewRecordStore(cfg.OutputJSONFile).Load()
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no library file at %s, run scrape first", cfg.OutputJSONFile)
		}
		if err != nil {
			return err
		}
		log.Info("library loaded", "records", len(records), "file", cfg.OutputJSONFile)

		return runExports(cmd.Context(), cfg, records, log.Logger)
	},
}

func runExports(ctx context.Context, cfg *config.Config, records []models.Record, logger *slog.Logger) error {
	if err := export.WriteCSVFile(cfg.OutputTabularFile, records); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	logger.Info("table written", "file", cfg.OutputTabularFile)

	catalog := export.Catalog{ImagesFolder: cfg.ImagesFolder}
	workbook := export.Workbook{ImagesFolder: cfg.ImagesFolder, Logger: logger}
	if exportThumbnails {
		thumbs := filepath.Join(cfg.ImagesFolder, "thumbnails")
		stats, err := export.Thumbnails(ctx, records, cfg.ImagesFolder, thumbs, logger)
		if err != nil {
			return fmt.Errorf("create thumbnails: %w", err)
		}
		logger.Info("thumbnails created", "created", stats.Created, "missing", stats.Missing, "failed", stats.Failed)
		catalog.ThumbnailsFolder = thumbs
		workbook.ThumbnailsFolder = thumbs
	}

	if err := workbook.WriteFile(cfg.OutputExcelFile, records); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	logger.Info("workbook written", "file", cfg.OutputExcelFile)

	if err := catalog.WriteFile(cfg.OutputMarkdownFile, records); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	logger.Info("catalog written", "file", cfg.OutputMarkdownFile)
	return nil
}
