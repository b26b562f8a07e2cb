package export

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/nelcapetown/audible-scraper/internal/assets"
	"github.com/nelcapetown/audible-scraper/internal/models"
)

const (
	workbookSheet = "Audible Library"
	// coverRowHeight is in points, enough for a ThumbnailSize pixel cover.
	coverRowHeight = 60
)

var workbookHeader = []interface{}{"Title", "Author", "Narrator", "Series", "Description", "Cover URL", "Filename", "Cover Image"}

// Workbook renders the library as a spreadsheet with the cover embedded in
// each row.
type Workbook struct {
	ImagesFolder string
	// ThumbnailsFolder, when set, is searched first. Covers without a
	// thumbnail are scaled from ImagesFolder on the fly.
	ThumbnailsFolder string
	Logger           *slog.Logger
}

// Write renders records, in the order given, to w as an xlsx document.
func (b Workbook) Write(w io.Writer, records []models.Record) error {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", workbookSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(workbookSheet, "A1", &workbookHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		row := i + 2
		filename := ""
		if r.HasCover() {
			filename = assets.FileName(r.CoverImageURL)
		}

		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := []interface{}{r.Title, r.Author, r.Narrator, r.Series, r.Description, r.CoverImageURL, filename}
		if err := f.SetSheetRow(workbookSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}

		if filename == "" {
			continue
		}
		cover, err := b.cover(filename)
		if err != nil {
			logger.Warn("could not embed cover", "title", r.Title, "file", filename, "error", err)
			continue
		}
		if cover == nil {
			continue
		}
		if err := f.SetRowHeight(workbookSheet, row, coverRowHeight); err != nil {
			return err
		}
		if err := f.AddPictureFromBytes(workbookSheet, fmt.Sprintf("H%d", row), &excelize.Picture{
			Extension: ".jpg",
			File:      cover,
			Format: &excelize.GraphicOptions{
				AltText:         r.Title,
				LockAspectRatio: true,
				OffsetX:         4,
				OffsetY:         4,
			},
		}); err != nil {
			logger.Warn("could not embed cover", "title", r.Title, "file", filename, "error", err)
		}
	}

	if err := b.layout(f, len(records)+1); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteFile renders records into path, replacing any previous workbook.
func (b Workbook) WriteFile(path string, records []models.Record) error {
	return writeFile(path, func(w io.Writer) error {
		return b.Write(w, records)
	})
}

// cover returns the JPEG thumbnail for filename, or nil when the cover was
// never downloaded.
func (b Workbook) cover(filename string) ([]byte, error) {
	if b.ThumbnailsFolder != "" {
		data, err := os.ReadFile(filepath.Join(b.ThumbnailsFolder, thumbnailName(filename)))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	data, err := os.ReadFile(filepath.Join(b.ImagesFolder, filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Thumbnail(data, ThumbnailSize)
}

func (b Workbook) layout(f *excelize.File, lastRow int) error {
	top, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Vertical: "top"}})
	if err != nil {
		return err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Vertical: "top", WrapText: true}})
	if err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Vertical: "top"},
	})
	if err != nil {
		return err
	}

	last := fmt.Sprintf("H%d", lastRow)
	if err := f.SetCellStyle(workbookSheet, "A1", last, top); err != nil {
		return err
	}
	if lastRow > 1 {
		if err := f.SetCellStyle(workbookSheet, "E2", fmt.Sprintf("E%d", lastRow), wrap); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(workbookSheet, "A1", "H1", header); err != nil {
		return err
	}

	widths := []struct {
		col   string
		width float64
	}{
		{"A", 40}, {"B", 24}, {"C", 24}, {"D", 24},
		{"E", 80}, {"F", 40}, {"G", 24}, {"H", 12},
	}
	for _, w := range widths {
		if err := f.SetColWidth(workbookSheet, w.col, w.col, w.width); err != nil {
			return err
		}
	}
	return f.SetPanes(workbookSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
