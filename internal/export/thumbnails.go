package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"github.com/nelcapetown/audible-scraper/internal/assets"
	"github.com/nelcapetown/audible-scraper/internal/models"
)

// ThumbnailSize is the longest edge of a catalog thumbnail in pixels.
const ThumbnailSize = 75

// Thumbnail scales an encoded image to fit within size x size and returns it
// as JPEG. Images already inside the bound keep their dimensions.
func Thumbnail(data []byte, size int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := fit(bounds.Dx(), bounds.Dy(), size)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func fit(width, height, size int) (int, int) {
	if width <= size && height <= size {
		return width, height
	}
	if width >= height {
		h := height * size / width
		if h < 1 {
			h = 1
		}
		return size, h
	}
	w := width * size / height
	if w < 1 {
		w = 1
	}
	return w, size
}

// ThumbnailStats counts the outcome of a thumbnail pass.
type ThumbnailStats struct {
	Created int
	Missing int
	Failed  int
}

// Thumbnails writes a thumbnail into thumbsFolder for every record whose
// cover is present in imagesFolder. A cover that cannot be decoded is counted
// and skipped.
func Thumbnails(ctx context.Context, records []models.Record, imagesFolder, thumbsFolder string, logger *slog.Logger) (ThumbnailStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stats ThumbnailStats

	if err := os.MkdirAll(thumbsFolder, 0o755); err != nil {
		return stats, fmt.Errorf("create thumbnails folder: %w", err)
	}

	seen := make(map[string]bool)
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !r.HasCover() {
			continue
		}
		name := assets.FileName(r.CoverImageURL)
		if seen[name] {
			continue
		}
		seen[name] = true

		data, err := os.ReadFile(filepath.Join(imagesFolder, name))
		if errors.Is(err, os.ErrNotExist) {
			stats.Missing++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("read cover %s: %w", name, err)
		}

		thumb, err := Thumbnail(data, ThumbnailSize)
		if err != nil {
			logger.Warn("skipping cover", "file", name, "error", err)
			stats.Failed++
			continue
		}
		if err := os.WriteFile(filepath.Join(thumbsFolder, thumbnailName(name)), thumb, 0o644); err != nil {
			return stats, fmt.Errorf("write thumbnail %s: %w", name, err)
		}
		stats.Created++
	}

	return stats, nil
}

func thumbnailName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
}
