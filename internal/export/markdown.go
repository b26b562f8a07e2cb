package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nelcapetown/audible-scraper/internal/assets"
	"github.com/nelcapetown/audible-scraper/internal/models"
)

const catalogTitle = "# Audible Library Catalog"

// Catalog renders the library as a markdown table with embedded covers.
type Catalog struct {
	// ImagesFolder holds the downloaded covers.
	ImagesFolder string
	// ThumbnailsFolder, when set, is preferred over ImagesFolder for covers
	// that have a thumbnail.
	ThumbnailsFolder string
}

// Sorted returns a copy of records ordered by title then author, ignoring case.
func Sorted(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := strings.ToLower(out[i].Title), strings.ToLower(out[j].Title)
		if ti != tj {
			return ti < tj
		}
		return strings.ToLower(out[i].Author) < strings.ToLower(out[j].Author)
	})
	return out
}

// Write renders records to w. Cover links are relative to baseDir.
func (c Catalog) Write(w io.Writer, records []models.Record, baseDir string) error {
	lines := []string{
		catalogTitle,
		"",
		"| Title | Author | Narrator | Description | Cover |",
		"|-------|--------|----------|-------------|-------|",
	}

	for _, r := range Sorted(records) {
		lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s | %s |",
			escapeCell(r.Title),
			escapeCell(r.Author),
			escapeCell(r.Narrator),
			escapeCell(r.Description),
			c.cover(r, baseDir),
		))
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// WriteFile renders records into path, replacing any previous catalog.
func (c Catalog) WriteFile(path string, records []models.Record) error {
	return writeFile(path, func(w io.Writer) error {
		return c.Write(w, records, filepath.Dir(path))
	})
}

func (c Catalog) cover(r models.Record, baseDir string) string {
	if !r.HasCover() {
		return "(no image)"
	}
	name := assets.FileName(r.CoverImageURL)

	var candidates []string
	if c.ThumbnailsFolder != "" {
		candidates = append(candidates, filepath.Join(c.ThumbnailsFolder, thumbnailName(name)))
	}
	candidates = append(candidates, filepath.Join(c.ImagesFolder, name))

	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		rel, err := filepath.Rel(baseDir, p)
		if err != nil {
			rel = p
		}
		return fmt.Sprintf("![cover](%s){width=75}", filepath.ToSlash(rel))
	}
	return "(no image)"
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// writeFile writes through a temporary sibling and renames it into place.
func writeFile(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := render(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
