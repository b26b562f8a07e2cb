package export

import (
	"encoding/csv"
	"io"

	"github.com/nelcapetown/audible-scraper/internal/assets"
	"github.com/nelcapetown/audible-scraper/internal/models"
)

var tableHeader = []string{"Title", "Author", "Narrator", "Series", "Description", "Cover URL", "Filename"}

// WriteCSV writes one row per record, in the order given.
func WriteCSV(w io.Writer, records []models.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return err
	}

	for _, r := range records {
		filename := ""
		if r.HasCover() {
			filename = assets.FileName(r.CoverImageURL)
		}
		row := []string{r.Title, r.Author, r.Narrator, r.Series, r.Description, r.CoverImageURL, filename}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func WriteCSVFile(path string, records []models.Record) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteCSV(w, records)
	})
}
