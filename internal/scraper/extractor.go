package scraper

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nelcapetown/audible-scraper/internal/models"
	"github.com/nelcapetown/audible-scraper/internal/selectors"
)

// SkipReason explains why a matched row produced no record.
type SkipReason string

const (
	SkipEmptyRow SkipReason = "empty_row"
	SkipPanic    SkipReason = "panic"
)

// RowResult is either a record or a skip reason, never both.
type RowResult struct {
	Index  int
	Record models.Record
	Skip   SkipReason
	Detail string
}

func (r RowResult) Skipped() bool {
	return r.Skip != ""
}

// PageResult holds one page's records in document order plus the rows that
// were skipped.
type PageResult struct {
	Rows    int
	Records []models.Record
	Skipped []RowResult
}

type Extractor struct {
	selectors selectors.Map
	logger    *slog.Logger
}

func NewExtractor(sel selectors.Map, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		selectors: sel,
		logger:    logger.With("component", "extractor"),
	}
}

// ExtractHTML parses a listing page. A document that cannot be parsed yields
// an empty result and an ErrRecoverableExtraction error.
func (e *Extractor) ExtractHTML(html string) (PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageResult{}, fmt.Errorf("%w: parse page: %w", ErrRecoverableExtraction, err)
	}
	return e.Extract(doc.Selection), nil
}

// Extract folds every row under root into a PageResult.
func (e *Extractor) Extract(root *goquery.Selection) PageResult {
	rows := root.Find(e.selectors.Row)
	result := PageResult{Rows: rows.Length()}

	rows.Each(func(i int, row *goquery.Selection) {
		r := e.extractRow(i, row)
		if r.Skipped() {
			e.logger.Warn("row skipped", "row", i, "reason", r.Skip, "detail", r.Detail)
			result.Skipped = append(result.Skipped, r)
			return
		}
		result.Records = append(result.Records, r.Record)
	})

	return result
}

func (e *Extractor) extractRow(i int, row *goquery.Selection) (result RowResult) {
	result.Index = i
	defer func() {
		if p := recover(); p != nil {
			result = RowResult{Index: i, Skip: SkipPanic, Detail: fmt.Sprint(p)}
		}
	}()

	if clean(row.Text()) == "" && row.Find("img").Length() == 0 {
		result.Skip = SkipEmptyRow
		return result
	}

	rec := models.Record{
		Title:         firstText(row, e.selectors.Title),
		Author:        firstText(row, e.selectors.Author),
		Narrator:      firstText(row, e.selectors.Narrator),
		Series:        firstText(row, e.selectors.Series),
		Description:   e.description(row),
		CoverImageURL: firstAttr(row, e.selectors.Image, "src"),
	}
	result.Record = rec.Normalize()
	return result
}

// description prefers the first non-empty paragraph inside the description
// block, then the block's own text.
func (e *Extractor) description(row *goquery.Selection) string {
	block := row.Find(e.selectors.Description).First()
	if block.Length() == 0 {
		return models.NoDescription
	}

	var text string
	block.Find(e.selectors.DescriptionParagraph).EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text = clean(p.Text())
		return text == ""
	})
	if text != "" {
		return text
	}

	if text = clean(block.Text()); text != "" {
		return text
	}
	return models.NoDescription
}

func firstText(row *goquery.Selection, selector string) string {
	return clean(row.Find(selector).First().Text())
}

func firstAttr(row *goquery.Selection, selector, attr string) string {
	v, _ := row.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
