package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelcapetown/audible-scraper/internal/models"
	"github.com/nelcapetown/audible-scraper/internal/selectors"
)

func extract(t *testing.T, html string) PageResult {
	t.Helper()
	result, err := NewExtractor(selectors.Default(), nil).ExtractHTML(html)
	require.NoError(t, err)
	return result
}

func TestExtractFullRow(t *testing.T) {
	want := models.Record{
		Title:         "Project Hail Mary",
		Author:        "Andy Weir",
		Narrator:      "Ray Porter",
		Series:        "Standalone",
		Description:   "A lone astronaut must save the earth.",
		CoverImageURL: "https://m.media-amazon.com/images/I/cover._SL500_.jpg",
	}

	result := extract(t, listingHTML([]models.Record{want}, ""))

	assert.Equal(t, 1, result.Rows)
	require.Len(t, result.Records, 1)
	assert.Equal(t, want, result.Records[0])
	assert.Empty(t, result.Skipped)
}

func TestExtractMissingFieldsUseDefaults(t *testing.T) {
	result := extract(t, `<html><body>
		<div class="adbl-library-content-row">
			<span class="bc-size-headline3">Dune</span>
		</div>
	</body></html>`)

	require.Len(t, result.Records, 1)
	got := result.Records[0]
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, models.DefaultAuthor, got.Author)
	assert.Equal(t, models.DefaultNarrator, got.Narrator)
	assert.Equal(t, models.NoDescription, got.Description)
	assert.Empty(t, got.Series)
	assert.Empty(t, got.CoverImageURL)
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name  string
		block string
		want  string
	}{
		{
			name:  "first non-empty paragraph wins",
			block: `<span class="merchandisingSummary"><p>  </p><p>Second</p><p>Third</p></span>`,
			want:  "Second",
		},
		{
			name:  "block text when no paragraph has text",
			block: `<span class="merchandisingSummary"><p></p>Loose   summary text</span>`,
			want:  "Loose summary text",
		},
		{
			name:  "sentinel for an empty block",
			block: `<span class="merchandisingSummary"> </span>`,
			want:  models.NoDescription,
		},
		{
			name:  "sentinel without a block",
			block: "",
			want:  models.NoDescription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extract(t, `<div class="adbl-library-content-row"><span class="bc-size-headline3">T</span>`+tt.block+`</div>`)
			require.Len(t, result.Records, 1)
			assert.Equal(t, tt.want, result.Records[0].Description)
			assert.NotEmpty(t, result.Records[0].Description)
		})
	}
}

func TestExtractCollapsesWhitespace(t *testing.T) {
	result := extract(t, `<div class="adbl-library-content-row">
		<span class="bc-size-headline3">
			The   Way of
			Kings
		</span>
	</div>`)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "The Way of Kings", result.Records[0].Title)
}

func TestExtractSkipsEmptyRowsAndKeepsTheRest(t *testing.T) {
	records := makeRecords("p1", 2)
	html := `<html><body>` +
		rowHTML(records[0]) +
		`<div class="adbl-library-content-row">   </div>` +
		rowHTML(records[1]) +
		`</body></html>`

	result := extract(t, html)

	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, records, result.Records)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 1, result.Skipped[0].Index)
	assert.Equal(t, SkipEmptyRow, result.Skipped[0].Skip)
}

func TestExtractPreservesDocumentOrder(t *testing.T) {
	records := makeRecords("p1", 10)
	result := extract(t, listingHTML(records, ""))
	assert.Equal(t, records, result.Records)
}

func TestExtractNoRows(t *testing.T) {
	result := extract(t, `<html><body><p>Your library is empty</p></body></html>`)
	assert.Zero(t, result.Rows)
	assert.Empty(t, result.Records)
}

func TestExtractCustomSelectors(t *testing.T) {
	sel := selectors.Default()
	sel.Row = "li.book"
	sel.Title = "h3"

	result, err := NewExtractor(sel, nil).ExtractHTML(`<ul><li class="book"><h3>Neuromancer</h3></li></ul>`)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Neuromancer", result.Records[0].Title)
}
