// Package selectors holds the locator table the page extractor reads fields
// through. Adapting to a markup change means swapping the Map, not touching
// extraction code.
package selectors

import (
	"fmt"
	"strings"
)

// Map is one CSS locator per extracted field.
type Map struct {
	Row                  string `json:"row"`
	Title                string `json:"title"`
	Author               string `json:"author"`
	Narrator             string `json:"narrator"`
	Series               string `json:"series"`
	Description          string `json:"description"`
	DescriptionParagraph string `json:"description_paragraph"`
	Image                string `json:"image"`
	NextPageLink         string `json:"next_page_link"`
}

// Default returns the locators for the library titles listing.
func Default() Map {
	return Map{
		Row:                  "div.adbl-library-content-row",
		Title:                "span.bc-size-headline3",
		Author:               "span.authorLabel a",
		Narrator:             "span.narratorLabel a",
		Series:               "li.seriesLabel span a",
		Description:          "span.merchandisingSummary",
		DescriptionParagraph: "p",
		Image:                "img.bc-image-inset-border",
		NextPageLink:         "span.nextButton a",
	}
}

// Validate reports the first empty locator.
func (m Map) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"row", m.Row},
		{"title", m.Title},
		{"author", m.Author},
		{"narrator", m.Narrator},
		{"series", m.Series},
		{"description", m.Description},
		{"description_paragraph", m.DescriptionParagraph},
		{"image", m.Image},
		{"next_page_link", m.NextPageLink},
	}

	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("selector %q must not be empty", f.name)
		}
	}
	return nil
}
