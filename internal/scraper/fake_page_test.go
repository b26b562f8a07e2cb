package scraper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nelcapetown/audible-scraper/internal/browser"
	"github.com/nelcapetown/audible-scraper/internal/models"
)

const listingURL = "https://www.audible.com/library/titles"

type fakePage struct {
	url      string
	pages    map[string]string
	timeouts map[string]bool
	gotoErr  map[string]error
	visited  []string
}

func newFakePage(start string, pages map[string]string) *fakePage {
	return &fakePage{
		url:      start,
		pages:    pages,
		timeouts: map[string]bool{},
		gotoErr:  map[string]error{},
		visited:  []string{start},
	}
}

func (f *fakePage) Goto(url string, _ time.Duration) error {
	if err := f.gotoErr[url]; err != nil {
		return err
	}
	if _, ok := f.pages[url]; !ok {
		return fmt.Errorf("unexpected navigation to %s", url)
	}
	f.url = url
	f.visited = append(f.visited, url)
	return nil
}

func (f *fakePage) WaitForSelector(_ string, _ time.Duration) error {
	if f.timeouts[f.url] {
		return fmt.Errorf("wait: %w", browser.ErrTimeout)
	}
	return nil
}

func (f *fakePage) URL() string { return f.url }

func (f *fakePage) Content() (string, error) {
	html, ok := f.pages[f.url]
	if !ok {
		return "", errors.New("no content")
	}
	return html, nil
}

func (f *fakePage) Close() error { return nil }

func rowHTML(r models.Record) string {
	var b strings.Builder
	b.WriteString(`<div class="adbl-library-content-row">`)
	if r.CoverImageURL != "" {
		fmt.Fprintf(&b, `<img class="bc-image-inset-border" src="%s">`, r.CoverImageURL)
	}
	if r.Title != "" {
		fmt.Fprintf(&b, `<span class="bc-size-headline3">%s</span>`, r.Title)
	}
	if r.Author != "" {
		fmt.Fprintf(&b, `<span class="authorLabel">By: <a href="/author">%s</a></span>`, r.Author)
	}
	if r.Narrator != "" {
		fmt.Fprintf(&b, `<span class="narratorLabel">Narrated by: <a href="/narrator">%s</a></span>`, r.Narrator)
	}
	if r.Series != "" {
		fmt.Fprintf(&b, `<ul><li class="seriesLabel"><span>Series: <a href="/series">%s</a></span></li></ul>`, r.Series)
	}
	if r.Description != "" {
		fmt.Fprintf(&b, `<span class="merchandisingSummary"><p></p><p>%s</p></span>`, r.Description)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func listingHTML(records []models.Record, nextHref string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="library">`)
	for _, r := range records {
		b.WriteString(rowHTML(r))
	}
	b.WriteString(`</div>`)
	if nextHref != "" {
		fmt.Fprintf(&b, `<span class="nextButton"><a href="%s">Next</a></span>`, nextHref)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func makeRecords(prefix string, n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		out[i] = models.Record{
			Title:         fmt.Sprintf("%s Title %d", prefix, i+1),
			Author:        fmt.Sprintf("%s Author %d", prefix, i+1),
			Narrator:      fmt.Sprintf("%s Narrator %d", prefix, i+1),
			Description:   fmt.Sprintf("%s description %d", prefix, i+1),
			CoverImageURL: fmt.Sprintf("https://m.media-amazon.com/images/%s-%d.jpg", prefix, i+1),
		}
	}
	return out
}

func pageURL(n int) string {
	return fmt.Sprintf("%s?page=%d", listingURL, n)
}
