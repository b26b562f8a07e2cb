package scraper

import (
	"net/url"
	"strconv"
	"strings"
)

// PageNumber returns the page query parameter of raw. Absent, unparsable or
// non-positive values and malformed URLs all count as page 1.
func PageNumber(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(u.Query().Get("page")))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ResolveNext resolves href against the current page URL.
func ResolveNext(current, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
