package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is the slice of a browser tab the scraper drives.
type Page interface {
	// Goto navigates and waits for DOMContentLoaded.
	Goto(url string, timeout time.Duration) error
	// WaitForSelector blocks until selector is visible or timeout elapses.
	WaitForSelector(selector string, timeout time.Duration) error
	URL() string
	Content() (string, error)
	Close() error
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, translate(err))
	}
	return nil
}

func (p *playwrightPage) WaitForSelector(selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("wait for %q: %w", selector, translate(err))
	}
	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Content() (string, error) {
	html, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("read page content: %w", translate(err))
	}
	return html, nil
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

func translate(err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
