package pipeline

import (
	"context"
	"errors"

	"github.com/nelcapetown/audible-scraper/internal/assets"
	"github.com/nelcapetown/audible-scraper/internal/scraper"
	"github.com/nelcapetown/audible-scraper/internal/session"
)

// ErrEnvironment means the run could not start: a folder could not be
// created or the browser could not be launched.
var ErrEnvironment = errors.New("environment error")

// Category labels err for logs and metrics.
func Category(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrEnvironment):
		return "fatal_environment"
	case errors.Is(err, session.ErrFatalAuth):
		return "fatal_auth"
	case errors.Is(err, session.ErrRecoverableAuth):
		return "recoverable_auth"
	case errors.Is(err, scraper.ErrFatalNavigation):
		return "fatal_navigation"
	case errors.Is(err, scraper.ErrRecoverableExtraction):
		return "recoverable_extraction"
	case errors.Is(err, assets.ErrStorage):
		return "storage"
	default:
		return "unknown"
	}
}
