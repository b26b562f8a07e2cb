// Package session owns the browser session: it reuses a stored
// authentication token when one exists, falls back to operator-assisted login
// and writes the token back after a successful login.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/nelcapetown/audible-scraper/internal/browser"
)

var (
	// ErrRecoverableAuth means the listing did not load in time and the
	// operator is being asked to help.
	ErrRecoverableAuth = errors.New("listing did not load, manual login required")
	// ErrFatalAuth means no authenticated session could be established.
	ErrFatalAuth = errors.New("could not establish an authenticated session")
)

// Driver is a running browser.
type Driver interface {
	NewPage() (browser.Page, error)
	SaveStorageState(path string) error
	Close() error
}

// LaunchFunc starts a browser. An empty storageStatePath starts without
// stored authentication.
type LaunchFunc func(storageStatePath string) (Driver, error)

// BrowserLauncher launches playwright browsers with opts.
func BrowserLauncher(opts browser.Options, logger *slog.Logger) LaunchFunc {
	return func(storageStatePath string) (Driver, error) {
		o := opts
		o.StorageStatePath = storageStatePath
		b, err := browser.New(&o, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Session is one browser with one tab. Close releases both.
type Session struct {
	driver    Driver
	page      browser.Page
	tokenPath string
	// FromToken reports whether the browser was seeded from a stored token.
	FromToken bool
}

// Page returns the session's tab, nil before authentication.
func (s *Session) Page() browser.Page {
	return s.page
}

func (s *Session) Close() error {
	var errs []error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		s.page = nil
	}
	if s.driver != nil {
		if err := s.driver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.driver = nil
	}
	return errors.Join(errs...)
}

type Options struct {
	// RowSelector marks a loaded, authenticated listing page.
	RowSelector string
	// ExtendedTimeout is used for waits after operator intervention.
	// Zero means three times the initial timeout.
	ExtendedTimeout time.Duration
	// MaxExtendedFailures is the number of failed waits after intervention
	// before giving up. Zero means 2.
	MaxExtendedFailures int
	Prompt              string
}

type Manager struct {
	launch   LaunchFunc
	operator Operator
	opts     Options
	logger   *slog.Logger
}

func NewManager(launch LaunchFunc, operator Operator, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if operator == nil {
		operator = AutoOperator{Answer: false}
	}
	if opts.MaxExtendedFailures <= 0 {
		opts.MaxExtendedFailures = 2
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	return &Manager{
		launch:   launch,
		operator: operator,
		opts:     opts,
		logger:   logger.With("component", "session"),
	}
}

// Acquire starts a browser, seeded from the token at tokenPath when it exists.
// An unreadable or rejected token is logged and a fresh browser is started.
func (m *Manager) Acquire(ctx context.Context, tokenPath string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if tokenPath != "" && m.tokenUsable(tokenPath) {
		driver, err := m.launch(tokenPath)
		if err == nil {
			m.logger.Info("browser started from stored session", "token", tokenPath)
			return &Session{driver: driver, tokenPath: tokenPath, FromToken: true}, nil
		}
		m.logger.Warn("stored session rejected, starting fresh", "token", tokenPath, "error", err)
	}

	driver, err := m.launch("")
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	m.logger.Info("browser started without stored session")
	return &Session{driver: driver, tokenPath: tokenPath}, nil
}

func (m *Manager) tokenUsable(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("stored session unreadable", "token", path, "error", err)
		}
		return false
	}
	if !json.Valid(data) {
		m.logger.Warn("stored session is corrupt, ignoring it", "token", path)
		return false
	}
	return true
}

// EnsureAuthenticated opens listingURL and waits for the first row. When it
// does not appear within timeout the operator is asked to log in, and the
// wait is repeated with the extended timeout. The token is saved as soon as
// the listing loads.
func (m *Manager) EnsureAuthenticated(ctx context.Context, sess *Session, listingURL string, timeout time.Duration) (browser.Page, error) {
	if sess.page == nil {
		page, err := sess.driver.NewPage()
		if err != nil {
			return nil, fmt.Errorf("%w: open page: %w", ErrFatalAuth, err)
		}
		sess.page = page
	}
	page := sess.page

	err := page.Goto(listingURL, timeout)
	if err == nil {
		err = page.WaitForSelector(m.opts.RowSelector, timeout)
	}
	switch {
	case err == nil:
		m.logger.Info("library listing loaded", "url", page.URL())
		m.Persist(sess, sess.tokenPath)
		return page, nil
	case !errors.Is(err, browser.ErrTimeout):
		return nil, fmt.Errorf("%w: open listing: %w", ErrFatalAuth, err)
	}

	m.logger.Warn("listing did not load", "error", fmt.Errorf("%w: %w", ErrRecoverableAuth, err), "timeout", timeout)

	extended := m.opts.ExtendedTimeout
	if extended <= 0 {
		extended = 3 * timeout
	}

	for failures := 0; failures < m.opts.MaxExtendedFailures; {
		retry, err := m.operator.Confirm(ctx, m.opts.Prompt)
		if err != nil {
			return nil, fmt.Errorf("%w: operator: %w", ErrFatalAuth, err)
		}
		if !retry {
			return nil, fmt.Errorf("%w: stopped by operator", ErrFatalAuth)
		}

		if !sameListing(page.URL(), listingURL) {
			if err := page.Goto(listingURL, extended); err != nil && !errors.Is(err, browser.ErrTimeout) {
				return nil, fmt.Errorf("%w: reopen listing: %w", ErrFatalAuth, err)
			}
		}

		err = page.WaitForSelector(m.opts.RowSelector, extended)
		switch {
		case err == nil:
			m.logger.Info("library listing loaded after manual login", "url", page.URL())
			m.Persist(sess, sess.tokenPath)
			return page, nil
		case errors.Is(err, browser.ErrTimeout):
			failures++
			m.logger.Warn("listing still not loaded", "attempt", failures, "of", m.opts.MaxExtendedFailures, "timeout", extended)
		default:
			return nil, fmt.Errorf("%w: wait for listing: %w", ErrFatalAuth, err)
		}
	}

	return nil, fmt.Errorf("%w: listing did not load after %d attempts", ErrFatalAuth, m.opts.MaxExtendedFailures)
}

// Persist writes the session's authentication state to tokenPath. Failures
// are logged only.
func (m *Manager) Persist(sess *Session, tokenPath string) {
	if sess == nil || sess.driver == nil || tokenPath == "" {
		return
	}
	if err := sess.driver.SaveStorageState(tokenPath); err != nil {
		m.logger.Warn("failed to save session", "token", tokenPath, "error", err)
		return
	}
	m.logger.Debug("session saved", "token", tokenPath)
}

func sameListing(current, listing string) bool {
	a, err := url.Parse(current)
	if err != nil {
		return false
	}
	b, err := url.Parse(listing)
	if err != nil {
		return false
	}
	return a.Host == b.Host && a.Path == b.Path
}
