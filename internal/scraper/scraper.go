// Package scraper walks the paginated library listing and turns each page's
// rows into records.
package scraper

import (
	"errors"
)

var (
	// ErrRecoverableExtraction marks a row or page that could not be parsed.
	// The run continues without it.
	ErrRecoverableExtraction = errors.New("recoverable extraction error")
	// ErrFatalNavigation stops traversal. Records collected so far are kept.
	ErrFatalNavigation = errors.New("fatal navigation error")
)

// State is a pagination state. Done and Aborted are terminal.
type State int

const (
	StateLoading State = iota
	StateExtracting
	StateAdvancing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateExtracting:
		return "extracting"
	case StateAdvancing:
		return "advancing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// StopReason says why traversal ended.
type StopReason string

const (
	StopDuplicatePage     StopReason = "duplicate_page"
	StopTrailingEmptyPage StopReason = "trailing_empty_page"
	StopNoNextLink        StopReason = "no_next_link"
	StopEmptyNextLink     StopReason = "empty_next_link"
	StopNonIncreasingPage StopReason = "non_increasing_page"
	StopMaxPages          StopReason = "max_pages"
	StopNavigationError   StopReason = "navigation_error"
	StopCanceled          StopReason = "canceled"
)
