package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed marks any upstream failure. Match it with errors.Is.
	ErrFetchFailed = errors.New("upstream fetch failed")

	// ErrSuperseded is returned to a caller whose request was overtaken by a
	// newer one before its response arrived.
	ErrSuperseded = errors.New("request superseded by a newer selection")

	ErrInvalidRegion = errors.New("invalid region code")
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrNotRunning is returned when the dashboard engine is not processing
	// commands, either before Run or after it returned.
	ErrNotRunning = errors.New("dashboard engine is not running")
)

// Upstream query names carried by FetchError.
const (
	QuerySummary    = "summary"
	QueryCountries  = "countries"
	QueryHistorical = "historical"
)

// FetchError wraps a failed upstream query. The previously committed view
// state is kept whenever one of these is returned.
type FetchError struct {
	Query  string // one of the Query* constants
	Region string // set for summary queries
	Err    error
}

func (e *FetchError) Error() string {
	if e.Region != "" {
		return fmt.Sprintf("fetch %s for %s: %v", e.Query, e.Region, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Query, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFetchFailed) match any FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }
