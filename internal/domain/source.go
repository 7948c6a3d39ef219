package domain

import "context"

// DataSource is the upstream statistics provider.
type DataSource interface {
	// Summary returns the snapshot for RegionWorldwide or a single country code.
	Summary(ctx context.Context, region string) (Summary, error)

	// Countries returns every country's snapshot in upstream order.
	Countries(ctx context.Context) ([]CountryRecord, error)

	// Historical returns the cumulative worldwide timeline for the trailing
	// lastDays days.
	Historical(ctx context.Context, lastDays int) (Timeline, error)
}
