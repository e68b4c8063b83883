// Package pipeline wires the ingestion stages together: location resolution,
// run availability, archive fetching, normalization and persistence.
package pipeline

import (
	"context"
	"time"

	"github.com/couchcryptid/nwp-ingest-service/internal/domain"
)

// ArchiveSource fetches the raw members of one model run.
// It returns domain.ErrRunUnavailable when the run has not been published.
type ArchiveSource interface {
	FetchRun(ctx context.Context, run time.Time) ([]domain.Member, error)
}

// Decoder turns one raw archive member into its decoded datasets, in decoder order.
type Decoder interface {
	Decode(ctx context.Context, data []byte) ([]domain.Dataset, error)
}

// LocationStore persists monitored locations.
type LocationStore interface {
	ListLocations(ctx context.Context) ([]domain.Location, error)
	InsertLocation(ctx context.Context, loc domain.Location) error
}

// FieldStore persists normalized field tables.
//
// MaxRunTime and MaxValidTime report ok=false when the table is absent or empty.
// AppendRows creates the table when absent and returns the number of rows written.
type FieldStore interface {
	MaxRunTime(ctx context.Context, table string) (time.Time, bool, error)
	MaxValidTime(ctx context.Context, table string) (time.Time, bool, error)
	AppendRows(ctx context.Context, table domain.FieldTable) (int, error)
}

// ReportPublisher announces completed cycles to downstream consumers.
type ReportPublisher interface {
	Publish(ctx context.Context, report domain.CycleReport) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
