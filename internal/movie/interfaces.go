package movie

import (
	"context"
	"time"
)

// Store persists records keyed by rank and serves read-side aggregations.
type Store interface {
	UpsertBatch(ctx context.Context, records []Record) (int, error)
	ReadAll(ctx context.Context) ([]Record, error)
	ReadByRank(ctx context.Context, rank int) (Record, error)
	TopDirectors(ctx context.Context, limit int) ([]Bucket, error)
	CountryDistribution(ctx context.Context, limit int) ([]Bucket, error)
	GenreDistribution(ctx context.Context) ([]Bucket, error)
	YearDistribution(ctx context.Context) ([]YearBucket, error)
	Summary(ctx context.Context) (Summary, error)
	DeleteAll(ctx context.Context) (int64, error)
	Close() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
