package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/top250-crawler/internal/movie"
)

// MockStore is a mock implementation of movie.Store for testing.
type MockStore struct {
	mock.Mock
}

var _ movie.Store = (*MockStore)(nil)

// UpsertBatch is the mock implementation of the UpsertBatch method.
func (m *MockStore) UpsertBatch(ctx context.Context, records []movie.Record) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1) //nolint:wrapcheck
}

// ReadAll is the mock implementation of the ReadAll method.
func (m *MockStore) ReadAll(ctx context.Context) ([]movie.Record, error) {
	args := m.Called(ctx)
	recs, _ := args.Get(0).([]movie.Record)
	return recs, args.Error(1) //nolint:wrapcheck
}

// ReadByRank is the mock implementation of the ReadByRank method.
func (m *MockStore) ReadByRank(ctx context.Context, rank int) (movie.Record, error) {
	args := m.Called(ctx, rank)
	rec, _ := args.Get(0).(movie.Record)
	return rec, args.Error(1) //nolint:wrapcheck
}

// TopDirectors is the mock implementation of the TopDirectors method.
func (m *MockStore) TopDirectors(ctx context.Context, limit int) ([]movie.Bucket, error) {
	args := m.Called(ctx, limit)
	b, _ := args.Get(0).([]movie.Bucket)
	return b, args.Error(1) //nolint:wrapcheck
}

// CountryDistribution is the mock implementation of the CountryDistribution method.
func (m *MockStore) CountryDistribution(ctx context.Context, limit int) ([]movie.Bucket, error) {
	args := m.Called(ctx, limit)
	b, _ := args.Get(0).([]movie.Bucket)
	return b, args.Error(1) //nolint:wrapcheck
}

// GenreDistribution is the mock implementation of the GenreDistribution method.
func (m *MockStore) GenreDistribution(ctx context.Context) ([]movie.Bucket, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]movie.Bucket)
	return b, args.Error(1) //nolint:wrapcheck
}

// YearDistribution is the mock implementation of the YearDistribution method.
func (m *MockStore) YearDistribution(ctx context.Context) ([]movie.YearBucket, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]movie.YearBucket)
	return b, args.Error(1) //nolint:wrapcheck
}

// Summary is the mock implementation of the Summary method.
func (m *MockStore) Summary(ctx context.Context) (movie.Summary, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(movie.Summary)
	return s, args.Error(1) //nolint:wrapcheck
}

// DeleteAll is the mock implementation of the DeleteAll method.
func (m *MockStore) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1) //nolint:wrapcheck
}

// Close is the mock implementation of the Close method.
func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0) //nolint:wrapcheck
}
