package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/movie"
	"github.com/JakeFAU/top250-crawler/internal/storage/sqlite"
)

func TestOpenSQLite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "douban.db")
	s, err := Open(context.Background(), Config{Driver: "SQLite", Path: path}, nil, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	_, ok := s.(*sqlite.Store)
	require.True(t, ok)

	n, err := s.UpsertBatch(context.Background(), []movie.Record{{Rank: 1, Title: "a"}})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), Config{Path: ":memory:"}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Driver: "mysql"}, nil, nil)
	require.ErrorContains(t, err, "unknown store driver")

	_, err = Open(context.Background(), Config{Driver: DriverPostgres}, nil, nil)
	require.ErrorContains(t, err, "open postgres store")

	_, err = Open(context.Background(), Config{Driver: DriverSQLite}, nil, nil)
	require.ErrorContains(t, err, "open sqlite store")
}
