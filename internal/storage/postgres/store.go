// Package postgres provides a Postgres-backed movie store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/clock/system"
	"github.com/JakeFAU/top250-crawler/internal/movie"
)

const defaultTable = "movies"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store implements movie.Store on Postgres.
type Store struct {
	pool   pool
	table  string
	clock  movie.Clock
	logger *zap.Logger
}

var _ movie.Store = (*Store)(nil)

// Open connects a pool and ensures the schema exists.
func Open(ctx context.Context, cfg Config, clock movie.Clock, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewStoreWithPool(p, cfg.Table, clock, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool, table string, clock movie.Clock, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, table: table, clock: clock, logger: logger}, nil
}

// EnsureSchema creates the table and its indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	rank INTEGER NOT NULL UNIQUE CHECK (rank > 0),
	title TEXT NOT NULL,
	director TEXT,
	actors TEXT NOT NULL DEFAULT '[]',
	year INTEGER,
	country TEXT,
	genres TEXT NOT NULL DEFAULT '[]',
	rating DOUBLE PRECISION NOT NULL DEFAULT 0,
	vote_count INTEGER NOT NULL DEFAULT 0,
	quote TEXT,
	ai_summary TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_rank ON %[1]s (rank)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_rating ON %[1]s (rating)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_year ON %[1]s (year)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_country ON %[1]s (country)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) upsertSQL() string {
	return fmt.Sprintf(`
INSERT INTO %s (
	rank, title, director, actors, year, country, genres,
	rating, vote_count, quote, ai_summary, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (rank) DO UPDATE SET
	title = EXCLUDED.title,
	director = EXCLUDED.director,
	actors = EXCLUDED.actors,
	year = EXCLUDED.year,
	country = EXCLUDED.country,
	genres = EXCLUDED.genres,
	rating = EXCLUDED.rating,
	vote_count = EXCLUDED.vote_count,
	quote = EXCLUDED.quote,
	ai_summary = EXCLUDED.ai_summary,
	updated_at = EXCLUDED.updated_at`, s.table)
}

// UpsertBatch writes records in one transaction. A row that fails is rolled
// back to its savepoint and skipped.
func (s *Store) UpsertBatch(ctx context.Context, records []movie.Record) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("movie store is not configured")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}

	query := s.upsertSQL()
	written := 0
	for _, rec := range records {
		if err := s.upsertRow(ctx, tx, query, rec); err != nil {
			if ctx.Err() != nil || errors.Is(err, errSavepoint) {
				_ = tx.Rollback(ctx)
				return 0, fmt.Errorf("upsert batch: %w", err)
			}
			s.logger.Warn("skipping row", zap.Int("rank", rec.Rank), zap.Error(err))
			continue
		}
		written++
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	s.logger.Info("batch upserted", zap.Int("records", len(records)), zap.Int("written", written))
	return written, nil
}

var errSavepoint = errors.New("savepoint failed")

func (s *Store) upsertRow(ctx context.Context, tx pgx.Tx, query string, rec movie.Record) error {
	if _, err := tx.Exec(ctx, "SAVEPOINT upsert_row"); err != nil {
		return fmt.Errorf("%w: %w", errSavepoint, err)
	}
	now := s.clock.Now().UTC()
	_, err := tx.Exec(ctx, query, upsertArgs(rec, now)...)
	if err != nil {
		if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT upsert_row"); rbErr != nil {
			return fmt.Errorf("%w: rollback to savepoint: %w", errSavepoint, rbErr)
		}
		return fmt.Errorf("upsert rank %d: %w", rec.Rank, err)
	}
	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT upsert_row"); err != nil {
		return fmt.Errorf("%w: release: %w", errSavepoint, err)
	}
	return nil
}

func upsertArgs(rec movie.Record, now time.Time) []any {
	return []any{
		rec.Rank,
		rec.Title,
		nullableString(rec.Director),
		movie.EncodeList(rec.Actors),
		nullableInt(rec.Year),
		nullableString(rec.Country),
		movie.EncodeList(rec.Genres),
		rec.Rating,
		rec.VoteCount,
		nullableString(rec.Quote),
		nullableString(rec.AISummary),
		now,
		now,
	}
}

const selectColumns = `rank, title, director, actors, year, country, genres,
	rating, vote_count, quote, ai_summary, created_at, updated_at`

// ReadAll returns every record ordered by rank.
func (s *Store) ReadAll(ctx context.Context) ([]movie.Record, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY rank`, selectColumns, s.table))
	if err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	defer rows.Close()

	out := []movie.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	return out, nil
}

// ReadByRank returns the record at rank or movie.ErrNotFound.
func (s *Store) ReadByRank(ctx context.Context, rank int) (movie.Record, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE rank = $1`, selectColumns, s.table), rank)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return movie.Record{}, movie.ErrNotFound
	}
	if err != nil {
		return movie.Record{}, err
	}
	return rec, nil
}

// TopDirectors counts records per non-empty director.
func (s *Store) TopDirectors(ctx context.Context, limit int) ([]movie.Bucket, error) {
	return s.countBy(ctx, "director", limit)
}

// CountryDistribution counts records per non-empty country.
func (s *Store) CountryDistribution(ctx context.Context, limit int) ([]movie.Bucket, error) {
	return s.countBy(ctx, "country", limit)
}

func (s *Store) countBy(ctx context.Context, column string, limit int) ([]movie.Bucket, error) {
	query := fmt.Sprintf(`
SELECT %[1]s, COUNT(*) AS n FROM %[2]s
WHERE %[1]s IS NOT NULL AND %[1]s <> ''
GROUP BY %[1]s
ORDER BY n DESC, %[1]s ASC`, column, s.table)
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	out := []movie.Bucket{}
	for rows.Next() {
		var b movie.Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	return out, nil
}

// GenreDistribution decodes every genres column and counts each genre.
func (s *Store) GenreDistribution(ctx context.Context) ([]movie.Bucket, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT genres FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("genre distribution: %w", err)
	}
	defer rows.Close()

	var all []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan genres: %w", err)
		}
		all = append(all, movie.DecodeList(raw)...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("genre distribution: %w", err)
	}
	return movie.Tally(all), nil
}

// YearDistribution counts records per known year, ascending.
func (s *Store) YearDistribution(ctx context.Context) ([]movie.YearBucket, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT year, COUNT(*) FROM %s WHERE year IS NOT NULL GROUP BY year ORDER BY year`, s.table))
	if err != nil {
		return nil, fmt.Errorf("year distribution: %w", err)
	}
	defer rows.Close()

	out := []movie.YearBucket{}
	for rows.Next() {
		var b movie.YearBucket
		if err := rows.Scan(&b.Year, &b.Count); err != nil {
			return nil, fmt.Errorf("scan year bucket: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("year distribution: %w", err)
	}
	return out, nil
}

// Summary computes catalog-wide statistics.
func (s *Store) Summary(ctx context.Context) (movie.Summary, error) {
	var (
		sum   movie.Summary
		avg   *float64
		votes *int64
	)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*), AVG(rating), MIN(year), MAX(year), SUM(vote_count) FROM %s`, s.table)).
		Scan(&sum.TotalMovies, &avg, &sum.MinYear, &sum.MaxYear, &votes)
	if err != nil {
		return movie.Summary{}, fmt.Errorf("summary: %w", err)
	}
	if avg != nil {
		sum.AvgRating = *avg
	}
	if votes != nil {
		sum.TotalVotes = *votes
	}
	if sum.TotalMovies == 0 {
		return sum, nil
	}

	err = s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT title, rating FROM %s ORDER BY rating DESC, rank ASC LIMIT 1`, s.table)).
		Scan(&sum.HighestTitle, &sum.HighestScore)
	if err != nil {
		return movie.Summary{}, fmt.Errorf("summary highest rated: %w", err)
	}
	return sum, nil
}

// DeleteAll removes every row and reports how many were deleted.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table))
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	s.logger.Warn("all records deleted", zap.Int64("rows", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (movie.Record, error) {
	var (
		rec            movie.Record
		actors, genres string
	)
	err := row.Scan(
		&rec.Rank, &rec.Title, &rec.Director, &actors, &rec.Year, &rec.Country, &genres,
		&rec.Rating, &rec.VoteCount, &rec.Quote, &rec.AISummary, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return movie.Record{}, err
		}
		return movie.Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Actors = movie.DecodeList(actors)
	rec.Genres = movie.DecodeList(genres)
	return rec, nil
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
