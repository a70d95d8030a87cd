// Package sqlite persists movie records in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/top250-crawler/internal/clock/system"
	"github.com/JakeFAU/top250-crawler/internal/movie"
)

const (
	defaultTable = "movies"
	memoryPath   = ":memory:"
	timeLayout   = time.RFC3339Nano
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config locates the database file.
type Config struct {
	// Path is the database file, or ":memory:".
	Path  string
	Table string
}

// Store implements movie.Store on SQLite.
type Store struct {
	db     *sql.DB
	table  string
	clock  movie.Clock
	logger *zap.Logger
}

var _ movie.Store = (*Store)(nil)

// Open creates the parent directory, opens the database, and ensures the schema.
func Open(ctx context.Context, cfg Config, clock movie.Clock, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store.path is required")
	}
	table := cfg.Table
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

	if cfg.Path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if cfg.Path != memoryPath {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			logger.Debug("sqlite journal_mode=WAL not applied", zap.Error(err))
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("sqlite busy_timeout not applied", zap.Error(err))
	}

	s := &Store{db: db, table: table, clock: clock, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("sqlite store ready", zap.String("path", cfg.Path), zap.String("table", table))
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	rank INTEGER NOT NULL UNIQUE CHECK (rank > 0),
	title TEXT NOT NULL,
	director TEXT,
	actors TEXT NOT NULL DEFAULT '[]',
	year INTEGER,
	country TEXT,
	genres TEXT NOT NULL DEFAULT '[]',
	rating REAL NOT NULL DEFAULT 0,
	vote_count INTEGER NOT NULL DEFAULT 0,
	quote TEXT,
	ai_summary TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_rank ON %[1]s(rank)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_rating ON %[1]s(rating)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_year ON %[1]s(year)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_country ON %[1]s(country)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// UpsertBatch writes records inside one transaction. Each row runs under its
// own savepoint so a failing row is skipped without losing the others.
func (s *Store) UpsertBatch(ctx context.Context, records []movie.Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`
INSERT INTO %s (
	rank, title, director, actors, year, country, genres,
	rating, vote_count, quote, ai_summary, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(rank) DO UPDATE SET
	title = excluded.title,
	director = excluded.director,
	actors = excluded.actors,
	year = excluded.year,
	country = excluded.country,
	genres = excluded.genres,
	rating = excluded.rating,
	vote_count = excluded.vote_count,
	quote = excluded.quote,
	ai_summary = excluded.ai_summary,
	updated_at = excluded.updated_at`, s.table)

	written := 0
	for _, rec := range records {
		if err := s.upsertRow(ctx, tx, query, rec); err != nil {
			if ctx.Err() != nil {
				return 0, fmt.Errorf("upsert batch: %w", ctx.Err())
			}
			s.logger.Warn("skipping row", zap.Int("rank", rec.Rank), zap.Error(err))
			continue
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	s.logger.Info("batch upserted", zap.Int("records", len(records)), zap.Int("written", written))
	return written, nil
}

func (s *Store) upsertRow(ctx context.Context, tx *sql.Tx, query string, rec movie.Record) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT upsert_row"); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	now := s.clock.Now().UTC().Format(timeLayout)
	_, err := tx.ExecContext(ctx, query,
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
	)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT upsert_row"); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT upsert_row")
		return fmt.Errorf("upsert rank %d: %w", rec.Rank, err)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT upsert_row"); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

const selectColumns = `rank, title, director, actors, year, country, genres,
	rating, vote_count, quote, ai_summary, created_at, updated_at`

// ReadAll returns every record ordered by rank.
func (s *Store) ReadAll(ctx context.Context) ([]movie.Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY rank`, selectColumns, s.table))
	if err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE rank = ?`, selectColumns, s.table), rank)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
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
WHERE %[1]s IS NOT NULL AND %[1]s != ''
GROUP BY %[1]s
ORDER BY n DESC, %[1]s ASC`, column, s.table)
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryBuckets(ctx, query, args...)
}

// GenreDistribution explodes the genres array column and counts each genre.
func (s *Store) GenreDistribution(ctx context.Context) ([]movie.Bucket, error) {
	query := fmt.Sprintf(`
SELECT g.value, COUNT(*) AS n
FROM %s AS m, json_each(CASE WHEN json_valid(m.genres) THEN m.genres ELSE '[]' END) AS g
WHERE g.type = 'text' AND g.value != ''
GROUP BY g.value
ORDER BY n DESC, g.value ASC`, s.table)
	return s.queryBuckets(ctx, query)
}

func (s *Store) queryBuckets(ctx context.Context, query string, args ...any) ([]movie.Bucket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []movie.Bucket{}
	for rows.Next() {
		var b movie.Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	return out, nil
}

// YearDistribution counts records per known year, ascending.
func (s *Store) YearDistribution(ctx context.Context) ([]movie.YearBucket, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT year, COUNT(*) FROM %s WHERE year IS NOT NULL GROUP BY year ORDER BY year`, s.table))
	if err != nil {
		return nil, fmt.Errorf("year distribution: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
		sum     movie.Summary
		avg     sql.NullFloat64
		minYear sql.NullInt64
		maxYear sql.NullInt64
		votes   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT COUNT(*), AVG(rating), MIN(year), MAX(year), SUM(vote_count) FROM %s`, s.table)).
		Scan(&sum.TotalMovies, &avg, &minYear, &maxYear, &votes)
	if err != nil {
		return movie.Summary{}, fmt.Errorf("summary: %w", err)
	}
	sum.AvgRating = avg.Float64
	sum.TotalVotes = votes.Int64
	if minYear.Valid {
		sum.MinYear = movie.IntPtr(int(minYear.Int64))
	}
	if maxYear.Valid {
		sum.MaxYear = movie.IntPtr(int(maxYear.Int64))
	}
	if sum.TotalMovies == 0 {
		return sum, nil
	}

	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT title, rating FROM %s ORDER BY rating DESC, rank ASC LIMIT 1`, s.table)).
		Scan(&sum.HighestTitle, &sum.HighestScore)
	if err != nil {
		return movie.Summary{}, fmt.Errorf("summary highest rated: %w", err)
	}
	return sum, nil
}

// DeleteAll removes every row and reports how many were deleted.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table))
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	s.logger.Warn("all records deleted", zap.Int64("rows", n))
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (movie.Record, error) {
	var (
		rec                 movie.Record
		director, country   sql.NullString
		quote, summary      sql.NullString
		year                sql.NullInt64
		actors, genres      sql.NullString
		createdAt, updateAt string
	)
	err := row.Scan(
		&rec.Rank, &rec.Title, &director, &actors, &year, &country, &genres,
		&rec.Rating, &rec.VoteCount, &quote, &summary, &createdAt, &updateAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return movie.Record{}, err
		}
		return movie.Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Director = fromNullString(director)
	rec.Country = fromNullString(country)
	rec.Quote = fromNullString(quote)
	rec.AISummary = fromNullString(summary)
	if year.Valid {
		rec.Year = movie.IntPtr(int(year.Int64))
	}
	rec.Actors = movie.DecodeList(actors.String)
	rec.Genres = movie.DecodeList(genres.String)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updateAt)
	return rec, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}
	}
	return t
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
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
