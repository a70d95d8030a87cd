// Package pipeline sequences one catalog run: fetch and parse every listing
// page, normalize the candidates, then persist them in a single batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/fetcher"
	"github.com/JakeFAU/top250-crawler/internal/movie"
	"github.com/JakeFAU/top250-crawler/internal/normalizer"
	"github.com/JakeFAU/top250-crawler/internal/parser"
)

// ErrNoRecords is returned when no page yielded a single candidate.
var ErrNoRecords = errors.New("no records extracted from any page")

// Page results reported to the Recorder.
const (
	PageOK      = "ok"
	PageBlocked = "blocked"
	PageError   = "error"
)

// Fetcher downloads one listing page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Parser extracts candidates from one listing page.
type Parser interface {
	Parse(html []byte, page int) (parser.Result, error)
}

// Normalizer enriches candidates. *normalizer.Normalizer satisfies it.
type Normalizer interface {
	NormalizeBatch(ctx context.Context, candidates []movie.Candidate) ([]movie.Record, normalizer.BatchReport)
	SummarizeBatch(ctx context.Context, records []movie.Record) int
	Stats() normalizer.CallStats
}

// Writer persists the final batch.
type Writer interface {
	UpsertBatch(ctx context.Context, records []movie.Record) (int, error)
}

// Recorder receives run-level counters. *metrics.Metrics satisfies it.
type Recorder interface {
	PageFetched(result string)
	ItemsDropped(n int)
	RowsPersisted(n int)
	RunFinished(d time.Duration)
}

// IDGenerator names runs.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls one run.
type Config struct {
	BaseURL  string
	Pages    int
	PageSize int
	// SkipAI persists candidates with null AI fields.
	SkipAI bool
	// Summaries asks the normalizer for a one-line summary per record.
	Summaries bool
}

// Stats describes a finished (or aborted) run.
type Stats struct {
	RunID                string               `json:"run_id"`
	PagesRequested       int                  `json:"pages_requested"`
	PagesFetched         int                  `json:"pages_fetched"`
	PagesFailed          int                  `json:"pages_failed"`
	RecordsExtracted     int                  `json:"records_extracted"`
	ItemsDropped         int                  `json:"items_dropped"`
	Normalized           int                  `json:"normalized"`
	NormalizationFailed  int                  `json:"normalization_failed"`
	NormalizationSkipped int                  `json:"normalization_skipped"`
	Summarized           int                  `json:"summarized"`
	RowsPersisted        int                  `json:"rows_persisted"`
	Duration             time.Duration        `json:"duration"`
	AI                   normalizer.CallStats `json:"ai"`
}

// Deps are the collaborators of a Pipeline. Normalizer may be nil when
// SkipAI is set; Pauser, Recorder and IDs are optional.
type Deps struct {
	Fetcher    Fetcher
	Parser     Parser
	Normalizer Normalizer
	Store      Writer
	Pauser     fetcher.Pauser
	Recorder   Recorder
	IDs        IDGenerator
	Logger     *zap.Logger
}

// Pipeline runs the fetch, normalize and persist stages in order.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New validates deps and returns a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Fetcher == nil || deps.Parser == nil || deps.Store == nil {
		return nil, errors.New("pipeline requires a fetcher, a parser and a store")
	}
	if deps.Normalizer == nil {
		cfg.SkipAI = true
	}
	if cfg.Pages <= 0 {
		return nil, fmt.Errorf("pages must be positive, got %d", cfg.Pages)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if deps.Pauser == nil {
		deps.Pauser = fetcher.NoPause{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// Run executes one full run. Stats are returned alongside any error.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	stats := Stats{PagesRequested: p.cfg.Pages}
	if p.deps.IDs != nil {
		id, err := p.deps.IDs.NewID()
		if err != nil {
			p.deps.Logger.Warn("run id unavailable", zap.Error(err))
		}
		stats.RunID = id
	}
	logger := p.deps.Logger.With(zap.String("run_id", stats.RunID))

	logger.Info("run started", zap.Int("pages", p.cfg.Pages), zap.Bool("skip_ai", p.cfg.SkipAI))

	candidates := p.scrape(ctx, logger, &stats)
	if err := ctx.Err(); err != nil {
		return p.finish(stats, start), fmt.Errorf("scrape pages: %w", err)
	}
	if len(candidates) == 0 {
		logger.Error("no records extracted", zap.Int("pages_failed", stats.PagesFailed))
		return p.finish(stats, start), ErrNoRecords
	}

	records := p.normalize(ctx, logger, candidates, &stats)
	if err := ctx.Err(); err != nil {
		return p.finish(stats, start), fmt.Errorf("normalize records: %w", err)
	}

	n, err := p.deps.Store.UpsertBatch(ctx, records)
	if err != nil {
		logger.Error("persist batch failed", zap.Int("records", len(records)), zap.Error(err))
		return p.finish(stats, start), fmt.Errorf("persist records: %w", err)
	}
	stats.RowsPersisted = n
	if p.deps.Recorder != nil {
		p.deps.Recorder.RowsPersisted(n)
	}
	if n < len(records) {
		logger.Warn("some rows were not persisted", zap.Int("records", len(records)), zap.Int("persisted", n))
	}

	stats = p.finish(stats, start)
	logger.Info("run finished",
		zap.Int("pages_fetched", stats.PagesFetched),
		zap.Int("pages_failed", stats.PagesFailed),
		zap.Int("records_extracted", stats.RecordsExtracted),
		zap.Int("normalized", stats.Normalized),
		zap.Int("normalization_failed", stats.NormalizationFailed),
		zap.Int("rows_persisted", stats.RowsPersisted),
	)
	return stats, nil
}

func (p *Pipeline) finish(stats Stats, start time.Time) Stats {
	if !p.cfg.SkipAI {
		stats.AI = p.deps.Normalizer.Stats()
	}
	stats.Duration = time.Since(start)
	if p.deps.Recorder != nil {
		p.deps.Recorder.RunFinished(stats.Duration)
	}
	return stats
}

// scrape fetches pages sequentially, pausing between pages.
func (p *Pipeline) scrape(ctx context.Context, logger *zap.Logger, stats *Stats) []movie.Candidate {
	var candidates []movie.Candidate
	for page := 1; page <= p.cfg.Pages; page++ {
		if ctx.Err() != nil {
			return candidates
		}
		pageURL := PageURL(p.cfg.BaseURL, page, p.cfg.PageSize)
		pageLog := logger.With(zap.Int("page", page), zap.String("url", pageURL))

		found := p.scrapePage(ctx, pageLog, pageURL, page, stats)
		candidates = append(candidates, found...)

		if page < p.cfg.Pages {
			p.deps.Pauser.Pause(ctx)
		}
	}
	return candidates
}

func (p *Pipeline) scrapePage(ctx context.Context, logger *zap.Logger, pageURL string, page int, stats *Stats) []movie.Candidate {
	body, err := p.deps.Fetcher.Fetch(ctx, pageURL)
	if err != nil {
		stats.PagesFailed++
		result := PageError
		if fetcher.KindOf(err) == fetcher.KindBlocked {
			result = PageBlocked
		}
		p.record(result)
		logger.Warn("fetch page failed", zap.String("kind", string(fetcher.KindOf(err))), zap.Error(err))
		return nil
	}

	res, err := p.deps.Parser.Parse(body, page)
	if err != nil {
		stats.PagesFailed++
		p.record(PageError)
		logger.Warn("parse page failed", zap.Error(err))
		return nil
	}
	stats.PagesFetched++
	p.record(PageOK)

	stats.RecordsExtracted += len(res.Candidates)
	stats.ItemsDropped += len(res.Dropped)
	if p.deps.Recorder != nil {
		p.deps.Recorder.ItemsDropped(len(res.Dropped))
	}
	logger.Info("page parsed", zap.Int("candidates", len(res.Candidates)), zap.Int("dropped", len(res.Dropped)))
	return res.Candidates
}

func (p *Pipeline) normalize(ctx context.Context, logger *zap.Logger, candidates []movie.Candidate, stats *Stats) []movie.Record {
	if p.cfg.SkipAI {
		records := make([]movie.Record, len(candidates))
		for i, c := range candidates {
			records[i] = movie.FromCandidate(c, nil)
		}
		stats.NormalizationSkipped = len(candidates)
		logger.Info("normalization skipped", zap.Int("records", len(records)))
		return records
	}

	records, report := p.deps.Normalizer.NormalizeBatch(ctx, candidates)
	stats.Normalized = report.Normalized
	stats.NormalizationFailed = report.Failed
	stats.NormalizationSkipped = report.Skipped
	if report.Failed > 0 {
		logger.Warn("some records kept null AI fields", zap.Int("failed", report.Failed))
	}

	if p.cfg.Summaries && ctx.Err() == nil {
		stats.Summarized = p.deps.Normalizer.SummarizeBatch(ctx, records)
	}
	return records
}

func (p *Pipeline) record(result string) {
	if p.deps.Recorder != nil {
		p.deps.Recorder.PageFetched(result)
	}
}

// PageURL returns the listing URL for a 1-based page, carrying the item
// offset in the start query parameter.
func PageURL(base string, page, pageSize int) string {
	start := strconv.Itoa((page - 1) * pageSize)
	u, err := url.Parse(base)
	if err != nil {
		return base + "?start=" + start
	}
	q := u.Query()
	q.Set("start", start)
	u.RawQuery = q.Encode()
	return u.String()
}
