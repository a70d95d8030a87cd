package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/config"
	"github.com/JakeFAU/top250-crawler/internal/fetcher"
	"github.com/JakeFAU/top250-crawler/internal/id/uuid"
	"github.com/JakeFAU/top250-crawler/internal/llm"
	"github.com/JakeFAU/top250-crawler/internal/metrics"
	"github.com/JakeFAU/top250-crawler/internal/movie"
	"github.com/JakeFAU/top250-crawler/internal/normalizer"
	"github.com/JakeFAU/top250-crawler/internal/parser"
	"github.com/JakeFAU/top250-crawler/internal/pipeline"
	"github.com/JakeFAU/top250-crawler/internal/report"
)

// newCompleter is a variable so tests can avoid real providers.
var newCompleter = llm.New

type runOptions struct {
	skipScrape bool
	skipAI     bool
	skipCharts bool
	pages      int
	test       bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, normalize and store the listing, then write charts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), e, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.skipScrape, "skip-scrape", false, "skip fetching and only render charts from stored rows")
	cmd.Flags().BoolVar(&opts.skipAI, "skip-ai", false, "store records without AI normalization")
	cmd.Flags().BoolVar(&opts.skipCharts, "skip-charts", false, "skip chart generation")
	cmd.Flags().IntVar(&opts.pages, "pages", 0, "number of listing pages to fetch (default from config)")
	cmd.Flags().BoolVar(&opts.test, "test", false, "fetch a single page")
	return cmd
}

func runPipeline(ctx context.Context, e *env, opts runOptions, out io.Writer) error {
	cfg, logger := e.cfg, e.logger
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	defer writeTextfile(cfg.Metrics.Textfile, reg, logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(store, logger)

	if !opts.skipScrape {
		stats, err := scrape(ctx, cfg, opts, store, m, logger)
		printStats(out, stats)
		if err != nil {
			return fmt.Errorf("run pipeline: %w", err)
		}
	}

	if opts.skipCharts {
		return nil
	}
	records, err := store.ReadAll(ctx)
	if err != nil {
		logger.Warn("cannot read stored records; skipping charts", zap.Error(err))
		return nil
	}
	paths := report.New(report.Config{OutputDir: cfg.Report.OutputDir, TopN: cfg.Report.TopN}, logger.Named("report")).Generate(records)
	printReports(out, paths)
	return nil
}

func scrape(ctx context.Context, cfg config.Config, opts runOptions, store movie.Store, m *metrics.Metrics, logger *zap.Logger) (pipeline.Stats, error) {
	pages := cfg.Scraper.Pages
	if opts.pages > 0 {
		pages = opts.pages
	}
	if opts.test {
		pages = 1
	}

	var norm pipeline.Normalizer
	switch {
	case opts.skipAI:
		logger.Info("AI normalization disabled by flag")
	case !cfg.HasAPIKey():
		logger.Warn("no AI API key configured; records will be stored without AI fields")
	default:
		completer, err := newCompleter(ctx, llm.Config{
			Provider: cfg.AI.Provider,
			APIKey:   cfg.AI.APIKey,
			BaseURL:  cfg.AI.BaseURL,
			Model:    cfg.AI.Model,
			Timeout:  cfg.AI.Timeout,
		})
		if err != nil {
			logger.Warn("cannot initialize AI client; continuing without AI fields", zap.Error(err))
			break
		}
		norm = normalizer.New(completer, normalizer.Config{
			Retry:             normalizer.RetryPolicy{MaxAttempts: cfg.AI.MaxRetries, AttemptTimeout: cfg.AI.Timeout},
			Temperature:       cfg.AI.Temperature,
			Concurrency:       cfg.AI.Concurrency,
			RequestsPerSecond: cfg.AI.RequestsPerSecond,
		}, m, logger.Named("normalizer"))
	}

	p, err := pipeline.New(pipeline.Config{
		BaseURL:   cfg.Scraper.BaseURL,
		Pages:     pages,
		PageSize:  cfg.Scraper.PageSize,
		Summaries: cfg.AI.GenerateSummaries,
	}, pipeline.Deps{
		Fetcher: fetcher.New(fetcher.Config{
			UserAgents: cfg.Scraper.UserAgents,
			Timeout:    cfg.Scraper.RequestTimeout,
		}, logger.Named("fetcher")),
		Parser:     parser.New(parser.Config{PageSize: cfg.Scraper.PageSize, VoteSuffix: cfg.Scraper.VoteSuffix}, logger.Named("parser")),
		Normalizer: norm,
		Store:      store,
		Pauser:     fetcher.NewRandomPause(cfg.Scraper.DelayMin, cfg.Scraper.DelayMax),
		Recorder:   m,
		IDs:        uuid.New(),
		Logger:     logger.Named("pipeline"),
	})
	if err != nil {
		return pipeline.Stats{}, fmt.Errorf("build pipeline: %w", err)
	}
	return p.Run(ctx)
}

func writeTextfile(path string, g prometheus.Gatherer, logger *zap.Logger) {
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path, g); err != nil {
		logger.Warn("write metrics textfile failed", zap.String("path", path), zap.Error(err))
	}
}

func printStats(out io.Writer, s pipeline.Stats) {
	fmt.Fprintf(out, "run %s\n", s.RunID)
	fmt.Fprintf(out, "  pages fetched:        %d/%d (failed %d)\n", s.PagesFetched, s.PagesRequested, s.PagesFailed)
	fmt.Fprintf(out, "  records extracted:    %d (dropped %d)\n", s.RecordsExtracted, s.ItemsDropped)
	fmt.Fprintf(out, "  normalized:           %d ok, %d failed, %d skipped\n", s.Normalized, s.NormalizationFailed, s.NormalizationSkipped)
	fmt.Fprintf(out, "  ai calls:             %d (%d ok, %d failed, %d tokens)\n", s.AI.TotalCalls, s.AI.SuccessfulCalls, s.AI.FailedCalls, s.AI.TotalTokens)
	fmt.Fprintf(out, "  rows persisted:       %d\n", s.RowsPersisted)
	fmt.Fprintf(out, "  duration:             %s\n", s.Duration.Round(time.Millisecond))
}

func printReports(out io.Writer, paths map[string]string) {
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := paths[name]
		if p == "" {
			p = "(skipped)"
		}
		fmt.Fprintf(out, "  %-22s %s\n", name, p)
	}
}
