// Package report renders text charts and a markdown summary from stored
// movie records.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/movie"
)

// Chart names, also used as file stems.
const (
	ChartYears     = "year_distribution"
	ChartDirectors = "top_directors"
	ChartGenres    = "genre_distribution"
	ChartRatings   = "rating_distribution"
	ChartCountries = "country_distribution"
	SummaryReport  = "summary_report"
)

const defaultTopN = 10

// Config controls where reports land.
type Config struct {
	OutputDir string
	TopN      int
}

// Generator writes one file per chart.
type Generator struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New builds a Generator.
func New(cfg Config, logger *zap.Logger) *Generator {
	if cfg.TopN <= 0 {
		cfg.TopN = defaultTopN
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{cfg: cfg, logger: logger, now: time.Now}
}

// Generate writes every chart and the summary. The returned map holds the
// written path per chart name, or "" where a chart had no data or failed.
func (g *Generator) Generate(records []movie.Record) map[string]string {
	results := make(map[string]string, 6)
	if err := os.MkdirAll(g.cfg.OutputDir, 0o750); err != nil {
		g.logger.Error("create output dir failed", zap.String("dir", g.cfg.OutputDir), zap.Error(err))
		for _, name := range []string{ChartYears, ChartDirectors, ChartGenres, ChartRatings, ChartCountries, SummaryReport} {
			results[name] = ""
		}
		return results
	}

	charts := []struct {
		name    string
		title   string
		buckets []movie.Bucket
	}{
		{ChartYears, "Movies by release year", yearBuckets(Years(records))},
		{ChartDirectors, fmt.Sprintf("Top %d directors", g.cfg.TopN), Directors(records, g.cfg.TopN)},
		{ChartGenres, "Genre distribution", Genres(records, 0)},
		{ChartRatings, "Rating distribution", Ratings(records)},
		{ChartCountries, fmt.Sprintf("Top %d countries", g.cfg.TopN), Countries(records, g.cfg.TopN)},
	}
	for _, c := range charts {
		if len(c.buckets) == 0 {
			g.logger.Warn("no data for chart", zap.String("chart", c.name))
			results[c.name] = ""
			continue
		}
		results[c.name] = g.write(c.name+".txt", BarChart(c.title, c.buckets))
	}

	if len(records) == 0 {
		g.logger.Warn("no records for summary report")
		results[SummaryReport] = ""
	} else {
		results[SummaryReport] = g.write(SummaryReport+".md", g.Markdown(records))
	}

	written := 0
	for _, p := range results {
		if p != "" {
			written++
		}
	}
	g.logger.Info("reports generated", zap.Int("written", written), zap.Int("total", len(results)))
	return results
}

func (g *Generator) write(name, content string) string {
	path := filepath.Join(g.cfg.OutputDir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		g.logger.Error("write report failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

// Markdown renders the summary report.
func (g *Generator) Markdown(records []movie.Record) string {
	s := Summarize(records)
	var b strings.Builder
	b.WriteString("# Douban Top 250 summary\n\n")
	fmt.Fprintf(&b, "_Generated %s_\n\n", g.now().UTC().Format(time.RFC3339))

	b.WriteString("## Basic statistics\n\n")
	fmt.Fprintf(&b, "- Total movies: %d\n", s.TotalMovies)
	fmt.Fprintf(&b, "- Average rating: %.2f\n", s.AvgRating)
	if s.HighestTitle != "" {
		fmt.Fprintf(&b, "- Highest rating: %.1f (%s)\n", s.HighestScore, s.HighestTitle)
	}
	if s.MinYear != nil && s.MaxYear != nil {
		fmt.Fprintf(&b, "- Year range: %d - %d\n", *s.MinYear, *s.MaxYear)
	}
	fmt.Fprintf(&b, "- Total votes: %d\n", s.TotalVotes)

	section := func(title string, buckets []movie.Bucket) {
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		if len(buckets) == 0 {
			b.WriteString("_No data._\n")
			return
		}
		b.WriteString("| Name | Movies |\n|---|---|\n")
		for _, bk := range buckets {
			fmt.Fprintf(&b, "| %s | %d |\n", bk.Key, bk.Count)
		}
	}
	section("Top genres", Genres(records, g.cfg.TopN))
	section("Top directors", Directors(records, g.cfg.TopN))
	section("Top countries", Countries(records, g.cfg.TopN))
	return b.String()
}
