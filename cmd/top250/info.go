package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/top250-crawler/internal/movie"
)

const infoTopN = 5

var (
	infoAccent = lipgloss.Color("#8BC34A")
	infoMuted  = lipgloss.Color("#6b7280")

	infoTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(infoAccent)
	infoHeadingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	infoLabelStyle   = lipgloss.NewStyle().Foreground(infoMuted).Width(16)
	infoBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(infoAccent).Padding(0, 1)
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print catalog statistics from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer closeStore(store, e.logger)
			return printInfo(cmd.Context(), store, cmd.OutOrStdout())
		},
	}
}

func printInfo(ctx context.Context, store movie.Store, out io.Writer) error {
	summary, err := store.Summary(ctx)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}
	if summary.TotalMovies == 0 {
		fmt.Fprintln(out, "No movies stored yet. Run `top250 run` first.")
		return nil
	}
	records, err := store.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	directors, err := store.TopDirectors(ctx, infoTopN)
	if err != nil {
		return fmt.Errorf("load directors: %w", err)
	}
	genres, err := store.GenreDistribution(ctx)
	if err != nil {
		return fmt.Errorf("load genres: %w", err)
	}

	stats := []string{
		infoRow("Total movies", fmt.Sprintf("%d", summary.TotalMovies)),
		infoRow("Average rating", fmt.Sprintf("%.2f", summary.AvgRating)),
	}
	if summary.MinYear != nil && summary.MaxYear != nil {
		stats = append(stats, infoRow("Year range", fmt.Sprintf("%d - %d", *summary.MinYear, *summary.MaxYear)))
	}
	stats = append(stats, infoRow("Total votes", fmt.Sprintf("%d", summary.TotalVotes)))

	top := make([]string, 0, infoTopN)
	for _, r := range records[:min(infoTopN, len(records))] {
		top = append(top, fmt.Sprintf("%3d. %s (%.1f)", r.Rank, r.Title, r.Rating))
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		infoTitleStyle.Render("Douban Top 250"),
		"",
		strings.Join(stats, "\n"),
		"",
		infoHeadingStyle.Render("Top movies"),
		strings.Join(top, "\n"),
		"",
		infoHeadingStyle.Render("Top directors"),
		bucketLines(directors),
		"",
		infoHeadingStyle.Render("Top genres"),
		bucketLines(movie.Limit(genres, infoTopN)),
	)
	fmt.Fprintln(out, infoBoxStyle.Render(body))
	return nil
}

func infoRow(label, value string) string {
	return infoLabelStyle.Render(label) + value
}

func bucketLines(buckets []movie.Bucket) string {
	if len(buckets) == 0 {
		return "  (none)"
	}
	lines := make([]string, len(buckets))
	for i, b := range buckets {
		lines[i] = fmt.Sprintf("  %s: %d", b.Key, b.Count)
	}
	return strings.Join(lines, "\n")
}
