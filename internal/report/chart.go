package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/top250-crawler/internal/movie"
)

const (
	barWidth = 40
	barGlyph = "█"
)

// BarChart renders a horizontal bar chart. Labels are padded by display
// width so CJK names line up.
func BarChart(title string, buckets []movie.Bucket) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n")

	labelWidth, maxCount := 0, 0
	for _, bk := range buckets {
		labelWidth = max(labelWidth, lipgloss.Width(bk.Key))
		maxCount = max(maxCount, bk.Count)
	}
	for _, bk := range buckets {
		n := 0
		if maxCount > 0 {
			n = bk.Count * barWidth / maxCount
		}
		if n == 0 && bk.Count > 0 {
			n = 1
		}
		pad := strings.Repeat(" ", labelWidth-lipgloss.Width(bk.Key))
		fmt.Fprintf(&b, "%s%s | %s %d\n", bk.Key, pad, strings.Repeat(barGlyph, n), bk.Count)
	}
	return b.String()
}

func yearBuckets(years []movie.YearBucket) []movie.Bucket {
	out := make([]movie.Bucket, len(years))
	for i, y := range years {
		out[i] = movie.Bucket{Key: strconv.Itoa(y.Year), Count: y.Count}
	}
	return out
}
