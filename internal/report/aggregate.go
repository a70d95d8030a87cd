package report

import (
	"fmt"
	"sort"

	"github.com/JakeFAU/top250-crawler/internal/movie"
)

// Years counts records per release year, oldest first. Records without a
// year are skipped.
func Years(records []movie.Record) []movie.YearBucket {
	counts := map[int]int{}
	for _, r := range records {
		if r.Year != nil {
			counts[*r.Year]++
		}
	}
	out := make([]movie.YearBucket, 0, len(counts))
	for y, c := range counts {
		out = append(out, movie.YearBucket{Year: y, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// Directors returns the n most frequent directors.
func Directors(records []movie.Record, n int) []movie.Bucket {
	keys := make([]string, 0, len(records))
	for _, r := range records {
		if r.Director != nil {
			keys = append(keys, *r.Director)
		}
	}
	return movie.Limit(movie.Tally(keys), n)
}

// Countries returns the n most frequent countries.
func Countries(records []movie.Record, n int) []movie.Bucket {
	keys := make([]string, 0, len(records))
	for _, r := range records {
		if r.Country != nil {
			keys = append(keys, *r.Country)
		}
	}
	return movie.Limit(movie.Tally(keys), n)
}

// Genres counts every genre of every record; n <= 0 keeps all.
func Genres(records []movie.Record, n int) []movie.Bucket {
	var keys []string
	for _, r := range records {
		keys = append(keys, r.Genres...)
	}
	return movie.Limit(movie.Tally(keys), n)
}

// Ratings buckets ratings to one decimal, lowest first. Unrated (0) records
// are skipped.
func Ratings(records []movie.Record) []movie.Bucket {
	counts := map[string]int{}
	for _, r := range records {
		if r.Rating > 0 {
			counts[fmt.Sprintf("%.1f", r.Rating)]++
		}
	}
	out := make([]movie.Bucket, 0, len(counts))
	for k, c := range counts {
		out = append(out, movie.Bucket{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Summarize computes catalog-wide statistics from records.
func Summarize(records []movie.Record) movie.Summary {
	s := movie.Summary{TotalMovies: len(records)}
	var (
		ratingSum float64
		rated     int
	)
	for _, r := range records {
		s.TotalVotes += int64(r.VoteCount)
		if r.Rating > 0 {
			ratingSum += r.Rating
			rated++
			if r.Rating > s.HighestScore {
				s.HighestScore = r.Rating
				s.HighestTitle = r.Title
			}
		}
		if r.Year != nil {
			y := *r.Year
			if s.MinYear == nil || y < *s.MinYear {
				s.MinYear = movie.IntPtr(y)
			}
			if s.MaxYear == nil || y > *s.MaxYear {
				s.MaxYear = movie.IntPtr(y)
			}
		}
	}
	if rated > 0 {
		s.AvgRating = ratingSum / float64(rated)
	}
	return s
}
