// Package movie defines the records that flow through the catalog pipeline.
package movie

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when no row exists for a rank.
var ErrNotFound = errors.New("movie not found")

// Candidate is an unvalidated record extracted from one listing item.
type Candidate struct {
	Rank      int
	Title     string
	Rating    float64
	VoteCount int
	Quote     string
	// InfoText is the raw "director / actors / year / country / genres" line.
	InfoText  string
	CoverURL  string
	DetailURL string
}

// Fields holds the structured metadata recovered from a candidate's InfoText.
type Fields struct {
	Director *string  `json:"director"`
	Actors   []string `json:"actors"`
	Year     *int     `json:"year"`
	Country  *string  `json:"country"`
	Genres   []string `json:"genres"`
}

// Record is the persisted unit, identified by Rank.
type Record struct {
	Rank      int       `json:"rank"`
	Title     string    `json:"title"`
	Director  *string   `json:"director"`
	Actors    []string  `json:"actors"`
	Year      *int      `json:"year"`
	Country   *string   `json:"country"`
	Genres    []string  `json:"genres"`
	Rating    float64   `json:"rating"`
	VoteCount int       `json:"vote_count"`
	Quote     *string   `json:"quote"`
	AISummary *string   `json:"ai_summary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromCandidate merges a candidate with its normalized fields. A nil fields
// value yields a record whose AI-derived fields are null or empty.
func FromCandidate(c Candidate, fields *Fields) Record {
	rec := Record{
		Rank:      c.Rank,
		Title:     c.Title,
		Actors:    []string{},
		Genres:    []string{},
		Rating:    c.Rating,
		VoteCount: c.VoteCount,
	}
	if q := strings.TrimSpace(c.Quote); q != "" {
		rec.Quote = &q
	}
	if fields == nil {
		return rec
	}
	rec.Director = fields.Director
	rec.Year = fields.Year
	rec.Country = fields.Country
	if fields.Actors != nil {
		rec.Actors = append([]string(nil), fields.Actors...)
	}
	if fields.Genres != nil {
		rec.Genres = append([]string(nil), fields.Genres...)
	}
	return rec
}

// Bucket is one row of a frequency aggregation keyed by text.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// YearBucket is one row of the release-year distribution.
type YearBucket struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// Summary captures catalog-wide statistics.
type Summary struct {
	TotalMovies  int     `json:"total_movies"`
	AvgRating    float64 `json:"avg_rating"`
	HighestTitle string  `json:"highest_rated_title,omitempty"`
	HighestScore float64 `json:"highest_rated_score,omitempty"`
	MinYear      *int    `json:"min_year"`
	MaxYear      *int    `json:"max_year"`
	TotalVotes   int64   `json:"total_votes"`
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
