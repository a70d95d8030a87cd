package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/movie"
)

const (
	defaultMovieLimit = 50
	maxMovieLimit     = 250
	defaultTopN       = 10
	readTimeout       = 3 * time.Second
)

// MovieHandler exposes read-only catalog endpoints.
type MovieHandler struct {
	reader  Reader
	topN    int
	timeout time.Duration
	logger  *zap.Logger
}

// NewMovieHandler wires the reader and logger.
func NewMovieHandler(reader Reader, topN int, logger *zap.Logger) *MovieHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topN <= 0 {
		topN = defaultTopN
	}
	return &MovieHandler{
		reader:  reader,
		topN:    topN,
		timeout: readTimeout,
		logger:  logger,
	}
}

// ListMovies handles GET /v1/movies?limit=&offset=&genre=&country=. It
// returns {"movies": [...], "total": n} ordered by rank, 400 for invalid
// query parameters, 503 when no store is wired, or 500 on store errors.
func (h *MovieHandler) ListMovies(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "movie store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultMovieLimit, maxMovieLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	all, err := h.reader.ReadAll(ctx)
	if err != nil {
		h.logger.Error("list movies failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list movies")
		return
	}
	filtered := filterMovies(all, r.URL.Query().Get("genre"), r.URL.Query().Get("country"))
	writeJSON(w, http.StatusOK, map[string]any{
		"movies": page(filtered, limit, offset),
		"total":  len(filtered),
	})
}

// GetMovie handles GET /v1/movies/{rank}. It returns {"movie": {...}}, 400
// for a malformed rank, or 404 when the store reports movie.ErrNotFound.
func (h *MovieHandler) GetMovie(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "movie store unavailable")
		return
	}
	rank, err := parseRank(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.reader.ReadByRank(ctx, rank)
	if err != nil {
		if errors.Is(err, movie.ErrNotFound) {
			writeError(w, http.StatusNotFound, "movie not found")
			return
		}
		h.logger.Error("get movie failed", zap.Int("rank", rank), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load movie")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movie": rec})
}

type statsDTO struct {
	Summary   movie.Summary      `json:"summary"`
	Directors []movie.Bucket     `json:"top_directors"`
	Countries []movie.Bucket     `json:"top_countries"`
	Genres    []movie.Bucket     `json:"genres"`
	Years     []movie.YearBucket `json:"years"`
}

// Stats handles GET /v1/stats.
func (h *MovieHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "movie store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	dto, err := h.loadStats(ctx)
	if err != nil {
		h.logger.Error("load stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *MovieHandler) loadStats(ctx context.Context) (statsDTO, error) {
	var (
		dto statsDTO
		err error
	)
	if dto.Summary, err = h.reader.Summary(ctx); err != nil {
		return dto, err //nolint:wrapcheck
	}
	if dto.Directors, err = h.reader.TopDirectors(ctx, h.topN); err != nil {
		return dto, err //nolint:wrapcheck
	}
	if dto.Countries, err = h.reader.CountryDistribution(ctx, h.topN); err != nil {
		return dto, err //nolint:wrapcheck
	}
	if dto.Genres, err = h.reader.GenreDistribution(ctx); err != nil {
		return dto, err //nolint:wrapcheck
	}
	dto.Years, err = h.reader.YearDistribution(ctx)
	return dto, err //nolint:wrapcheck
}

func parseRank(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "rank")
	if raw == "" {
		return 0, errors.New("rank is required")
	}
	rank, err := strconv.Atoi(raw)
	if err != nil || rank <= 0 {
		return 0, errors.New("invalid rank")
	}
	return rank, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func filterMovies(in []movie.Record, genre, country string) []movie.Record {
	genre, country = strings.TrimSpace(genre), strings.TrimSpace(country)
	if genre == "" && country == "" {
		return in
	}
	out := make([]movie.Record, 0, len(in))
	for _, rec := range in {
		if country != "" && (rec.Country == nil || !strings.EqualFold(*rec.Country, country)) {
			continue
		}
		if genre != "" && !containsFold(rec.Genres, genre) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func containsFold(items []string, want string) bool {
	for _, it := range items {
		if strings.EqualFold(it, want) {
			return true
		}
	}
	return false
}

func page(in []movie.Record, limit, offset int) []movie.Record {
	if offset >= len(in) {
		return []movie.Record{}
	}
	end := min(offset+limit, len(in))
	return in[offset:end]
}
