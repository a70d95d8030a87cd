package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/clock/system"
	"github.com/JakeFAU/top250-crawler/internal/metrics"
	"github.com/JakeFAU/top250-crawler/internal/movie"
	"github.com/JakeFAU/top250-crawler/internal/storage"
	"github.com/JakeFAU/top250-crawler/internal/storage/sqlite"
)

func seededStore(t *testing.T) *sqlite.Store {
	t.Helper()

	ctx := context.Background()
	s, err := sqlite.Open(ctx, sqlite.Config{Path: ":memory:"}, system.New(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.UpsertBatch(ctx, []movie.Record{
		{Rank: 1, Title: "The Shawshank Redemption", Director: movie.StringPtr("Frank Darabont"),
			Year: movie.IntPtr(1994), Country: movie.StringPtr("USA"), Genres: []string{"Crime", "Drama"},
			Actors: []string{"Tim Robbins"}, Rating: 9.7, VoteCount: 3000000},
		{Rank: 2, Title: "Farewell My Concubine", Director: movie.StringPtr("Chen Kaige"),
			Year: movie.IntPtr(1993), Country: movie.StringPtr("China"), Genres: []string{"Drama", "Romance"},
			Rating: 9.6, VoteCount: 2000000},
		{Rank: 3, Title: "The Mist", Director: movie.StringPtr("Frank Darabont"),
			Year: movie.IntPtr(2007), Country: movie.StringPtr("USA"), Genres: []string{"Horror"},
			Rating: 7.3, VoteCount: 1000},
	})
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, nil, nil, Options{}, zap.NewNop())
	rec := do(t, srv.Handler(), "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, srv.Handler(), "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ListMovies(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededStore(t), nil, nil, Options{}, zap.NewNop())

	rec := do(t, srv.Handler(), "/v1/movies?limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Movies []movie.Record `json:"movies"`
		Total  int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Total)
	require.Len(t, body.Movies, 2)
	require.Equal(t, 2, body.Movies[0].Rank)
	require.Equal(t, 3, body.Movies[1].Rank)

	rec = do(t, srv.Handler(), "/v1/movies?genre=drama&country=usa", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	require.Equal(t, "The Shawshank Redemption", body.Movies[0].Title)

	rec = do(t, srv.Handler(), "/v1/movies?offset=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"movies":[]`)
}

func TestServer_ListMovies_BadQuery(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededStore(t), nil, nil, Options{}, zap.NewNop())
	for _, q := range []string{"limit=0", "limit=abc", "offset=-1"} {
		rec := do(t, srv.Handler(), "/v1/movies?"+q, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestServer_GetMovie(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededStore(t), nil, nil, Options{}, zap.NewNop())

	rec := do(t, srv.Handler(), "/v1/movies/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Movie movie.Record `json:"movie"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Frank Darabont", *body.Movie.Director)
	require.Equal(t, []string{"Crime", "Drama"}, body.Movie.Genres)
	require.Equal(t, []string{"Tim Robbins"}, body.Movie.Actors)

	tests := []struct {
		path string
		code int
	}{
		{"/v1/movies/999", http.StatusNotFound},
		{"/v1/movies/abc", http.StatusBadRequest},
		{"/v1/movies/0", http.StatusBadRequest},
		{"/v1/movies/-3", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := do(t, srv.Handler(), tt.path, nil)
		require.Equal(t, tt.code, rec.Code, tt.path)
	}
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededStore(t), nil, nil, Options{TopN: 1}, zap.NewNop())
	rec := do(t, srv.Handler(), "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body statsDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Summary.TotalMovies)
	require.Equal(t, []movie.Bucket{{Key: "Frank Darabont", Count: 2}}, body.Directors)
	require.Equal(t, []movie.Bucket{{Key: "USA", Count: 2}}, body.Countries)
	require.Equal(t, movie.Bucket{Key: "Drama", Count: 2}, body.Genres[0])
	require.Len(t, body.Years, 3)
}

func TestServer_StoreErrors(t *testing.T) {
	t.Parallel()

	store := &storage.MockStore{}
	store.On("ReadAll", mock.Anything).Return(nil, errors.New("disk I/O error"))
	store.On("ReadByRank", mock.Anything, 5).Return(movie.Record{}, errors.New("disk I/O error"))
	store.On("Summary", mock.Anything).Return(movie.Summary{}, nil)
	store.On("TopDirectors", mock.Anything, defaultTopN).Return(nil, errors.New("disk I/O error"))

	srv := NewServer(store, nil, nil, Options{}, zap.NewNop())
	for _, path := range []string{"/v1/movies", "/v1/movies/5", "/v1/stats"} {
		rec := do(t, srv.Handler(), path, nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code, path)
	}
	store.AssertExpectations(t)
}

func TestServer_NoStore(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, nil, nil, Options{}, zap.NewNop())
	for _, path := range []string{"/v1/movies", "/v1/movies/1", "/v1/stats"} {
		rec := do(t, srv.Handler(), path, nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededStore(t), nil, nil, Options{APIKey: "secret"}, zap.NewNop())

	require.Equal(t, http.StatusForbidden, do(t, srv.Handler(), "/v1/movies", nil).Code)
	require.Equal(t, http.StatusForbidden, do(t, srv.Handler(), "/v1/movies", map[string]string{"X-API-Key": "nope"}).Code)
	require.Equal(t, http.StatusOK, do(t, srv.Handler(), "/v1/movies", map[string]string{"X-API-Key": "secret"}).Code)
	require.Equal(t, http.StatusOK, do(t, srv.Handler(), "/v1/movies?api_key=secret", nil).Code)
	require.Equal(t, http.StatusOK, do(t, srv.Handler(), "/healthz", nil).Code, "probes stay open")
}

type panicReader struct{ Reader }

func (panicReader) ReadAll(context.Context) ([]movie.Record, error) { panic("boom") }

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	srv := NewServer(panicReader{}, nil, nil, Options{RequestTimeout: time.Second}, zap.NewNop())
	rec := do(t, srv.Handler(), "/v1/movies", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := NewServer(seededStore(t), m, reg, Options{}, zap.NewNop())

	require.Equal(t, http.StatusOK, do(t, srv.Handler(), "/v1/movies/1", nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, srv.Handler(), "/v1/movies/404", nil).Code)

	rec := do(t, srv.Handler(), "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `http_requests_total{code="200",method="GET"} 1`)
	require.Contains(t, body, `http_requests_total{code="404",method="GET"} 1`)
	require.Contains(t, body, `route="/v1/movies/{rank}"`)
}
