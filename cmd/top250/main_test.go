package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/clock/system"
	"github.com/JakeFAU/top250-crawler/internal/config"
	"github.com/JakeFAU/top250-crawler/internal/llm"
	"github.com/JakeFAU/top250-crawler/internal/movie"
	"github.com/JakeFAU/top250-crawler/internal/pipeline"
	"github.com/JakeFAU/top250-crawler/internal/storage"
	"github.com/JakeFAU/top250-crawler/internal/storage/sqlite"
)

const listingItem = `
<div class="item">
  <div class="pic"><a href="https://movie.example.com/subject/%[1]d/"><img src="https://img.example.com/%[1]d.jpg"></a></div>
  <div class="info">
    <div class="hd"><a href="https://movie.example.com/subject/%[1]d/"><span class="title">Movie %[1]d</span></a></div>
    <div class="bd">
      <p class="">Director: Someone<br>199%[1]d / USA / Drama</p>
      <div class="star"><span class="rating_num">9.%[1]d</span><span>1,234人评价</span></div>
      <p class="quote"><span class="inq">Quote %[1]d</span></p>
    </div>
  </div>
</div>`

// listingServer serves pageSize items per page, ranked by the start parameter.
func listingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		var start int
		_, _ = fmt.Sscanf(r.URL.Query().Get("start"), "%d", &start)
		var b strings.Builder
		b.WriteString("<html><body><ol>")
		for i := 0; i < 2; i++ {
			fmt.Fprintf(&b, listingItem, start+i+1)
		}
		b.WriteString("</ol></body></html>")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	dir      string
	config   string
	dbPath   string
	reports  string
	textfile string
}

func newTestEnv(t *testing.T, baseURL, extra string) testEnv {
	t.Helper()
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("TOP250_AI_API_KEY", "")

	dir := t.TempDir()
	te := testEnv{
		dir:      dir,
		config:   filepath.Join(dir, "top250.yaml"),
		dbPath:   filepath.Join(dir, "data", "douban.db"),
		reports:  filepath.Join(dir, "analysis"),
		textfile: filepath.Join(dir, "top250.prom"),
	}
	if baseURL == "" {
		baseURL = "http://127.0.0.1:1/top250"
	}
	yaml := fmt.Sprintf(`
scraper:
  base_url: %s
  pages: 2
  page_size: 2
  delay_min: 0s
  delay_max: 0s
  request_timeout: 2s
store:
  driver: sqlite
  path: %s
report:
  output_dir: %s
  top_n: 3
logging:
  development: false
  level: error
metrics:
  textfile: %s
%s`, baseURL, te.dbPath, te.reports, te.textfile, extra)
	require.NoError(t, os.WriteFile(te.config, []byte(yaml), 0o600))
	return te
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func openTestStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.Config{Path: path}, system.New(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunWithoutAPIKeyStoresRecords(t *testing.T) {
	srv := listingServer(t, http.StatusOK)
	te := newTestEnv(t, srv.URL+"/top250", "")

	out, err := execute(t, "", "run", "--config", te.config)
	require.NoError(t, err)
	require.Contains(t, out, "pages fetched:        2/2 (failed 0)")
	require.Contains(t, out, "normalized:           0 ok, 0 failed, 4 skipped")
	require.Contains(t, out, "rows persisted:       4")

	recs, err := openTestStore(t, te.dbPath).ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 4)
	require.Equal(t, "Movie 3", recs[2].Title)
	require.Equal(t, 1234, recs[2].VoteCount)
	require.Equal(t, "Quote 3", *recs[2].Quote)
	require.Nil(t, recs[2].Director)

	require.FileExists(t, filepath.Join(te.reports, "summary_report.md"))
	require.FileExists(t, filepath.Join(te.reports, "rating_distribution.txt"))
	prom, err := os.ReadFile(te.textfile)
	require.NoError(t, err)
	require.Contains(t, string(prom), `top250_pages_total{result="ok"} 2`)
	require.Contains(t, string(prom), "top250_rows_persisted_total 4")
}

type fakeCompleter struct{}

func (fakeCompleter) Complete(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{
		Content:     `{"director":"Someone","actors":["A","B"],"year":1994,"country":"USA","genres":["Drama"]}`,
		TotalTokens: 42,
	}, nil
}

func TestRunWithCompleter(t *testing.T) {
	orig := newCompleter
	t.Cleanup(func() { newCompleter = orig })
	var got llm.Config
	newCompleter = func(_ context.Context, cfg llm.Config) (llm.Completer, error) {
		got = cfg
		return fakeCompleter{}, nil
	}

	srv := listingServer(t, http.StatusOK)
	te := newTestEnv(t, srv.URL+"/top250", "ai:\n  api_key: test-key\n  provider: openai\n")

	out, err := execute(t, "", "run", "--config", te.config, "--test", "--skip-charts")
	require.NoError(t, err)
	require.Equal(t, "test-key", got.APIKey)
	require.Contains(t, out, "pages fetched:        1/1")
	require.Contains(t, out, "normalized:           2 ok, 0 failed, 0 skipped")
	require.Contains(t, out, "84 tokens")
	require.NoDirExists(t, te.reports)

	rec, err := openTestStore(t, te.dbPath).ReadByRank(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, "Someone", *rec.Director)
	require.Equal(t, []string{"A", "B"}, rec.Actors)
	require.Equal(t, 1994, *rec.Year)
}

func TestRunSkipAIFlagIgnoresKey(t *testing.T) {
	orig := newCompleter
	t.Cleanup(func() { newCompleter = orig })
	newCompleter = func(context.Context, llm.Config) (llm.Completer, error) {
		t.Fatal("completer must not be built with --skip-ai")
		return nil, nil
	}

	srv := listingServer(t, http.StatusOK)
	te := newTestEnv(t, srv.URL+"/top250", "ai:\n  api_key: test-key\n")

	out, err := execute(t, "", "run", "--config", te.config, "--pages", "1", "--skip-ai", "--skip-charts")
	require.NoError(t, err)
	require.Contains(t, out, "2 skipped")
}

func TestRunContinuesWhenCompleterInitFails(t *testing.T) {
	orig := newCompleter
	t.Cleanup(func() { newCompleter = orig })
	newCompleter = func(context.Context, llm.Config) (llm.Completer, error) {
		return nil, errors.New("client init failed")
	}

	srv := listingServer(t, http.StatusOK)
	te := newTestEnv(t, srv.URL+"/top250", "ai:\n  api_key: test-key\n  provider: gemini\n")

	out, err := execute(t, "", "run", "--config", te.config, "--skip-charts")
	require.NoError(t, err)
	require.Contains(t, out, "normalized:           0 ok, 0 failed, 4 skipped")
	require.Contains(t, out, "rows persisted:       4")

	recs, err := openTestStore(t, te.dbPath).ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 4)
	for _, r := range recs {
		require.Nil(t, r.Director)
		require.Nil(t, r.Year)
		require.Empty(t, r.Genres)
	}
}

func TestRunSkipsChartsWhenStoreReadFails(t *testing.T) {
	orig := openStore
	t.Cleanup(func() { openStore = orig })
	store := &storage.MockStore{}
	store.On("ReadAll", mock.Anything).Return(nil, errors.New("disk gone"))
	store.On("Close").Return(nil)
	openStore = func(context.Context, config.Config, *zap.Logger) (movie.Store, error) {
		return store, nil
	}

	te := newTestEnv(t, "", "")
	out, err := execute(t, "", "run", "--config", te.config, "--skip-scrape")
	require.NoError(t, err)
	require.NotContains(t, out, "top_directors")
	require.NoDirExists(t, te.reports)
	store.AssertExpectations(t)
}

func TestRunFailsWhenEveryPageIsBlocked(t *testing.T) {
	srv := listingServer(t, http.StatusForbidden)
	te := newTestEnv(t, srv.URL+"/top250", "")

	out, err := execute(t, "", "run", "--config", te.config)
	require.ErrorIs(t, err, pipeline.ErrNoRecords)
	require.Contains(t, out, "pages fetched:        0/2 (failed 2)")

	prom, readErr := os.ReadFile(te.textfile)
	require.NoError(t, readErr)
	require.Contains(t, string(prom), `top250_pages_total{result="blocked"} 2`)
}

func TestRunSkipScrapeRendersStoredRows(t *testing.T) {
	te := newTestEnv(t, "", "")
	store := openTestStore(t, te.dbPath)
	_, err := store.UpsertBatch(context.Background(), []movie.Record{
		{Rank: 1, Title: "Stored", Rating: 9.1, Year: movie.IntPtr(2001), Genres: []string{"Drama"}},
	})
	require.NoError(t, err)

	out, err := execute(t, "", "run", "--config", te.config, "--skip-scrape")
	require.NoError(t, err)
	require.NotContains(t, out, "pages fetched")
	require.Contains(t, out, "top_directors")
	require.Contains(t, out, "(skipped)")

	md, err := os.ReadFile(filepath.Join(te.reports, "summary_report.md"))
	require.NoError(t, err)
	require.Contains(t, string(md), "Total movies: 1")
}

func TestRunRejectsBadConfig(t *testing.T) {
	te := newTestEnv(t, "not a url", "")
	_, err := execute(t, "", "run", "--config", te.config)
	require.ErrorContains(t, err, "scraper.base_url")
}

func TestInfo(t *testing.T) {
	te := newTestEnv(t, "", "")

	out, err := execute(t, "", "info", "--config", te.config)
	require.NoError(t, err)
	require.Contains(t, out, "No movies stored yet")

	store := openTestStore(t, te.dbPath)
	_, err = store.UpsertBatch(context.Background(), []movie.Record{
		{Rank: 1, Title: "First", Rating: 9.7, VoteCount: 10, Year: movie.IntPtr(1994),
			Director: movie.StringPtr("Frank Darabont"), Genres: []string{"Drama", "Crime"}},
		{Rank: 2, Title: "Second", Rating: 9.5, VoteCount: 5, Year: movie.IntPtr(2001),
			Director: movie.StringPtr("Frank Darabont"), Genres: []string{"Drama"}},
	})
	require.NoError(t, err)

	out, err = execute(t, "", "info", "--config", te.config)
	require.NoError(t, err)
	require.Contains(t, out, "Douban Top 250")
	require.Contains(t, out, "Total movies")
	require.Contains(t, out, "9.60")
	require.Contains(t, out, "1994 - 2001")
	require.Contains(t, out, "  1. First (9.7)")
	require.Contains(t, out, "Frank Darabont: 2")
	require.Contains(t, out, "Drama: 2")
}

func TestClear(t *testing.T) {
	te := newTestEnv(t, "", "")
	store := openTestStore(t, te.dbPath)
	_, err := store.UpsertBatch(context.Background(), []movie.Record{{Rank: 1, Title: "a"}, {Rank: 2, Title: "b"}})
	require.NoError(t, err)

	for _, answer := range []string{"no\n", "YES please\n", ""} {
		out, err := execute(t, answer, "clear", "--config", te.config)
		require.NoError(t, err)
		require.Contains(t, out, "Are you sure you want to continue? (yes/no)")
		require.Contains(t, out, "Aborted.")
	}
	recs, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	out, err := execute(t, " Yes \n", "clear", "--config", te.config)
	require.NoError(t, err)
	require.Contains(t, out, "Deleted 2 movies.")
	recs, err = store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestServe(t *testing.T) {
	te := newTestEnv(t, "", "")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"serve", "--config", te.config, "--port", fmt.Sprint(port)})
		done <- cmd.ExecuteContext(ctx)
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestResolveEnvWithoutPreRun(t *testing.T) {
	t.Parallel()

	_, err := resolveEnv(context.Background())
	require.Error(t, err)
}
