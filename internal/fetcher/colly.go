package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	// UserAgents is the rotation pool; DefaultUserAgents when empty.
	UserAgents []string
	Timeout    time.Duration
}

// Fetcher performs one GET per call through a cloned Colly collector.
type Fetcher struct {
	cfg           Config
	agents        *userAgentPool
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		agents:        newUserAgentPool(cfg.UserAgents),
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET and returns the body of a 200 response.
// Any other outcome is a *FetchError. Fetch never retries.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var result fetchResult
	collector := f.baseCollector.Clone()
	collector.ParseHTTPErrorResponse = true
	collector.AllowURLRevisit = true
	f.configureCollectorHooks(collector, &result)

	start := time.Now()
	if err := f.runCollector(ctx, collector, url, &result); err != nil {
		f.logger.Warn("page fetch failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	if err := statusError(url, result.status); err != nil {
		f.logger.Warn("page fetch rejected",
			zap.String("url", url),
			zap.Int("status", result.status),
			zap.String("kind", string(KindOf(err))),
		)
		return nil, err
	}
	f.logger.Info("page fetched",
		zap.String("url", url),
		zap.Int("bytes", len(result.body)),
		zap.Duration("duration", time.Since(start)),
	)
	return result.body, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnRequest(func(r *colly.Request) {
		f.applyHeaders(r.Headers)
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

// applyHeaders sets a fresh User-Agent plus the fixed browser-like header set.
func (f *Fetcher) applyHeaders(h *http.Header) {
	if h == nil {
		return
	}
	h.Set("User-Agent", f.agents.random())
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9,zh-CN;q=0.8,zh;q=0.7")
	h.Set("Accept-Encoding", "gzip")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, result *fetchResult) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return transportError(url, fmt.Errorf("fetch canceled: %w", ctx.Err()))
	case err := <-done:
		if err == nil {
			err = result.err
		}
		if err == nil {
			return nil
		}
		if result.status > 0 {
			return statusError(url, result.status)
		}
		return transportError(url, err)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
