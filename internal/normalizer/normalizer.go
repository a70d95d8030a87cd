// Package normalizer turns the free-text info blob of a listing item into
// structured fields through an LLM, with bounded retries per record.
package normalizer

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/top250-crawler/internal/llm"
	"github.com/JakeFAU/top250-crawler/internal/movie"
	"github.com/JakeFAU/top250-crawler/internal/policy/ratelimit"
)

const (
	defaultTemperature = 0.1
	limiterKey         = "llm"
)

// Recorder receives per-call and per-record outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	AICall(outcome string, tokens int)
	Normalization(result string)
}

// Normalization results passed to Recorder.
const (
	ResultNormalized = "normalized"
	ResultFailed     = "failed"
	ResultSkipped    = "skipped"
)

// Config tunes the normalizer.
type Config struct {
	Retry       RetryPolicy
	Temperature float64
	// Concurrency above 1 normalizes records in parallel.
	Concurrency int
	// RequestsPerSecond above 0 bounds the attempt rate.
	RequestsPerSecond float64
}

// BatchReport counts per-record outcomes of NormalizeBatch.
type BatchReport struct {
	Normalized int
	Failed     int
	Skipped    int
}

// Normalizer calls the completer and validates its replies.
type Normalizer struct {
	completer   llm.Completer
	retry       RetryPolicy
	temperature float64
	concurrency int
	limiter     *ratelimit.Limiter
	stats       statsRecorder
	recorder    Recorder
	logger      *zap.Logger
}

// New builds a Normalizer. recorder may be nil.
func New(completer llm.Completer, cfg Config, recorder Recorder, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	n := &Normalizer{
		completer:   completer,
		retry:       cfg.Retry.withDefaults(),
		temperature: cfg.Temperature,
		concurrency: cfg.Concurrency,
		recorder:    recorder,
		logger:      logger,
	}
	if cfg.RequestsPerSecond > 0 {
		observer, _ := recorder.(ratelimit.DelayObserver)
		n.limiter = ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RequestsPerSecond, DefaultBurst: 1}, observer)
	}
	return n
}

// Stats returns a snapshot of the call counters.
func (n *Normalizer) Stats() CallStats {
	return n.stats.snapshot()
}

// Normalize extracts structured fields from infoText.
func (n *Normalizer) Normalize(ctx context.Context, infoText string) (*movie.Fields, error) {
	if strings.TrimSpace(infoText) == "" {
		return nil, ErrEmptyInput
	}
	content, attempts, err := n.complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        userPrompt(infoText),
		Temperature: n.temperature,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	fields, missing, err := decodeFields(content)
	if err != nil {
		n.logger.Warn("reply is not valid JSON", zap.Error(err))
		return nil, &Error{Reason: ReasonInvalidJSON, Attempts: attempts, Err: err}
	}
	if len(missing) > 0 {
		n.logger.Warn("reply is missing fields", zap.Strings("fields", missing))
	}
	return fields, nil
}

// Summarize asks for a one-sentence plain-text summary of rec.
func (n *Normalizer) Summarize(ctx context.Context, rec movie.Record) (*string, error) {
	content, _, err := n.complete(ctx, llm.Request{
		System:      summarySystemPrompt,
		User:        summaryPrompt(rec),
		Temperature: n.temperature,
	})
	if err != nil {
		return nil, err
	}
	return movie.StringPtr(content), nil
}

// NormalizeBatch returns one record per candidate, in input order. A record
// that cannot be normalized keeps null AI fields.
func (n *Normalizer) NormalizeBatch(ctx context.Context, candidates []movie.Candidate) ([]movie.Record, BatchReport) {
	out := make([]movie.Record, len(candidates))
	results := make([]string, len(candidates))

	g := new(errgroup.Group)
	g.SetLimit(n.concurrency)
	for i := range candidates {
		g.Go(func() error {
			out[i], results[i] = n.normalizeOne(ctx, candidates[i])
			return nil
		})
	}
	_ = g.Wait()

	var report BatchReport
	for _, r := range results {
		switch r {
		case ResultNormalized:
			report.Normalized++
		case ResultSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}
	stats := n.Stats()
	n.logger.Info("normalization finished",
		zap.Int("records", len(candidates)),
		zap.Int("normalized", report.Normalized),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("total_calls", stats.TotalCalls),
		zap.Int("failed_calls", stats.FailedCalls),
		zap.Int("total_tokens", stats.TotalTokens),
	)
	return out, report
}

// SummarizeBatch fills AISummary in place. Failures leave it null.
func (n *Normalizer) SummarizeBatch(ctx context.Context, records []movie.Record) int {
	var filled int
	summaries := make([]*string, len(records))
	g := new(errgroup.Group)
	g.SetLimit(n.concurrency)
	for i := range records {
		g.Go(func() error {
			s, err := n.Summarize(ctx, records[i])
			if err != nil {
				n.logger.Warn("summary failed", zap.Int("rank", records[i].Rank), zap.Error(err))
				return nil
			}
			summaries[i] = s
			return nil
		})
	}
	_ = g.Wait()
	for i, s := range summaries {
		records[i].AISummary = s
		if s != nil {
			filled++
		}
	}
	return filled
}

func (n *Normalizer) normalizeOne(ctx context.Context, c movie.Candidate) (movie.Record, string) {
	fields, err := n.Normalize(ctx, c.InfoText)
	result := ResultNormalized
	switch {
	case errors.Is(err, ErrEmptyInput):
		result = ResultSkipped
		n.logger.Warn("empty info text", zap.Int("rank", c.Rank))
	case err != nil:
		result = ResultFailed
		n.logger.Warn("normalization failed", zap.Int("rank", c.Rank), zap.Error(err))
	}
	if n.recorder != nil {
		n.recorder.Normalization(result)
	}
	return movie.FromCandidate(c, fields), result
}

// complete runs req under the retry policy and returns the reply content and
// the number of attempts made.
func (n *Normalizer) complete(ctx context.Context, req llm.Request) (string, int, error) {
	var lastErr error
	attempt := 0
	for {
		attempt++
		if n.limiter != nil {
			if err := n.limiter.Wait(ctx, limiterKey); err != nil {
				return "", attempt - 1, &Error{Reason: ReasonCanceled, Attempts: attempt - 1, Err: err}
			}
		}

		start := time.Now()
		resp, err := n.attempt(ctx, req)
		if err == nil {
			n.stats.success(resp.TotalTokens)
			n.observe("success", resp.TotalTokens)
			n.logger.Debug("completion succeeded",
				zap.Int("attempt", attempt),
				zap.Int("tokens", resp.TotalTokens),
				zap.Duration("duration", time.Since(start)),
			)
			return resp.Content, attempt, nil
		}

		lastErr = err
		n.stats.failure()
		n.observe("failure", 0)
		n.logger.Warn("completion attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", n.retry.MaxAttempts),
			zap.Error(err),
		)
		if !n.retry.ShouldRetry(ctx, attempt) {
			break
		}
	}
	if ctx.Err() != nil && attempt < n.retry.MaxAttempts {
		return "", attempt, &Error{Reason: ReasonCanceled, Attempts: attempt, Err: lastErr}
	}
	return "", attempt, &Error{Reason: ReasonExhausted, Attempts: attempt, Err: lastErr}
}

func (n *Normalizer) attempt(ctx context.Context, req llm.Request) (llm.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, n.retry.AttemptTimeout)
	defer cancel()
	return n.completer.Complete(attemptCtx, req)
}

func (n *Normalizer) observe(outcome string, tokens int) {
	if n.recorder != nil {
		n.recorder.AICall(outcome, tokens)
	}
}
