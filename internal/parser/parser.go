// Package parser extracts candidate movie records from a listing page.
package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/movie"
)

const (
	defaultPageSize   = 25
	defaultVoteSuffix = "人评价"
)

// Config tunes rank computation and vote parsing.
type Config struct {
	PageSize   int
	VoteSuffix string
}

// ItemError describes a listing item that lacked its structural containers.
type ItemError struct {
	Rank   int
	Reason string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Rank, e.Reason)
}

// Result holds the candidates of one page and the items that were dropped.
type Result struct {
	Candidates []movie.Candidate
	Dropped    []ItemError
}

// Parser turns listing HTML into candidates.
type Parser struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Parser.
func New(cfg Config, logger *zap.Logger) *Parser {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.VoteSuffix == "" {
		cfg.VoteSuffix = defaultVoteSuffix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{cfg: cfg, logger: logger}
}

// Parse extracts every div.item of a page. page is 1-based.
func (p *Parser) Parse(html []byte, page int) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Result{}, fmt.Errorf("parse page %d: %w", page, err)
	}

	var res Result
	offset := (page - 1) * p.cfg.PageSize
	doc.Find("div.item").Each(func(pos int, item *goquery.Selection) {
		rank := offset + pos + 1
		cand, itemErr := p.parseItem(item, rank)
		if itemErr != nil {
			p.logger.Warn("dropping listing item",
				zap.Int("page", page),
				zap.Int("rank", rank),
				zap.String("reason", itemErr.Reason),
			)
			res.Dropped = append(res.Dropped, *itemErr)
			return
		}
		res.Candidates = append(res.Candidates, cand)
	})

	p.logger.Debug("page parsed",
		zap.Int("page", page),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("dropped", len(res.Dropped)),
	)
	return res, nil
}

func (p *Parser) parseItem(item *goquery.Selection, rank int) (movie.Candidate, *ItemError) {
	hd := item.Find("div.hd").First()
	if hd.Length() == 0 {
		return movie.Candidate{}, &ItemError{Rank: rank, Reason: "missing div.hd"}
	}
	bd := item.Find("div.bd").First()
	if bd.Length() == 0 {
		return movie.Candidate{}, &ItemError{Rank: rank, Reason: "missing div.bd"}
	}

	cand := movie.Candidate{
		Rank:     rank,
		Title:    strings.TrimSpace(hd.Find("span.title").First().Text()),
		Rating:   parseRating(bd.Find("span.rating_num").First().Text()),
		Quote:    strings.TrimSpace(bd.Find("span.inq").First().Text()),
		InfoText: infoText(bd),
	}
	cand.VoteCount = p.parseVotes(bd.Find("div.star span").Last().Text())
	if src, ok := item.Find("div.pic img").First().Attr("src"); ok {
		cand.CoverURL = strings.TrimSpace(src)
	}
	if href, ok := hd.Find("a").First().Attr("href"); ok {
		cand.DetailURL = strings.TrimSpace(href)
	}
	return cand, nil
}

// infoText returns the first unclassed paragraph, which carries the director,
// cast, year, country and genre blob.
func infoText(bd *goquery.Selection) string {
	p := bd.Find("p").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return !ok || strings.TrimSpace(class) == ""
	}).First()
	return strings.TrimSpace(p.Text())
}

func parseRating(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func (p *Parser) parseVotes(raw string) int {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, p.cfg.VoteSuffix)
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}
