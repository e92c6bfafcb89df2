// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package supervisor runs the research for a single question: it turns the
// question into search queries, executes them concurrently with rate limiting
// and retries, and refines the result set until the evidence is sufficient or
// the refinement budget runs out.
package supervisor

import (
	"context"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/deep-research/internal/provider"
	"github.com/pdiddy/deep-research/internal/quality"
	"github.com/pdiddy/deep-research/internal/session"
	"github.com/pdiddy/deep-research/internal/strategy"
	"github.com/pdiddy/deep-research/pkg/types"
)

const (
	// searchAttempts is the per-query retry budget, counting the first try.
	searchAttempts = 3
	// maxRefinements bounds the gap-filling loop per question.
	maxRefinements = 5
	// maxGapQueries caps follow-up queries per refinement iteration.
	maxGapQueries = 3
	// minQueries..maxQueries bounds the initial query set per question.
	minQueries = 4
	maxQueries = 6
	// searchConcurrency bounds in-flight searches for one question.
	searchConcurrency = 4
)

// Inter-call delays keep a batch of questions from hammering the search
// provider. Deep-dive questions run later in a session, against a provider
// already warmed by earlier batches, so they are spaced out further.
// Variables so tests can zero them.
var (
	SearchDelay   = 200 * time.Millisecond
	DeepDiveDelay = 500 * time.Millisecond

	// SearchRetryInterval seeds the exponential backoff between attempts.
	SearchRetryInterval = 500 * time.Millisecond
)

var queryTmpl = template.Must(template.New("queries").Parse(
	`Generate 4 to 6 web search queries to research the following question.
Question: {{.Text}}
Category: {{.Category}}

Write one query per line, each prefixed with "QUERY:". No other text.`))

// Supervisor researches one question at a time. A single instance is shared
// across a session's batches; all methods are safe for concurrent use.
type Supervisor struct {
	completer provider.Completer
	searcher  provider.Searcher
	log       *zap.Logger
}

// New creates a supervisor. A nil logger disables logging.
func New(completer provider.Completer, searcher provider.Searcher, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{completer: completer, searcher: searcher, log: log}
}

// Research gathers, refines, and ranks evidence for a question. The returned
// bool reports whether query generation fell back to deterministic templates.
// A provider that fails every call still yields a (possibly empty) evidence
// list; the only returned error is context cancellation, and even then the
// evidence gathered so far is returned alongside it.
func (s *Supervisor) Research(ctx context.Context, sctx *session.Context, question types.ResearchQuestion) ([]types.CitationResult, bool, error) {
	return s.research(ctx, sctx, question, SearchDelay)
}

// DeepDive is Research with the wider deep-dive pacing.
func (s *Supervisor) DeepDive(ctx context.Context, sctx *session.Context, question types.ResearchQuestion) ([]types.CitationResult, bool, error) {
	return s.research(ctx, sctx, question, DeepDiveDelay)
}

func (s *Supervisor) research(ctx context.Context, sctx *session.Context, question types.ResearchQuestion, delay time.Duration) ([]types.CitationResult, bool, error) {
	cfg := sctx.Config().WithDefaults()
	log := s.log.With(zap.String("session", sctx.SessionID()), zap.String("question", question.Text))

	queries, fellBack := s.generateQueries(ctx, question)
	log.Debug("generated queries", zap.Int("count", len(queries)), zap.Bool("fallback", fellBack))

	merged := make(map[string]types.CitationResult)
	if err := s.runQueries(ctx, queries, delay, merged); err != nil {
		return quality.FilterAndRank(flatten(merged), question, cfg), fellBack, err
	}

	for i := 0; i < maxRefinements; i++ {
		if err := ctx.Err(); err != nil {
			return quality.FilterAndRank(flatten(merged), question, cfg), fellBack, err
		}

		filtered := quality.FilterAndRank(flatten(merged), question, cfg)
		if quality.IsSufficient(filtered, question, cfg) {
			log.Debug("evidence sufficient", zap.Int("iteration", i), zap.Int("citations", len(filtered)))
			break
		}
		gaps := quality.Gaps(filtered, question)
		if len(gaps) == 0 {
			break
		}
		if len(gaps) > maxGapQueries {
			gaps = gaps[:maxGapQueries]
		}

		followups := make([]string, 0, len(gaps))
		for _, gap := range gaps {
			followups = append(followups, quality.GapQuery(question, gap))
		}
		log.Debug("refining", zap.Int("iteration", i), zap.Strings("gaps", gaps))

		before := len(merged)
		if err := s.runQueries(ctx, followups, delay, merged); err != nil {
			return quality.FilterAndRank(flatten(merged), question, cfg), fellBack, err
		}
		if len(merged) == before {
			// Nothing new surfaced; further iterations would repeat the
			// same queries.
			break
		}
	}

	return quality.FilterAndRank(flatten(merged), question, cfg), fellBack, nil
}

// generateQueries asks the completer for search queries and falls back to
// deterministic templates when the response is unusable.
func (s *Supervisor) generateQueries(ctx context.Context, question types.ResearchQuestion) ([]string, bool) {
	var prompt strings.Builder
	if err := queryTmpl.Execute(&prompt, question); err != nil {
		return fallbackQueries(question), true
	}

	raw, err := s.completer.Complete(ctx, prompt.String(), provider.OutputQueries)
	if err != nil {
		s.log.Warn("query generation failed", zap.Error(err))
		return fallbackQueries(question), true
	}
	queries := strategy.ParseDirectives(raw)
	if len(queries) == 0 {
		return fallbackQueries(question), true
	}
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	// Pad thin responses from the deterministic set.
	for _, fb := range fallbackQueries(question) {
		if len(queries) >= minQueries {
			break
		}
		if !containsFold(queries, fb) {
			queries = append(queries, fb)
		}
	}
	return queries, false
}

// fallbackQueries is the deterministic query set used when the completer is
// unavailable. Order matters: tests and retries reproduce it exactly.
func fallbackQueries(question types.ResearchQuestion) []string {
	return []string{
		question.Text,
		question.Text + " guide",
		question.Text + " implementation",
		question.Text + " comparison",
		question.Text + " best practices",
	}
}

// runQueries executes searches concurrently, staggered by delay, merging
// results into merged keyed by URL (higher score wins). A query whose retries
// are exhausted contributes nothing; only context cancellation is an error.
func (s *Supervisor) runQueries(ctx context.Context, queries []string, delay time.Duration, merged map[string]types.CitationResult) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)

	for i, query := range queries {
		wait := time.Duration(i) * delay
		g.Go(func() error {
			if wait > 0 {
				timer := time.NewTimer(wait)
				defer timer.Stop()
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-timer.C:
				}
			}

			results, err := s.searchWithRetry(gctx, query)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("search exhausted retries", zap.String("query", query), zap.Error(err))
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, c := range results {
				prev, seen := merged[c.URL]
				if !seen || c.RelevanceScore > prev.RelevanceScore {
					merged[c.URL] = c
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// searchWithRetry wraps one search call in exponential backoff.
func (s *Supervisor) searchWithRetry(ctx context.Context, query string) ([]types.CitationResult, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = SearchRetryInterval
	return backoff.Retry(ctx, func() ([]types.CitationResult, error) {
		return s.searcher.Search(ctx, query)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(searchAttempts))
}

func flatten(merged map[string]types.CitationResult) []types.CitationResult {
	out := make([]types.CitationResult, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
