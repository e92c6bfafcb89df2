// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/knowledge"
	"github.com/pdiddy/deep-research/internal/provider"
	"github.com/pdiddy/deep-research/internal/session"
	"github.com/pdiddy/deep-research/internal/strategy"
	"github.com/pdiddy/deep-research/internal/supervisor"
	"github.com/pdiddy/deep-research/pkg/types"
)

func TestMain(m *testing.M) {
	supervisor.SearchDelay = 0
	supervisor.DeepDiveDelay = 0
	supervisor.SearchRetryInterval = time.Millisecond
	os.Exit(m.Run())
}

// scriptedCompleter answers by output kind, the way a healthy provider would.
type scriptedCompleter struct {
	responses map[provider.OutputKind]string
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string, kind provider.OutputKind) (string, error) {
	if r, ok := s.responses[kind]; ok {
		return r, nil
	}
	return "", errors.New("no scripted response")
}

type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, string, provider.OutputKind) (string, error) {
	return "", &types.CollaboratorError{Op: "complete", Err: errors.New("provider unavailable")}
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string) ([]types.CitationResult, error) {
	return nil, &types.CollaboratorError{Op: "search", Err: errors.New("search unavailable")}
}

// richSearcher returns three well-formed citations from distinct hosts.
type richSearcher struct{}

func (richSearcher) Search(_ context.Context, query string) ([]types.CitationResult, error) {
	content := strings.Repeat("Event sourcing stores state as an append-only event log. ", 8)
	return []types.CitationResult{
		{URL: "https://alpha.example.com/es", Title: "Event sourcing explained", Content: content, RelevanceScore: 0.9},
		{URL: "https://beta.example.com/es", Title: "Event sourcing in practice", Content: content, RelevanceScore: 0.8},
		{URL: "https://gamma.example.com/es", Title: "Event sourcing patterns", Content: content, RelevanceScore: 0.7},
	}, nil
}

// gateSearcher serves rich results until it sees a query containing the trip
// word, then blocks until the context is cancelled.
type gateSearcher struct {
	trip    string
	started chan struct{}
	once    sync.Once
}

func (g *gateSearcher) Search(ctx context.Context, query string) ([]types.CitationResult, error) {
	if strings.Contains(strings.ToLower(query), g.trip) {
		g.once.Do(func() { close(g.started) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return richSearcher{}.Search(ctx, query)
}

func testRegistry() *strategy.Registry {
	return strategy.NewRegistry(
		&strategy.General{Completer: nil},
		&strategy.Technical{General: strategy.General{Completer: nil}},
	)
}

func registryWith(c provider.Completer) *strategy.Registry {
	return strategy.NewRegistry(
		&strategy.General{Completer: c},
		&strategy.Technical{General: strategy.General{Completer: c}},
	)
}

func newEngine(t *testing.T, c provider.Completer, s provider.Searcher) *Engine {
	t.Helper()
	e, err := New(Options{
		Completer:  c,
		Searcher:   s,
		Store:      knowledge.Nop{},
		Strategies: registryWith(c),
		Sessions:   session.NewRegistry(time.Hour),
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func waitForResult(t *testing.T, e *Engine, id string) *types.Result {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		r, err := e.GetResult(id)
		if err == nil {
			return r
		}
		if !errors.Is(err, ErrNotReady) {
			t.Fatalf("GetResult: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session did not complete in time")
	return nil
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Searcher: richSearcher{}, Strategies: testRegistry()})
	assert.Error(t, err, "missing completer")

	_, err = New(Options{Completer: failingCompleter{}, Strategies: testRegistry()})
	assert.Error(t, err, "missing searcher")

	_, err = New(Options{Completer: failingCompleter{}, Searcher: richSearcher{}})
	assert.Error(t, err, "missing strategies")
}

func TestStartRejectsEmptyQuery(t *testing.T) {
	e := newEngine(t, failingCompleter{}, failingSearcher{})
	_, err := e.Start("   ", types.UserProfile{}, types.ResearchConfig{})
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	e := newEngine(t, failingCompleter{}, failingSearcher{})
	_, err := e.Start("event sourcing", types.UserProfile{}, types.ResearchConfig{Depth: "bottomless"})
	var cerr *types.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

func TestUnknownSession(t *testing.T) {
	e := newEngine(t, failingCompleter{}, failingSearcher{})
	_, err := e.GetProgress("missing")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = e.GetResult("missing")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.False(t, e.Cancel("missing"))
	assert.False(t, e.RetryQuestion("missing", "key"))
}

func TestSessionCompletesUnderTotalProviderFailure(t *testing.T) {
	e := newEngine(t, failingCompleter{}, failingSearcher{})

	id, err := e.Start("event sourcing", types.UserProfile{}, types.ResearchConfig{
		Depth:     types.DepthBasic,
		BatchSize: 3,
	})
	require.NoError(t, err)

	// Sample progress while the session runs; the percentage must never
	// move backwards.
	var samples []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			p, err := e.GetProgress(id)
			if err != nil {
				return
			}
			samples = append(samples, p.Percentage)
			if p.Completed {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	result := waitForResult(t, e, id)
	<-done

	assert.Equal(t, id, result.SessionID)
	assert.NotEmpty(t, result.Questions, "fallback question set expected")
	assert.NotEmpty(t, strings.TrimSpace(result.Report), "a report must exist even with every provider down")
	assert.NotEmpty(t, strings.TrimSpace(result.Synthesis))
	assert.True(t, result.FallbackUsed)

	for i := 1; i < len(samples); i++ {
		require.GreaterOrEqual(t, samples[i], samples[i-1], "progress went backwards: %v", samples)
	}
	p, err := e.GetProgress(id)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Percentage)
	assert.True(t, p.Completed)
	assert.Equal(t, types.PhaseDone, p.Phase)
}

func TestSessionHappyPath(t *testing.T) {
	questions := strings.Join([]string{
		"QUESTION: What is event sourcing?",
		"QUESTION: What is the history and evolution of event sourcing?",
		"QUESTION: What is the current state of event sourcing adoption?",
		"QUESTION: How does event sourcing compare to CRUD persistence?",
		"QUESTION: How is event sourcing implemented in practice?",
		"QUESTION: What are the main challenges of event sourcing?",
		"QUESTION: What are emerging trends around event sourcing?",
		"QUESTION: What are best practices for event schema design?",
	}, "\n")
	queries := strings.Join([]string{
		"QUERY: event sourcing overview",
		"QUERY: event sourcing design",
		"QUERY: event sourcing tutorial",
		"QUERY: event sourcing pitfalls",
	}, "\n")

	c := &scriptedCompleter{responses: map[provider.OutputKind]string{
		provider.OutputQuestions: questions,
		provider.OutputQueries:   queries,
		provider.OutputInsight:   "The evidence shows event sourcing trades storage for auditability.",
		provider.OutputSynthesis: "Merged synthesis of all findings.",
		provider.OutputReport:    "# Research Report: event sourcing\n\nFull findings.",
	}}
	e := newEngine(t, c, richSearcher{})

	id, err := e.Start("event sourcing", types.UserProfile{}, types.ResearchConfig{Depth: types.DepthBasic})
	require.NoError(t, err)
	result := waitForResult(t, e, id)

	assert.GreaterOrEqual(t, len(result.Questions), 8)
	assert.LessOrEqual(t, len(result.Questions), 24)
	assert.NotEmpty(t, result.Evidence)
	assert.NotEmpty(t, result.Insights)
	assert.Contains(t, result.Report, "Research Report")
	assert.NotEmpty(t, result.KnowledgeGraph)
	assert.False(t, result.FallbackUsed, "healthy providers should not trip fallbacks")
	assert.Greater(t, result.Duration, time.Duration(0))

	// Researched questions carry ranked evidence under the depth cap.
	for key, ev := range result.Evidence {
		assert.LessOrEqual(t, len(ev), types.DepthBasic.EvidenceCap(), "evidence over cap for %s", key)
		for i := 1; i < len(ev); i++ {
			assert.GreaterOrEqual(t, ev[i-1].RelevanceScore, ev[i].RelevanceScore)
		}
	}
}

func TestMaxSourcesCapsSessionEvidence(t *testing.T) {
	e := newEngine(t, failingCompleter{}, richSearcher{})

	id, err := e.Start("event sourcing", types.UserProfile{}, types.ResearchConfig{
		Depth:      types.DepthBasic,
		MaxSources: 1,
	})
	require.NoError(t, err)
	result := waitForResult(t, e, id)

	total := 0
	for _, ev := range result.Evidence {
		total += len(ev)
	}
	assert.Equal(t, 1, total, "session-wide source budget must hold with a healthy searcher")
}

func TestCancelMidResearchKeepsCompletedEvidence(t *testing.T) {
	gate := &gateSearcher{trip: "history", started: make(chan struct{})}
	e := newEngine(t, failingCompleter{}, gate)

	id, err := e.Start("event sourcing", types.UserProfile{}, types.ResearchConfig{
		Depth:     types.DepthBasic,
		BatchSize: 1,
	})
	require.NoError(t, err)

	select {
	case <-gate.started:
	case <-time.After(10 * time.Second):
		t.Fatal("second question never started searching")
	}

	// Result is not ready while a batch is in flight.
	_, err = e.GetResult(id)
	assert.ErrorIs(t, err, ErrNotReady)

	require.True(t, e.Cancel(id))

	result := waitForResult(t, e, id)

	firstKey := types.NewQuestion("What is event sourcing?", "fundamentals", types.PriorityHigh).Key()
	assert.NotEmpty(t, result.Evidence[firstKey], "evidence completed before cancel must survive")
	assert.NotEmpty(t, strings.TrimSpace(result.Report))
	assert.True(t, result.FallbackUsed)

	p, err := e.GetProgress(id)
	require.NoError(t, err)
	assert.True(t, p.Cancelled)
	assert.True(t, p.Completed)
	assert.Equal(t, 100, p.Percentage)
}

func TestRetryQuestionLifecycle(t *testing.T) {
	e := newEngine(t, failingCompleter{}, failingSearcher{})

	id, err := e.Start("event sourcing", types.UserProfile{}, types.ResearchConfig{Depth: types.DepthBasic})
	require.NoError(t, err)
	waitForResult(t, e, id)

	// Completed sessions no longer accept retries; neither do unknown keys.
	assert.False(t, e.RetryQuestion(id, "no such key"))
	firstKey := types.NewQuestion("What is event sourcing?", "fundamentals", types.PriorityHigh).Key()
	assert.False(t, e.RetryQuestion(id, firstKey))
}

func TestStoreFailuresDoNotBlockCompletion(t *testing.T) {
	e, err := New(Options{
		Completer:  failingCompleter{},
		Searcher:   richSearcher{},
		Store:      brokenStore{},
		Strategies: registryWith(failingCompleter{}),
		Sessions:   session.NewRegistry(time.Hour),
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)

	id, err := e.Start("event sourcing", types.UserProfile{}, types.ResearchConfig{Depth: types.DepthBasic})
	require.NoError(t, err)
	result := waitForResult(t, e, id)
	assert.NotEmpty(t, strings.TrimSpace(result.Report))
}

type brokenStore struct{}

func (brokenStore) UpdateKnowledge(context.Context, types.ResearchQuestion, string, []types.CitationResult) error {
	return errors.New("disk full")
}

func (brokenStore) FindRelatedConcepts(context.Context, string, float64) ([]knowledge.Concept, error) {
	return nil, errors.New("disk full")
}

func (brokenStore) StoreResult(context.Context, types.Result) error {
	return errors.New("disk full")
}
