// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine runs research sessions through the fixed phase pipeline:
// initial analysis, multi-dimensional research, deep dive, cross-reference,
// synthesis, report generation. Every started session produces a Result;
// collaborator failures degrade to deterministic fallbacks, never to a
// missing report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/deep-research/internal/knowledge"
	"github.com/pdiddy/deep-research/internal/provider"
	"github.com/pdiddy/deep-research/internal/session"
	"github.com/pdiddy/deep-research/internal/strategy"
	"github.com/pdiddy/deep-research/internal/supervisor"
	"github.com/pdiddy/deep-research/internal/synthesis"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Sentinel errors for the session API.
var (
	// ErrNoSession is returned for unknown or evicted session ids.
	ErrNoSession = errors.New("no such session")

	// ErrNotReady is returned by GetResult while the session is running.
	ErrNotReady = errors.New("result not ready")
)

// KnowledgeStore is the persistence collaborator. The engine logs its errors
// and continues; knowledge is an accelerator, not a dependency.
type KnowledgeStore interface {
	UpdateKnowledge(ctx context.Context, question types.ResearchQuestion, insight string, evidence []types.CitationResult) error
	FindRelatedConcepts(ctx context.Context, text string, minScore float64) ([]knowledge.Concept, error)
	StoreResult(ctx context.Context, result types.Result) error
}

// Options configures an Engine. Completer, Searcher, and Strategies are
// required; the rest default to no-op or fresh instances.
type Options struct {
	Completer  provider.Completer
	Searcher   provider.Searcher
	Store      KnowledgeStore
	Strategies *strategy.Registry
	Sessions   *session.Registry
	Logger     *zap.Logger
}

// Engine owns the research pipeline. All state is per-instance; two engines
// never share sessions.
type Engine struct {
	completer  provider.Completer
	store      KnowledgeStore
	strategies *strategy.Registry
	sessions   *session.Registry
	sup        *supervisor.Supervisor
	syn        *synthesis.Synthesizer
	log        *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New validates options and builds an engine.
func New(opts Options) (*Engine, error) {
	if opts.Completer == nil {
		return nil, &types.ConfigurationError{Field: "completer", Reason: "required"}
	}
	if opts.Searcher == nil {
		return nil, &types.ConfigurationError{Field: "searcher", Reason: "required"}
	}
	if opts.Strategies == nil {
		return nil, &types.ConfigurationError{Field: "strategies", Reason: "required"}
	}
	if opts.Store == nil {
		opts.Store = knowledge.Nop{}
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewRegistry(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		completer:  opts.Completer,
		store:      opts.Store,
		strategies: opts.Strategies,
		sessions:   opts.Sessions,
		sup:        supervisor.New(opts.Completer, opts.Searcher, opts.Logger),
		syn:        synthesis.New(opts.Completer, opts.Logger),
		log:        opts.Logger,
	}, nil
}

// Close stops the session registry's eviction sweep. Running sessions keep
// running.
func (e *Engine) Close() {
	e.sessions.Close()
}

// Start validates the request, registers a session, and launches the
// pipeline in the background. It returns the session id immediately.
func (e *Engine) Start(query string, profile types.UserProfile, cfg types.ResearchConfig) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", &types.ValidationError{Item: "query", Reason: "must not be empty"}
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	id, h := e.sessions.Create(query, profile, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MaxProcessingTime)
	e.mu.Lock()
	if e.cancels == nil {
		e.cancels = make(map[string]context.CancelFunc)
	}
	e.cancels[id] = cancel
	e.mu.Unlock()

	go e.run(ctx, id, h)
	return id, nil
}

// GetProgress returns the session's current progress snapshot.
func (e *Engine) GetProgress(id string) (types.Progress, error) {
	h, ok := e.sessions.Get(id)
	if !ok {
		return types.Progress{}, ErrNoSession
	}
	return h.Tracker.Snapshot(), nil
}

// GetResult returns the finished result, ErrNotReady while running.
func (e *Engine) GetResult(id string) (*types.Result, error) {
	h, ok := e.sessions.Get(id)
	if !ok {
		return nil, ErrNoSession
	}
	r := h.Result()
	if r == nil {
		return nil, ErrNotReady
	}
	return r, nil
}

// Cancel requests cancellation of a running session. It reports whether the
// request landed on a session that was still running. The session finalizes
// a partial result from whatever evidence it has.
func (e *Engine) Cancel(id string) bool {
	h, ok := e.sessions.Get(id)
	if !ok || h.Tracker.Completed() {
		return false
	}
	h.Tracker.Cancel()
	e.mu.Lock()
	cancel := e.cancels[id]
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

// RetryQuestion re-researches a single question of a running session without
// rewinding the phase. It reports whether the retry was scheduled.
func (e *Engine) RetryQuestion(id, questionKey string) bool {
	h, ok := e.sessions.Get(id)
	if !ok || h.Tracker.Completed() || h.Tracker.Cancelled() {
		return false
	}
	q, ok := h.Context.Question(questionKey)
	if !ok {
		return false
	}

	go func() {
		cfg := h.Context.Config()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.BatchTimeout)
		defer cancel()
		strat := e.strategies.Select(h.Context.Profile(), h.Context.Query())
		e.researchQuestion(ctx, h, strat, q, false, nil)
	}()
	return true
}

// releaseCancel drops the session's cancel func once the run finishes.
func (e *Engine) releaseCancel(id string) {
	e.mu.Lock()
	cancel := e.cancels[id]
	delete(e.cancels, id)
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run executes the phase pipeline for one session. Phases advance strictly
// forward; cancellation is honored at phase boundaries and the session still
// finalizes a result from what it gathered.
func (e *Engine) run(ctx context.Context, id string, h *session.Handle) {
	defer e.releaseCancel(id)

	log := e.log.With(zap.String("session", id))
	strat := e.strategies.Select(h.Context.Profile(), h.Context.Query())
	log.Info("session started", zap.String("query", h.Context.Query()), zap.String("strategy", strat.Name()))

	var fellBack atomic.Bool

	// INITIAL_ANALYSIS
	h.Tracker.EnterPhase(types.PhaseInitialAnalysis)
	e.generateQuestions(ctx, h, &fellBack)
	h.Tracker.CompletePhase(types.PhaseInitialAnalysis)

	// MULTI_DIMENSIONAL_RESEARCH
	if !e.interrupted(ctx, h) {
		h.Tracker.EnterPhase(types.PhaseMultiDimensional)
		e.researchBatches(ctx, h, strat, unresearched(h.Context.Questions()), false, &fellBack)
		h.Tracker.CompletePhase(types.PhaseMultiDimensional)
	}

	// DEEP_DIVE
	if !e.interrupted(ctx, h) {
		h.Tracker.EnterPhase(types.PhaseDeepDive)
		e.deepDive(ctx, h, strat, &fellBack)
		h.Tracker.CompletePhase(types.PhaseDeepDive)
	}

	// CROSS_REFERENCE
	if !e.interrupted(ctx, h) {
		h.Tracker.EnterPhase(types.PhaseCrossReference)
		e.crossReference(h, strat)
		h.Tracker.CompletePhase(types.PhaseCrossReference)
	}

	// SYNTHESIS
	var doc string
	if !e.interrupted(ctx, h) {
		h.Tracker.EnterPhase(types.PhaseSynthesis)
		var fb bool
		doc, fb = e.synthesize(ctx, h, strat)
		if fb {
			fellBack.Store(true)
		}
		h.Tracker.CompletePhase(types.PhaseSynthesis)
	} else {
		doc = strategy.FallbackSynthesis(h.Context.Questions(), h.Context.Insights())
		fellBack.Store(true)
	}

	// REPORT_GENERATION
	var report string
	if !e.interrupted(ctx, h) {
		h.Tracker.EnterPhase(types.PhaseReportGeneration)
		var fb bool
		report, fb = strat.GenerateFinalReport(ctx, h.Context.Query(), doc)
		if fb {
			fellBack.Store(true)
		}
	} else {
		report = strategy.FallbackReport(h.Context.Query(), doc)
		fellBack.Store(true)
	}

	result := &types.Result{
		SessionID:       id,
		Query:           h.Context.Query(),
		Questions:       h.Context.Questions(),
		Evidence:        h.Context.AllEvidence(),
		Insights:        h.Context.Insights(),
		KnowledgeGraph:  h.Context.KnowledgeGraph(),
		Inconsistencies: h.Context.Inconsistencies(),
		Synthesis:       doc,
		Report:          report,
		Duration:        time.Since(h.Context.StartTime()),
		FallbackUsed:    fellBack.Load(),
	}

	// Archive best-effort; a dead store never blocks the result.
	storeCtx, storeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := e.store.StoreResult(storeCtx, *result); err != nil {
		log.Warn("storing result failed", zap.Error(err))
	}
	storeCancel()

	h.SetResult(result, time.Now())
	h.Tracker.Complete()
	log.Info("session finished",
		zap.Int("questions", len(result.Questions)),
		zap.Int("insights", len(result.Insights)),
		zap.Bool("fallback", result.FallbackUsed),
		zap.Duration("duration", result.Duration))
}

// interrupted reports whether the session should stop starting new work.
func (e *Engine) interrupted(ctx context.Context, h *session.Handle) bool {
	return ctx.Err() != nil || h.Tracker.Cancelled()
}

// questionCategories is the fixed dimension set for initial analysis.
var questionCategories = []string{
	"fundamentals", "history", "current state", "comparison",
	"implementation", "challenges", "trends", "best practices",
}

var questionTmpl = template.Must(template.New("questions").Parse(
	`Generate 8 to 12 research questions for the topic below, covering these
dimensions: {{.Categories}}.
Topic: {{.Query}}
{{if .Related}}Related concepts from earlier research: {{.Related}}.
{{end}}
Write one question per line, each prefixed with "QUESTION:". No other text.`))

// generateQuestions populates the session's initial question set, honoring
// MaxQuestions. Provider failure degrades to the canned template set.
func (e *Engine) generateQuestions(ctx context.Context, h *session.Handle, fellBack *atomic.Bool) {
	query := h.Context.Query()
	cfg := h.Context.Config()

	var related []string
	concepts, err := e.store.FindRelatedConcepts(ctx, query, 0.5)
	if err != nil {
		e.log.Warn("related-concept lookup failed", zap.Error(err))
	}
	for _, c := range concepts {
		related = append(related, c.Name)
	}
	if len(related) > 5 {
		related = related[:5]
	}

	texts := e.askForQuestions(ctx, query, related, fellBack)
	for _, text := range texts {
		if len(h.Context.Questions()) >= cfg.MaxQuestions {
			break
		}
		h.Context.AddQuestion(types.NewQuestion(text, inferCategory(text), inferPriority(text)))
	}
	h.Tracker.SetActivity(fmt.Sprintf("Generated %d research questions", len(h.Context.Questions())))
}

func (e *Engine) askForQuestions(ctx context.Context, query string, related []string, fellBack *atomic.Bool) []string {
	var prompt strings.Builder
	err := questionTmpl.Execute(&prompt, struct {
		Query      string
		Categories string
		Related    string
	}{Query: query, Categories: strings.Join(questionCategories, ", "), Related: strings.Join(related, ", ")})
	if err == nil {
		raw, cerr := e.completer.Complete(ctx, prompt.String(), provider.OutputQuestions)
		if cerr == nil {
			if texts := strategy.ParseDirectives(raw); len(texts) > 0 {
				if len(texts) > 12 {
					texts = texts[:12]
				}
				if len(texts) >= 8 {
					return texts
				}
				// Thin response: keep it and top up from the canned set.
				for _, fb := range fallbackQuestionTexts(query) {
					if len(texts) >= 8 {
						break
					}
					texts = append(texts, fb)
				}
				return texts
			}
		} else {
			e.log.Warn("question generation failed", zap.Error(cerr))
		}
	}
	fellBack.Store(true)
	return fallbackQuestionTexts(query)
}

// fallbackQuestionTexts is the canned question set used under provider
// failure. Deduplication in the session context absorbs repeats.
func fallbackQuestionTexts(query string) []string {
	return []string{
		fmt.Sprintf("What is %s?", query),
		fmt.Sprintf("What is the history and evolution of %s?", query),
		fmt.Sprintf("What is the current state of %s?", query),
		fmt.Sprintf("How does %s compare to alternatives?", query),
		fmt.Sprintf("How is %s implemented in practice?", query),
		fmt.Sprintf("What are the main challenges and limitations of %s?", query),
	}
}

// categoryMarkers classifies generated question text into a dimension.
var categoryMarkers = []struct {
	category string
	markers  []string
}{
	{"history", []string{"history", "evolution", "evolved", "origin"}},
	{"comparison", []string{"compare", "comparison", "versus", "alternative", "differ"}},
	{"implementation", []string{"implement", "how is", "how does", "how to", "in practice", "built"}},
	{"challenges", []string{"challenge", "limitation", "drawback", "risk", "problem"}},
	{"trends", []string{"trend", "future", "emerging", "next"}},
	{"best practices", []string{"best practice", "recommended", "guideline"}},
	{"current state", []string{"current state", "state of", "today", "adoption"}},
}

func inferCategory(text string) string {
	low := strings.ToLower(text)
	for _, cm := range categoryMarkers {
		for _, m := range cm.markers {
			if strings.Contains(low, m) {
				return cm.category
			}
		}
	}
	return "fundamentals"
}

// inferPriority ranks definitional and how-to questions highest: they anchor
// everything downstream.
func inferPriority(text string) types.Priority {
	low := strings.ToLower(text)
	if strings.HasPrefix(low, "what is") || strings.HasPrefix(low, "what are") || strings.HasPrefix(low, "how ") {
		return types.PriorityHigh
	}
	return types.PriorityMedium
}

// unresearched filters to questions without evidence yet.
func unresearched(questions []types.ResearchQuestion) []types.ResearchQuestion {
	out := make([]types.ResearchQuestion, 0, len(questions))
	for _, q := range questions {
		if !q.Researched {
			out = append(out, q)
		}
	}
	return out
}

// researchBatches runs questions in priority-ordered batches of BatchSize.
// Each batch shares a timeout; a timed-out or failed question becomes a
// progress note, not a session failure.
func (e *Engine) researchBatches(ctx context.Context, h *session.Handle, strat strategy.Strategy, questions []types.ResearchQuestion, deep bool, fellBack *atomic.Bool) {
	cfg := h.Context.Config()

	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Priority.Rank() > questions[j].Priority.Rank()
	})

	for start := 0; start < len(questions); start += cfg.BatchSize {
		if e.interrupted(ctx, h) {
			return
		}
		end := start + cfg.BatchSize
		if end > len(questions) {
			end = len(questions)
		}
		batch := questions[start:end]
		h.Tracker.SetActivity(fmt.Sprintf("Researching questions %d-%d of %d", start+1, end, len(questions)))

		bctx, bcancel := context.WithTimeout(ctx, cfg.BatchTimeout)
		g, gctx := errgroup.WithContext(bctx)
		for _, q := range batch {
			g.Go(func() error {
				e.researchQuestion(gctx, h, strat, q, deep, fellBack)
				return nil
			})
		}
		_ = g.Wait()
		bcancel()
	}
}

// researchQuestion gathers, enhances, and summarizes evidence for one
// question, then feeds the knowledge store.
func (e *Engine) researchQuestion(ctx context.Context, h *session.Handle, strat strategy.Strategy, q types.ResearchQuestion, deep bool, fellBack *atomic.Bool) {
	cfg := h.Context.Config()

	var evidence []types.CitationResult
	var fb bool
	var err error
	if deep {
		evidence, fb, err = e.sup.DeepDive(ctx, h.Context, q)
	} else {
		evidence, fb, err = e.sup.Research(ctx, h.Context, q)
	}
	if fb && fellBack != nil {
		fellBack.Store(true)
	}
	if err != nil {
		h.Tracker.AddError(fmt.Sprintf("question %q: %v", q.Text, err))
		if len(evidence) == 0 {
			return
		}
		// Partial evidence from a cancelled batch is still worth keeping.
	}

	evidence = strat.EnhanceCitations(q, evidence, cfg)
	evidence = h.Context.SetEvidence(q.Key(), evidence)

	insight, ifb := strat.GenerateInsights(ctx, q, evidence)
	if ifb && fellBack != nil {
		fellBack.Store(true)
	}
	h.Context.SetInsight(q.Key(), insight)
	h.Context.MarkResearched(q.Key(), time.Now().UTC())

	if uerr := e.store.UpdateKnowledge(ctx, q, insight, evidence); uerr != nil {
		e.log.Warn("knowledge update failed", zap.String("question", q.Text), zap.Error(uerr))
	}
}

// maxDeepDiveAreas bounds the deep-dive fan-out.
const maxDeepDiveAreas = 3

// deepDive asks the strategy for critical areas, generates follow-up
// questions, and researches the new ones with deep-dive pacing.
func (e *Engine) deepDive(ctx context.Context, h *session.Handle, strat strategy.Strategy, fellBack *atomic.Bool) {
	cfg := h.Context.Config()
	query := h.Context.Query()

	areas, fb := strat.IdentifyCriticalAreas(ctx, query, h.Context.Questions())
	if fb {
		fellBack.Store(true)
	}
	if len(areas) > maxDeepDiveAreas {
		areas = areas[:maxDeepDiveAreas]
	}

	var fresh []types.ResearchQuestion
	for _, area := range areas {
		qs, qfb := strat.GenerateDeepQuestions(ctx, query, area)
		if qfb {
			fellBack.Store(true)
		}
		for _, q := range qs {
			if len(h.Context.Questions()) >= 2*cfg.MaxQuestions {
				break
			}
			if h.Context.AddQuestion(q) {
				fresh = append(fresh, q)
			}
		}
	}
	if len(fresh) == 0 {
		return
	}
	e.researchBatches(ctx, h, strat, fresh, true, fellBack)
}

// crossReference builds the concept graph and, when enabled, scans insights
// for contradictions.
func (e *Engine) crossReference(h *session.Handle, strat strategy.Strategy) {
	questions := h.Context.Questions()
	graph := strat.AnalyzeCrossReferences(questions, h.Context.AllEvidence())
	h.Context.SetKnowledgeGraph(graph)

	if h.Context.Config().CrossValidation {
		h.Context.AddInconsistencies(strat.ValidateConsistency(questions, h.Context.Insights()))
	}
}

// synthesize merges insights through the hierarchical synthesizer, keeping
// the strategy's category-grouped fallback as the floor.
func (e *Engine) synthesize(ctx context.Context, h *session.Handle, strat strategy.Strategy) (string, bool) {
	questions := h.Context.Questions()
	insights := h.Context.Insights()

	var sections []synthesis.Section
	for _, q := range questions {
		insight, ok := insights[q.Key()]
		if !ok || strings.TrimSpace(insight) == "" {
			continue
		}
		sections = append(sections, synthesis.Section{Title: q.Text, Body: insight})
	}

	doc, fb := e.syn.Synthesize(ctx, sections)
	if strings.TrimSpace(doc) == "" {
		return strategy.FallbackSynthesis(questions, insights), true
	}
	return doc, fb
}
