// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session holds per-request research state: the accumulating
// context, the pollable progress tracker, and the registry that owns active
// sessions and evicts finished ones after a retention window.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Context is the mutable state of one research session. It is additive:
// entries accumulate and nothing is removed before the session ends. All
// methods are safe for concurrent use because the questions of one batch
// write evidence and insights from separate goroutines.
type Context struct {
	sessionID     string
	originalQuery string
	profile       types.UserProfile
	config        types.ResearchConfig
	startTime     time.Time

	mu              sync.RWMutex
	questions       []types.ResearchQuestion
	questionIndex   map[string]int // question key → index in questions
	evidence        map[string][]types.CitationResult
	insights        map[string]string
	knowledgeGraph  map[string][]string
	inconsistencies []string
}

// NewContext creates the state for one session. The config is validated by
// the engine before this point.
func NewContext(sessionID, query string, profile types.UserProfile, cfg types.ResearchConfig) *Context {
	return &Context{
		sessionID:     sessionID,
		originalQuery: query,
		profile:       profile,
		config:        cfg,
		startTime:     time.Now().UTC(),
		questionIndex: make(map[string]int),
		evidence:      make(map[string][]types.CitationResult),
		insights:      make(map[string]string),
	}
}

// SessionID returns the owning session's id.
func (c *Context) SessionID() string { return c.sessionID }

// Query returns the original research query.
func (c *Context) Query() string { return c.originalQuery }

// Profile returns the read-only user profile.
func (c *Context) Profile() types.UserProfile { return c.profile }

// Config returns the session configuration.
func (c *Context) Config() types.ResearchConfig { return c.config }

// StartTime returns when the session began.
func (c *Context) StartTime() time.Time { return c.startTime }

// AddQuestion appends a question unless its (text, category, priority) key
// is already present. It reports whether the question was added.
func (c *Context) AddQuestion(q types.ResearchQuestion) bool {
	if q.Text == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := q.Key()
	if _, exists := c.questionIndex[key]; exists {
		return false
	}
	c.questionIndex[key] = len(c.questions)
	c.questions = append(c.questions, q)
	return true
}

// Questions returns a copy of the question list in insertion order.
func (c *Context) Questions() []types.ResearchQuestion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.ResearchQuestion, len(c.questions))
	copy(out, c.questions)
	return out
}

// Question looks up a question by key.
func (c *Context) Question(key string) (types.ResearchQuestion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.questionIndex[key]
	if !ok {
		return types.ResearchQuestion{}, false
	}
	return c.questions[i], true
}

// MarkResearched flips a question's researched flag.
func (c *Context) MarkResearched(key string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.questionIndex[key]; ok {
		c.questions[i].MarkResearched(at)
	}
}

// SetEvidence stores the ranked evidence for a question, replacing any
// earlier set (a retried question overwrites its previous evidence). The
// session-wide MaxSources budget is enforced here: once the other questions
// hold enough citations, the incoming slice is trimmed from the tail, so
// the best-ranked items survive. It returns a copy of what was kept.
func (c *Context) SetEvidence(key string, evidence []types.CitationResult) []types.CitationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if budget := c.config.MaxSources; budget > 0 {
		used := 0
		for k, v := range c.evidence {
			if k != key {
				used += len(v)
			}
		}
		remaining := budget - used
		if remaining < 0 {
			remaining = 0
		}
		if len(evidence) > remaining {
			evidence = evidence[:remaining]
		}
	}
	c.evidence[key] = evidence
	out := make([]types.CitationResult, len(evidence))
	copy(out, evidence)
	return out
}

// Evidence returns a copy of one question's evidence.
func (c *Context) Evidence(key string) []types.CitationResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.CitationResult, len(c.evidence[key]))
	copy(out, c.evidence[key])
	return out
}

// AllEvidence returns a copy of the evidence map.
func (c *Context) AllEvidence() map[string][]types.CitationResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]types.CitationResult, len(c.evidence))
	for k, v := range c.evidence {
		cp := make([]types.CitationResult, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// EvidenceCount returns the total citations stored across questions.
func (c *Context) EvidenceCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, v := range c.evidence {
		n += len(v)
	}
	return n
}

// SetInsight stores the insight text for a question.
func (c *Context) SetInsight(key, insight string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insights[key] = insight
}

// Insights returns a copy of the insight map.
func (c *Context) Insights() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.insights))
	for k, v := range c.insights {
		out[k] = v
	}
	return out
}

// SetKnowledgeGraph stores the concept-relationship graph.
func (c *Context) SetKnowledgeGraph(graph map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.knowledgeGraph = graph
}

// KnowledgeGraph returns a copy of the concept graph with sorted neighbor
// lists.
func (c *Context) KnowledgeGraph() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.knowledgeGraph))
	for k, v := range c.knowledgeGraph {
		cp := make([]string, len(v))
		copy(cp, v)
		sort.Strings(cp)
		out[k] = cp
	}
	return out
}

// AddInconsistencies appends detected contradictions.
func (c *Context) AddInconsistencies(notes []string) {
	if len(notes) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inconsistencies = append(c.inconsistencies, notes...)
}

// Inconsistencies returns a copy of the recorded contradictions.
func (c *Context) Inconsistencies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.inconsistencies))
	copy(out, c.inconsistencies)
	return out
}
