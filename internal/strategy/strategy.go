// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package strategy supplies domain-specific research policy: prompt
// construction, citation enhancement, critical-area detection,
// cross-reference analysis, and report writing. Two variants ship: a
// general-purpose strategy and a technical one biased toward implementation
// vocabulary and authoritative engineering sources.
//
// Every collaborator-backed method degrades to a deterministic,
// template-based fallback on failure. That fallback path is the contract:
// a strategy method never returns an error and never blocks a session.
package strategy

import (
	"context"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Strategy is the pluggable policy object driving a research session.
// Collaborator-backed methods report whether their deterministic fallback
// was used.
type Strategy interface {
	// Name identifies the strategy variant.
	Name() string

	// EnhanceCitations adjusts citation scores and metadata in place and
	// returns the slice. Scores stay clamped to [0,1]. Pure.
	EnhanceCitations(question types.ResearchQuestion, citations []types.CitationResult, cfg types.ResearchConfig) []types.CitationResult

	// GenerateInsights produces the insight text for a researched question.
	GenerateInsights(ctx context.Context, question types.ResearchQuestion, evidence []types.CitationResult) (insight string, fallback bool)

	// IdentifyCriticalAreas names under-covered areas worth a deep dive.
	IdentifyCriticalAreas(ctx context.Context, query string, questions []types.ResearchQuestion) (areas []string, fallback bool)

	// GenerateDeepQuestions produces follow-up questions for one area.
	GenerateDeepQuestions(ctx context.Context, query, area string) (qs []types.ResearchQuestion, fallback bool)

	// AnalyzeCrossReferences builds the concept-relationship graph from
	// question adjacency and shared citations. Pure.
	AnalyzeCrossReferences(questions []types.ResearchQuestion, evidence map[string][]types.CitationResult) map[string][]string

	// ValidateConsistency scans insight pairs about overlapping topics for
	// textual contradictions. Pure; the heuristic's precision is best-effort.
	ValidateConsistency(questions []types.ResearchQuestion, insights map[string]string) []string

	// SynthesizeKnowledge merges per-question insights into one narrative.
	SynthesizeKnowledge(ctx context.Context, query string, questions []types.ResearchQuestion, insights map[string]string) (synthesis string, fallback bool)

	// GenerateFinalReport writes the long-form report from the synthesis.
	GenerateFinalReport(ctx context.Context, query, synthesis string) (report string, fallback bool)
}

// Registry holds the available strategies. It is a value injected at
// construction; there is no package-level strategy state.
type Registry struct {
	general   Strategy
	technical Strategy
}

// NewRegistry builds a registry from explicit variants. Either may be nil,
// in which case selection falls through to the other.
func NewRegistry(general, technical Strategy) *Registry {
	return &Registry{general: general, technical: technical}
}

// technicalSignals are query words that select the technical strategy.
var technicalSignals = []string{
	"implementation", "architecture", "performance", "code", "api",
	"framework", "protocol", "database", "kubernetes", "deployment",
	"latency", "concurrency", "compiler", "algorithm",
}

// technicalDomains are user-profile domains that select the technical
// strategy.
var technicalDomains = map[string]bool{
	"software":             true,
	"software-engineering": true,
	"engineering":          true,
	"technology":           true,
	"devops":               true,
}

// Select picks the strategy for a session: technical when the user profile
// or the query vocabulary signals an engineering context, general otherwise.
// Unmatched cases always land on the general variant.
func (r *Registry) Select(profile types.UserProfile, query string) Strategy {
	if r.technical != nil {
		if technicalDomains[strings.ToLower(profile.Domain)] {
			return r.technical
		}
		low := strings.ToLower(query)
		for _, sig := range technicalSignals {
			if strings.Contains(low, sig) {
				return r.technical
			}
		}
	}
	if r.general != nil {
		return r.general
	}
	return r.technical
}
