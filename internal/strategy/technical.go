// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/deep-research/internal/provider"
	"github.com/pdiddy/deep-research/pkg/types"
)

// technicalVocabulary earns a citation a score boost per distinct hit.
var technicalVocabulary = []string{
	"implementation", "benchmark", "architecture", "algorithm", "protocol",
	"throughput", "latency", "concurrency", "distributed", "replication",
	"consistency", "compiler", "runtime", "profiling",
}

// authoritativeDomains are engineering sources whose citations get a flat
// boost.
var authoritativeDomains = map[string]bool{
	"github.com":        true,
	"stackoverflow.com": true,
	"arxiv.org":         true,
	"doi.org":           true,
	"acm.org":           true,
	"ieee.org":          true,
	"kernel.org":        true,
	"golang.org":        true,
	"go.dev":            true,
}

// Technical biases research toward implementation detail: it boosts
// citations carrying technical vocabulary or coming from authoritative
// engineering domains, and steers deep dives at implementation and
// performance. Everything else delegates to the general strategy.
type Technical struct {
	General
}

// NewTechnical builds the technical strategy variant.
func NewTechnical(completer provider.Completer) *Technical {
	return &Technical{General: General{Completer: completer}}
}

// Name identifies the variant.
func (t *Technical) Name() string { return "technical" }

// EnhanceCitations applies the general enhancement, then technical-term and
// authoritative-domain boosts. Scores stay clamped to [0,1].
func (t *Technical) EnhanceCitations(question types.ResearchQuestion, citations []types.CitationResult, cfg types.ResearchConfig) []types.CitationResult {
	citations = t.General.EnhanceCitations(question, citations, cfg)
	for i := range citations {
		c := &citations[i]

		low := strings.ToLower(c.Title + " " + c.Content)
		hits := 0
		for _, term := range technicalVocabulary {
			if strings.Contains(low, term) {
				hits++
			}
		}
		if hits > 3 {
			hits = 3
		}
		boost := float64(hits) * 0.05

		if authoritativeDomains[c.Domain] {
			boost += 0.1
		}

		if boost > 0 {
			c.RelevanceScore = types.ClampScore(c.RelevanceScore + boost)
			c.Metadata["technical_boost"] = fmt.Sprintf("%.2f", boost)
		}
		c.Metadata["enhanced_by"] = t.Name()
	}
	return citations
}

// GenerateDeepQuestions biases fallback follow-ups toward implementation
// and performance angles; the collaborator path is shared with General.
func (t *Technical) GenerateDeepQuestions(ctx context.Context, query, area string) ([]types.ResearchQuestion, bool) {
	qs, fallback := t.General.GenerateDeepQuestions(ctx, query, area)
	if !fallback {
		return qs, false
	}
	return []types.ResearchQuestion{
		types.NewQuestion(fmt.Sprintf("How is %s implemented in production systems for %s?", area, query), area, types.PriorityHigh),
		types.NewQuestion(fmt.Sprintf("What are the performance characteristics of %s in %s?", area, query), area, types.PriorityMedium),
	}, true
}
