// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quality filters, ranks, and grades evidence. Everything here is a
// pure function over its inputs: no collaborator calls, no clock, no
// randomness, so results are reproducible and the functions are safe to call
// from concurrent research batches.
package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// sufficientMeanScore is the minimum average relevance for a question's
// evidence to count as sufficient.
const sufficientMeanScore = 0.6

// FilterAndRank reduces raw evidence to the usable, ordered subset for a
// question:
//
//  1. drop invalid citations (no URL or thin content) and items below the
//     configured score floor,
//  2. drop items not relevant to the question by keyword overlap,
//  3. deduplicate by URL, keeping the higher-scored duplicate,
//  4. sort by relevance score descending (stable), and
//  5. truncate to the depth's evidence cap.
//
// The function is idempotent: filtering an already-filtered list with the
// same config returns the same list.
func FilterAndRank(evidence []types.CitationResult, question types.ResearchQuestion, cfg types.ResearchConfig) []types.CitationResult {
	cfg = cfg.WithDefaults()

	kept := make([]types.CitationResult, 0, len(evidence))
	byURL := make(map[string]int)
	for _, c := range evidence {
		if !c.Valid() {
			continue
		}
		if types.ClampScore(c.RelevanceScore) < cfg.MinRelevanceScore {
			continue
		}
		if !Relevant(c, question) {
			continue
		}
		c.RelevanceScore = types.ClampScore(c.RelevanceScore)
		if i, ok := byURL[c.URL]; ok {
			if c.RelevanceScore > kept[i].RelevanceScore {
				kept[i] = c
			}
			continue
		}
		byURL[c.URL] = len(kept)
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].RelevanceScore > kept[j].RelevanceScore
	})

	if limit := cfg.Depth.EvidenceCap(); len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// Relevant reports whether a citation plausibly answers the question. The
// test is keyword overlap: at least two shared words longer than three
// characters. Questions with two or fewer keywords are too generic to gate
// on, so everything passes for them.
func Relevant(c types.CitationResult, question types.ResearchQuestion) bool {
	if len(question.Keywords) <= 2 {
		return true
	}
	text := c.Title + " " + c.Snippet + " " + c.Content
	return types.SharedKeywords(question.Keywords, types.ExtractKeywords(text)) >= 2
}

// IsSufficient reports whether the gathered evidence clears the quality bar
// for a question: enough items for the configured depth, a high enough mean
// score, and sources spread across enough distinct hosts.
func IsSufficient(evidence []types.CitationResult, question types.ResearchQuestion, cfg types.ResearchConfig) bool {
	cfg = cfg.WithDefaults()

	count := len(evidence)
	if count < cfg.Depth.Ordinal()*5+10 {
		return false
	}
	if MeanScore(evidence) < sufficientMeanScore {
		return false
	}

	need := 3
	if count/2 < need {
		need = count / 2
	}
	return count >= 3 && UniqueDomains(evidence) >= need
}

// MeanScore returns the average relevance score, 0 for empty evidence.
func MeanScore(evidence []types.CitationResult) float64 {
	if len(evidence) == 0 {
		return 0
	}
	var sum float64
	for _, c := range evidence {
		sum += types.ClampScore(c.RelevanceScore)
	}
	return sum / float64(len(evidence))
}

// UniqueDomains counts distinct source hosts across the evidence.
func UniqueDomains(evidence []types.CitationResult) int {
	seen := make(map[string]bool)
	for _, c := range evidence {
		d := c.Domain
		if d == "" {
			d = types.HostOf(c.URL)
		}
		if d != "" {
			seen[d] = true
		}
	}
	return len(seen)
}

// Gaps names what is still missing from a question's evidence, driving the
// supervisor's refinement loop. An empty result means no gaps. Output order
// is deterministic.
func Gaps(evidence []types.CitationResult, question types.ResearchQuestion) []string {
	var gaps []string

	if len(evidence) == 0 {
		return []string{"no evidence gathered"}
	}

	if UniqueDomains(evidence) < 3 {
		gaps = append(gaps, "source diversity")
	}

	// Keywords of the question with no coverage anywhere in the evidence.
	covered := make(map[string]bool)
	for _, c := range evidence {
		for _, k := range types.ExtractKeywords(c.Title + " " + c.Content) {
			covered[k] = true
		}
	}
	for _, k := range question.Keywords {
		if !covered[k] {
			gaps = append(gaps, fmt.Sprintf("coverage: %s", k))
		}
	}

	// Thin evidence overall.
	var totalLen int
	for _, c := range evidence {
		totalLen += len(c.Content)
	}
	if totalLen/len(evidence) < 2*types.MinContentLength {
		gaps = append(gaps, "content depth")
	}

	return gaps
}

// GapQuery turns a gap label into a follow-up search query for the question.
func GapQuery(question types.ResearchQuestion, gap string) string {
	switch {
	case gap == "source diversity":
		return question.Text + " alternative perspectives"
	case gap == "content depth":
		return question.Text + " detailed explanation"
	case strings.HasPrefix(gap, "coverage: "):
		return question.Text + " " + strings.TrimPrefix(gap, "coverage: ")
	default:
		return question.Text
	}
}
