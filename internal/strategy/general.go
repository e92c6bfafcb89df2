// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package strategy

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/pdiddy/deep-research/internal/chunker"
	"github.com/pdiddy/deep-research/internal/provider"
	"github.com/pdiddy/deep-research/pkg/types"
)

// insightPromptTmpl asks the model to distill evidence into one insight.
var insightPromptTmpl = template.Must(template.New("insight").Parse(
	`You are a research analyst. Answer the research question below using only the evidence provided.
Write one dense, well-structured insight of 2-4 paragraphs. Cite sources inline as (host).

Research question: {{.Question}}

Evidence:
{{.Evidence}}`))

// criticalAreasPromptTmpl asks for under-covered areas worth a deep dive.
var criticalAreasPromptTmpl = template.Must(template.New("areas").Parse(
	`A research session about "{{.Query}}" has covered these questions:
{{.Questions}}

Name 2-4 critical areas that remain under-covered and deserve deeper research.
Respond with one area per line, each prefixed with "Q:". No other text.`))

// deepQuestionsPromptTmpl asks for follow-up questions within one area.
var deepQuestionsPromptTmpl = template.Must(template.New("deep").Parse(
	`Research topic: {{.Query}}
Critical area: {{.Area}}

Generate 2-3 specific follow-up research questions for this area.
Respond with one question per line, each prefixed with "Q:". No other text.`))

// synthesisPromptTmpl merges per-question insights into one narrative.
var synthesisPromptTmpl = template.Must(template.New("synthesis").Parse(
	`Merge the research insights below into one coherent knowledge synthesis about "{{.Query}}".
Deduplicate overlapping points, resolve ordering, keep all substantive findings.

{{.Insights}}`))

// reportPromptTmpl writes the final long-form report.
var reportPromptTmpl = template.Must(template.New("report").Parse(
	`Write a long-form research report about "{{.Query}}" from the knowledge synthesis below.
Structure it with an executive summary, an overview, detailed findings, and a conclusion.
Use Markdown headings.

Synthesis:
{{.Synthesis}}`))

// General is the default strategy: domain-neutral prompts and heuristics.
type General struct {
	// Completer is the LLM collaborator. Nil forces every fallback path,
	// which is a supported mode.
	Completer provider.Completer
}

// NewGeneral builds the general-purpose strategy.
func NewGeneral(completer provider.Completer) *General {
	return &General{Completer: completer}
}

// Name identifies the variant.
func (g *General) Name() string { return "general" }

// complete runs one collaborator call, tolerating a nil completer.
func (g *General) complete(ctx context.Context, prompt string, kind provider.OutputKind) (string, error) {
	if g.Completer == nil {
		return "", &types.CollaboratorError{Op: "complete", Err: fmt.Errorf("no completer configured")}
	}
	return g.Completer.Complete(ctx, prompt, kind)
}

// EnhanceCitations boosts citations from preferred domains and stamps the
// enhancing strategy into metadata. Scores stay clamped.
func (g *General) EnhanceCitations(question types.ResearchQuestion, citations []types.CitationResult, cfg types.ResearchConfig) []types.CitationResult {
	for i := range citations {
		c := &citations[i]
		for _, d := range cfg.PreferredDomains {
			if strings.EqualFold(c.Domain, d) {
				c.RelevanceScore = types.ClampScore(c.RelevanceScore + 0.1)
				break
			}
		}
		if c.Metadata == nil {
			c.Metadata = map[string]string{}
		}
		c.Metadata["enhanced_by"] = g.Name()
	}
	return citations
}

// GenerateInsights distills a question's evidence into insight text. On
// collaborator failure it falls back to a deterministic evidence summary.
func (g *General) GenerateInsights(ctx context.Context, question types.ResearchQuestion, evidence []types.CitationResult) (string, bool) {
	prompt := renderTemplate(insightPromptTmpl, map[string]string{
		"Question": question.Text,
		"Evidence": chunker.CompressPrompt(formatEvidence(evidence), 4000),
	})
	if text, err := g.complete(ctx, prompt, provider.OutputInsight); err == nil {
		return text, false
	}
	return fallbackInsight(question, evidence), true
}

// IdentifyCriticalAreas asks the collaborator for under-covered areas; on
// failure it derives them from category coverage, then static defaults.
func (g *General) IdentifyCriticalAreas(ctx context.Context, query string, questions []types.ResearchQuestion) ([]string, bool) {
	var lines []string
	for _, q := range questions {
		lines = append(lines, "- ["+q.Category+"] "+q.Text)
	}
	prompt := renderTemplate(criticalAreasPromptTmpl, map[string]string{
		"Query":     query,
		"Questions": strings.Join(lines, "\n"),
	})
	if text, err := g.complete(ctx, prompt, provider.OutputQuestions); err == nil {
		if areas := ParseDirectives(text); len(areas) > 0 {
			if len(areas) > 4 {
				areas = areas[:4]
			}
			return areas, false
		}
	}
	return fallbackCriticalAreas(questions), true
}

// GenerateDeepQuestions produces follow-up questions for one critical area.
// Fallback questions come from fixed templates over the area name.
func (g *General) GenerateDeepQuestions(ctx context.Context, query, area string) ([]types.ResearchQuestion, bool) {
	prompt := renderTemplate(deepQuestionsPromptTmpl, map[string]string{
		"Query": query,
		"Area":  area,
	})
	if text, err := g.complete(ctx, prompt, provider.OutputQuestions); err == nil {
		if directives := ParseDirectives(text); len(directives) > 0 {
			if len(directives) > 3 {
				directives = directives[:3]
			}
			qs := make([]types.ResearchQuestion, 0, len(directives))
			for _, d := range directives {
				qs = append(qs, types.NewQuestion(d, area, types.PriorityMedium))
			}
			return qs, false
		}
	}
	return []types.ResearchQuestion{
		types.NewQuestion(fmt.Sprintf("What are the key aspects of %s in %s?", area, query), area, types.PriorityMedium),
		types.NewQuestion(fmt.Sprintf("What challenges does %s present for %s?", area, query), area, types.PriorityMedium),
	}, true
}

// AnalyzeCrossReferences links concepts through question adjacency (two or
// more shared keywords) and shared citations across questions. Output is
// deterministic: keys and neighbor lists are sorted.
func (g *General) AnalyzeCrossReferences(questions []types.ResearchQuestion, evidence map[string][]types.CitationResult) map[string][]string {
	related := make(map[string]map[string]bool)
	link := func(a, b string) {
		if a == b {
			return
		}
		if related[a] == nil {
			related[a] = make(map[string]bool)
		}
		if related[b] == nil {
			related[b] = make(map[string]bool)
		}
		related[a][b] = true
		related[b][a] = true
	}

	for i := 0; i < len(questions); i++ {
		for j := i + 1; j < len(questions); j++ {
			qa, qb := questions[i], questions[j]

			shared := sharedOf(qa.Keywords, qb.Keywords)
			if len(shared) >= 2 {
				for x := 0; x < len(shared); x++ {
					for y := x + 1; y < len(shared); y++ {
						link(shared[x], shared[y])
					}
				}
			}

			// Citation sharing: the same URL answering two questions ties
			// their leading keywords together.
			if len(shared) < 2 && sharesCitation(evidence[qa.Key()], evidence[qb.Key()]) {
				if len(qa.Keywords) > 0 && len(qb.Keywords) > 0 {
					link(qa.Keywords[0], qb.Keywords[0])
				}
			}
		}
	}

	graph := make(map[string][]string, len(related))
	for concept, neighbors := range related {
		list := make([]string, 0, len(neighbors))
		for n := range neighbors {
			list = append(list, n)
		}
		sort.Strings(list)
		graph[concept] = list
	}
	return graph
}

// antonymPairs are opposite-polarity word pairs used by the inconsistency
// scan. The mechanism is a heuristic: it flags candidates for a reader, it
// does not prove contradiction.
var antonymPairs = [][2]string{
	{"increases", "decreases"},
	{"faster", "slower"},
	{"better", "worse"},
	{"secure", "insecure"},
	{"stable", "unstable"},
	{"improves", "degrades"},
	{"recommended", "deprecated"},
	{"always", "never"},
	{"simple", "complex"},
}

// ValidateConsistency scans insight pairs about overlapping topics for
// opposite-polarity keyword pairs and reports human-readable notes.
func (g *General) ValidateConsistency(questions []types.ResearchQuestion, insights map[string]string) []string {
	byKey := make(map[string]types.ResearchQuestion, len(questions))
	keys := make([]string, 0, len(insights))
	for _, q := range questions {
		if _, ok := insights[q.Key()]; ok {
			byKey[q.Key()] = q
			keys = append(keys, q.Key())
		}
	}
	sort.Strings(keys)

	var notes []string
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			qa, qb := byKey[keys[i]], byKey[keys[j]]
			if types.SharedKeywords(qa.Keywords, qb.Keywords) == 0 {
				continue
			}
			ia := strings.ToLower(insights[keys[i]])
			ib := strings.ToLower(insights[keys[j]])
			for _, pair := range antonymPairs {
				if (strings.Contains(ia, pair[0]) && strings.Contains(ib, pair[1])) ||
					(strings.Contains(ia, pair[1]) && strings.Contains(ib, pair[0])) {
					notes = append(notes, fmt.Sprintf(
						"possible contradiction between %q and %q: %s vs %s",
						qa.Text, qb.Text, pair[0], pair[1]))
					break
				}
			}
		}
	}
	return notes
}

// SynthesizeKnowledge merges all insights into one narrative. The fallback
// groups insights by question category under headers.
func (g *General) SynthesizeKnowledge(ctx context.Context, query string, questions []types.ResearchQuestion, insights map[string]string) (string, bool) {
	var b strings.Builder
	for _, q := range questions {
		if ins, ok := insights[q.Key()]; ok {
			fmt.Fprintf(&b, "### %s\n%s\n\n", q.Text, ins)
		}
	}
	prompt := renderTemplate(synthesisPromptTmpl, map[string]string{
		"Query":    query,
		"Insights": chunker.CompressPrompt(b.String(), 5000),
	})
	if text, err := g.complete(ctx, prompt, provider.OutputSynthesis); err == nil {
		return text, false
	}
	return FallbackSynthesis(questions, insights), true
}

// GenerateFinalReport writes the long-form report. The fallback wraps the
// synthesis in a fixed report skeleton.
func (g *General) GenerateFinalReport(ctx context.Context, query, synthesis string) (string, bool) {
	prompt := renderTemplate(reportPromptTmpl, map[string]string{
		"Query":     query,
		"Synthesis": chunker.CompressPrompt(synthesis, 5000),
	})
	if text, err := g.complete(ctx, prompt, provider.OutputReport); err == nil {
		return text, false
	}
	return FallbackReport(query, synthesis), true
}

// --- deterministic fallbacks ---

// fallbackInsight summarizes evidence without a collaborator.
func fallbackInsight(question types.ResearchQuestion, evidence []types.CitationResult) string {
	if len(evidence) == 0 {
		return fmt.Sprintf("No usable evidence was gathered for %q. The question remains open.", question.Text)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Research into %q surfaced %d sources across %d domains. Leading findings:\n",
		question.Text, len(evidence), countDomains(evidence))
	limit := 5
	if len(evidence) < limit {
		limit = len(evidence)
	}
	for _, c := range evidence[:limit] {
		line := c.Snippet
		if line == "" {
			line = c.Title
		}
		fmt.Fprintf(&b, "- %s (%s)\n", line, c.Domain)
	}
	return b.String()
}

// fallbackCriticalAreas returns the least-covered question categories, or
// static defaults when category counts give no signal.
func fallbackCriticalAreas(questions []types.ResearchQuestion) []string {
	counts := make(map[string]int)
	for _, q := range questions {
		counts[q.Category]++
	}
	if len(counts) == 0 {
		return []string{"implementation", "limitations", "adoption"}
	}
	type cc struct {
		category string
		n        int
	}
	var all []cc
	for c, n := range counts {
		all = append(all, cc{c, n})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].n != all[j].n {
			return all[i].n < all[j].n
		}
		return all[i].category < all[j].category
	})
	var areas []string
	for _, c := range all {
		areas = append(areas, c.category)
		if len(areas) == 3 {
			break
		}
	}
	return areas
}

// FallbackSynthesis groups insights by question category and concatenates
// them under headers. Used by strategies and the engine's last-resort path.
func FallbackSynthesis(questions []types.ResearchQuestion, insights map[string]string) string {
	byCategory := make(map[string][]string)
	var categories []string
	for _, q := range questions {
		ins, ok := insights[q.Key()]
		if !ok {
			continue
		}
		if _, seen := byCategory[q.Category]; !seen {
			categories = append(categories, q.Category)
		}
		byCategory[q.Category] = append(byCategory[q.Category], ins)
	}

	var b strings.Builder
	for _, cat := range categories {
		fmt.Fprintf(&b, "## %s\n\n", titleCase(cat))
		for _, ins := range byCategory[cat] {
			b.WriteString(ins)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// FallbackReport wraps a synthesis in the fixed report skeleton.
func FallbackReport(query, synthesis string) string {
	if strings.TrimSpace(synthesis) == "" {
		synthesis = "No findings could be synthesized for this session."
	}
	return fmt.Sprintf(`# Research Report: %s

## Executive Summary

This report presents the findings of an automated deep-research session on %q, assembled on %s.

## Overview

The research covered the question from multiple dimensions, gathering and ranking web evidence for each.

## Findings

%s

## Conclusion

The findings above represent the best available synthesis for this session. Sections marked as open indicate areas where evidence was insufficient.
`, query, query, time.Now().UTC().Format("2006-01-02"), synthesis)
}

// --- helpers ---

func renderTemplate(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

func formatEvidence(evidence []types.CitationResult) string {
	var b strings.Builder
	for i, c := range evidence {
		fmt.Fprintf(&b, "[%d] %s (%s, score %.2f)\n%s\n\n", i+1, c.Title, c.Domain, c.RelevanceScore, c.Content)
	}
	return b.String()
}

func countDomains(evidence []types.CitationResult) int {
	seen := make(map[string]bool)
	for _, c := range evidence {
		if c.Domain != "" {
			seen[c.Domain] = true
		}
	}
	return len(seen)
}

func sharedOf(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	var shared []string
	for _, k := range b {
		if set[k] {
			shared = append(shared, k)
		}
	}
	sort.Strings(shared)
	return shared
}

func sharesCitation(a, b []types.CitationResult) bool {
	urls := make(map[string]bool, len(a))
	for _, c := range a {
		urls[c.URL] = true
	}
	for _, c := range b {
		if urls[c.URL] {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "-", " "))
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
