// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synthesis merges per-question insight sections into one coherent
// narrative. Merging is hierarchical: sections are grouped by theme, each
// group is condensed with a single completion call, and the groups are then
// emitted in a fixed reading order. Every collaborator call has a
// deterministic concatenation fallback, so synthesis never fails.
package synthesis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/chunker"
	"github.com/pdiddy/deep-research/internal/provider"
)

// Section is one titled unit of synthesized input, typically the insight for
// a single research question.
type Section struct {
	Title string
	Body  string
}

// groupOrder is the fixed emission order. Themes outside this list follow,
// sorted alphabetically.
var groupOrder = []string{"overview", "architecture", "implementation", "examples", "performance", "security", "analysis"}

// groupHeadings maps themes to the headings that introduce them.
var groupHeadings = map[string]string{
	"overview":       "## Overview",
	"architecture":   "## Architecture and Design",
	"implementation": "## Implementation",
	"examples":       "## Examples and Case Studies",
	"performance":    "## Performance",
	"security":       "## Security",
	"analysis":       "## Analysis",
	"general":        "## Further Findings",
}

// overviewMarkers and analysisMarkers classify sections into the two themes
// the chunker vocabulary does not know.
var (
	overviewMarkers = []string{"overview", "introduction", "fundamentals", "what is", "definition", "history", "background"}
	analysisMarkers = []string{"analysis", "comparison", "versus", "tradeoff", "trade-off", "evaluation", "challenges", "limitations", "trends"}
)

var mergeTmpl = template.Must(template.New("merge").Parse(
	`Merge the following research notes on the theme "{{.Theme}}" into a single
coherent passage. Preserve concrete facts and figures. Do not invent content.

{{.Notes}}`))

var coherenceTmpl = template.Must(template.New("coherence").Parse(
	`Rewrite the following research synthesis so it reads as one continuous
document. Keep every heading and every fact; only smooth the transitions.

{{.Text}}`))

// coherenceThreshold is the token estimate above which the merged document
// gets a smoothing pass.
const coherenceThreshold = 1000

// Synthesizer condenses sections through a completion provider.
type Synthesizer struct {
	completer provider.Completer
	log       *zap.Logger
}

// New creates a synthesizer. A nil logger disables logging.
func New(completer provider.Completer, log *zap.Logger) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{completer: completer, log: log}
}

// Synthesize merges sections into one document. The returned bool reports
// whether any merge fell back to plain concatenation.
func (s *Synthesizer) Synthesize(ctx context.Context, sections []Section) (string, bool) {
	if len(sections) == 0 {
		return "", false
	}

	groups := make(map[string][]Section)
	for _, sec := range sections {
		theme := classifySection(sec)
		groups[theme] = append(groups[theme], sec)
	}

	fellBack := false
	var parts []string
	for _, theme := range emissionOrder(groups) {
		merged, fb := s.mergeGroup(ctx, theme, groups[theme])
		fellBack = fellBack || fb
		heading, ok := groupHeadings[theme]
		if !ok {
			heading = "## " + titleWords(theme)
		}
		parts = append(parts, heading+"\n\n"+merged)
	}
	doc := strings.Join(parts, "\n\n")

	if chunker.EstimateTokens(doc) > coherenceThreshold {
		smoothed, fb := s.coherencePass(ctx, doc)
		fellBack = fellBack || fb
		doc = smoothed
	}
	return doc, fellBack
}

// classifySection picks a theme for a section: the synthesis-level markers
// first, the chunker vocabulary otherwise.
func classifySection(sec Section) string {
	low := strings.ToLower(sec.Title)
	for _, m := range overviewMarkers {
		if strings.Contains(low, m) {
			return "overview"
		}
	}
	for _, m := range analysisMarkers {
		if strings.Contains(low, m) {
			return "analysis"
		}
	}
	return chunker.ClassifyTheme(sec.Title, sec.Body)
}

// emissionOrder returns present themes in the fixed order, then the rest
// alphabetically.
func emissionOrder(groups map[string][]Section) []string {
	var out []string
	known := make(map[string]bool)
	for _, theme := range groupOrder {
		known[theme] = true
		if _, ok := groups[theme]; ok {
			out = append(out, theme)
		}
	}
	var rest []string
	for theme := range groups {
		if !known[theme] {
			rest = append(rest, theme)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// mergeGroup condenses one theme's sections. A single section passes through
// untouched; multiple sections go through one completion call with the
// concatenation as fallback.
func (s *Synthesizer) mergeGroup(ctx context.Context, theme string, sections []Section) (string, bool) {
	if len(sections) == 1 {
		return sections[0].Body, false
	}

	concat := concatSections(sections)

	var prompt strings.Builder
	err := mergeTmpl.Execute(&prompt, struct {
		Theme string
		Notes string
	}{Theme: theme, Notes: concat})
	if err != nil {
		return concat, true
	}

	budget := chunker.DefaultTokenLimit - chunker.ResponseReserve
	merged, err := s.completer.Complete(ctx, chunker.CompressPrompt(prompt.String(), budget), provider.OutputSynthesis)
	if err != nil || strings.TrimSpace(merged) == "" {
		s.log.Warn("group merge fell back to concatenation", zap.String("theme", theme), zap.Error(err))
		return concat, true
	}
	return merged, false
}

// coherencePass smooths the full document, keeping the unsmoothed text on
// failure.
func (s *Synthesizer) coherencePass(ctx context.Context, doc string) (string, bool) {
	var prompt strings.Builder
	if err := coherenceTmpl.Execute(&prompt, struct{ Text string }{Text: doc}); err != nil {
		return doc, true
	}

	budget := chunker.DefaultTokenLimit - chunker.ResponseReserve
	smoothed, err := s.completer.Complete(ctx, chunker.CompressPrompt(prompt.String(), budget), provider.OutputSynthesis)
	if err != nil || strings.TrimSpace(smoothed) == "" {
		s.log.Warn("coherence pass skipped", zap.Error(err))
		return doc, true
	}
	return smoothed, false
}

// concatSections is the deterministic fallback rendering of a group.
func concatSections(sections []Section) string {
	parts := make([]string, len(sections))
	for i, sec := range sections {
		parts[i] = fmt.Sprintf("### %s\n\n%s", sec.Title, sec.Body)
	}
	return strings.Join(parts, "\n\n")
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
