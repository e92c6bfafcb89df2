// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the deep-research engine:
// research questions, citation evidence, session configuration, progress
// reporting, and the error taxonomy.
package types

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Priority ranks a research question for scheduling. Higher-priority
// questions are researched in earlier batches.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank returns a numeric ordering for the priority: high=2, medium=1, low=0.
// Unknown values rank as low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// ResearchQuestion is a single line of inquiry within a session. The text,
// category, and priority are fixed at creation; only the researched flag and
// timestamps change afterwards.
type ResearchQuestion struct {
	// Text is the question itself.
	Text string `json:"text" yaml:"text"`

	// Priority orders the question into research batches.
	Priority Priority `json:"priority" yaml:"priority"`

	// Category is a free-text tag such as "implementation" or "comparative".
	Category string `json:"category" yaml:"category"`

	// Researched reports whether evidence gathering completed for this question.
	Researched bool `json:"researched" yaml:"researched"`

	// CreatedAt is when the question was generated.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// ResearchedAt is when research completed. Zero until then.
	ResearchedAt time.Time `json:"researched_at,omitempty" yaml:"researched_at,omitempty"`

	// Keywords holds the stop-word-filtered tokens of Text, lowercased,
	// derived once at construction.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// Metadata carries opaque annotations attached by strategies.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewQuestion builds a ResearchQuestion with derived keywords and a creation
// timestamp.
func NewQuestion(text, category string, priority Priority) ResearchQuestion {
	return ResearchQuestion{
		Text:      strings.TrimSpace(text),
		Priority:  priority,
		Category:  category,
		CreatedAt: time.Now().UTC(),
		Keywords:  ExtractKeywords(text),
	}
}

// Key returns the identity of the question. Two questions are the same iff
// their keys match: equality is (text, category, priority).
func (q ResearchQuestion) Key() string {
	return strings.ToLower(strings.TrimSpace(q.Text)) + "|" + q.Category + "|" + string(q.Priority)
}

// MarkResearched flips the researched flag and records the completion time.
func (q *ResearchQuestion) MarkResearched(at time.Time) {
	q.Researched = true
	q.ResearchedAt = at.UTC()
}

// MinContentLength is the minimum evidence content length for a citation to
// count as valid.
const MinContentLength = 150

// CitationResult is one scored, sourced piece of evidence retrieved for a
// question.
type CitationResult struct {
	// Title is the source document's title.
	Title string `json:"title" yaml:"title"`

	// Snippet is a short excerpt shown in summaries.
	Snippet string `json:"snippet,omitempty" yaml:"snippet,omitempty"`

	// Content is the retrieved text used for insight generation.
	Content string `json:"content" yaml:"content"`

	// URL is the source location. Required; a citation without a URL is invalid.
	URL string `json:"url" yaml:"url"`

	// RelevanceScore grades the citation in [0,1]. Always store through
	// ClampScore.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// Domain is the host part of URL, derived at construction.
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`

	// RetrievedAt is when the citation was fetched.
	RetrievedAt time.Time `json:"retrieved_at" yaml:"retrieved_at"`

	// Language is the detected content language, if known.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// Metadata carries provider- or strategy-attached annotations.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Valid reports whether the citation is usable as evidence: it must have a
// URL and enough content to ground an insight.
func (c CitationResult) Valid() bool {
	return c.URL != "" && len(c.Content) >= MinContentLength
}

// HostOf extracts the host from a URL string, tolerating bare hosts and
// returning "" for unparseable input.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Host != "" {
		return strings.TrimPrefix(u.Host, "www.")
	}
	// Bare "example.com/path" parses with an empty host.
	if i := strings.IndexAny(raw, "/?#"); i > 0 {
		raw = raw[:i]
	}
	if strings.ContainsRune(raw, '.') && !strings.ContainsRune(raw, ' ') {
		return strings.TrimPrefix(raw, "www.")
	}
	return ""
}

// ClampScore forces a relevance score into [0,1].
func ClampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// stopWords are tokens excluded from keyword derivation.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "about": true,
	"as": true, "at": true, "be": true, "between": true, "but": true,
	"by": true, "can": true, "could": true, "do": true, "does": true,
	"for": true, "from": true, "has": true, "have": true, "how": true,
	"in": true, "into": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "should": true, "such": true,
	"than": true, "that": true, "the": true, "their": true, "there": true,
	"these": true, "this": true, "to": true, "was": true, "were": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "will": true, "with": true, "would": true,
}

// ExtractKeywords tokenizes text, lowercases it, strips punctuation, drops
// stop words and tokens of three characters or fewer, and returns the unique
// remainder sorted. The result is deterministic for identical input.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-')
	})
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len(f) <= 3 || stopWords[f] {
			continue
		}
		seen[f] = true
	}
	keywords := make([]string, 0, len(seen))
	for k := range seen {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}

// SharedKeywords counts keywords present in both sorted slices.
func SharedKeywords(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	n := 0
	for _, k := range b {
		if set[k] {
			n++
		}
	}
	return n
}

// String renders the question for logs.
func (q ResearchQuestion) String() string {
	return fmt.Sprintf("[%s/%s] %s", q.Priority, q.Category, q.Text)
}
