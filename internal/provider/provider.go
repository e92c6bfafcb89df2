// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider defines the collaborator contracts the engine consumes —
// text completion and web search — and ships one concrete adapter for each.
// The core never depends on a concrete provider: every call site retries and
// then falls back, so total provider unavailability still produces a result.
package provider

import (
	"context"

	"github.com/pdiddy/deep-research/pkg/types"
)

// OutputKind hints what a completion will be used for, letting adapters size
// their response budget.
type OutputKind string

const (
	OutputQuestions OutputKind = "questions"
	OutputQueries   OutputKind = "queries"
	OutputInsight   OutputKind = "insight"
	OutputSynthesis OutputKind = "synthesis"
	OutputReport    OutputKind = "report"
)

// MaxTokens returns the response token budget for this output kind.
func (k OutputKind) MaxTokens() int {
	switch k {
	case OutputQuestions, OutputQueries:
		return 1024
	case OutputInsight:
		return 2048
	case OutputSynthesis, OutputReport:
		return 8192
	default:
		return 2048
	}
}

// Completer is the text-completion collaborator. Implementations wrap
// transport failures in types.CollaboratorError.
type Completer interface {
	Complete(ctx context.Context, prompt string, kind OutputKind) (string, error)
}

// Searcher is the web-search collaborator. An empty result slice is a valid
// response; failures are wrapped in types.CollaboratorError.
type Searcher interface {
	Search(ctx context.Context, query string) ([]types.CitationResult, error)
}
