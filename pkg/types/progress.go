// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Phase is one stage of the engine's fixed forward state machine. Phases
// advance strictly in declaration order; there is no skipping and no rewind.
type Phase string

const (
	PhaseInitialAnalysis      Phase = "initial_analysis"
	PhaseMultiDimensional     Phase = "multi_dimensional_research"
	PhaseDeepDive             Phase = "deep_dive"
	PhaseCrossReference       Phase = "cross_reference"
	PhaseSynthesis            Phase = "synthesis"
	PhaseReportGeneration     Phase = "report_generation"
	PhaseDone                 Phase = "done"
)

// Phases lists every phase in execution order.
var Phases = []Phase{
	PhaseInitialAnalysis,
	PhaseMultiDimensional,
	PhaseDeepDive,
	PhaseCrossReference,
	PhaseSynthesis,
	PhaseReportGeneration,
	PhaseDone,
}

// Percent returns the fixed milestone percentage reached when the phase
// completes.
func (p Phase) Percent() int {
	switch p {
	case PhaseInitialAnalysis:
		return 20
	case PhaseMultiDimensional:
		return 50
	case PhaseDeepDive:
		return 75
	case PhaseCrossReference:
		return 85
	case PhaseSynthesis:
		return 90
	case PhaseReportGeneration, PhaseDone:
		return 100
	default:
		return 0
	}
}

// Activity returns the human-readable description shown while the phase runs.
func (p Phase) Activity() string {
	switch p {
	case PhaseInitialAnalysis:
		return "Analyzing the query and generating research questions"
	case PhaseMultiDimensional:
		return "Gathering evidence across research dimensions"
	case PhaseDeepDive:
		return "Deep-diving into critical areas"
	case PhaseCrossReference:
		return "Cross-referencing findings and checking consistency"
	case PhaseSynthesis:
		return "Synthesizing insights into a coherent narrative"
	case PhaseReportGeneration:
		return "Assembling the final report"
	case PhaseDone:
		return "Research complete"
	default:
		return "Starting"
	}
}

// Progress is the externally pollable state of one session. Percentage is
// monotonically non-decreasing and ends at 100.
type Progress struct {
	// SessionID identifies the session this progress belongs to.
	SessionID string `json:"session_id" yaml:"session_id"`

	// Phase is the state-machine stage currently executing.
	Phase Phase `json:"phase" yaml:"phase"`

	// Percentage is the completion estimate in [0,100].
	Percentage int `json:"percentage" yaml:"percentage"`

	// Activity describes what the engine is doing right now.
	Activity string `json:"activity" yaml:"activity"`

	// Completed is set once a Result exists.
	Completed bool `json:"completed" yaml:"completed"`

	// Cancelled is set when the caller requested cancellation.
	Cancelled bool `json:"cancelled" yaml:"cancelled"`

	// Errors accumulates human-readable notes for partial failures. Entries
	// never block completion.
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`

	// StartTime is when the session began.
	StartTime time.Time `json:"start_time" yaml:"start_time"`
}

// Result is the final output of a session. The engine guarantees one is
// produced for every started session, falling back to deterministic
// generators under total collaborator failure.
type Result struct {
	// SessionID identifies the producing session.
	SessionID string `json:"session_id" yaml:"session_id"`

	// Query is the original research query.
	Query string `json:"query" yaml:"query"`

	// Questions lists every question raised, in generation order.
	Questions []ResearchQuestion `json:"questions" yaml:"questions"`

	// Evidence maps question key to its ranked citations.
	Evidence map[string][]CitationResult `json:"evidence" yaml:"evidence"`

	// Insights maps question key to the generated insight text.
	Insights map[string]string `json:"insights" yaml:"insights"`

	// KnowledgeGraph maps a concept to its related concepts.
	KnowledgeGraph map[string][]string `json:"knowledge_graph,omitempty" yaml:"knowledge_graph,omitempty"`

	// Inconsistencies lists detected textual contradictions between insights.
	Inconsistencies []string `json:"inconsistencies,omitempty" yaml:"inconsistencies,omitempty"`

	// Synthesis is the merged knowledge narrative.
	Synthesis string `json:"synthesis" yaml:"synthesis"`

	// Report is the long-form final document.
	Report string `json:"report" yaml:"report"`

	// Duration is the session's wall time.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// FallbackUsed reports whether any deterministic fallback generator ran.
	FallbackUsed bool `json:"fallback_used" yaml:"fallback_used"`
}
