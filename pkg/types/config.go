// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ResearchDepth selects how much evidence a session gathers per question.
type ResearchDepth string

const (
	DepthBasic         ResearchDepth = "basic"
	DepthStandard      ResearchDepth = "standard"
	DepthComprehensive ResearchDepth = "comprehensive"
	DepthExpert        ResearchDepth = "expert"
)

// Ordinal returns the depth's position: basic=0 … expert=3. Unknown depths
// map to standard.
func (d ResearchDepth) Ordinal() int {
	switch d {
	case DepthBasic:
		return 0
	case DepthStandard:
		return 1
	case DepthComprehensive:
		return 2
	case DepthExpert:
		return 3
	default:
		return 1
	}
}

// EvidenceCap returns the maximum citations kept per question at this depth.
func (d ResearchDepth) EvidenceCap() int {
	switch d {
	case DepthBasic:
		return 8
	case DepthStandard:
		return 15
	case DepthComprehensive:
		return 25
	case DepthExpert:
		return 40
	default:
		return 15
	}
}

// UserProfile describes who is asking, so strategy selection can bias
// toward their domain. Read-only for the session's lifetime.
type UserProfile struct {
	// Domain is the user's field, e.g. "software-engineering".
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`

	// ExpertiseLevel is a coarse grade: beginner, intermediate, expert.
	ExpertiseLevel string `json:"expertise_level,omitempty" yaml:"expertise_level,omitempty"`
}

// ResearchConfig holds per-session settings. Loaded by the CLI (viper) or a
// front end and passed in; the engine never parses configuration itself.
type ResearchConfig struct {
	// Depth selects evidence volume per question (default standard).
	Depth ResearchDepth `json:"depth" yaml:"depth"`

	// MaxSources caps total citations kept across the session (default 100).
	MaxSources int `json:"max_sources" yaml:"max_sources"`

	// MaxQuestions caps generated questions per phase (default 12).
	MaxQuestions int `json:"max_questions" yaml:"max_questions"`

	// MaxProcessingTime bounds the whole session (default 30m).
	MaxProcessingTime time.Duration `json:"max_processing_time" yaml:"max_processing_time"`

	// CrossValidation enables the cross-reference phase's consistency scan.
	CrossValidation bool `json:"cross_validation" yaml:"cross_validation"`

	// PreferredDomains lists hosts whose citations get a score boost.
	PreferredDomains []string `json:"preferred_domains,omitempty" yaml:"preferred_domains,omitempty"`

	// MinRelevanceScore is the filter floor for kept evidence (default 0.35).
	MinRelevanceScore float64 `json:"min_relevance_score" yaml:"min_relevance_score"`

	// BatchSize bounds concurrent question research (default 3).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// BatchTimeout bounds one batch's wall time (default 5m). A timed-out
	// batch is a partial failure: completed questions keep their evidence.
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout"`

	// ResultRetention is how long a finished session stays readable before
	// eviction (default 1h).
	ResultRetention time.Duration `json:"result_retention" yaml:"result_retention"`
}

// DefaultResearchConfig returns the settings used when a field is zero.
func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		Depth:             DepthStandard,
		MaxSources:        100,
		MaxQuestions:      12,
		MaxProcessingTime: 30 * time.Minute,
		CrossValidation:   true,
		MinRelevanceScore: 0.35,
		BatchSize:         3,
		BatchTimeout:      5 * time.Minute,
		ResultRetention:   time.Hour,
	}
}

// WithDefaults fills zero-valued fields from DefaultResearchConfig.
func (c ResearchConfig) WithDefaults() ResearchConfig {
	def := DefaultResearchConfig()
	if c.Depth == "" {
		c.Depth = def.Depth
	}
	if c.MaxSources == 0 {
		c.MaxSources = def.MaxSources
	}
	if c.MaxQuestions == 0 {
		c.MaxQuestions = def.MaxQuestions
	}
	if c.MaxProcessingTime == 0 {
		c.MaxProcessingTime = def.MaxProcessingTime
	}
	if c.MinRelevanceScore == 0 {
		c.MinRelevanceScore = def.MinRelevanceScore
	}
	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = def.BatchTimeout
	}
	if c.ResultRetention == 0 {
		c.ResultRetention = def.ResultRetention
	}
	return c
}

// Validate rejects settings the engine cannot run with. Errors are
// ConfigurationError values and surface before any session work begins.
func (c ResearchConfig) Validate() error {
	switch c.Depth {
	case DepthBasic, DepthStandard, DepthComprehensive, DepthExpert:
	default:
		return &ConfigurationError{Field: "depth", Reason: "must be basic, standard, comprehensive, or expert"}
	}
	if c.MaxSources < 0 {
		return &ConfigurationError{Field: "max_sources", Reason: "must be non-negative"}
	}
	if c.MaxQuestions < 0 {
		return &ConfigurationError{Field: "max_questions", Reason: "must be non-negative"}
	}
	if c.MinRelevanceScore < 0 || c.MinRelevanceScore > 1 {
		return &ConfigurationError{Field: "min_relevance_score", Reason: "must be within [0,1]"}
	}
	if c.BatchSize < 1 {
		return &ConfigurationError{Field: "batch_size", Reason: "must be at least 1"}
	}
	if c.BatchTimeout < 0 || c.MaxProcessingTime < 0 || c.ResultRetention < 0 {
		return &ConfigurationError{Field: "timeouts", Reason: "durations must be non-negative"}
	}
	return nil
}
