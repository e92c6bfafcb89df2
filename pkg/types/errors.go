// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// CollaboratorError reports a failed LLM or search call. Always recoverable:
// callers retry with backoff and then take a deterministic fallback.
type CollaboratorError struct {
	// Op names the failed operation, e.g. "complete" or "search".
	Op string

	// Err is the underlying transport or provider failure.
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// ConfigurationError reports missing or invalid configuration. Fatal at
// session start, surfaced to the caller before any work begins.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// ValidationError reports a malformed question or citation. The item is
// discarded and logged; it never aborts a session.
type ValidationError struct {
	Item   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Item, e.Reason)
}
