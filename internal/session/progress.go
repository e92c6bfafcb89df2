// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"sync"
	"time"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Tracker is the concurrent-safe progress state of one session. The
// percentage is monotone: attempts to lower it are ignored, so external
// pollers never observe progress moving backwards.
type Tracker struct {
	mu sync.RWMutex
	p  types.Progress
}

// NewTracker creates the progress state for a starting session.
func NewTracker(sessionID string) *Tracker {
	return &Tracker{p: types.Progress{
		SessionID: sessionID,
		Phase:     types.PhaseInitialAnalysis,
		Activity:  types.PhaseInitialAnalysis.Activity(),
		StartTime: time.Now().UTC(),
	}}
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() types.Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := t.p
	p.Errors = make([]string, len(t.p.Errors))
	copy(p.Errors, t.p.Errors)
	return p
}

// EnterPhase records that a phase is now running and refreshes the activity
// line. The percentage advances when CompletePhase fires.
func (t *Tracker) EnterPhase(phase types.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Phase = phase
	t.p.Activity = phase.Activity()
}

// CompletePhase raises the percentage to the phase's milestone.
func (t *Tracker) CompletePhase(phase types.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pct := phase.Percent(); pct > t.p.Percentage {
		t.p.Percentage = pct
	}
}

// SetActivity updates the human-readable activity line.
func (t *Tracker) SetActivity(activity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Activity = activity
}

// AddError appends a partial-failure note. Notes never block completion.
func (t *Tracker) AddError(note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Errors = append(t.p.Errors, note)
}

// Complete marks the session finished and forces the percentage to 100.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Completed = true
	t.p.Phase = types.PhaseDone
	t.p.Activity = types.PhaseDone.Activity()
	t.p.Percentage = 100
}

// Cancel marks the session cancelled. The engine checks Cancelled at phase
// boundaries; the supervisor checks between batches and iterations.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.p.Cancelled = true
}

// Cancelled reports whether cancellation was requested.
func (t *Tracker) Cancelled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.p.Cancelled
}

// Completed reports whether a result exists.
func (t *Tracker) Completed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.p.Completed
}
