// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pdiddy/deep-research/pkg/types"
)

func newTestContext() *Context {
	return NewContext("s-1", "event sourcing", types.UserProfile{}, types.DefaultResearchConfig())
}

func TestContextAddQuestionDeduplicates(t *testing.T) {
	c := newTestContext()
	q := types.NewQuestion("What is event sourcing?", "fundamentals", types.PriorityHigh)
	if !c.AddQuestion(q) {
		t.Fatal("first insert rejected")
	}
	dup := types.NewQuestion("what is EVENT sourcing?", "fundamentals", types.PriorityHigh)
	if c.AddQuestion(dup) {
		t.Error("duplicate (text, category, priority) accepted")
	}
	other := types.NewQuestion("What is event sourcing?", "fundamentals", types.PriorityLow)
	if !c.AddQuestion(other) {
		t.Error("same text with different priority rejected")
	}
	if got := len(c.Questions()); got != 2 {
		t.Errorf("question count = %d, want 2", got)
	}
}

func TestContextRejectsEmptyQuestion(t *testing.T) {
	c := newTestContext()
	if c.AddQuestion(types.ResearchQuestion{}) {
		t.Error("empty question accepted")
	}
}

func TestContextMarkResearched(t *testing.T) {
	c := newTestContext()
	q := types.NewQuestion("How does CQRS relate?", "comparative", types.PriorityMedium)
	c.AddQuestion(q)
	at := time.Now()
	c.MarkResearched(q.Key(), at)
	got, ok := c.Question(q.Key())
	if !ok || !got.Researched {
		t.Errorf("question not marked researched: %+v", got)
	}
}

func TestContextConcurrentWrites(t *testing.T) {
	c := newTestContext()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := types.NewQuestion(fmt.Sprintf("question %d?", i), "fundamentals", types.PriorityMedium)
			c.AddQuestion(q)
			c.SetEvidence(q.Key(), []types.CitationResult{{URL: fmt.Sprintf("https://e%d.example.com", i)}})
			c.SetInsight(q.Key(), "insight")
		}(i)
	}
	wg.Wait()
	if got := len(c.Questions()); got != 20 {
		t.Errorf("questions = %d, want 20", got)
	}
	if got := c.EvidenceCount(); got != 20 {
		t.Errorf("evidence = %d, want 20", got)
	}
	if got := len(c.Insights()); got != 20 {
		t.Errorf("insights = %d, want 20", got)
	}
}

func TestContextAccessorsReturnCopies(t *testing.T) {
	c := newTestContext()
	q := types.NewQuestion("copy semantics?", "fundamentals", types.PriorityMedium)
	c.AddQuestion(q)
	c.SetEvidence(q.Key(), []types.CitationResult{{URL: "https://a.example.com", Title: "original"}})

	got := c.Evidence(q.Key())
	got[0].Title = "mutated"
	if c.Evidence(q.Key())[0].Title != "original" {
		t.Error("Evidence returned a shared slice")
	}
}

func TestContextMaxSourcesBudget(t *testing.T) {
	cfg := types.DefaultResearchConfig()
	cfg.MaxSources = 5
	c := NewContext("s-1", "event sourcing", types.UserProfile{}, cfg)

	evidence := func(n int) []types.CitationResult {
		out := make([]types.CitationResult, n)
		for i := range out {
			out[i] = types.CitationResult{URL: fmt.Sprintf("https://e%d.example.com", i)}
		}
		return out
	}

	if kept := c.SetEvidence("q1", evidence(3)); len(kept) != 3 {
		t.Fatalf("q1 kept = %d, want 3", len(kept))
	}
	if kept := c.SetEvidence("q2", evidence(4)); len(kept) != 2 {
		t.Errorf("q2 kept = %d, want 2 with 3 of 5 already used", len(kept))
	}
	if got := c.EvidenceCount(); got != 5 {
		t.Errorf("total = %d, want 5", got)
	}

	// Replacing a question's evidence re-credits its previous share.
	if kept := c.SetEvidence("q1", evidence(10)); len(kept) != 3 {
		t.Errorf("replacement kept = %d, want 3", len(kept))
	}
	if got := c.EvidenceCount(); got != 5 {
		t.Errorf("total after replacement = %d, want 5", got)
	}

	// MaxSources zero means no session-wide cap.
	unlimited := NewContext("s-2", "event sourcing", types.UserProfile{}, types.ResearchConfig{})
	if kept := unlimited.SetEvidence("q", evidence(12)); len(kept) != 12 {
		t.Errorf("uncapped kept = %d, want 12", len(kept))
	}
}

func TestTrackerMonotonePercentage(t *testing.T) {
	tr := NewTracker("s-1")
	var observed []int
	for _, phase := range types.Phases {
		tr.EnterPhase(phase)
		tr.CompletePhase(phase)
		observed = append(observed, tr.Snapshot().Percentage)
	}
	for i := 1; i < len(observed); i++ {
		if observed[i] < observed[i-1] {
			t.Fatalf("percentage decreased: %v", observed)
		}
	}
	tr.Complete()
	if got := tr.Snapshot().Percentage; got != 100 {
		t.Errorf("final percentage = %d, want 100", got)
	}
}

func TestTrackerCompleteOverridesLaggingPercent(t *testing.T) {
	tr := NewTracker("s-1")
	tr.CompletePhase(types.PhaseInitialAnalysis)
	tr.Complete()
	p := tr.Snapshot()
	if p.Percentage != 100 || !p.Completed || p.Phase != types.PhaseDone {
		t.Errorf("Complete() snapshot = %+v", p)
	}
}

func TestTrackerErrorsAccumulate(t *testing.T) {
	tr := NewTracker("s-1")
	tr.AddError("question 3 failed: search unavailable")
	tr.AddError("batch 2 timed out")
	p := tr.Snapshot()
	if len(p.Errors) != 2 {
		t.Fatalf("errors = %v", p.Errors)
	}
	// Snapshot must copy the error slice.
	p.Errors[0] = "mutated"
	if tr.Snapshot().Errors[0] == "mutated" {
		t.Error("Snapshot shares the error slice")
	}
}

func TestTrackerCancel(t *testing.T) {
	tr := NewTracker("s-1")
	if tr.Cancelled() {
		t.Fatal("fresh tracker cancelled")
	}
	tr.Cancel()
	if !tr.Cancelled() {
		t.Error("Cancel did not stick")
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry(time.Hour)
	defer r.Close()

	id, h := r.Create("query", types.UserProfile{}, types.DefaultResearchConfig())
	if id == "" || h == nil {
		t.Fatal("Create returned empty handle")
	}
	got, ok := r.Get(id)
	if !ok || got != h {
		t.Error("Get did not return the created handle")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get returned a handle for an unknown id")
	}
}

func TestRegistryEvictsFinishedSessions(t *testing.T) {
	r := NewRegistry(time.Hour)
	defer r.Close()

	doneID, done := r.Create("done", types.UserProfile{}, types.DefaultResearchConfig())
	done.SetResult(&types.Result{SessionID: doneID}, time.Now().Add(-2*time.Hour))

	runningID, _ := r.Create("running", types.UserProfile{}, types.DefaultResearchConfig())

	r.evictBefore(time.Now().Add(-time.Hour))

	if _, ok := r.Get(doneID); ok {
		t.Error("finished session outlived its retention window")
	}
	if _, ok := r.Get(runningID); !ok {
		t.Error("running session was evicted")
	}
}

func TestRegistryRetainsWithinWindow(t *testing.T) {
	r := NewRegistry(time.Hour)
	defer r.Close()

	id, h := r.Create("done", types.UserProfile{}, types.DefaultResearchConfig())
	h.SetResult(&types.Result{SessionID: id}, time.Now())

	r.evictBefore(time.Now().Add(-time.Hour))
	if _, ok := r.Get(id); !ok {
		t.Error("recently finished session evicted before retention passed")
	}
}

func TestResultFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.yaml")

	q := types.NewQuestion("What is event sourcing?", "fundamentals", types.PriorityHigh)
	result := types.Result{
		SessionID: "s-42",
		Query:     "event sourcing",
		Questions: []types.ResearchQuestion{q},
		Evidence: map[string][]types.CitationResult{
			q.Key(): {{URL: "https://a.example.com", Title: "t", Content: strings.Repeat("x", 160), RelevanceScore: 0.8}},
		},
		Insights: map[string]string{q.Key(): "the insight"},
		Report:   "# Research Report",
	}
	if err := WriteResultFile(path, result); err != nil {
		t.Fatalf("WriteResultFile: %v", err)
	}

	rf, err := ReadResultFile(path)
	if err != nil {
		t.Fatalf("ReadResultFile: %v", err)
	}
	if rf.Result.SessionID != "s-42" || rf.Result.Report != "# Research Report" {
		t.Errorf("round trip lost fields: %+v", rf.Result)
	}
	if rf.Summary.Questions != 1 || rf.Summary.Citations != 1 || rf.Summary.Insights != 1 {
		t.Errorf("summary = %+v", rf.Summary)
	}
}

func TestReadResultFileMissing(t *testing.T) {
	if _, err := ReadResultFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
