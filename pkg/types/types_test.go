package types

import (
	"strings"
	"testing"
	"time"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"stop words removed", "What is the best approach to event sourcing", []string{"approach", "best", "event", "sourcing"}},
		{"short tokens removed", "Go vs C++ API use", []string{}},
		{"case and punctuation", "Event-Sourcing: Patterns, patterns!", []string{"event-sourcing", "patterns"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractKeywords(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("keyword[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtractKeywordsDeterministic(t *testing.T) {
	text := "distributed systems consensus algorithms comparison"
	a := ExtractKeywords(text)
	b := ExtractKeywords(text)
	if strings.Join(a, ",") != strings.Join(b, ",") {
		t.Errorf("keyword extraction not deterministic: %v vs %v", a, b)
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0}, {0, 0}, {0.42, 0.42}, {1, 1}, {1.7, 1},
	}
	for _, tt := range tests {
		if got := ClampScore(tt.in); got != tt.want {
			t.Errorf("ClampScore(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestCitationValid(t *testing.T) {
	long := strings.Repeat("evidence ", 30)
	tests := []struct {
		name string
		c    CitationResult
		want bool
	}{
		{"ok", CitationResult{URL: "https://example.com/a", Content: long}, true},
		{"no url", CitationResult{Content: long}, false},
		{"thin content", CitationResult{URL: "https://example.com/a", Content: "short"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://www.example.com/path?q=1", "example.com"},
		{"http://docs.example.org/guide", "docs.example.org"},
		{"example.com/page", "example.com"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		if got := HostOf(tt.in); got != tt.want {
			t.Errorf("HostOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuestionKeyEquality(t *testing.T) {
	a := NewQuestion("What is event sourcing?", "fundamentals", PriorityHigh)
	b := NewQuestion("what is event sourcing?", "fundamentals", PriorityHigh)
	c := NewQuestion("What is event sourcing?", "comparative", PriorityHigh)
	if a.Key() != b.Key() {
		t.Errorf("keys differ for same (text, category, priority): %q vs %q", a.Key(), b.Key())
	}
	if a.Key() == c.Key() {
		t.Errorf("keys equal across categories: %q", a.Key())
	}
}

func TestMarkResearched(t *testing.T) {
	q := NewQuestion("How does CQRS work?", "implementation", PriorityMedium)
	if q.Researched {
		t.Fatal("new question already researched")
	}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	q.MarkResearched(at)
	if !q.Researched || !q.ResearchedAt.Equal(at) {
		t.Errorf("MarkResearched: researched=%v at=%v", q.Researched, q.ResearchedAt)
	}
}

func TestPhaseMilestonesNonDecreasing(t *testing.T) {
	prev := -1
	for _, p := range Phases {
		if p.Percent() < prev {
			t.Errorf("phase %s milestone %d decreases from %d", p, p.Percent(), prev)
		}
		prev = p.Percent()
	}
	if got := PhaseDone.Percent(); got != 100 {
		t.Errorf("done milestone = %d, want 100", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ResearchConfig)
		wantErr bool
	}{
		{"defaults valid", func(c *ResearchConfig) {}, false},
		{"bad depth", func(c *ResearchConfig) { c.Depth = "ultra" }, true},
		{"negative sources", func(c *ResearchConfig) { c.MaxSources = -1 }, true},
		{"score above one", func(c *ResearchConfig) { c.MinRelevanceScore = 1.5 }, true},
		{"zero batch", func(c *ResearchConfig) { c.BatchSize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultResearchConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDepthEvidenceCap(t *testing.T) {
	if DepthBasic.EvidenceCap() >= DepthExpert.EvidenceCap() {
		t.Error("basic cap should be below expert cap")
	}
	if got := DepthStandard.EvidenceCap(); got != 15 {
		t.Errorf("standard cap = %d, want 15", got)
	}
}
