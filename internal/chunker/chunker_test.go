// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunker

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// buildContent produces paragraph-structured text long enough to need
// several chunks.
func buildContent(paragraphs int) string {
	var parts []string
	for i := 0; i < paragraphs; i++ {
		parts = append(parts, fmt.Sprintf(
			"Paragraph %d discusses the design of the system. It covers tradeoffs in detail. "+
				"Each sentence here ends cleanly. The paragraph closes with a final remark numbered %d.", i, i))
	}
	return strings.Join(parts, "\n\n")
}

func TestChunkContentRoundTrip(t *testing.T) {
	original := buildContent(40)
	chunks := ChunkContent(original, 3)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if got := Reassemble(chunks); got != original {
		t.Errorf("round trip failed:\nlen(got)=%d len(want)=%d", len(got), len(original))
	}
}

func TestChunkContentDeterministic(t *testing.T) {
	original := buildContent(25)
	a := ChunkContent(original, 3)
	b := ChunkContent(original, 3)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical input produced different chunks")
	}
}

func TestChunkContentOverlap(t *testing.T) {
	chunks := ChunkContent(buildContent(40), 3)
	for i, c := range chunks {
		if i == 0 {
			if c.OverlapLen != 0 {
				t.Errorf("first chunk has overlap %d", c.OverlapLen)
			}
			continue
		}
		if c.OverlapLen == 0 {
			t.Errorf("chunk %d has no overlap", i)
		}
		// The overlap prefix must be a suffix of the previous chunk's body.
		prefix := c.Text[:c.OverlapLen]
		if !strings.HasSuffix(chunks[i-1].Body(), prefix) {
			t.Errorf("chunk %d overlap is not the previous chunk's tail", i)
		}
	}
}

func TestChunkContentEmpty(t *testing.T) {
	if got := ChunkContent("   \n\n  ", 1); got != nil {
		t.Errorf("ChunkContent(blank) = %v, want nil", got)
	}
}

func TestOptimumSize(t *testing.T) {
	tests := []struct {
		name string
		text string
		hint int
		want int
	}{
		{"base", "plain prose", 3, 2000},
		{"code present", "```go\nfunc main(){}\n```", 3, 2500},
		{"links present", "see https://example.com", 3, 2500},
		{"many sections", "plain prose", 7, 1800},
		{"code and many sections", "x https://example.com", 8, 2300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := optimumSize(tt.text, tt.hint); got != tt.want {
				t.Errorf("optimumSize = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClassifyTheme(t *testing.T) {
	tests := []struct {
		title string
		body  string
		want  string
	}{
		{"Performance Benchmarks", "", "performance"},
		{"Optimization Techniques", "", "performance"},
		{"Getting Started", "install the package and configure the api client", "implementation"},
		{"System Overview", "the architecture uses a layered design pattern", "architecture"},
		{"Threat Model", "authentication and encryption at rest", "security"},
		{"Worked Example", "a tutorial with a sample walkthrough", "examples"},
		{"Notes", "miscellaneous prose with no markers", "general"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := ClassifyTheme(tt.title, tt.body); got != tt.want {
				t.Errorf("ClassifyTheme(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestChunkPromptSingleWhenSmall(t *testing.T) {
	text := "A short prompt."
	got := ChunkPrompt(text)
	if len(got) != 1 || got[0] != text {
		t.Errorf("ChunkPrompt(small) = %v", got)
	}
}

func TestChunkPromptSplitsLargeText(t *testing.T) {
	sentence := "This sentence repeats to inflate the prompt well past the context limit. "
	text := strings.Repeat(sentence, 1000) // ~73k chars, ~18k tokens
	got := ChunkPrompt(text)
	if len(got) < 2 {
		t.Fatalf("expected split, got %d windows", len(got))
	}
	windowChars := (DefaultTokenLimit - ResponseReserve) * charsPerToken
	for i, w := range got {
		if len(w) > windowChars+len(sentence) {
			t.Errorf("window %d length %d exceeds budget", i, len(w))
		}
	}
	if strings.Join(got, "") != text {
		t.Error("windows do not concatenate back to the original prompt")
	}
}

func TestCompressPrompt(t *testing.T) {
	sentence := "Evidence summary sentence that carries detail. "
	text := strings.Repeat(sentence, 200)

	got := CompressPrompt(text, 100)
	if len(got) >= len(text) {
		t.Error("compression did not shrink the prompt")
	}
	if !strings.HasSuffix(got, " [...]") {
		t.Errorf("missing ellipsis marker: %q", got[len(got)-20:])
	}
	// The cut lands on a sentence boundary before the marker.
	trimmed := strings.TrimSuffix(got, " [...]")
	if !strings.HasSuffix(trimmed, ".") {
		t.Errorf("cut not at sentence boundary: %q", trimmed[len(trimmed)-20:])
	}

	short := "Already short."
	if got := CompressPrompt(short, 100); got != short {
		t.Errorf("short prompt modified: %q", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(strings.Repeat("a", 400)); got != 100 {
		t.Errorf("EstimateTokens = %d, want 100", got)
	}
}
