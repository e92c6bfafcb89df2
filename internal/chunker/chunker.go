// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chunker keeps collaborator calls inside a fixed context-size
// budget. It splits content on paragraph boundaries into overlapping,
// theme-tagged chunks and compresses prompts that would overflow.
//
// Chunk boundaries are purely a function of the input and the constants
// below — no randomness, no clock — so identical input always produces
// identical chunks.
package chunker

import (
	"strings"
)

const (
	// baseChunkSize is the starting optimum segment size in characters.
	baseChunkSize = 2000

	// codeBonus widens segments when code or links are present, since
	// breaking those mid-block loses meaning.
	codeBonus = 500

	// manySectionsPenalty narrows segments when the target structure has
	// more than six sections.
	manySectionsPenalty = 200

	minChunkSize = 1000
	maxChunkSize = 3000

	// overlapRatio is the fraction of the optimum size repeated from the
	// tail of the previous segment.
	overlapRatio = 0.15

	// DefaultTokenLimit is the provider context budget in tokens.
	DefaultTokenLimit = 8000

	// ResponseReserve is the token budget held back for the response.
	ResponseReserve = 1500

	// charsPerToken is the estimation ratio: tokens ≈ chars/4.
	charsPerToken = 4
)

// Chunk is one bounded slice of content. Text begins with OverlapLen bytes
// repeated from the previous chunk's tail.
type Chunk struct {
	// Text is the chunk content, overlap prefix included.
	Text string

	// OverlapLen is the byte length of the repeated prefix. Zero for the
	// first chunk.
	OverlapLen int

	// Theme is the coarse topic label assigned by ClassifyTheme.
	Theme string
}

// Body returns the chunk text without the overlap prefix.
func (c Chunk) Body() string {
	return c.Text[c.OverlapLen:]
}

// ChunkContent splits text on paragraph boundaries into segments sized to a
// computed optimum, prefixes each segment after the first with a
// sentence-aligned overlap from the previous segment's tail, and tags each
// chunk with a theme.
func ChunkContent(text string, sectionCountHint int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	optimum := optimumSize(text, sectionCountHint)
	segments := splitParagraphs(text, optimum)
	overlapLen := int(float64(optimum) * overlapRatio)

	chunks := make([]Chunk, 0, len(segments))
	for i, seg := range segments {
		var overlap string
		if i > 0 {
			overlap = tailOverlap(segments[i-1], overlapLen)
		}
		chunks = append(chunks, Chunk{
			Text:       overlap + seg,
			OverlapLen: len(overlap),
			Theme:      ClassifyTheme("", seg),
		})
	}
	return chunks
}

// Reassemble reverses ChunkContent: it strips each chunk's overlap prefix
// and rejoins the segments on paragraph boundaries, reconstructing the
// original content.
func Reassemble(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Body()
	}
	return strings.Join(parts, "\n\n")
}

// optimumSize computes the target segment size: base 2000, +500 when code or
// links are present, -200 when the target structure has more than six
// sections, clamped to [1000,3000].
func optimumSize(text string, sectionCountHint int) int {
	size := baseChunkSize
	if strings.Contains(text, "```") || strings.Contains(text, "http://") || strings.Contains(text, "https://") {
		size += codeBonus
	}
	if sectionCountHint > 6 {
		size -= manySectionsPenalty
	}
	if size < minChunkSize {
		size = minChunkSize
	}
	if size > maxChunkSize {
		size = maxChunkSize
	}
	return size
}

// splitParagraphs groups paragraphs into segments no larger than optimum.
// A single paragraph longer than optimum becomes its own segment: paragraph
// boundaries are never broken.
func splitParagraphs(text string, optimum int) []string {
	paragraphs := strings.Split(text, "\n\n")

	var segments []string
	var current []string
	currentLen := 0

	for _, p := range paragraphs {
		addition := len(p)
		if currentLen > 0 {
			addition += 2 // rejoining separator
		}
		if currentLen > 0 && currentLen+addition > optimum {
			segments = append(segments, strings.Join(current, "\n\n"))
			current = current[:0]
			currentLen = 0
			addition = len(p)
		}
		current = append(current, p)
		currentLen += addition
	}
	if len(current) > 0 {
		segments = append(segments, strings.Join(current, "\n\n"))
	}
	return segments
}

// tailOverlap returns up to n trailing characters of prev, advanced to the
// nearest sentence boundary so the overlap never starts mid-sentence.
func tailOverlap(prev string, n int) string {
	if n <= 0 || prev == "" {
		return ""
	}
	if len(prev) <= n {
		return prev
	}
	tail := prev[len(prev)-n:]
	if i := strings.IndexAny(tail, ".!?"); i >= 0 && i+1 < len(tail) {
		trimmed := strings.TrimLeft(tail[i+1:], " \n")
		if trimmed != "" {
			return trimmed
		}
	}
	return tail
}

// ChunkPrompt returns the prompt as one chunk when its estimated token count
// fits the limit, and otherwise splits it on sentence boundaries into
// windows sized to the limit minus the response reserve.
func ChunkPrompt(text string) []string {
	if EstimateTokens(text) <= DefaultTokenLimit {
		return []string{text}
	}

	windowChars := (DefaultTokenLimit - ResponseReserve) * charsPerToken
	sentences := splitSentences(text)

	var windows []string
	var b strings.Builder
	for _, s := range sentences {
		if b.Len() > 0 && b.Len()+len(s) > windowChars {
			windows = append(windows, b.String())
			b.Reset()
		}
		b.WriteString(s)
	}
	if b.Len() > 0 {
		windows = append(windows, b.String())
	}
	return windows
}

// CompressPrompt truncates text to roughly targetTokens, cutting at the
// nearest preceding sentence boundary and appending an ellipsis marker.
// Text already within budget is returned unchanged.
func CompressPrompt(text string, targetTokens int) string {
	limit := targetTokens * charsPerToken
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if i := strings.LastIndexAny(cut, ".!?"); i > limit/2 {
		cut = cut[:i+1]
	}
	return cut + " [...]"
}

// EstimateTokens approximates the token count of text as chars/4.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

// splitSentences cuts text after sentence-terminating punctuation followed
// by whitespace. The pieces concatenate back to the original text.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && (text[i+1] == ' ' || text[i+1] == '\n') {
			sentences = append(sentences, text[start:i+2])
			start = i + 2
			i++
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

// themeOrder fixes the evaluation order of theme labels so classification is
// deterministic on ties.
var themeOrder = []string{"implementation", "performance", "examples", "architecture", "security"}

// themeVocabulary maps each theme to the keywords that vote for it.
var themeVocabulary = map[string][]string{
	"implementation": {"implement", "code", "usage", "setup", "install", "integration", "configuration", "api"},
	"performance":    {"performance", "benchmark", "optimization", "optimizing", "latency", "throughput", "scalability", "efficiency", "speed"},
	"examples":       {"example", "sample", "tutorial", "demo", "walkthrough", "case study"},
	"architecture":   {"architecture", "design", "structure", "pattern", "component", "topology"},
	"security":       {"security", "vulnerability", "authentication", "encryption", "threat", "compliance"},
}

// ClassifyTheme assigns a coarse topic label to a titled piece of content by
// keyword sniffing. Title matches weigh double. Content matching nothing is
// "general".
func ClassifyTheme(title, body string) string {
	lowTitle := strings.ToLower(title)
	lowBody := strings.ToLower(body)

	best := "general"
	bestScore := 0
	for _, theme := range themeOrder {
		score := 0
		for _, kw := range themeVocabulary[theme] {
			score += 2 * strings.Count(lowTitle, kw)
			score += strings.Count(lowBody, kw)
		}
		if score > bestScore {
			best = theme
			bestScore = score
		}
	}
	return best
}
