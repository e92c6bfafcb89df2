// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexSearcher queries the OpenAlex API and maps works to citations.
type OpenAlexSearcher struct {
	Client *http.Client

	// Email is sent as mailto parameter for polite pool access.
	Email string

	// UserAgent is sent with every request.
	UserAgent string

	// PerPage caps results per query (default 20, max 50).
	PerPage int
}

// Search runs one free-text query against OpenAlex. Results carry a
// position-based relevance score: OpenAlex returns works sorted by relevance.
func (s *OpenAlexSearcher) Search(ctx context.Context, query string) ([]types.CitationResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &types.CollaboratorError{Op: "search", Err: fmt.Errorf("empty query")}
	}

	perPage := s.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 50 {
		perPage = 50
	}

	params := url.Values{
		"search":   {query},
		"per_page": {fmt.Sprintf("%d", perPage)},
		"page":     {"1"},
	}
	if s.Email != "" {
		params.Set("mailto", s.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &types.CollaboratorError{Op: "search", Err: fmt.Errorf("creating request: %w", err)}
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, &types.CollaboratorError{Op: "search", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &types.CollaboratorError{Op: "search", Err: fmt.Errorf("OpenAlex returned HTTP %d", resp.StatusCode)}
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, &types.CollaboratorError{Op: "search", Err: fmt.Errorf("parsing response: %w", err)}
	}

	now := time.Now().UTC()
	total := len(oar.Results)
	var citations []types.CitationResult
	for i, work := range oar.Results {
		abstract := reconstructAbstract(work.AbstractInvertedIndex)

		workURL := work.DOI
		if workURL == "" {
			workURL = work.ID
		}
		if workURL == "" {
			continue
		}

		// Position-based relevance score.
		score := 1.0
		if total > 1 {
			score = 1.0 - float64(i)/float64(total-1)*0.9
		}

		c := types.CitationResult{
			Title:          work.Title,
			Snippet:        snippetOf(abstract),
			Content:        abstract,
			URL:            workURL,
			RelevanceScore: types.ClampScore(score),
			Domain:         types.HostOf(workURL),
			RetrievedAt:    now,
			Metadata:       map[string]string{"source": "openalex"},
		}
		if work.PublicationDate != "" {
			c.Metadata["publication_date"] = work.PublicationDate
		}
		citations = append(citations, c)
	}
	return citations, nil
}

// snippetOf returns the first sentence-ish prefix of text for display.
func snippetOf(text string) string {
	const max = 200
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if i := strings.LastIndexAny(cut, ".!?"); i > max/2 {
		return cut[:i+1]
	}
	return cut + "..."
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to the positions where that
// word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Meta    openAlexMeta   `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexMeta struct {
	Count   int `json:"count"`
	PerPage int `json:"per_page"`
	Page    int `json:"page"`
}

type openAlexWork struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DOI                   string           `json:"doi"`
	PublicationDate       string           `json:"publication_date"`
	PublicationYear       int              `json:"publication_year"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}
