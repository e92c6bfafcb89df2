// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

// anthropicAPIURL is the Messages API endpoint. Package-level var for test
// substitution.
var anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// AnthropicCompleter calls the Anthropic Messages API for text completion.
type AnthropicCompleter struct {
	APIKey string
	Model  string
	Client *http.Client

	// MaxRetries bounds transport retries on 429/5xx. Zero uses the
	// httputil default.
	MaxRetries int
}

// anthropicRequest is the request body for the Messages API.
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

// anthropicMessage is a single message in the API conversation.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the response body from the Messages API.
type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

// anthropicContent is a content block in the API response.
type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete sends the prompt and returns the concatenated text blocks of the
// response. All failures come back as *types.CollaboratorError.
func (c *AnthropicCompleter) Complete(ctx context.Context, prompt string, kind OutputKind) (string, error) {
	reqBody := anthropicRequest{
		Model:     c.Model,
		MaxTokens: kind.MaxTokens(),
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &types.CollaboratorError{Op: "complete", Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &types.CollaboratorError{Op: "complete", Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, c.MaxRetries)
	if err != nil {
		return "", &types.CollaboratorError{Op: "complete", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &types.CollaboratorError{
			Op:  "complete",
			Err: fmt.Errorf("API returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var aResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aResp); err != nil {
		return "", &types.CollaboratorError{Op: "complete", Err: fmt.Errorf("decoding response: %w", err)}
	}

	var b strings.Builder
	for _, block := range aResp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", &types.CollaboratorError{Op: "complete", Err: fmt.Errorf("empty completion")}
	}
	return b.String(), nil
}
