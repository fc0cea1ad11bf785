package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	agentcore "github.com/arcline/agentcore"
)

const (
	maxFetchBytes = 512_000
	fetchTimeout  = 30 * time.Second
)

// WebFetchInput defines the input for the WebFetch tool.
type WebFetchInput struct {
	URL string `json:"url" jsonschema:"required,description=The URL to fetch content from"`
}

func (k *toolkit) webFetch(ctx context.Context, input WebFetchInput) (*agentcore.ToolResult, error) {
	if input.URL == "" {
		return agentcore.FailureResult("url is required"), nil
	}

	// Upgrade plain HTTP.
	url := input.URL
	if strings.HasPrefix(url, "http://") {
		url = "https://" + url[7:]
	}

	client := &http.Client{Timeout: fetchTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return agentcore.FailureResult(fmt.Sprintf("invalid url: %s", err.Error())), nil
	}
	req.Header.Set("User-Agent", "agentcore/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return agentcore.FailureResult(fmt.Sprintf("fetch failed: %s", err.Error())), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return agentcore.FailureResult(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return agentcore.FailureResult(fmt.Sprintf("read failed: %s", err.Error())), nil
	}

	text := stripHTMLTags(string(body))
	if len(text) > maxFetchBytes {
		text = text[:maxFetchBytes] + "\n... [content truncated]"
	}
	return agentcore.SuccessResult(fmt.Sprintf("URL: %s\n\n%s", input.URL, text)), nil
}

// stripHTMLTags does a basic removal of HTML tags.
func stripHTMLTags(s string) string {
	var result strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			result.WriteRune(' ')
		case !inTag:
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
