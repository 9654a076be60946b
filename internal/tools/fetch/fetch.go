// Package fetch provides the http_fetch tool: GET a URL and return the
// body, size-capped.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/valetd/valet/internal/tools"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 512 << 10
)

// Tool fetches URLs over HTTP.
type Tool struct {
	client *http.Client
}

// New creates an http_fetch tool.
func New() *Tool {
	return &Tool{
		client: &http.Client{Timeout: defaultTimeout},
	}
}

func (t *Tool) Name() string        { return "http_fetch" }
func (t *Tool) Description() string { return "Fetch a URL with HTTP GET and return the response body." }
func (t *Tool) RiskLevel() tools.Risk {
	return tools.RiskMedium
}

func (t *Tool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"url": {Type: tools.TypeString, Description: "HTTP or HTTPS URL to fetch."},
		},
		Required: []string{"url"},
	}
}

func (t *Tool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	url := strings.TrimSpace(args["url"])
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("url must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "valet/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	truncated := false
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
		truncated = true
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	out := string(body)
	if truncated {
		out += "\n[truncated]"
	}
	return out, nil
}
