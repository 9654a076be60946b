package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements Provider against a local Ollama daemon.
type Ollama struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// NewOllama creates an Ollama provider.
func NewOllama(cfg OllamaConfig) *Ollama {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Ollama{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

// Name returns the provider name.
func (p *Ollama) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error           string `json:"error"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate sends a non-streaming chat request to /api/chat.
func (p *Ollama) Generate(ctx context.Context, messages []Message, opts *Options) (*Result, error) {
	model := p.defaultModel
	maxTokens := DefaultMaxTokens
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
	}
	if model == "" {
		return nil, generationErr("ollama", "model is required", nil)
	}

	payload := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"num_predict": maxTokens},
	}
	if opts != nil && opts.Temperature > 0 {
		payload.Options["temperature"] = opts.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, generationErr("ollama", "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, generationErr("ollama", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, generationErr("ollama", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, generationErr("ollama",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))), nil)
	}

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, generationErr("ollama", "decode response", err)
	}
	if chat.Error != "" {
		return nil, generationErr("ollama", chat.Error, nil)
	}

	return &Result{
		Content:          chat.Message.Content,
		PromptTokens:     chat.PromptEvalCount,
		CompletionTokens: chat.EvalCount,
	}, nil
}

// ollamaTagsResponse is the shape of GET /api/tags.
type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ProbeOllama checks whether an Ollama daemon is reachable and returns
// a preferred model name: the first model not tagged "cloud", falling
// back to the first model at all.
func ProbeOllama(ctx context.Context, baseURL string) (string, bool) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return "", false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", false
	}
	if len(tags.Models) == 0 {
		return "", false
	}
	for _, m := range tags.Models {
		if !strings.Contains(m.Name, "cloud") {
			return m.Name, true
		}
	}
	return tags.Models[0].Name, true
}
