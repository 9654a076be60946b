package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatible implements Provider for any backend speaking the
// OpenAI chat-completions API: OpenAI itself, Groq, and a local
// llama-server.
type OpenAICompatible struct {
	client       *openai.Client
	name         string
	defaultModel string
}

// OpenAIConfig configures an OpenAI-compatible provider.
type OpenAIConfig struct {
	// Name identifies the backend ("openai", "groq", "llama-server").
	Name         string
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// NewOpenAICompatible creates a provider over the OpenAI wire format.
func NewOpenAICompatible(cfg OpenAIConfig) *OpenAICompatible {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &OpenAICompatible{
		client:       openai.NewClientWithConfig(clientCfg),
		name:         name,
		defaultModel: cfg.DefaultModel,
	}
}

// NewOpenAI creates the hosted OpenAI provider.
func NewOpenAI(apiKey, model string) *OpenAICompatible {
	return NewOpenAICompatible(OpenAIConfig{Name: "openai", APIKey: apiKey, DefaultModel: model})
}

// NewGroq creates the Groq provider.
func NewGroq(apiKey, model string) *OpenAICompatible {
	return NewOpenAICompatible(OpenAIConfig{
		Name:         "groq",
		APIKey:       apiKey,
		BaseURL:      "https://api.groq.com/openai/v1",
		DefaultModel: model,
	})
}

// NewLlamaServer creates a provider against a local llama-server.
func NewLlamaServer(port int, model string) *OpenAICompatible {
	if port <= 0 {
		port = 8080
	}
	return NewOpenAICompatible(OpenAIConfig{
		Name:         "llama-server",
		BaseURL:      fmt.Sprintf("http://localhost:%d/v1", port),
		DefaultModel: model,
	})
}

// Name returns the provider name.
func (p *OpenAICompatible) Name() string { return p.name }

// Generate sends a non-streaming chat completion request.
func (p *OpenAICompatible) Generate(ctx context.Context, messages []Message, opts *Options) (*Result, error) {
	model := p.defaultModel
	maxTokens := DefaultMaxTokens
	var temperature float32
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
		temperature = float32(opts.Temperature)
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleTool && m.ToolCallID == "" {
			// The wire format requires a tool_call_id on tool turns;
			// loop-generated results carry none, so send them as user
			// turns prefixed with the tool name.
			chatMessages = append(chatMessages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("%s result:\n%s", m.Name, m.Content),
			})
			continue
		}
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    chatMessages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      false,
	})
	if err != nil {
		return nil, generationErr(p.name, "request failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, generationErr(p.name, "empty choices in response", nil)
	}

	return &Result{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// ProbeLlamaServer checks a local llama-server health endpoint. It
// reports reachable when the status is "ok" or "loading model".
func ProbeLlamaServer(ctx context.Context, port int) bool {
	if port <= 0 {
		port = 8080
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://localhost:%d/health", port)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	switch health.Status {
	case "ok", "loading model":
		return true
	}
	return false
}
