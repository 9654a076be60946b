package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/valetd/valet/internal/metrics"
)

const remediation = "No model backend is reachable. Start Ollama (ollama serve), " +
	"run a local llama-server, or configure an OpenAI, Anthropic, or Groq API key."

// RouterConfig lists the backends the router may target.
type RouterConfig struct {
	OllamaBaseURL   string
	LlamaServerPort int

	OpenAIKey   string
	OpenAIModel string

	AnthropicKey   string
	AnthropicModel string

	GroqKey   string
	GroqModel string
}

// Router exposes a single Generate over all configured backends. When
// the caller does not target a provider explicitly, the router probes
// local backends first and falls back to configured cloud credentials;
// the detected backend is cached until a generation fails.
type Router struct {
	mu        sync.Mutex
	cfg       RouterConfig
	providers map[string]Provider
	active    Provider
	// activeModel is the model detected alongside active, for backends
	// probed without an explicit model in config.
	activeModel string
	logger      *slog.Logger
}

// NewRouter creates a router over the configured backends.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		cfg:       cfg,
		providers: make(map[string]Provider),
		logger:    logger.With("component", "provider_router"),
	}

	r.providers["ollama"] = NewOllama(OllamaConfig{BaseURL: cfg.OllamaBaseURL})
	r.providers["llama-server"] = NewLlamaServer(cfg.LlamaServerPort, "")
	if cfg.OpenAIKey != "" {
		r.providers["openai"] = NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel)
	}
	if cfg.AnthropicKey != "" {
		r.providers["anthropic"] = NewAnthropic(AnthropicConfig{
			APIKey:       cfg.AnthropicKey,
			DefaultModel: cfg.AnthropicModel,
		})
	}
	if cfg.GroqKey != "" {
		r.providers["groq"] = NewGroq(cfg.GroqKey, cfg.GroqModel)
	}
	return r
}

// Register adds or replaces a named provider. Used by tests and by
// callers wiring custom backends.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	if r.active != nil && r.active.Name() == p.Name() {
		r.active = p
	}
}

// Generate routes one chat completion. The router does not retry; any
// failure surfaces as a GenerationError.
func (r *Router) Generate(ctx context.Context, messages []Message, opts *Options) (*Result, error) {
	target, detectedModel, err := r.resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	effective := opts
	if detectedModel != "" && (opts == nil || opts.Model == "") {
		o := Options{}
		if opts != nil {
			o = *opts
		}
		o.Model = detectedModel
		effective = &o
	}

	genCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	start := time.Now()
	result, err := target.Generate(genCtx, messages, effective)
	metrics.GenerationSeconds.WithLabelValues(target.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		// Force re-detection on the next auto-routed call.
		r.mu.Lock()
		if r.active == target {
			r.active = nil
			r.activeModel = ""
		}
		r.mu.Unlock()
		return nil, err
	}
	return result, nil
}

// resolve picks the backend for one call and, for auto-detected local
// backends, the model to use.
func (r *Router) resolve(ctx context.Context, opts *Options) (Provider, string, error) {
	if opts != nil && opts.Provider != "" {
		r.mu.Lock()
		p, ok := r.providers[opts.Provider]
		r.mu.Unlock()
		if !ok {
			return nil, "", &GenerationError{
				Provider: opts.Provider,
				Reason:   "provider not configured",
			}
		}
		return p, "", nil
	}

	r.mu.Lock()
	if r.active != nil {
		p, model := r.active, r.activeModel
		r.mu.Unlock()
		return p, model, nil
	}
	r.mu.Unlock()

	return r.detect(ctx)
}

// detect probes backends in preference order: local Ollama, local
// llama-server, then configured cloud providers.
func (r *Router) detect(ctx context.Context) (Provider, string, error) {
	if model, ok := ProbeOllama(ctx, r.cfg.OllamaBaseURL); ok {
		r.logger.Info("auto-detected backend", "provider", "ollama", "model", model)
		return r.adopt("ollama", model), model, nil
	}
	if ProbeLlamaServer(ctx, r.cfg.LlamaServerPort) {
		r.logger.Info("auto-detected backend", "provider", "llama-server")
		return r.adopt("llama-server", ""), "", nil
	}
	for _, name := range []string{"openai", "anthropic", "groq"} {
		r.mu.Lock()
		_, ok := r.providers[name]
		r.mu.Unlock()
		if ok {
			r.logger.Info("auto-detected backend", "provider", name)
			return r.adopt(name, ""), "", nil
		}
	}

	return nil, "", &GenerationError{
		Reason:      "no reachable backend",
		Remediation: remediation,
	}
}

func (r *Router) adopt(name, model string) Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.providers[name]
	r.active = p
	r.activeModel = model
	return p
}
