package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// deadPort returns a localhost port with nothing listening on it.
func deadPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func deadBaseURL(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("http://127.0.0.1:%d", deadPort(t))
}

func newTestHTTPServer(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

// unreachableConfig points every local backend at a closed port.
func unreachableConfig(t *testing.T) RouterConfig {
	t.Helper()
	return RouterConfig{
		OllamaBaseURL:   deadBaseURL(t),
		LlamaServerPort: deadPort(t),
	}
}

type stubProvider struct {
	name    string
	reply   string
	err     error
	calls   atomic.Int32
	lastOpt *Options
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) Generate(_ context.Context, _ []Message, opts *Options) (*Result, error) {
	p.calls.Add(1)
	p.lastOpt = opts
	if p.err != nil {
		return nil, p.err
	}
	return &Result{Content: p.reply}, nil
}

func TestRouterExplicitProviderTarget(t *testing.T) {
	r := NewRouter(unreachableConfig(t), discardLogger())
	stub := &stubProvider{name: "stub", reply: "from stub"}
	r.Register(stub)

	result, err := r.Generate(context.Background(), nil, &Options{Provider: "stub"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "from stub" {
		t.Errorf("content = %q", result.Content)
	}
}

func TestRouterExplicitProviderNotConfigured(t *testing.T) {
	r := NewRouter(unreachableConfig(t), discardLogger())

	_, err := r.Generate(context.Background(), nil, &Options{Provider: "openai"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Provider != "openai" {
		t.Fatalf("err = %v", err)
	}
}

func TestRouterAutoDetectsOllamaAndCaches(t *testing.T) {
	var tagsHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		tagsHits.Add(1)
		fmt.Fprint(w, `{"models":[{"name":"llama3:8b"}]}`)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llama3:8b" {
			t.Errorf("model = %q, want detected model", req.Model)
		}
		resp := ollamaChatResponse{}
		resp.Message.Content = "ok"
		json.NewEncoder(w).Encode(resp)
	})
	srv := newTestHTTPServer(t, mux)

	r := NewRouter(RouterConfig{
		OllamaBaseURL:   srv,
		LlamaServerPort: deadPort(t),
	}, discardLogger())

	for i := 0; i < 2; i++ {
		if _, err := r.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil); err != nil {
			t.Fatal(err)
		}
	}
	if got := tagsHits.Load(); got != 1 {
		t.Errorf("probe hits = %d, want 1 (backend should be cached)", got)
	}
}

func TestRouterInvalidatesCacheOnFailure(t *testing.T) {
	var tagsHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		tagsHits.Add(1)
		fmt.Fprint(w, `{"models":[{"name":"llama3:8b"}]}`)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	})
	srv := newTestHTTPServer(t, mux)

	r := NewRouter(RouterConfig{
		OllamaBaseURL:   srv,
		LlamaServerPort: deadPort(t),
	}, discardLogger())

	for i := 0; i < 2; i++ {
		if _, err := r.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil); err == nil {
			t.Fatal("generation against failing backend succeeded")
		}
	}
	if got := tagsHits.Load(); got != 2 {
		t.Errorf("probe hits = %d, want 2 (failure should force re-detection)", got)
	}
}

func TestRouterNoReachableBackend(t *testing.T) {
	r := NewRouter(unreachableConfig(t), discardLogger())

	_, err := r.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("err = %v", err)
	}
	if genErr.Remediation == "" || !strings.Contains(err.Error(), "No model backend") {
		t.Errorf("missing remediation: %v", err)
	}
}

func TestRouterFallsBackToCloudCredentials(t *testing.T) {
	cfg := unreachableConfig(t)
	cfg.AnthropicKey = "test-key"
	r := NewRouter(cfg, discardLogger())
	stub := &stubProvider{name: "anthropic", reply: "cloud reply"}
	r.Register(stub)

	result, err := r.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "cloud reply" || stub.calls.Load() != 1 {
		t.Errorf("result = %+v, calls = %d", result, stub.calls.Load())
	}
}

func TestGenerationErrorFormat(t *testing.T) {
	cause := errors.New("connection refused")
	err := &GenerationError{
		Provider:    "ollama",
		Reason:      "request failed",
		Err:         cause,
		Remediation: "start the daemon",
	}
	msg := err.Error()
	for _, want := range []string{"generation failed", "ollama", "request failed", "connection refused", "start the daemon"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap broken")
	}
}
