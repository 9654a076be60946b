package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fakeOllama(t *testing.T, models []string, chat func(w http.ResponseWriter, req ollamaChatRequest)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		var tags ollamaTagsResponse
		for _, name := range models {
			tags.Models = append(tags.Models, struct {
				Name string `json:"name"`
			}{Name: name})
		}
		json.NewEncoder(w).Encode(tags)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		chat(w, req)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaGenerate(t *testing.T) {
	srv := fakeOllama(t, nil, func(w http.ResponseWriter, req ollamaChatRequest) {
		if req.Model != "llama3" {
			t.Errorf("model = %q", req.Model)
		}
		if req.Stream {
			t.Error("streaming requested")
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "hi" {
			t.Errorf("messages = %+v", req.Messages)
		}
		resp := ollamaChatResponse{PromptEvalCount: 10, EvalCount: 5}
		resp.Message.Content = "hello there"
		json.NewEncoder(w).Encode(resp)
	})

	p := NewOllama(OllamaConfig{BaseURL: srv.URL, DefaultModel: "llama3"})
	result, err := p.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "hello there" || result.PromptTokens != 10 || result.CompletionTokens != 5 {
		t.Errorf("result = %+v", result)
	}
}

func TestOllamaGenerateRequiresModel(t *testing.T) {
	p := NewOllama(OllamaConfig{BaseURL: "http://localhost:1"})
	_, err := p.Generate(context.Background(), nil, nil)
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Provider != "ollama" {
		t.Fatalf("err = %v", err)
	}
}

func TestOllamaGenerateSurfacesAPIError(t *testing.T) {
	srv := fakeOllama(t, nil, func(w http.ResponseWriter, req ollamaChatRequest) {
		json.NewEncoder(w).Encode(ollamaChatResponse{Error: "model not loaded"})
	})

	p := NewOllama(OllamaConfig{BaseURL: srv.URL, DefaultModel: "llama3"})
	_, err := p.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	var genErr *GenerationError
	if !errors.As(err, &genErr) || !strings.Contains(genErr.Reason, "model not loaded") {
		t.Fatalf("err = %v", err)
	}
}

func TestOllamaGenerateSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: srv.URL, DefaultModel: "llama3"})
	_, err := p.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	var genErr *GenerationError
	if !errors.As(err, &genErr) || !strings.Contains(genErr.Reason, "status 500") {
		t.Fatalf("err = %v", err)
	}
}

func TestProbeOllamaPrefersNonCloudModel(t *testing.T) {
	srv := fakeOllama(t, []string{"qwen-cloud:latest", "llama3:8b"}, nil)

	model, ok := ProbeOllama(context.Background(), srv.URL)
	if !ok || model != "llama3:8b" {
		t.Errorf("probe = %q, %v", model, ok)
	}
}

func TestProbeOllamaFallsBackToFirstModel(t *testing.T) {
	srv := fakeOllama(t, []string{"qwen-cloud:latest"}, nil)

	model, ok := ProbeOllama(context.Background(), srv.URL)
	if !ok || model != "qwen-cloud:latest" {
		t.Errorf("probe = %q, %v", model, ok)
	}
}

func TestProbeOllamaUnreachable(t *testing.T) {
	if _, ok := ProbeOllama(context.Background(), deadBaseURL(t)); ok {
		t.Error("probe succeeded against a dead port")
	}
}

func TestProbeOllamaNoModels(t *testing.T) {
	srv := fakeOllama(t, nil, nil)
	if _, ok := ProbeOllama(context.Background(), srv.URL); ok {
		t.Error("probe succeeded with no models installed")
	}
}
