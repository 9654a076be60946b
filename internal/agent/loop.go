// Package agent runs the reasoning loop: assemble context, generate,
// parse tool calls, dispatch, repeat until the agent answers.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/valetd/valet/internal/memory"
	"github.com/valetd/valet/internal/metrics"
	"github.com/valetd/valet/internal/provider"
	"github.com/valetd/valet/internal/session"
	"github.com/valetd/valet/internal/tools"
)

const (
	// DefaultMaxSteps bounds generate/dispatch iterations per turn.
	DefaultMaxSteps = 12

	// DefaultHistoryBudget caps transcript characters sent per
	// generation; oldest messages are dropped first.
	DefaultHistoryBudget = 48000

	// budgetExhaustedReply is returned when the loop runs out of steps
	// without the agent calling response.
	budgetExhaustedReply = "I ran out of reasoning steps before finishing. " +
		"The partial work is recorded above; ask me to continue if you want me to keep going."

	nudgeMessage = "Your reply was empty. Reply with a JSON tool call, " +
		`or use {"tool_name": "response", "tool_args": {"message": "..."}} to answer.`
)

// Generator is the slice of the provider router the loop needs.
type Generator interface {
	Generate(ctx context.Context, messages []provider.Message, opts *provider.Options) (*provider.Result, error)
}

// EventType tags loop progress events.
type EventType string

const (
	EventAssistant  EventType = "assistant"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventToolError  EventType = "tool_error"
)

// Event is one observable step of a running turn, for UI display.
type Event struct {
	Type EventType
	Tool string
	Args map[string]string
	Text string
}

// Config shapes one agent loop.
type Config struct {
	Name          string
	Description   string
	MaxSteps      int
	HistoryBudget int
	Options       provider.Options
}

// Loop drives one agent. It is not safe for concurrent Run calls on
// the same session.
type Loop struct {
	cfg      Config
	gen      Generator
	registry *tools.Registry
	memory   *memory.Memory
	logger   *slog.Logger

	// OnEvent, when set, receives progress events during Run.
	OnEvent func(Event)
}

// New creates a loop.
func New(cfg Config, gen Generator, registry *tools.Registry, mem *memory.Memory, logger *slog.Logger) *Loop {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.HistoryBudget <= 0 {
		cfg.HistoryBudget = DefaultHistoryBudget
	}
	if cfg.Description == "" {
		cfg.Description = "You are a capable personal assistant agent."
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:      cfg,
		gen:      gen,
		registry: registry,
		memory:   mem,
		logger:   logger.With("component", "agent", "agent", cfg.Name),
	}
}

// Registry exposes the loop's tool registry.
func (l *Loop) Registry() *tools.Registry { return l.registry }

// Memory exposes the loop's core memory.
func (l *Loop) Memory() *memory.Memory { return l.memory }

func (l *Loop) emit(ev Event) {
	if l.OnEvent != nil {
		l.OnEvent(ev)
	}
}

// Run processes one user turn. The transcript accumulates in sess;
// the returned string is the agent's final answer. Generation
// failures abort the turn; tool failures never do.
func (l *Loop) Run(ctx context.Context, sess *session.Session, input string) (string, error) {
	sess.Append(provider.Message{Role: provider.RoleUser, Content: input})

	nudged := false
	for step := 1; step <= l.cfg.MaxSteps; step++ {
		messages := l.assemble(sess)

		result, err := l.gen.Generate(ctx, messages, &l.cfg.Options)
		if err != nil {
			metrics.TurnsTotal.WithLabelValues("error").Inc()
			return "", fmt.Errorf("agent %s: %w", l.cfg.Name, err)
		}
		sess.Append(provider.Message{Role: provider.RoleAssistant, Content: result.Content})
		l.emit(Event{Type: EventAssistant, Text: result.Content})
		l.logger.Debug("generated", "step", step,
			"prompt_tokens", result.PromptTokens, "completion_tokens", result.CompletionTokens)

		calls := ParseToolCalls(result.Content)
		if len(calls) == 0 {
			if strings.TrimSpace(result.Content) != "" {
				// Plain prose with no invocation is the final answer.
				metrics.TurnsTotal.WithLabelValues("ok").Inc()
				return result.Content, nil
			}
			if nudged {
				metrics.TurnsTotal.WithLabelValues("ok").Inc()
				return result.Content, nil
			}
			nudged = true
			sess.Append(provider.Message{Role: provider.RoleUser, Content: nudgeMessage})
			continue
		}
		nudged = false

		for _, call := range calls {
			if call.Name == ResponseTool {
				metrics.TurnsTotal.WithLabelValues("ok").Inc()
				answer := call.Args["message"]
				if answer == "" {
					// Some models still emit the older "text" key.
					answer = call.Args["text"]
				}
				return answer, nil
			}
			l.dispatch(ctx, sess, call)
		}
	}

	metrics.TurnsTotal.WithLabelValues("budget_exhausted").Inc()
	l.logger.Warn("step budget exhausted", "max_steps", l.cfg.MaxSteps)
	sess.Append(provider.Message{Role: provider.RoleAssistant, Content: budgetExhaustedReply})
	return budgetExhaustedReply, nil
}

// assemble builds the provider message list for one generation.
func (l *Loop) assemble(sess *session.Session) []provider.Message {
	system := buildSystemPrompt(l.cfg.Description, l.memory.Compile(), l.registry)
	messages := make([]provider.Message, 0, len(sess.Messages)+1)
	messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: system})
	messages = append(messages, sess.Messages...)
	return trimHistory(messages, l.cfg.HistoryBudget)
}

// dispatch runs one tool call and appends its outcome to the
// transcript. Failures become error text the model can react to.
func (l *Loop) dispatch(ctx context.Context, sess *session.Session, call ToolCall) {
	l.emit(Event{Type: EventToolCall, Tool: call.Name, Args: call.Args})
	l.logger.Info("tool call", "tool", call.Name)

	output, err := l.registry.Invoke(ctx, call.Name, call.Args)
	if err != nil {
		var notFound *tools.NotFoundError
		text := fmt.Sprintf("Error: %v", err)
		if errors.As(err, &notFound) {
			text = fmt.Sprintf("Error: tool '%s' not found", call.Name)
		}
		sess.Append(provider.Message{
			Role:    provider.RoleTool,
			Name:    call.Name,
			Content: text,
		})
		l.emit(Event{Type: EventToolError, Tool: call.Name, Text: text})
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "error").Inc()
		l.logger.Warn("tool failed", "tool", call.Name, "error", err)
		return
	}
	metrics.ToolCallsTotal.WithLabelValues(call.Name, "ok").Inc()

	sess.Append(provider.Message{
		Role:    provider.RoleTool,
		Name:    call.Name,
		Content: output,
	})
	l.emit(Event{Type: EventToolResult, Tool: call.Name, Text: output})

	if tool, ok := l.registry.Lookup(call.Name); ok && tools.MutatesMemory(tool) {
		message := fmt.Sprintf("Auto-snapshot after tool %s", call.Name)
		if _, err := l.memory.Commit(message); err != nil {
			l.logger.Warn("auto-snapshot failed", "tool", call.Name, "error", err)
		}
	}
}
