package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/valetd/valet/internal/memory"
	"github.com/valetd/valet/internal/provider"
	"github.com/valetd/valet/internal/session"
	"github.com/valetd/valet/internal/tools"
	"github.com/valetd/valet/internal/tools/corememory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedGen replays canned model replies in order and records the
// message lists it was called with. After the script runs out it
// keeps returning the last reply.
type scriptedGen struct {
	replies []string
	calls   [][]provider.Message
	err     error
}

func (g *scriptedGen) Generate(_ context.Context, messages []provider.Message, _ *provider.Options) (*provider.Result, error) {
	g.calls = append(g.calls, messages)
	if g.err != nil {
		return nil, g.err
	}
	idx := len(g.calls) - 1
	if idx >= len(g.replies) {
		idx = len(g.replies) - 1
	}
	return &provider.Result{Content: g.replies[idx]}, nil
}

type echoTool struct {
	invocations []map[string]string
	fail        bool
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echo the text argument" }
func (t *echoTool) Schema() tools.Schema {
	return tools.Schema{
		Properties: map[string]tools.Property{
			"text": {Type: tools.TypeString, Description: "Text to echo"},
		},
		Required: []string{"text"},
	}
}
func (t *echoTool) RiskLevel() tools.Risk { return tools.RiskLow }
func (t *echoTool) Invoke(_ context.Context, args map[string]string) (string, error) {
	t.invocations = append(t.invocations, args)
	if t.fail {
		return "", errors.New("echo is broken")
	}
	return "echoed: " + args["text"], nil
}

func newTestLoop(t *testing.T, gen Generator, reg *tools.Registry) *Loop {
	t.Helper()
	mem, err := memory.Open(t.TempDir(), "test", discardLogger())
	if err != nil {
		t.Fatalf("memory.Open: %v", err)
	}
	t.Cleanup(mem.Flush)
	if reg == nil {
		reg = tools.NewRegistry()
	}
	return New(Config{Name: "test"}, gen, reg, mem, discardLogger())
}

func responseCall(text string) string {
	return fmt.Sprintf(`{"tool_name": "response", "tool_args": {"message": %q}}`, text)
}

func TestRunSingleResponse(t *testing.T) {
	gen := &scriptedGen{replies: []string{responseCall("hello there")}}
	loop := newTestLoop(t, gen, nil)

	sess := session.New("test")
	answer, err := loop.Run(context.Background(), sess, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "hello there" {
		t.Errorf("answer = %q", answer)
	}
	if len(sess.Messages) != 2 {
		t.Errorf("transcript = %d messages, want user + assistant", len(sess.Messages))
	}
	if len(gen.calls) != 1 {
		t.Fatalf("generations = %d, want 1", len(gen.calls))
	}
	system := gen.calls[0][0]
	if system.Role != provider.RoleSystem {
		t.Fatalf("first message role = %s", system.Role)
	}
	for _, want := range []string{"<persona>", "<human>", "response", "tool_name"} {
		if !strings.Contains(system.Content, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestRunToolThenResponse(t *testing.T) {
	echo := &echoTool{}
	reg := tools.NewRegistry()
	if err := reg.Register(echo); err != nil {
		t.Fatal(err)
	}
	gen := &scriptedGen{replies: []string{
		`Let me check. {"tool_name": "echo", "tool_args": {"text": "ping"}}`,
		responseCall("done"),
	}}
	loop := newTestLoop(t, gen, reg)

	sess := session.New("test")
	answer, err := loop.Run(context.Background(), sess, "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "done" {
		t.Errorf("answer = %q", answer)
	}
	if len(echo.invocations) != 1 || echo.invocations[0]["text"] != "ping" {
		t.Errorf("echo invocations = %+v", echo.invocations)
	}

	var roles []string
	for _, m := range sess.Messages {
		roles = append(roles, m.Role)
	}
	want := []string{provider.RoleUser, provider.RoleAssistant, provider.RoleTool, provider.RoleAssistant}
	if strings.Join(roles, " ") != strings.Join(want, " ") {
		t.Errorf("transcript roles = %v, want %v", roles, want)
	}

	result := sess.Messages[2]
	if result.Name != "echo" || result.Content != "echoed: ping" {
		t.Errorf("tool message = %+v", result)
	}
}

func TestRunResponseAcceptsLegacyTextKey(t *testing.T) {
	gen := &scriptedGen{replies: []string{
		`{"tool_name": "response", "tool_args": {"text": "old style"}}`,
	}}
	loop := newTestLoop(t, gen, nil)

	answer, err := loop.Run(context.Background(), session.New("test"), "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "old style" {
		t.Errorf("answer = %q", answer)
	}
}

func TestRunUnknownToolNotFatal(t *testing.T) {
	gen := &scriptedGen{replies: []string{
		`{"tool_name": "missing", "tool_args": {}}`,
		responseCall("recovered"),
	}}
	loop := newTestLoop(t, gen, nil)

	sess := session.New("test")
	answer, err := loop.Run(context.Background(), sess, "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "recovered" {
		t.Errorf("answer = %q", answer)
	}
	var sawError bool
	for _, m := range sess.Messages {
		if m.Role == provider.RoleTool && m.Content == "Error: tool 'missing' not found" {
			sawError = true
		}
	}
	if !sawError {
		t.Error("synthetic not-found error missing from transcript")
	}
}

func TestRunToolFailureNotFatal(t *testing.T) {
	echo := &echoTool{fail: true}
	reg := tools.NewRegistry()
	reg.Register(echo)
	gen := &scriptedGen{replies: []string{
		`{"tool_name": "echo", "tool_args": {"text": "x"}}`,
		responseCall("moved on"),
	}}
	loop := newTestLoop(t, gen, reg)

	sess := session.New("test")
	answer, err := loop.Run(context.Background(), sess, "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "moved on" {
		t.Errorf("answer = %q", answer)
	}
	var sawError bool
	for _, m := range sess.Messages {
		if strings.Contains(m.Content, "echo is broken") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("tool error missing from transcript")
	}
}

func TestRunPlainTextIsFinalAnswer(t *testing.T) {
	gen := &scriptedGen{replies: []string{
		"The answer is 42.",
		"This reply should never be requested.",
	}}
	loop := newTestLoop(t, gen, nil)

	sess := session.New("test")
	answer, err := loop.Run(context.Background(), sess, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "The answer is 42." {
		t.Errorf("answer = %q", answer)
	}
	if len(gen.calls) != 1 {
		t.Errorf("generations = %d, want 1 (plain text terminates)", len(gen.calls))
	}
}

func TestRunNudgesOnceOnWhitespaceReply(t *testing.T) {
	gen := &scriptedGen{replies: []string{
		"   \n\t",
		responseCall("recovered"),
	}}
	loop := newTestLoop(t, gen, nil)

	sess := session.New("test")
	answer, err := loop.Run(context.Background(), sess, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "recovered" {
		t.Errorf("answer = %q", answer)
	}
	var sawNudge bool
	for _, m := range sess.Messages {
		if strings.Contains(m.Content, "Your reply was empty") {
			sawNudge = true
		}
	}
	if !sawNudge {
		t.Error("nudge missing from transcript")
	}
}

func TestRunSecondWhitespaceReplyTerminates(t *testing.T) {
	gen := &scriptedGen{replies: []string{"", "  "}}
	loop := newTestLoop(t, gen, nil)

	answer, err := loop.Run(context.Background(), session.New("test"), "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(answer) != "" {
		t.Errorf("answer = %q", answer)
	}
	if len(gen.calls) != 2 {
		t.Errorf("generations = %d, want 2 (one nudge, then stop)", len(gen.calls))
	}
}

func TestRunStepBudgetExhausted(t *testing.T) {
	echo := &echoTool{}
	reg := tools.NewRegistry()
	reg.Register(echo)
	gen := &scriptedGen{replies: []string{
		`{"tool_name": "echo", "tool_args": {"text": "again"}}`,
	}}

	mem, err := memory.Open(t.TempDir(), "test", discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mem.Flush)
	loop := New(Config{Name: "test", MaxSteps: 3}, gen, reg, mem, discardLogger())

	answer, err := loop.Run(context.Background(), session.New("test"), "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(answer, "ran out of reasoning steps") {
		t.Errorf("answer = %q", answer)
	}
	if len(echo.invocations) != 3 {
		t.Errorf("invocations = %d, want 3", len(echo.invocations))
	}
}

func TestRunGenerationFailureIsFatal(t *testing.T) {
	gen := &scriptedGen{err: errors.New("backend down")}
	loop := newTestLoop(t, gen, nil)

	_, err := loop.Run(context.Background(), session.New("test"), "hi")
	if err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("err = %v, want generation failure", err)
	}
}

func TestRunMultipleCallsDispatchInOrder(t *testing.T) {
	echo := &echoTool{}
	reg := tools.NewRegistry()
	reg.Register(echo)
	gen := &scriptedGen{replies: []string{
		`{"tool_name": "echo", "tool_args": {"text": "first"}}
		 {"tool_name": "echo", "tool_args": {"text": "second"}}
		 {"tool_name": "response", "tool_args": {"message": "all done"}}`,
	}}
	loop := newTestLoop(t, gen, reg)

	answer, err := loop.Run(context.Background(), session.New("test"), "go")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "all done" {
		t.Errorf("answer = %q", answer)
	}
	if len(echo.invocations) != 2 ||
		echo.invocations[0]["text"] != "first" || echo.invocations[1]["text"] != "second" {
		t.Errorf("invocations = %+v", echo.invocations)
	}
}

func TestRunAutoSnapshotsAfterMemoryMutation(t *testing.T) {
	mem, err := memory.Open(t.TempDir(), "test", discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mem.Flush)

	reg := tools.NewRegistry()
	if err := corememory.RegisterAll(reg, mem); err != nil {
		t.Fatal(err)
	}
	gen := &scriptedGen{replies: []string{
		`{"tool_name": "core_memory_append", "tool_args": {"label": "human", "content": "Likes tea."}}`,
		responseCall("noted"),
	}}
	loop := New(Config{Name: "test"}, gen, reg, mem, discardLogger())

	if _, err := loop.Run(context.Background(), session.New("test"), "remember this"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	head := mem.Versions().Head()
	if head == nil {
		t.Fatal("no snapshot committed")
	}
	if head.Message != "Auto-snapshot after tool core_memory_append" {
		t.Errorf("message = %q", head.Message)
	}
	block, _ := mem.Get("human")
	if !strings.Contains(block.Value, "Likes tea.") {
		t.Errorf("human block = %q", block.Value)
	}
}

func TestTrimHistoryKeepsSystemAndCurrentTurn(t *testing.T) {
	messages := []provider.Message{
		{Role: provider.RoleSystem, Content: strings.Repeat("s", 100)},
		{Role: provider.RoleUser, Content: strings.Repeat("a", 400)},
		{Role: provider.RoleAssistant, Content: strings.Repeat("b", 400)},
		{Role: provider.RoleUser, Content: "current question"},
	}
	trimmed := trimHistory(messages, 600)
	if len(trimmed) < 2 {
		t.Fatalf("trimmed to %d messages", len(trimmed))
	}
	if trimmed[0].Role != provider.RoleSystem {
		t.Error("system prompt dropped")
	}
	if trimmed[len(trimmed)-1].Content != "current question" {
		t.Error("current turn dropped")
	}
	total := 0
	for _, m := range trimmed {
		total += len(m.Content)
	}
	if total > 600 && len(trimmed) > 2 {
		t.Errorf("still %d chars over budget", total)
	}
}

func TestTrimHistoryNoopUnderBudget(t *testing.T) {
	messages := []provider.Message{
		{Role: provider.RoleSystem, Content: "sys"},
		{Role: provider.RoleUser, Content: "hi"},
	}
	if got := trimHistory(messages, 1000); len(got) != 2 {
		t.Errorf("trimmed = %d messages", len(got))
	}
}
