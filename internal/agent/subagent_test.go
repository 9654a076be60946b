package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/valetd/valet/internal/memory"
	"github.com/valetd/valet/internal/tools"
)

func newParentWithSubagent(t *testing.T, subGen Generator) (*Loop, *tools.Registry) {
	t.Helper()
	stateDir := t.TempDir()
	mem, err := memory.Open(stateDir, "valet", discardLogger())
	if err != nil {
		t.Fatalf("memory.Open: %v", err)
	}
	t.Cleanup(mem.Flush)

	reg := tools.NewRegistry()
	if err := reg.Register(&echoTool{}); err != nil {
		t.Fatal(err)
	}
	parent := New(Config{Name: "valet"}, &scriptedGen{replies: []string{responseCall("unused")}}, reg, mem, discardLogger())

	sub := &SubagentTool{
		StateDir: stateDir,
		Gen:      subGen,
		Parent:   parent,
		Logger:   discardLogger(),
	}
	if err := reg.Register(sub); err != nil {
		t.Fatal(err)
	}
	return parent, reg
}

func TestSubagentReturnsAnswer(t *testing.T) {
	subGen := &scriptedGen{replies: []string{responseCall("delegated result")}}
	_, reg := newParentWithSubagent(t, subGen)

	out, err := reg.Invoke(context.Background(), "call_subordinate", map[string]string{
		"message": "summarize the notes",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "delegated result" {
		t.Errorf("answer = %q", out)
	}
}

func TestSubagentInheritsMemoryReadOnly(t *testing.T) {
	subGen := &scriptedGen{replies: []string{responseCall("done")}}
	parent, reg := newParentWithSubagent(t, subGen)

	parent.Memory().Clear("human")
	parent.Memory().Append("human", "The user is Ana.")

	if _, err := reg.Invoke(context.Background(), "call_subordinate", map[string]string{
		"message": "who is the user?",
	}); err != nil {
		t.Fatal(err)
	}

	prompt := subGen.calls[0][0]
	if prompt.Role != "system" || !strings.Contains(prompt.Content, "The user is Ana.") {
		t.Errorf("subordinate system prompt missing inherited memory: %q", prompt.Content)
	}
}

func TestSubagentCannotDelegateFurther(t *testing.T) {
	subGen := &scriptedGen{replies: []string{responseCall("done")}}
	_, reg := newParentWithSubagent(t, subGen)

	if _, err := reg.Invoke(context.Background(), "call_subordinate", map[string]string{
		"message": "task",
	}); err != nil {
		t.Fatal(err)
	}

	prompt := subGen.calls[0][0].Content
	if strings.Contains(prompt, "call_subordinate") {
		t.Error("subordinate tool catalog includes the delegation tool")
	}
	if !strings.Contains(prompt, "echo") {
		t.Error("subordinate tool catalog missing inherited tools")
	}
}

func TestSubagentRoleShapesDescription(t *testing.T) {
	subGen := &scriptedGen{replies: []string{responseCall("done")}}
	_, reg := newParentWithSubagent(t, subGen)

	if _, err := reg.Invoke(context.Background(), "call_subordinate", map[string]string{
		"message": "task",
		"role":    "a meticulous researcher",
	}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(subGen.calls[0][0].Content, "a meticulous researcher") {
		t.Error("role not reflected in subordinate description")
	}
}
