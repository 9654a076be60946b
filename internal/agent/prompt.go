package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valetd/valet/internal/provider"
	"github.com/valetd/valet/internal/tools"
)

// ResponseTool is the terminal pseudo-tool. The loop intercepts it
// instead of dispatching to the registry.
const ResponseTool = "response"

const protocolInstructions = `## How to act

Respond with one or more JSON tool calls, each shaped exactly like:

{"tool_name": "<name>", "tool_args": {"<arg>": "<value>"}}

Rules:
- Every reply must contain at least one tool call.
- To answer the user and finish the turn, call the "response" tool
  with the final text in its "message" argument.
- Multiple tool calls in one reply run in order of appearance.
- Tool results come back as tool messages named after the tool.
- If a tool fails, read the error and adjust; do not repeat the exact
  same failing call.`

// buildSystemPrompt assembles the system message: agent description,
// compiled core memory, the tool catalog, and the call protocol.
func buildSystemPrompt(description, compiledMemory string, registry *tools.Registry) string {
	var b strings.Builder
	b.WriteString(description)
	b.WriteString("\n\n## Core memory\n\n")
	if compiledMemory == "" {
		b.WriteString("(empty)")
	} else {
		b.WriteString(compiledMemory)
	}
	b.WriteString("\n\n## Tools\n\n")
	b.WriteString(renderCatalog(registry))
	b.WriteString("\n\n")
	b.WriteString(protocolInstructions)
	return b.String()
}

// renderCatalog lists every registered tool plus the terminal
// response tool, sorted by name.
func renderCatalog(registry *tools.Registry) string {
	list := registry.List()
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })

	var b strings.Builder
	writeEntry(&b, ResponseTool, "Send the final answer to the user and end the turn.",
		tools.Schema{
			Properties: map[string]tools.Property{
				"message": {Type: tools.TypeString, Description: "The answer text"},
			},
			Required: []string{"message"},
		})
	for _, tool := range list {
		b.WriteString("\n")
		writeEntry(&b, tool.Name(), tool.Description(), tool.Schema())
	}
	return b.String()
}

func writeEntry(b *strings.Builder, name, description string, schema tools.Schema) {
	fmt.Fprintf(b, "### %s\n%s\n", name, description)
	if len(schema.Properties) == 0 {
		b.WriteString("Arguments: none\n")
		return
	}
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for propName := range schema.Properties {
		names = append(names, propName)
	}
	sort.Strings(names)

	b.WriteString("Arguments:\n")
	for _, propName := range names {
		prop := schema.Properties[propName]
		marker := "optional"
		if required[propName] {
			marker = "required"
		}
		fmt.Fprintf(b, "- %s (%s, %s): %s", propName, prop.Type, marker, prop.Description)
		if len(prop.Enum) > 0 {
			fmt.Fprintf(b, " [one of: %s]", strings.Join(prop.Enum, ", "))
		}
		b.WriteString("\n")
	}
}

// trimHistory drops the oldest messages until the total content size
// fits the budget. The system prompt (index 0) and the final message
// (the current user turn) always survive.
func trimHistory(messages []provider.Message, budget int) []provider.Message {
	if budget <= 0 || len(messages) <= 2 {
		return messages
	}
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	if total <= budget {
		return messages
	}

	kept := messages[1 : len(messages)-1]
	for len(kept) > 0 && total > budget {
		total -= len(kept[0].Content)
		kept = kept[1:]
	}
	out := make([]provider.Message, 0, len(kept)+2)
	out = append(out, messages[0])
	out = append(out, kept...)
	out = append(out, messages[len(messages)-1])
	return out
}
