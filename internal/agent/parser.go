package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ToolCall is one parsed tool invocation from model output.
type ToolCall struct {
	Name string            `json:"tool_name"`
	Args map[string]string `json:"tool_args"`
}

// ParseToolCalls extracts tool calls from free-form model text. The
// model is asked for bare {"tool_name": ..., "tool_args": {...}}
// objects but routinely wraps them in prose or code fences, so the
// parser scans for balanced top-level JSON objects and keeps the ones
// that decode to a tool call. Order of appearance is preserved.
func ParseToolCalls(text string) []ToolCall {
	var calls []ToolCall
	for _, candidate := range scanObjects(text) {
		if call, ok := decodeToolCall(candidate); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// scanObjects returns every balanced top-level {...} span in text,
// tracking JSON string and escape state so braces inside strings do
// not confuse the depth count.
func scanObjects(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	return spans
}

// decodeToolCall accepts an object with a string tool_name. Argument
// values of any JSON type are flattened to strings; nested arrays and
// objects keep their JSON encoding so the tool layer can coerce them
// back.
func decodeToolCall(candidate string) (ToolCall, bool) {
	var raw struct {
		Name json.RawMessage `json:"tool_name"`
		Args map[string]any  `json:"tool_args"`
	}
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return ToolCall{}, false
	}
	var name string
	if err := json.Unmarshal(raw.Name, &name); err != nil || name == "" {
		return ToolCall{}, false
	}

	call := ToolCall{Name: name, Args: make(map[string]string, len(raw.Args))}
	for key, val := range raw.Args {
		call.Args[key] = flattenArg(val)
	}
	return call, true
}

func flattenArg(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
