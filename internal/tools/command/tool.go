// Package command implements the internal_command tool, which lets the
// model invoke a small set of session meta-operations (help, usage,
// compact) rather than file or shell actions.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexuscli/nexuscli/internal/agent"
)

// knownCommands mirrors the fixed dispatch table of meta-commands the
// model may request; anything else is rejected up front.
var knownCommands = map[string]string{
	"help":    "Show help information about available commands",
	"usage":   "Show the current session's context window usage",
	"compact": "Summarize and compact the conversation history",
	"clear":   "Clear the current conversation history",
}

// Summarizer triggers an out-of-band history compaction. Implemented by
// internal/agent.Runtime.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID string) (string, error)
}

// Tool is the internal_command tool.
type Tool struct {
	summarizer Summarizer
}

// NewTool creates an internal_command tool. summarizer may be nil, in
// which case "compact" reports that compaction is unavailable.
func NewTool(summarizer Summarizer) *Tool {
	return &Tool{summarizer: summarizer}
}

func (t *Tool) Name() string {
	return "internal_command"
}

func (t *Tool) Description() string {
	return "Runs a session meta-command (help, usage, compact, clear) rather than a file or shell action."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "command": {
      "type": "string",
      "enum": ["help", "usage", "compact", "clear"],
      "description": "The meta-command to run."
    },
    "args": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Optional positional arguments for the command."
    }
  },
  "required": ["command"]
}`)
}

type input struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in input
	if err := json.Unmarshal(params, &in); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid params: %v", err), IsError: true}, nil
	}

	cmd := strings.TrimPrefix(strings.TrimSpace(in.Command), "/")
	description, known := knownCommands[cmd]
	if !known {
		return &agent.ToolResult{Content: fmt.Sprintf("unknown command: %s", in.Command), IsError: true}, nil
	}

	switch cmd {
	case "help":
		var out strings.Builder
		out.WriteString("Available commands:\n")
		for _, name := range []string{"help", "usage", "compact", "clear"} {
			fmt.Fprintf(&out, "- /%s: %s\n", name, knownCommands[name])
		}
		return &agent.ToolResult{Content: out.String()}, nil
	case "usage":
		return &agent.ToolResult{Content: description + " is not tracked by this tool; see the runtime's token usage events."}, nil
	case "compact":
		if t.summarizer == nil {
			return &agent.ToolResult{Content: "compaction is not available in this session", IsError: true}, nil
		}
		session := agent.SessionFromContext(ctx)
		if session == nil {
			return &agent.ToolResult{Content: "no active session to compact", IsError: true}, nil
		}
		summary, err := t.summarizer.Summarize(ctx, session.ID)
		if err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("compaction failed: %v", err), IsError: true}, nil
		}
		return &agent.ToolResult{Content: "conversation compacted: " + summary}, nil
	case "clear":
		return &agent.ToolResult{Content: "history clearing must be confirmed interactively; this tool only reports status"}, nil
	default:
		return &agent.ToolResult{Content: fmt.Sprintf("unsupported command: %s", cmd), IsError: true}, nil
	}
}
