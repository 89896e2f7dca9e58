package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nexuscli/nexuscli/internal/agent"
)

// RemoveTool deletes a file or directory within the workspace. Removals are
// captured by the runtime's post-tool checkpoint, so the file is always
// recoverable via the shadow git history even though the tool itself is
// destructive.
type RemoveTool struct {
	resolver Resolver
}

// NewRemoveTool creates a remove tool scoped to the workspace.
func NewRemoveTool(cfg Config) *RemoveTool {
	return &RemoveTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *RemoveTool) Name() string {
	return "fs_remove"
}

func (t *RemoveTool) Description() string {
	return "Remove a file or directory (recursively) from the workspace."
}

func (t *RemoveTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"remove_file", "remove_dir"},
				"description": "Whether to remove a single file or a directory tree.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to remove (relative to workspace).",
			},
			"summary": map[string]interface{}{
				"type":        "string",
				"description": "Optional one-line summary of why this is being removed.",
			},
		},
		"required": []string{"command", "path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *RemoveTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Command string `json:"command"`
		Path    string `json:"path"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	info, err := os.Lstat(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("path does not exist: %v", err)), nil
	}

	switch input.Command {
	case "remove_file":
		if info.IsDir() {
			return toolError(fmt.Sprintf("path %s is not a file", input.Path)), nil
		}
		if err := os.Remove(resolved); err != nil {
			return toolError(fmt.Sprintf("remove file: %v", err)), nil
		}
	case "remove_dir":
		if !info.IsDir() {
			return toolError(fmt.Sprintf("path %s is not a directory", input.Path)), nil
		}
		if err := os.RemoveAll(resolved); err != nil {
			return toolError(fmt.Sprintf("remove directory: %v", err)), nil
		}
	default:
		return toolError(fmt.Sprintf("unknown command %q, expected remove_file or remove_dir", input.Command)), nil
	}

	result := map[string]interface{}{
		"path":    input.Path,
		"command": input.Command,
	}
	if input.Summary != "" {
		result["summary"] = input.Summary
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
