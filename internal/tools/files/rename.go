package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexuscli/nexuscli/internal/agent"
)

// RenameTool moves or renames a file or directory within the workspace.
type RenameTool struct {
	resolver Resolver
}

// NewRenameTool creates a rename tool scoped to the workspace.
func NewRenameTool(cfg Config) *RenameTool {
	return &RenameTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *RenameTool) Name() string {
	return "fs_rename"
}

func (t *RenameTool) Description() string {
	return "Rename or move a file or directory within the workspace."
}

func (t *RenameTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"original_path": map[string]interface{}{
				"type":        "string",
				"description": "Existing path to rename (relative to workspace).",
			},
			"new_path": map[string]interface{}{
				"type":        "string",
				"description": "Destination path (relative to workspace).",
			},
		},
		"required": []string{"original_path", "new_path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *RenameTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		OriginalPath string `json:"original_path"`
		NewPath      string `json:"new_path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.OriginalPath) == "" || strings.TrimSpace(input.NewPath) == "" {
		return toolError("original_path and new_path are required"), nil
	}

	from, err := t.resolver.Resolve(input.OriginalPath)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if _, err := os.Lstat(from); err != nil {
		return toolError(fmt.Sprintf("path does not exist: %v", err)), nil
	}

	to, err := t.resolver.Resolve(input.NewPath)
	if err != nil {
		return toolError(err.Error()), nil
	}
	overwritten := false
	if _, err := os.Lstat(to); err == nil {
		overwritten = true
	}

	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return toolError(fmt.Sprintf("create destination directory: %v", err)), nil
	}
	if err := os.Rename(from, to); err != nil {
		return toolError(fmt.Sprintf("rename: %v", err)), nil
	}

	result := map[string]interface{}{
		"original_path": input.OriginalPath,
		"new_path":      input.NewPath,
		"overwritten":   overwritten,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
