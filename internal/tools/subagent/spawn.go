// Package subagent exposes spawn/status/cancel tools backed by the
// internal/subagent OS-process supervisor: each sub-agent is a real child
// process of the running binary, not an in-process goroutine, so a crash
// in one sub-agent can never take down the parent's turn loop.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nexuscli/nexuscli/internal/agent"
	"github.com/nexuscli/nexuscli/internal/subagent"
)

// SubAgent is the tool-facing view of a subagent.Record, keeping the
// field names this package's callers already depend on.
type SubAgent struct {
	ID           string `json:"id"`
	ParentID     string `json:"parent_id"`
	Name         string `json:"name"`
	Task         string `json:"task"`
	Status       string `json:"status"`
	Result       string `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
	DeniedTools  []string `json:"denied_tools,omitempty"`
}

func fromRecord(r *subagent.Record) *SubAgent {
	return &SubAgent{
		ID:       r.Name,
		ParentID: r.ParentID,
		Name:     r.Name,
		Task:     r.Task,
		Status:   string(r.Status),
		Result:   r.Result,
		Error:    r.Error,
	}
}

// Manager is the tool-level façade over a subagent.Supervisor. It no
// longer runs sub-agent turns in-process; spawning hands off to a real
// child process of the current binary, re-entering the CLI with its own
// task and tool-policy flags.
type Manager struct {
	supervisor *Supervisor
	announcer  func(ctx context.Context, parentSession string, msg string) error
}

// Supervisor is the subset of *subagent.Supervisor the tool façade needs;
// aliased here so callers can swap implementations in tests.
type Supervisor = subagent.Supervisor

// NewManager creates a Manager backed by a subagent.Supervisor rooted at
// workDir. binaryPath is normally left empty, in which case the running
// executable's own path (via os.Executable) is used so spawned sub-agents
// re-enter this same CLI.
func NewManager(workDir, binaryPath string, maxActive int) (*Manager, error) {
	if binaryPath == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve own executable for subagent spawn: %w", err)
		}
		binaryPath = self
	}
	return &Manager{
		supervisor: subagent.NewSupervisor(workDir, binaryPath, maxActive, nil),
	}, nil
}

// SetAnnouncer sets the function used to announce sub-agent spawns back
// to the parent session.
func (m *Manager) SetAnnouncer(fn func(ctx context.Context, parentSession string, msg string) error) {
	m.announcer = fn
}

// Spawn launches a new sub-agent process and returns its initial record.
func (m *Manager) Spawn(ctx context.Context, parentID, parentSession, name, task string, allowedTools, deniedTools []string) (*SubAgent, error) {
	record, err := m.supervisor.Spawn(ctx, parentID, name, task, allowedTools, deniedTools)
	if err != nil {
		return nil, err
	}

	if m.announcer != nil {
		announcement := fmt.Sprintf("Spawning sub-agent %q to: %s", name, task)
		if err := m.announcer(ctx, parentSession, announcement); err != nil {
			_ = err // best-effort announcement
		}
	}

	sa := fromRecord(record)
	sa.AllowedTools = allowedTools
	sa.DeniedTools = deniedTools
	return sa, nil
}

// Get returns a sub-agent's current record by name.
func (m *Manager) Get(name string) (*SubAgent, bool) {
	record, err := m.supervisor.Get(name)
	if err != nil {
		return nil, false
	}
	return fromRecord(record), true
}

// List returns every sub-agent spawned by parentID.
func (m *Manager) List(parentID string) []*SubAgent {
	records, err := m.supervisor.List()
	if err != nil {
		return nil
	}
	var result []*SubAgent
	for _, r := range records {
		if r.ParentID == parentID {
			result = append(result, fromRecord(r))
		}
	}
	return result
}

// Cancel terminates a running sub-agent process.
func (m *Manager) Cancel(name string) error {
	return m.supervisor.Cancel(name)
}

// Remove deletes a sub-agent's sidecar record once its terminal status has
// been read, so status listings don't accumulate finished sub-agents forever.
func (m *Manager) Remove(name string) error {
	return m.supervisor.Remove(name)
}

// ActiveCount returns the number of sub-agents currently running.
func (m *Manager) ActiveCount() int {
	records, err := m.supervisor.List()
	if err != nil {
		return 0
	}
	count := 0
	for _, r := range records {
		if r.Status == subagent.StatusRunning {
			count++
		}
	}
	return count
}

// SpawnTool is a tool for spawning sub-agents.
type SpawnTool struct {
	manager *Manager
}

// NewSpawnTool creates a new spawn tool.
func NewSpawnTool(manager *Manager) *SpawnTool {
	return &SpawnTool{manager: manager}
}

// Name returns the tool name.
func (t *SpawnTool) Name() string {
	return "spawn_subagent"
}

// Description returns the tool description.
func (t *SpawnTool) Description() string {
	return "Spawn a sub-agent to work on a specific task. Returns the sub-agent name for tracking."
}

// Schema returns the tool's input schema.
func (t *SpawnTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "A short name for the sub-agent (e.g., 'researcher', 'coder')",
			},
			"task": map[string]any{
				"type":        "string",
				"description": "The task for the sub-agent to complete",
			},
			"allowed_tools": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Tools the sub-agent is allowed to use (optional, defaults to all)",
			},
			"denied_tools": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Tools the sub-agent is NOT allowed to use (optional)",
			},
		},
		"required": []string{"name", "task"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute spawns a sub-agent.
func (t *SpawnTool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var params struct {
		Name         string   `json:"name"`
		Task         string   `json:"task"`
		AllowedTools []string `json:"allowed_tools"`
		DeniedTools  []string `json:"denied_tools"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError(fmt.Sprintf("invalid input: %v", err)), nil
	}

	if params.Name == "" {
		return toolError("name is required"), nil
	}
	if params.Task == "" {
		return toolError("task is required"), nil
	}

	parentID := ""
	parentSession := ""
	if session := agent.SessionFromContext(ctx); session != nil {
		parentID = session.AgentID
		parentSession = session.ID
	}

	sa, err := t.manager.Spawn(ctx, parentID, parentSession, params.Name, params.Task, params.AllowedTools, params.DeniedTools)
	if err != nil {
		return toolError(err.Error()), nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("Sub-agent %q spawned.\nTask: %s\nUse subagent_status to check progress.", sa.Name, params.Task)}, nil
}

// StatusTool is a tool for checking sub-agent status.
type StatusTool struct {
	manager *Manager
}

// NewStatusTool creates a new status tool.
func NewStatusTool(manager *Manager) *StatusTool {
	return &StatusTool{manager: manager}
}

// Name returns the tool name.
func (t *StatusTool) Name() string {
	return "subagent_status"
}

// Description returns the tool description.
func (t *StatusTool) Description() string {
	return "Check the status of a sub-agent or list all sub-agents."
}

// Schema returns the tool's input schema.
func (t *StatusTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Sub-agent name to check (optional, omit to list all)",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute checks sub-agent status.
func (t *StatusTool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError(fmt.Sprintf("invalid input: %v", err)), nil
	}

	if params.Name != "" {
		sa, ok := t.manager.Get(params.Name)
		if !ok {
			return toolError(fmt.Sprintf("sub-agent not found: %s", params.Name)), nil
		}

		result := fmt.Sprintf("Sub-agent: %s\nStatus: %s\nTask: %s\n", sa.Name, sa.Status, sa.Task)
		if sa.Status == "completed" {
			result += fmt.Sprintf("Result: %s\n", sa.Result)
		}
		if sa.Status == "failed" {
			result += fmt.Sprintf("Error: %s\n", sa.Error)
		}
		if isTerminal(sa.Status) {
			_ = t.manager.Remove(sa.Name)
		}
		return &agent.ToolResult{Content: result}, nil
	}

	parentID := ""
	if session := agent.SessionFromContext(ctx); session != nil {
		parentID = session.AgentID
	}

	agents := t.manager.List(parentID)
	if len(agents) == 0 {
		return &agent.ToolResult{Content: "No sub-agents found."}, nil
	}

	result := fmt.Sprintf("Active sub-agents: %d\n\n", t.manager.ActiveCount())
	for _, sa := range agents {
		result += fmt.Sprintf("- %s: %s - %s\n", sa.Name, sa.Status, truncate(sa.Task, 50))
		if isTerminal(sa.Status) {
			_ = t.manager.Remove(sa.Name)
		}
	}
	return &agent.ToolResult{Content: result}, nil
}

// isTerminal reports whether a sub-agent status is final (no longer running),
// meaning its sidecar record can be cleared once the caller has read it.
func isTerminal(status string) bool {
	switch status {
	case "completed", "failed", "cancelled":
		return true
	default:
		return false
	}
}

// CancelTool is a tool for cancelling sub-agents.
type CancelTool struct {
	manager *Manager
}

// NewCancelTool creates a new cancel tool.
func NewCancelTool(manager *Manager) *CancelTool {
	return &CancelTool{manager: manager}
}

// Name returns the tool name.
func (t *CancelTool) Name() string {
	return "subagent_cancel"
}

// Description returns the tool description.
func (t *CancelTool) Description() string {
	return "Cancel a running sub-agent."
}

// Schema returns the tool's input schema.
func (t *CancelTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Sub-agent name to cancel",
			},
		},
		"required": []string{"name"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute cancels a sub-agent.
func (t *CancelTool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError(fmt.Sprintf("invalid input: %v", err)), nil
	}

	if params.Name == "" {
		return toolError("name is required"), nil
	}

	if err := t.manager.Cancel(params.Name); err != nil {
		return toolError(err.Error()), nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("Sub-agent %q cancelled.", params.Name)}, nil
}

func toolError(msg string) *agent.ToolResult {
	return &agent.ToolResult{Content: msg, IsError: true}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
