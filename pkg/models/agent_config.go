package models

import "time"

// Agent is a named configuration bundle: which tools it may use, how those
// tools are gated, which hooks run around its turns, and where its prompt
// material lives on disk.
type Agent struct {
	ID           string            `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Model        string            `json:"model,omitempty" yaml:"model,omitempty"`
	Provider     string            `json:"provider,omitempty" yaml:"provider,omitempty"`
	Tools        []string          `json:"tools,omitempty" yaml:"tools,omitempty"`
	ToolPolicy   any               `json:"tool_policy,omitempty" yaml:"tool_policy,omitempty"`
	AllowedTools []string          `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"`
	DeniedTools  []string          `json:"denied_tools,omitempty" yaml:"denied_tools,omitempty"`
	ToolsSettings map[string]ToolSetting `json:"tools_settings,omitempty" yaml:"tools_settings,omitempty"`
	Hooks        []Hook            `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	PromptsDir   string            `json:"prompts_dir,omitempty" yaml:"prompts_dir,omitempty"`
	ContextFiles []string          `json:"context_files,omitempty" yaml:"context_files,omitempty"`
	MaxIterations int              `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ToolSetting carries per-tool overrides an Agent bundle can declare, such
// as a retry policy or an elevated-trust flag.
type ToolSetting struct {
	RequireApproval bool          `json:"require_approval,omitempty" yaml:"require_approval,omitempty"`
	MaxAttempts     int           `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	RetryBackoff    time.Duration `json:"retry_backoff,omitempty" yaml:"retry_backoff,omitempty"`
	TimeoutSeconds  int           `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// HookTrigger names the point in the turn lifecycle a Hook fires at.
type HookTrigger string

const (
	HookTriggerPreToolUse   HookTrigger = "pre_tool_use"
	HookTriggerPostToolUse  HookTrigger = "post_tool_use"
	HookTriggerUserPrompt   HookTrigger = "user_prompt_submit"
	HookTriggerStop         HookTrigger = "stop"
	HookTriggerSessionStart HookTrigger = "session_start"
	HookTriggerSessionEnd   HookTrigger = "session_end"
)

// Hook is a user-configured shell command run around the turn lifecycle.
type Hook struct {
	Command        string        `json:"command" yaml:"command"`
	Trigger        HookTrigger   `json:"trigger" yaml:"trigger"`
	Matcher        string        `json:"matcher,omitempty" yaml:"matcher,omitempty"`
	TimeoutMS      int           `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	CacheTTLSeconds int          `json:"cache_ttl_seconds,omitempty" yaml:"cache_ttl_seconds,omitempty"`
	MaxOutputSize  int           `json:"max_output_size,omitempty" yaml:"max_output_size,omitempty"`
	Source         string        `json:"source,omitempty" yaml:"source,omitempty"`
}

// Checkpoint is a single restorable snapshot of a session's conversation
// and working tree state, realized as a tag in the shadow git repository.
type Checkpoint struct {
	Tag             string    `json:"tag"`
	SessionID       string    `json:"session_id"`
	Timestamp       time.Time `json:"timestamp"`
	Description     string    `json:"description,omitempty"`
	IsTurn          bool      `json:"is_turn"`
	ToolName        string    `json:"tool_name,omitempty"`
	ToolCallID      string    `json:"tool_call_id,omitempty"`
	HistorySnapshot []HistoryEntry `json:"history_snapshot"`
	TurnIndex       int       `json:"turn_index"`
	TagIndex        int       `json:"tag_index"`
}

// HistoryEntryRole discriminates a HistoryEntry's originator.
type HistoryEntryRole string

const (
	HistoryEntryUser      HistoryEntryRole = "user"
	HistoryEntryAssistant HistoryEntryRole = "assistant"
)

// HistoryEntry is one turn's worth of conversation content, either a user
// message or an assistant response (text plus any tool uses/results).
type HistoryEntry struct {
	Role       HistoryEntryRole `json:"role"`
	Text       string           `json:"text,omitempty"`
	ToolUses   []ToolUse        `json:"tool_uses,omitempty"`
	ToolResults []ToolResult    `json:"tool_results,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ToolUse is a single tool invocation the model requested.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input []byte          `json:"input"`
}

// ToolResult is the outcome of executing a ToolUse.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// PermissionDecision is the outcome of evaluating a tool call against an
// agent's allow/deny policy.
type PermissionDecision string

const (
	PermissionAllow PermissionDecision = "allow"
	PermissionAsk   PermissionDecision = "ask"
	PermissionDeny  PermissionDecision = "deny"
)

// MCPServerState is the lifecycle state of a configured MCP server
// connection.
type MCPServerState string

const (
	MCPServerPending MCPServerState = "pending"
	MCPServerReady   MCPServerState = "ready"
	MCPServerFailed  MCPServerState = "failed"
)
