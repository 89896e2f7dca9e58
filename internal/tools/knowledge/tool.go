// Package knowledge implements a persistent, named knowledge base tool on
// top of the vector memory store: entries survive across sessions and can
// be retrieved by semantic search, unlike the session-scoped
// vector_memory_* tools.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscli/nexuscli/internal/agent"
	"github.com/nexuscli/nexuscli/pkg/models"
)

// Store defines the subset of memory.Manager behavior the knowledge tool
// needs, so tests can substitute a fake.
type Store interface {
	Index(ctx context.Context, entries []*models.MemoryEntry) error
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context, scope models.MemoryScope, scopeID string) (int64, error)
}

// Tool is a single multi-command tool ("knowledge") that lets the model
// add, search, update, remove, clear, and show entries in a knowledge base
// that persists independently of any one conversation.
type Tool struct {
	store Store
}

// NewTool creates a knowledge tool backed by the given memory store.
func NewTool(store Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string {
	return "knowledge"
}

func (t *Tool) Description() string {
	return "Stores and retrieves named entries in a persistent knowledge base, with semantic search across entries."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "command": {
      "type": "string",
      "enum": ["add", "remove", "clear", "search", "show"],
      "description": "Which knowledge base operation to perform."
    },
    "name": {"type": "string", "description": "Name identifying the entry (required for add; optional lookup key for remove)."},
    "value": {"type": "string", "description": "Text content to store (for add)."},
    "context_id": {"type": "string", "description": "Entry ID to remove (for remove)."},
    "query": {"type": "string", "description": "Search query (for search)."},
    "confirm": {"type": "boolean", "description": "Must be true to clear the knowledge base (for clear)."}
  },
  "required": ["command"]
}`)
}

type input struct {
	Command   string `json:"command"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	ContextID string `json:"context_id"`
	Query     string `json:"query"`
	Confirm   bool   `json:"confirm"`
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return &agent.ToolResult{Content: "knowledge base is unavailable", IsError: true}, nil
	}

	var in input
	if err := json.Unmarshal(params, &in); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid params: %v", err), IsError: true}, nil
	}

	session := agent.SessionFromContext(ctx)
	agentID := ""
	if session != nil {
		agentID = session.AgentID
	}

	switch in.Command {
	case "add":
		return t.add(ctx, agentID, in)
	case "remove":
		return t.remove(ctx, agentID, in)
	case "clear":
		return t.clear(ctx, agentID, in)
	case "search":
		return t.search(ctx, agentID, in)
	case "show":
		return t.show(ctx, agentID)
	default:
		return &agent.ToolResult{Content: fmt.Sprintf("unknown command %q, expected add, remove, clear, search, or show", in.Command), IsError: true}, nil
	}
}

func (t *Tool) add(ctx context.Context, agentID string, in input) (*agent.ToolResult, error) {
	name := strings.TrimSpace(in.Name)
	value := strings.TrimSpace(in.Value)
	if name == "" {
		return &agent.ToolResult{Content: "name is required", IsError: true}, nil
	}
	if value == "" {
		return &agent.ToolResult{Content: "value is required", IsError: true}, nil
	}

	entry := &models.MemoryEntry{
		ID:      uuid.New().String(),
		AgentID: agentID,
		Content: value,
		Metadata: models.MemoryMetadata{
			Source: "knowledge",
			Tags:   []string{"knowledge"},
			Extra:  map[string]any{"name": name},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := t.store.Index(ctx, []*models.MemoryEntry{entry}); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to add to knowledge base: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("added %q to knowledge base with ID: %s", name, entry.ID)}, nil
}

func (t *Tool) remove(ctx context.Context, agentID string, in input) (*agent.ToolResult, error) {
	if in.ContextID != "" {
		if err := t.store.Delete(ctx, []string{in.ContextID}); err != nil {
			return &agent.ToolResult{Content: fmt.Sprintf("failed to remove entry: %v", err), IsError: true}, nil
		}
		return &agent.ToolResult{Content: fmt.Sprintf("removed entry %s", in.ContextID)}, nil
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return &agent.ToolResult{Content: "name or context_id is required", IsError: true}, nil
	}

	ids, err := t.findByName(ctx, agentID, name)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to look up %q: %v", name, err), IsError: true}, nil
	}
	if len(ids) == 0 {
		return &agent.ToolResult{Content: fmt.Sprintf("no entry named %q found", name), IsError: true}, nil
	}
	if err := t.store.Delete(ctx, ids); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to remove entry: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("removed %q from knowledge base", name)}, nil
}

func (t *Tool) clear(ctx context.Context, agentID string, in input) (*agent.ToolResult, error) {
	if !in.Confirm {
		return &agent.ToolResult{Content: "set confirm=true to clear the knowledge base", IsError: true}, nil
	}
	ids, err := t.allIDs(ctx, agentID)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to list knowledge base entries: %v", err), IsError: true}, nil
	}
	if len(ids) == 0 {
		return &agent.ToolResult{Content: "knowledge base is already empty"}, nil
	}
	if err := t.store.Delete(ctx, ids); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to clear knowledge base: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("cleared %d knowledge base entries", len(ids))}, nil
}

func (t *Tool) search(ctx context.Context, agentID string, in input) (*agent.ToolResult, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}
	resp, err := t.store.Search(ctx, &models.SearchRequest{
		Query:   query,
		Scope:   models.ScopeAgent,
		ScopeID: agentID,
		Filters: map[string]any{"tags": "knowledge"},
	})
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("search failed: %v", err), IsError: true}, nil
	}
	if resp == nil || len(resp.Results) == 0 {
		return &agent.ToolResult{Content: fmt.Sprintf("no matching entries found for query: %q", query)}, nil
	}

	var out strings.Builder
	fmt.Fprintf(&out, "search results for %q:\n\n", query)
	for _, r := range resp.Results {
		if r == nil || r.Entry == nil {
			continue
		}
		name, _ := r.Entry.Metadata.Extra["name"].(string)
		if name == "" {
			name = r.Entry.ID
		}
		fmt.Fprintf(&out, "- %s: %s\n", name, r.Entry.Content)
	}
	return &agent.ToolResult{Content: out.String()}, nil
}

func (t *Tool) show(ctx context.Context, agentID string) (*agent.ToolResult, error) {
	count, err := t.store.Count(ctx, models.ScopeAgent, agentID)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("failed to read knowledge base status: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("knowledge base has %d entries", count)}, nil
}

// findByName returns the IDs of entries tagged with the given name.
func (t *Tool) findByName(ctx context.Context, agentID, name string) ([]string, error) {
	resp, err := t.store.Search(ctx, &models.SearchRequest{
		Query:     name,
		Scope:     models.ScopeAgent,
		ScopeID:   agentID,
		Limit:     50,
		Threshold: 0,
		Filters:   map[string]any{"name": name},
	})
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range resp.Results {
		if r == nil || r.Entry == nil {
			continue
		}
		if entryName, _ := r.Entry.Metadata.Extra["name"].(string); entryName == name {
			ids = append(ids, r.Entry.ID)
		}
	}
	return ids, nil
}

// allIDs returns every entry ID in the agent's knowledge base scope.
func (t *Tool) allIDs(ctx context.Context, agentID string) ([]string, error) {
	resp, err := t.store.Search(ctx, &models.SearchRequest{
		Query:     "",
		Scope:     models.ScopeAgent,
		ScopeID:   agentID,
		Limit:     1000,
		Threshold: 0,
		Filters:   map[string]any{"tags": "knowledge"},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r != nil && r.Entry != nil {
			ids = append(ids, r.Entry.ID)
		}
	}
	return ids, nil
}
