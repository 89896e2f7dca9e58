package hooks

import (
	"context"
	"testing"

	"github.com/nexuscli/nexuscli/pkg/models"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		hook     models.Hook
		trigger  models.HookTrigger
		toolName string
		want     bool
	}{
		{
			name:    "none matcher matches everything for its trigger",
			hook:    models.Hook{Trigger: models.HookTriggerPreToolUse},
			trigger: models.HookTriggerPreToolUse,
			want:    true,
		},
		{
			name:    "wrong trigger never matches",
			hook:    models.Hook{Trigger: models.HookTriggerPreToolUse},
			trigger: models.HookTriggerPostToolUse,
			want:    false,
		},
		{
			name:     "glob matches tool name",
			hook:     models.Hook{Trigger: models.HookTriggerPreToolUse, Matcher: "fs_*"},
			trigger:  models.HookTriggerPreToolUse,
			toolName: "fs_read",
			want:     true,
		},
		{
			name:     "glob does not match unrelated tool",
			hook:     models.Hook{Trigger: models.HookTriggerPreToolUse, Matcher: "fs_*"},
			trigger:  models.HookTriggerPreToolUse,
			toolName: "execute_bash",
			want:     false,
		},
		{
			name:     "star matcher matches everything",
			hook:     models.Hook{Trigger: models.HookTriggerPreToolUse, Matcher: "*"},
			trigger:  models.HookTriggerPreToolUse,
			toolName: "anything",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.hook, tt.trigger, tt.toolName); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecutor_RunEchoesPayload(t *testing.T) {
	e := NewExecutor(nil, 0)
	hook := models.Hook{
		Command: "cat",
		Trigger: models.HookTriggerPreToolUse,
	}

	results := e.Run(context.Background(), []models.Hook{hook}, models.HookTriggerPreToolUse, Payload{
		Trigger:  models.HookTriggerPreToolUse,
		ToolName: "fs_read",
	})
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	if results[0].Stdout == "" {
		t.Error("expected stdout to echo the JSON payload")
	}
}

func TestExecutor_CachesWithinTTL(t *testing.T) {
	e := NewExecutor(nil, 0)
	hook := models.Hook{
		Command:         "echo run",
		Trigger:         models.HookTriggerPreToolUse,
		CacheTTLSeconds: 60,
	}
	payload := Payload{Trigger: models.HookTriggerPreToolUse, ToolName: "fs_read"}

	first := e.Run(context.Background(), []models.Hook{hook}, models.HookTriggerPreToolUse, payload)
	if first[0].Cached {
		t.Fatal("first run should not be cached")
	}

	second := e.Run(context.Background(), []models.Hook{hook}, models.HookTriggerPreToolUse, payload)
	if !second[0].Cached {
		t.Error("second run within TTL should be cached")
	}
}

func TestExecutor_NoMatchReturnsEmpty(t *testing.T) {
	e := NewExecutor(nil, 0)
	hook := models.Hook{Command: "true", Trigger: models.HookTriggerPostToolUse}

	results := e.Run(context.Background(), []models.Hook{hook}, models.HookTriggerPreToolUse, Payload{})
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}
