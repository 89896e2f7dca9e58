package command

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nexuscli/nexuscli/internal/agent"
	"github.com/nexuscli/nexuscli/pkg/models"
)

type fakeSummarizer struct {
	summary string
	err     error
	calls   []string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, sessionID string) (string, error) {
	f.calls = append(f.calls, sessionID)
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func TestCommandHelpListsKnownCommands(t *testing.T) {
	tool := NewTool(nil)
	params, _ := json.Marshal(map[string]string{"command": "help"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	for _, name := range []string{"help", "usage", "compact", "clear"} {
		if !strings.Contains(res.Content, name) {
			t.Errorf("help output missing %q: %s", name, res.Content)
		}
	}
}

func TestCommandUsageReportsStatus(t *testing.T) {
	tool := NewTool(nil)
	params, _ := json.Marshal(map[string]string{"command": "usage"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
}

func TestCommandCompactWithoutSummarizerErrors(t *testing.T) {
	tool := NewTool(nil)
	params, _ := json.Marshal(map[string]string{"command": "compact"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error with no summarizer configured")
	}
}

func TestCommandCompactWithoutSessionErrors(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "done"}
	tool := NewTool(summarizer)
	params, _ := json.Marshal(map[string]string{"command": "compact"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error with no session in context")
	}
	if len(summarizer.calls) != 0 {
		t.Fatalf("summarizer should not have been called, got %v", summarizer.calls)
	}
}

func TestCommandCompactCallsSummarizer(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "trimmed 12 messages"}
	tool := NewTool(summarizer)
	ctx := agent.WithSession(context.Background(), &models.Session{ID: "sess-1"})

	params, _ := json.Marshal(map[string]string{"command": "compact"})
	res, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	if !strings.Contains(res.Content, "trimmed 12 messages") {
		t.Errorf("expected summary in output, got %q", res.Content)
	}
	if len(summarizer.calls) != 1 || summarizer.calls[0] != "sess-1" {
		t.Fatalf("expected summarizer called with sess-1, got %v", summarizer.calls)
	}
}

func TestCommandCompactPropagatesSummarizerError(t *testing.T) {
	summarizer := &fakeSummarizer{err: errors.New("boom")}
	tool := NewTool(summarizer)
	ctx := agent.WithSession(context.Background(), &models.Session{ID: "sess-1"})

	params, _ := json.Marshal(map[string]string{"command": "compact"})
	res, err := tool.Execute(ctx, params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result when summarizer fails")
	}
}

func TestCommandClearReportsManualConfirmation(t *testing.T) {
	tool := NewTool(nil)
	params, _ := json.Marshal(map[string]string{"command": "clear"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
}

func TestCommandUnknownCommandErrors(t *testing.T) {
	tool := NewTool(nil)
	params, _ := json.Marshal(map[string]string{"command": "bogus"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error for unknown command")
	}
}

func TestCommandStripsLeadingSlash(t *testing.T) {
	tool := NewTool(nil)
	params, _ := json.Marshal(map[string]string{"command": "/help"})
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
}
