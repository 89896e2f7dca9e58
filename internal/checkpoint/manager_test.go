package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nexuscli/nexuscli/pkg/models"
)

func TestManager_CreateAndList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m, err := NewManager(ctx, dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cp, err := m.Create(ctx, "sess1", true, "", "", "turn 1", []models.HistoryEntry{{Role: models.HistoryEntryUser, Text: "hi"}}, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cp.TagIndex != 1 {
		t.Errorf("TagIndex = %d, want 1", cp.TagIndex)
	}

	tags, err := m.List(ctx, "sess1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tags) != 1 || tags[0] != cp.Tag {
		t.Errorf("List = %v, want [%s]", tags, cp.Tag)
	}
}

func TestManager_RestoreHard(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")

	m, err := NewManager(ctx, dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := os.WriteFile(file, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write v1: %v", err)
	}
	cp, err := m.Create(ctx, "sess1", true, "", "", "v1", nil, 0)
	if err != nil {
		t.Fatalf("Create v1: %v", err)
	}

	if err := os.WriteFile(file, []byte("v2"), 0o644); err != nil {
		t.Fatalf("write v2: %v", err)
	}
	if _, err := m.Create(ctx, "sess1", true, "", "", "v2", nil, 1); err != nil {
		t.Fatalf("Create v2: %v", err)
	}

	if err := m.RestoreHard(ctx, "sess1", cp.Tag); err != nil {
		t.Fatalf("RestoreHard: %v", err)
	}

	content, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read after restore: %v", err)
	}
	if string(content) != "v1" {
		t.Errorf("content after restore = %q, want %q", content, "v1")
	}
}

func TestManager_Diff(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")

	m, err := NewManager(ctx, dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	os.WriteFile(file, []byte("v1\n"), 0o644)
	cp1, err := m.Create(ctx, "sess1", true, "", "", "v1", nil, 0)
	if err != nil {
		t.Fatalf("Create v1: %v", err)
	}

	os.WriteFile(file, []byte("v2\n"), 0o644)
	cp2, err := m.Create(ctx, "sess1", true, "", "", "v2", nil, 1)
	if err != nil {
		t.Fatalf("Create v2: %v", err)
	}

	diff, err := m.Diff(ctx, "sess1", cp1.Tag, cp2.Tag)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if diff == "" {
		t.Error("expected non-empty diff between v1 and v2")
	}
}

func TestManager_ReindexContinuesAcrossReattach(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m1, err := NewManager(ctx, dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m1.Create(ctx, "sess1", true, "", "", "first", nil, 0); err != nil {
		t.Fatalf("Create: %v", err)
	}

	m2, err := NewManager(ctx, dir, nil)
	if err != nil {
		t.Fatalf("NewManager (reattach): %v", err)
	}
	cp, err := m2.Create(ctx, "sess1", true, "", "", "second", nil, 1)
	if err != nil {
		t.Fatalf("Create after reattach: %v", err)
	}
	if cp.TagIndex != 2 {
		t.Errorf("TagIndex after reattach = %d, want 2", cp.TagIndex)
	}
}

func TestManager_ToolCheckpointTagScheme(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m, err := NewManager(ctx, dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cp1, err := m.Create(ctx, "sess1", false, "fs_write", "call-1", "wrote a.txt", nil, 1)
	if err != nil {
		t.Fatalf("Create tool checkpoint 1: %v", err)
	}
	if cp1.Tag != "1.1" {
		t.Errorf("Tag = %q, want %q", cp1.Tag, "1.1")
	}

	cp2, err := m.Create(ctx, "sess1", false, "exec", "call-2", "ran ls", nil, 1)
	if err != nil {
		t.Fatalf("Create tool checkpoint 2: %v", err)
	}
	if cp2.Tag != "1.2" {
		t.Errorf("Tag = %q, want %q", cp2.Tag, "1.2")
	}

	turnCp, err := m.Create(ctx, "sess1", true, "", "", "turn 1", nil, 1)
	if err != nil {
		t.Fatalf("Create turn checkpoint: %v", err)
	}
	if turnCp.Tag != "1" {
		t.Errorf("Tag = %q, want %q", turnCp.Tag, "1")
	}

	tags, err := m.List(ctx, "sess1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"1.1", "1.2", "1"}
	if len(tags) != len(want) {
		t.Fatalf("List = %v, want %v", tags, want)
	}
	for i, tag := range want {
		if tags[i] != tag {
			t.Errorf("List[%d] = %q, want %q", i, tags[i], tag)
		}
	}
}

func TestManager_CreateRetargetsExistingTurnTag(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m, err := NewManager(ctx, dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := m.Create(ctx, "sess1", true, "", "", "first pass", nil, 1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// /undo re-enters turn 1 and re-acts: the "1" tag should move, not duplicate.
	if _, err := m.Create(ctx, "sess1", true, "", "", "second pass", nil, 1); err != nil {
		t.Fatalf("Create (retarget): %v", err)
	}

	tags, err := m.List(ctx, "sess1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tags) != 1 || tags[0] != "1" {
		t.Errorf("List = %v, want [\"1\"]", tags)
	}
}

func TestPreviousTag(t *testing.T) {
	cases := []struct {
		tag  string
		want string
	}{
		{"0", "0"},
		{"1", "0"},
		{"3", "2"},
		{"1.1", "1"},
		{"1.2", "1.1"},
		{"5.3", "5.2"},
	}
	for _, c := range cases {
		got, err := PreviousTag(c.tag)
		if err != nil {
			t.Fatalf("PreviousTag(%q): %v", c.tag, err)
		}
		if got != c.want {
			t.Errorf("PreviousTag(%q) = %q, want %q", c.tag, got, c.want)
		}
	}
}
