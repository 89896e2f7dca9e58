package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRemoveFile(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root}
	path := filepath.Join(root, "gone.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tool := NewRemoveTool(cfg)
	params, _ := json.Marshal(map[string]interface{}{
		"command": "remove_file",
		"path":    "gone.txt",
	})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err = %v", err)
	}
}

func TestRemoveFileRejectsDirectory(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root}
	dir := filepath.Join(root, "adir")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tool := NewRemoveTool(cfg)
	params, _ := json.Marshal(map[string]interface{}{
		"command": "remove_file",
		"path":    "adir",
	})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error removing a directory as remove_file")
	}
}

func TestRemoveDir(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root}
	dir := filepath.Join(root, "tree")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tool := NewRemoveTool(cfg)
	params, _ := json.Marshal(map[string]interface{}{
		"command": "remove_dir",
		"path":    "tree",
	})
	if _, err := tool.Execute(context.Background(), params); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected directory tree to be removed, stat err = %v", err)
	}
}

func TestRenameFile(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root}
	original := filepath.Join(root, "old.txt")
	if err := os.WriteFile(original, []byte("data"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tool := NewRenameTool(cfg)
	params, _ := json.Marshal(map[string]interface{}{
		"original_path": "old.txt",
		"new_path":      "sub/new.txt",
	})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if _, err := os.Stat(original); !os.IsNotExist(err) {
		t.Fatal("expected original path to no longer exist")
	}
	if _, err := os.Stat(filepath.Join(root, "sub", "new.txt")); err != nil {
		t.Fatalf("expected renamed file: %v", err)
	}
}

func TestRenameMissingSourceFails(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root}
	tool := NewRenameTool(cfg)
	params, _ := json.Marshal(map[string]interface{}{
		"original_path": "missing.txt",
		"new_path":      "dest.txt",
	})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for missing source path")
	}
}
