package awscall

import (
	"context"
	"encoding/json"
	"testing"
)

func TestCall_UnsupportedService(t *testing.T) {
	_, err := Call(context.Background(), &Client{}, "dynamodb", "GetItem", nil, true)
	if err == nil {
		t.Fatal("expected error for unsupported service")
	}
}

func TestCall_UnsupportedOperation(t *testing.T) {
	_, err := Call(context.Background(), &Client{}, "s3", "NukeEverything", nil, true)
	if err == nil {
		t.Fatal("expected error for unsupported operation")
	}
}

func TestCall_ReadonlyDeniesWrite(t *testing.T) {
	_, err := Call(context.Background(), &Client{}, "s3", "DeleteObject", map[string]any{
		"bucket": "b", "key": "k",
	}, true)
	if err == nil {
		t.Fatal("expected readonly policy to deny DeleteObject")
	}
}

func TestTool_SchemaAndName(t *testing.T) {
	tool := NewTool(&Client{}, true)
	if tool.Name() != "use_aws" {
		t.Errorf("Name() = %q, want use_aws", tool.Name())
	}
	var schema map[string]any
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		t.Fatalf("Schema() did not unmarshal: %v", err)
	}
	if schema["type"] != "object" {
		t.Error("expected object schema")
	}
}

func TestTool_Execute_MissingFields(t *testing.T) {
	tool := NewTool(&Client{}, true)
	result, err := tool.Execute(context.Background(), []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for missing service/operation")
	}
}
