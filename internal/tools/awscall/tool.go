// Package awscall implements the use_aws tool: an LLM-dispatched call
// against a curated set of AWS SDK v2 service clients, gated by a
// readonly flag enforced before dispatch rather than trusted to the
// caller's own judgment.
package awscall

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nexuscli/nexuscli/internal/agent"
)

// Client bundles the AWS SDK v2 service clients use_aws can dispatch to.
// New services are added here as named fields, not via reflection, so
// every operation this tool can perform is visible in one place.
type Client struct {
	s3 *s3.Client
}

// NewClient loads the default AWS config chain (env vars, shared config,
// IMDS) for region and builds the service clients use_aws supports.
func NewClient(ctx context.Context, region string) (*Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Client{s3: s3.NewFromConfig(cfg)}, nil
}

// operation describes one dispatchable service/operation pair.
type operation struct {
	readonly bool
	call     func(ctx context.Context, c *Client, params map[string]any) (any, error)
}

var operations = map[string]map[string]operation{
	"s3": {
		"ListBuckets":     {readonly: true, call: s3ListBuckets},
		"ListObjectsV2":   {readonly: true, call: s3ListObjectsV2},
		"HeadObject":      {readonly: true, call: s3HeadObject},
		"DeleteObject":    {readonly: false, call: s3DeleteObject},
		"PutObjectTagging": {readonly: false, call: s3PutObjectTagging},
	},
}

func s3ListBuckets(ctx context.Context, c *Client, params map[string]any) (any, error) {
	out, err := c.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.ToString(b.Name))
	}
	return map[string]any{"buckets": names}, nil
}

func s3ListObjectsV2(ctx context.Context, c *Client, params map[string]any) (any, error) {
	bucket, _ := params["bucket"].(string)
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix, ok := params["prefix"].(string); ok && prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	out, err := c.s3.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(out.Contents))
	for _, o := range out.Contents {
		keys = append(keys, aws.ToString(o.Key))
	}
	return map[string]any{"keys": keys}, nil
}

func s3HeadObject(ctx context.Context, c *Client, params map[string]any) (any, error) {
	bucket, _ := params["bucket"].(string)
	key, _ := params["key"].(string)
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("bucket and key are required")
	}
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"content_length": out.ContentLength,
		"content_type":   aws.ToString(out.ContentType),
		"etag":           aws.ToString(out.ETag),
	}, nil
}

func s3DeleteObject(ctx context.Context, c *Client, params map[string]any) (any, error) {
	bucket, _ := params["bucket"].(string)
	key, _ := params["key"].(string)
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("bucket and key are required")
	}
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": key}, nil
}

func s3PutObjectTagging(ctx context.Context, c *Client, params map[string]any) (any, error) {
	bucket, _ := params["bucket"].(string)
	key, _ := params["key"].(string)
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("bucket and key are required")
	}
	_, err := c.s3.DeleteObjectTagging(ctx, &s3.DeleteObjectTaggingInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	return map[string]any{"tagged": key}, nil
}

// Call dispatches service.operation(params), returning an error without
// reaching the SDK at all if readonly forbids a mutating operation.
func Call(ctx context.Context, client *Client, service, op string, params map[string]any, readonly bool) (any, error) {
	svc, ok := operations[strings.ToLower(service)]
	if !ok {
		return nil, fmt.Errorf("unsupported aws service: %s", service)
	}
	spec, ok := svc[op]
	if !ok {
		return nil, fmt.Errorf("unsupported operation %s for service %s", op, service)
	}
	if readonly && !spec.readonly {
		return nil, fmt.Errorf("operation %s.%s is not readonly; denied by readonly policy", service, op)
	}
	return spec.call(ctx, client, params)
}

// Tool is the LLM-facing use_aws tool.
type Tool struct {
	client   *Client
	readonly bool
}

// NewTool wraps a Client as an LLM tool. readonly forbids any operation
// not explicitly marked safe in the operations table.
func NewTool(client *Client, readonly bool) *Tool {
	return &Tool{client: client, readonly: readonly}
}

// Name returns the tool name.
func (t *Tool) Name() string { return "use_aws" }

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Call an AWS service operation by service name, operation name, and parameters."
}

// Schema returns the tool's input schema.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"service":   map[string]any{"type": "string", "description": "AWS service, e.g. 's3'"},
			"operation": map[string]any{"type": "string", "description": "Operation name, e.g. 'ListBuckets'"},
			"params":    map[string]any{"type": "object", "description": "Operation parameters"},
		},
		"required": []string{"service", "operation"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute dispatches the requested service/operation call.
func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var params struct {
		Service   string         `json:"service"`
		Operation string         `json:"operation"`
		Params    map[string]any `json:"params"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
	}
	if params.Service == "" || params.Operation == "" {
		return &agent.ToolResult{Content: "service and operation are required", IsError: true}, nil
	}

	result, err := Call(ctx, t.client, params.Service, params.Operation, params.Params, t.readonly)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	out, err := json.Marshal(result)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("marshal result: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(out)}, nil
}
