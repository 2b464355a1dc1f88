package mcpservice

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/worklog-dev/worklog-mcp-go/mcp"
	"github.com/worklog-dev/worklog-mcp-go/sessions"
)

type echoArgs struct {
	Name  string `json:"name" jsonschema:"description=Who to greet"`
	Shout bool   `json:"shout,omitempty"`
}

func echoTool() StaticTool {
	return NewTool("echo", func(ctx context.Context, _ *sessions.Session, args echoArgs) (*mcp.CallToolResult, error) {
		return TextResult("hello " + args.Name), nil
	}, WithToolDescription("Echo a greeting."))
}

func TestNewToolReflectsSchema(t *testing.T) {
	tool := echoTool()
	desc := tool.Descriptor

	if desc.Name != "echo" {
		t.Errorf("name: got %q", desc.Name)
	}
	if desc.Description == "" {
		t.Error("description should be set")
	}
	if desc.InputSchema.Type != "object" {
		t.Fatalf("schema type: got %q", desc.InputSchema.Type)
	}
	prop, ok := desc.InputSchema.Properties["name"]
	if !ok {
		t.Fatalf("schema missing 'name' property: %v", desc.InputSchema.Properties)
	}
	if prop.Type != "string" {
		t.Errorf("name property type: got %q", prop.Type)
	}
	if prop.Description != "Who to greet" {
		t.Errorf("name property description: got %q", prop.Description)
	}
	var required bool
	for _, r := range desc.InputSchema.Required {
		if r == "name" {
			required = true
		}
	}
	if !required {
		t.Errorf("'name' should be required: %v", desc.InputSchema.Required)
	}
	if desc.InputSchema.AdditionalProperties {
		t.Error("additionalProperties should default to false")
	}
}

func TestToolDispatchAndStrictDecoding(t *testing.T) {
	tc := NewToolsContainer(echoTool())
	ctx := context.Background()

	res, err := tc.CallTool(ctx, nil, &mcp.CallToolRequestReceived{
		Name:      "echo",
		Arguments: json.RawMessage(`{"name":"world"}`),
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %v", res.Content)
	}
	if len(res.Content) != 1 || res.Content[0].Text != "hello world" {
		t.Errorf("unexpected content: %+v", res.Content)
	}

	// Unknown fields are rejected in-band, not as protocol errors.
	res, err = tc.CallTool(ctx, nil, &mcp.CallToolRequestReceived{
		Name:      "echo",
		Arguments: json.RawMessage(`{"name":"world","bogus":true}`),
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if !res.IsError {
		t.Error("unknown argument field should produce an error result")
	}

	if _, err := tc.CallTool(ctx, nil, &mcp.CallToolRequestReceived{Name: "nope"}); err == nil {
		t.Error("unknown tool should fail")
	}
}

func TestListToolsPagination(t *testing.T) {
	defs := make([]StaticTool, 0, 5)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		n := name
		defs = append(defs, NewTool(n, func(ctx context.Context, _ *sessions.Session, _ struct{}) (*mcp.CallToolResult, error) {
			return TextResult(n), nil
		}))
	}
	tc := NewToolsContainer(defs...)
	tc.SetPageSize(2)
	ctx := context.Background()

	var names []string
	var cursor *string
	for {
		page, err := tc.ListTools(ctx, nil, cursor)
		if err != nil {
			t.Fatalf("ListTools failed: %v", err)
		}
		for _, tool := range page.Items {
			names = append(names, tool.Name)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	if len(names) != 5 {
		t.Fatalf("want 5 tools across pages, got %v", names)
	}
	for i, want := range []string{"a", "b", "c", "d", "e"} {
		if names[i] != want {
			t.Errorf("position %d: want %q got %q", i, want, names[i])
		}
	}
}

func TestPromptsContainer(t *testing.T) {
	pc := NewPromptsContainer(StaticPrompt{
		Descriptor: mcp.Prompt{Name: "greeting", Description: "Say hi."},
		Handler: func(ctx context.Context, _ *sessions.Session, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
			return &mcp.GetPromptResult{
				Messages: []mcp.PromptMessage{TextPromptMessage(mcp.RoleUser, "hi")},
			}, nil
		},
	})
	ctx := context.Background()

	page, err := pc.ListPrompts(ctx, nil, nil)
	if err != nil {
		t.Fatalf("ListPrompts failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Name != "greeting" {
		t.Fatalf("unexpected prompt listing: %+v", page.Items)
	}

	res, err := pc.GetPrompt(ctx, nil, &mcp.GetPromptRequestReceived{Name: "greeting"})
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].Content[0].Text != "hi" {
		t.Errorf("unexpected prompt result: %+v", res)
	}

	if _, err := pc.GetPrompt(ctx, nil, &mcp.GetPromptRequestReceived{Name: "nope"}); err == nil {
		t.Error("unknown prompt should fail")
	}
}
