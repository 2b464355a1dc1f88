package mcpservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/worklog-dev/worklog-mcp-go/mcp"
	"github.com/worklog-dev/worklog-mcp-go/sessions"
)

// PromptHandler materializes a prompt into messages.
type PromptHandler func(ctx context.Context, session *sessions.Session, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error)

// StaticPrompt pairs a prompt descriptor with its handler.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// PromptsContainer owns a threadsafe set of prompt descriptors and handlers
// and serves the prompts capability.
type PromptsContainer struct {
	mu       sync.RWMutex
	prompts  []mcp.Prompt
	handlers map[string]PromptHandler
}

// NewPromptsContainer constructs a container with the given prompts.
func NewPromptsContainer(defs ...StaticPrompt) *PromptsContainer {
	pc := &PromptsContainer{}
	pc.Replace(defs...)
	return pc
}

// Replace atomically swaps the entire prompt set.
func (pc *PromptsContainer) Replace(defs ...StaticPrompt) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.prompts = make([]mcp.Prompt, 0, len(defs))
	pc.handlers = make(map[string]PromptHandler, len(defs))
	for _, d := range defs {
		pc.prompts = append(pc.prompts, d.Descriptor)
		if d.Handler != nil {
			pc.handlers[d.Descriptor.Name] = d.Handler
		}
	}
}

// Snapshot returns a copy of the current descriptors.
func (pc *PromptsContainer) Snapshot() []mcp.Prompt {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make([]mcp.Prompt, len(pc.prompts))
	copy(out, pc.prompts)
	return out
}

// ListPrompts returns all prompt descriptors. Prompt sets are small enough
// that pagination is a formality: the whole set is one page.
func (pc *PromptsContainer) ListPrompts(ctx context.Context, session *sessions.Session, cursor *string) (Page[mcp.Prompt], error) {
	return NewPage(pc.Snapshot()), nil
}

// GetPrompt dispatches to the named prompt's handler.
func (pc *PromptsContainer) GetPrompt(ctx context.Context, session *sessions.Session, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("invalid prompt request: missing name")
	}
	pc.mu.RLock()
	h := pc.handlers[req.Name]
	pc.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("prompt not found: %s", req.Name)
	}
	return h(ctx, session, req)
}

// TextPromptMessage builds a single-text-block prompt message.
func TextPromptMessage(role mcp.Role, text string) mcp.PromptMessage {
	return mcp.PromptMessage{Role: role, Content: []mcp.ContentBlock{{Type: "text", Text: text}}}
}
