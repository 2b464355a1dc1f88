package mcpservice

import "github.com/worklog-dev/worklog-mcp-go/mcp"

// Server is the read-only capability directory: the server's identity plus
// the tool and prompt containers it advertises. It is assembled once at
// startup and consumed by the protocol router to answer capability-discovery
// requests.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string
	tools        *ToolsContainer
	prompts      *PromptsContainer
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerInfo sets the identity reported in initialize results.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) { s.info = mcp.ImplementationInfo{Name: name, Version: version} }
}

// WithInstructions sets usage instructions surfaced to clients.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) { s.instructions = instructions }
}

// WithToolsCapability advertises the tools capability backed by tc.
func WithToolsCapability(tc *ToolsContainer) ServerOption {
	return func(s *Server) { s.tools = tc }
}

// WithPromptsCapability advertises the prompts capability backed by pc.
func WithPromptsCapability(pc *PromptsContainer) ServerOption {
	return func(s *Server) { s.prompts = pc }
}

// NewServer assembles a capability directory.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{info: mcp.ImplementationInfo{Name: "mcp-server", Version: "0.0.0"}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Info returns the server identity.
func (s *Server) Info() mcp.ImplementationInfo { return s.info }

// Instructions returns the usage instructions, possibly empty.
func (s *Server) Instructions() string { return s.instructions }

// Tools returns the tools container, or nil when the capability is absent.
func (s *Server) Tools() *ToolsContainer { return s.tools }

// Prompts returns the prompts container, or nil when the capability is absent.
func (s *Server) Prompts() *PromptsContainer { return s.prompts }

// Capabilities describes the advertised capability set for the initialize
// handshake.
func (s *Server) Capabilities() mcp.ServerCapabilities {
	caps := mcp.ServerCapabilities{Logging: &struct{}{}}
	if s.tools != nil {
		caps.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}
	if s.prompts != nil {
		caps.Prompts = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}
	return caps
}
