package worklog

import "github.com/worklog-dev/worklog-mcp-go/mcpservice"

// ServerName is the identity reported to clients in initialize results.
const ServerName = "worklog-mcp"

// ServerVersion tracks the released server version.
const ServerVersion = "0.2.0"

const instructions = "Tools operate on a single Worklog account configured at startup. " +
	"Dates are YYYY-MM-DD; timestamps are RFC 3339. Destructive tools (delete_time_entry) " +
	"are immediate and cannot be undone."

// NewService assembles the capability directory for a Worklog-backed MCP
// server.
func NewService(c *Client) *mcpservice.Server {
	return mcpservice.NewServer(
		mcpservice.WithServerInfo(ServerName, ServerVersion),
		mcpservice.WithInstructions(instructions),
		mcpservice.WithToolsCapability(mcpservice.NewToolsContainer(Tools(c)...)),
		mcpservice.WithPromptsCapability(mcpservice.NewPromptsContainer(Prompts()...)),
	)
}
