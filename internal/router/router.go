// Package router interprets validated JSON-RPC messages against the
// capability directory. The transport gate owns all session and header
// validation; by the time a message reaches the router it is known to belong
// to an open session with a pinned protocol version.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/worklog-dev/worklog-mcp-go/internal/jsonrpc"
	"github.com/worklog-dev/worklog-mcp-go/internal/logctx"
	"github.com/worklog-dev/worklog-mcp-go/mcp"
	"github.com/worklog-dev/worklog-mcp-go/mcpservice"
	"github.com/worklog-dev/worklog-mcp-go/sessions"
)

// Router dispatches protocol methods to the capability directory.
type Router struct {
	srv *mcpservice.Server
	log *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(log *slog.Logger) Option {
	return func(rt *Router) { rt.log = log }
}

// New constructs a router over the given capability directory.
func New(srv *mcpservice.Server, opts ...Option) *Router {
	rt := &Router{srv: srv, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// negotiateVersion echoes a supported client version, otherwise answers with
// the latest version the server speaks.
func negotiateVersion(requested string) string {
	if slices.Contains(mcp.SupportedProtocolVersions, requested) {
		return requested
	}
	return mcp.LatestProtocolVersion
}

// Initialize performs the handshake for a freshly created session, pinning
// the negotiated protocol version on it.
func (rt *Router) Initialize(ctx context.Context, sess *sessions.Session, req *mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	version := negotiateVersion(req.ProtocolVersion)
	sess.SetProtocolVersion(version)
	rt.log.InfoContext(ctx, "session.initialize",
		slog.String("client", req.ClientInfo.Name),
		slog.String("client_version", req.ClientInfo.Version),
		slog.String("protocol_version", version))
	return &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    rt.srv.Capabilities(),
		ServerInfo:      rt.srv.Info(),
		Instructions:    rt.srv.Instructions(),
	}, nil
}

// HandleRequest processes one request and produces its response. Method-level
// failures come back as JSON-RPC error responses; a returned error means the
// router itself failed and the transport should answer with its generic
// internal-error envelope.
func (rt *Router) HandleRequest(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	switch mcp.Method(req.Method) {
	case mcp.PingMethod:
		return jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})

	case mcp.LoggingSetLevelMethod:
		var params mcp.SetLevelRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid setLevel params"), nil
		}
		if !mcp.IsValidLoggingLevel(params.Level) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("invalid logging level: %s", params.Level)), nil
		}
		sess.SetLogLevel(params.Level)
		return jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})

	case mcp.ToolsListMethod:
		tools := rt.srv.Tools()
		if tools == nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported"), nil
		}
		var params mcp.ListToolsRequest
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid tools/list params"), nil
			}
		}
		var cursor *string
		if params.Cursor != "" {
			cursor = &params.Cursor
		}
		page, err := tools.ListTools(ctx, sess, cursor)
		if err != nil {
			return nil, err
		}
		res := &mcp.ListToolsResult{Tools: page.Items}
		if page.NextCursor != nil {
			res.NextCursor = *page.NextCursor
		}
		return jsonrpc.NewResultResponse(req.ID, res)

	case mcp.ToolsCallMethod:
		tools := rt.srv.Tools()
		if tools == nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported"), nil
		}
		var params mcp.CallToolRequestReceived
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid tools/call params"), nil
		}
		ctx := logctx.WithToolData(ctx, &logctx.ToolData{Name: params.Name})
		rt.log.InfoContext(ctx, "tool.call")
		res, err := tools.CallTool(ctx, sess, &params)
		if err != nil {
			// Unknown tool is a caller mistake, not a server fault.
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error()), nil
		}
		return jsonrpc.NewResultResponse(req.ID, res)

	case mcp.PromptsListMethod:
		prompts := rt.srv.Prompts()
		if prompts == nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "prompts capability not supported"), nil
		}
		var params mcp.ListPromptsRequest
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid prompts/list params"), nil
			}
		}
		var cursor *string
		if params.Cursor != "" {
			cursor = &params.Cursor
		}
		page, err := prompts.ListPrompts(ctx, sess, cursor)
		if err != nil {
			return nil, err
		}
		res := &mcp.ListPromptsResult{Prompts: page.Items}
		if page.NextCursor != nil {
			res.NextCursor = *page.NextCursor
		}
		return jsonrpc.NewResultResponse(req.ID, res)

	case mcp.PromptsGetMethod:
		prompts := rt.srv.Prompts()
		if prompts == nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "prompts capability not supported"), nil
		}
		var params mcp.GetPromptRequestReceived
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid prompts/get params"), nil
		}
		res, err := prompts.GetPrompt(ctx, sess, &params)
		if err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error()), nil
		}
		return jsonrpc.NewResultResponse(req.ID, res)

	case mcp.InitializeMethod:
		// The gate routes initialize through Initialize; reaching here means a
		// second handshake on a live session.
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized"), nil

	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method)), nil
	}
}

// HandleNotification processes a client notification. Unknown notifications
// are logged and dropped; the protocol forbids responding to them.
func (rt *Router) HandleNotification(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) error {
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
		rt.log.InfoContext(ctx, "session.initialized")
	case mcp.CancelledNotificationMethod:
		// No in-flight request tracking at this layer; cancellation rides on
		// the HTTP request context instead.
		rt.log.DebugContext(ctx, "notification.cancelled")
	default:
		rt.log.DebugContext(ctx, "notification.unknown", slog.String("method", req.Method))
	}
	return nil
}
