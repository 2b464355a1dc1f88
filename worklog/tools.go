package worklog

import (
	"context"
	"errors"

	"github.com/worklog-dev/worklog-mcp-go/mcp"
	"github.com/worklog-dev/worklog-mcp-go/mcpservice"
	"github.com/worklog-dev/worklog-mcp-go/sessions"
)

// toolResult maps a client call outcome onto a tool result. Upstream API
// rejections become in-band error results so the agent can react; anything
// else propagates as a handler error.
func toolResult(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return mcpservice.Errorf("%s", apiErr.Error()), nil
		}
		return nil, err
	}
	return mcpservice.JSONResult(v), nil
}

type listProjectsArgs struct {
	Status string `json:"status,omitempty" jsonschema:"enum=active,enum=archived,description=Restrict to projects with this status"`
}

type listTimeEntriesArgs struct {
	From      string `json:"from,omitempty" jsonschema:"description=Start date (YYYY-MM-DD) inclusive"`
	To        string `json:"to,omitempty" jsonschema:"description=End date (YYYY-MM-DD) inclusive"`
	UserID    int64  `json:"user_id,omitempty" jsonschema:"description=Restrict to one user"`
	ProjectID int64  `json:"project_id,omitempty" jsonschema:"description=Restrict to one project"`
}

type createTimeEntryArgs struct {
	ProjectID       int64  `json:"project_id" jsonschema:"description=Project to book the time against"`
	UserID          int64  `json:"user_id,omitempty" jsonschema:"description=User the entry belongs to; defaults to the token's user"`
	Note            string `json:"note,omitempty" jsonschema:"description=Free-form note describing the work"`
	StartedAt       string `json:"started_at" jsonschema:"description=Entry start in RFC 3339 format"`
	DurationSeconds int64  `json:"duration_seconds" jsonschema:"description=Entry length in seconds"`
}

type deleteTimeEntryArgs struct {
	ID int64 `json:"id" jsonschema:"description=Identifier of the time entry to delete"`
}

type activitySummaryArgs struct {
	From   string `json:"from" jsonschema:"description=Start date (YYYY-MM-DD) inclusive"`
	To     string `json:"to" jsonschema:"description=End date (YYYY-MM-DD) inclusive"`
	UserID int64  `json:"user_id,omitempty" jsonschema:"description=Restrict to one user"`
}

// Tools builds the static tool directory backed by c.
func Tools(c *Client) []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		mcpservice.NewTool("get_current_user",
			func(ctx context.Context, _ *sessions.Session, _ struct{}) (*mcp.CallToolResult, error) {
				u, err := c.Me(ctx)
				return toolResult(u, err)
			},
			mcpservice.WithToolDescription("Get the user profile the configured API token belongs to."),
		),
		mcpservice.NewTool("list_users",
			func(ctx context.Context, _ *sessions.Session, _ struct{}) (*mcp.CallToolResult, error) {
				us, err := c.ListUsers(ctx)
				return toolResult(us, err)
			},
			mcpservice.WithToolDescription("List the members of the Worklog account."),
		),
		mcpservice.NewTool("list_projects",
			func(ctx context.Context, _ *sessions.Session, args listProjectsArgs) (*mcp.CallToolResult, error) {
				ps, err := c.ListProjects(ctx, args.Status)
				return toolResult(ps, err)
			},
			mcpservice.WithToolDescription("List the account's projects, optionally filtered by status."),
		),
		mcpservice.NewTool("list_time_entries",
			func(ctx context.Context, _ *sessions.Session, args listTimeEntriesArgs) (*mcp.CallToolResult, error) {
				es, err := c.ListTimeEntries(ctx, TimeEntryFilter{
					From: args.From, To: args.To,
					UserID: args.UserID, ProjectID: args.ProjectID,
				})
				return toolResult(es, err)
			},
			mcpservice.WithToolDescription("List time entries, optionally filtered by date range, user, or project."),
		),
		mcpservice.NewTool("create_time_entry",
			func(ctx context.Context, _ *sessions.Session, args createTimeEntryArgs) (*mcp.CallToolResult, error) {
				if args.ProjectID == 0 || args.StartedAt == "" || args.DurationSeconds <= 0 {
					return mcpservice.Errorf("project_id, started_at and a positive duration_seconds are required"), nil
				}
				e, err := c.CreateTimeEntry(ctx, NewTimeEntry{
					ProjectID: args.ProjectID, UserID: args.UserID, Note: args.Note,
					StartedAt: args.StartedAt, DurationSeconds: args.DurationSeconds,
				})
				return toolResult(e, err)
			},
			mcpservice.WithToolDescription("Record a new time entry against a project."),
		),
		mcpservice.NewTool("delete_time_entry",
			func(ctx context.Context, _ *sessions.Session, args deleteTimeEntryArgs) (*mcp.CallToolResult, error) {
				if args.ID == 0 {
					return mcpservice.Errorf("id is required"), nil
				}
				if err := c.DeleteTimeEntry(ctx, args.ID); err != nil {
					return toolResult(nil, err)
				}
				return mcpservice.TextResult("deleted"), nil
			},
			mcpservice.WithToolDescription("Delete a time entry by id."),
		),
		mcpservice.NewTool("activity_summary",
			func(ctx context.Context, _ *sessions.Session, args activitySummaryArgs) (*mcp.CallToolResult, error) {
				if args.From == "" || args.To == "" {
					return mcpservice.Errorf("from and to dates are required"), nil
				}
				days, err := c.DailyActivity(ctx, args.From, args.To, args.UserID)
				return toolResult(days, err)
			},
			mcpservice.WithToolDescription("Summarize tracked time and activity percentages per day."),
		),
	}
}
