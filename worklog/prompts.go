package worklog

import (
	"context"
	"fmt"

	"github.com/worklog-dev/worklog-mcp-go/mcp"
	"github.com/worklog-dev/worklog-mcp-go/mcpservice"
	"github.com/worklog-dev/worklog-mcp-go/sessions"
)

// Prompts builds the static prompt directory. Prompts compose instructions
// around the tool set; they perform no API calls themselves.
func Prompts() []mcpservice.StaticPrompt {
	return []mcpservice.StaticPrompt{
		{
			Descriptor: mcp.Prompt{
				Name:        "daily_standup",
				Description: "Draft a standup update from yesterday's tracked time.",
				Arguments: []mcp.PromptArgument{
					{Name: "date", Description: "Day to report on (YYYY-MM-DD); defaults to yesterday"},
					{Name: "user_id", Description: "User to report on; defaults to the token's user"},
				},
			},
			Handler: standupPrompt,
		},
		{
			Descriptor: mcp.Prompt{
				Name:        "weekly_summary",
				Description: "Summarize a week of tracked time and activity for review.",
				Arguments: []mcp.PromptArgument{
					{Name: "from", Description: "First day of the week (YYYY-MM-DD)", Required: true},
					{Name: "user_id", Description: "User to report on; defaults to the whole account"},
				},
			},
			Handler: weeklySummaryPrompt,
		},
	}
}

func standupPrompt(ctx context.Context, _ *sessions.Session, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
	date := req.Arguments["date"]
	if date == "" {
		date = "yesterday"
	}
	scope := "the current user (use get_current_user to resolve them)"
	if uid := req.Arguments["user_id"]; uid != "" {
		scope = "user " + uid
	}
	text := fmt.Sprintf(
		"Prepare a short standup update for %s covering %s. "+
			"Fetch the relevant entries with list_time_entries, group them by project "+
			"(resolve names via list_projects), and produce three sections: what was done, "+
			"total tracked time, and anything that looks blocked or unusually short.",
		scope, date)
	return &mcp.GetPromptResult{
		Description: "Standup update from tracked time",
		Messages:    []mcp.PromptMessage{mcpservice.TextPromptMessage(mcp.RoleUser, text)},
	}, nil
}

func weeklySummaryPrompt(ctx context.Context, _ *sessions.Session, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
	from := req.Arguments["from"]
	if from == "" {
		return nil, fmt.Errorf("missing required argument: from")
	}
	scope := "every member of the account"
	if uid := req.Arguments["user_id"]; uid != "" {
		scope = "user " + uid
	}
	text := fmt.Sprintf(
		"Write a weekly review for the week starting %s covering %s. "+
			"Use list_time_entries for the date range and activity_summary for the same period, "+
			"then report: total tracked time per project, average activity percentage, and days "+
			"with no tracked time. Close with one paragraph of observations.",
		from, scope)
	return &mcp.GetPromptResult{
		Description: "Weekly time and activity review",
		Messages:    []mcp.PromptMessage{mcpservice.TextPromptMessage(mcp.RoleUser, text)},
	}, nil
}
