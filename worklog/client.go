// Package worklog is a thin client for the Worklog remote-work-tracking REST
// API plus the MCP tool and prompt definitions built on top of it. Calls are
// plain request/response CRUD; all protocol and session logic lives upstream
// in the transport.
package worklog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the Worklog API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worklog: api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("worklog: %s (status %d)", e.Message, e.StatusCode)
}

// Client talks to the Worklog API on behalf of one account, authenticating
// every request with a static bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	accountID  string
	log        *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientLogger sets the logger for request-level events.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient builds a client for the given API endpoint, credential, and
// account identifier.
func NewClient(baseURL, token, accountID string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("worklog: invalid base URL %q", baseURL)
	}
	if token == "" {
		return nil, fmt.Errorf("worklog: api token is required")
	}
	if accountID == "" {
		return nil, fmt.Errorf("worklog: account id is required")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
		accountID:  accountID,
		log:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccountID returns the account the client is scoped to.
func (c *Client) AccountID() string { return c.accountID }

// accountPath prefixes p with the account scope.
func (c *Client) accountPath(p string) string {
	return "/accounts/" + url.PathEscape(c.accountID) + p
}

// do performs one API round trip. A non-2xx status decodes into *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("worklog: encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("worklog: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("worklog: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("api.call", slog.String("method", method), slog.String("path", path),
		slog.Int("status", resp.StatusCode), slog.Duration("dur", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb); err == nil {
			apiErr.Message = eb.Error
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("worklog: decode response: %w", err)
	}
	return nil
}

// Me returns the user the API token belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var body struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &body); err != nil {
		return nil, err
	}
	return &body.User, nil
}

// ListUsers returns the account's members.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var body struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/users"), nil, nil, &body); err != nil {
		return nil, err
	}
	return body.Users, nil
}

// ListProjects returns the account's projects, optionally filtered by status
// ("active" or "archived").
func (c *Client) ListProjects(ctx context.Context, status string) ([]Project, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var body struct {
		Projects []Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/projects"), q, nil, &body); err != nil {
		return nil, err
	}
	return body.Projects, nil
}

// ListTimeEntries returns time entries matching the filter.
func (c *Client) ListTimeEntries(ctx context.Context, f TimeEntryFilter) ([]TimeEntry, error) {
	q := url.Values{}
	if f.From != "" {
		q.Set("from", f.From)
	}
	if f.To != "" {
		q.Set("to", f.To)
	}
	if f.UserID != 0 {
		q.Set("user_id", fmt.Sprintf("%d", f.UserID))
	}
	if f.ProjectID != 0 {
		q.Set("project_id", fmt.Sprintf("%d", f.ProjectID))
	}
	var body struct {
		TimeEntries []TimeEntry `json:"time_entries"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/time_entries"), q, nil, &body); err != nil {
		return nil, err
	}
	return body.TimeEntries, nil
}

// CreateTimeEntry records a new time entry.
func (c *Client) CreateTimeEntry(ctx context.Context, e NewTimeEntry) (*TimeEntry, error) {
	var body struct {
		TimeEntry TimeEntry `json:"time_entry"`
	}
	if err := c.do(ctx, http.MethodPost, c.accountPath("/time_entries"), nil, e, &body); err != nil {
		return nil, err
	}
	return &body.TimeEntry, nil
}

// DeleteTimeEntry removes a time entry by id.
func (c *Client) DeleteTimeEntry(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, c.accountPath(fmt.Sprintf("/time_entries/%d", id)), nil, nil, nil)
}

// DailyActivity returns per-day tracked time and activity percentages for
// the inclusive date range, optionally scoped to one user.
func (c *Client) DailyActivity(ctx context.Context, from, to string, userID int64) ([]ActivityDay, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	if userID != 0 {
		q.Set("user_id", fmt.Sprintf("%d", userID))
	}
	var body struct {
		Days []ActivityDay `json:"days"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("/activity/daily"), q, nil, &body); err != nil {
		return nil, err
	}
	return body.Days, nil
}
