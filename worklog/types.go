package worklog

import "time"

// User is a member of the Worklog account.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	TimeZone string `json:"time_zone,omitempty"`
}

// Project is a billable or internal project.
type Project struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status,omitempty"`
	ClientID int64  `json:"client_id,omitempty"`
}

// TimeEntry is one tracked block of work.
type TimeEntry struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	ProjectID       int64      `json:"project_id"`
	Note            string     `json:"note,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
}

// TimeEntryFilter narrows a time entry listing. Dates are YYYY-MM-DD.
type TimeEntryFilter struct {
	From      string
	To        string
	UserID    int64
	ProjectID int64
}

// NewTimeEntry is the payload for recording a time entry.
type NewTimeEntry struct {
	ProjectID       int64  `json:"project_id"`
	UserID          int64  `json:"user_id,omitempty"`
	Note            string `json:"note,omitempty"`
	StartedAt       string `json:"started_at"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// ActivityDay summarizes one user-day of tracked time and input activity.
type ActivityDay struct {
	Date            string  `json:"date"`
	UserID          int64   `json:"user_id"`
	TrackedSeconds  int64   `json:"tracked_seconds"`
	ActivityPercent float64 `json:"activity_percent"`
}
