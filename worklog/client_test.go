package worklog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestAPI stands up a fake Worklog API and a client pointed at it.
func newTestAPI(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "tok-test", "acct-7")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("not a url", "tok", "acct"); err == nil {
		t.Error("expected an error for an invalid base URL")
	}
	if _, err := NewClient("https://api.example.com", "", "acct"); err == nil {
		t.Error("expected an error for a missing token")
	}
	if _, err := NewClient("https://api.example.com", "tok", ""); err == nil {
		t.Error("expected an error for a missing account id")
	}
}

func TestMeSendsBearerToken(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-test" {
			t.Errorf("authorization header: got %q", got)
		}
		if r.URL.Path != "/users/me" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": 42, "name": "Ada", "email": "ada@example.com"},
		})
	})

	u, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if u.ID != 42 || u.Name != "Ada" {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestListTimeEntriesBuildsQuery(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct-7/time_entries" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("from") != "2026-08-01" || q.Get("to") != "2026-08-07" || q.Get("user_id") != "42" {
			t.Errorf("unexpected query: %v", q)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"time_entries": []map[string]any{
				{"id": 1, "user_id": 42, "project_id": 9, "started_at": "2026-08-01T09:00:00Z", "duration_seconds": 3600},
			},
		})
	})

	entries, err := c.ListTimeEntries(context.Background(), TimeEntryFilter{
		From: "2026-08-01", To: "2026-08-07", UserID: 42,
	})
	if err != nil {
		t.Fatalf("ListTimeEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].DurationSeconds != 3600 {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestCreateTimeEntryPostsBody(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %q", r.Method)
		}
		var body NewTimeEntry
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if body.ProjectID != 9 || body.DurationSeconds != 1800 {
			t.Errorf("unexpected body: %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"time_entry": map[string]any{"id": 5, "project_id": 9, "duration_seconds": 1800, "started_at": "2026-08-24T10:00:00Z"},
		})
	})

	e, err := c.CreateTimeEntry(context.Background(), NewTimeEntry{
		ProjectID: 9, StartedAt: "2026-08-24T10:00:00Z", DurationSeconds: 1800,
	})
	if err != nil {
		t.Fatalf("CreateTimeEntry failed: %v", err)
	}
	if e.ID != 5 {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "subscription expired"})
	})

	_, err := c.ListProjects(context.Background(), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusPaymentRequired || apiErr.Message != "subscription expired" {
		t.Errorf("unexpected api error: %+v", apiErr)
	}
}

func TestDeleteTimeEntry(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/accounts/acct-7/time_entries/11" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.DeleteTimeEntry(context.Background(), 11); err != nil {
		t.Fatalf("DeleteTimeEntry failed: %v", err)
	}
}
