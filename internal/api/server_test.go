package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/serverdb"
	"github.com/vm799/trust-by-design-sub003/internal/syncclient"
)

type harness struct {
	server *Server
	ts     *httptest.Server
	db     *serverdb.ServerDB
	apiKey string
}

func setupServer(t *testing.T) *harness {
	t.Helper()
	db, err := serverdb.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.CreateWorkspace("ws-1", "One"); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	key, _, err := db.GenerateAPIKey("ws-1", "test device")
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	srv := NewServer(Config{}, db)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &harness{server: srv, ts: ts, db: db, apiKey: key}
}

func (h *harness) client() *syncclient.Client {
	return syncclient.New(h.ts.URL, h.apiKey, "dev-test")
}

func TestHealthz(t *testing.T) {
	h := setupServer(t)

	resp, err := h.client().HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status: got %q", resp.Status)
	}
}

func TestAuthRequired(t *testing.T) {
	h := setupServer(t)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "Bearer tbk_live_wrong", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", h.ts.URL+"/v1/workspaces/ws-1/entities/jobs", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestKeyScopedToWorkspace(t *testing.T) {
	h := setupServer(t)
	h.db.CreateWorkspace("ws-2", "Two")

	// A ws-1 key may not touch ws-2
	_, err := h.client().Pull(context.Background(), "ws-2", "jobs", nil)
	if !errors.Is(err, syncclient.ErrForbidden) {
		t.Errorf("cross-workspace pull: got %v, want ErrForbidden", err)
	}
}

func TestUnknownKindRejected(t *testing.T) {
	h := setupServer(t)
	_, err := h.client().Pull(context.Background(), "ws-1", "secrets", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown_kind") {
		t.Errorf("unknown kind: got %v", err)
	}
}

func TestCreatePullRoundTrip(t *testing.T) {
	h := setupServer(t)
	c := h.client()
	ctx := context.Background()

	created, err := c.Create(ctx, "ws-1", "jobs", json.RawMessage(`{"id":"job-1","title":"Fit boiler"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "job-1" {
		t.Errorf("canonical id: got %q", created.ID)
	}

	records, err := c.Pull(ctx, "ws-1", "jobs", nil)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(records) != 1 || records[0].ID != "job-1" {
		t.Fatalf("pulled: %+v", records)
	}
	if records[0].WorkspaceID != "ws-1" {
		t.Errorf("workspace: got %q", records[0].WorkspaceID)
	}
	if _, err := time.Parse(time.RFC3339Nano, records[0].UpdatedAt); err != nil {
		t.Errorf("updated_at format: %q", records[0].UpdatedAt)
	}
}

func TestCreateReplayReturnsCanonicalID(t *testing.T) {
	h := setupServer(t)
	c := h.client()
	ctx := context.Background()

	payload := json.RawMessage(`{"id":"job-1","title":"Fit boiler"}`)
	if _, err := c.Create(ctx, "ws-1", "jobs", payload); err != nil {
		t.Fatalf("create: %v", err)
	}
	replayed, err := c.Create(ctx, "ws-1", "jobs", payload)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.ID != "job-1" {
		t.Errorf("replay id: got %q", replayed.ID)
	}

	records, _ := c.Pull(ctx, "ws-1", "jobs", nil)
	if len(records) != 1 {
		t.Fatalf("entities after replay: got %d, want 1", len(records))
	}
}

func TestIncrementalPull(t *testing.T) {
	h := setupServer(t)
	c := h.client()
	ctx := context.Background()

	c.Create(ctx, "ws-1", "jobs", json.RawMessage(`{"id":"job-old"}`))
	cursor := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)
	c.Create(ctx, "ws-1", "jobs", json.RawMessage(`{"id":"job-new"}`))

	records, err := c.Pull(ctx, "ws-1", "jobs", &cursor)
	if err != nil {
		t.Fatalf("incremental pull: %v", err)
	}
	if len(records) != 1 || records[0].ID != "job-new" {
		t.Errorf("incremental: %+v", records)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	h := setupServer(t)
	c := h.client()
	ctx := context.Background()

	c.Create(ctx, "ws-1", "jobs", json.RawMessage(`{"id":"job-1","status":"Scheduled"}`))
	if err := c.Update(ctx, "ws-1", "jobs", "job-1", json.RawMessage(`{"id":"job-1","status":"Complete"}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	records, _ := c.Pull(ctx, "ws-1", "jobs", nil)
	if len(records) != 1 || !strings.Contains(string(records[0].Data), "Complete") {
		t.Errorf("after update: %+v", records)
	}

	if err := c.Delete(ctx, "ws-1", "jobs", "job-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	records, _ = c.Pull(ctx, "ws-1", "jobs", nil)
	if len(records) != 0 {
		t.Errorf("after delete: %+v", records)
	}
	// Deleting again is fine; the client treats 404 as done anyway
	if err := c.Delete(ctx, "ws-1", "jobs", "job-1"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestWorkspaceStatusEndpoint(t *testing.T) {
	h := setupServer(t)
	c := h.client()
	ctx := context.Background()

	c.Create(ctx, "ws-1", "jobs", json.RawMessage(`{"id":"job-1"}`))
	c.Create(ctx, "ws-1", "clients", json.RawMessage(`{"id":"client-1"}`))

	status, err := c.WorkspaceStatus(ctx, "ws-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Counts["jobs"] != 1 || status.Counts["clients"] != 1 {
		t.Errorf("counts: %+v", status.Counts)
	}
	if status.LastModified == "" {
		t.Error("last_modified missing")
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	h := setupServer(t)

	req, _ := http.NewRequest("POST", h.ts.URL+"/v1/workspaces/ws-1/entities/jobs",
		strings.NewReader("{broken"))
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	db, err := serverdb.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.CreateWorkspace("ws-1", "One")
	key, _, _ := db.GenerateAPIKey("ws-1", "test")

	srv := NewServer(Config{RateLimitPull: 3}, db)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	c := syncclient.New(ts.URL, key, "dev-test")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Pull(ctx, "ws-1", "jobs", nil); err != nil {
			t.Fatalf("pull %d: %v", i, err)
		}
	}
	if _, err := c.Pull(ctx, "ws-1", "jobs", nil); err == nil || !strings.Contains(err.Error(), "rate_limited") {
		t.Errorf("fourth pull: got %v, want rate_limited", err)
	}
}
