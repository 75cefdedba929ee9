package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/steadyhq/steady/internal/store"
)

type fakeJobStore struct {
	jobs       map[string]*store.Job
	lastReq    store.EnqueueRequest
	counts     []store.QueueCounts
	enqueueErr error
	pingErr    error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*store.Job)}
}

func (f *fakeJobStore) Enqueue(ctx context.Context, req store.EnqueueRequest) (string, error) {
	if f.enqueueErr != nil {
		return "", f.enqueueErr
	}
	f.lastReq = req
	id := fmt.Sprintf("job_%024d", len(f.jobs)+1)
	f.jobs[id] = &store.Job{ID: id, Name: req.Name, State: store.StateCreated, Payload: req.Payload}
	return id, nil
}

func (f *fakeJobStore) GetJob(ctx context.Context, id string) (*store.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobStore) Cancel(ctx context.Context, id string) error {
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.State != store.StateCreated && job.State != store.StateRetry {
		return fmt.Errorf("job %q is %s: %w", id, job.State, store.ErrInvalidState)
	}
	job.State = store.StateCancelled
	return nil
}

func (f *fakeJobStore) CountsByName(ctx context.Context) ([]store.QueueCounts, error) {
	return f.counts, nil
}

func (f *fakeJobStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func testRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestEnqueue(t *testing.T) {
	fs := newFakeJobStore()
	srv := New(fs, ":0")

	w := testRequest(t, srv, "POST", "/api/v1/enqueue", `{
		"name": "email.send",
		"payload": {"to": "user@example.com"},
		"priority": 3,
		"retry_limit": 5,
		"retry_delay": "30s",
		"retry_backoff": true,
		"keep_for": "24h"
	}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["job_id"] == "" {
		t.Error("response missing job_id")
	}
	if resp["state"] != store.StateCreated {
		t.Errorf("state = %q, want %q", resp["state"], store.StateCreated)
	}

	req := fs.lastReq
	if req.Name != "email.send" || req.Priority != 3 {
		t.Errorf("stored request = %+v", req)
	}
	if req.RetryLimit == nil || *req.RetryLimit != 5 {
		t.Errorf("retry_limit = %v, want 5", req.RetryLimit)
	}
	if req.RetryDelay == nil || *req.RetryDelay != 30*time.Second {
		t.Errorf("retry_delay = %v, want 30s", req.RetryDelay)
	}
	if !req.UseBackoff {
		t.Error("retry_backoff not carried through")
	}
	if req.KeepFor == nil || *req.KeepFor != 24*time.Hour {
		t.Errorf("keep_for = %v, want 24h", req.KeepFor)
	}
}

func TestEnqueueValidation(t *testing.T) {
	srv := New(newFakeJobStore(), ":0")

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed JSON", `{"name": `, "PARSE_ERROR"},
		{"missing name", `{"payload": {}}`, "VALIDATION_ERROR"},
		{"bad retry_delay", `{"name": "x", "retry_delay": "soon"}`, "VALIDATION_ERROR"},
		{"bad keep_for", `{"name": "x", "keep_for": "forever"}`, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testRequest(t, srv, "POST", "/api/v1/enqueue", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var resp map[string]string
			decodeBody(t, w, &resp)
			if resp["code"] != tt.code {
				t.Errorf("code = %q, want %q", resp["code"], tt.code)
			}
		})
	}
}

func TestGetJob(t *testing.T) {
	fs := newFakeJobStore()
	srv := New(fs, ":0")
	id, _ := fs.Enqueue(context.Background(), store.EnqueueRequest{
		Name: "email.send", Payload: json.RawMessage(`{"to":"a"}`),
	})

	w := testRequest(t, srv, "GET", "/api/v1/jobs/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var job store.Job
	decodeBody(t, w, &job)
	if job.ID != id || job.State != store.StateCreated {
		t.Errorf("job = %+v", job)
	}
}

func TestGetJobNotFound(t *testing.T) {
	srv := New(newFakeJobStore(), ":0")

	w := testRequest(t, srv, "GET", "/api/v1/jobs/job_missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["code"] != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", resp["code"])
	}
}

func TestCancelJob(t *testing.T) {
	fs := newFakeJobStore()
	srv := New(fs, ":0")
	id, _ := fs.Enqueue(context.Background(), store.EnqueueRequest{Name: "email.send"})

	w := testRequest(t, srv, "POST", "/api/v1/jobs/"+id+"/cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if fs.jobs[id].State != store.StateCancelled {
		t.Errorf("state = %q, want %q", fs.jobs[id].State, store.StateCancelled)
	}
}

func TestCancelJobInvalidState(t *testing.T) {
	fs := newFakeJobStore()
	srv := New(fs, ":0")
	id, _ := fs.Enqueue(context.Background(), store.EnqueueRequest{Name: "email.send"})
	fs.jobs[id].State = store.StateCompleted

	w := testRequest(t, srv, "POST", "/api/v1/jobs/"+id+"/cancel", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["code"] != "INVALID_STATE" {
		t.Errorf("code = %q, want INVALID_STATE", resp["code"])
	}
}

func TestListQueues(t *testing.T) {
	fs := newFakeJobStore()
	fs.counts = []store.QueueCounts{{Name: "email.send", Created: 2, Completed: 5}}
	srv := New(fs, ":0")

	w := testRequest(t, srv, "GET", "/api/v1/queues", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var counts []store.QueueCounts
	decodeBody(t, w, &counts)
	if len(counts) != 1 || counts[0].Name != "email.send" || counts[0].Completed != 5 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestListQueuesEmpty(t *testing.T) {
	srv := New(newFakeJobStore(), ":0")

	w := testRequest(t, srv, "GET", "/api/v1/queues", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// Empty array, never null.
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}

func TestEnqueueStoreUnavailable(t *testing.T) {
	fs := newFakeJobStore()
	fs.enqueueErr = &store.UnavailableError{Err: errors.New("connection refused")}
	srv := New(fs, ":0")

	w := testRequest(t, srv, "POST", "/api/v1/enqueue", `{"name": "email.send"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["code"] != "STORE_UNAVAILABLE" {
		t.Errorf("code = %q, want STORE_UNAVAILABLE", resp["code"])
	}
}

func TestHealthz(t *testing.T) {
	fs := newFakeJobStore()
	srv := New(fs, ":0")

	w := testRequest(t, srv, "GET", "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	fs.pingErr = errors.New("connection refused")
	w = testRequest(t, srv, "GET", "/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
