// Package client is a thin HTTP wrapper for the steady API, for
// collaborators that enqueue or poll jobs from outside the worker processes.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running steady server.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// New creates a new steady client.
func New(url string) *Client {
	return &Client{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// EnqueueOption configures an enqueue request.
type EnqueueOption func(map[string]interface{})

// WithPriority sets the job priority; higher values are claimed first.
func WithPriority(p int) EnqueueOption {
	return func(m map[string]interface{}) { m["priority"] = p }
}

// WithRetryLimit sets how many attempts the job is allowed.
func WithRetryLimit(n int) EnqueueOption {
	return func(m map[string]interface{}) { m["retry_limit"] = n }
}

// WithRetryDelay sets the base delay between attempts, e.g. "30s".
func WithRetryDelay(d time.Duration) EnqueueOption {
	return func(m map[string]interface{}) { m["retry_delay"] = d.String() }
}

// WithBackoff doubles the retry delay on every failed attempt.
func WithBackoff() EnqueueOption {
	return func(m map[string]interface{}) { m["retry_backoff"] = true }
}

// WithStartAfter defers eligibility until t.
func WithStartAfter(t time.Time) EnqueueOption {
	return func(m map[string]interface{}) { m["start_after"] = t.Format(time.RFC3339) }
}

// WithKeepFor sets the retention horizon for the terminal job row.
func WithKeepFor(d time.Duration) EnqueueOption {
	return func(m map[string]interface{}) { m["keep_for"] = d.String() }
}

// EnqueueResult is the response from enqueuing a job.
type EnqueueResult struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

// Enqueue enqueues a job.
func (c *Client) Enqueue(name string, payload interface{}, opts ...EnqueueOption) (*EnqueueResult, error) {
	body := map[string]interface{}{
		"name":    name,
		"payload": payload,
	}
	for _, opt := range opts {
		opt(body)
	}

	var result EnqueueResult
	if err := c.post("/api/v1/enqueue", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Job is a job as reported by the status endpoint.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	State       string          `json:"state"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	RetryCount  int             `json:"retry_count"`
	RetryLimit  int             `json:"retry_limit"`
	StartAfter  time.Time       `json:"start_after"`
	CreatedOn   time.Time       `json:"created_on"`
	StartedOn   *time.Time      `json:"started_on,omitempty"`
	CompletedOn *time.Time      `json:"completed_on,omitempty"`
	Errors      []JobError      `json:"errors,omitempty"`
}

// JobError is one recorded failed attempt.
type JobError struct {
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
	CreatedOn time.Time `json:"created_on"`
}

// Status fetches a job's current state and attempt history.
func (c *Client) Status(jobID string) (*Job, error) {
	var job Job
	if err := c.get("/api/v1/jobs/"+jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Cancel cancels a job that has not started running.
func (c *Client) Cancel(jobID string) error {
	return c.post("/api/v1/jobs/"+jobID+"/cancel", nil, nil)
}

// QueueCounts holds live job counts per state for one job name.
type QueueCounts struct {
	Name      string `json:"name"`
	Created   int    `json:"created"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}

// Queues lists job names with live state counts.
func (c *Client) Queues() ([]QueueCounts, error) {
	var out []QueueCounts
	if err := c.get("/api/v1/queues", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("steady: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
}

func (c *Client) post(path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, c.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.URL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(data)}
		var body map[string]string
		if json.Unmarshal(data, &body) == nil {
			if msg, ok := body["error"]; ok {
				apiErr.Message = msg
			}
			apiErr.Code = body["code"]
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
