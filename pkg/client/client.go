package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/dailytrack/dailytrack/internal/model"
)

// Client is an HTTP client for the tracker API. Session cookies issued
// at login are kept in a jar and sent on every subsequent request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a new API client
func New(baseURL string, options ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second, Jar: jar},
		timeout:    10 * time.Second,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// apiError is the error envelope returned by the server.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return resp, nil
}

func decodeInto(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Account holds the public fields of the authenticated user.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Register creates an account and opens a session.
func (c *Client) Register(ctx context.Context, username, email, phone, password string) (*Account, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"phone":    phone,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	var account Account
	if err := decodeInto(resp, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Login opens a session with an email or username plus password.
func (c *Client) Login(ctx context.Context, login, password string) (*Account, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"username": login,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	var account Account
	if err := decodeInto(resp, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Logout closes the session.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil)
	if err != nil {
		return err
	}
	return decodeInto(resp, nil)
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (*Account, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	var account Account
	if err := decodeInto(resp, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// ListJobs returns the caller's saved jobs, newest first.
func (c *Client) ListJobs(ctx context.Context) ([]*model.Job, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/jobs", nil)
	if err != nil {
		return nil, err
	}
	var jobs []*model.Job
	if err := decodeInto(resp, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CreateJob saves a job record.
func (c *Client) CreateJob(ctx context.Context, in model.InsertJob) (*model.Job, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/jobs", in)
	if err != nil {
		return nil, err
	}
	var job model.Job
	if err := decodeInto(resp, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// AnalyzeResult is the response of the analyze endpoint: either a new
// job record or a notice that the URL was already analyzed.
type AnalyzeResult struct {
	Job             *model.Job
	AlreadyAnalyzed bool
	Message         string
}

// AnalyzeJob submits a posting URL for classification.
func (c *Client) AnalyzeJob(ctx context.Context, url string) (*AnalyzeResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/jobs/analyze", map[string]string{"url": url})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var notice struct {
		AlreadyAnalyzed bool   `json:"already_analyzed"`
		Message         string `json:"message"`
	}
	if err := json.Unmarshal(data, &notice); err == nil && notice.AlreadyAnalyzed {
		return &AnalyzeResult{AlreadyAnalyzed: true, Message: notice.Message}, nil
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &AnalyzeResult{Job: &job}, nil
}

// UpdateJob applies a partial update to a job.
func (c *Client) UpdateJob(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error) {
	resp, err := c.do(ctx, http.MethodPut, "/api/jobs/"+id, patch)
	if err != nil {
		return nil, err
	}
	var job model.Job
	if err := decodeInto(resp, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// DeleteJob removes a job.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/jobs/"+id, nil)
	if err != nil {
		return err
	}
	return decodeInto(resp, nil)
}

// ListTasks returns the caller's tasks, newest first.
func (c *Client) ListTasks(ctx context.Context) ([]*model.Task, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/tasks", nil)
	if err != nil {
		return nil, err
	}
	var tasks []*model.Task
	if err := decodeInto(resp, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask saves a task.
func (c *Client) CreateTask(ctx context.Context, in model.InsertTask) (*model.Task, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/tasks", in)
	if err != nil {
		return nil, err
	}
	var task model.Task
	if err := decodeInto(resp, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	resp, err := c.do(ctx, http.MethodPatch, "/api/tasks/"+id, patch)
	if err != nil {
		return nil, err
	}
	var task model.Task
	if err := decodeInto(resp, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/tasks/"+id, nil)
	if err != nil {
		return err
	}
	return decodeInto(resp, nil)
}

// ListNotes returns the caller's notes, newest first.
func (c *Client) ListNotes(ctx context.Context) ([]*model.Note, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/notes", nil)
	if err != nil {
		return nil, err
	}
	var notes []*model.Note
	if err := decodeInto(resp, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

// CreateNote saves a note.
func (c *Client) CreateNote(ctx context.Context, in model.InsertNote) (*model.Note, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/notes", in)
	if err != nil {
		return nil, err
	}
	var note model.Note
	if err := decodeInto(resp, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// UpdateNote applies a partial update to a note.
func (c *Client) UpdateNote(ctx context.Context, id string, patch model.NotePatch) (*model.Note, error) {
	resp, err := c.do(ctx, http.MethodPatch, "/api/notes/"+id, patch)
	if err != nil {
		return nil, err
	}
	var note model.Note
	if err := decodeInto(resp, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// DeleteNote removes a note.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/notes/"+id, nil)
	if err != nil {
		return err
	}
	return decodeInto(resp, nil)
}
