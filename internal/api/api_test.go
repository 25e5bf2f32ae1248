package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailytrack/dailytrack/internal/auth"
	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/metrics"
	"github.com/dailytrack/dailytrack/internal/model"
	"github.com/dailytrack/dailytrack/internal/storage"
)

// stubBroadcaster records broadcast calls for assertions.
type stubBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

type broadcastEvent struct {
	topic   string
	payload any
}

func (s *stubBroadcaster) Broadcast(topic string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, broadcastEvent{topic: topic, payload: payload})
}

func (s *stubBroadcaster) topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.topic
	}
	return out
}

func newTestAPI(t *testing.T) (*API, *stubBroadcaster) {
	t.Helper()
	hub := &stubBroadcaster{}
	a := NewAPI(DefaultConfig(), storage.NewMemoryStorage(), hub, auth.NewSessions(auth.DefaultConfig()), auth.LogSender{})
	return a, hub
}

func doJSON(t *testing.T, a *API, method, path string, body any, cookie string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := a.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// registerUser registers an account and returns its session cookie.
func registerUser(t *testing.T, a *API, email string) string {
	t.Helper()
	resp := doJSON(t, a, http.MethodPost, "/api/auth/register", map[string]string{
		"username": email,
		"email":    email,
		"password": "secret123",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, c := range resp.Cookies() {
		if c.Name == "dailytrack_session" {
			return c.Name + "=" + c.Value
		}
	}
	t.Fatal("no session cookie issued")
	return ""
}

func TestRegisterAndLogin(t *testing.T) {
	a, _ := newTestAPI(t)

	resp := doJSON(t, a, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "dana",
		"email":    "dana@example.com",
		"password": "secret123",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "dana", body["username"])
	assert.NotContains(t, body, "password")

	// Duplicate email
	resp = doJSON(t, a, http.MethodPost, "/api/auth/register", map[string]string{
		"username": "other",
		"email":    "dana@example.com",
		"password": "secret123",
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email already exists", decode(t, resp)["error"])

	// Login by email
	resp = doJSON(t, a, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "dana@example.com",
		"password": "secret123",
	}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Login by username
	resp = doJSON(t, a, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "dana",
		"password": "secret123",
	}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Wrong password
	resp = doJSON(t, a, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "dana",
		"password": "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthCheckAndMe(t *testing.T) {
	a, _ := newTestAPI(t)

	resp := doJSON(t, a, http.MethodGet, "/api/auth/check", nil, "")
	assert.Equal(t, false, decode(t, resp)["authenticated"])

	resp = doJSON(t, a, http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cookie := registerUser(t, a, "me@example.com")

	resp = doJSON(t, a, http.MethodGet, "/api/auth/check", nil, cookie)
	assert.Equal(t, true, decode(t, resp)["authenticated"])

	resp = doJSON(t, a, http.MethodGet, "/api/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "me@example.com", decode(t, resp)["email"])
}

func TestLogoutInvalidatesSession(t *testing.T) {
	a, _ := newTestAPI(t)
	cookie := registerUser(t, a, "out@example.com")

	resp := doJSON(t, a, http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, a, http.MethodGet, "/api/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMutationsRequireAuth(t *testing.T) {
	a, hub := newTestAPI(t)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/jobs"},
		{http.MethodPost, "/api/jobs/analyze"},
		{http.MethodPut, "/api/jobs/abc"},
		{http.MethodDelete, "/api/jobs/abc"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodPatch, "/api/tasks/abc"},
		{http.MethodDelete, "/api/tasks/abc"},
		{http.MethodPost, "/api/notes"},
		{http.MethodPatch, "/api/notes/abc"},
		{http.MethodDelete, "/api/notes/abc"},
	}
	for _, tc := range cases {
		resp := doJSON(t, a, tc.method, tc.path, map[string]string{"title": "x", "url": "https://x.com", "content": "x"}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)
	}

	// Rejected before persistence, so nothing was broadcast.
	assert.Empty(t, hub.topics())
}

func TestJobLifecycleBroadcasts(t *testing.T) {
	a, hub := newTestAPI(t)
	cookie := registerUser(t, a, "jobs@example.com")

	resp := doJSON(t, a, http.MethodPost, "/api/jobs", map[string]string{
		"url":     "https://careers.google.com/jobs/1",
		"title":   "Software Engineer",
		"company": "Google",
	}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job := decode(t, resp)
	jobID := job["id"].(string)

	resp = doJSON(t, a, http.MethodPut, "/api/jobs/"+jobID, map[string]string{
		"title": "Senior Software Engineer",
	}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Senior Software Engineer", decode(t, resp)["title"])

	resp = doJSON(t, a, http.MethodDelete, "/api/jobs/"+jobID, nil, cookie)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, a, http.MethodDelete, "/api/jobs/"+jobID, nil, cookie)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, []string{"job:created", "job:updated", "job:deleted"}, hub.topics())
}

func TestAnalyzeJob(t *testing.T) {
	a, hub := newTestAPI(t)
	cookie := registerUser(t, a, "analyze@example.com")

	resp := doJSON(t, a, http.MethodPost, "/api/jobs/analyze", map[string]string{
		"url": "https://jobs.lever.co/stripe/devops-engineer",
	}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job := decode(t, resp)
	assert.Equal(t, "Stripe", job["company"])
	assert.Equal(t, "DevOps Engineer", job["title"])
	assert.Equal(t, []string{"job:created"}, hub.topics())

	// Same URL again: notice, no new record, no broadcast.
	resp = doJSON(t, a, http.MethodPost, "/api/jobs/analyze", map[string]string{
		"url": "https://jobs.lever.co/stripe/devops-engineer/",
	}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["already_analyzed"])
	assert.Equal(t, []string{"job:created"}, hub.topics())

	resp = doJSON(t, a, http.MethodGet, "/api/jobs", nil, cookie)
	var jobs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	assert.Len(t, jobs, 1)

	// Invalid URL
	resp = doJSON(t, a, http.MethodPost, "/api/jobs/analyze", map[string]string{"url": "not a url"}, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unextractable company fails the quality gate.
	resp = doJSON(t, a, http.MethodPost, "/api/jobs/analyze", map[string]string{
		"url": "https://com.com/jobs/1",
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTaskDuplicateURLRejected(t *testing.T) {
	a, hub := newTestAPI(t)
	cookie := registerUser(t, a, "tasks@example.com")

	resp := doJSON(t, a, http.MethodPost, "/api/tasks", map[string]string{
		"title": "Apply",
		"url":   "https://example.com/job/1",
	}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Same URL modulo case and trailing slash.
	resp = doJSON(t, a, http.MethodPost, "/api/tasks", map[string]string{
		"title": "Apply again",
		"url":   "https://EXAMPLE.com/job/1/",
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Task with this URL already exists", decode(t, resp)["error"])

	assert.Equal(t, []string{"task:created"}, hub.topics())
}

func TestTaskCompletionToggle(t *testing.T) {
	a, hub := newTestAPI(t)
	cookie := registerUser(t, a, "toggle@example.com")

	resp := doJSON(t, a, http.MethodPost, "/api/tasks", map[string]string{"title": "Follow up"}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	taskID := decode(t, resp)["id"].(string)

	resp = doJSON(t, a, http.MethodPatch, "/api/tasks/"+taskID, map[string]bool{"completed": true}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["completed"])

	assert.Equal(t, []string{"task:created", "task:updated"}, hub.topics())
}

func TestNoteLifecycle(t *testing.T) {
	a, hub := newTestAPI(t)
	cookie := registerUser(t, a, "notes@example.com")

	resp := doJSON(t, a, http.MethodPost, "/api/notes", map[string]string{"content": "remember"}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	note := decode(t, resp)
	assert.Equal(t, "#ffffff", note["color"])
	noteID := note["id"].(string)

	resp = doJSON(t, a, http.MethodPatch, "/api/notes/"+noteID, map[string]string{"color": "#aabbcc"}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "#aabbcc", decode(t, resp)["color"])

	resp = doJSON(t, a, http.MethodDelete, "/api/notes/"+noteID, nil, cookie)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, []string{"note:created", "note:updated", "note:deleted"}, hub.topics())
}

func TestChangePassword(t *testing.T) {
	a, _ := newTestAPI(t)
	cookie := registerUser(t, a, "pw@example.com")

	resp := doJSON(t, a, http.MethodPost, "/api/auth/change-password", map[string]string{
		"currentPassword": "wrong",
		"newPassword":     "newsecret",
	}, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, a, http.MethodPost, "/api/auth/change-password", map[string]string{
		"currentPassword": "secret123",
		"newPassword":     "short",
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, a, http.MethodPost, "/api/auth/change-password", map[string]string{
		"currentPassword": "secret123",
		"newPassword":     "newsecret",
	}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, a, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "pw@example.com",
		"password": "newsecret",
	}, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForgotPasswordFlow(t *testing.T) {
	a, _ := newTestAPI(t)
	registerUser(t, a, "forgot@example.com")

	// Unknown email still reports success.
	resp := doJSON(t, a, http.MethodPost, "/api/auth/forgot-password/send-otp", map[string]string{
		"email": "nobody@example.com",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["success"])

	resp = doJSON(t, a, http.MethodPost, "/api/auth/forgot-password/send-otp", map[string]string{
		"email": "forgot@example.com",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A wrong code is rejected.
	resp = doJSON(t, a, http.MethodPost, "/api/auth/forgot-password/verify-otp", map[string]string{
		"email": "forgot@example.com",
		"otp":   "000000x",
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteAccount(t *testing.T) {
	a, _ := newTestAPI(t)
	cookie := registerUser(t, a, "gone@example.com")

	resp := doJSON(t, a, http.MethodDelete, "/api/auth/account", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The session died with the account.
	resp = doJSON(t, a, http.MethodGet, "/api/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, a, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "gone@example.com",
		"password": "secret123",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	a, _ := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := doJSON(t, a, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

// failingStorage breaks job listing to exercise the 5xx path.
type failingStorage struct {
	domain.Storage
}

func (f *failingStorage) ListJobs(ctx context.Context, userID string) ([]*model.Job, error) {
	return nil, errors.New("backing store unavailable")
}

func TestServerErrorIncrementsErrorCounter(t *testing.T) {
	hub := &stubBroadcaster{}
	store := &failingStorage{Storage: storage.NewMemoryStorage()}
	a := NewAPI(DefaultConfig(), store, hub, auth.NewSessions(auth.DefaultConfig()), auth.LogSender{})
	cookie := registerUser(t, a, "outage@example.com")

	counter := metrics.GetMetrics().APIErrorsTotal.WithLabelValues(http.MethodGet, "/api/jobs", "server_error")
	before := testutil.ToFloat64(counter)

	resp := doJSON(t, a, http.MethodGet, "/api/jobs", nil, cookie)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
