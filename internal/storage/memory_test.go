package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/model"
)

func newTestUser(t *testing.T, s *MemoryStorage, email, phone string) *model.User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), model.InsertUser{
		Username: email,
		Email:    email,
		Phone:    phone,
		Password: "hash",
	})
	require.NoError(t, err)
	return user
}

func TestCreateUserDuplicates(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	newTestUser(t, s, "a@example.com", "+111")

	_, err := s.CreateUser(ctx, model.InsertUser{Username: "b", Email: "a@example.com", Phone: "+222", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrEmailExists)

	_, err = s.CreateUser(ctx, model.InsertUser{Username: "c", Email: "c@example.com", Phone: "+111", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrPhoneExists)

	// Two users without a phone number must both register fine.
	newTestUser(t, s, "d@example.com", "")
	newTestUser(t, s, "e@example.com", "")
}

func TestUserLookups(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	user := newTestUser(t, s, "find@example.com", "+333")

	byID, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)

	byEmail, err := s.GetUserByEmail(ctx, "find@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byPhone, err := s.GetUserByPhone(ctx, "+333")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byPhone.ID)

	_, err = s.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePassword(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	user := newTestUser(t, s, "pw@example.com", "")

	updated, err := s.UpdatePassword(ctx, user.ID, "newhash")
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", got.Password)

	updated, err = s.UpdatePassword(ctx, "missing", "x")
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = s.UpdatePasswordByEmail(ctx, "pw@example.com", "resethash")
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestDeleteUserCascades(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	user := newTestUser(t, s, "cascade@example.com", "")

	_, err := s.CreateJob(ctx, model.InsertJob{UserID: user.ID, URL: "https://x.com/1", Title: "T", Company: "C"})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, model.InsertTask{UserID: user.ID, Title: "Follow up"})
	require.NoError(t, err)
	_, err = s.CreateNote(ctx, model.InsertNote{UserID: user.ID, Content: "note"})
	require.NoError(t, err)

	deleted, err := s.DeleteUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	jobs, err := s.ListJobs(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	tasks, err := s.ListTasks(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	notes, err := s.ListNotes(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestJobCRUD(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	user := newTestUser(t, s, "jobs@example.com", "")

	job, err := s.CreateJob(ctx, model.InsertJob{
		UserID:  user.ID,
		URL:     "https://careers.google.com/jobs/1",
		Title:   "Software Engineer",
		Company: "Google",
	})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	title := "Staff Engineer"
	updated, err := s.UpdateJob(ctx, job.ID, model.JobPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Staff Engineer", updated.Title)
	assert.Equal(t, "Google", updated.Company)

	_, err = s.UpdateJob(ctx, "missing", model.JobPatch{Title: &title})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	deleted, err := s.DeleteJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestTaskCompletionPatch(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	user := newTestUser(t, s, "tasks@example.com", "")

	task, err := s.CreateTask(ctx, model.InsertTask{UserID: user.ID, Title: "Apply"})
	require.NoError(t, err)
	assert.False(t, task.Completed)

	done := true
	updated, err := s.UpdateTask(ctx, task.ID, model.TaskPatch{Completed: &done})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "Apply", updated.Title)
}

func TestNoteDefaultColor(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	user := newTestUser(t, s, "notes@example.com", "")

	note, err := s.CreateNote(ctx, model.InsertNote{UserID: user.ID, Content: "remember"})
	require.NoError(t, err)
	assert.Equal(t, "#ffffff", note.Color)

	color := "#ffee88"
	updated, err := s.UpdateNote(ctx, note.ID, model.NotePatch{Color: &color})
	require.NoError(t, err)
	assert.Equal(t, "#ffee88", updated.Color)
}

func TestOTPLifecycle(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	err := s.StoreOTP(ctx, "otp@example.com", "123456", "reset", time.Now().Add(5*time.Minute))
	require.NoError(t, err)

	ok, err := s.VerifyOTP(ctx, "otp@example.com", "123456", "reset")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.VerifyOTP(ctx, "otp@example.com", "000000", "reset")
	require.NoError(t, err)
	assert.False(t, ok)

	// Kind is part of the key, a reset code must not satisfy a login check.
	ok, err = s.VerifyOTP(ctx, "otp@example.com", "123456", "login")
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.DeleteOTP(ctx, "otp@example.com", "reset")
	require.NoError(t, err)

	ok, err = s.VerifyOTP(ctx, "otp@example.com", "123456", "reset")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOTPExpiry(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	err := s.StoreOTP(ctx, "stale@example.com", "123456", "login", time.Now().Add(-time.Second))
	require.NoError(t, err)

	ok, err := s.VerifyOTP(ctx, "stale@example.com", "123456", "login")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListOrdering(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	user := newTestUser(t, s, "order@example.com", "")

	first, err := s.CreateJob(ctx, model.InsertJob{UserID: user.ID, URL: "https://a.com", Title: "A", Company: "A"})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.CreateJob(ctx, model.InsertJob{UserID: user.ID, URL: "https://b.com", Title: "B", Company: "B"})
	require.NoError(t, err)

	jobs, err := s.ListJobs(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, first.ID, jobs[1].ID)
}

func TestCachedStorageUserReads(t *testing.T) {
	backend := NewMemoryStorage()
	cached, err := NewCachedStorage(backend, 16, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	user, err := cached.CreateUser(ctx, model.InsertUser{
		Username: "cache", Email: "cache@example.com", Password: "hash",
	})
	require.NoError(t, err)

	// Warm the cache, then mutate through the backend directly. The stale
	// read proves the cache served it; password updates must invalidate.
	got, err := cached.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", got.Password)

	_, err = backend.UpdatePassword(ctx, user.ID, "direct")
	require.NoError(t, err)

	got, err = cached.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", got.Password)

	updated, err := cached.UpdatePassword(ctx, user.ID, "fresh")
	require.NoError(t, err)
	assert.True(t, updated)

	got, err = cached.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Password)
}
