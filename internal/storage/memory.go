package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/model"
	"github.com/google/uuid"
)

// MemoryStorage is an in-process implementation used for tests and as the
// fallback when no durable backend is configured. Data is lost on restart.
type MemoryStorage struct {
	mu    sync.RWMutex
	users map[string]*model.User
	jobs  map[string]*model.Job
	tasks map[string]*model.Task
	notes map[string]*model.Note
	otps  map[string]model.OTPCode // keyed by identifier+":"+kind
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users: make(map[string]*model.User),
		jobs:  make(map[string]*model.Job),
		tasks: make(map[string]*model.Task),
		notes: make(map[string]*model.Note),
		otps:  make(map[string]model.OTPCode),
	}
}

// Start is a no-op for the memory backend.
func (s *MemoryStorage) Start(ctx context.Context) error { return nil }

// Shutdown is a no-op for the memory backend.
func (s *MemoryStorage) Shutdown(ctx context.Context) error { return nil }

func (s *MemoryStorage) CreateUser(ctx context.Context, in model.InsertUser) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == in.Email {
			return nil, domain.ErrEmailExists
		}
		if in.Phone != "" && u.Phone == in.Phone {
			return nil, domain.ErrPhoneExists
		}
	}

	user := &model.User{
		ID:        uuid.NewString(),
		Username:  in.Username,
		Email:     in.Email,
		Phone:     in.Phone,
		Password:  in.Password,
		CreatedAt: time.Now(),
	}
	s.users[user.ID] = user

	clone := *user
	return &clone, nil
}

func (s *MemoryStorage) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool { return u.Username == username })
}

func (s *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool { return u.Email == email })
}

func (s *MemoryStorage) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	return s.findUser(func(u *model.User) bool { return u.Phone == phone })
}

func (s *MemoryStorage) findUser(match func(*model.User) bool) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStorage) UpdatePassword(ctx context.Context, userID string, passwordHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	user.Password = passwordHash
	return true, nil
}

func (s *MemoryStorage) UpdatePasswordByEmail(ctx context.Context, email string, passwordHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			u.Password = passwordHash
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStorage) DeleteUser(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)

	// Cascade: a deleted account takes its records with it.
	for jid, j := range s.jobs {
		if j.UserID == id {
			delete(s.jobs, jid)
		}
	}
	for tid, t := range s.tasks {
		if t.UserID == id {
			delete(s.tasks, tid)
		}
	}
	for nid, n := range s.notes {
		if n.UserID == id {
			delete(s.notes, nid)
		}
	}
	return true, nil
}

func (s *MemoryStorage) StoreOTP(ctx context.Context, identifier, code, kind string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.otps[identifier+":"+kind] = model.OTPCode{
		Identifier: identifier,
		Code:       code,
		Kind:       kind,
		ExpiresAt:  expiresAt,
	}
	return nil
}

func (s *MemoryStorage) VerifyOTP(ctx context.Context, identifier, code, kind string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	otp, ok := s.otps[identifier+":"+kind]
	if !ok || otp.Code != code {
		return false, nil
	}
	if time.Now().After(otp.ExpiresAt) {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStorage) DeleteOTP(ctx context.Context, identifier, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.otps, identifier+":"+kind)
	return nil
}

func (s *MemoryStorage) ListJobs(ctx context.Context, userID string) ([]*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*model.Job, 0)
	for _, j := range s.jobs {
		if j.UserID == userID {
			clone := *j
			jobs = append(jobs, &clone)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	return jobs, nil
}

func (s *MemoryStorage) CreateJob(ctx context.Context, in model.InsertJob) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	job := &model.Job{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		URL:          in.URL,
		Title:        in.Title,
		Company:      in.Company,
		Location:     in.Location,
		Type:         in.Type,
		Description:  in.Description,
		PostedDate:   in.PostedDate,
		AnalyzedDate: in.AnalyzedDate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.jobs[job.ID] = job

	clone := *job
	return &clone, nil
}

func (s *MemoryStorage) UpdateJob(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	patch.Apply(job)

	clone := *job
	return &clone, nil
}

func (s *MemoryStorage) DeleteJob(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false, nil
	}
	delete(s.jobs, id)
	return true, nil
}

func (s *MemoryStorage) ListTasks(ctx context.Context, userID string) ([]*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*model.Task, 0)
	for _, t := range s.tasks {
		if t.UserID == userID {
			clone := *t
			tasks = append(tasks, &clone)
		}
	}
	sort.Slice(tasks, func(i, k int) bool { return tasks[i].CreatedAt.After(tasks[k].CreatedAt) })
	return tasks, nil
}

func (s *MemoryStorage) CreateTask(ctx context.Context, in model.InsertTask) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	task := &model.Task{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     in.Title,
		Company:   in.Company,
		URL:       in.URL,
		Type:      in.Type,
		Completed: in.Completed,
		AddedDate: in.AddedDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[task.ID] = task

	clone := *task
	return &clone, nil
}

func (s *MemoryStorage) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	patch.Apply(task)

	clone := *task
	return &clone, nil
}

func (s *MemoryStorage) DeleteTask(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}
	delete(s.tasks, id)
	return true, nil
}

func (s *MemoryStorage) ListNotes(ctx context.Context, userID string) ([]*model.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := make([]*model.Note, 0)
	for _, n := range s.notes {
		if n.UserID == userID {
			clone := *n
			notes = append(notes, &clone)
		}
	}
	sort.Slice(notes, func(i, k int) bool { return notes[i].CreatedAt.After(notes[k].CreatedAt) })
	return notes, nil
}

func (s *MemoryStorage) CreateNote(ctx context.Context, in model.InsertNote) (*model.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	note := &model.Note{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     in.Title,
		Content:   in.Content,
		Color:     in.Color,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if note.Color == "" {
		note.Color = "#ffffff"
	}
	s.notes[note.ID] = note

	clone := *note
	return &clone, nil
}

func (s *MemoryStorage) UpdateNote(ctx context.Context, id string, patch model.NotePatch) (*model.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	patch.Apply(note)

	clone := *note
	return &clone, nil
}

func (s *MemoryStorage) DeleteNote(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return false, nil
	}
	delete(s.notes, id)
	return true, nil
}
