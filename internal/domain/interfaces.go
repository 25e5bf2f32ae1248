// Package domain defines the interfaces and sentinel errors shared across
// components, so storage backends and the API layer do not import each
// other directly.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/dailytrack/dailytrack/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrEmailExists is returned when registering a duplicate email.
	ErrEmailExists = errors.New("email already exists")

	// ErrPhoneExists is returned when registering a duplicate phone.
	ErrPhoneExists = errors.New("phone number already exists")
)

// Storage is the persistence collaborator. Updates apply partial patches
// and return the updated record or ErrNotFound; deletes report whether a
// record was removed.
type Storage interface {
	// Start begins storage operation (connections, background jobs)
	Start(ctx context.Context) error

	// Shutdown stops the storage engine
	Shutdown(ctx context.Context) error

	// Users
	CreateUser(ctx context.Context, in model.InsertUser) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*model.User, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash string) (bool, error)
	UpdatePasswordByEmail(ctx context.Context, email string, passwordHash string) (bool, error)
	DeleteUser(ctx context.Context, id string) (bool, error)

	// One-time codes for the OTP login and reset flows
	StoreOTP(ctx context.Context, identifier, code, kind string, expiresAt time.Time) error
	VerifyOTP(ctx context.Context, identifier, code, kind string) (bool, error)
	DeleteOTP(ctx context.Context, identifier, kind string) error

	// Jobs
	ListJobs(ctx context.Context, userID string) ([]*model.Job, error)
	CreateJob(ctx context.Context, in model.InsertJob) (*model.Job, error)
	UpdateJob(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error)
	DeleteJob(ctx context.Context, id string) (bool, error)

	// Tasks
	ListTasks(ctx context.Context, userID string) ([]*model.Task, error)
	CreateTask(ctx context.Context, in model.InsertTask) (*model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) (bool, error)

	// Notes
	ListNotes(ctx context.Context, userID string) ([]*model.Note, error)
	CreateNote(ctx context.Context, in model.InsertNote) (*model.Note, error)
	UpdateNote(ctx context.Context, id string, patch model.NotePatch) (*model.Note, error)
	DeleteNote(ctx context.Context, id string) (bool, error)
}

// Broadcaster fans a domain event out to every open realtime connection.
// Implementations are best-effort: failures are logged, never returned.
type Broadcaster interface {
	Broadcast(topic string, payload any)
}
