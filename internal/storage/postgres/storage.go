// Package postgres implements storage on a Postgres database using a
// pgx connection pool. The schema is created on startup if missing.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/metrics"
	"github.com/dailytrack/dailytrack/internal/model"
)

// Ensure Storage implements domain.Storage
var _ domain.Storage = (*Storage)(nil)

// Config contains postgres storage configuration
type Config struct {
	DatabaseURL string
}

// Storage persists records in Postgres through a pgxpool.
type Storage struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	phone TEXT,
	password TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_phone_idx ON users (phone) WHERE phone <> '';

CREATE TABLE IF NOT EXISTS jobs (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	company TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	posted_date TEXT NOT NULL DEFAULT '',
	analyzed_date TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	added_date TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notes (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL DEFAULT '#ffffff',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS otp_codes (
	identifier TEXT NOT NULL,
	kind TEXT NOT NULL,
	code TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (identifier, kind)
);
`

// NewStorage connects to the database, verifies the connection and
// ensures the schema exists.
func NewStorage(ctx context.Context, config Config) (*Storage, error) {
	logger := log.With().Str("component", "storage-postgres").Logger()

	pool, err := pgxpool.New(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Storage{pool: pool, logger: logger}, nil
}

// Start runs the expired OTP cleanup loop until the context is cancelled.
func (s *Storage) Start(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.pool.Exec(ctx, `DELETE FROM otp_codes WHERE expires_at < now()`); err != nil {
				s.logger.Warn().Err(err).Msg("OTP cleanup failed")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Shutdown closes the connection pool.
func (s *Storage) Shutdown(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Storage) timer(op string) *prometheus.Timer {
	m := metrics.GetMetrics()
	return prometheus.NewTimer(m.StorageOperationDuration.WithLabelValues(op))
}

func observe(op string, err error) {
	m := metrics.GetMetrics()
	if err != nil {
		m.StorageOperations.WithLabelValues(op, "false").Inc()
	} else {
		m.StorageOperations.WithLabelValues(op, "true").Inc()
	}
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return false
}

func (s *Storage) CreateUser(ctx context.Context, in model.InsertUser) (*model.User, error) {
	defer s.timer("create_user").ObserveDuration()

	user := &model.User{
		ID:        uuid.NewString(),
		Username:  in.Username,
		Email:     in.Email,
		Phone:     in.Phone,
		Password:  in.Password,
		CreatedAt: time.Now(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, phone, password, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Username, user.Email, user.Phone, user.Password, user.CreatedAt)
	observe("create_user", err)
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return nil, domain.ErrEmailExists
		}
		if isUniqueViolation(err, "users_phone_idx") {
			return nil, domain.ErrPhoneExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *Storage) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var user model.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, phone, password, created_at
		FROM users WHERE `+where,
		arg,
	).Scan(&user.ID, &user.Username, &user.Email, &user.Phone, &user.Password, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, "id = $1", id)
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUser(ctx, "username = $1", username)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, "email = $1", email)
}

func (s *Storage) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	return s.getUser(ctx, "phone = $1", phone)
}

func (s *Storage) UpdatePassword(ctx context.Context, userID string, passwordHash string) (bool, error) {
	defer s.timer("update_password").ObserveDuration()

	command, err := s.pool.Exec(ctx, `UPDATE users SET password = $2 WHERE id = $1`, userID, passwordHash)
	observe("update_password", err)
	if err != nil {
		return false, fmt.Errorf("update password: %w", err)
	}
	return command.RowsAffected() > 0, nil
}

func (s *Storage) UpdatePasswordByEmail(ctx context.Context, email string, passwordHash string) (bool, error) {
	defer s.timer("update_password").ObserveDuration()

	command, err := s.pool.Exec(ctx, `UPDATE users SET password = $2 WHERE email = $1`, email, passwordHash)
	observe("update_password", err)
	if err != nil {
		return false, fmt.Errorf("update password: %w", err)
	}
	return command.RowsAffected() > 0, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id string) (bool, error) {
	defer s.timer("delete_user").ObserveDuration()

	// Jobs, tasks and notes cascade through the foreign keys.
	command, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	observe("delete_user", err)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return command.RowsAffected() > 0, nil
}

func (s *Storage) StoreOTP(ctx context.Context, identifier, code, kind string, expiresAt time.Time) error {
	defer s.timer("store_otp").ObserveDuration()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO otp_codes (identifier, kind, code, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier, kind) DO UPDATE SET code = $3, expires_at = $4
	`, identifier, kind, code, expiresAt)
	observe("store_otp", err)
	if err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

func (s *Storage) VerifyOTP(ctx context.Context, identifier, code, kind string) (bool, error) {
	var stored string
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT code, expires_at FROM otp_codes WHERE identifier = $1 AND kind = $2
	`, identifier, kind).Scan(&stored, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query otp: %w", err)
	}
	if stored != code || time.Now().After(expiresAt) {
		return false, nil
	}
	return true, nil
}

func (s *Storage) DeleteOTP(ctx context.Context, identifier, kind string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM otp_codes WHERE identifier = $1 AND kind = $2`, identifier, kind)
	if err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

func (s *Storage) ListJobs(ctx context.Context, userID string) ([]*model.Job, error) {
	defer s.timer("list_jobs").ObserveDuration()

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, url, title, company, location, type, description,
		       posted_date, analyzed_date, created_at, updated_at
		FROM jobs WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	observe("list_jobs", err)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*model.Job, 0)
	for rows.Next() {
		var job model.Job
		if err := rows.Scan(
			&job.ID, &job.UserID, &job.URL, &job.Title, &job.Company, &job.Location,
			&job.Type, &job.Description, &job.PostedDate, &job.AnalyzedDate,
			&job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func (s *Storage) CreateJob(ctx context.Context, in model.InsertJob) (*model.Job, error) {
	defer s.timer("create_job").ObserveDuration()

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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, user_id, url, title, company, location, type,
		                  description, posted_date, analyzed_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, job.ID, job.UserID, job.URL, job.Title, job.Company, job.Location, job.Type,
		job.Description, job.PostedDate, job.AnalyzedDate, job.CreatedAt, job.UpdatedAt)
	observe("create_job", err)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *Storage) UpdateJob(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error) {
	defer s.timer("update_job").ObserveDuration()

	var job model.Job
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, url, title, company, location, type, description,
		       posted_date, analyzed_date, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id).Scan(
		&job.ID, &job.UserID, &job.URL, &job.Title, &job.Company, &job.Location,
		&job.Type, &job.Description, &job.PostedDate, &job.AnalyzedDate,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}
	patch.Apply(&job)

	_, err = s.pool.Exec(ctx, `
		UPDATE jobs SET url = $2, title = $3, company = $4, location = $5, type = $6,
		       description = $7, posted_date = $8, analyzed_date = $9, updated_at = $10
		WHERE id = $1
	`, job.ID, job.URL, job.Title, job.Company, job.Location, job.Type,
		job.Description, job.PostedDate, job.AnalyzedDate, job.UpdatedAt)
	observe("update_job", err)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return &job, nil
}

func (s *Storage) DeleteJob(ctx context.Context, id string) (bool, error) {
	return s.deleteRecord(ctx, "delete_job", "jobs", id)
}

func (s *Storage) deleteRecord(ctx context.Context, op, table, id string) (bool, error) {
	defer s.timer(op).ObserveDuration()

	command, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	observe(op, err)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, err)
	}
	return command.RowsAffected() > 0, nil
}

func (s *Storage) ListTasks(ctx context.Context, userID string) ([]*model.Task, error) {
	defer s.timer("list_tasks").ObserveDuration()

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, company, url, type, completed, added_date, created_at, updated_at
		FROM tasks WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	observe("list_tasks", err)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*model.Task, 0)
	for rows.Next() {
		var task model.Task
		if err := rows.Scan(
			&task.ID, &task.UserID, &task.Title, &task.Company, &task.URL,
			&task.Type, &task.Completed, &task.AddedDate, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

func (s *Storage) CreateTask(ctx context.Context, in model.InsertTask) (*model.Task, error) {
	defer s.timer("create_task").ObserveDuration()

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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, user_id, title, company, url, type, completed, added_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, task.ID, task.UserID, task.Title, task.Company, task.URL, task.Type,
		task.Completed, task.AddedDate, task.CreatedAt, task.UpdatedAt)
	observe("create_task", err)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (s *Storage) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	defer s.timer("update_task").ObserveDuration()

	var task model.Task
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, company, url, type, completed, added_date, created_at, updated_at
		FROM tasks WHERE id = $1
	`, id).Scan(
		&task.ID, &task.UserID, &task.Title, &task.Company, &task.URL,
		&task.Type, &task.Completed, &task.AddedDate, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query task: %w", err)
	}
	patch.Apply(&task)

	_, err = s.pool.Exec(ctx, `
		UPDATE tasks SET title = $2, company = $3, url = $4, type = $5,
		       completed = $6, added_date = $7, updated_at = $8
		WHERE id = $1
	`, task.ID, task.Title, task.Company, task.URL, task.Type,
		task.Completed, task.AddedDate, task.UpdatedAt)
	observe("update_task", err)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return &task, nil
}

func (s *Storage) DeleteTask(ctx context.Context, id string) (bool, error) {
	return s.deleteRecord(ctx, "delete_task", "tasks", id)
}

func (s *Storage) ListNotes(ctx context.Context, userID string) ([]*model.Note, error) {
	defer s.timer("list_notes").ObserveDuration()

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, content, color, created_at, updated_at
		FROM notes WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	observe("list_notes", err)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*model.Note, 0)
	for rows.Next() {
		var note model.Note
		if err := rows.Scan(
			&note.ID, &note.UserID, &note.Title, &note.Content, &note.Color,
			&note.CreatedAt, &note.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, &note)
	}
	return notes, rows.Err()
}

func (s *Storage) CreateNote(ctx context.Context, in model.InsertNote) (*model.Note, error) {
	defer s.timer("create_note").ObserveDuration()

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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notes (id, user_id, title, content, color, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, note.ID, note.UserID, note.Title, note.Content, note.Color, note.CreatedAt, note.UpdatedAt)
	observe("create_note", err)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

func (s *Storage) UpdateNote(ctx context.Context, id string, patch model.NotePatch) (*model.Note, error) {
	defer s.timer("update_note").ObserveDuration()

	var note model.Note
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, title, content, color, created_at, updated_at
		FROM notes WHERE id = $1
	`, id).Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &note.Color,
		&note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query note: %w", err)
	}
	patch.Apply(&note)

	_, err = s.pool.Exec(ctx, `
		UPDATE notes SET title = $2, content = $3, color = $4, updated_at = $5
		WHERE id = $1
	`, note.ID, note.Title, note.Content, note.Color, note.UpdatedAt)
	observe("update_note", err)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	return &note, nil
}

func (s *Storage) DeleteNote(ctx context.Context, id string) (bool, error) {
	return s.deleteRecord(ctx, "delete_note", "notes", id)
}
