// Package badger implements durable storage on top of an embedded
// Badger key-value database. Records are stored as JSON under typed key
// prefixes, with small index keys for the unique user lookups.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/metrics"
	"github.com/dailytrack/dailytrack/internal/model"
)

// Ensure Storage implements domain.Storage
var _ domain.Storage = (*Storage)(nil)

const (
	// Prefix keys for different record types
	prefixUsers = "user:"
	prefixJobs  = "job:"
	prefixTasks = "task:"
	prefixNotes = "note:"
	prefixOTP   = "otp:"

	// Unique index prefixes mapping a value to a user ID
	prefixEmailIdx    = "idx:email:"
	prefixPhoneIdx    = "idx:phone:"
	prefixUsernameIdx = "idx:username:"
)

// Config contains badger storage configuration
type Config struct {
	// Base directory for data files
	DataDir string

	// GC settings for the value log
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns a default configuration for Badger-based storage
func DefaultConfig() Config {
	return Config{
		DataDir:        "./data",
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Storage persists users, jobs, tasks, notes and one-time codes in Badger.
type Storage struct {
	config Config
	db     *badger.DB
	done   chan struct{}
	logger zerolog.Logger
}

// NewStorage opens the Badger database under the configured data directory.
func NewStorage(config Config) (*Storage, error) {
	logger := log.With().Str("component", "storage-badger").Logger()

	if config.GCInterval <= 0 {
		config.GCInterval = DefaultConfig().GCInterval
	}
	if config.GCDiscardRatio <= 0 {
		config.GCDiscardRatio = DefaultConfig().GCDiscardRatio
	}

	dbPath := filepath.Join(config.DataDir, "badger")
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory: %w", err)
	}

	options := badger.DefaultOptions(dbPath)
	options = options.WithLoggingLevel(badger.WARNING) // Reduce logging noise

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger: %w", err)
	}

	return &Storage{
		config: config,
		db:     db,
		done:   make(chan struct{}),
		logger: logger,
	}, nil
}

// Start runs the value log GC loop until the context is cancelled.
func (s *Storage) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.db.RunValueLogGC(s.config.GCDiscardRatio); err != nil &&
				!errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn().Err(err).Msg("Value log GC failed")
			}
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		}
	}
}

// Shutdown stops the storage engine and closes the database.
func (s *Storage) Shutdown(ctx context.Context) error {
	close(s.done)
	if err := s.db.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing Badger database")
		return err
	}
	return nil
}

func prefixKey(prefix, key string) []byte {
	return []byte(prefix + key)
}

// getJSON reads and unmarshals a single record inside a view transaction.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to retrieve record: %w", err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return txn.Set(key, data)
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

// CreateUser stores a new user, enforcing unique email and phone.
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

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(prefixKey(prefixEmailIdx, in.Email)); err == nil {
			return domain.ErrEmailExists
		}
		if in.Phone != "" {
			if _, err := txn.Get(prefixKey(prefixPhoneIdx, in.Phone)); err == nil {
				return domain.ErrPhoneExists
			}
		}

		if err := setJSON(txn, prefixKey(prefixUsers, user.ID), user); err != nil {
			return err
		}
		if err := txn.Set(prefixKey(prefixEmailIdx, user.Email), []byte(user.ID)); err != nil {
			return err
		}
		if user.Phone != "" {
			if err := txn.Set(prefixKey(prefixPhoneIdx, user.Phone), []byte(user.ID)); err != nil {
				return err
			}
		}
		return txn.Set(prefixKey(prefixUsernameIdx, user.Username), []byte(user.ID))
	})
	observe("create_user", err)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *Storage) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	defer s.timer("get_user").ObserveDuration()

	var user model.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixKey(prefixUsers, id), &user)
	})
	observe("get_user", err)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Storage) getUserByIndex(prefix, value string) (*model.User, error) {
	var user model.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixKey(prefix, value))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, prefixKey(prefixUsers, id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUserByIndex(prefixUsernameIdx, username)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUserByIndex(prefixEmailIdx, email)
}

func (s *Storage) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	return s.getUserByIndex(prefixPhoneIdx, phone)
}

// UpdatePassword replaces the password hash of the given user.
func (s *Storage) UpdatePassword(ctx context.Context, userID string, passwordHash string) (bool, error) {
	defer s.timer("update_password").ObserveDuration()

	updated := false
	err := s.db.Update(func(txn *badger.Txn) error {
		var user model.User
		if err := getJSON(txn, prefixKey(prefixUsers, userID), &user); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		user.Password = passwordHash
		updated = true
		return setJSON(txn, prefixKey(prefixUsers, userID), &user)
	})
	observe("update_password", err)
	return updated, err
}

// UpdatePasswordByEmail replaces the password hash of the user with the
// given email, used by the reset flow.
func (s *Storage) UpdatePasswordByEmail(ctx context.Context, email string, passwordHash string) (bool, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.UpdatePassword(ctx, user.ID, passwordHash)
}

// DeleteUser removes a user, its index keys and all its records.
func (s *Storage) DeleteUser(ctx context.Context, id string) (bool, error) {
	defer s.timer("delete_user").ObserveDuration()

	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		var user model.User
		if err := getJSON(txn, prefixKey(prefixUsers, id), &user); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}

		if err := txn.Delete(prefixKey(prefixUsers, id)); err != nil {
			return err
		}
		if err := txn.Delete(prefixKey(prefixEmailIdx, user.Email)); err != nil {
			return err
		}
		if user.Phone != "" {
			if err := txn.Delete(prefixKey(prefixPhoneIdx, user.Phone)); err != nil {
				return err
			}
		}
		if err := txn.Delete(prefixKey(prefixUsernameIdx, user.Username)); err != nil {
			return err
		}

		// Cascade: a deleted account takes its records with it.
		for _, prefix := range []string{prefixJobs, prefixTasks, prefixNotes} {
			if err := deleteOwnedRecords(txn, prefix, id); err != nil {
				return err
			}
		}

		deleted = true
		return nil
	})
	observe("delete_user", err)
	return deleted, err
}

// ownedRecord is the subset of fields shared by jobs, tasks and notes
// that record iteration needs.
type ownedRecord struct {
	UserID string `json:"userId"`
}

func deleteOwnedRecords(txn *badger.Txn, prefix, userID string) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	keys := make([][]byte, 0)
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		var rec ownedRecord
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
		if err != nil {
			continue
		}
		if rec.UserID == userID {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
	}
	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// StoreOTP stores a one-time code, replacing any previous code for the
// same identifier and kind.
func (s *Storage) StoreOTP(ctx context.Context, identifier, code, kind string, expiresAt time.Time) error {
	defer s.timer("store_otp").ObserveDuration()

	otp := model.OTPCode{
		Identifier: identifier,
		Code:       code,
		Kind:       kind,
		ExpiresAt:  expiresAt,
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(otp)
		if err != nil {
			return err
		}
		entry := badger.NewEntry(prefixKey(prefixOTP, identifier+":"+kind), data).
			WithTTL(time.Until(expiresAt) + time.Minute)
		return txn.SetEntry(entry)
	})
	observe("store_otp", err)
	return err
}

// VerifyOTP reports whether the code matches and has not expired.
func (s *Storage) VerifyOTP(ctx context.Context, identifier, code, kind string) (bool, error) {
	var otp model.OTPCode
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixKey(prefixOTP, identifier+":"+kind), &otp)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if otp.Code != code || time.Now().After(otp.ExpiresAt) {
		return false, nil
	}
	return true, nil
}

// DeleteOTP removes a one-time code after successful use.
func (s *Storage) DeleteOTP(ctx context.Context, identifier, kind string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(prefixKey(prefixOTP, identifier+":"+kind))
	})
}

func (s *Storage) ListJobs(ctx context.Context, userID string) ([]*model.Job, error) {
	defer s.timer("list_jobs").ObserveDuration()

	jobs := make([]*model.Job, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanRecords(txn, prefixJobs, func(val []byte) error {
			var job model.Job
			if err := json.Unmarshal(val, &job); err != nil {
				return err
			}
			if job.UserID == userID {
				jobs = append(jobs, &job)
			}
			return nil
		})
	})
	observe("list_jobs", err)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.After(jobs[k].CreatedAt) })
	return jobs, nil
}

func scanRecords(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
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
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, prefixKey(prefixJobs, job.ID), job)
	})
	observe("create_job", err)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Storage) UpdateJob(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error) {
	defer s.timer("update_job").ObserveDuration()

	var job model.Job
	err := s.db.Update(func(txn *badger.Txn) error {
		key := prefixKey(prefixJobs, id)
		if err := getJSON(txn, key, &job); err != nil {
			return err
		}
		patch.Apply(&job)
		return setJSON(txn, key, &job)
	})
	observe("update_job", err)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Storage) DeleteJob(ctx context.Context, id string) (bool, error) {
	return s.deleteRecord("delete_job", prefixKey(prefixJobs, id))
}

func (s *Storage) deleteRecord(op string, key []byte) (bool, error) {
	defer s.timer(op).ObserveDuration()

	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		deleted = true
		return txn.Delete(key)
	})
	observe(op, err)
	return deleted, err
}

func (s *Storage) ListTasks(ctx context.Context, userID string) ([]*model.Task, error) {
	defer s.timer("list_tasks").ObserveDuration()

	tasks := make([]*model.Task, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanRecords(txn, prefixTasks, func(val []byte) error {
			var task model.Task
			if err := json.Unmarshal(val, &task); err != nil {
				return err
			}
			if task.UserID == userID {
				tasks = append(tasks, &task)
			}
			return nil
		})
	})
	observe("list_tasks", err)
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, k int) bool { return tasks[i].CreatedAt.After(tasks[k].CreatedAt) })
	return tasks, nil
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
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, prefixKey(prefixTasks, task.ID), task)
	})
	observe("create_task", err)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Storage) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	defer s.timer("update_task").ObserveDuration()

	var task model.Task
	err := s.db.Update(func(txn *badger.Txn) error {
		key := prefixKey(prefixTasks, id)
		if err := getJSON(txn, key, &task); err != nil {
			return err
		}
		patch.Apply(&task)
		return setJSON(txn, key, &task)
	})
	observe("update_task", err)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Storage) DeleteTask(ctx context.Context, id string) (bool, error) {
	return s.deleteRecord("delete_task", prefixKey(prefixTasks, id))
}

func (s *Storage) ListNotes(ctx context.Context, userID string) ([]*model.Note, error) {
	defer s.timer("list_notes").ObserveDuration()

	notes := make([]*model.Note, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanRecords(txn, prefixNotes, func(val []byte) error {
			var note model.Note
			if err := json.Unmarshal(val, &note); err != nil {
				return err
			}
			if note.UserID == userID {
				notes = append(notes, &note)
			}
			return nil
		})
	})
	observe("list_notes", err)
	if err != nil {
		return nil, err
	}
	sort.Slice(notes, func(i, k int) bool { return notes[i].CreatedAt.After(notes[k].CreatedAt) })
	return notes, nil
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
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, prefixKey(prefixNotes, note.ID), note)
	})
	observe("create_note", err)
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *Storage) UpdateNote(ctx context.Context, id string, patch model.NotePatch) (*model.Note, error) {
	defer s.timer("update_note").ObserveDuration()

	var note model.Note
	err := s.db.Update(func(txn *badger.Txn) error {
		key := prefixKey(prefixNotes, id)
		if err := getJSON(txn, key, &note); err != nil {
			return err
		}
		patch.Apply(&note)
		return setJSON(txn, key, &note)
	})
	observe("update_note", err)
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *Storage) DeleteNote(ctx context.Context, id string) (bool, error) {
	return s.deleteRecord("delete_note", prefixKey(prefixNotes, id))
}
