package model

import "time"

// User is a registered account. Password holds the hash, never the
// cleartext. The field carries a JSON tag because storage backends
// marshal the whole record; handlers must never serialize a User
// outward directly.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt"`
}

// Job is a tracked job posting. URL is unique per user once normalized
// (lower-cased, trailing slash stripped).
type Job struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Company      string    `json:"company"`
	Location     string    `json:"location"`
	Type         string    `json:"type"`
	Description  string    `json:"description"`
	PostedDate   string    `json:"postedDate"`
	AnalyzedDate string    `json:"analyzedDate"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Task is an actionable item, optionally derived from a job posting URL.
type Task struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Company   string    `json:"company"`
	URL       string    `json:"url,omitempty"`
	Type      string    `json:"type"`
	Completed bool      `json:"completed"`
	AddedDate string    `json:"addedDate"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Note is a freeform user note.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InsertUser carries the fields accepted at registration.
type InsertUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// InsertJob carries the fields accepted when creating a job.
type InsertJob struct {
	UserID       string `json:"userId"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Company      string `json:"company"`
	Location     string `json:"location"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	PostedDate   string `json:"postedDate"`
	AnalyzedDate string `json:"analyzedDate"`
}

// InsertTask carries the fields accepted when creating a task.
type InsertTask struct {
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	Company   string `json:"company"`
	URL       string `json:"url,omitempty"`
	Type      string `json:"type"`
	Completed bool   `json:"completed"`
	AddedDate string `json:"addedDate"`
}

// InsertNote carries the fields accepted when creating a note.
type InsertNote struct {
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Color   string `json:"color"`
}

// JobPatch, TaskPatch and NotePatch are partial updates. Nil fields are
// left unchanged.
type JobPatch struct {
	URL          *string `json:"url,omitempty"`
	Title        *string `json:"title,omitempty"`
	Company      *string `json:"company,omitempty"`
	Location     *string `json:"location,omitempty"`
	Type         *string `json:"type,omitempty"`
	Description  *string `json:"description,omitempty"`
	PostedDate   *string `json:"postedDate,omitempty"`
	AnalyzedDate *string `json:"analyzedDate,omitempty"`
}

type TaskPatch struct {
	Title     *string `json:"title,omitempty"`
	Company   *string `json:"company,omitempty"`
	URL       *string `json:"url,omitempty"`
	Type      *string `json:"type,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	AddedDate *string `json:"addedDate,omitempty"`
}

type NotePatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
	Color   *string `json:"color,omitempty"`
}

// OTPCode is a one-time code bound to an email or phone identifier.
type OTPCode struct {
	Identifier string
	Code       string
	Kind       string // "email" or "phone"
	ExpiresAt  time.Time
}
