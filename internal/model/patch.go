package model

import "time"

// Apply copies non-nil patch fields onto the job and bumps UpdatedAt.
func (p JobPatch) Apply(job *Job) {
	if p.URL != nil {
		job.URL = *p.URL
	}
	if p.Title != nil {
		job.Title = *p.Title
	}
	if p.Company != nil {
		job.Company = *p.Company
	}
	if p.Location != nil {
		job.Location = *p.Location
	}
	if p.Type != nil {
		job.Type = *p.Type
	}
	if p.Description != nil {
		job.Description = *p.Description
	}
	if p.PostedDate != nil {
		job.PostedDate = *p.PostedDate
	}
	if p.AnalyzedDate != nil {
		job.AnalyzedDate = *p.AnalyzedDate
	}
	job.UpdatedAt = time.Now()
}

// Apply copies non-nil patch fields onto the task and bumps UpdatedAt.
func (p TaskPatch) Apply(task *Task) {
	if p.Title != nil {
		task.Title = *p.Title
	}
	if p.Company != nil {
		task.Company = *p.Company
	}
	if p.URL != nil {
		task.URL = *p.URL
	}
	if p.Type != nil {
		task.Type = *p.Type
	}
	if p.Completed != nil {
		task.Completed = *p.Completed
	}
	if p.AddedDate != nil {
		task.AddedDate = *p.AddedDate
	}
	task.UpdatedAt = time.Now()
}

// Apply copies non-nil patch fields onto the note and bumps UpdatedAt.
func (p NotePatch) Apply(note *Note) {
	if p.Title != nil {
		note.Title = *p.Title
	}
	if p.Content != nil {
		note.Content = *p.Content
	}
	if p.Color != nil {
		note.Color = *p.Color
	}
	note.UpdatedAt = time.Now()
}
