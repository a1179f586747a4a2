// Package models defines the domain models for the dossier service.
package models

import (
	"time"
)

// DossierStatus represents the lifecycle status of a dossier.
type DossierStatus string

const (
	DossierStatusOpen   DossierStatus = "open"
	DossierStatusActive DossierStatus = "active"
	DossierStatusClosed DossierStatus = "closed"
)

// Dossier is a long-lived case file progressing through its world's
// workflow. A transfer creates a new dossier in the target world; the
// source dossier is left untouched except for a system comment.
type Dossier struct {
	ID        string        `json:"id"`
	WorldID   string        `json:"world_id"`
	Title     string        `json:"title"`
	Status    DossierStatus `json:"status"`
	OwnerID   *string       `json:"owner_id,omitempty"`
	Tags      []string      `json:"tags,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ClientInfo is the 1:1 client record attached to a dossier. It is copied
// verbatim into the target world during a transfer.
type ClientInfo struct {
	ID        string     `json:"id"`
	DossierID string     `json:"dossier_id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     *string    `json:"email,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Address   *string    `json:"address,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Attachment holds file metadata only; byte storage is an external
// collaborator addressed through StorageKey.
type Attachment struct {
	ID          string    `json:"id"`
	DossierID   string    `json:"dossier_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	UploadedBy  *string   `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Appointment is a scheduled meeting on a dossier, optionally owned by a
// user. Ownership is preserved when appointments are replicated during a
// transfer, and owners are notified afterwards.
type Appointment struct {
	ID          string    `json:"id"`
	DossierID   string    `json:"dossier_id"`
	UserID      *string   `json:"user_id,omitempty"`
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Location    *string   `json:"location,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Comment is a note on a dossier. System comments (audit trail written by
// the engine itself) are excluded when comments are replicated.
type Comment struct {
	ID        string    `json:"id"`
	DossierID string    `json:"dossier_id"`
	AuthorID  *string   `json:"author_id,omitempty"`
	Body      string    `json:"body"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is an in-app message addressed to a single user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	DossierID *string   `json:"dossier_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskStatus represents the lifecycle status of a task.
type TaskStatus string

const (
	TaskStatusOpen TaskStatus = "open"
	TaskStatusDone TaskStatus = "done"
)

// Task is a unit of follow-up work created by the create_task auto-action,
// scoped to the dossier's world.
type Task struct {
	ID          string     `json:"id"`
	WorldID     string     `json:"world_id"`
	DossierID   *string    `json:"dossier_id,omitempty"`
	AssigneeID  string     `json:"assignee_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}
