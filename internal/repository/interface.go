package repository

import (
	"context"
	"errors"

	"github.com/Sen667/JDE-sub004/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository is the persistence interface for the dossier service. A single
// Postgres implementation backs it; tests use an in-memory fake.
type Repository interface {
	Ping(ctx context.Context) error

	// Worlds and users.
	CreateWorld(ctx context.Context, world *models.World) error
	GetWorldByID(ctx context.Context, id string) (*models.World, error)
	GetWorldByCode(ctx context.Context, code string) (*models.World, error)
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// SearchUsersByName performs a case-insensitive substring match on the
	// full name, ordered by name. Used by the create_task auto-action.
	SearchUsersByName(ctx context.Context, query string) ([]*models.User, error)

	// Dossiers and dependent records.
	CreateDossier(ctx context.Context, dossier *models.Dossier) error
	GetDossier(ctx context.Context, id string) (*models.Dossier, error)
	CreateClientInfo(ctx context.Context, info *models.ClientInfo) error
	GetClientInfoByDossier(ctx context.Context, dossierID string) (*models.ClientInfo, error)
	CreateAttachment(ctx context.Context, att *models.Attachment) error
	ListAttachments(ctx context.Context, dossierID string) ([]*models.Attachment, error)
	CreateAppointment(ctx context.Context, appt *models.Appointment) error
	ListAppointments(ctx context.Context, dossierID string) ([]*models.Appointment, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, dossierID string) ([]*models.Comment, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateTask(ctx context.Context, task *models.Task) error

	// Workflow definitions.
	CreateTemplate(ctx context.Context, tpl *models.WorkflowTemplate) error
	GetActiveTemplate(ctx context.Context, worldID string) (*models.WorkflowTemplate, error)
	CreateStep(ctx context.Context, step *models.WorkflowStep) error
	GetStep(ctx context.Context, id string) (*models.WorkflowStep, error)
	// ListTemplateSteps returns a template's steps ordered by step number.
	ListTemplateSteps(ctx context.Context, templateID string) ([]*models.WorkflowStep, error)

	// Workflow progress, history and rollback ledgers.
	GetProgress(ctx context.Context, dossierID, stepID string) (*models.WorkflowProgress, error)
	UpsertProgress(ctx context.Context, progress *models.WorkflowProgress) error
	ListProgress(ctx context.Context, dossierID string, status *models.ProgressStatus) ([]*models.WorkflowProgress, error)
	AppendHistory(ctx context.Context, entry *models.WorkflowHistory) error
	ListHistory(ctx context.Context, dossierID string) ([]*models.WorkflowHistory, error)
	AppendRollback(ctx context.Context, entry *models.RollbackEntry) error
	ListRollbacks(ctx context.Context, dossierID, stepID string) ([]*models.RollbackEntry, error)

	// Transfers. Rows are only ever created and advanced, never deleted.
	CreateTransfer(ctx context.Context, transfer *models.Transfer) error
	UpdateTransfer(ctx context.Context, transfer *models.Transfer) error
	// ListTransfers returns transfers where the dossier is source or target.
	ListTransfers(ctx context.Context, dossierID string) ([]*models.Transfer, error)
}
