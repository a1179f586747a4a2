package services

import (
	"context"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StepCompletionPayload is the body sent to the consistency bridge when a
// workflow step completes.
type StepCompletionPayload struct {
	DossierID      string         `json:"dossier_id"`
	WorkflowStepID string         `json:"workflow_step_id"`
	Decision       *bool          `json:"decision,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	FormData       map[string]any `json:"form_data,omitempty"`
}

// ConsistencyBridge informs a second, independently authoritative system of
// a step completion so it can keep its own projection current. Calls are
// best-effort: the caller logs failures and never rolls back the local
// completion.
type ConsistencyBridge interface {
	NotifyStepCompletion(ctx context.Context, payload StepCompletionPayload) error
}

// DocumentGenerator triggers an external document-generation collaborator.
// Only the trigger contract is part of this service.
type DocumentGenerator interface {
	Generate(ctx context.Context, dossierID string, config map[string]any) error
}

// EmailSender triggers an external email-sending collaborator.
type EmailSender interface {
	Send(ctx context.Context, dossierID string, config map[string]any) error
}
