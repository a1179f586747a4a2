package models

import (
	"time"
)

// WorkflowTemplate is a versioned workflow definition bound to exactly one
// world. Only one version is active per world at a time.
type WorkflowTemplate struct {
	ID        string    `json:"id"`
	WorldID   string    `json:"world_id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionType tags an auto-action attached to a workflow step. The set is
// closed; unknown tags are kept as-is and skipped at dispatch time.
type ActionType string

const (
	ActionGenerateDocument   ActionType = "generate_document"
	ActionSendEmail          ActionType = "send_email"
	ActionCreateNotification ActionType = "create_notification"
	ActionCreateTask         ActionType = "create_task"
)

// AutoAction is a typed side-effect descriptor fired when its owning step
// completes. Config is action-specific and opaque to the step machine.
type AutoAction struct {
	Type   ActionType     `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// WorkflowStep is a node in a template's step graph. StepNumber defines the
// default linear order; NextStepID the non-decision successor; the decision
// pair the branch successors when RequiresDecision is set; ParallelSteps the
// siblings activated alongside the primary successor.
type WorkflowStep struct {
	ID                    string         `json:"id"`
	TemplateID            string         `json:"template_id"`
	Name                  string         `json:"name"`
	StepNumber            int            `json:"step_number"`
	RequiresDecision      bool           `json:"requires_decision"`
	NextStepID            *string        `json:"next_step_id,omitempty"`
	DecisionYesNextStepID *string        `json:"decision_yes_next_step_id,omitempty"`
	DecisionNoNextStepID  *string        `json:"decision_no_next_step_id,omitempty"`
	ParallelSteps         []string       `json:"parallel_steps,omitempty"`
	AutoActions           []AutoAction   `json:"auto_actions,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}

// AutoComplete reports whether the step's metadata marks it for automatic
// completion during a transfer fast-forward.
func (s *WorkflowStep) AutoComplete() bool {
	if s.Metadata == nil {
		return false
	}
	v, ok := s.Metadata["auto_complete"].(bool)
	return ok && v
}

// ProgressStatus represents the status of one step instance for one dossier.
type ProgressStatus string

const (
	ProgressPending    ProgressStatus = "pending"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// WorkflowProgress is the live status of one (dossier, step) instance. Rows
// are created lazily the first time a step becomes reachable. Status only
// advances forward under normal operation; only the rollback manager moves
// it backward.
type WorkflowProgress struct {
	ID          string         `json:"id"`
	DossierID   string         `json:"dossier_id"`
	StepID      string         `json:"step_id"`
	Status      ProgressStatus `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CompletedBy *string        `json:"completed_by,omitempty"`
	Decision    *bool          `json:"decision,omitempty"`
	Notes       *string        `json:"notes,omitempty"`
	FormData    map[string]any `json:"form_data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ProgressWithStep pairs a progress row with its step definition, as
// returned by the available-steps query.
type ProgressWithStep struct {
	Progress WorkflowProgress `json:"progress"`
	Step     WorkflowStep     `json:"step"`
}

// WorkflowHistory is one append-only entry per completion event. Entries
// are never mutated or deleted.
type WorkflowHistory struct {
	ID         string         `json:"id"`
	DossierID  string         `json:"dossier_id"`
	StepID     string         `json:"step_id"`
	NextStepID *string        `json:"next_step_id,omitempty"`
	Decision   *bool          `json:"decision,omitempty"`
	ActorID    *string        `json:"actor_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RollbackEntry records one rollback of a step instance. Rollbacks keep
// their own ledger, separate from the forward history.
type RollbackEntry struct {
	ID         string         `json:"id"`
	DossierID  string         `json:"dossier_id"`
	StepID     string         `json:"step_id"`
	FromStatus ProgressStatus `json:"from_status"`
	ToStatus   ProgressStatus `json:"to_status"`
	Reason     string         `json:"reason"`
	ActorID    string         `json:"actor_id"`
	CreatedAt  time.Time      `json:"created_at"`
}
