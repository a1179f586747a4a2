package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sen667/JDE-sub004/internal/repository"
	"github.com/Sen667/JDE-sub004/pkg/models"
)

// ErrMissingActor is returned when a mutating operation is attempted
// without a resolved acting user.
var ErrMissingActor = errors.New("acting user is required")

const meterName = "github.com/Sen667/JDE-sub004/internal/services"

// WorkflowService drives the per-dossier step state machine: completing
// steps, routing to successors, activating parallel steps, appending the
// history ledger, dispatching auto-actions and notifying the consistency
// bridge.
type WorkflowService struct {
	repo          repository.Repository
	bridge        ConsistencyBridge
	docs          DocumentGenerator
	emailer       EmailSender
	logger        Logger
	bridgeTimeout time.Duration

	stepsCompleted metric.Int64Counter
	actionsFired   metric.Int64Counter
	bridgeOutcome  metric.Int64Counter
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(repo repository.Repository, bridge ConsistencyBridge, docs DocumentGenerator, emailer EmailSender, logger Logger, bridgeTimeout time.Duration) *WorkflowService {
	if bridgeTimeout <= 0 {
		bridgeTimeout = 5 * time.Second
	}
	meter := otel.Meter(meterName)
	stepsCompleted, _ := meter.Int64Counter("workflow.steps.completed")
	actionsFired, _ := meter.Int64Counter("workflow.actions.dispatched")
	bridgeOutcome, _ := meter.Int64Counter("workflow.bridge.notifications")

	return &WorkflowService{
		repo:           repo,
		bridge:         bridge,
		docs:           docs,
		emailer:        emailer,
		logger:         logger,
		bridgeTimeout:  bridgeTimeout,
		stepsCompleted: stepsCompleted,
		actionsFired:   actionsFired,
		bridgeOutcome:  bridgeOutcome,
	}
}

// ResolveNextStep computes the successor of a step for an optional decision.
// Pure and stateless. When the step requires a decision and one is supplied
// the matching branch wins; when the step requires a decision but none is
// supplied, routing deliberately falls back to the static successor (the
// observed production behavior — changing it would alter routing for
// existing templates). Steps without a decision requirement always route to
// the static successor, ignoring any supplied decision.
func (s *WorkflowService) ResolveNextStep(step *models.WorkflowStep, decision *bool) *string {
	if step.RequiresDecision && decision != nil {
		if *decision {
			return step.DecisionYesNextStepID
		}
		return step.DecisionNoNextStepID
	}
	return step.NextStepID
}

// CompleteStep marks a (dossier, step) instance completed, activates the
// resolved successor and all parallel steps, appends a history entry, fires
// the step's auto-actions and notifies the consistency bridge. It returns
// the resolved next step id, nil when the workflow terminates.
//
// The bridge call is best-effort: its failure is logged and swallowed, the
// local completion already stands.
func (s *WorkflowService) CompleteStep(ctx context.Context, actorID, dossierID, stepID string, decision *bool, notes string, formData map[string]any) (*string, error) {
	if actorID == "" {
		return nil, ErrMissingActor
	}

	step, err := s.repo.GetStep(ctx, stepID)
	if err != nil {
		return nil, fmt.Errorf("workflow step %s: %w", stepID, err)
	}
	dossier, err := s.repo.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("dossier %s: %w", dossierID, err)
	}

	if step.RequiresDecision && decision == nil {
		s.logger.Warn("step requires a decision but none was supplied, using static successor",
			"dossier_id", dossierID, "step_id", stepID)
	}

	now := time.Now()
	progress, err := s.repo.GetProgress(ctx, dossierID, stepID)
	if errors.Is(err, repository.ErrNotFound) {
		progress = &models.WorkflowProgress{
			DossierID: dossierID,
			StepID:    stepID,
			StartedAt: &now,
		}
	} else if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	progress.Status = models.ProgressCompleted
	progress.CompletedAt = &now
	progress.CompletedBy = &actorID
	progress.Decision = decision
	if notes != "" {
		progress.Notes = &notes
	}
	if formData != nil {
		progress.FormData = formData
	}

	nextStepID := s.ResolveNextStep(step, decision)

	if err := s.repo.UpsertProgress(ctx, progress); err != nil {
		return nil, fmt.Errorf("complete step: %w", err)
	}

	if nextStepID != nil {
		if err := s.activateStep(ctx, dossierID, *nextStepID); err != nil {
			return nil, fmt.Errorf("activate next step %s: %w", *nextStepID, err)
		}
	}
	// Parallel steps are activated independently of the primary successor.
	for _, parallelID := range step.ParallelSteps {
		if err := s.activateStep(ctx, dossierID, parallelID); err != nil {
			return nil, fmt.Errorf("activate parallel step %s: %w", parallelID, err)
		}
	}

	history := &models.WorkflowHistory{
		DossierID:  dossierID,
		StepID:     stepID,
		NextStepID: nextStepID,
		Decision:   decision,
		ActorID:    &actorID,
	}
	if notes != "" {
		history.Metadata = map[string]any{"notes": notes}
	}
	if err := s.repo.AppendHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	s.dispatchActions(ctx, actorID, dossier, step)
	s.notifyBridge(ctx, StepCompletionPayload{
		DossierID:      dossierID,
		WorkflowStepID: stepID,
		Decision:       decision,
		Notes:          notes,
		FormData:       formData,
	})

	s.stepsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("world_id", dossier.WorldID)))
	return nextStepID, nil
}

// activateStep sets the (dossier, step) progress row to in_progress,
// creating it when absent. Already-completed rows are left alone: status
// only moves backward through the rollback manager.
func (s *WorkflowService) activateStep(ctx context.Context, dossierID, stepID string) error {
	now := time.Now()
	progress, err := s.repo.GetProgress(ctx, dossierID, stepID)
	if errors.Is(err, repository.ErrNotFound) {
		progress = &models.WorkflowProgress{
			DossierID: dossierID,
			StepID:    stepID,
			StartedAt: &now,
		}
	} else if err != nil {
		return err
	}

	if progress.Status == models.ProgressCompleted {
		s.logger.Debug("skipping activation of already completed step",
			"dossier_id", dossierID, "step_id", stepID)
		return nil
	}

	progress.Status = models.ProgressInProgress
	if progress.StartedAt == nil {
		progress.StartedAt = &now
	}
	return s.repo.UpsertProgress(ctx, progress)
}

// GetNextStep resolves the successor and parallel steps of a step without
// mutating anything.
func (s *WorkflowService) GetNextStep(ctx context.Context, dossierID, stepID string, decision *bool) (*string, []string, error) {
	if _, err := s.repo.GetDossier(ctx, dossierID); err != nil {
		return nil, nil, fmt.Errorf("dossier %s: %w", dossierID, err)
	}
	step, err := s.repo.GetStep(ctx, stepID)
	if err != nil {
		return nil, nil, fmt.Errorf("workflow step %s: %w", stepID, err)
	}
	return s.ResolveNextStep(step, decision), step.ParallelSteps, nil
}

// GetAvailableSteps returns every in_progress step instance of a dossier
// together with its step definition.
func (s *WorkflowService) GetAvailableSteps(ctx context.Context, dossierID string) ([]models.ProgressWithStep, error) {
	if _, err := s.repo.GetDossier(ctx, dossierID); err != nil {
		return nil, fmt.Errorf("dossier %s: %w", dossierID, err)
	}

	status := models.ProgressInProgress
	progress, err := s.repo.ListProgress(ctx, dossierID, &status)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	out := make([]models.ProgressWithStep, 0, len(progress))
	for _, p := range progress {
		step, err := s.repo.GetStep(ctx, p.StepID)
		if err != nil {
			return nil, fmt.Errorf("workflow step %s: %w", p.StepID, err)
		}
		out = append(out, models.ProgressWithStep{Progress: *p, Step: *step})
	}
	return out, nil
}

// dispatchActions fires every auto-action configured on a completed step.
// Each action is isolated: one failure is logged and the remaining actions
// still run. Unknown action types are logged and skipped.
func (s *WorkflowService) dispatchActions(ctx context.Context, actorID string, dossier *models.Dossier, step *models.WorkflowStep) {
	for _, action := range step.AutoActions {
		err := s.dispatchAction(ctx, actorID, dossier, step, action)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			s.logger.Error("auto-action failed",
				"dossier_id", dossier.ID, "step_id", step.ID, "action", string(action.Type), "error", err)
		}
		s.actionsFired.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", string(action.Type)),
			attribute.String("outcome", outcome)))
	}
}

func (s *WorkflowService) dispatchAction(ctx context.Context, actorID string, dossier *models.Dossier, step *models.WorkflowStep, action models.AutoAction) error {
	switch action.Type {
	case models.ActionGenerateDocument:
		return s.docs.Generate(ctx, dossier.ID, action.Config)

	case models.ActionSendEmail:
		return s.emailer.Send(ctx, dossier.ID, action.Config)

	case models.ActionCreateNotification:
		return s.createNotification(ctx, actorID, dossier, step, action.Config)

	case models.ActionCreateTask:
		return s.createTask(ctx, dossier, step, action.Config)

	default:
		s.logger.Warn("skipping unknown auto-action type",
			"dossier_id", dossier.ID, "step_id", step.ID, "action", string(action.Type))
		return nil
	}
}

// createNotification addresses the notification to the configured user id,
// falling back to the dossier owner, then to the acting user.
func (s *WorkflowService) createNotification(ctx context.Context, actorID string, dossier *models.Dossier, step *models.WorkflowStep, config map[string]any) error {
	targetID, _ := config["user_id"].(string)
	if targetID == "" && dossier.OwnerID != nil {
		targetID = *dossier.OwnerID
	}
	if targetID == "" {
		targetID = actorID
	}

	title, _ := config["title"].(string)
	if title == "" {
		title = fmt.Sprintf("Step %q completed", step.Name)
	}
	body, _ := config["message"].(string)
	if body == "" {
		body = fmt.Sprintf("Workflow step %q was completed on dossier %q.", step.Name, dossier.Title)
	}

	return s.repo.CreateNotification(ctx, &models.Notification{
		UserID:    targetID,
		Title:     title,
		Body:      body,
		DossierID: &dossier.ID,
	})
}

// createTask resolves an assignee by fuzzy name match and, when found,
// creates a task scoped to the dossier's world plus a notification to the
// assignee. An unresolvable assignee is not an error: the action logs and
// yields.
func (s *WorkflowService) createTask(ctx context.Context, dossier *models.Dossier, step *models.WorkflowStep, config map[string]any) error {
	assigneeName, _ := config["assignee"].(string)
	if assigneeName == "" {
		return errors.New("create_task action is missing an assignee")
	}

	matches, err := s.repo.SearchUsersByName(ctx, assigneeName)
	if err != nil {
		return fmt.Errorf("search assignee %q: %w", assigneeName, err)
	}
	if len(matches) == 0 {
		s.logger.Warn("create_task assignee not matched, skipping",
			"dossier_id", dossier.ID, "assignee", assigneeName)
		return nil
	}
	assignee := matches[0]

	title, _ := config["title"].(string)
	if title == "" {
		title = fmt.Sprintf("Follow up on step %q", step.Name)
	}
	description, _ := config["description"].(string)

	task := &models.Task{
		WorldID:     dossier.WorldID,
		DossierID:   &dossier.ID,
		AssigneeID:  assignee.ID,
		Title:       title,
		Description: description,
		Status:      models.TaskStatusOpen,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	return s.repo.CreateNotification(ctx, &models.Notification{
		UserID:    assignee.ID,
		Title:     "New task assigned",
		Body:      fmt.Sprintf("You were assigned %q on dossier %q.", title, dossier.Title),
		DossierID: &dossier.ID,
	})
}

// notifyBridge performs the best-effort synchronous bridge call with its
// own timeout. Local state is already committed when this runs; a bridge
// failure can only be logged.
func (s *WorkflowService) notifyBridge(ctx context.Context, payload StepCompletionPayload) {
	ctx, cancel := context.WithTimeout(ctx, s.bridgeTimeout)
	defer cancel()

	outcome := "ok"
	if err := s.bridge.NotifyStepCompletion(ctx, payload); err != nil {
		outcome = "error"
		s.logger.Error("consistency bridge notification failed",
			"dossier_id", payload.DossierID, "step_id", payload.WorkflowStepID, "error", err)
	}
	s.bridgeOutcome.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
