package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sen667/JDE-sub004/internal/repository"
	"github.com/Sen667/JDE-sub004/pkg/models"
)

// ErrRollbackNotAllowed is returned when a step instance fails the rollback
// eligibility check.
var ErrRollbackNotAllowed = errors.New("step is not eligible for rollback")

// RollbackService undoes step completions. It is the only component allowed
// to move a progress row backward, and every rollback appends to its own
// ledger, separate from the forward history.
//
// Eligibility: the step instance must be completed and no step reachable
// from it in the template graph (linear, decision or parallel edges) may be
// completed. Rolling back under a completed downstream step would leave the
// dossier in a state the forward machine can never produce.
type RollbackService struct {
	repo   repository.Repository
	logger Logger
}

// NewRollbackService creates a new RollbackService.
func NewRollbackService(repo repository.Repository, logger Logger) *RollbackService {
	return &RollbackService{repo: repo, logger: logger}
}

// CheckEligibility reports whether a (dossier, step) instance may be rolled
// back, with a human-readable reason when it may not.
func (s *RollbackService) CheckEligibility(ctx context.Context, dossierID, stepID string) (bool, string, error) {
	step, err := s.repo.GetStep(ctx, stepID)
	if err != nil {
		return false, "", fmt.Errorf("workflow step %s: %w", stepID, err)
	}

	progress, err := s.repo.GetProgress(ctx, dossierID, stepID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, "step has no progress on this dossier", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("load progress: %w", err)
	}
	if progress.Status != models.ProgressCompleted {
		return false, fmt.Sprintf("step is %s, only completed steps can be rolled back", progress.Status), nil
	}

	steps, err := s.repo.ListTemplateSteps(ctx, step.TemplateID)
	if err != nil {
		return false, "", fmt.Errorf("load template steps: %w", err)
	}
	graph := newStepGraph(steps)
	if err := graph.validate(); err != nil {
		return false, "", err
	}

	for downstreamID := range graph.reachableFrom(stepID) {
		p, err := s.repo.GetProgress(ctx, dossierID, downstreamID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, "", fmt.Errorf("load downstream progress: %w", err)
		}
		if p.Status == models.ProgressCompleted {
			return false, fmt.Sprintf("downstream step %s is already completed", downstreamID), nil
		}
	}

	return true, "", nil
}

// RollbackStep reverts a completed step instance to in_progress, clearing
// its completion fields while keeping notes and form data, and appends a
// rollback ledger entry.
func (s *RollbackService) RollbackStep(ctx context.Context, actorID, dossierID, stepID, reason string) (*models.WorkflowProgress, error) {
	if actorID == "" {
		return nil, ErrMissingActor
	}

	eligible, why, err := s.CheckEligibility(ctx, dossierID, stepID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, fmt.Errorf("%w: %s", ErrRollbackNotAllowed, why)
	}

	progress, err := s.repo.GetProgress(ctx, dossierID, stepID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	fromStatus := progress.Status
	progress.Status = models.ProgressInProgress
	progress.CompletedAt = nil
	progress.CompletedBy = nil
	progress.Decision = nil

	if err := s.repo.UpsertProgress(ctx, progress); err != nil {
		return nil, fmt.Errorf("revert progress: %w", err)
	}

	entry := &models.RollbackEntry{
		DossierID:  dossierID,
		StepID:     stepID,
		FromStatus: fromStatus,
		ToStatus:   progress.Status,
		Reason:     reason,
		ActorID:    actorID,
	}
	if err := s.repo.AppendRollback(ctx, entry); err != nil {
		return nil, fmt.Errorf("append rollback ledger: %w", err)
	}

	s.logger.Info("step rolled back",
		"dossier_id", dossierID, "step_id", stepID, "actor_id", actorID)
	return progress, nil
}

// GetRollbackHistory returns the rollback ledger for a (dossier, step)
// instance, oldest first.
func (s *RollbackService) GetRollbackHistory(ctx context.Context, dossierID, stepID string) ([]*models.RollbackEntry, error) {
	return s.repo.ListRollbacks(ctx, dossierID, stepID)
}
