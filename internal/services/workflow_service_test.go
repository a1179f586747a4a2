package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sen667/JDE-sub004/pkg/models"
)

type workflowFixture struct {
	repo    *fakeRepo
	bridge  *fakeBridge
	docs    *fakeDocs
	emailer *fakeEmailer
	svc     *WorkflowService

	world   *models.World
	actor   *models.User
	dossier *models.Dossier
	tpl     *models.WorkflowTemplate
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	ctx := context.Background()

	f := &workflowFixture{
		repo:    newFakeRepo(),
		bridge:  &fakeBridge{},
		docs:    &fakeDocs{},
		emailer: &fakeEmailer{},
	}
	f.svc = NewWorkflowService(f.repo, f.bridge, f.docs, f.emailer, nopLogger{}, time.Second)

	f.world = &models.World{Code: models.WorldJDE, Name: "JDE"}
	require.NoError(t, f.repo.CreateWorld(ctx, f.world))

	f.actor = &models.User{Email: "actor@example.org", FullName: "Acting User"}
	require.NoError(t, f.repo.CreateUser(ctx, f.actor))

	f.dossier = &models.Dossier{WorldID: f.world.ID, Title: "Case 42", Status: models.DossierStatusActive}
	require.NoError(t, f.repo.CreateDossier(ctx, f.dossier))

	f.tpl = &models.WorkflowTemplate{WorldID: f.world.ID, Name: "Case Handling", Version: 1, IsActive: true}
	require.NoError(t, f.repo.CreateTemplate(ctx, f.tpl))

	return f
}

func (f *workflowFixture) addStep(t *testing.T, step *models.WorkflowStep) *models.WorkflowStep {
	t.Helper()
	step.TemplateID = f.tpl.ID
	require.NoError(t, f.repo.CreateStep(context.Background(), step))
	return step
}

func boolPtr(b bool) *bool { return &b }

func TestResolveNextStep(t *testing.T) {
	f := newWorkflowFixture(t)

	next := "next-id"
	yes := "yes-id"
	no := "no-id"

	tests := []struct {
		name     string
		step     *models.WorkflowStep
		decision *bool
		want     *string
	}{
		{
			name:     "decision step with yes",
			step:     &models.WorkflowStep{RequiresDecision: true, NextStepID: &next, DecisionYesNextStepID: &yes, DecisionNoNextStepID: &no},
			decision: boolPtr(true),
			want:     &yes,
		},
		{
			name:     "decision step with no",
			step:     &models.WorkflowStep{RequiresDecision: true, NextStepID: &next, DecisionYesNextStepID: &yes, DecisionNoNextStepID: &no},
			decision: boolPtr(false),
			want:     &no,
		},
		{
			name:     "decision step without decision falls back to static successor",
			step:     &models.WorkflowStep{RequiresDecision: true, NextStepID: &next, DecisionYesNextStepID: &yes, DecisionNoNextStepID: &no},
			decision: nil,
			want:     &next,
		},
		{
			name:     "non-decision step ignores a supplied decision",
			step:     &models.WorkflowStep{RequiresDecision: false, NextStepID: &next, DecisionYesNextStepID: &yes},
			decision: boolPtr(true),
			want:     &next,
		},
		{
			name:     "terminal step",
			step:     &models.WorkflowStep{},
			decision: boolPtr(true),
			want:     nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := f.svc.ResolveNextStep(tc.step, tc.decision)
			if tc.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tc.want, *got)
			}
		})
	}
}

func TestCompleteStepRequiresActor(t *testing.T) {
	f := newWorkflowFixture(t)
	_, err := f.svc.CompleteStep(context.Background(), "", f.dossier.ID, "some-step", nil, "", nil)
	assert.ErrorIs(t, err, ErrMissingActor)
}

func TestCompleteStepHappyPath(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	second := f.addStep(t, &models.WorkflowStep{Name: "Review", StepNumber: 2})
	parallel := f.addStep(t, &models.WorkflowStep{Name: "Notify Owner", StepNumber: 3})
	first := f.addStep(t, &models.WorkflowStep{
		Name:          "Intake",
		StepNumber:    1,
		NextStepID:    &second.ID,
		ParallelSteps: []string{parallel.ID},
	})

	next, err := f.svc.CompleteStep(ctx, f.actor.ID, f.dossier.ID, first.ID, nil, "looks fine", map[string]any{"field": "value"})
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, *next)

	// Completed progress row created lazily.
	p, err := f.repo.GetProgress(ctx, f.dossier.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressCompleted, p.Status)
	require.NotNil(t, p.CompletedBy)
	assert.Equal(t, f.actor.ID, *p.CompletedBy)
	assert.NotNil(t, p.CompletedAt)
	require.NotNil(t, p.Notes)
	assert.Equal(t, "looks fine", *p.Notes)
	assert.Equal(t, "value", p.FormData["field"])

	// Successor and parallel step both activated.
	for _, id := range []string{second.ID, parallel.ID} {
		p, err := f.repo.GetProgress(ctx, f.dossier.ID, id)
		require.NoError(t, err)
		assert.Equal(t, models.ProgressInProgress, p.Status)
		assert.NotNil(t, p.StartedAt)
	}

	// Exactly one history entry with the routing outcome.
	history, err := f.repo.ListHistory(ctx, f.dossier.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].StepID)
	require.NotNil(t, history[0].NextStepID)
	assert.Equal(t, second.ID, *history[0].NextStepID)
	assert.Equal(t, "looks fine", history[0].Metadata["notes"])

	// Bridge notified with the completion payload.
	require.Len(t, f.bridge.payloads, 1)
	assert.Equal(t, f.dossier.ID, f.bridge.payloads[0].DossierID)
	assert.Equal(t, first.ID, f.bridge.payloads[0].WorkflowStepID)
	assert.Equal(t, "looks fine", f.bridge.payloads[0].Notes)
}

func TestCompleteStepDecisionRouting(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	approval := f.addStep(t, &models.WorkflowStep{Name: "Approval", StepNumber: 3})
	rework := f.addStep(t, &models.WorkflowStep{Name: "Rework", StepNumber: 4})
	review := f.addStep(t, &models.WorkflowStep{
		Name:                  "Review",
		StepNumber:            2,
		RequiresDecision:      true,
		NextStepID:            &approval.ID,
		DecisionYesNextStepID: &approval.ID,
		DecisionNoNextStepID:  &rework.ID,
	})

	next, err := f.svc.CompleteStep(ctx, f.actor.ID, f.dossier.ID, review.ID, boolPtr(false), "", nil)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, rework.ID, *next)

	p, err := f.repo.GetProgress(ctx, f.dossier.ID, rework.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressInProgress, p.Status)

	// The yes branch was not activated.
	_, err = f.repo.GetProgress(ctx, f.dossier.ID, approval.ID)
	assert.Error(t, err)

	// The recorded decision survives on the progress row.
	p, err = f.repo.GetProgress(ctx, f.dossier.ID, review.ID)
	require.NoError(t, err)
	require.NotNil(t, p.Decision)
	assert.False(t, *p.Decision)
}

func TestCompleteStepTerminal(t *testing.T) {
	f := newWorkflowFixture(t)
	last := f.addStep(t, &models.WorkflowStep{Name: "Closing", StepNumber: 5})

	next, err := f.svc.CompleteStep(context.Background(), f.actor.ID, f.dossier.ID, last.ID, nil, "", nil)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestCompleteStepBridgeFailureIsSwallowed(t *testing.T) {
	f := newWorkflowFixture(t)
	f.bridge.err = errBoom

	step := f.addStep(t, &models.WorkflowStep{Name: "Intake", StepNumber: 1})

	_, err := f.svc.CompleteStep(context.Background(), f.actor.ID, f.dossier.ID, step.ID, nil, "", nil)
	require.NoError(t, err)

	p, err := f.repo.GetProgress(context.Background(), f.dossier.ID, step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressCompleted, p.Status)
	assert.Len(t, f.bridge.payloads, 1)
}

func TestActivateStepLeavesCompletedAlone(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	done := f.addStep(t, &models.WorkflowStep{Name: "Already Done", StepNumber: 2})
	first := f.addStep(t, &models.WorkflowStep{Name: "Intake", StepNumber: 1, NextStepID: &done.ID})

	now := time.Now()
	require.NoError(t, f.repo.UpsertProgress(ctx, &models.WorkflowProgress{
		DossierID:   f.dossier.ID,
		StepID:      done.ID,
		Status:      models.ProgressCompleted,
		CompletedAt: &now,
	}))

	_, err := f.svc.CompleteStep(ctx, f.actor.ID, f.dossier.ID, first.ID, nil, "", nil)
	require.NoError(t, err)

	p, err := f.repo.GetProgress(ctx, f.dossier.ID, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressCompleted, p.Status)
}

func TestAutoActionsDispatchAndIsolation(t *testing.T) {
	f := newWorkflowFixture(t)
	f.docs.err = errBoom // first action fails, the rest must still run

	step := f.addStep(t, &models.WorkflowStep{
		Name:       "Approval",
		StepNumber: 3,
		AutoActions: []models.AutoAction{
			{Type: models.ActionGenerateDocument, Config: map[string]any{"template": "approval-letter"}},
			{Type: models.ActionSendEmail, Config: map[string]any{"template": "approval-confirmation"}},
			{Type: "launch_rocket", Config: map[string]any{}},
			{Type: models.ActionCreateNotification, Config: map[string]any{"title": "Approved"}},
		},
	})

	_, err := f.svc.CompleteStep(context.Background(), f.actor.ID, f.dossier.ID, step.ID, nil, "", nil)
	require.NoError(t, err)

	assert.Len(t, f.docs.calls, 1)
	assert.Len(t, f.emailer.calls, 1)
	require.Len(t, f.repo.notifications, 1)
	assert.Equal(t, "Approved", f.repo.notifications[0].Title)
}

func TestCreateNotificationTargetFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit user id wins", func(t *testing.T) {
		f := newWorkflowFixture(t)
		target := &models.User{Email: "target@example.org", FullName: "Target"}
		require.NoError(t, f.repo.CreateUser(ctx, target))

		step := f.addStep(t, &models.WorkflowStep{Name: "Step", StepNumber: 1, AutoActions: []models.AutoAction{
			{Type: models.ActionCreateNotification, Config: map[string]any{"user_id": target.ID}},
		}})

		_, err := f.svc.CompleteStep(ctx, f.actor.ID, f.dossier.ID, step.ID, nil, "", nil)
		require.NoError(t, err)
		require.Len(t, f.repo.notifications, 1)
		assert.Equal(t, target.ID, f.repo.notifications[0].UserID)
	})

	t.Run("falls back to dossier owner", func(t *testing.T) {
		f := newWorkflowFixture(t)
		owner := &models.User{Email: "owner@example.org", FullName: "Owner"}
		require.NoError(t, f.repo.CreateUser(ctx, owner))
		f.dossier.OwnerID = &owner.ID

		step := f.addStep(t, &models.WorkflowStep{Name: "Step", StepNumber: 1, AutoActions: []models.AutoAction{
			{Type: models.ActionCreateNotification, Config: map[string]any{}},
		}})

		_, err := f.svc.CompleteStep(ctx, f.actor.ID, f.dossier.ID, step.ID, nil, "", nil)
		require.NoError(t, err)
		require.Len(t, f.repo.notifications, 1)
		assert.Equal(t, owner.ID, f.repo.notifications[0].UserID)
	})

	t.Run("falls back to acting user", func(t *testing.T) {
		f := newWorkflowFixture(t)
		step := f.addStep(t, &models.WorkflowStep{Name: "Step", StepNumber: 1, AutoActions: []models.AutoAction{
			{Type: models.ActionCreateNotification, Config: map[string]any{}},
		}})

		_, err := f.svc.CompleteStep(ctx, f.actor.ID, f.dossier.ID, step.ID, nil, "", nil)
		require.NoError(t, err)
		require.Len(t, f.repo.notifications, 1)
		assert.Equal(t, f.actor.ID, f.repo.notifications[0].UserID)
	})
}

func TestCreateTaskAction(t *testing.T) {
	ctx := context.Background()

	t.Run("fuzzy match creates task and notifies assignee", func(t *testing.T) {
		f := newWorkflowFixture(t)
		assignee := &models.User{Email: "alice@example.org", FullName: "Alice Dupont"}
		require.NoError(t, f.repo.CreateUser(ctx, assignee))

		step := f.addStep(t, &models.WorkflowStep{Name: "Rework", StepNumber: 4, AutoActions: []models.AutoAction{
			{Type: models.ActionCreateTask, Config: map[string]any{"title": "Rework dossier", "assignee": "alice"}},
		}})

		_, err := f.svc.CompleteStep(ctx, f.actor.ID, f.dossier.ID, step.ID, nil, "", nil)
		require.NoError(t, err)

		require.Len(t, f.repo.tasks, 1)
		task := f.repo.tasks[0]
		assert.Equal(t, assignee.ID, task.AssigneeID)
		assert.Equal(t, "Rework dossier", task.Title)
		assert.Equal(t, f.world.ID, task.WorldID)
		assert.Equal(t, models.TaskStatusOpen, task.Status)

		require.Len(t, f.repo.notifications, 1)
		assert.Equal(t, assignee.ID, f.repo.notifications[0].UserID)
	})

	t.Run("unmatched assignee is skipped without error", func(t *testing.T) {
		f := newWorkflowFixture(t)
		step := f.addStep(t, &models.WorkflowStep{Name: "Rework", StepNumber: 4, AutoActions: []models.AutoAction{
			{Type: models.ActionCreateTask, Config: map[string]any{"assignee": "nobody-by-that-name"}},
		}})

		_, err := f.svc.CompleteStep(ctx, f.actor.ID, f.dossier.ID, step.ID, nil, "", nil)
		require.NoError(t, err)
		assert.Empty(t, f.repo.tasks)
		assert.Empty(t, f.repo.notifications)
	})
}

func TestGetAvailableSteps(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	second := f.addStep(t, &models.WorkflowStep{Name: "Review", StepNumber: 2})
	first := f.addStep(t, &models.WorkflowStep{Name: "Intake", StepNumber: 1, NextStepID: &second.ID})

	_, err := f.svc.CompleteStep(ctx, f.actor.ID, f.dossier.ID, first.ID, nil, "", nil)
	require.NoError(t, err)

	available, err := f.svc.GetAvailableSteps(ctx, f.dossier.ID)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, second.ID, available[0].Step.ID)
	assert.Equal(t, models.ProgressInProgress, available[0].Progress.Status)
	assert.Equal(t, "Review", available[0].Step.Name)
}

func TestGetNextStepDoesNotMutate(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	yes := f.addStep(t, &models.WorkflowStep{Name: "Approval", StepNumber: 3})
	no := f.addStep(t, &models.WorkflowStep{Name: "Rework", StepNumber: 4})
	review := f.addStep(t, &models.WorkflowStep{
		Name:                  "Review",
		StepNumber:            2,
		RequiresDecision:      true,
		DecisionYesNextStepID: &yes.ID,
		DecisionNoNextStepID:  &no.ID,
		ParallelSteps:         []string{yes.ID},
	})

	next, parallel, err := f.svc.GetNextStep(ctx, f.dossier.ID, review.ID, boolPtr(false))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, no.ID, *next)
	assert.Equal(t, []string{yes.ID}, parallel)

	// Pure query: no progress rows, no history, no bridge call.
	all, err := f.repo.ListProgress(ctx, f.dossier.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.bridge.payloads)
}
