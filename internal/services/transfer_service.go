package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sen667/JDE-sub004/internal/repository"
	"github.com/Sen667/JDE-sub004/pkg/models"
)

// ErrTransferNotEligible is returned when the eligibility rules forbid the
// requested source/target pair. No transfer record exists in that case.
var ErrTransferNotEligible = errors.New("transfer not eligible")

// allowedTransfers is the fixed, directed, acyclic rule over world codes.
// The pipeline is strictly one-directional: no world ever receives a
// transfer backward.
var allowedTransfers = map[string][]string{
	models.WorldJDE:  {models.WorldJDMO, models.WorldDBCS},
	models.WorldJDMO: {models.WorldDBCS},
	models.WorldDBCS: {},
}

// AllowedTransferTargets returns the world codes a source world may
// transfer to.
func AllowedTransferTargets(sourceCode string) []string {
	targets := allowedTransfers[strings.ToUpper(sourceCode)]
	out := make([]string, len(targets))
	copy(out, targets)
	return out
}

// transferAllowed evaluates the eligibility rule for one pair of codes.
func transferAllowed(sourceCode, targetCode string) bool {
	for _, t := range allowedTransfers[strings.ToUpper(sourceCode)] {
		if t == strings.ToUpper(targetCode) {
			return true
		}
	}
	return false
}

// TransferService replicates a dossier and its dependent records into a
// target world. The transfer record is the single source of truth for the
// outcome: it is created in_progress before any replication and advanced to
// completed or failed afterwards. Replication is at-least-once with failure
// marking; there is no compensating deletion of partially created
// target-world records (documented gap, see DESIGN.md).
type TransferService struct {
	repo   repository.Repository
	logger Logger

	transfersFinished metric.Int64Counter
}

// NewTransferService creates a new TransferService.
func NewTransferService(repo repository.Repository, logger Logger) *TransferService {
	meter := otel.Meter(meterName)
	transfersFinished, _ := meter.Int64Counter("transfers.finished")
	return &TransferService{repo: repo, logger: logger, transfersFinished: transfersFinished}
}

// CheckEligibility evaluates the transfer rule for a dossier and target
// world code without mutating anything. It returns the verdict, a reason
// when the verdict is negative, and the full list of allowed targets for
// the dossier's world.
func (s *TransferService) CheckEligibility(ctx context.Context, dossierID, targetCode string) (bool, string, []string, error) {
	dossier, err := s.repo.GetDossier(ctx, dossierID)
	if err != nil {
		return false, "", nil, fmt.Errorf("dossier %s: %w", dossierID, err)
	}
	sourceWorld, err := s.repo.GetWorldByID(ctx, dossier.WorldID)
	if err != nil {
		return false, "", nil, fmt.Errorf("world %s: %w", dossier.WorldID, err)
	}

	allowed := AllowedTransferTargets(sourceWorld.Code)
	if !transferAllowed(sourceWorld.Code, targetCode) {
		reason := fmt.Sprintf("transfers from %s to %s are not allowed", sourceWorld.Code, strings.ToUpper(targetCode))
		return false, reason, allowed, nil
	}
	return true, "", allowed, nil
}

// replicationCounts accumulates how many dependent records were copied.
type replicationCounts struct {
	Attachments  int `json:"attachments"`
	Appointments int `json:"appointments"`
	Comments     int `json:"comments"`
}

// InitiateTransfer validates eligibility, creates a transfer record,
// replicates the dossier and its dependents into the target world,
// fast-forwards the new workflow instance when the target template asks for
// it, and finalizes the transfer record.
//
// Any failure after the transfer record exists marks it failed with the
// error message and re-raises; already-created target records stay in place.
func (s *TransferService) InitiateTransfer(ctx context.Context, actorID, dossierID, targetCode string) (*models.Transfer, error) {
	if actorID == "" {
		return nil, ErrMissingActor
	}

	dossier, err := s.repo.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("dossier %s: %w", dossierID, err)
	}
	sourceWorld, err := s.repo.GetWorldByID(ctx, dossier.WorldID)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", dossier.WorldID, err)
	}

	// Eligibility aborts before any record is created.
	if !transferAllowed(sourceWorld.Code, targetCode) {
		return nil, fmt.Errorf("%w: transfers from %s to %s are not allowed",
			ErrTransferNotEligible, sourceWorld.Code, strings.ToUpper(targetCode))
	}

	targetWorld, err := s.repo.GetWorldByCode(ctx, strings.ToUpper(targetCode))
	if err != nil {
		return nil, fmt.Errorf("target world %s: %w", targetCode, err)
	}

	transfer := &models.Transfer{
		DossierID:     dossier.ID,
		SourceWorldID: sourceWorld.ID,
		TargetWorldID: targetWorld.ID,
		TransferType:  models.TransferType(sourceWorld.Code, targetWorld.Code),
		Status:        models.TransferInProgress,
		InitiatedBy:   actorID,
	}
	if err := s.repo.CreateTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("create transfer record: %w", err)
	}

	// Single top-level catch: from here on, any failure marks the transfer
	// failed and re-raises. Partially replicated target records persist.
	if err := s.replicate(ctx, actorID, transfer, dossier, sourceWorld, targetWorld); err != nil {
		s.markFailed(ctx, transfer, err)
		s.transfersFinished.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", transfer.TransferType),
			attribute.String("status", string(models.TransferFailed))))
		return transfer, fmt.Errorf("transfer %s: %w", transfer.ID, err)
	}

	s.transfersFinished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", transfer.TransferType),
		attribute.String("status", string(models.TransferCompleted))))
	return transfer, nil
}

func (s *TransferService) markFailed(ctx context.Context, transfer *models.Transfer, cause error) {
	msg := cause.Error()
	transfer.Status = models.TransferFailed
	transfer.ErrorMessage = &msg
	if err := s.repo.UpdateTransfer(ctx, transfer); err != nil {
		s.logger.Error("failed to mark transfer as failed",
			"transfer_id", transfer.ID, "error", err)
	}
}

func (s *TransferService) replicate(ctx context.Context, actorID string, transfer *models.Transfer, source *models.Dossier, sourceWorld, targetWorld *models.World) error {
	newDossier := &models.Dossier{
		WorldID: targetWorld.ID,
		Title:   fmt.Sprintf("[Transferred from %s] %s", sourceWorld.Code, source.Title),
		Status:  models.DossierStatusOpen,
		OwnerID: source.OwnerID,
		Tags:    withProvenanceTag(source.Tags, sourceWorld.Code),
	}
	if err := s.repo.CreateDossier(ctx, newDossier); err != nil {
		return fmt.Errorf("create target dossier: %w", err)
	}

	if err := s.copyClientInfo(ctx, source.ID, newDossier.ID); err != nil {
		return err
	}

	if err := s.fastForwardWorkflow(ctx, actorID, transfer, newDossier, sourceWorld, targetWorld); err != nil {
		return err
	}

	if err := s.writeTransferComments(ctx, transfer, source, newDossier, sourceWorld, targetWorld); err != nil {
		return err
	}

	counts, owners, err := s.copyDependents(ctx, source.ID, newDossier.ID)
	if err != nil {
		return err
	}

	if err := s.notifyAppointmentOwners(ctx, actorID, owners, newDossier, targetWorld); err != nil {
		return err
	}

	targetID := newDossier.ID
	transfer.Status = models.TransferCompleted
	transfer.TargetDossierID = &targetID
	transfer.Metadata = map[string]any{
		"attachments":  counts.Attachments,
		"appointments": counts.Appointments,
		"comments":     counts.Comments,
	}
	if err := s.repo.UpdateTransfer(ctx, transfer); err != nil {
		return fmt.Errorf("finalize transfer record: %w", err)
	}

	s.logger.Info("transfer completed",
		"transfer_id", transfer.ID, "source_dossier_id", source.ID,
		"target_dossier_id", newDossier.ID, "type", transfer.TransferType)
	return nil
}

func withProvenanceTag(tags []string, sourceCode string) []string {
	provenance := "transferred-from-" + strings.ToLower(sourceCode)
	out := make([]string, 0, len(tags)+1)
	for _, t := range tags {
		if t == provenance {
			continue
		}
		out = append(out, t)
	}
	return append(out, provenance)
}

func (s *TransferService) copyClientInfo(ctx context.Context, sourceDossierID, targetDossierID string) error {
	info, err := s.repo.GetClientInfoByDossier(ctx, sourceDossierID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load client info: %w", err)
	}

	copied := *info
	copied.ID = ""
	copied.DossierID = targetDossierID
	if err := s.repo.CreateClientInfo(ctx, &copied); err != nil {
		return fmt.Errorf("copy client info: %w", err)
	}
	return nil
}

// fastForwardWorkflow initializes the new dossier's workflow instance from
// the target world's active template. When the first step is marked
// auto_complete, a completed progress row, a history entry and a reception
// comment are synthesized and the second step becomes in_progress;
// otherwise the first step is created pending. The trigger here is
// structural, not a user action, so this path deliberately bypasses
// CompleteStep (no actions fire, no bridge call, no decision routing —
// first steps carry no decision).
func (s *TransferService) fastForwardWorkflow(ctx context.Context, actorID string, transfer *models.Transfer, newDossier *models.Dossier, sourceWorld, targetWorld *models.World) error {
	tpl, err := s.repo.GetActiveTemplate(ctx, targetWorld.ID)
	if err != nil {
		return fmt.Errorf("active template for world %s: %w", targetWorld.Code, err)
	}
	steps, err := s.repo.ListTemplateSteps(ctx, tpl.ID)
	if err != nil {
		return fmt.Errorf("template steps: %w", err)
	}
	if err := ValidateStepGraph(steps); err != nil {
		return err
	}
	if len(steps) == 0 {
		s.logger.Warn("target template has no steps", "template_id", tpl.ID)
		return nil
	}

	first := steps[0]
	now := time.Now()

	if !first.AutoComplete() {
		return s.repo.UpsertProgress(ctx, &models.WorkflowProgress{
			DossierID: newDossier.ID,
			StepID:    first.ID,
			Status:    models.ProgressPending,
		})
	}

	note := fmt.Sprintf("Automatically completed on reception of transfer from %s", sourceWorld.Code)
	progress := &models.WorkflowProgress{
		DossierID:   newDossier.ID,
		StepID:      first.ID,
		Status:      models.ProgressCompleted,
		StartedAt:   &now,
		CompletedAt: &now,
		CompletedBy: &actorID,
		Notes:       &note,
	}
	if err := s.repo.UpsertProgress(ctx, progress); err != nil {
		return fmt.Errorf("auto-complete first step: %w", err)
	}

	history := &models.WorkflowHistory{
		DossierID: newDossier.ID,
		StepID:    first.ID,
		ActorID:   &actorID,
		Metadata: map[string]any{
			"transfer_id":    transfer.ID,
			"auto_completed": true,
		},
	}
	if len(steps) > 1 {
		nextID := steps[1].ID
		history.NextStepID = &nextID
	}
	if err := s.repo.AppendHistory(ctx, history); err != nil {
		return fmt.Errorf("append fast-forward history: %w", err)
	}

	if err := s.repo.CreateComment(ctx, &models.Comment{
		DossierID: newDossier.ID,
		Body:      fmt.Sprintf("Step %q automatically completed on reception of transfer from %s.", first.Name, sourceWorld.Code),
		IsSystem:  true,
	}); err != nil {
		return fmt.Errorf("write reception comment: %w", err)
	}

	if len(steps) > 1 {
		second := steps[1]
		if err := s.repo.UpsertProgress(ctx, &models.WorkflowProgress{
			DossierID: newDossier.ID,
			StepID:    second.ID,
			Status:    models.ProgressInProgress,
			StartedAt: &now,
		}); err != nil {
			return fmt.Errorf("activate second step: %w", err)
		}
	}
	return nil
}

// writeTransferComments records the transfer on both sides: an audit
// comment on the untouched source dossier and a provenance comment on the
// new one.
func (s *TransferService) writeTransferComments(ctx context.Context, transfer *models.Transfer, source, target *models.Dossier, sourceWorld, targetWorld *models.World) error {
	if err := s.repo.CreateComment(ctx, &models.Comment{
		DossierID: source.ID,
		Body:      fmt.Sprintf("Dossier transferred to %s (transfer %s).", targetWorld.Code, transfer.ID),
		IsSystem:  true,
	}); err != nil {
		return fmt.Errorf("write source transfer comment: %w", err)
	}
	if err := s.repo.CreateComment(ctx, &models.Comment{
		DossierID: target.ID,
		Body:      fmt.Sprintf("Created from dossier %s by transfer from %s (transfer %s).", source.ID, sourceWorld.Code, transfer.ID),
		IsSystem:  true,
	}); err != nil {
		return fmt.Errorf("write target provenance comment: %w", err)
	}
	return nil
}

// copyDependents replicates attachments (metadata only), appointments
// (ownership preserved) and non-system comments, sequentially, returning
// the counts and the distinct appointment owner ids.
func (s *TransferService) copyDependents(ctx context.Context, sourceDossierID, targetDossierID string) (replicationCounts, []string, error) {
	var counts replicationCounts

	attachments, err := s.repo.ListAttachments(ctx, sourceDossierID)
	if err != nil {
		return counts, nil, fmt.Errorf("list attachments: %w", err)
	}
	for _, att := range attachments {
		copied := *att
		copied.ID = ""
		copied.DossierID = targetDossierID
		if err := s.repo.CreateAttachment(ctx, &copied); err != nil {
			return counts, nil, fmt.Errorf("copy attachment %s: %w", att.ID, err)
		}
		counts.Attachments++
	}

	appointments, err := s.repo.ListAppointments(ctx, sourceDossierID)
	if err != nil {
		return counts, nil, fmt.Errorf("list appointments: %w", err)
	}
	ownerSet := map[string]bool{}
	var owners []string
	for _, appt := range appointments {
		copied := *appt
		copied.ID = ""
		copied.DossierID = targetDossierID
		if err := s.repo.CreateAppointment(ctx, &copied); err != nil {
			return counts, nil, fmt.Errorf("copy appointment %s: %w", appt.ID, err)
		}
		counts.Appointments++
		if appt.UserID != nil && !ownerSet[*appt.UserID] {
			ownerSet[*appt.UserID] = true
			owners = append(owners, *appt.UserID)
		}
	}

	comments, err := s.repo.ListComments(ctx, sourceDossierID)
	if err != nil {
		return counts, nil, fmt.Errorf("list comments: %w", err)
	}
	for _, c := range comments {
		if c.IsSystem {
			continue
		}
		copied := *c
		copied.ID = ""
		copied.DossierID = targetDossierID
		if err := s.repo.CreateComment(ctx, &copied); err != nil {
			return counts, nil, fmt.Errorf("copy comment %s: %w", c.ID, err)
		}
		counts.Comments++
	}

	return counts, owners, nil
}

// notifyAppointmentOwners emits one notification per distinct appointment
// owner other than the acting user.
func (s *TransferService) notifyAppointmentOwners(ctx context.Context, actorID string, owners []string, newDossier *models.Dossier, targetWorld *models.World) error {
	for _, ownerID := range owners {
		if ownerID == actorID {
			continue
		}
		if err := s.repo.CreateNotification(ctx, &models.Notification{
			UserID:    ownerID,
			Title:     "Appointments transferred",
			Body:      fmt.Sprintf("Your appointments were copied to dossier %q in %s.", newDossier.Title, targetWorld.Code),
			DossierID: &newDossier.ID,
		}); err != nil {
			return fmt.Errorf("notify appointment owner %s: %w", ownerID, err)
		}
	}
	return nil
}

// GetTransferHistory returns every transfer where the dossier is source or
// target, newest first.
func (s *TransferService) GetTransferHistory(ctx context.Context, dossierID string) ([]*models.Transfer, error) {
	if _, err := s.repo.GetDossier(ctx, dossierID); err != nil {
		return nil, fmt.Errorf("dossier %s: %w", dossierID, err)
	}
	return s.repo.ListTransfers(ctx, dossierID)
}
