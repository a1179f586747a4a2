package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// CompleteStepRequest is the body of POST /workflow/steps/complete.
type CompleteStepRequest struct {
	DossierID string         `json:"dossierId"`
	StepID    string         `json:"stepId"`
	Decision  *bool          `json:"decision,omitempty"`
	Notes     string         `json:"notes,omitempty"`
	FormData  map[string]any `json:"formData,omitempty"`
}

// CompleteStepResponse reports the resolved successor; NextStepID is null
// when the workflow terminates.
type CompleteStepResponse struct {
	NextStepID *string `json:"nextStepId"`
	Success    bool    `json:"success"`
}

// CompleteStep marks a workflow step completed for a dossier.
// (POST /api/v1/workflow/steps/complete)
func (h *Handler) CompleteStep(c echo.Context) error {
	ctx := c.Request().Context()

	var req CompleteStepRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.DossierID == "" || req.StepID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "dossierId and stepId are required")
	}

	nextStepID, err := h.Workflow.CompleteStep(ctx, actorID(c), req.DossierID, req.StepID, req.Decision, req.Notes, req.FormData)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, CompleteStepResponse{NextStepID: nextStepID, Success: true})
}

// NextStepResponse is the body of the read-only next-step query.
type NextStepResponse struct {
	NextStepID    *string  `json:"nextStepId"`
	ParallelSteps []string `json:"parallelSteps"`
}

// GetNextStep resolves the successor of a step without mutating anything.
// (GET /api/v1/dossiers/:id/next-step?current_step_id=...&decision=...)
func (h *Handler) GetNextStep(c echo.Context) error {
	ctx := c.Request().Context()

	dossierID := c.Param("id")
	stepID := c.QueryParam("current_step_id")
	if stepID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "current_step_id is required")
	}

	var decision *bool
	if raw := c.QueryParam("decision"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "decision must be a boolean")
		}
		decision = &v
	}

	nextStepID, parallel, err := h.Workflow.GetNextStep(ctx, dossierID, stepID, decision)
	if err != nil {
		return err
	}
	if parallel == nil {
		parallel = []string{}
	}

	return c.JSON(http.StatusOK, NextStepResponse{NextStepID: nextStepID, ParallelSteps: parallel})
}

// GetAvailableSteps returns every in_progress step instance of a dossier.
// (GET /api/v1/dossiers/:id/available-steps)
func (h *Handler) GetAvailableSteps(c echo.Context) error {
	ctx := c.Request().Context()

	steps, err := h.Workflow.GetAvailableSteps(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"steps": steps})
}

// RollbackStepRequest is the body of POST /workflow/steps/rollback.
type RollbackStepRequest struct {
	DossierID string `json:"dossierId"`
	StepID    string `json:"stepId"`
	Reason    string `json:"reason,omitempty"`
}

// RollbackStep reverts a completed step instance.
// (POST /api/v1/workflow/steps/rollback)
func (h *Handler) RollbackStep(c echo.Context) error {
	ctx := c.Request().Context()

	var req RollbackStepRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.DossierID == "" || req.StepID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "dossierId and stepId are required")
	}

	progress, err := h.Rollback.RollbackStep(ctx, actorID(c), req.DossierID, req.StepID, req.Reason)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "progress": progress})
}

// GetRollbackHistory returns the rollback ledger for a step instance.
// (GET /api/v1/dossiers/:id/steps/:stepID/rollbacks)
func (h *Handler) GetRollbackHistory(c echo.Context) error {
	ctx := c.Request().Context()

	entries, err := h.Rollback.GetRollbackHistory(ctx, c.Param("id"), c.Param("stepID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"rollbacks": entries})
}

// RollbackEligibilityResponse is the rollback eligibility verdict.
type RollbackEligibilityResponse struct {
	CanRollback bool   `json:"can_rollback"`
	Reason      string `json:"reason,omitempty"`
}

// CheckRollbackEligibility reports whether a step instance may be rolled
// back. (GET /api/v1/dossiers/:id/steps/:stepID/rollback-eligibility)
func (h *Handler) CheckRollbackEligibility(c echo.Context) error {
	ctx := c.Request().Context()

	eligible, reason, err := h.Rollback.CheckEligibility(ctx, c.Param("id"), c.Param("stepID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, RollbackEligibilityResponse{CanRollback: eligible, Reason: reason})
}
