// Package api contains the HTTP handlers for the dossier service.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Sen667/JDE-sub004/internal/repository"
	"github.com/Sen667/JDE-sub004/internal/services"
	"github.com/Sen667/JDE-sub004/pkg/models"
)

// WorkflowService is the step state machine surface the handlers need.
type WorkflowService interface {
	CompleteStep(ctx context.Context, actorID, dossierID, stepID string, decision *bool, notes string, formData map[string]any) (*string, error)
	GetNextStep(ctx context.Context, dossierID, stepID string, decision *bool) (*string, []string, error)
	GetAvailableSteps(ctx context.Context, dossierID string) ([]models.ProgressWithStep, error)
}

// TransferService is the transfer orchestration surface the handlers need.
type TransferService interface {
	InitiateTransfer(ctx context.Context, actorID, dossierID, targetCode string) (*models.Transfer, error)
	CheckEligibility(ctx context.Context, dossierID, targetCode string) (bool, string, []string, error)
	GetTransferHistory(ctx context.Context, dossierID string) ([]*models.Transfer, error)
}

// RollbackService is the rollback manager surface the handlers need.
type RollbackService interface {
	RollbackStep(ctx context.Context, actorID, dossierID, stepID, reason string) (*models.WorkflowProgress, error)
	CheckEligibility(ctx context.Context, dossierID, stepID string) (bool, string, error)
	GetRollbackHistory(ctx context.Context, dossierID, stepID string) ([]*models.RollbackEntry, error)
}

// Handler holds the dependencies for the REST API.
type Handler struct {
	Workflow WorkflowService
	Transfer TransferService
	Rollback RollbackService
	Repo     repository.Repository
}

// NewHandler creates a new Handler.
func NewHandler(workflow WorkflowService, transfer TransferService, rollback RollbackService, repo repository.Repository) *Handler {
	return &Handler{Workflow: workflow, Transfer: transfer, Rollback: rollback, Repo: repo}
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status, including database reachability.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "dossier-service",
		Version:   "1.0.0",
	}
	if err := h.Repo.Ping(c.Request().Context()); err != nil {
		status.Status = "degraded"
	}
	return c.JSON(http.StatusOK, status)
}

// errorEnvelope is the uniform error body for every failed request.
type errorEnvelope struct {
	Error string `json:"error"`
}

// HTTPErrorHandler converts any error escaping a handler into the uniform
// {"error": string} envelope. Internal stack detail stays server-side.
func HTTPErrorHandler(logger services.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := "internal server error"

		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &httpErr):
			status = httpErr.Code
			if m, ok := httpErr.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(status)
			}
		case errors.Is(err, services.ErrMissingActor):
			status = http.StatusUnauthorized
			msg = err.Error()
		case errors.Is(err, repository.ErrNotFound),
			errors.Is(err, services.ErrTransferNotEligible),
			errors.Is(err, services.ErrRollbackNotAllowed):
			status = http.StatusBadRequest
			msg = err.Error()
		default:
			logger.Error("unhandled request error",
				"method", c.Request().Method, "path", c.Path(), "error", err)
		}

		if writeErr := c.JSON(status, errorEnvelope{Error: msg}); writeErr != nil {
			logger.Error("failed to write error response", "error", writeErr)
		}
	}
}

// actorID returns the authenticated user id the auth middleware stored in
// the request context, or "" when absent.
func actorID(c echo.Context) string {
	id, _ := c.Request().Context().Value("user_id").(string)
	return id
}
