package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Sen667/JDE-sub004/pkg/models"
)

// InitiateTransferRequest is the body of POST /dossiers/:id/transfer.
type InitiateTransferRequest struct {
	TargetWorldCode string `json:"targetWorldCode"`
}

// InitiateTransferResponse reports the transfer outcome.
type InitiateTransferResponse struct {
	Success      bool    `json:"success"`
	TransferID   string  `json:"transfer_id"`
	NewDossierID *string `json:"new_dossier_id,omitempty"`
	Message      string  `json:"message"`
}

// InitiateTransfer replicates a dossier into a target world.
// (POST /api/v1/dossiers/:id/transfer)
func (h *Handler) InitiateTransfer(c echo.Context) error {
	ctx := c.Request().Context()

	var req InitiateTransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.TargetWorldCode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "targetWorldCode is required")
	}

	transfer, err := h.Transfer.InitiateTransfer(ctx, actorID(c), c.Param("id"), req.TargetWorldCode)
	if err != nil {
		// A failed transfer past record creation still has a record; surface
		// its id alongside the error for follow-up.
		if transfer != nil && transfer.Status == models.TransferFailed {
			msg := ""
			if transfer.ErrorMessage != nil {
				msg = *transfer.ErrorMessage
			}
			return c.JSON(http.StatusInternalServerError, InitiateTransferResponse{
				Success:    false,
				TransferID: transfer.ID,
				Message:    msg,
			})
		}
		return err
	}

	return c.JSON(http.StatusOK, InitiateTransferResponse{
		Success:      true,
		TransferID:   transfer.ID,
		NewDossierID: transfer.TargetDossierID,
		Message:      "transfer completed",
	})
}

// GetTransferHistory returns every transfer touching a dossier, as source
// or target. (GET /api/v1/dossiers/:id/transfers)
func (h *Handler) GetTransferHistory(c echo.Context) error {
	ctx := c.Request().Context()

	transfers, err := h.Transfer.GetTransferHistory(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if transfers == nil {
		transfers = []*models.Transfer{}
	}

	return c.JSON(http.StatusOK, map[string]any{"transfers": transfers})
}

// TransferEligibilityResponse is the pure rule evaluation result.
type TransferEligibilityResponse struct {
	CanTransfer      bool     `json:"can_transfer"`
	Reason           string   `json:"reason,omitempty"`
	AllowedTransfers []string `json:"allowed_transfers"`
}

// CheckTransferEligibility evaluates the transfer rule without mutating
// anything. (GET /api/v1/dossiers/:id/transfer-eligibility?target_world_code=...)
func (h *Handler) CheckTransferEligibility(c echo.Context) error {
	ctx := c.Request().Context()

	targetCode := c.QueryParam("target_world_code")
	if targetCode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "target_world_code is required")
	}

	canTransfer, reason, allowed, err := h.Transfer.CheckEligibility(ctx, c.Param("id"), targetCode)
	if err != nil {
		return err
	}
	if allowed == nil {
		allowed = []string{}
	}

	return c.JSON(http.StatusOK, TransferEligibilityResponse{
		CanTransfer:      canTransfer,
		Reason:           reason,
		AllowedTransfers: allowed,
	})
}

// RegisterHandlers mounts every authenticated API route on the group.
func RegisterHandlers(g *echo.Group, h *Handler) {
	g.POST("/workflow/steps/complete", h.CompleteStep)
	g.POST("/workflow/steps/rollback", h.RollbackStep)
	g.GET("/dossiers/:id/next-step", h.GetNextStep)
	g.GET("/dossiers/:id/available-steps", h.GetAvailableSteps)
	g.POST("/dossiers/:id/transfer", h.InitiateTransfer)
	g.GET("/dossiers/:id/transfers", h.GetTransferHistory)
	g.GET("/dossiers/:id/transfer-eligibility", h.CheckTransferEligibility)
	g.GET("/dossiers/:id/steps/:stepID/rollbacks", h.GetRollbackHistory)
	g.GET("/dossiers/:id/steps/:stepID/rollback-eligibility", h.CheckRollbackEligibility)
}
