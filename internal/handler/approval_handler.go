package handler

import (
	"net/http"
	"strconv"
	"time"

	"contract-service/internal/engine"
	"contract-service/pkg/logger"
	"contract-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ApprovalStepRequest defines one step when configuring a workflow
type ApprovalStepRequest struct {
	ApproverID    uint       `json:"approver_id" validate:"required"`
	ApproverEmail string     `json:"approver_email"`
	IsRequired    *bool      `json:"is_required"`
	DueAt         *time.Time `json:"due_at"`
}

// DefineApprovals replaces the approval workflow of a draft contract
func DefineApprovals(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordContractOperation("define_approvals")

	id, _, ok := contractScope(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid contract ID"})
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Steps []ApprovalStepRequest `json:"steps"`
	}
	if err := c.Bind(&req); err != nil || len(req.Steps) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "steps are required"})
	}

	inputs := make([]engine.ApprovalStepInput, 0, len(req.Steps))
	for _, s := range req.Steps {
		inputs = append(inputs, engine.ApprovalStepInput{
			ApproverID:    s.ApproverID,
			ApproverEmail: s.ApproverEmail,
			IsRequired:    s.IsRequired,
			DueAt:         s.DueAt,
		})
	}

	steps, err := eng.DefineApprovalSteps(actor, uint(id), inputs)
	if err != nil {
		return engineError(c, log, err)
	}

	log.Info("Approval workflow defined",
		zap.Uint64("contract_id", id),
		zap.Int("steps", len(steps)))
	return c.JSON(http.StatusCreated, echo.Map{"steps": steps})
}

// ApproveStep resolves the caller's approval step positively
func ApproveStep(c echo.Context) error {
	return resolveApproval(c, true)
}

// RejectStep resolves the caller's approval step negatively
func RejectStep(c echo.Context) error {
	return resolveApproval(c, false)
}

func resolveApproval(c echo.Context, approve bool) error {
	log := logger.FromContext(c)
	if approve {
		prometheus.RecordContractOperation("approve_step")
	} else {
		prometheus.RecordContractOperation("reject_step")
	}

	approvalID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid approval ID"})
	}
	actor, ok := actorFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Comment string `json:"comment"`
	}
	_ = c.Bind(&req)

	if approve {
		err = eng.Approve(actor, uint(approvalID), req.Comment)
	} else {
		err = eng.Reject(actor, uint(approvalID), req.Comment)
	}
	if err != nil {
		return engineError(c, log, err)
	}

	log.Info("Approval step resolved",
		zap.Uint64("approval_id", approvalID),
		zap.Bool("approved", approve))
	return c.JSON(http.StatusOK, echo.Map{"message": "Approval recorded"})
}
