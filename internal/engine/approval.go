package engine

import (
	"errors"
	"fmt"
	"time"

	"contract-service/internal/model"
	"contract-service/pkg/notifier"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApprovalStepInput defines one step when configuring a workflow.
type ApprovalStepInput struct {
	ApproverID    uint
	ApproverEmail string
	IsRequired    *bool
	DueAt         *time.Time
}

// DefineApprovalSteps replaces the approval workflow of a draft contract with
// the given ordered steps. Step numbers are assigned from the input order
// starting at 1. The workflow starts gating completion once the contract is
// sent for signing.
func (e *Engine) DefineApprovalSteps(actor Actor, contractID uint, steps []ApprovalStepInput) ([]model.ContractApproval, error) {
	contract, err := e.getOwned(actor, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != model.StatusDraft {
		return nil, fmt.Errorf("%w: approval steps can only be defined in draft", ErrInvalidTransition)
	}

	var created []model.ContractApproval
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract_id = ?", contract.ID).
			Delete(&model.ContractApproval{}).Error; err != nil {
			return err
		}
		for i, in := range steps {
			required := true
			if in.IsRequired != nil {
				required = *in.IsRequired
			}
			step := model.ContractApproval{
				ContractID:    contract.ID,
				ApproverID:    in.ApproverID,
				ApproverEmail: in.ApproverEmail,
				StepNumber:    i + 1,
				Status:        model.StepPending,
				IsRequired:    required,
				DueAt:         in.DueAt,
			}
			if err := tx.Create(&step).Error; err != nil {
				return err
			}
			created = append(created, step)
		}
		return tx.Model(contract).Updates(map[string]interface{}{
			"approval_status": model.ApprovalPending,
			"current_step":    0,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	contract.ApprovalStatus = model.ApprovalPending
	return created, nil
}

// Approve resolves the current approval step. Only the designated approver
// may act, and every earlier required step must already be resolved. When the
// last step resolves the workflow is approved and, if all required parties
// have signed, the contract completes.
func (e *Engine) Approve(actor Actor, approvalID uint, comment string) error {
	return e.resolveStep(actor, approvalID, model.StepApproved, comment)
}

// Reject resolves the current step negatively. A rejected required step sets
// the whole workflow rejected, halting signing completion regardless of
// party signatures; an optional rejection is treated as resolved and the
// workflow advances.
func (e *Engine) Reject(actor Actor, approvalID uint, comment string) error {
	return e.resolveStep(actor, approvalID, model.StepRejected, comment)
}

func (e *Engine) resolveStep(actor Actor, approvalID uint, outcome model.ApprovalStepStatus, comment string) error {
	var step model.ContractApproval
	if err := e.db.First(&step, approvalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: approval step %d", ErrNotFound, approvalID)
		}
		return err
	}
	if step.ApproverID != actor.UserID {
		return fmt.Errorf("%w: approval step %d is not assigned to this user", ErrNotFound, approvalID)
	}
	if step.Resolved() {
		return fmt.Errorf("%w: step already %s", ErrInvalidTransition, step.Status)
	}

	contract, err := e.getOwned(actor, step.ContractID)
	if err != nil {
		return err
	}
	if contract.ApprovalStatus == model.ApprovalRejected {
		return ErrApprovalRejected
	}

	unlock := e.lockContract(contract.ID)
	defer unlock()

	var notifyStep *model.ContractApproval
	err = e.db.Transaction(func(tx *gorm.DB) error {
		// Earlier required steps gate this one.
		var blocking int64
		if err := tx.Model(&model.ContractApproval{}).
			Where("contract_id = ? AND step_number < ? AND status = ? AND is_required = ?",
				contract.ID, step.StepNumber, model.StepPending, true).
			Count(&blocking).Error; err != nil {
			return err
		}
		if blocking > 0 {
			return fmt.Errorf("%w: earlier required steps are unresolved", ErrInvalidTransition)
		}

		now := time.Now()
		if err := tx.Model(&step).Updates(map[string]interface{}{
			"status":      outcome,
			"comment":     comment,
			"resolved_at": now,
		}).Error; err != nil {
			return err
		}

		if outcome == model.StepRejected && step.IsRequired {
			contract.ApprovalStatus = model.ApprovalRejected
			return tx.Model(contract).Update("approval_status", model.ApprovalRejected).Error
		}

		notifyStep, err = e.advanceApprovals(tx, contract)
		return err
	})
	if err != nil {
		return err
	}

	e.log.Info("approval step resolved",
		zap.Uint("contract_id", contract.ID),
		zap.Uint("approval_id", step.ID),
		zap.Int("step_number", step.StepNumber),
		zap.String("outcome", string(outcome)))

	e.notifyApprover(contract, notifyStep)
	return nil
}

// advanceApprovals walks the step list in order, auto-skipping pending
// optional steps, and parks the pointer on the first unresolved required
// step. When every step is resolved non-rejected the workflow is approved and
// completion is re-evaluated. Returns the step newly awaiting its approver,
// if the pointer moved. Run inside a transaction with the contract lock held.
func (e *Engine) advanceApprovals(tx *gorm.DB, contract *model.Contract) (*model.ContractApproval, error) {
	var steps []model.ContractApproval
	if err := tx.Where("contract_id = ?", contract.ID).
		Order("step_number asc").Find(&steps).Error; err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, nil
	}

	for i := range steps {
		step := &steps[i]
		if step.Resolved() {
			continue
		}
		if !step.IsRequired {
			now := time.Now()
			if err := tx.Model(step).Updates(map[string]interface{}{
				"status":      model.StepSkipped,
				"resolved_at": now,
			}).Error; err != nil {
				return nil, err
			}
			continue
		}

		if contract.CurrentStep == step.StepNumber {
			return nil, nil
		}
		contract.CurrentStep = step.StepNumber
		if err := tx.Model(contract).Update("current_step", step.StepNumber).Error; err != nil {
			return nil, err
		}
		return step, nil
	}

	// All steps resolved, none required-rejected (that path short-circuits
	// before advancing).
	contract.ApprovalStatus = model.ApprovalApproved
	if err := tx.Model(contract).Updates(map[string]interface{}{
		"approval_status": model.ApprovalApproved,
		"current_step":    0,
	}).Error; err != nil {
		return nil, err
	}
	contract.CurrentStep = 0
	return nil, e.completeIfReady(tx, contract, Actor{CompanyID: contract.CompanyID})
}

func (e *Engine) notifyApprover(contract *model.Contract, step *model.ContractApproval) {
	if step == nil || step.ApproverEmail == "" {
		return
	}
	err := e.notifier.Send(step.ApproverEmail, notifier.KindApprovalRequested, map[string]interface{}{
		"contract_id":     contract.ID,
		"contract_number": contract.ContractNumber,
		"step_number":     step.StepNumber,
		"due_at":          step.DueAt,
	})
	if err != nil {
		e.log.Error("approver notification failed",
			zap.Uint("contract_id", contract.ID),
			zap.Int("step_number", step.StepNumber),
			zap.Error(err))
	}
}
