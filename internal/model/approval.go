package model

import (
	"time"
)

// ApprovalStepStatus is the state of a single approval step.
type ApprovalStepStatus string

const (
	StepPending  ApprovalStepStatus = "pending"
	StepApproved ApprovalStepStatus = "approved"
	StepRejected ApprovalStepStatus = "rejected"
	StepSkipped  ApprovalStepStatus = "skipped"
)

// ContractApproval is one ordered gate in a contract's approval workflow.
// Steps execute in StepNumber order; a required step blocks progression until
// resolved, an optional one may be auto-skipped.
type ContractApproval struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	ContractID uint `json:"contract_id" gorm:"index;not null;uniqueIndex:idx_contract_step"`
	ApproverID uint `json:"approver_id" gorm:"index;not null"`
	// ApproverEmail routes approval-requested notifications.
	ApproverEmail string             `json:"approver_email" gorm:"type:varchar(100)"`
	StepNumber    int                `json:"step_number" gorm:"not null;uniqueIndex:idx_contract_step"`
	Status        ApprovalStepStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	// No column default: a default tag would make gorm skip an explicit
	// false on insert. DefineApprovalSteps assigns the field explicitly.
	IsRequired    bool               `json:"is_required"`
	Comment       string             `json:"comment,omitempty" gorm:"type:text"`
	DueAt         *time.Time         `json:"due_at"`
	ResolvedAt    *time.Time         `json:"resolved_at"`
	// Escalation stamp for past-due steps, set by the reminder sweep.
	LastReminderSentAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Resolved reports whether the step no longer blocks the workflow pointer.
func (a *ContractApproval) Resolved() bool {
	return a.Status != StepPending
}
