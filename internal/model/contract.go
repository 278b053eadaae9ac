package model

import (
	"time"

	"gorm.io/gorm"
)

// ContractStatus is the lifecycle status of a contract.
type ContractStatus string

const (
	StatusDraft           ContractStatus = "draft"
	StatusPending         ContractStatus = "pending"
	StatusPartiallySigned ContractStatus = "partially_signed"
	StatusSigned          ContractStatus = "signed"
	StatusActive          ContractStatus = "active"
	StatusExpired         ContractStatus = "expired"
	StatusTerminated      ContractStatus = "terminated"
	StatusCancelled       ContractStatus = "cancelled"
)

// SigningMethod selects how a party provides signature evidence.
type SigningMethod string

const (
	MethodSMS         SigningMethod = "sms"
	MethodHandwritten SigningMethod = "handwritten"
	MethodDigital     SigningMethod = "digital"
)

// ApprovalStatus tracks the aggregate outcome of a contract's approval workflow.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "none"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Contract represents a contract owned by a company. The content blob is
// opaque to the engine; only lifecycle fields are interpreted.
type Contract struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	CompanyID      uint           `json:"company_id" gorm:"index;not null"`
	CreatedBy      uint           `json:"created_by" gorm:"index"`
	ContractTypeID uint           `json:"contract_type_id" gorm:"index;not null"`
	ContractNumber string         `json:"contract_number" gorm:"type:varchar(50);uniqueIndex"` // Immutable once assigned
	Title          string         `json:"title" gorm:"type:varchar(200);not null"`
	Content        string         `json:"content" gorm:"type:text"`
	Status         ContractStatus `json:"status" gorm:"type:varchar(20);index;not null;default:'draft'"`
	SigningMethod  SigningMethod  `json:"signing_method" gorm:"type:varchar(20);not null;default:'sms'"`
	Value          float64        `json:"value"`
	Currency       string         `json:"currency" gorm:"type:varchar(3)"`
	OwnerEmail     string         `json:"owner_email" gorm:"type:varchar(100)"`
	StartDate      *time.Time     `json:"start_date"`
	EndDate        *time.Time     `json:"end_date"`
	SignedAt       *time.Time     `json:"signed_at"`
	ApprovalStatus ApprovalStatus `json:"approval_status" gorm:"type:varchar(20);not null;default:'none'"`
	CurrentStep    int            `json:"current_approval_step" gorm:"default:0"`

	// Per-horizon expiry notification markers so the daily sweep sends each
	// warning exactly once per contract. Column names are pinned because the
	// default naming strategy renders the digits without a separator
	// (expiry_notified30_at), which the sweep's raw WHERE clauses would miss.
	ExpiryNotified30At *time.Time `json:"-" gorm:"column:expiry_notified_30_at"`
	ExpiryNotified14At *time.Time `json:"-" gorm:"column:expiry_notified_14_at"`
	ExpiryNotified7At  *time.Time `json:"-" gorm:"column:expiry_notified_7_at"`

	Parties    []ContractParty     `json:"parties,omitempty" gorm:"foreignKey:ContractID"`
	Signatures []ContractSignature `json:"signatures,omitempty" gorm:"foreignKey:ContractID"`
	Approvals  []ContractApproval  `json:"approvals,omitempty" gorm:"foreignKey:ContractID"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// IsTerminal reports whether the status admits no further transitions.
func (s ContractStatus) IsTerminal() bool {
	switch s {
	case StatusExpired, StatusTerminated, StatusCancelled:
		return true
	}
	return false
}

// AllModels lists every model for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&Contract{},
		&ContractParty{},
		&ContractSignature{},
		&ContractNumbering{},
		&ContractApproval{},
		&ContractAmendment{},
		&ContractTransition{},
	}
}
