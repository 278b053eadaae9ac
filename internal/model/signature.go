package model

import (
	"time"
)

// ContractSignature is the signing session for one (contract, party) pair.
// At most one verified signature exists per pair; an unverified code may be
// superseded by a resend, but verification is never revoked by the engine.
type ContractSignature struct {
	ID         uint          `json:"id" gorm:"primaryKey"`
	ContractID uint          `json:"contract_id" gorm:"index;not null;uniqueIndex:idx_contract_party"`
	PartyID    uint          `json:"party_id" gorm:"not null;uniqueIndex:idx_contract_party"`
	Method     SigningMethod `json:"method" gorm:"type:varchar(20);not null"`

	VerificationCode string     `json:"-" gorm:"type:varchar(10);index"` // Never exposed in responses
	CodeSentAt       *time.Time `json:"code_sent_at"`
	CodeExpiresAt    *time.Time `json:"-"`
	Attempts         int        `json:"-" gorm:"default:0"`
	// Fixed-window counters for the per-party resend rate limit.
	CodeSendCount   int        `json:"-" gorm:"default:0"`
	CodeWindowStart *time.Time `json:"-"`

	CodeVerified bool       `json:"code_verified" gorm:"default:false"`
	SignedAt     *time.Time `json:"signed_at"`
	EvidenceRef  string     `json:"evidence_ref,omitempty" gorm:"type:varchar(200)"` // Handwritten upload / digital certificate reference
	IPAddress    string     `json:"ip_address,omitempty" gorm:"type:varchar(45)"`
	UserAgent    string     `json:"user_agent,omitempty" gorm:"type:varchar(255)"`

	// Signing-session deadline and reminder stamp used by the daily sweep.
	ExpiresAt          *time.Time `json:"expires_at"`
	LastReminderSentAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CodeExpired reports whether the current verification code is past its TTL.
func (s *ContractSignature) CodeExpired(now time.Time) bool {
	return s.CodeExpiresAt == nil || now.After(*s.CodeExpiresAt)
}
