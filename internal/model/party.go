package model

import (
	"time"

	"gorm.io/gorm"
)

// PartyType classifies a contract party.
type PartyType string

const (
	PartyClient   PartyType = "client"
	PartyProvider PartyType = "provider"
	PartyWitness  PartyType = "witness"
	PartyOther    PartyType = "other"
)

// ContractParty is a person or entity expected to sign a contract.
// Identity fields are immutable once a verified signature exists.
type ContractParty struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ContractID uint      `json:"contract_id" gorm:"index;not null"`
	Type       PartyType `json:"type" gorm:"type:varchar(20);not null;default:'client'"`
	Name       string    `json:"name" gorm:"type:varchar(100);not null"`
	Email      string    `json:"email" gorm:"type:varchar(100)"`
	Phone      string    `json:"phone" gorm:"type:varchar(20)"`
	// IsRequired has no column default: gorm drops zero-value fields that
	// carry a default tag, which would silently store optional parties as
	// required. AddParty assigns it explicitly (witnesses default to
	// optional).
	IsRequired bool `json:"is_required"`
	// IsSigned is a cache recomputed from the verified signature row in the
	// same transaction that changes it; never left stale.
	IsSigned bool       `json:"is_signed" gorm:"default:false"`
	SignedAt *time.Time `json:"signed_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// HasContact reports whether the party can be reached on any channel.
func (p *ContractParty) HasContact() bool {
	return p.Email != "" || p.Phone != ""
}
