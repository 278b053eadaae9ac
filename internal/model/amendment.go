package model

import (
	"time"
)

// ContractAmendment is an immutable snapshot of contract content, created on
// every content-affecting mutation after the contract leaves draft. Version
// numbers increase monotonically per contract.
type ContractAmendment struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ContractID uint      `json:"contract_id" gorm:"index;not null;uniqueIndex:idx_contract_version"`
	Version    int       `json:"version" gorm:"not null;uniqueIndex:idx_contract_version"`
	Title      string    `json:"title" gorm:"type:varchar(200)"`
	Content    string    `json:"content" gorm:"type:text"`
	CreatedBy  uint      `json:"created_by" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
}
