package model

import (
	"time"
)

// ContractTransition is an audit record of one status change. Every
// transition the state machine performs appends exactly one row.
type ContractTransition struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	ContractID uint           `json:"contract_id" gorm:"index;not null"`
	FromStatus ContractStatus `json:"from_status" gorm:"type:varchar(20);not null"`
	ToStatus   ContractStatus `json:"to_status" gorm:"type:varchar(20);not null"`
	// ActorID is zero for transitions performed by the scheduler.
	ActorID   uint      `json:"actor_id"`
	Reason    string    `json:"reason,omitempty" gorm:"type:varchar(200)"`
	CreatedAt time.Time `json:"created_at"`
}
