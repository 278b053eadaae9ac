package engine

import (
	"fmt"
	"time"

	"contract-service/internal/model"

	"gorm.io/gorm"
)

// transitions is the contract lifecycle graph. A transition is legal only if
// the target appears in the source's edge list; terminal states have none.
var transitions = map[model.ContractStatus][]model.ContractStatus{
	model.StatusDraft: {
		model.StatusPending,
		model.StatusTerminated,
		model.StatusCancelled,
	},
	model.StatusPending: {
		model.StatusPartiallySigned,
		model.StatusSigned,
		model.StatusTerminated,
		model.StatusCancelled,
	},
	model.StatusPartiallySigned: {
		model.StatusSigned,
		model.StatusTerminated,
		model.StatusCancelled,
	},
	model.StatusSigned: {
		model.StatusActive,
		model.StatusTerminated,
		model.StatusCancelled,
	},
	model.StatusActive: {
		model.StatusExpired,
		model.StatusTerminated,
		model.StatusCancelled,
	},
	model.StatusExpired:    {},
	model.StatusTerminated: {},
	model.StatusCancelled:  {},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to model.ContractStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves the contract to the target status inside tx, stamping
// derived timestamps and appending the audit row. The caller owns the
// transaction; on error nothing is persisted.
func transition(tx *gorm.DB, contract *model.Contract, to model.ContractStatus, actor Actor, reason string) error {
	from := contract.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := time.Now()
	updates := map[string]interface{}{"status": to}
	if to == model.StatusSigned && contract.SignedAt == nil {
		updates["signed_at"] = now
		contract.SignedAt = &now
	}
	if err := tx.Model(contract).Updates(updates).Error; err != nil {
		return err
	}
	contract.Status = to

	record := model.ContractTransition{
		ContractID: contract.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor.UserID,
		Reason:     reason,
	}
	return tx.Create(&record).Error
}
