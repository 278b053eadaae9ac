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

// CreateContractInput carries the caller-supplied fields for a new contract.
type CreateContractInput struct {
	ContractTypeID uint
	Title          string
	Content        string
	SigningMethod  model.SigningMethod
	Value          float64
	Currency       string
	OwnerEmail     string
	StartDate      *time.Time
	EndDate        *time.Time
}

// CreateContract creates a contract in draft and assigns its number. The
// unique index on contract_number is the backstop against allocator races;
// on a duplicate the allocation is retried with a fresh increment.
func (e *Engine) CreateContract(actor Actor, in CreateContractInput) (*model.Contract, error) {
	if in.SigningMethod == "" {
		in.SigningMethod = model.MethodSMS
	}

	var contract *model.Contract
	year := time.Now().Year()

	for attempt := 0; attempt < 2; attempt++ {
		number, err := e.allocator.Allocate(actor.CompanyID, in.ContractTypeID, year)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Two first allocations raced to create the scope row; the
			// loser retries against the committed row.
			continue
		}
		if err != nil {
			return nil, err
		}

		c := model.Contract{
			CompanyID:      actor.CompanyID,
			CreatedBy:      actor.UserID,
			ContractTypeID: in.ContractTypeID,
			ContractNumber: number,
			Title:          in.Title,
			Content:        in.Content,
			Status:         model.StatusDraft,
			SigningMethod:  in.SigningMethod,
			Value:          in.Value,
			Currency:       in.Currency,
			OwnerEmail:     in.OwnerEmail,
			StartDate:      in.StartDate,
			EndDate:        in.EndDate,
			ApprovalStatus: model.ApprovalNone,
		}
		err = e.db.Create(&c).Error
		if err == nil {
			contract = &c
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			e.log.Warn("contract number collision, retrying allocation",
				zap.String("contract_number", number))
			continue
		}
		return nil, err
	}
	if contract == nil {
		return nil, fmt.Errorf("%w: repeated contract number collisions", ErrAllocationExhausted)
	}

	e.log.Info("contract created",
		zap.Uint("contract_id", contract.ID),
		zap.String("contract_number", contract.ContractNumber),
		zap.Uint("company_id", contract.CompanyID))
	return contract, nil
}

// PartyInput carries the fields for adding a party.
type PartyInput struct {
	Type       model.PartyType
	Name       string
	Email      string
	Phone      string
	IsRequired *bool
}

// AddParty attaches a party to a contract. Parties may be added while the
// contract is in draft or pending; witnesses default to optional, everyone
// else to required.
func (e *Engine) AddParty(actor Actor, contractID uint, in PartyInput) (*model.ContractParty, error) {
	contract, err := e.getOwned(actor, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != model.StatusDraft && contract.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: cannot add party in status %s", ErrInvalidTransition, contract.Status)
	}

	if in.Type == "" {
		in.Type = model.PartyClient
	}
	required := in.Type != model.PartyWitness
	if in.IsRequired != nil {
		required = *in.IsRequired
	}

	party := model.ContractParty{
		ContractID: contract.ID,
		Type:       in.Type,
		Name:       in.Name,
		Email:      in.Email,
		Phone:      in.Phone,
		IsRequired: required,
	}
	if err := e.db.Create(&party).Error; err != nil {
		return nil, err
	}

	// A party added after the contract was sent still needs its signing
	// session.
	if contract.Status == model.StatusPending {
		if err := e.createSignatureSession(e.db, contract, &party); err != nil {
			return nil, err
		}
	}
	return &party, nil
}

// UpdateContractInput carries a content-affecting mutation.
type UpdateContractInput struct {
	Title   string
	Content string
	Value   *float64
	EndDate *time.Time
}

// UpdateContract mutates a draft in place. Once the contract has left draft
// every content change appends an immutable amendment with the next version
// number; terminal contracts reject mutation.
func (e *Engine) UpdateContract(actor Actor, contractID uint, in UpdateContractInput) (*model.Contract, error) {
	contract, err := e.getOwned(actor, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: contract is %s", ErrInvalidTransition, contract.Status)
	}

	// Omitted fields keep their current values, so a partial update never
	// blanks the title or content and amendments always snapshot full text.
	if in.Title == "" {
		in.Title = contract.Title
	}
	if in.Content == "" {
		in.Content = contract.Content
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if contract.Status != model.StatusDraft {
			var version int
			row := tx.Model(&model.ContractAmendment{}).
				Where("contract_id = ?", contract.ID).
				Select("COALESCE(MAX(version), 0)").Row()
			if err := row.Scan(&version); err != nil {
				return err
			}
			amendment := model.ContractAmendment{
				ContractID: contract.ID,
				Version:    version + 1,
				Title:      in.Title,
				Content:    in.Content,
				CreatedBy:  actor.UserID,
			}
			if err := tx.Create(&amendment).Error; err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"title":   in.Title,
			"content": in.Content,
		}
		if in.Value != nil {
			updates["value"] = *in.Value
		}
		if in.EndDate != nil {
			updates["end_date"] = *in.EndDate
		}
		return tx.Model(contract).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return e.getOwned(actor, contractID)
}

// SendForSigning moves a draft to pending: guards that at least one party is
// reachable, opens one signing session per party, points the approval
// workflow at its first step, and records the transition.
func (e *Engine) SendForSigning(actor Actor, contractID uint) (*model.Contract, error) {
	contract, err := e.getOwned(actor, contractID)
	if err != nil {
		return nil, err
	}

	var parties []model.ContractParty
	if err := e.db.Where("contract_id = ?", contract.ID).Find(&parties).Error; err != nil {
		return nil, err
	}
	reachable := false
	for i := range parties {
		if parties[i].HasContact() {
			reachable = true
			break
		}
	}
	if !reachable {
		return nil, ErrNoSignableParty
	}

	var notifyStep *model.ContractApproval
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, contract, model.StatusPending, actor, "sent for signing"); err != nil {
			return err
		}
		for i := range parties {
			if err := e.createSignatureSession(tx, contract, &parties[i]); err != nil {
				return err
			}
		}
		var err error
		notifyStep, err = e.advanceApprovals(tx, contract)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("contract sent for signing",
		zap.Uint("contract_id", contract.ID),
		zap.Int("parties", len(parties)))
	e.notifyApprover(contract, notifyStep)
	return contract, nil
}

// Terminate moves any non-terminal contract to terminated.
func (e *Engine) Terminate(actor Actor, contractID uint, reason string) (*model.Contract, error) {
	return e.close(actor, contractID, model.StatusTerminated, reason)
}

// Cancel moves any non-terminal contract to cancelled.
func (e *Engine) Cancel(actor Actor, contractID uint, reason string) (*model.Contract, error) {
	return e.close(actor, contractID, model.StatusCancelled, reason)
}

func (e *Engine) close(actor Actor, contractID uint, to model.ContractStatus, reason string) (*model.Contract, error) {
	contract, err := e.getOwned(actor, contractID)
	if err != nil {
		return nil, err
	}
	err = e.db.Transaction(func(tx *gorm.DB) error {
		return transition(tx, contract, to, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// Activate moves a signed, future-dated contract to active. Called by the
// daily sweep once the start date arrives.
func (e *Engine) Activate(contractID uint) error {
	return e.systemTransition(contractID, model.StatusActive, "start date reached")
}

// Expire moves an active contract past its end date to expired. Called by
// the daily sweep.
func (e *Engine) Expire(contractID uint) error {
	return e.systemTransition(contractID, model.StatusExpired, "end date passed")
}

func (e *Engine) systemTransition(contractID uint, to model.ContractStatus, reason string) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		var contract model.Contract
		if err := tx.First(&contract, contractID).Error; err != nil {
			return err
		}
		return transition(tx, &contract, to, System, reason)
	})
}

// createSignatureSession opens the signing session row for one party.
func (e *Engine) createSignatureSession(tx *gorm.DB, contract *model.Contract, party *model.ContractParty) error {
	expires := time.Now().Add(e.opts.SessionTTL)
	sig := model.ContractSignature{
		ContractID: contract.ID,
		PartyID:    party.ID,
		Method:     contract.SigningMethod,
		ExpiresAt:  &expires,
	}
	err := tx.Create(&sig).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Session already exists for this party; nothing to do.
		return nil
	}
	return err
}

// completeIfReady evaluates the aggregation rule against a consistent
// snapshot of the contract's party rows. Call it inside a transaction while
// holding the contract lock. The contract moves to partially_signed on the
// first verified required signature and to signed when every required party
// has one and the approval workflow (if any) is approved.
func (e *Engine) completeIfReady(tx *gorm.DB, contract *model.Contract, actor Actor) error {
	if contract.Status != model.StatusPending && contract.Status != model.StatusPartiallySigned {
		return nil
	}

	var parties []model.ContractParty
	if err := tx.Where("contract_id = ?", contract.ID).Find(&parties).Error; err != nil {
		return err
	}

	requiredTotal, requiredSigned, anySigned := 0, 0, false
	for i := range parties {
		if parties[i].IsSigned {
			anySigned = true
		}
		if parties[i].IsRequired {
			requiredTotal++
			if parties[i].IsSigned {
				requiredSigned++
			}
		}
	}

	allSigned := requiredTotal > 0 && requiredSigned == requiredTotal
	approvalGate := contract.ApprovalStatus == model.ApprovalNone ||
		contract.ApprovalStatus == model.ApprovalApproved

	if allSigned && approvalGate {
		if contract.Status == model.StatusPending {
			if err := transition(tx, contract, model.StatusPartiallySigned, actor, "signatures collected"); err != nil {
				return err
			}
		}
		if err := transition(tx, contract, model.StatusSigned, actor, "all required parties signed"); err != nil {
			return err
		}
		return e.maybeActivate(tx, contract, actor)
	}

	if anySigned && contract.Status == model.StatusPending {
		return transition(tx, contract, model.StatusPartiallySigned, actor, "first signature recorded")
	}
	return nil
}

// maybeActivate applies the activation policy: a signed contract goes active
// immediately unless its start date is in the future, in which case the daily
// sweep activates it on that date.
func (e *Engine) maybeActivate(tx *gorm.DB, contract *model.Contract, actor Actor) error {
	if contract.StartDate != nil && contract.StartDate.After(time.Now()) {
		return nil
	}
	return transition(tx, contract, model.StatusActive, actor, "activated on signing")
}

func (e *Engine) notifyOwner(contract *model.Contract, kind notifier.TemplateKind, payload map[string]interface{}) {
	if contract.OwnerEmail == "" {
		return
	}
	if err := e.notifier.Send(contract.OwnerEmail, kind, payload); err != nil {
		e.log.Error("owner notification failed",
			zap.Uint("contract_id", contract.ID),
			zap.String("template", string(kind)),
			zap.Error(err))
	}
}

// getOwned loads a contract scoped to the actor's company.
func (e *Engine) getOwned(actor Actor, contractID uint) (*model.Contract, error) {
	var contract model.Contract
	err := e.db.Where("id = ? AND company_id = ?", contractID, actor.CompanyID).First(&contract).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: contract %d", ErrNotFound, contractID)
	}
	if err != nil {
		return nil, err
	}
	return &contract, nil
}
