package engine

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"contract-service/internal/model"
	"contract-service/pkg/notifier"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const verificationCodeLength = 6

// RequestCode issues a fresh verification code to a party and sends it over
// the SMS gateway. Requests are rate-limited per party with a fixed hourly
// window; a new code supersedes the previous one and resets the attempt
// counter. A gateway failure is returned as ErrDeliveryFailed without
// discarding the issued code.
//
// The contract lock covers the window read and the counter bump, so
// concurrent requests for the same party cannot both pass the limit check.
func (e *Engine) RequestCode(contractID, partyID uint) error {
	unlock := e.lockContract(contractID)
	defer unlock()

	contract, party, sig, err := e.loadSigningSession(contractID, partyID)
	if err != nil {
		return err
	}
	if sig.CodeVerified {
		return ErrAlreadySigned
	}
	if contract.Status != model.StatusPending && contract.Status != model.StatusPartiallySigned {
		return fmt.Errorf("%w: contract is %s, not awaiting signatures", ErrInvalidTransition, contract.Status)
	}
	if party.Phone == "" {
		return fmt.Errorf("%w: party %d has no phone number", ErrNotFound, partyID)
	}

	now := time.Now()
	if sig.CodeWindowStart == nil || now.Sub(*sig.CodeWindowStart) > time.Hour {
		sig.CodeWindowStart = &now
		sig.CodeSendCount = 0
	}
	if sig.CodeSendCount >= e.opts.MaxCodeSendsPerHour {
		return ErrRateLimited
	}

	code := generateNumericCode(verificationCodeLength)
	expires := now.Add(e.opts.CodeTTL)
	updates := map[string]interface{}{
		"verification_code": code,
		"code_sent_at":      now,
		"code_expires_at":   expires,
		"attempts":          0,
		"code_send_count":   sig.CodeSendCount + 1,
		"code_window_start": sig.CodeWindowStart,
	}
	if err := e.db.Model(sig).Updates(updates).Error; err != nil {
		return err
	}

	e.log.Info("verification code issued",
		zap.Uint("contract_id", contractID),
		zap.Uint("party_id", partyID),
		zap.Time("expires_at", expires))

	if err := e.sms.SendCode(party.Phone, code); err != nil {
		e.log.Error("code delivery failed",
			zap.Uint("contract_id", contractID),
			zap.Uint("party_id", partyID),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// SignatureEvidence carries audit fields recorded with a signature.
type SignatureEvidence struct {
	IPAddress string
	UserAgent string
	// EvidenceRef points at uploaded handwritten images or digital
	// certificates; empty for the SMS code flow.
	EvidenceRef string
}

// VerifyCode checks a submitted code for a party. Expiry is evaluated before
// comparison, so a stale code fails with ErrCodeExpired even when it matches.
// A mismatch counts against the attempt budget; exhausting it invalidates the
// code. On success the signature is recorded and the contract's completion is
// re-evaluated under the contract lock.
func (e *Engine) VerifyCode(contractID, partyID uint, submitted string, evidence SignatureEvidence) error {
	contract, _, sig, err := e.loadSigningSession(contractID, partyID)
	if err != nil {
		return err
	}
	if sig.CodeVerified {
		return ErrAlreadySigned
	}
	if contract.Status != model.StatusPending && contract.Status != model.StatusPartiallySigned {
		return fmt.Errorf("%w: contract is %s, not awaiting signatures", ErrInvalidTransition, contract.Status)
	}
	if sig.VerificationCode == "" {
		return fmt.Errorf("%w: no active code, request one first", ErrCodeExpired)
	}

	now := time.Now()
	if sig.CodeExpired(now) {
		return ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(sig.VerificationCode), []byte(submitted)) != 1 {
		attempts := sig.Attempts + 1
		updates := map[string]interface{}{"attempts": attempts}
		if attempts >= e.opts.MaxVerifyAttempts {
			// Invalidate the code; a fresh one must be requested.
			updates["verification_code"] = ""
			updates["code_expires_at"] = nil
		}
		if err := e.db.Model(sig).Updates(updates).Error; err != nil {
			return err
		}
		if attempts >= e.opts.MaxVerifyAttempts {
			return ErrTooManyAttempts
		}
		return ErrCodeMismatch
	}

	return e.recordSignature(contractID, partyID, evidence)
}

// RecordHandwritten records signature evidence for the handwritten method,
// bypassing the code flow. The party-signed event and the completion check
// are identical to the SMS path.
func (e *Engine) RecordHandwritten(contractID, partyID uint, evidence SignatureEvidence) error {
	return e.recordEvidenceSignature(contractID, partyID, model.MethodHandwritten, evidence)
}

// RecordDigital records a digital-certificate signature, bypassing the code
// flow.
func (e *Engine) RecordDigital(contractID, partyID uint, evidence SignatureEvidence) error {
	return e.recordEvidenceSignature(contractID, partyID, model.MethodDigital, evidence)
}

func (e *Engine) recordEvidenceSignature(contractID, partyID uint, method model.SigningMethod, evidence SignatureEvidence) error {
	contract, _, sig, err := e.loadSigningSession(contractID, partyID)
	if err != nil {
		return err
	}
	if sig.CodeVerified {
		return ErrAlreadySigned
	}
	if contract.Status != model.StatusPending && contract.Status != model.StatusPartiallySigned {
		return fmt.Errorf("%w: contract is %s, not awaiting signatures", ErrInvalidTransition, contract.Status)
	}
	if err := e.db.Model(sig).Update("method", method).Error; err != nil {
		return err
	}
	return e.recordSignature(contractID, partyID, evidence)
}

// recordSignature marks the party's signature verified, recomputes the
// party's is_signed cache in the same transaction, emits the party-signed
// notification and re-runs the completion check. The per-contract lock plus
// the transactional re-read guarantee exactly one completion event when the
// last two parties verify concurrently.
func (e *Engine) recordSignature(contractID, partyID uint, evidence SignatureEvidence) error {
	unlock := e.lockContract(contractID)
	defer unlock()

	var contract model.Contract
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&contract, contractID).Error; err != nil {
			return err
		}

		now := time.Now()
		sigUpdates := map[string]interface{}{
			"code_verified": true,
			"signed_at":     now,
			"ip_address":    evidence.IPAddress,
			"user_agent":    evidence.UserAgent,
		}
		if evidence.EvidenceRef != "" {
			sigUpdates["evidence_ref"] = evidence.EvidenceRef
		}
		res := tx.Model(&model.ContractSignature{}).
			Where("contract_id = ? AND party_id = ? AND code_verified = ?", contractID, partyID, false).
			Updates(sigUpdates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySigned
		}

		// is_signed is derived from the verified signature row and updated
		// in the same transaction, never left stale.
		if err := tx.Model(&model.ContractParty{}).
			Where("id = ?", partyID).
			Updates(map[string]interface{}{"is_signed": true, "signed_at": now}).Error; err != nil {
			return err
		}

		actor := Actor{CompanyID: contract.CompanyID}
		return e.completeIfReady(tx, &contract, actor)
	})
	if err != nil {
		return err
	}

	e.log.Info("party signed",
		zap.Uint("contract_id", contractID),
		zap.Uint("party_id", partyID),
		zap.String("status", string(contract.Status)))

	e.notifyOwner(&contract, notifier.KindPartySigned, map[string]interface{}{
		"contract_id":     contract.ID,
		"contract_number": contract.ContractNumber,
		"party_id":        partyID,
		"status":          string(contract.Status),
	})
	return nil
}

// loadSigningSession fetches the contract, party and signature session rows.
func (e *Engine) loadSigningSession(contractID, partyID uint) (*model.Contract, *model.ContractParty, *model.ContractSignature, error) {
	var contract model.Contract
	if err := e.db.First(&contract, contractID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, fmt.Errorf("%w: contract %d", ErrNotFound, contractID)
		}
		return nil, nil, nil, err
	}

	var party model.ContractParty
	if err := e.db.Where("id = ? AND contract_id = ?", partyID, contractID).First(&party).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, fmt.Errorf("%w: party %d", ErrNotFound, partyID)
		}
		return nil, nil, nil, err
	}

	var sig model.ContractSignature
	if err := e.db.Where("contract_id = ? AND party_id = ?", contractID, partyID).First(&sig).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, fmt.Errorf("%w: no signing session for party %d", ErrNotFound, partyID)
		}
		return nil, nil, nil, err
	}
	return &contract, &party, &sig, nil
}
