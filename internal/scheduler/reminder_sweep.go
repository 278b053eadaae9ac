package scheduler

import (
	"time"

	"contract-service/internal/model"
	"contract-service/pkg/notifier"

	"go.uber.org/zap"
)

// RunReminderSweep nudges parties whose signing session has been pending
// longer than the grace period and escalates past-due approval steps. The
// last_reminder_sent_at stamp makes both halves idempotent: re-running the
// sweep on the same day selects nothing new.
func (s *Scheduler) RunReminderSweep(now time.Time) Result {
	var res Result
	cutoff := now.AddDate(0, 0, -s.cfg.ReminderGraceDays)

	// Pending signatures older than the grace period whose session has not
	// expired and which were not reminded within the grace period.
	var signatures []model.ContractSignature
	err := s.db.Where(
		"code_verified = ? AND created_at < ? AND expires_at > ? AND (last_reminder_sent_at IS NULL OR last_reminder_sent_at < ?)",
		false, cutoff, now, cutoff,
	).Find(&signatures).Error
	if err != nil {
		s.log.Error("reminder sweep: signature scan failed", zap.Error(err))
		res.Failed++
		return res
	}

	for i := range signatures {
		sig := &signatures[i]
		res.Processed++

		var contract model.Contract
		if err := s.db.First(&contract, sig.ContractID).Error; err != nil {
			res.Failed++
			s.log.Error("reminder sweep: contract load failed",
				zap.Uint("signature_id", sig.ID), zap.Error(err))
			continue
		}
		if contract.Status != model.StatusPending && contract.Status != model.StatusPartiallySigned {
			continue
		}

		var party model.ContractParty
		if err := s.db.First(&party, sig.PartyID).Error; err != nil {
			res.Failed++
			s.log.Error("reminder sweep: party load failed",
				zap.Uint("signature_id", sig.ID), zap.Error(err))
			continue
		}
		recipient := party.Email
		if recipient == "" {
			recipient = party.Phone
		}
		if recipient == "" {
			continue
		}

		err := s.notifier.Send(recipient, notifier.KindSignatureReminder, map[string]interface{}{
			"contract_id":     contract.ID,
			"contract_number": contract.ContractNumber,
			"party_name":      party.Name,
			"expires_at":      sig.ExpiresAt,
		})
		if err != nil {
			res.Failed++
			s.log.Error("reminder sweep: notification failed",
				zap.Uint("signature_id", sig.ID), zap.Error(err))
			continue
		}
		if err := s.db.Model(sig).Update("last_reminder_sent_at", now).Error; err != nil {
			res.Failed++
			s.log.Error("reminder sweep: stamp failed",
				zap.Uint("signature_id", sig.ID), zap.Error(err))
			continue
		}
		res.Notified++
	}

	res.add(s.escalateOverdueApprovals(now, cutoff))
	return res
}

// escalateOverdueApprovals notifies approvers of pending steps past their due
// date. Steps are never auto-approved or auto-rejected; escalation repeats at
// most once per grace period.
func (s *Scheduler) escalateOverdueApprovals(now, cutoff time.Time) Result {
	var res Result

	var steps []model.ContractApproval
	err := s.db.Where(
		"status = ? AND due_at IS NOT NULL AND due_at < ? AND (last_reminder_sent_at IS NULL OR last_reminder_sent_at < ?)",
		model.StepPending, now, cutoff,
	).Find(&steps).Error
	if err != nil {
		s.log.Error("reminder sweep: approval scan failed", zap.Error(err))
		res.Failed++
		return res
	}

	for i := range steps {
		step := &steps[i]
		res.Processed++
		if step.ApproverEmail == "" {
			continue
		}

		var contract model.Contract
		if err := s.db.First(&contract, step.ContractID).Error; err != nil {
			res.Failed++
			continue
		}

		err := s.notifier.Send(step.ApproverEmail, notifier.KindApprovalRequested, map[string]interface{}{
			"contract_id":     contract.ID,
			"contract_number": contract.ContractNumber,
			"step_number":     step.StepNumber,
			"due_at":          step.DueAt,
			"overdue":         true,
		})
		if err != nil {
			res.Failed++
			s.log.Error("reminder sweep: escalation failed",
				zap.Uint("approval_id", step.ID), zap.Error(err))
			continue
		}
		if err := s.db.Model(step).Update("last_reminder_sent_at", now).Error; err != nil {
			res.Failed++
			continue
		}
		res.Notified++
	}
	return res
}

func (r *Result) add(other Result) {
	r.Processed += other.Processed
	r.Notified += other.Notified
	r.Failed += other.Failed
}
