package scheduler

import (
	"time"

	"contract-service/internal/model"
	"contract-service/pkg/notifier"

	"go.uber.org/zap"
)

// expiryHorizons are the advance-warning windows, in days before end_date.
// Each horizon has its own notified-at marker column so a contract is warned
// exactly once per horizon no matter how often the sweep runs.
var expiryHorizons = []struct {
	days   int
	column string
}{
	{30, "expiry_notified_30_at"},
	{14, "expiry_notified_14_at"},
	{7, "expiry_notified_7_at"},
}

// RunExpirySweep is the daily lifecycle sweep: it activates signed contracts
// whose start date arrived, expires active contracts past their end date, and
// sends the per-horizon expiry warnings. A failure on one contract is logged
// and skipped; the row is retried on the next run.
func (s *Scheduler) RunExpirySweep(now time.Time) Result {
	var res Result
	today := dayStart(now)

	// Future-dated contracts whose start date arrived.
	var toActivate []model.Contract
	if err := s.db.Where("status = ? AND start_date IS NOT NULL AND start_date <= ?",
		model.StatusSigned, now).Find(&toActivate).Error; err != nil {
		s.log.Error("expiry sweep: activation scan failed", zap.Error(err))
		res.Failed++
	}
	for i := range toActivate {
		res.Processed++
		if err := s.engine.Activate(toActivate[i].ID); err != nil {
			res.Failed++
			s.log.Error("expiry sweep: activation failed",
				zap.Uint("contract_id", toActivate[i].ID), zap.Error(err))
			continue
		}
		s.log.Info("contract activated", zap.Uint("contract_id", toActivate[i].ID))
	}

	// Active contracts past their end date.
	var toExpire []model.Contract
	if err := s.db.Where("status = ? AND end_date IS NOT NULL AND end_date < ?",
		model.StatusActive, today).Find(&toExpire).Error; err != nil {
		s.log.Error("expiry sweep: expiration scan failed", zap.Error(err))
		res.Failed++
	}
	for i := range toExpire {
		res.Processed++
		if err := s.engine.Expire(toExpire[i].ID); err != nil {
			res.Failed++
			s.log.Error("expiry sweep: expiration failed",
				zap.Uint("contract_id", toExpire[i].ID), zap.Error(err))
			continue
		}
		s.log.Info("contract expired", zap.Uint("contract_id", toExpire[i].ID))
	}

	// Advance warnings for contracts ending in exactly {30,14,7} days.
	for _, horizon := range expiryHorizons {
		bucketStart := today.AddDate(0, 0, horizon.days)
		bucketEnd := bucketStart.AddDate(0, 0, 1)

		var expiring []model.Contract
		err := s.db.Where("status IN ? AND end_date >= ? AND end_date < ? AND "+horizon.column+" IS NULL",
			[]model.ContractStatus{model.StatusSigned, model.StatusActive},
			bucketStart, bucketEnd).Find(&expiring).Error
		if err != nil {
			s.log.Error("expiry sweep: horizon scan failed",
				zap.Int("horizon_days", horizon.days), zap.Error(err))
			res.Failed++
			continue
		}

		for i := range expiring {
			contract := &expiring[i]
			res.Processed++
			if contract.OwnerEmail == "" {
				continue
			}
			err := s.notifier.Send(contract.OwnerEmail, notifier.KindContractExpiring, map[string]interface{}{
				"contract_id":     contract.ID,
				"contract_number": contract.ContractNumber,
				"end_date":        contract.EndDate,
				"days":            horizon.days,
			})
			if err != nil {
				res.Failed++
				s.log.Error("expiry sweep: notification failed",
					zap.Uint("contract_id", contract.ID),
					zap.Int("horizon_days", horizon.days),
					zap.Error(err))
				continue
			}
			// Stamp the marker only after a successful send so a failed
			// row is retried next run.
			if err := s.db.Model(contract).Update(horizon.column, now).Error; err != nil {
				res.Failed++
				s.log.Error("expiry sweep: marker update failed",
					zap.Uint("contract_id", contract.ID), zap.Error(err))
				continue
			}
			res.Notified++
		}
	}
	return res
}
