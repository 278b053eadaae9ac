package engine

import (
	"fmt"

	"contract-service/internal/model"

	"gorm.io/gorm"
)

// allocationCap bounds the reserved-number skip loop. A scope whose reserved
// set swallows this many consecutive values is misconfigured.
const allocationCap = 1000

// DefaultNumberPrefix seeds auto-created numbering scopes.
const DefaultNumberPrefix = "CT"

// Allocator issues unique, gapless-per-scope contract numbers.
type Allocator struct {
	db *gorm.DB
}

// NewAllocator returns an allocator backed by db.
func NewAllocator(db *gorm.DB) *Allocator {
	return &Allocator{db: db}
}

// Allocate increments the (company, contract type, year) counter and returns
// the rendered contract number. The increment is a single atomic UPDATE inside
// one transaction, so concurrent allocations in the same scope serialize on
// the counter row and never observe the same value. Reserved values are
// skipped by repeating the increment.
func (a *Allocator) Allocate(companyID, contractTypeID uint, year int) (string, error) {
	var rendered string

	err := a.db.Transaction(func(tx *gorm.DB) error {
		scope := model.ContractNumbering{
			CompanyID:      companyID,
			ContractTypeID: contractTypeID,
			Year:           year,
		}
		if err := tx.Where(
			"company_id = ? AND contract_type_id = ? AND year = ?",
			companyID, contractTypeID, year,
		).Attrs(model.ContractNumbering{
			Prefix: DefaultNumberPrefix,
			Format: model.DefaultNumberFormat,
		}).FirstOrCreate(&scope).Error; err != nil {
			return fmt.Errorf("load numbering scope: %w", err)
		}

		for i := 0; i < allocationCap; i++ {
			if err := tx.Model(&model.ContractNumbering{}).
				Where("id = ?", scope.ID).
				Update("last_number", gorm.Expr("last_number + 1")).Error; err != nil {
				return fmt.Errorf("increment numbering scope: %w", err)
			}
			if err := tx.First(&scope, scope.ID).Error; err != nil {
				return err
			}
			if scope.Reserved(scope.LastNumber) {
				continue
			}
			rendered = scope.Render(scope.LastNumber)
			return nil
		}
		return fmt.Errorf("%w: scope company=%d type=%d year=%d",
			ErrAllocationExhausted, companyID, contractTypeID, year)
	})
	if err != nil {
		return "", err
	}
	return rendered, nil
}
