package model

import (
	"strconv"
	"strings"
	"time"
)

// ContractNumbering is the sequence counter for one (company, contract type,
// year) scope. LastNumber only ever increases; the increment is performed as a
// single atomic update inside the allocator's transaction.
type ContractNumbering struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	CompanyID      uint   `json:"company_id" gorm:"not null;uniqueIndex:idx_numbering_scope"`
	ContractTypeID uint   `json:"contract_type_id" gorm:"not null;uniqueIndex:idx_numbering_scope"`
	Year           int    `json:"year" gorm:"not null;uniqueIndex:idx_numbering_scope"`
	LastNumber     int    `json:"last_number" gorm:"default:0"`
	Prefix         string `json:"prefix" gorm:"type:varchar(20)"`
	Format         string `json:"format" gorm:"type:varchar(100)"`
	// ReservedNumbers holds comma-separated sequence values the allocator
	// must skip, e.g. numbers already used by imported legacy contracts.
	ReservedNumbers string `json:"reserved_numbers" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultNumberFormat renders like "CT-2025-0042".
const DefaultNumberFormat = "{prefix}-{year}-{number}"

// Reserved reports whether n is in the reserved set.
func (c *ContractNumbering) Reserved(n int) bool {
	if c.ReservedNumbers == "" {
		return false
	}
	for _, part := range strings.Split(c.ReservedNumbers, ",") {
		if v, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && v == n {
			return true
		}
	}
	return false
}

// Render substitutes {prefix}, {year} and {number} (zero-padded to four
// digits) in the scope's format template.
func (c *ContractNumbering) Render(n int) string {
	format := c.Format
	if format == "" {
		format = DefaultNumberFormat
	}
	out := strings.ReplaceAll(format, "{prefix}", c.Prefix)
	out = strings.ReplaceAll(out, "{year}", strconv.Itoa(c.Year))
	out = strings.ReplaceAll(out, "{number}", padNumber(n))
	return out
}

func padNumber(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}
