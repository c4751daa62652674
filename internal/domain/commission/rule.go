package commission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	minPercent = decimal.NewFromInt(1)
	maxPercent = decimal.NewFromInt(100)
	hundred    = decimal.NewFromInt(100)
)

// Rule is a commission tier: customers whose invoiced total reaches the
// purchase target earn the given percentage of that total.
type Rule struct {
	ID                uuid.UUID
	CompanyID         int64
	FiscalYearID      *uuid.UUID // nil applies to any year
	PurchaseTarget    decimal.Decimal
	CommissionPercent decimal.Decimal
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewRule creates an active commission rule
func NewRule(companyID int64, fiscalYearID *uuid.UUID, target, percent decimal.Decimal) (*Rule, error) {
	now := time.Now()
	r := &Rule{
		ID:                uuid.New(),
		CompanyID:         companyID,
		FiscalYearID:      fiscalYearID,
		PurchaseTarget:    target,
		CommissionPercent: percent,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the target and percent bounds
func (r *Rule) Validate() error {
	if !r.PurchaseTarget.IsPositive() {
		return ErrInvalidTarget
	}
	if r.CommissionPercent.LessThan(minPercent) || r.CommissionPercent.GreaterThan(maxPercent) {
		return ErrInvalidPercent
	}
	return nil
}

// Activate returns the rule to tier selection
func (r *Rule) Activate() {
	if r.Active {
		return
	}
	r.Active = true
	r.UpdatedAt = time.Now()
}

// Deactivate withdraws the rule from tier selection. Records keep the
// commission already computed until they are recomputed.
func (r *Rule) Deactivate() {
	if !r.Active {
		return
	}
	r.Active = false
	r.UpdatedAt = time.Now()
}

// Name returns the display name, e.g. "5% on 1000++"
func (r *Rule) Name() string {
	return fmt.Sprintf("%s%% on %s++", r.CommissionPercent.String(), r.PurchaseTarget.String())
}

// AppliesTo reports whether the rule can be selected for a record
func (r *Rule) AppliesTo(fiscalYearID uuid.UUID, companyID int64) bool {
	if !r.Active || r.CompanyID != companyID {
		return false
	}
	return r.FiscalYearID == nil || *r.FiscalYearID == fiscalYearID
}

// ConflictsWith reports whether two active rules share a purchase target in
// the same company and fiscal year scope.
func (r *Rule) ConflictsWith(other *Rule) bool {
	if r.ID == other.ID || !r.Active || !other.Active {
		return false
	}
	if r.CompanyID != other.CompanyID || !r.PurchaseTarget.Equal(other.PurchaseTarget) {
		return false
	}
	switch {
	case r.FiscalYearID == nil && other.FiscalYearID == nil:
		return true
	case r.FiscalYearID == nil || other.FiscalYearID == nil:
		return false
	}
	return *r.FiscalYearID == *other.FiscalYearID
}

// Commission returns the commission earned on an invoiced total
func (r *Rule) Commission(invoiced decimal.Decimal) decimal.Decimal {
	return invoiced.Mul(r.CommissionPercent).Div(hundred)
}

// SelectRule picks the highest tier reached by the invoiced total among the
// rules applicable to the fiscal year and company. A year-specific rule wins
// over a year-agnostic one with the same target.
func SelectRule(rules []*Rule, fiscalYearID uuid.UUID, companyID int64, invoiced decimal.Decimal) *Rule {
	var best *Rule
	for _, r := range rules {
		if !r.AppliesTo(fiscalYearID, companyID) || r.PurchaseTarget.GreaterThan(invoiced) {
			continue
		}
		if best == nil || r.PurchaseTarget.GreaterThan(best.PurchaseTarget) {
			best = r
			continue
		}
		if r.PurchaseTarget.Equal(best.PurchaseTarget) && best.FiscalYearID == nil && r.FiscalYearID != nil {
			best = r
		}
	}
	return best
}
