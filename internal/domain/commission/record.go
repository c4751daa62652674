package commission

import (
	"fmt"
	"time"

	"github.com/erp/salesync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeRecord is the aggregate type name used in events
const AggregateTypeRecord = "CommissionRecord"

// Totals are the fiscal-year-scoped activity sums of one customer
type Totals struct {
	Purchase decimal.Decimal
	Invoiced decimal.Decimal
	Paid     decimal.Decimal
}

// Due returns the invoiced amount still unpaid
func (t Totals) Due() decimal.Decimal {
	return t.Invoiced.Sub(t.Paid)
}

// Record is the commission determination of one customer for one fiscal
// year and company. Totals, rule, amount and state are always recomputed,
// never assigned directly.
type Record struct {
	shared.BaseAggregateRoot
	PartnerID        int64
	PartnerName      string
	FiscalYearID     uuid.UUID
	FiscalYearName   string
	CompanyID        int64
	RuleID           *uuid.UUID
	CommissionAmount decimal.Decimal
	State            State
	TotalPurchase    decimal.Decimal
	TotalInvoiced    decimal.Decimal
	TotalPaid        decimal.Decimal
	TotalDue         decimal.Decimal
	PaymentDate      *time.Time
	PayoutDocumentID *uuid.UUID
	PayoutSettled    bool
}

// NewRecord creates a draft commission record for a customer's fiscal year
func NewRecord(partnerID int64, partnerName string, fy *FiscalYear) (*Record, error) {
	if partnerID <= 0 || fy == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "commission record requires a partner and a fiscal year")
	}
	r := &Record{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PartnerID:         partnerID,
		PartnerName:       partnerName,
		FiscalYearID:      fy.ID,
		FiscalYearName:    fy.Name,
		CompanyID:         fy.CompanyID,
		State:             StateDraft,
		CommissionAmount:  decimal.Zero,
		TotalPurchase:     decimal.Zero,
		TotalInvoiced:     decimal.Zero,
		TotalPaid:         decimal.Zero,
		TotalDue:          decimal.Zero,
	}
	r.AddDomainEvent(NewRecordCreatedEvent(r))
	return r, nil
}

// Name returns the display name of the record
func (r *Record) Name() string {
	if r.PartnerName == "" || r.FiscalYearName == "" {
		return "New Commission Record"
	}
	return fmt.Sprintf("Purchase Commission for %s - %s", r.PartnerName, r.FiscalYearName)
}

// HasPayout reports whether a payout document has been issued
func (r *Record) HasPayout() bool {
	return r.PayoutDocumentID != nil
}

// Recompute refreshes totals, tier, amount and state. It returns true when
// the state changed.
func (r *Record) Recompute(totals Totals, rules []*Rule) bool {
	r.TotalPurchase = totals.Purchase
	r.TotalInvoiced = totals.Invoiced
	r.TotalPaid = totals.Paid
	r.TotalDue = totals.Due()

	rule := SelectRule(rules, r.FiscalYearID, r.CompanyID, r.TotalInvoiced)
	if rule != nil {
		id := rule.ID
		r.RuleID = &id
		r.CommissionAmount = rule.Commission(r.TotalInvoiced)
	} else {
		r.RuleID = nil
		r.CommissionAmount = decimal.Zero
	}

	next := DeriveState(StateInputs{
		HasRule:       rule != nil,
		Amount:        r.CommissionAmount,
		Due:           r.TotalDue,
		HasPayout:     r.HasPayout(),
		PayoutSettled: r.PayoutSettled,
	})
	if next == r.State {
		return false
	}
	prev := r.State
	r.State = next
	r.UpdatedAt = time.Now()
	r.AddDomainEvent(NewStateChangedEvent(r, prev))
	return true
}

// SetPaymentDate records when the payout was settled. The date must be
// strictly after the fiscal year end.
func (r *Record) SetPaymentDate(d time.Time, fy *FiscalYear) error {
	if fy == nil || fy.ID != r.FiscalYearID {
		return ErrFiscalYearNotFound
	}
	d = DateOf(d)
	if !d.After(fy.DateTo) {
		return ErrPaymentDateTooEarly
	}
	r.PaymentDate = &d
	r.UpdatedAt = time.Now()
	return nil
}

// CheckPayable verifies that a payout may be issued today
func (r *Record) CheckPayable(today time.Time, fy *FiscalYear) error {
	if r.State == StateInPayment || r.State == StatePaid || r.HasPayout() {
		return ErrAlreadyInPayment
	}
	if fy == nil || fy.ID != r.FiscalYearID {
		return ErrFiscalYearNotFound
	}
	if !fy.HasEndedBy(today) {
		return ErrPayoutBeforeYearEnd
	}
	if !r.CommissionAmount.IsPositive() {
		return ErrNothingToPay
	}
	return nil
}

// MarkInPayment links the posted payout document
func (r *Record) MarkInPayment(documentID uuid.UUID) {
	r.PayoutDocumentID = &documentID
	r.PayoutSettled = false
	prev := r.State
	r.State = StateInPayment
	r.UpdatedAt = time.Now()
	r.AddDomainEvent(NewPayoutIssuedEvent(r, documentID))
	if prev != StateInPayment {
		r.AddDomainEvent(NewStateChangedEvent(r, prev))
	}
}

// MarkPayoutSettled records settlement of the payout on the given date
func (r *Record) MarkPayoutSettled(paidOn time.Time, fy *FiscalYear) error {
	if !r.HasPayout() {
		return ErrPayoutNotFound
	}
	if err := r.SetPaymentDate(paidOn, fy); err != nil {
		return err
	}
	r.PayoutSettled = true
	return nil
}
