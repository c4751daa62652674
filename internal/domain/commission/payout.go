package commission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultPayoutItemName is the service item used on payout credit notes
const DefaultPayoutItemName = "Purchase Commission"

// ServiceItem is a non-stock product used on payout documents.
// It is shared across companies.
type ServiceItem struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// NewServiceItem creates a service item
func NewServiceItem(name string) *ServiceItem {
	return &ServiceItem{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
}

// Payout document states
const (
	PayoutStateDraft  = "draft"
	PayoutStatePosted = "posted"
)

// Payout payment states
const (
	PaymentStateNotPaid = "not_paid"
	PaymentStatePaid    = "paid"
)

// PayoutLine is a single credit note line
type PayoutLine struct {
	ItemID    uuid.UUID
	Name      string
	Quantity  decimal.Decimal
	PriceUnit decimal.Decimal
}

// Subtotal returns quantity times unit price
func (l PayoutLine) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.PriceUnit)
}

// PayoutDocument is the credit note settling a commission
type PayoutDocument struct {
	ID           uuid.UUID
	CommissionID uuid.UUID
	PartnerID    int64
	CompanyID    int64
	Ref          string
	Date         time.Time
	State        string
	PaymentState string
	Lines        []PayoutLine
	PostedAt     *time.Time
	PaidAt       *time.Time
	CreatedAt    time.Time
}

// NewPayoutDocument drafts a credit note for a commission record
func NewPayoutDocument(r *Record, item *ServiceItem, today time.Time) *PayoutDocument {
	return &PayoutDocument{
		ID:           uuid.New(),
		CommissionID: r.ID,
		PartnerID:    r.PartnerID,
		CompanyID:    r.CompanyID,
		Ref:          fmt.Sprintf("Commission for %s - %s", r.PartnerName, r.FiscalYearName),
		Date:         DateOf(today),
		State:        PayoutStateDraft,
		PaymentState: PaymentStateNotPaid,
		Lines: []PayoutLine{{
			ItemID:    item.ID,
			Name:      fmt.Sprintf("Commission for %s", r.FiscalYearName),
			Quantity:  decimal.NewFromInt(1),
			PriceUnit: r.CommissionAmount,
		}},
		CreatedAt: time.Now(),
	}
}

// Total returns the document total
func (d *PayoutDocument) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Post validates and posts the document
func (d *PayoutDocument) Post() error {
	if d.State == PayoutStatePosted {
		return ErrPayoutAlreadyPosted
	}
	now := time.Now()
	d.State = PayoutStatePosted
	d.PostedAt = &now
	return nil
}

// Settle marks the document fully paid on the given date
func (d *PayoutDocument) Settle(paidOn time.Time) error {
	if d.State != PayoutStatePosted {
		return ErrPayoutNotPosted
	}
	paidOn = DateOf(paidOn)
	d.PaymentState = PaymentStatePaid
	d.PaidAt = &paidOn
	return nil
}
