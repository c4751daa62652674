package commission

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActivityKind classifies accounting activity
type ActivityKind string

const (
	ActivitySaleConfirmed  ActivityKind = "sale_confirmed"
	ActivityInvoicePosted  ActivityKind = "invoice_posted"
	ActivityPaymentSettled ActivityKind = "payment_settled"
	ActivityPayoutSettled  ActivityKind = "payout_settled"
)

// IsValid reports whether the kind is known
func (k ActivityKind) IsValid() bool {
	return k.EventType() != ""
}

// EventType returns the event type raised for the kind
func (k ActivityKind) EventType() string {
	switch k {
	case ActivitySaleConfirmed:
		return EventTypeSalesOrderConfirmed
	case ActivityInvoicePosted:
		return EventTypeInvoicePosted
	case ActivityPaymentSettled:
		return EventTypePaymentSettled
	case ActivityPayoutSettled:
		return EventTypePayoutSettled
	}
	return ""
}

// ActivityEntry is a confirmed sales order, a posted customer invoice, a
// settled inbound payment or a settled payout credit note.
type ActivityEntry struct {
	ID         uuid.UUID
	Kind       ActivityKind
	PartnerID  int64
	CompanyID  int64
	Date       time.Time
	Amount     decimal.Decimal
	Reference  string
	DocumentID *uuid.UUID
	CreatedAt  time.Time
}

// NewActivityEntry validates and creates an activity entry
func NewActivityEntry(kind ActivityKind, partnerID, companyID int64, date time.Time, amount decimal.Decimal, reference string) (*ActivityEntry, error) {
	if !kind.IsValid() || partnerID <= 0 || companyID <= 0 || date.IsZero() || amount.IsNegative() {
		return nil, ErrInvalidActivity
	}
	return &ActivityEntry{
		ID:        uuid.New(),
		Kind:      kind,
		PartnerID: partnerID,
		CompanyID: companyID,
		Date:      DateOf(date),
		Amount:    amount,
		Reference: reference,
		CreatedAt: time.Now(),
	}, nil
}
