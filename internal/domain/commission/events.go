package commission

import (
	"time"

	"github.com/erp/salesync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Commission event types
const (
	EventTypeRecordCreated = "CommissionRecordCreated"
	EventTypeStateChanged  = "CommissionStateChanged"
	EventTypePayoutIssued  = "CommissionPayoutIssued"
)

// Accounting activity event types consumed by the commission engine
const (
	EventTypeInvoicePosted       = "InvoicePosted"
	EventTypePaymentSettled      = "PaymentSettled"
	EventTypeSalesOrderConfirmed = "SalesOrderConfirmed"
	EventTypePayoutSettled       = "PayoutSettled"
)

// AggregateTypeActivity is the aggregate type of accounting activity events
const AggregateTypeActivity = "AccountingActivity"

// RecordCreatedEvent is raised when a commission record is opened
type RecordCreatedEvent struct {
	shared.BaseDomainEvent
	PartnerID    int64     `json:"partner_id"`
	FiscalYearID uuid.UUID `json:"fiscal_year_id"`
	CompanyID    int64     `json:"company_id"`
}

// NewRecordCreatedEvent creates a RecordCreatedEvent
func NewRecordCreatedEvent(r *Record) *RecordCreatedEvent {
	return &RecordCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRecordCreated, AggregateTypeRecord, r.ID),
		PartnerID:       r.PartnerID,
		FiscalYearID:    r.FiscalYearID,
		CompanyID:       r.CompanyID,
	}
}

// StateChangedEvent is raised when a recomputation moves the record
type StateChangedEvent struct {
	shared.BaseDomainEvent
	PartnerID int64           `json:"partner_id"`
	From      State           `json:"from"`
	To        State           `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
}

// NewStateChangedEvent creates a StateChangedEvent
func NewStateChangedEvent(r *Record, from State) *StateChangedEvent {
	return &StateChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStateChanged, AggregateTypeRecord, r.ID),
		PartnerID:       r.PartnerID,
		From:            from,
		To:              r.State,
		Amount:          r.CommissionAmount,
	}
}

// PayoutIssuedEvent is raised when a credit note is posted for a record
type PayoutIssuedEvent struct {
	shared.BaseDomainEvent
	PartnerID  int64           `json:"partner_id"`
	DocumentID uuid.UUID       `json:"document_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// NewPayoutIssuedEvent creates a PayoutIssuedEvent
func NewPayoutIssuedEvent(r *Record, documentID uuid.UUID) *PayoutIssuedEvent {
	return &PayoutIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayoutIssued, AggregateTypeRecord, r.ID),
		PartnerID:       r.PartnerID,
		DocumentID:      documentID,
		Amount:          r.CommissionAmount,
	}
}

// ActivityEvent notifies that accounting activity affecting a customer's
// commission was recorded by the host accounting subsystem.
type ActivityEvent struct {
	shared.BaseDomainEvent
	Kind       ActivityKind    `json:"kind"`
	PartnerID  int64           `json:"partner_id"`
	CompanyID  int64           `json:"company_id"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	DocumentID *uuid.UUID      `json:"document_id,omitempty"`
}

// NewActivityEvent creates the event for a recorded activity entry
func NewActivityEvent(e *ActivityEntry) *ActivityEvent {
	return &ActivityEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(e.Kind.EventType(), AggregateTypeActivity, e.ID),
		Kind:            e.Kind,
		PartnerID:       e.PartnerID,
		CompanyID:       e.CompanyID,
		Date:            e.Date,
		Amount:          e.Amount,
		DocumentID:      e.DocumentID,
	}
}
