package models

import (
	"encoding/json"
	"time"

	"github.com/erp/salesync/internal/domain/commission"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FiscalYearModel is the persistence model for FiscalYear
type FiscalYearModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Name      string    `gorm:"type:varchar(64);not null"`
	CompanyID int64     `gorm:"not null;index:idx_fiscal_years_range,priority:1"`
	DateFrom  time.Time `gorm:"type:date;not null;index:idx_fiscal_years_range,priority:2"`
	DateTo    time.Time `gorm:"type:date;not null;index:idx_fiscal_years_range,priority:3"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FiscalYearModel) TableName() string {
	return "fiscal_years"
}

// ToDomain converts the model to a domain FiscalYear
func (m *FiscalYearModel) ToDomain() *commission.FiscalYear {
	return &commission.FiscalYear{
		ID:        m.ID,
		Name:      m.Name,
		CompanyID: m.CompanyID,
		DateFrom:  commission.DateOf(m.DateFrom),
		DateTo:    commission.DateOf(m.DateTo),
		CreatedAt: m.CreatedAt,
	}
}

// FromDomain populates the model from a domain FiscalYear
func (m *FiscalYearModel) FromDomain(fy *commission.FiscalYear) {
	m.ID = fy.ID
	m.Name = fy.Name
	m.CompanyID = fy.CompanyID
	m.DateFrom = fy.DateFrom
	m.DateTo = fy.DateTo
	m.CreatedAt = fy.CreatedAt
}

// CommissionRuleModel is the persistence model for Rule
type CommissionRuleModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	CompanyID         int64           `gorm:"not null;index"`
	FiscalYearID      *uuid.UUID      `gorm:"type:uuid;index"`
	PurchaseTarget    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CommissionPercent decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	Active            bool            `gorm:"not null"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CommissionRuleModel) TableName() string {
	return "commission_rules"
}

// ToDomain converts the model to a domain Rule
func (m *CommissionRuleModel) ToDomain() *commission.Rule {
	return &commission.Rule{
		ID:                m.ID,
		CompanyID:         m.CompanyID,
		FiscalYearID:      m.FiscalYearID,
		PurchaseTarget:    m.PurchaseTarget,
		CommissionPercent: m.CommissionPercent,
		Active:            m.Active,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain Rule
func (m *CommissionRuleModel) FromDomain(r *commission.Rule) {
	m.ID = r.ID
	m.CompanyID = r.CompanyID
	m.FiscalYearID = r.FiscalYearID
	m.PurchaseTarget = r.PurchaseTarget
	m.CommissionPercent = r.CommissionPercent
	m.Active = r.Active
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}

// CommissionRecordModel is the persistence model for the commission Record aggregate
type CommissionRecordModel struct {
	AggregateModel
	PartnerID        int64           `gorm:"not null;uniqueIndex:uq_commission_record_key,priority:1"`
	PartnerName      string          `gorm:"type:varchar(255);not null;default:''"`
	FiscalYearID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_commission_record_key,priority:2"`
	FiscalYearName   string          `gorm:"type:varchar(64);not null;default:''"`
	CompanyID        int64           `gorm:"not null;uniqueIndex:uq_commission_record_key,priority:3;index"`
	RuleID           *uuid.UUID      `gorm:"type:uuid"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	State            string          `gorm:"type:varchar(20);not null;default:'draft';index"`
	TotalPurchase    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalInvoiced    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalPaid        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalDue         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	PaymentDate      *time.Time      `gorm:"type:date"`
	PayoutDocumentID *uuid.UUID      `gorm:"type:uuid;index"`
	PayoutSettled    bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (CommissionRecordModel) TableName() string {
	return "commission_records"
}

// ToDomain converts the model to a domain Record
func (m *CommissionRecordModel) ToDomain() *commission.Record {
	r := &commission.Record{
		BaseAggregateRoot: m.ToAggregateRoot(),
		PartnerID:         m.PartnerID,
		PartnerName:       m.PartnerName,
		FiscalYearID:      m.FiscalYearID,
		FiscalYearName:    m.FiscalYearName,
		CompanyID:         m.CompanyID,
		RuleID:            m.RuleID,
		CommissionAmount:  m.CommissionAmount,
		State:             commission.State(m.State),
		TotalPurchase:     m.TotalPurchase,
		TotalInvoiced:     m.TotalInvoiced,
		TotalPaid:         m.TotalPaid,
		TotalDue:          m.TotalDue,
		PayoutDocumentID:  m.PayoutDocumentID,
		PayoutSettled:     m.PayoutSettled,
	}
	if m.PaymentDate != nil {
		d := commission.DateOf(*m.PaymentDate)
		r.PaymentDate = &d
	}
	return r
}

// FromDomain populates the model from a domain Record
func (m *CommissionRecordModel) FromDomain(r *commission.Record) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.PartnerID = r.PartnerID
	m.PartnerName = r.PartnerName
	m.FiscalYearID = r.FiscalYearID
	m.FiscalYearName = r.FiscalYearName
	m.CompanyID = r.CompanyID
	m.RuleID = r.RuleID
	m.CommissionAmount = r.CommissionAmount
	m.State = string(r.State)
	m.TotalPurchase = r.TotalPurchase
	m.TotalInvoiced = r.TotalInvoiced
	m.TotalPaid = r.TotalPaid
	m.TotalDue = r.TotalDue
	m.PaymentDate = r.PaymentDate
	m.PayoutDocumentID = r.PayoutDocumentID
	m.PayoutSettled = r.PayoutSettled
}

// ActivityEntryModel is one accounting activity ledger entry
type ActivityEntryModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key"`
	Kind       string          `gorm:"type:varchar(32);not null;index:idx_activity_partner,priority:3"`
	PartnerID  int64           `gorm:"not null;index:idx_activity_partner,priority:1"`
	CompanyID  int64           `gorm:"not null;index:idx_activity_partner,priority:2"`
	Date       time.Time       `gorm:"type:date;not null;index:idx_activity_partner,priority:4"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Reference  string          `gorm:"type:varchar(128);not null;default:''"`
	DocumentID *uuid.UUID      `gorm:"type:uuid"`
	CreatedAt  time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ActivityEntryModel) TableName() string {
	return "activity_entries"
}

// ToDomain converts the model to a domain ActivityEntry
func (m *ActivityEntryModel) ToDomain() *commission.ActivityEntry {
	return &commission.ActivityEntry{
		ID:         m.ID,
		Kind:       commission.ActivityKind(m.Kind),
		PartnerID:  m.PartnerID,
		CompanyID:  m.CompanyID,
		Date:       commission.DateOf(m.Date),
		Amount:     m.Amount,
		Reference:  m.Reference,
		DocumentID: m.DocumentID,
		CreatedAt:  m.CreatedAt,
	}
}

// FromDomain populates the model from a domain ActivityEntry
func (m *ActivityEntryModel) FromDomain(e *commission.ActivityEntry) {
	m.ID = e.ID
	m.Kind = string(e.Kind)
	m.PartnerID = e.PartnerID
	m.CompanyID = e.CompanyID
	m.Date = e.Date
	m.Amount = e.Amount
	m.Reference = e.Reference
	m.DocumentID = e.DocumentID
	m.CreatedAt = e.CreatedAt
}

// PayoutItemModel is the service item placed on payout documents
type PayoutItemModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PayoutItemModel) TableName() string {
	return "payout_items"
}

// ToDomain converts the model to a domain ServiceItem
func (m *PayoutItemModel) ToDomain() *commission.ServiceItem {
	return &commission.ServiceItem{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt}
}

// FromDomain populates the model from a domain ServiceItem
func (m *PayoutItemModel) FromDomain(item *commission.ServiceItem) {
	m.ID = item.ID
	m.Name = item.Name
	m.CreatedAt = item.CreatedAt
}

// PayoutDocumentModel is the credit note issued for a commission
type PayoutDocumentModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	CommissionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	PartnerID    int64           `gorm:"not null"`
	CompanyID    int64           `gorm:"not null"`
	Ref          string          `gorm:"type:varchar(255);not null"`
	Date         time.Time       `gorm:"type:date;not null"`
	State        string          `gorm:"type:varchar(20);not null"`
	PaymentState string          `gorm:"type:varchar(20);not null"`
	AmountTotal  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	LinesJSON    string          `gorm:"type:jsonb;column:lines;not null"`
	PostedAt     *time.Time
	PaidAt       *time.Time `gorm:"type:date"`
	CreatedAt    time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PayoutDocumentModel) TableName() string {
	return "payout_documents"
}

type payoutLineJSON struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	PriceUnit decimal.Decimal `json:"price_unit"`
}

// ToDomain converts the model to a domain PayoutDocument
func (m *PayoutDocumentModel) ToDomain() (*commission.PayoutDocument, error) {
	var lines []payoutLineJSON
	if m.LinesJSON != "" {
		if err := json.Unmarshal([]byte(m.LinesJSON), &lines); err != nil {
			return nil, err
		}
	}
	doc := &commission.PayoutDocument{
		ID:           m.ID,
		CommissionID: m.CommissionID,
		PartnerID:    m.PartnerID,
		CompanyID:    m.CompanyID,
		Ref:          m.Ref,
		Date:         commission.DateOf(m.Date),
		State:        m.State,
		PaymentState: m.PaymentState,
		PostedAt:     m.PostedAt,
		CreatedAt:    m.CreatedAt,
	}
	if m.PaidAt != nil {
		d := commission.DateOf(*m.PaidAt)
		doc.PaidAt = &d
	}
	for _, l := range lines {
		doc.Lines = append(doc.Lines, commission.PayoutLine{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			PriceUnit: l.PriceUnit,
		})
	}
	return doc, nil
}

// FromDomain populates the model from a domain PayoutDocument
func (m *PayoutDocumentModel) FromDomain(doc *commission.PayoutDocument) error {
	lines := make([]payoutLineJSON, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		lines = append(lines, payoutLineJSON(l))
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	m.ID = doc.ID
	m.CommissionID = doc.CommissionID
	m.PartnerID = doc.PartnerID
	m.CompanyID = doc.CompanyID
	m.Ref = doc.Ref
	m.Date = doc.Date
	m.State = doc.State
	m.PaymentState = doc.PaymentState
	m.AmountTotal = doc.Total()
	m.LinesJSON = string(raw)
	m.PostedAt = doc.PostedAt
	m.PaidAt = doc.PaidAt
	m.CreatedAt = doc.CreatedAt
	return nil
}
