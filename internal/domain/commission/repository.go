package commission

import (
	"context"
	"time"

	"github.com/erp/salesync/internal/domain/shared"
	"github.com/google/uuid"
)

// RecordFilter narrows record listings
type RecordFilter struct {
	shared.Filter
	PartnerID    *int64
	FiscalYearID *uuid.UUID
	CompanyID    *int64
	State        *State
}

// RecordRepository persists commission records. Create rejects a second
// record for the same (partner, fiscal year, company) with ErrDuplicateRecord.
type RecordRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	FindByKey(ctx context.Context, partnerID int64, fiscalYearID uuid.UUID, companyID int64) (*Record, error)
	FindByPayoutDocument(ctx context.Context, documentID uuid.UUID) (*Record, error)
	FindAll(ctx context.Context, filter RecordFilter) ([]*Record, int64, error)
	FindIDsByCompany(ctx context.Context, companyID *int64) ([]uuid.UUID, error)
	Create(ctx context.Context, r *Record) error
	Save(ctx context.Context, r *Record) error
}

// RuleRepository persists commission rules
type RuleRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	FindActiveByCompany(ctx context.Context, companyID int64) ([]*Rule, error)
	FindAll(ctx context.Context, companyID *int64) ([]*Rule, error)
	Save(ctx context.Context, r *Rule) error
}

// FiscalYearRepository persists fiscal years
type FiscalYearRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*FiscalYear, error)
	FindContaining(ctx context.Context, companyID int64, date time.Time) (*FiscalYear, error)
	Save(ctx context.Context, fy *FiscalYear) error
}

// ActivityLedger records accounting activity and sums it per customer
type ActivityLedger interface {
	Append(ctx context.Context, e *ActivityEntry) error
	Totals(ctx context.Context, partnerID, companyID int64, from, to time.Time) (Totals, error)
}

// PayoutIssuer is the host's document-posting primitive. Issue claims the
// record for the document and stores the document atomically. A record that
// already carries a payout yields ErrAlreadyInPayment; one modified since it
// was read yields shared.ErrConcurrencyConflict. Nothing is written then.
type PayoutIssuer interface {
	Issue(ctx context.Context, rec *Record, doc *PayoutDocument) error
	FindByID(ctx context.Context, id uuid.UUID) (*PayoutDocument, error)
	Save(ctx context.Context, doc *PayoutDocument) error
}

// ServiceItemCatalog finds or creates the payout service item
type ServiceItemCatalog interface {
	FindOrCreate(ctx context.Context, name string) (*ServiceItem, error)
}

// PartnerDirectory resolves customer display names
type PartnerDirectory interface {
	PartnerName(ctx context.Context, partnerID int64) (string, error)
}
