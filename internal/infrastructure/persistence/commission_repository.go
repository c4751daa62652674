package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/salesync/internal/domain/commission"
	"github.com/erp/salesync/internal/domain/shared"
	"github.com/erp/salesync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ---------------------------------------------------------------------------
// Commission records
// ---------------------------------------------------------------------------

// GormCommissionRecordRepository implements commission.RecordRepository using GORM
type GormCommissionRecordRepository struct {
	db *gorm.DB
}

// NewGormCommissionRecordRepository creates a new GormCommissionRecordRepository
func NewGormCommissionRecordRepository(db *gorm.DB) *GormCommissionRecordRepository {
	return &GormCommissionRecordRepository{db: db}
}

// FindByID finds a record by ID
func (r *GormCommissionRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*commission.Record, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByKey finds the record of a customer for a fiscal year and company
func (r *GormCommissionRecordRepository) FindByKey(ctx context.Context, partnerID int64, fiscalYearID uuid.UUID, companyID int64) (*commission.Record, error) {
	return r.findOne(ctx, "partner_id = ? AND fiscal_year_id = ? AND company_id = ?", partnerID, fiscalYearID, companyID)
}

// FindByPayoutDocument finds the record settled by a payout document
func (r *GormCommissionRecordRepository) FindByPayoutDocument(ctx context.Context, documentID uuid.UUID) (*commission.Record, error) {
	return r.findOne(ctx, "payout_document_id = ?", documentID)
}

func (r *GormCommissionRecordRepository) findOne(ctx context.Context, query string, args ...any) (*commission.Record, error) {
	var m models.CommissionRecordModel
	err := r.db.WithContext(ctx).Where(query, args...).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, commission.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindAll lists records matching the filter with the total count
func (r *GormCommissionRecordRepository) FindAll(ctx context.Context, filter commission.RecordFilter) ([]*commission.Record, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.CommissionRecordModel{})
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.FiscalYearID != nil {
		query = query.Where("fiscal_year_id = ?", *filter.FiscalYearID)
	}
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.State != nil {
		query = query.Where("state = ?", string(*filter.State))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, CommissionRecordSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(orderBy + " " + orderDir)
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	var rows []models.CommissionRecordModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*commission.Record, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

// FindIDsByCompany returns every record id, optionally for one company
func (r *GormCommissionRecordRepository) FindIDsByCompany(ctx context.Context, companyID *int64) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).Model(&models.CommissionRecordModel{})
	if companyID != nil {
		query = query.Where("company_id = ?", *companyID)
	}
	var ids []uuid.UUID
	if err := query.Order("created_at").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Create inserts a new record
func (r *GormCommissionRecordRepository) Create(ctx context.Context, rec *commission.Record) error {
	var m models.CommissionRecordModel
	m.FromDomain(rec)
	err := r.db.WithContext(ctx).Create(&m).Error
	if isDuplicateKey(err) {
		return commission.ErrDuplicateRecord
	}
	return err
}

// Save updates a record with optimistic locking on its version
func (r *GormCommissionRecordRepository) Save(ctx context.Context, rec *commission.Record) error {
	current := rec.Version
	rec.UpdatedAt = time.Now()

	var m models.CommissionRecordModel
	m.FromDomain(rec)
	result := r.db.WithContext(ctx).
		Model(&models.CommissionRecordModel{}).
		Where("id = ? AND version = ?", rec.ID, current).
		Updates(map[string]any{
			"partner_name":       m.PartnerName,
			"fiscal_year_name":   m.FiscalYearName,
			"rule_id":            m.RuleID,
			"commission_amount":  m.CommissionAmount,
			"state":              m.State,
			"total_purchase":     m.TotalPurchase,
			"total_invoiced":     m.TotalInvoiced,
			"total_paid":         m.TotalPaid,
			"total_due":          m.TotalDue,
			"payment_date":       m.PaymentDate,
			"payout_document_id": m.PayoutDocumentID,
			"payout_settled":     m.PayoutSettled,
			"version":            current + 1,
			"updated_at":         m.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		r.db.WithContext(ctx).Model(&models.CommissionRecordModel{}).Where("id = ?", rec.ID).Count(&count)
		if count == 0 {
			return commission.ErrRecordNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	rec.IncrementVersion()
	return nil
}

// ---------------------------------------------------------------------------
// Commission rules
// ---------------------------------------------------------------------------

// GormCommissionRuleRepository implements commission.RuleRepository using GORM
type GormCommissionRuleRepository struct {
	db *gorm.DB
}

// NewGormCommissionRuleRepository creates a new GormCommissionRuleRepository
func NewGormCommissionRuleRepository(db *gorm.DB) *GormCommissionRuleRepository {
	return &GormCommissionRuleRepository{db: db}
}

// FindByID finds a rule by ID
func (r *GormCommissionRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*commission.Rule, error) {
	var m models.CommissionRuleModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, commission.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindActiveByCompany returns the active rules of a company
func (r *GormCommissionRuleRepository) FindActiveByCompany(ctx context.Context, companyID int64) ([]*commission.Rule, error) {
	return r.find(r.db.WithContext(ctx).Where("company_id = ? AND active = ?", companyID, true))
}

// FindAll returns all rules, optionally for one company
func (r *GormCommissionRuleRepository) FindAll(ctx context.Context, companyID *int64) ([]*commission.Rule, error) {
	query := r.db.WithContext(ctx)
	if companyID != nil {
		query = query.Where("company_id = ?", *companyID)
	}
	return r.find(query)
}

func (r *GormCommissionRuleRepository) find(query *gorm.DB) ([]*commission.Rule, error) {
	var rows []models.CommissionRuleModel
	if err := query.Order("purchase_target").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*commission.Rule, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Save inserts or updates a rule
func (r *GormCommissionRuleRepository) Save(ctx context.Context, rule *commission.Rule) error {
	var m models.CommissionRuleModel
	m.FromDomain(rule)
	return r.db.WithContext(ctx).Save(&m).Error
}

// ---------------------------------------------------------------------------
// Fiscal years
// ---------------------------------------------------------------------------

// GormFiscalYearRepository implements commission.FiscalYearRepository using GORM
type GormFiscalYearRepository struct {
	db *gorm.DB
}

// NewGormFiscalYearRepository creates a new GormFiscalYearRepository
func NewGormFiscalYearRepository(db *gorm.DB) *GormFiscalYearRepository {
	return &GormFiscalYearRepository{db: db}
}

// FindByID finds a fiscal year by ID
func (r *GormFiscalYearRepository) FindByID(ctx context.Context, id uuid.UUID) (*commission.FiscalYear, error) {
	var m models.FiscalYearModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, commission.ErrFiscalYearNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindContaining finds the company's fiscal year covering the date
func (r *GormFiscalYearRepository) FindContaining(ctx context.Context, companyID int64, date time.Time) (*commission.FiscalYear, error) {
	d := commission.DateOf(date)
	var m models.FiscalYearModel
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND date_from <= ? AND date_to >= ?", companyID, d, d).
		Order("date_from DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, commission.ErrFiscalYearNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// Save inserts or updates a fiscal year
func (r *GormFiscalYearRepository) Save(ctx context.Context, fy *commission.FiscalYear) error {
	var m models.FiscalYearModel
	m.FromDomain(fy)
	return r.db.WithContext(ctx).Save(&m).Error
}

// ---------------------------------------------------------------------------
// Activity ledger
// ---------------------------------------------------------------------------

// GormActivityLedger implements commission.ActivityLedger on activity_entries
type GormActivityLedger struct {
	db *gorm.DB
}

// NewGormActivityLedger creates a new GormActivityLedger
func NewGormActivityLedger(db *gorm.DB) *GormActivityLedger {
	return &GormActivityLedger{db: db}
}

// Append records an activity entry
func (l *GormActivityLedger) Append(ctx context.Context, e *commission.ActivityEntry) error {
	var m models.ActivityEntryModel
	m.FromDomain(e)
	if err := l.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// Totals sums the customer's activity over [from, to] per kind
func (l *GormActivityLedger) Totals(ctx context.Context, partnerID, companyID int64, from, to time.Time) (commission.Totals, error) {
	var rows []struct {
		Kind  string
		Total string
	}
	err := l.db.WithContext(ctx).Model(&models.ActivityEntryModel{}).
		Select("kind, CAST(COALESCE(SUM(amount), 0) AS TEXT) AS total").
		Where("partner_id = ? AND company_id = ? AND date >= ? AND date <= ?",
			partnerID, companyID, commission.DateOf(from), commission.DateOf(to)).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return commission.Totals{}, fmt.Errorf("sum activity: %w", err)
	}

	totals := commission.Totals{Purchase: decimal.Zero, Invoiced: decimal.Zero, Paid: decimal.Zero}
	for _, row := range rows {
		sum, err := decimal.NewFromString(row.Total)
		if err != nil {
			return commission.Totals{}, fmt.Errorf("sum activity %s: %w", row.Kind, err)
		}
		switch commission.ActivityKind(row.Kind) {
		case commission.ActivitySaleConfirmed:
			totals.Purchase = sum
		case commission.ActivityInvoicePosted:
			totals.Invoiced = sum
		case commission.ActivityPaymentSettled:
			totals.Paid = sum
		}
	}
	return totals, nil
}
