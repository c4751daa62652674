package commission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erp/salesync/internal/domain/commission"
	"github.com/erp/salesync/internal/domain/shared"
)

// Dependencies are the ports the commission service works against
type Dependencies struct {
	Records   commission.RecordRepository
	Rules     commission.RuleRepository
	Years     commission.FiscalYearRepository
	Ledger    commission.ActivityLedger
	Payouts   commission.PayoutIssuer
	Items     commission.ServiceItemCatalog
	Partners  commission.PartnerDirectory
	Publisher shared.EventPublisher
}

// Service runs the commission lifecycle: record bookkeeping, tier
// recomputation and payouts.
type Service struct {
	Dependencies
	payoutItemName string
	logger         *zap.Logger
}

// NewService creates a new commission service
func NewService(deps Dependencies, payoutItemName string, logger *zap.Logger) *Service {
	if payoutItemName == "" {
		payoutItemName = commission.DefaultPayoutItemName
	}
	return &Service{
		Dependencies:   deps,
		payoutItemName: payoutItemName,
		logger:         logger,
	}
}

// ---------------------------------------------------------------------------
// Fiscal years and rules
// ---------------------------------------------------------------------------

// CreateFiscalYearInput holds the fields of a new fiscal year
type CreateFiscalYearInput struct {
	Name      string
	CompanyID int64
	DateFrom  time.Time
	DateTo    time.Time
}

// CreateFiscalYear registers a fiscal year
func (s *Service) CreateFiscalYear(ctx context.Context, in CreateFiscalYearInput) (*commission.FiscalYear, error) {
	fy, err := commission.NewFiscalYear(in.Name, in.CompanyID, in.DateFrom, in.DateTo)
	if err != nil {
		return nil, err
	}
	if err := s.Years.Save(ctx, fy); err != nil {
		return nil, err
	}
	s.logger.Info("Fiscal year created",
		zap.String("fiscal_year_id", fy.ID.String()),
		zap.String("name", fy.Name),
		zap.Int64("company_id", fy.CompanyID),
	)
	return fy, nil
}

// CreateRuleInput holds the fields of a new commission rule
type CreateRuleInput struct {
	CompanyID         int64
	FiscalYearID      *uuid.UUID
	PurchaseTarget    decimal.Decimal
	CommissionPercent decimal.Decimal
}

// CreateRule adds a commission tier. Active rules of one company sharing a
// fiscal year scope and purchase target are rejected.
func (s *Service) CreateRule(ctx context.Context, in CreateRuleInput) (*commission.Rule, error) {
	if in.CompanyID <= 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "company is required")
	}
	if in.FiscalYearID != nil {
		fy, err := s.Years.FindByID(ctx, *in.FiscalYearID)
		if err != nil {
			return nil, err
		}
		if fy.CompanyID != in.CompanyID {
			return nil, commission.ErrFiscalYearMismatch
		}
	}
	rule, err := commission.NewRule(in.CompanyID, in.FiscalYearID, in.PurchaseTarget, in.CommissionPercent)
	if err != nil {
		return nil, err
	}

	existing, err := s.Rules.FindActiveByCompany(ctx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if rule.ConflictsWith(other) {
			return nil, commission.ErrDuplicateRule
		}
	}

	if err := s.Rules.Save(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("Commission rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("name", rule.Name()),
		zap.Int64("company_id", rule.CompanyID),
	)
	return rule, nil
}

// ActivateRule returns a rule to tier selection. It is rejected when another
// active rule of the company already holds the same target and scope.
func (s *Service) ActivateRule(ctx context.Context, id uuid.UUID) (*commission.Rule, error) {
	rule, err := s.Rules.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.Active {
		return rule, nil
	}
	rule.Activate()
	existing, err := s.Rules.FindActiveByCompany(ctx, rule.CompanyID)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if rule.ConflictsWith(other) {
			return nil, commission.ErrDuplicateRule
		}
	}
	return rule, s.saveRule(ctx, rule, "Commission rule activated")
}

// DeactivateRule withdraws a rule from tier selection
func (s *Service) DeactivateRule(ctx context.Context, id uuid.UUID) (*commission.Rule, error) {
	rule, err := s.Rules.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rule.Active {
		return rule, nil
	}
	rule.Deactivate()
	return rule, s.saveRule(ctx, rule, "Commission rule deactivated")
}

func (s *Service) saveRule(ctx context.Context, rule *commission.Rule, msg string) error {
	if err := s.Rules.Save(ctx, rule); err != nil {
		return err
	}
	s.logger.Info(msg,
		zap.String("rule_id", rule.ID.String()),
		zap.String("name", rule.Name()),
		zap.Int64("company_id", rule.CompanyID),
	)
	return nil
}

// ListRules returns the rules of a company, or of every company when nil
func (s *Service) ListRules(ctx context.Context, companyID *int64) ([]*commission.Rule, error) {
	return s.Rules.FindAll(ctx, companyID)
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// GetRecord returns a commission record
func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*commission.Record, error) {
	return s.Records.FindByID(ctx, id)
}

// ListRecords returns a page of commission records
func (s *Service) ListRecords(ctx context.Context, filter commission.RecordFilter) ([]*commission.Record, int64, error) {
	return s.Records.FindAll(ctx, filter)
}

// CreateRecord opens a commission record for a customer's fiscal year.
// A second record for the same customer, year and company is rejected.
func (s *Service) CreateRecord(ctx context.Context, partnerID int64, fiscalYearID uuid.UUID) (*commission.Record, error) {
	fy, err := s.Years.FindByID(ctx, fiscalYearID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Records.FindByKey(ctx, partnerID, fy.ID, fy.CompanyID); err == nil {
		return nil, commission.ErrDuplicateRecord
	} else if !errors.Is(err, commission.ErrRecordNotFound) {
		return nil, err
	}
	return s.openRecord(ctx, partnerID, fy)
}

// EnsureRecord returns the record covering the given activity date,
// creating it when the customer has none yet for that fiscal year. It
// returns ErrFiscalYearNotFound when no fiscal year contains the date.
func (s *Service) EnsureRecord(ctx context.Context, partnerID, companyID int64, date time.Time) (*commission.Record, error) {
	fy, err := s.Years.FindContaining(ctx, companyID, date)
	if err != nil {
		return nil, err
	}
	rec, err := s.Records.FindByKey(ctx, partnerID, fy.ID, companyID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, commission.ErrRecordNotFound) {
		return nil, err
	}
	rec, err = s.openRecord(ctx, partnerID, fy)
	if errors.Is(err, commission.ErrDuplicateRecord) {
		// Lost a race with a concurrent activity for the same customer
		return s.Records.FindByKey(ctx, partnerID, fy.ID, companyID)
	}
	return rec, err
}

func (s *Service) openRecord(ctx context.Context, partnerID int64, fy *commission.FiscalYear) (*commission.Record, error) {
	name, err := s.Partners.PartnerName(ctx, partnerID)
	if err != nil {
		s.logger.Warn("Failed to resolve partner name",
			zap.Int64("partner_id", partnerID),
			zap.Error(err),
		)
	}
	rec, err := commission.NewRecord(partnerID, name, fy)
	if err != nil {
		return nil, err
	}
	if err := s.refresh(ctx, rec, fy); err != nil {
		return nil, err
	}
	if err := s.Records.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("Commission record created",
		zap.String("record_id", rec.ID.String()),
		zap.String("name", rec.Name()),
		zap.String("state", string(rec.State)),
	)
	s.publish(ctx, rec)
	return rec, nil
}

// Recompute refreshes a record's totals, tier and state
func (s *Service) Recompute(ctx context.Context, id uuid.UUID) (*commission.Record, error) {
	rec, err := s.Records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fy, err := s.Years.FindByID(ctx, rec.FiscalYearID)
	if err != nil {
		return nil, err
	}
	if err := s.refresh(ctx, rec, fy); err != nil {
		return nil, err
	}
	if err := s.Records.Save(ctx, rec); err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return rec, nil
}

// refresh recomputes a record in memory from the ledger and active rules
func (s *Service) refresh(ctx context.Context, rec *commission.Record, fy *commission.FiscalYear) error {
	totals, err := s.Ledger.Totals(ctx, rec.PartnerID, rec.CompanyID, fy.DateFrom, fy.DateTo)
	if err != nil {
		return err
	}
	rules, err := s.Rules.FindActiveByCompany(ctx, rec.CompanyID)
	if err != nil {
		return err
	}
	prev := rec.State
	if rec.Recompute(totals, rules) {
		s.logger.Info("Commission state changed",
			zap.String("record_id", rec.ID.String()),
			zap.String("from", string(prev)),
			zap.String("to", string(rec.State)),
			zap.String("amount", rec.CommissionAmount.String()),
		)
	}
	return nil
}

// RecomputeSummary reports a bulk recomputation
type RecomputeSummary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// RecomputeAll recomputes every record of a company, or of every company
// when companyID is nil. A failing record does not stop the run.
func (s *Service) RecomputeAll(ctx context.Context, companyID *int64) (RecomputeSummary, error) {
	var summary RecomputeSummary
	ids, err := s.Records.FindIDsByCompany(ctx, companyID)
	if err != nil {
		return summary, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := s.Recompute(ctx, id); err != nil {
			s.logger.Error("Failed to recompute commission record",
				zap.String("record_id", id.String()),
				zap.Error(err),
			)
			summary.Failed++
			continue
		}
		summary.Processed++
	}
	return summary, nil
}

// SetPaymentDate records the settlement date of a record's payout
func (s *Service) SetPaymentDate(ctx context.Context, id uuid.UUID, date time.Time) (*commission.Record, error) {
	rec, err := s.Records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fy, err := s.Years.FindByID(ctx, rec.FiscalYearID)
	if err != nil {
		return nil, err
	}
	if err := rec.SetPaymentDate(date, fy); err != nil {
		return nil, err
	}
	if err := s.Records.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ---------------------------------------------------------------------------
// Payouts
// ---------------------------------------------------------------------------

// MakePayment issues and posts the payout credit note of a record and moves
// it to in_payment. It is rejected when a payout already exists, before the
// fiscal year has ended, or when nothing is owed. Concurrent calls for one
// record issue a single document; the others fail with ErrAlreadyInPayment.
func (s *Service) MakePayment(ctx context.Context, id uuid.UUID, today time.Time) (*commission.PayoutDocument, error) {
	rec, err := s.Records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fy, err := s.Years.FindByID(ctx, rec.FiscalYearID)
	if err != nil {
		return nil, err
	}
	if err := rec.CheckPayable(today, fy); err != nil {
		return nil, err
	}

	item, err := s.Items.FindOrCreate(ctx, s.payoutItemName)
	if err != nil {
		return nil, err
	}
	doc := commission.NewPayoutDocument(rec, item, today)
	if err := doc.Post(); err != nil {
		return nil, err
	}
	rec.MarkInPayment(doc.ID)
	if err := s.Payouts.Issue(ctx, rec, doc); err != nil {
		if errors.Is(err, commission.ErrAlreadyInPayment) || errors.Is(err, shared.ErrConcurrencyConflict) {
			s.logger.Warn("Commission payout lost claim",
				zap.String("record_id", rec.ID.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}
	s.logger.Info("Commission payout issued",
		zap.String("record_id", rec.ID.String()),
		zap.String("document_id", doc.ID.String()),
		zap.String("amount", doc.Total().String()),
	)
	s.publish(ctx, rec)
	return doc, nil
}

// SettlePayout marks a payout document paid and moves its record to paid
func (s *Service) SettlePayout(ctx context.Context, documentID uuid.UUID, paidOn time.Time) (*commission.Record, error) {
	rec, err := s.Records.FindByPayoutDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	fy, err := s.Years.FindByID(ctx, rec.FiscalYearID)
	if err != nil {
		return nil, err
	}
	if err := rec.MarkPayoutSettled(paidOn, fy); err != nil {
		return nil, err
	}

	doc, err := s.Payouts.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := doc.Settle(paidOn); err != nil {
		return nil, err
	}
	if err := s.Payouts.Save(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.refresh(ctx, rec, fy); err != nil {
		return nil, err
	}
	if err := s.Records.Save(ctx, rec); err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return rec, nil
}

// ---------------------------------------------------------------------------
// Activity
// ---------------------------------------------------------------------------

// RecordActivityInput describes accounting activity of the host system
type RecordActivityInput struct {
	Kind       commission.ActivityKind
	PartnerID  int64
	CompanyID  int64
	Date       time.Time
	Amount     decimal.Decimal
	Reference  string
	DocumentID *uuid.UUID
}

// RecordActivity appends a ledger entry and announces it
func (s *Service) RecordActivity(ctx context.Context, in RecordActivityInput) (*commission.ActivityEntry, error) {
	entry, err := commission.NewActivityEntry(in.Kind, in.PartnerID, in.CompanyID, in.Date, in.Amount, in.Reference)
	if err != nil {
		return nil, err
	}
	if in.Kind == commission.ActivityPayoutSettled {
		if in.DocumentID == nil {
			return nil, shared.NewDomainError("INVALID_INPUT", "payout settlement requires a document")
		}
		entry.DocumentID = in.DocumentID
	}
	if err := s.Ledger.Append(ctx, entry); err != nil {
		return nil, err
	}
	if s.Publisher != nil {
		if err := s.Publisher.Publish(ctx, commission.NewActivityEvent(entry)); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// publish forwards and clears the pending events of a record. Delivery
// failures are logged; the record is already persisted.
func (s *Service) publish(ctx context.Context, rec *commission.Record) {
	events := rec.GetDomainEvents()
	rec.ClearDomainEvents()
	if s.Publisher == nil || len(events) == 0 {
		return
	}
	if err := s.Publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish commission events",
			zap.String("record_id", rec.ID.String()),
			zap.Error(err),
		)
	}
}
