package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/erp/salesync/internal/domain/commission"
	"github.com/erp/salesync/internal/domain/shared"
)

// MockRecordRepository is a mock implementation of RecordRepository
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*commission.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(func(context.Context, uuid.UUID) *commission.Record); ok {
		return fn(ctx, id), args.Error(1)
	}
	return args.Get(0).(*commission.Record), args.Error(1)
}

func (m *MockRecordRepository) FindByKey(ctx context.Context, partnerID int64, fiscalYearID uuid.UUID, companyID int64) (*commission.Record, error) {
	args := m.Called(ctx, partnerID, fiscalYearID, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commission.Record), args.Error(1)
}

func (m *MockRecordRepository) FindByPayoutDocument(ctx context.Context, documentID uuid.UUID) (*commission.Record, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commission.Record), args.Error(1)
}

func (m *MockRecordRepository) FindAll(ctx context.Context, filter commission.RecordFilter) ([]*commission.Record, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*commission.Record), args.Get(1).(int64), args.Error(2)
}

func (m *MockRecordRepository) FindIDsByCompany(ctx context.Context, companyID *int64) ([]uuid.UUID, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockRecordRepository) Create(ctx context.Context, r *commission.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRecordRepository) Save(ctx context.Context, r *commission.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// MockRuleRepository is a mock implementation of RuleRepository
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*commission.Rule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commission.Rule), args.Error(1)
}

func (m *MockRuleRepository) FindActiveByCompany(ctx context.Context, companyID int64) ([]*commission.Rule, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).([]*commission.Rule), args.Error(1)
}

func (m *MockRuleRepository) FindAll(ctx context.Context, companyID *int64) ([]*commission.Rule, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).([]*commission.Rule), args.Error(1)
}

func (m *MockRuleRepository) Save(ctx context.Context, r *commission.Rule) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// MockFiscalYearRepository is a mock implementation of FiscalYearRepository
type MockFiscalYearRepository struct {
	mock.Mock
}

func (m *MockFiscalYearRepository) FindByID(ctx context.Context, id uuid.UUID) (*commission.FiscalYear, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commission.FiscalYear), args.Error(1)
}

func (m *MockFiscalYearRepository) FindContaining(ctx context.Context, companyID int64, date time.Time) (*commission.FiscalYear, error) {
	args := m.Called(ctx, companyID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commission.FiscalYear), args.Error(1)
}

func (m *MockFiscalYearRepository) Save(ctx context.Context, fy *commission.FiscalYear) error {
	args := m.Called(ctx, fy)
	return args.Error(0)
}

// MockActivityLedger is a mock implementation of ActivityLedger
type MockActivityLedger struct {
	mock.Mock
}

func (m *MockActivityLedger) Append(ctx context.Context, e *commission.ActivityEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockActivityLedger) Totals(ctx context.Context, partnerID, companyID int64, from, to time.Time) (commission.Totals, error) {
	args := m.Called(ctx, partnerID, companyID, from, to)
	return args.Get(0).(commission.Totals), args.Error(1)
}

// MockPayoutIssuer is a mock implementation of PayoutIssuer
type MockPayoutIssuer struct {
	mock.Mock
}

func (m *MockPayoutIssuer) Issue(ctx context.Context, rec *commission.Record, doc *commission.PayoutDocument) error {
	args := m.Called(ctx, rec, doc)
	return args.Error(0)
}

func (m *MockPayoutIssuer) FindByID(ctx context.Context, id uuid.UUID) (*commission.PayoutDocument, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commission.PayoutDocument), args.Error(1)
}

func (m *MockPayoutIssuer) Save(ctx context.Context, doc *commission.PayoutDocument) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

// MockServiceItemCatalog is a mock implementation of ServiceItemCatalog
type MockServiceItemCatalog struct {
	mock.Mock
}

func (m *MockServiceItemCatalog) FindOrCreate(ctx context.Context, name string) (*commission.ServiceItem, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commission.ServiceItem), args.Error(1)
}

// MockPartnerDirectory is a mock implementation of PartnerDirectory
type MockPartnerDirectory struct {
	mock.Mock
}

func (m *MockPartnerDirectory) PartnerName(ctx context.Context, partnerID int64) (string, error) {
	args := m.Called(ctx, partnerID)
	return args.String(0), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type serviceMocks struct {
	records   *MockRecordRepository
	rules     *MockRuleRepository
	years     *MockFiscalYearRepository
	ledger    *MockActivityLedger
	payouts   *MockPayoutIssuer
	items     *MockServiceItemCatalog
	partners  *MockPartnerDirectory
	publisher *MockEventPublisher
}

func newTestService() (*Service, *serviceMocks) {
	m := &serviceMocks{
		records:   new(MockRecordRepository),
		rules:     new(MockRuleRepository),
		years:     new(MockFiscalYearRepository),
		ledger:    new(MockActivityLedger),
		payouts:   new(MockPayoutIssuer),
		items:     new(MockServiceItemCatalog),
		partners:  new(MockPartnerDirectory),
		publisher: new(MockEventPublisher),
	}
	svc := NewService(Dependencies{
		Records:   m.records,
		Rules:     m.rules,
		Years:     m.years,
		Ledger:    m.ledger,
		Payouts:   m.payouts,
		Items:     m.items,
		Partners:  m.partners,
		Publisher: m.publisher,
	}, "", zap.NewNop())
	return svc, m
}

func (m *serviceMocks) assertExpectations(t mock.TestingT) {
	m.records.AssertExpectations(t)
	m.rules.AssertExpectations(t)
	m.years.AssertExpectations(t)
	m.ledger.AssertExpectations(t)
	m.payouts.AssertExpectations(t)
	m.items.AssertExpectations(t)
	m.partners.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
}
