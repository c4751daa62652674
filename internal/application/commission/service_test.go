package commission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/salesync/internal/domain/commission"
	"github.com/erp/salesync/internal/domain/shared"
)

const (
	testCompany = int64(1)
	testPartner = int64(42)
)

func date(s string) time.Time {
	d, err := commission.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestFiscalYear() *commission.FiscalYear {
	fy, err := commission.NewFiscalYear("FY2024", testCompany, date("2024-01-01"), date("2024-12-31"))
	if err != nil {
		panic(err)
	}
	return fy
}

func newTestRules() []*commission.Rule {
	low, _ := commission.NewRule(testCompany, nil, decimal.NewFromInt(1000), decimal.NewFromInt(5))
	high, _ := commission.NewRule(testCompany, nil, decimal.NewFromInt(5000), decimal.NewFromInt(10))
	return []*commission.Rule{low, high}
}

func totals(purchase, invoiced, paid int64) commission.Totals {
	return commission.Totals{
		Purchase: decimal.NewFromInt(purchase),
		Invoiced: decimal.NewFromInt(invoiced),
		Paid:     decimal.NewFromInt(paid),
	}
}

// newEligibleRecord returns a record with 600 commission and nothing due
func newEligibleRecord(fy *commission.FiscalYear) *commission.Record {
	rec, _ := commission.NewRecord(testPartner, "Rahim Traders", fy)
	rec.Recompute(totals(6000, 6000, 6000), newTestRules())
	rec.ClearDomainEvents()
	return rec
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "expected DomainError, got %v", err)
	assert.Equal(t, code, de.Code)
}

// ---------------------------------------------------------------------------
// Rules and fiscal years
// ---------------------------------------------------------------------------

func TestService_CreateFiscalYear(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.years.On("Save", ctx, mock.AnythingOfType("*commission.FiscalYear")).Return(nil)

	fy, err := svc.CreateFiscalYear(ctx, CreateFiscalYearInput{
		Name: "FY2024", CompanyID: testCompany, DateFrom: date("2024-01-01"), DateTo: date("2024-12-31"),
	})

	require.NoError(t, err)
	assert.Equal(t, "FY2024", fy.Name)

	_, err = svc.CreateFiscalYear(ctx, CreateFiscalYearInput{
		Name: "Backwards", CompanyID: testCompany, DateFrom: date("2024-12-31"), DateTo: date("2024-01-01"),
	})
	assert.ErrorIs(t, err, commission.ErrInvalidFiscalYear)
	m.years.AssertNumberOfCalls(t, "Save", 1)
}

func TestService_CreateRule(t *testing.T) {
	ctx := context.Background()

	t.Run("saves a valid rule", func(t *testing.T) {
		svc, m := newTestService()
		m.rules.On("FindActiveByCompany", ctx, testCompany).Return(newTestRules(), nil)
		m.rules.On("Save", ctx, mock.AnythingOfType("*commission.Rule")).Return(nil)

		rule, err := svc.CreateRule(ctx, CreateRuleInput{
			CompanyID: testCompany, PurchaseTarget: decimal.NewFromInt(10000), CommissionPercent: decimal.NewFromInt(12),
		})

		require.NoError(t, err)
		assert.Equal(t, "12% on 10000++", rule.Name())
		m.assertExpectations(t)
	})

	t.Run("rejects an active rule with the same target", func(t *testing.T) {
		svc, m := newTestService()
		m.rules.On("FindActiveByCompany", ctx, testCompany).Return(newTestRules(), nil)

		_, err := svc.CreateRule(ctx, CreateRuleInput{
			CompanyID: testCompany, PurchaseTarget: decimal.NewFromInt(5000), CommissionPercent: decimal.NewFromInt(7),
		})

		assert.ErrorIs(t, err, commission.ErrDuplicateRule)
		m.rules.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("rejects out of range percent", func(t *testing.T) {
		svc, _ := newTestService()

		_, err := svc.CreateRule(ctx, CreateRuleInput{
			CompanyID: testCompany, PurchaseTarget: decimal.NewFromInt(5000), CommissionPercent: decimal.NewFromInt(101),
		})

		assert.ErrorIs(t, err, commission.ErrInvalidPercent)
	})

	t.Run("rejects a fiscal year of another company", func(t *testing.T) {
		svc, m := newTestService()
		fy := newTestFiscalYear()
		m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)

		_, err := svc.CreateRule(ctx, CreateRuleInput{
			CompanyID: 2, FiscalYearID: &fy.ID, PurchaseTarget: decimal.NewFromInt(5000), CommissionPercent: decimal.NewFromInt(7),
		})

		assert.ErrorIs(t, err, commission.ErrFiscalYearMismatch)
	})
}

func TestService_DeactivateRule(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	rule := newTestRules()[0]
	m.rules.On("FindByID", ctx, rule.ID).Return(rule, nil)
	m.rules.On("Save", ctx, mock.MatchedBy(func(r *commission.Rule) bool { return !r.Active })).Return(nil).Once()

	got, err := svc.DeactivateRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// Already inactive: nothing to save
	_, err = svc.DeactivateRule(ctx, rule.ID)
	require.NoError(t, err)
	m.rules.AssertNumberOfCalls(t, "Save", 1)
}

func TestService_ActivateRule(t *testing.T) {
	ctx := context.Background()

	t.Run("returns an inactive rule to selection", func(t *testing.T) {
		svc, m := newTestService()
		rule := newTestRules()[0]
		rule.Deactivate()
		m.rules.On("FindByID", ctx, rule.ID).Return(rule, nil)
		m.rules.On("FindActiveByCompany", ctx, testCompany).Return(newTestRules()[1:], nil)
		m.rules.On("Save", ctx, rule).Return(nil)

		got, err := svc.ActivateRule(ctx, rule.ID)

		require.NoError(t, err)
		assert.True(t, got.Active)
		m.rules.AssertExpectations(t)
	})

	t.Run("rejects a rule whose target is taken", func(t *testing.T) {
		svc, m := newTestService()
		rules := newTestRules()
		retired, _ := commission.NewRule(testCompany, nil, rules[0].PurchaseTarget, decimal.NewFromInt(6))
		retired.Deactivate()
		m.rules.On("FindByID", ctx, retired.ID).Return(retired, nil)
		m.rules.On("FindActiveByCompany", ctx, testCompany).Return(rules, nil)

		_, err := svc.ActivateRule(ctx, retired.ID)

		assert.ErrorIs(t, err, commission.ErrDuplicateRule)
		m.rules.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("unknown rule", func(t *testing.T) {
		svc, m := newTestService()
		id := uuid.New()
		m.rules.On("FindByID", ctx, id).Return(nil, commission.ErrRuleNotFound)

		_, err := svc.ActivateRule(ctx, id)

		assert.ErrorIs(t, err, commission.ErrRuleNotFound)
	})
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

func TestService_CreateRecord_ComputesTier(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	fy := newTestFiscalYear()
	m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)
	m.records.On("FindByKey", ctx, testPartner, fy.ID, testCompany).Return(nil, commission.ErrRecordNotFound)
	m.partners.On("PartnerName", ctx, testPartner).Return("Rahim Traders", nil)
	m.ledger.On("Totals", ctx, testPartner, testCompany, fy.DateFrom, fy.DateTo).Return(totals(6500, 6000, 6000), nil)
	m.rules.On("FindActiveByCompany", ctx, testCompany).Return(newTestRules(), nil)
	m.records.On("Create", ctx, mock.AnythingOfType("*commission.Record")).Return(nil)
	m.publisher.On("Publish", ctx, mock.Anything).Return(nil)

	rec, err := svc.CreateRecord(ctx, testPartner, fy.ID)

	require.NoError(t, err)
	assert.Equal(t, "Purchase Commission for Rahim Traders - FY2024", rec.Name())
	assert.True(t, decimal.NewFromInt(600).Equal(rec.CommissionAmount), "tier 5000/10%% expected, got %s", rec.CommissionAmount)
	assert.Equal(t, commission.StateEligible, rec.State)
	assert.Empty(t, rec.GetDomainEvents())
	m.assertExpectations(t)
}

func TestService_CreateRecord_RejectsDuplicate(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	fy := newTestFiscalYear()
	m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)
	m.records.On("FindByKey", ctx, testPartner, fy.ID, testCompany).Return(newEligibleRecord(fy), nil)

	_, err := svc.CreateRecord(ctx, testPartner, fy.ID)

	requireCode(t, err, "ALREADY_EXISTS")
	m.records.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_EnsureRecord_ReturnsExisting(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	fy := newTestFiscalYear()
	existing := newEligibleRecord(fy)
	on := date("2024-05-10")
	m.years.On("FindContaining", ctx, testCompany, on).Return(fy, nil)
	m.records.On("FindByKey", ctx, testPartner, fy.ID, testCompany).Return(existing, nil)

	rec, err := svc.EnsureRecord(ctx, testPartner, testCompany, on)

	require.NoError(t, err)
	assert.Same(t, existing, rec)
	m.records.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_EnsureRecord_RecoversFromCreateRace(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	fy := newTestFiscalYear()
	winner := newEligibleRecord(fy)
	on := date("2024-05-10")
	m.years.On("FindContaining", ctx, testCompany, on).Return(fy, nil)
	m.records.On("FindByKey", ctx, testPartner, fy.ID, testCompany).Return(nil, commission.ErrRecordNotFound).Once()
	m.records.On("FindByKey", ctx, testPartner, fy.ID, testCompany).Return(winner, nil).Once()
	m.partners.On("PartnerName", ctx, testPartner).Return("", errors.New("directory offline"))
	m.ledger.On("Totals", ctx, testPartner, testCompany, fy.DateFrom, fy.DateTo).Return(totals(0, 0, 0), nil)
	m.rules.On("FindActiveByCompany", ctx, testCompany).Return(newTestRules(), nil)
	m.records.On("Create", ctx, mock.Anything).Return(commission.ErrDuplicateRecord)

	rec, err := svc.EnsureRecord(ctx, testPartner, testCompany, on)

	require.NoError(t, err)
	assert.Same(t, winner, rec)
}

func TestService_Recompute_PublishesStateChange(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	fy := newTestFiscalYear()
	rec, _ := commission.NewRecord(testPartner, "Rahim Traders", fy)
	rec.ClearDomainEvents()
	m.records.On("FindByID", ctx, rec.ID).Return(rec, nil)
	m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)
	m.ledger.On("Totals", ctx, testPartner, testCompany, fy.DateFrom, fy.DateTo).Return(totals(6000, 6000, 2000), nil)
	m.rules.On("FindActiveByCompany", ctx, testCompany).Return(newTestRules(), nil)
	m.records.On("Save", ctx, rec).Return(nil)
	m.publisher.On("Publish", ctx, mock.MatchedBy(func(events []shared.DomainEvent) bool {
		return len(events) == 1 && events[0].EventType() == commission.EventTypeStateChanged
	})).Return(nil)

	got, err := svc.Recompute(ctx, rec.ID)

	require.NoError(t, err)
	assert.Equal(t, commission.StateApplicable, got.State)
	assert.True(t, decimal.NewFromInt(4000).Equal(got.TotalDue))
	m.assertExpectations(t)
}

func TestService_RecomputeAll_ContinuesPastFailures(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	fy := newTestFiscalYear()
	good := newEligibleRecord(fy)
	missing := uuid.New()
	m.records.On("FindIDsByCompany", ctx, (*int64)(nil)).Return([]uuid.UUID{missing, good.ID}, nil)
	m.records.On("FindByID", ctx, missing).Return(nil, commission.ErrRecordNotFound)
	m.records.On("FindByID", ctx, good.ID).Return(good, nil)
	m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)
	m.ledger.On("Totals", ctx, testPartner, testCompany, fy.DateFrom, fy.DateTo).Return(totals(6000, 6000, 6000), nil)
	m.rules.On("FindActiveByCompany", ctx, testCompany).Return(newTestRules(), nil)
	m.records.On("Save", ctx, good).Return(nil)

	summary, err := svc.RecomputeAll(ctx, nil)

	require.NoError(t, err)
	assert.Equal(t, RecomputeSummary{Processed: 1, Failed: 1}, summary)
	m.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestService_SetPaymentDate(t *testing.T) {
	ctx := context.Background()
	fy := newTestFiscalYear()

	tests := []struct {
		name    string
		date    time.Time
		wantErr error
	}{
		{name: "on the last day of the year", date: date("2024-12-31"), wantErr: commission.ErrPaymentDateTooEarly},
		{name: "inside the year", date: date("2024-06-30"), wantErr: commission.ErrPaymentDateTooEarly},
		{name: "after the year", date: date("2025-01-15")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService()
			rec := newEligibleRecord(fy)
			m.records.On("FindByID", ctx, rec.ID).Return(rec, nil)
			m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)
			m.records.On("Save", ctx, rec).Return(nil).Maybe()

			got, err := svc.SetPaymentDate(ctx, rec.ID, tt.date)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, rec.PaymentDate)
				m.records.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.date.Equal(*got.PaymentDate))
		})
	}
}

// ---------------------------------------------------------------------------
// Payouts
// ---------------------------------------------------------------------------

func TestService_MakePayment_IssuesPostedCreditNote(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	fy := newTestFiscalYear()
	rec := newEligibleRecord(fy)
	item := commission.NewServiceItem(commission.DefaultPayoutItemName)
	m.records.On("FindByID", ctx, rec.ID).Return(rec, nil)
	m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)
	m.items.On("FindOrCreate", ctx, commission.DefaultPayoutItemName).Return(item, nil)
	m.payouts.On("Issue", ctx, mock.MatchedBy(func(r *commission.Record) bool {
		return r.ID == rec.ID && r.State == commission.StateInPayment
	}), mock.MatchedBy(func(d *commission.PayoutDocument) bool {
		return d.State == commission.PayoutStatePosted
	})).Return(nil)
	m.publisher.On("Publish", ctx, mock.Anything).Return(nil)

	doc, err := svc.MakePayment(ctx, rec.ID, date("2025-01-10"))

	require.NoError(t, err)
	assert.Equal(t, "Commission for Rahim Traders - FY2024", doc.Ref)
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, "Commission for FY2024", doc.Lines[0].Name)
	assert.Equal(t, item.ID, doc.Lines[0].ItemID)
	assert.True(t, decimal.NewFromInt(600).Equal(doc.Total()))
	assert.Equal(t, commission.StateInPayment, rec.State)
	require.NotNil(t, rec.PayoutDocumentID)
	assert.Equal(t, doc.ID, *rec.PayoutDocumentID)
	m.records.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	m.payouts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestService_MakePayment_LosingClaimIssuesNothing(t *testing.T) {
	for _, claimErr := range []error{commission.ErrAlreadyInPayment, shared.ErrConcurrencyConflict} {
		t.Run(claimErr.Error(), func(t *testing.T) {
			svc, m := newTestService()
			ctx := context.Background()
			fy := newTestFiscalYear()
			rec := newEligibleRecord(fy)
			m.records.On("FindByID", ctx, rec.ID).Return(rec, nil)
			m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)
			m.items.On("FindOrCreate", ctx, commission.DefaultPayoutItemName).
				Return(commission.NewServiceItem(commission.DefaultPayoutItemName), nil)
			m.payouts.On("Issue", ctx, rec, mock.AnythingOfType("*commission.PayoutDocument")).Return(claimErr)

			doc, err := svc.MakePayment(ctx, rec.ID, date("2025-01-10"))

			assert.Nil(t, doc)
			assert.ErrorIs(t, err, claimErr)
			m.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestService_MakePayment_Rejections(t *testing.T) {
	ctx := context.Background()
	fy := newTestFiscalYear()

	tests := []struct {
		name    string
		record  func() *commission.Record
		today   time.Time
		wantErr error
	}{
		{
			name:    "before the fiscal year ends",
			record:  func() *commission.Record { return newEligibleRecord(fy) },
			today:   date("2024-12-31"),
			wantErr: commission.ErrPayoutBeforeYearEnd,
		},
		{
			name: "already in payment",
			record: func() *commission.Record {
				rec := newEligibleRecord(fy)
				rec.MarkInPayment(uuid.New())
				return rec
			},
			today:   date("2025-01-10"),
			wantErr: commission.ErrAlreadyInPayment,
		},
		{
			name: "nothing earned",
			record: func() *commission.Record {
				rec, _ := commission.NewRecord(testPartner, "Rahim Traders", fy)
				return rec
			},
			today:   date("2025-01-10"),
			wantErr: commission.ErrNothingToPay,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newTestService()
			rec := tt.record()
			m.records.On("FindByID", ctx, rec.ID).Return(rec, nil)
			m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)

			doc, err := svc.MakePayment(ctx, rec.ID, tt.today)

			assert.Nil(t, doc)
			assert.ErrorIs(t, err, tt.wantErr)
			m.items.AssertNotCalled(t, "FindOrCreate", mock.Anything, mock.Anything)
			m.payouts.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything, mock.Anything)
			m.records.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestService_SettlePayout_MovesRecordToPaid(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	fy := newTestFiscalYear()
	rec := newEligibleRecord(fy)
	item := commission.NewServiceItem(commission.DefaultPayoutItemName)
	doc := commission.NewPayoutDocument(rec, item, date("2025-01-10"))
	require.NoError(t, doc.Post())
	rec.MarkInPayment(doc.ID)
	rec.ClearDomainEvents()
	paidOn := date("2025-01-20")

	m.records.On("FindByPayoutDocument", ctx, doc.ID).Return(rec, nil)
	m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)
	m.payouts.On("FindByID", ctx, doc.ID).Return(doc, nil)
	m.payouts.On("Save", ctx, doc).Return(nil)
	m.ledger.On("Totals", ctx, testPartner, testCompany, fy.DateFrom, fy.DateTo).Return(totals(6000, 6000, 6000), nil)
	m.rules.On("FindActiveByCompany", ctx, testCompany).Return(newTestRules(), nil)
	m.records.On("Save", ctx, rec).Return(nil)
	m.publisher.On("Publish", ctx, mock.Anything).Return(nil)

	got, err := svc.SettlePayout(ctx, doc.ID, paidOn)

	require.NoError(t, err)
	assert.Equal(t, commission.StatePaid, got.State)
	assert.True(t, paidOn.Equal(*got.PaymentDate))
	assert.Equal(t, commission.PaymentStatePaid, doc.PaymentState)
	m.assertExpectations(t)
}

func TestService_SettlePayout_RejectsEarlyPaymentDate(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	fy := newTestFiscalYear()
	rec := newEligibleRecord(fy)
	docID := uuid.New()
	rec.MarkInPayment(docID)
	m.records.On("FindByPayoutDocument", ctx, docID).Return(rec, nil)
	m.years.On("FindByID", ctx, fy.ID).Return(fy, nil)

	_, err := svc.SettlePayout(ctx, docID, date("2024-12-31"))

	assert.ErrorIs(t, err, commission.ErrPaymentDateTooEarly)
	assert.Equal(t, commission.StateInPayment, rec.State)
	m.payouts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

// ---------------------------------------------------------------------------
// Activity
// ---------------------------------------------------------------------------

func TestService_RecordActivity_PublishesEvent(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.ledger.On("Append", ctx, mock.AnythingOfType("*commission.ActivityEntry")).Return(nil)
	m.publisher.On("Publish", ctx, mock.MatchedBy(func(events []shared.DomainEvent) bool {
		if len(events) != 1 {
			return false
		}
		ev, ok := events[0].(*commission.ActivityEvent)
		return ok && ev.EventType() == commission.EventTypeInvoicePosted && ev.PartnerID == testPartner
	})).Return(nil)

	entry, err := svc.RecordActivity(ctx, RecordActivityInput{
		Kind:      commission.ActivityInvoicePosted,
		PartnerID: testPartner,
		CompanyID: testCompany,
		Date:      date("2024-03-01"),
		Amount:    decimal.NewFromInt(1500),
		Reference: "INV/2024/0001",
	})

	require.NoError(t, err)
	assert.Equal(t, "INV/2024/0001", entry.Reference)
	m.assertExpectations(t)
}

func TestService_RecordActivity_Validation(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	_, err := svc.RecordActivity(ctx, RecordActivityInput{Kind: "refund", PartnerID: testPartner, CompanyID: testCompany, Date: date("2024-03-01")})
	assert.ErrorIs(t, err, commission.ErrInvalidActivity)

	_, err = svc.RecordActivity(ctx, RecordActivityInput{
		Kind: commission.ActivityPayoutSettled, PartnerID: testPartner, CompanyID: testCompany, Date: date("2025-01-20"),
	})
	requireCode(t, err, "INVALID_INPUT")

	m.ledger.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}
