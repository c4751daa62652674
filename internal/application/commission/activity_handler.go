package commission

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/salesync/internal/domain/commission"
	"github.com/erp/salesync/internal/domain/shared"
)

// ActivityHandler keeps commission records current as accounting activity
// is recorded. Posted invoices open the customer's record for the year;
// other activity only refreshes a record that already exists.
type ActivityHandler struct {
	service *Service
	logger  *zap.Logger
}

// NewActivityHandler creates a new handler for accounting activity events
func NewActivityHandler(service *Service, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *ActivityHandler) EventTypes() []string {
	return []string{
		commission.EventTypeInvoicePosted,
		commission.EventTypePaymentSettled,
		commission.EventTypeSalesOrderConfirmed,
		commission.EventTypePayoutSettled,
	}
}

// Handle processes an ActivityEvent
func (h *ActivityHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	activity, ok := event.(*commission.ActivityEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	log := h.logger.With(
		zap.String("kind", string(activity.Kind)),
		zap.Int64("partner_id", activity.PartnerID),
		zap.Int64("company_id", activity.CompanyID),
		zap.Time("date", activity.Date),
	)
	log.Debug("processing accounting activity for commission")

	switch activity.Kind {
	case commission.ActivityPayoutSettled:
		if activity.DocumentID == nil {
			return errors.New("payout settlement without document")
		}
		_, err := h.service.SettlePayout(ctx, *activity.DocumentID, activity.Date)
		return err

	case commission.ActivityInvoicePosted:
		rec, err := h.service.EnsureRecord(ctx, activity.PartnerID, activity.CompanyID, activity.Date)
		if errors.Is(err, commission.ErrFiscalYearNotFound) {
			log.Warn("no fiscal year covers the invoice date, skipping commission")
			return nil
		}
		if err != nil {
			return err
		}
		_, err = h.service.Recompute(ctx, rec.ID)
		return err

	default:
		fy, err := h.service.Years.FindContaining(ctx, activity.CompanyID, activity.Date)
		if errors.Is(err, commission.ErrFiscalYearNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rec, err := h.service.Records.FindByKey(ctx, activity.PartnerID, fy.ID, activity.CompanyID)
		if errors.Is(err, commission.ErrRecordNotFound) {
			log.Debug("customer has no commission record for the year, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		_, err = h.service.Recompute(ctx, rec.ID)
		return err
	}
}
