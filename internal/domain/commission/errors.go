package commission

import "github.com/erp/salesync/internal/domain/shared"

// Business rule violations
var (
	ErrRecordNotFound      = shared.NewDomainError("NOT_FOUND", "commission record not found")
	ErrRuleNotFound        = shared.NewDomainError("NOT_FOUND", "commission rule not found")
	ErrFiscalYearNotFound  = shared.NewDomainError("NOT_FOUND", "fiscal year not found")
	ErrPayoutNotFound      = shared.NewDomainError("NOT_FOUND", "payout document not found")
	ErrDuplicateRecord     = shared.NewDomainError("ALREADY_EXISTS", "a commission record already exists for this customer, fiscal year and company")
	ErrDuplicateRule       = shared.NewDomainError("ALREADY_EXISTS", "an active rule with the same purchase target already exists")
	ErrInvalidTarget       = shared.NewDomainError("INVALID_INPUT", "purchase target must be greater than zero")
	ErrInvalidPercent      = shared.NewDomainError("INVALID_INPUT", "commission percent must be between 1 and 100")
	ErrInvalidFiscalYear   = shared.NewDomainError("INVALID_INPUT", "fiscal year must start on or before its end date")
	ErrInvalidActivity     = shared.NewDomainError("INVALID_INPUT", "activity entry is incomplete")
	ErrPaymentDateTooEarly = shared.NewDomainError("INVALID_INPUT", "payment date must be after the fiscal year end date")
	ErrPayoutBeforeYearEnd = shared.NewDomainError("INVALID_INPUT", "commission can only be paid after the fiscal year end date")
	ErrAlreadyInPayment    = shared.NewDomainError("INVALID_STATE", "commission is already in payment")
	ErrNothingToPay        = shared.NewDomainError("INVALID_STATE", "commission amount is zero")
	ErrPayoutAlreadyPosted = shared.NewDomainError("INVALID_STATE", "payout document is already posted")
	ErrPayoutNotPosted     = shared.NewDomainError("INVALID_STATE", "payout document is not posted")
	ErrFiscalYearMismatch  = shared.NewDomainError("INVALID_INPUT", "fiscal year belongs to another company")
)
