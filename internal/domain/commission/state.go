package commission

import "github.com/shopspring/decimal"

// State is the lifecycle state of a commission record
type State string

const (
	StateDraft      State = "draft"
	StateApplicable State = "applicable"
	StateEligible   State = "eligible"
	StateInPayment  State = "in_payment"
	StatePaid       State = "paid"
)

// IsValid reports whether the state is known
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateApplicable, StateEligible, StateInPayment, StatePaid:
		return true
	}
	return false
}

// StateInputs are the derived aggregates a state is computed from
type StateInputs struct {
	HasRule       bool
	Amount        decimal.Decimal
	Due           decimal.Decimal
	HasPayout     bool
	PayoutSettled bool
}

// DeriveState evaluates the state conditions in priority order. Later
// conditions override earlier ones when several hold at once. An overpaid
// balance (negative due) counts as fully paid.
func DeriveState(in StateInputs) State {
	state := StateDraft
	cleared := !in.Due.IsPositive()
	earned := in.Amount.IsPositive()

	if in.HasRule && !cleared && earned {
		state = StateApplicable
	}
	if earned && cleared && !in.HasPayout {
		state = StateEligible
	}
	if earned && cleared && in.HasPayout {
		if in.PayoutSettled {
			state = StatePaid
		} else {
			state = StateInPayment
		}
	}
	return state
}
