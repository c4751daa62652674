package commission

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActivityEntry(t *testing.T) {
	e, err := NewActivityEntry(ActivityInvoicePosted, 7, 1, time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC), decimal.NewFromInt(100), "INV/001")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), e.Date)

	ev := NewActivityEvent(e)
	assert.Equal(t, EventTypeInvoicePosted, ev.EventType())
	assert.Equal(t, e.ID, ev.AggregateID())

	_, err = NewActivityEntry(ActivityKind("refund"), 7, 1, time.Now(), decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, ErrInvalidActivity)
	_, err = NewActivityEntry(ActivityPaymentSettled, 7, 1, time.Now(), decimal.NewFromInt(-1), "")
	assert.ErrorIs(t, err, ErrInvalidActivity)
}
