package commission

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRule(t *testing.T, company int64, fy *uuid.UUID, target, pct int64) *Rule {
	t.Helper()
	r, err := NewRule(company, fy, decimal.NewFromInt(target), decimal.NewFromInt(pct))
	require.NoError(t, err)
	return r
}

func TestNewRule_Validation(t *testing.T) {
	tests := []struct {
		name    string
		target  decimal.Decimal
		percent decimal.Decimal
		wantErr error
	}{
		{"valid", decimal.NewFromInt(1000), decimal.NewFromInt(5), nil},
		{"zero target", decimal.Zero, decimal.NewFromInt(5), ErrInvalidTarget},
		{"negative target", decimal.NewFromInt(-1), decimal.NewFromInt(5), ErrInvalidTarget},
		{"percent below one", decimal.NewFromInt(1000), decimal.NewFromFloat(0.5), ErrInvalidPercent},
		{"percent above hundred", decimal.NewFromInt(1000), decimal.NewFromInt(101), ErrInvalidPercent},
		{"percent bounds inclusive", decimal.NewFromInt(1000), decimal.NewFromInt(100), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRule(1, nil, tt.target, tt.percent)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.True(t, r.Active)
		})
	}
}

func TestRule_Name(t *testing.T) {
	r := mustRule(t, 1, nil, 5000, 10)
	assert.Equal(t, "10% on 5000++", r.Name())
}

func TestSelectRule_HighestTierReached(t *testing.T) {
	fy := uuid.New()
	low := mustRule(t, 1, nil, 1000, 5)
	high := mustRule(t, 1, nil, 5000, 10)
	unreached := mustRule(t, 1, nil, 10000, 15)

	got := SelectRule([]*Rule{low, high, unreached}, fy, 1, decimal.NewFromInt(6000))

	require.NotNil(t, got)
	assert.Equal(t, high.ID, got.ID)
	assert.True(t, got.Commission(decimal.NewFromInt(6000)).Equal(decimal.NewFromInt(600)))
}

func TestSelectRule_Scope(t *testing.T) {
	fy := uuid.New()
	otherFY := uuid.New()

	t.Run("other fiscal year is ignored", func(t *testing.T) {
		r := mustRule(t, 1, &otherFY, 1000, 5)
		assert.Nil(t, SelectRule([]*Rule{r}, fy, 1, decimal.NewFromInt(2000)))
	})

	t.Run("other company is ignored", func(t *testing.T) {
		r := mustRule(t, 2, nil, 1000, 5)
		assert.Nil(t, SelectRule([]*Rule{r}, fy, 1, decimal.NewFromInt(2000)))
	})

	t.Run("inactive is ignored", func(t *testing.T) {
		r := mustRule(t, 1, nil, 1000, 5)
		r.Active = false
		assert.Nil(t, SelectRule([]*Rule{r}, fy, 1, decimal.NewFromInt(2000)))
	})

	t.Run("target equal to invoiced is reached", func(t *testing.T) {
		r := mustRule(t, 1, nil, 1000, 5)
		assert.NotNil(t, SelectRule([]*Rule{r}, fy, 1, decimal.NewFromInt(1000)))
	})

	t.Run("year specific wins a tie", func(t *testing.T) {
		anyYear := mustRule(t, 1, nil, 1000, 5)
		specific := mustRule(t, 1, &fy, 1000, 7)
		got := SelectRule([]*Rule{anyYear, specific}, fy, 1, decimal.NewFromInt(1500))
		require.NotNil(t, got)
		assert.Equal(t, specific.ID, got.ID)
	})
}

func TestRule_ConflictsWith(t *testing.T) {
	fy := uuid.New()
	a := mustRule(t, 1, nil, 1000, 5)

	assert.True(t, a.ConflictsWith(mustRule(t, 1, nil, 1000, 8)))
	assert.False(t, a.ConflictsWith(mustRule(t, 1, &fy, 1000, 8)), "different year scope")
	assert.False(t, a.ConflictsWith(mustRule(t, 2, nil, 1000, 8)), "different company")
	assert.False(t, a.ConflictsWith(mustRule(t, 1, nil, 2000, 8)), "different target")
	assert.False(t, a.ConflictsWith(a), "same rule")

	inactive := mustRule(t, 1, nil, 1000, 8)
	inactive.Active = false
	assert.False(t, a.ConflictsWith(inactive))
}
