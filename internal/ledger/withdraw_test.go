package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crcbank/internal/model"
)

func seedPools(t *testing.T, f *fixture, available ...int64) []model.Investment {
	t.Helper()
	var out []model.Investment
	for _, a := range available {
		out = append(out, f.seedInvestment(t, model.Investment{Account: "acct1", ServiceUnits: 1000, CurrentSUs: 10, WithdrawnSUs: 1000 - a}))
	}
	return out
}

func TestWithdraw_OldestFirst(t *testing.T) {
	f := newFixture(t)
	f.seedProposal(t, "acct1", smpOnly(10000))
	before := seedPools(t, f, 100, 200, 300)

	res, err := f.engine.Withdraw(f.ctx, "acct1", 250)
	require.NoError(t, err)
	assert.Len(t, res.Touched, 2)

	after := f.investments(t, "acct1")
	require.Len(t, after, 3)
	assert.Equal(t, int64(100), after[0].WithdrawnSUs-before[0].WithdrawnSUs)
	assert.Equal(t, int64(150), after[1].WithdrawnSUs-before[1].WithdrawnSUs)
	assert.Equal(t, int64(0), after[2].WithdrawnSUs-before[2].WithdrawnSUs)
	assert.True(t, after[0].FullyWithdrawn())
	assert.Equal(t, int64(110), after[0].CurrentSUs)
	assert.Equal(t, int64(160), after[1].CurrentSUs)
	assert.Equal(t, int64(10), after[2].CurrentSUs)
}

func TestWithdraw_Conservation(t *testing.T) {
	tests := []struct {
		name      string
		available []int64
		amount    int64
	}{
		{"single pool", []int64{500}, 500},
		{"spans all", []int64{100, 200, 300}, 600},
		{"first empty", []int64{0, 50, 50}, 75},
		{"one unit", []int64{0, 0, 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedProposal(t, "acct1", smpOnly(10000))
			before := seedPools(t, f, tt.available...)

			_, err := f.engine.Withdraw(f.ctx, "acct1", tt.amount)
			require.NoError(t, err)

			var delta int64
			for i, inv := range f.investments(t, "acct1") {
				delta += inv.WithdrawnSUs - before[i].WithdrawnSUs
				assert.LessOrEqual(t, inv.WithdrawnSUs, inv.ServiceUnits)
			}
			assert.Equal(t, tt.amount, delta)
		})
	}
}

func TestWithdraw_SkipsEmptyPools(t *testing.T) {
	f := newFixture(t)
	f.seedProposal(t, "acct1", smpOnly(10000))
	pools := seedPools(t, f, 0, 400)

	res, err := f.engine.Withdraw(f.ctx, "acct1", 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{pools[0].ID}, res.Skipped)
	require.Len(t, res.Touched, 1)
	assert.Equal(t, pools[1].ID, res.Touched[0].ID)
}

func TestWithdraw_InsufficientBalanceChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedProposal(t, "acct1", smpOnly(10000))
	before := seedPools(t, f, 100, 200)

	_, err := f.engine.Withdraw(f.ctx, "acct1", 301)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.ErrorContains(t, err, "requested 301 SUs but only 300 available")
	assert.Equal(t, before, f.investments(t, "acct1"))
}

func TestWithdraw_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Withdraw(f.ctx, "acct1", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.engine.Withdraw(f.ctx, "acct1", 10)
	assert.ErrorIs(t, err, ErrNotFound)

	f.seedProposal(t, "acct1", smpOnly(10000))
	_, err = f.engine.Withdraw(f.ctx, "acct1", 100)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.ErrorContains(t, err, "requested 100 SUs but only 0 available across 0 investments")
}
