package ledger

import (
	"context"

	"crcbank/internal/model"
	"crcbank/internal/store"
)

// WithdrawResult lists the investments a withdrawal drew from.
type WithdrawResult struct {
	Account   string
	Requested int64
	Touched   []model.Investment
	Skipped   []int64 // IDs of empty pools passed over
}

// distributeWithdrawal moves amount from the untouched part of each pool into
// its current balance, oldest pool first. The caller has checked that the
// pools can cover amount.
func distributeWithdrawal(invs []model.Investment, amount int64) (touched []model.Investment, skipped []int64) {
	remaining := amount
	for _, inv := range invs {
		if remaining == 0 {
			break
		}
		available := inv.Available()
		if available <= 0 {
			skipped = append(skipped, inv.ID)
			continue
		}
		take := min(remaining, available)
		inv.CurrentSUs += take
		inv.WithdrawnSUs += take
		remaining -= take
		touched = append(touched, inv)
	}
	return touched, skipped
}

// Withdraw draws amount service units out of the account's investment pools.
// Either the whole amount is withdrawn or nothing changes.
func (e *Engine) Withdraw(ctx context.Context, account string, amount int64) (*WithdrawResult, error) {
	if amount <= 0 {
		return nil, fail(ErrInvalidAmount, account, "withdrawal must be positive, got %d", amount)
	}
	if _, err := e.proposal(ctx, account); err != nil {
		return nil, err
	}
	invs, err := e.investments(ctx, account)
	if err != nil {
		return nil, err
	}
	var available int64
	for _, inv := range invs {
		available += inv.Available()
	}
	if amount > available {
		return nil, fail(ErrInsufficientBalance, account, "requested %d SUs but only %d available across %d investments",
			amount, available, len(invs))
	}

	touched, skipped := distributeWithdrawal(invs, amount)
	err = e.atomic(ctx, account, "save withdrawal", func(tx store.Store) error {
		for i := range touched {
			if err := tx.UpdateInvestment(ctx, &touched[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range skipped {
		e.record(account, "withdraw", "investment %d has nothing left to withdraw, skipped", id)
	}
	e.record(account, "withdraw", "withdrew %d SUs from %d investments", amount, len(touched))
	return &WithdrawResult{Account: account, Requested: amount, Touched: touched, Skipped: skipped}, nil
}
