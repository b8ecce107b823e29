package ledger

import (
	"context"
	"fmt"

	"crcbank/internal/model"
	"crcbank/internal/store"
)

// Snapshot is the portable form of the live ledger used by dump and import.
type Snapshot struct {
	Proposals   []model.Proposal   `json:"proposals"`
	Investments []model.Investment `json:"investments"`
}

// Export reads every live proposal and investment.
func (e *Engine) Export(ctx context.Context) (*Snapshot, error) {
	proposals, err := e.Store.ListProposals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	investments, err := e.Store.ListInvestments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	return &Snapshot{Proposals: proposals, Investments: investments}, nil
}

// Import loads a snapshot into a ledger that holds none of its accounts.
// Record identities are preserved so investment order survives the round trip.
func (e *Engine) Import(ctx context.Context, snap *Snapshot) error {
	owners := make(map[string]bool, len(snap.Proposals))
	for _, p := range snap.Proposals {
		if owners[p.Account] {
			return fail(ErrAlreadyExists, p.Account, "snapshot holds two proposals")
		}
		owners[p.Account] = true
		if !p.Type.Valid() || !p.PercentNotified.Valid() {
			return fail(ErrInvalidAmount, p.Account, "proposal type %d or notified level %d out of range", p.Type, p.PercentNotified)
		}
	}
	ids := make(map[int64]bool, len(snap.Investments))
	for _, inv := range snap.Investments {
		if inv.ID != 0 && ids[inv.ID] {
			return fail(ErrAlreadyExists, inv.Account, "snapshot holds investment %d twice", inv.ID)
		}
		ids[inv.ID] = true
		if !owners[inv.Account] {
			return fail(ErrNotFound, inv.Account, "investment %d has no proposal in the snapshot", inv.ID)
		}
		if inv.WithdrawnSUs < 0 || inv.WithdrawnSUs > inv.ServiceUnits {
			return fail(ErrInvalidAmount, inv.Account, "investment %d has withdrawn %d of %d SUs", inv.ID, inv.WithdrawnSUs, inv.ServiceUnits)
		}
	}

	err := e.Store.Atomic(ctx, func(tx store.Store) error {
		for i := range snap.Proposals {
			p := &snap.Proposals[i]
			if _, err := tx.FindProposal(ctx, p.Account); err == nil {
				return fail(ErrAlreadyExists, p.Account, "proposal already exists")
			}
			if err := tx.InsertProposal(ctx, p); err != nil {
				return collaboratorFailure(p.Account, "insert proposal", err)
			}
		}
		for i := range snap.Investments {
			if err := tx.InsertInvestment(ctx, &snap.Investments[i]); err != nil {
				return collaboratorFailure(snap.Investments[i].Account, "insert investment", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range snap.Proposals {
		e.record(p.Account, "import", "imported proposal %d", p.ID)
	}
	return nil
}
