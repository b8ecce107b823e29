package ledger

import (
	"context"
	"time"

	"crcbank/internal/model"
	"crcbank/internal/store"
)

// RenewalResult describes a closed period and the one that replaced it.
type RenewalResult struct {
	Account                string
	Archive                model.ProposalArchive
	ArchivedInvestments    []model.InvestmentArchive
	CurrentInvestmentTotal int64
	RolloverAmount         int64
	Investments            []model.Investment // pools rewritten by the rollover
	Proposal               model.Proposal
}

// rolloverAmount returns half of the unused investment balance. When usage
// ran past the proposal allocation the overage is taken out of the investment
// balance first. The result is within [0, currentInvestments].
func rolloverAmount(allocated, used, currentInvestments int64) int64 {
	if currentInvestments <= 0 {
		return 0
	}
	remaining := currentInvestments
	if used > allocated {
		remaining = allocated + currentInvestments - used
	}
	amount := remaining / 2
	if amount < 0 {
		return 0
	}
	return min(amount, currentInvestments)
}

// distributeRollover opens the next sub-period of each pool, oldest first,
// while rollover is left: the pool's yearly share is withdrawn into its current
// balance and up to its previous current balance is carried as rollover.
func distributeRollover(invs []model.Investment, amount int64, today time.Time) []model.Investment {
	var out []model.Investment
	remaining := amount
	for _, inv := range invs {
		if remaining <= 0 {
			break
		}
		previous := inv.CurrentSUs
		draw := inv.Available() / inv.YearsRemaining(today)
		carried := min(previous, remaining)

		inv.CurrentSUs = draw
		inv.RolloverSUs = carried
		inv.WithdrawnSUs += draw
		remaining -= carried
		out = append(out, inv)
	}
	return out
}

// Renew closes the account's current period and opens a new one with alloc.
// The proposal snapshot, investment archival, rollover, and proposal reset
// commit together; the unlock runs after the commit.
func (e *Engine) Renew(ctx context.Context, account string, alloc model.Allocations) (*RenewalResult, error) {
	p, err := e.proposal(ctx, account)
	if err != nil {
		return nil, err
	}
	alloc, err = e.checkAllocations(account, alloc, true)
	if err != nil {
		return nil, err
	}
	perCluster, used, err := e.usage(ctx, account)
	if err != nil {
		return nil, err
	}
	invs, err := e.investments(ctx, account)
	if err != nil {
		return nil, err
	}

	today := e.today()
	res := &RenewalResult{
		Account: account,
		Archive: model.ProposalArchive{
			ProposalID:  p.ID,
			Account:     account,
			Type:        p.Type,
			StartDate:   p.StartDate,
			EndDate:     p.EndDate,
			Allocations: p.Allocations.Clone(),
			Usage:       perCluster,
			ArchivedOn:  today,
		},
	}

	var live []model.Investment
	for _, inv := range invs {
		if !inv.EndDate.After(today) || (inv.FullyWithdrawn() && inv.CurrentSUs == 0) {
			res.ArchivedInvestments = append(res.ArchivedInvestments, inv.Archive(p.ID, p.StartDate, today))
			continue
		}
		res.CurrentInvestmentTotal += inv.CurrentSUs
		live = append(live, inv)
	}

	res.RolloverAmount = rolloverAmount(p.Allocations.Total(e.Clusters), used, res.CurrentInvestmentTotal)
	if res.RolloverAmount > 0 {
		res.Investments = distributeRollover(live, res.RolloverAmount, today)
	}

	renewed := *p
	renewed.StartDate = today
	renewed.EndDate = p.Type.EndDate(today)
	renewed.PercentNotified = model.LevelZero
	renewed.Allocations = alloc
	res.Proposal = renewed

	err = e.atomic(ctx, account, "save renewal", func(tx store.Store) error {
		if err := tx.InsertProposalArchive(ctx, &res.Archive); err != nil {
			return err
		}
		for i := range res.ArchivedInvestments {
			if err := tx.InsertInvestmentArchive(ctx, &res.ArchivedInvestments[i]); err != nil {
				return err
			}
			if err := tx.DeleteInvestment(ctx, res.ArchivedInvestments[i].InvestmentID); err != nil {
				return err
			}
		}
		for i := range res.Investments {
			if err := tx.UpdateInvestment(ctx, &res.Investments[i]); err != nil {
				return err
			}
		}
		return tx.UpdateProposal(ctx, &res.Proposal)
	})
	if err != nil {
		return nil, err
	}

	e.record(account, "renewal", "archived period %s-%s (%s), usage %s; archived %d investments, rolled over %d of %d SUs; new limits %s",
		model.FormatDate(p.StartDate), model.FormatDate(p.EndDate), p.Allocations.Format(e.Clusters),
		perCluster.Format(e.Clusters), len(res.ArchivedInvestments), res.RolloverAmount, res.CurrentInvestmentTotal,
		alloc.Format(e.Clusters))

	if err := e.Enforcer.Unlock(ctx, account); err != nil {
		return res, collaboratorFailure(account, "unlock after renewal", err)
	}
	e.record(account, "unlock", "unlocked after renewal")
	return res, nil
}
