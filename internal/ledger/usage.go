package ledger

import (
	"context"
	"fmt"
	"time"

	"crcbank/internal/model"
	"crcbank/internal/store"
)

// UsageReport is the outcome of a usage check.
type UsageReport struct {
	Account  string
	Total    int64
	Used     int64
	Usage    model.Allocations
	Percent  float64
	Previous model.NotificationLevel
	Level    model.NotificationLevel
	Notified bool
	Locked   bool
	Archived []model.InvestmentArchive
}

type usagePlan struct {
	total    int64
	live     []model.Investment
	archived []model.InvestmentArchive
}

// planUsage walks the live investments oldest first. A pool is exhausted once
// it is fully withdrawn and either usage has eaten through it or its balance is
// zero. Exhausted pools leave the live set, but their balance still counts
// toward the period, as do pools archived earlier in the same period.
func planUsage(p *model.Proposal, clusters []string, invs []model.Investment, prior []model.InvestmentArchive, used int64, today time.Time) usagePlan {
	plan := usagePlan{total: p.Allocations.Total(clusters)}
	for _, inv := range invs {
		if inv.FullyWithdrawn() && (used >= plan.total+inv.Balance() || inv.Balance() == 0) {
			plan.archived = append(plan.archived, inv.Archive(p.ID, p.StartDate, today))
			continue
		}
		plan.total += inv.Balance()
		plan.live = append(plan.live, inv)
	}
	for _, a := range prior {
		if a.BelongsTo(*p) {
			plan.total += a.Balance()
		}
	}
	// Same rule as the prior archives above, so the next check sees the same total.
	for _, a := range plan.archived {
		plan.total += a.Balance()
	}
	return plan
}

// CheckSUsLimit compares the account's usage with everything it was granted
// this period and escalates the notification level. Levels only go up; an
// account already at 100% is reported as ErrAlreadyLocked without side effects.
func (e *Engine) CheckSUsLimit(ctx context.Context, account string) (*UsageReport, error) {
	p, err := e.proposal(ctx, account)
	if err != nil {
		return nil, err
	}
	if p.PercentNotified == model.LevelHundred {
		return nil, fail(ErrAlreadyLocked, account, "already notified at 100%% and locked")
	}

	perCluster, used, err := e.usage(ctx, account)
	if err != nil {
		return nil, err
	}
	invs, err := e.investments(ctx, account)
	if err != nil {
		return nil, err
	}
	prior, err := e.Store.FindInvestmentArchives(ctx, p.ID)
	if err != nil {
		return nil, collaboratorFailure(account, "load investment archives", err)
	}

	plan := planUsage(p, e.Clusters, invs, prior, used, e.today())
	report := &UsageReport{
		Account:  account,
		Total:    plan.total,
		Used:     used,
		Usage:    perCluster,
		Previous: p.PercentNotified,
		Level:    p.PercentNotified,
		Archived: plan.archived,
	}
	if plan.total <= 0 {
		if used > 0 {
			return nil, fail(ErrZeroAllocation, account, "used %d SUs against a total allocation of %d", used, plan.total)
		}
	} else {
		report.Percent = 100 * float64(used) / float64(plan.total)
	}

	next := model.NextLevel(report.Percent)
	escalate := next > p.PercentNotified
	if escalate {
		updated := *p
		updated.PercentNotified = next
		if err := e.Notifier.Notify(ctx, &model.Notice{
			Kind:         model.NoticeThreshold,
			Account:      account,
			Level:        next,
			UsagePercent: report.Percent,
			Proposal:     updated,
			Usage:        perCluster,
			Investments:  plan.live,
			Clusters:     e.Clusters,
		}); err != nil {
			return nil, collaboratorFailure(account, fmt.Sprintf("notify %v threshold", next), err)
		}
		report.Notified = true

		if next == model.LevelHundred {
			if err := e.Enforcer.Lock(ctx, account); err != nil {
				return nil, collaboratorFailure(account, "lock account", err)
			}
			report.Locked = true
		}
		p.PercentNotified = next
		report.Level = next
	}

	if !escalate && len(plan.archived) == 0 {
		return report, nil
	}
	err = e.atomic(ctx, account, "save usage check", func(tx store.Store) error {
		for i := range plan.archived {
			if err := tx.InsertInvestmentArchive(ctx, &plan.archived[i]); err != nil {
				return err
			}
			if err := tx.DeleteInvestment(ctx, plan.archived[i].InvestmentID); err != nil {
				return err
			}
		}
		if escalate {
			return tx.UpdateProposal(ctx, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, a := range plan.archived {
		e.record(account, "archive_investment", "investment %d exhausted with %d SUs remaining", a.InvestmentID, a.Balance())
	}
	if escalate {
		e.record(account, "check_sus_limit", "usage %.1f%% (%d/%d SUs), notified level %v -> %v",
			report.Percent, used, plan.total, report.Previous, next)
	}
	if report.Locked {
		e.record(account, "lock", "locked at %.1f%% of %d SUs", report.Percent, plan.total)
	}
	return report, nil
}
