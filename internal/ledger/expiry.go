package ledger

import (
	"context"

	"crcbank/internal/model"
)

// ExpiryWarningDays is how long before the end date the owner is warned.
const ExpiryWarningDays = 90

// ExpiryAction is what a proposal end-date check did.
type ExpiryAction int

const (
	ExpiryNone ExpiryAction = iota
	ExpiryWarned
	ExpiryLocked
)

func (a ExpiryAction) String() string {
	switch a {
	case ExpiryWarned:
		return "warned"
	case ExpiryLocked:
		return "locked"
	default:
		return "none"
	}
}

// CheckProposalEndDate warns the owner exactly ExpiryWarningDays before the end
// date and locks the account on the end date itself. No state is stored, so the
// caller must run it once per day.
func (e *Engine) CheckProposalEndDate(ctx context.Context, account string) (ExpiryAction, error) {
	p, err := e.proposal(ctx, account)
	if err != nil {
		return ExpiryNone, err
	}

	today := e.today()
	end := model.Day(p.EndDate)
	switch {
	case today.Equal(end.AddDate(0, 0, -ExpiryWarningDays)):
		if err := e.Notifier.Notify(ctx, &model.Notice{
			Kind:     model.NoticeProposalExpiring,
			Account:  account,
			Level:    p.PercentNotified,
			Proposal: *p,
			Clusters: e.Clusters,
		}); err != nil {
			return ExpiryNone, collaboratorFailure(account, "notify proposal expiring", err)
		}
		e.record(account, "check_proposal_end_date", "proposal expires in %d days on %s", ExpiryWarningDays, model.FormatDate(end))
		return ExpiryWarned, nil

	case today.Equal(end):
		if err := e.Notifier.Notify(ctx, &model.Notice{
			Kind:     model.NoticeProposalExpired,
			Account:  account,
			Level:    p.PercentNotified,
			Proposal: *p,
			Clusters: e.Clusters,
		}); err != nil {
			return ExpiryNone, collaboratorFailure(account, "notify proposal expired", err)
		}
		if err := e.Enforcer.Lock(ctx, account); err != nil {
			return ExpiryNone, collaboratorFailure(account, "lock expired account", err)
		}
		e.record(account, "lock", "locked because the proposal reached its end date %s", model.FormatDate(end))
		return ExpiryLocked, nil
	}
	return ExpiryNone, nil
}
