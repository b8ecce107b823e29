package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crcbank/internal/model"
	"crcbank/internal/store"
)

// Insert creates the account's first proposal.
func (e *Engine) Insert(ctx context.Context, account string, typ model.ProposalType, alloc model.Allocations) (*model.Proposal, error) {
	_, err := e.Store.FindProposal(ctx, account)
	switch {
	case err == nil:
		return nil, fail(ErrAlreadyExists, account, "proposal already exists")
	case !errors.Is(err, store.ErrNotFound):
		return nil, collaboratorFailure(account, "load proposal", err)
	}
	if err := e.requireAssociations(ctx, account); err != nil {
		return nil, err
	}
	alloc, err = e.checkAllocations(account, alloc, true)
	if err != nil {
		return nil, err
	}

	start := e.today()
	p := &model.Proposal{
		Account:         account,
		Type:            typ,
		PercentNotified: model.LevelZero,
		StartDate:       start,
		EndDate:         typ.EndDate(start),
		Allocations:     alloc,
	}
	if err := e.Store.InsertProposal(ctx, p); err != nil {
		return nil, collaboratorFailure(account, "insert proposal", err)
	}
	e.record(account, "insert", "inserted %v proposal with %s", typ, alloc.Format(e.Clusters))
	return p, nil
}

// Modify replaces the limits and restarts the period today.
func (e *Engine) Modify(ctx context.Context, account string, alloc model.Allocations) (*model.Proposal, error) {
	return e.updateProposal(ctx, account, "modify", func(p *model.Proposal) error {
		checked, err := e.checkAllocations(account, alloc, true)
		if err != nil {
			return err
		}
		p.Allocations = checked
		p.StartDate = e.today()
		p.EndDate = p.Type.EndDate(p.StartDate)
		return nil
	})
}

// Add tops up the current limits without touching the dates.
func (e *Engine) Add(ctx context.Context, account string, alloc model.Allocations) (*model.Proposal, error) {
	return e.updateProposal(ctx, account, "add", func(p *model.Proposal) error {
		checked, err := e.checkAllocations(account, alloc, false)
		if err != nil {
			return err
		}
		if p.Allocations == nil {
			p.Allocations = model.Allocations{}
		}
		for c, v := range checked {
			p.Allocations[c] += v
		}
		return nil
	})
}

// Change replaces the limits without touching the dates.
func (e *Engine) Change(ctx context.Context, account string, alloc model.Allocations) (*model.Proposal, error) {
	return e.updateProposal(ctx, account, "change", func(p *model.Proposal) error {
		checked, err := e.checkAllocations(account, alloc, true)
		if err != nil {
			return err
		}
		p.Allocations = checked
		return nil
	})
}

// SetStartDate moves the start of the period; the end date follows the proposal type.
func (e *Engine) SetStartDate(ctx context.Context, account string, start time.Time) (*model.Proposal, error) {
	return e.updateProposal(ctx, account, "date", func(p *model.Proposal) error {
		start = model.Day(start)
		if start.After(e.today()) {
			return fail(ErrInvalidDate, account, "start date %s is in the future", model.FormatDate(start))
		}
		p.StartDate = start
		p.EndDate = p.Type.EndDate(start)
		return nil
	})
}

// ParseStartDate reads a command-line date such as 12/01/19.
func ParseStartDate(account, s string) (time.Time, error) {
	t, err := time.Parse(model.InputDateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fail(ErrInvalidDate, account, "could not parse date (e.g. 12/01/19), got `%s`", s)
	}
	return t, nil
}

func (e *Engine) updateProposal(ctx context.Context, account, action string, mutate func(p *model.Proposal) error) (*model.Proposal, error) {
	p, err := e.proposal(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := mutate(p); err != nil {
		return nil, err
	}
	if err := e.Store.UpdateProposal(ctx, p); err != nil {
		return nil, collaboratorFailure(account, action+" proposal", err)
	}
	e.record(account, action, "limits %s, period %s-%s", p.Allocations.Format(e.Clusters),
		model.FormatDate(p.StartDate), model.FormatDate(p.EndDate))
	return p, nil
}

// AddInvestment opens a five-year pool. A fifth of it is withdrawn immediately.
func (e *Engine) AddInvestment(ctx context.Context, account string, serviceUnits int64) (*model.Investment, error) {
	if _, err := e.proposal(ctx, account); err != nil {
		return nil, err
	}
	if err := e.requireAssociations(ctx, account); err != nil {
		return nil, err
	}
	if serviceUnits <= 0 {
		return nil, fail(ErrInvalidAmount, account, "investment must be positive, got %d", serviceUnits)
	}
	if serviceUnits < e.MinimumSUs {
		return nil, fail(ErrInvalidAmount, account, "investment should be at least %d SUs, got %d", e.MinimumSUs, serviceUnits)
	}

	perYear := (serviceUnits + model.InvestmentYears - 1) / model.InvestmentYears
	start := e.today()
	inv := &model.Investment{
		Account:      account,
		ServiceUnits: serviceUnits,
		CurrentSUs:   perYear,
		WithdrawnSUs: perYear,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, model.InvestmentDays),
	}
	if err := e.Store.InsertInvestment(ctx, inv); err != nil {
		return nil, collaboratorFailure(account, "insert investment", err)
	}
	e.record(account, "investor", "inserted investment %d of %d SUs, %d available this year", inv.ID, serviceUnits, perYear)
	return inv, nil
}

func (e *Engine) requireAssociations(ctx context.Context, account string) error {
	if e.Associations == nil {
		return nil
	}
	missing, err := e.Associations.MissingAssociations(ctx, account)
	if err != nil {
		return collaboratorFailure(account, "check associations", err)
	}
	if len(missing) > 0 {
		return fail(ErrAssociationMissing, account, "associations missing on clusters %s", strings.Join(missing, ","))
	}
	return nil
}

// AccountInfo is everything the ledger holds for one account.
type AccountInfo struct {
	Proposal           model.Proposal
	Investments        []model.Investment
	InvestmentArchives []model.InvestmentArchive // archived during the current period
	ProposalArchives   []model.ProposalArchive
}

// Info loads the account's records.
func (e *Engine) Info(ctx context.Context, account string) (*AccountInfo, error) {
	p, err := e.proposal(ctx, account)
	if err != nil {
		return nil, err
	}
	invs, err := e.investments(ctx, account)
	if err != nil {
		return nil, err
	}
	archives, err := e.Store.FindInvestmentArchives(ctx, p.ID)
	if err != nil {
		return nil, collaboratorFailure(account, "load investment archives", err)
	}
	periods, err := e.Store.FindProposalArchives(ctx, account)
	if err != nil {
		return nil, collaboratorFailure(account, "load proposal archives", err)
	}

	info := &AccountInfo{Proposal: *p, Investments: invs, ProposalArchives: periods}
	for _, a := range archives {
		if a.BelongsTo(*p) {
			info.InvestmentArchives = append(info.InvestmentArchives, a)
		}
	}
	return info, nil
}

// FormatSUs renders the account's balances as a CSV table: one proposal row
// with its per-cluster limits and one row per investment with its usable balance.
func (info *AccountInfo) FormatSUs(clusters []string) string {
	var b strings.Builder
	b.WriteString("type," + strings.Join(clusters, ",") + ",investment\n")
	vals := make([]string, len(clusters))
	for i, c := range clusters {
		vals[i] = fmt.Sprint(info.Proposal.Allocations[c])
	}
	b.WriteString("proposal," + strings.Join(vals, ",") + ",\n")
	for _, inv := range info.Investments {
		b.WriteString(fmt.Sprintf("investment%s,%d\n", strings.Repeat(",", len(clusters)), inv.Balance()))
	}
	return b.String()
}
