package model

import "time"

// InvestmentYears is the lifetime of an investment pool.
const InvestmentYears = 5

// InvestmentDays is the span between an investment's start and end dates.
const InvestmentDays = 1825

// Investment is a multi-year pool of service units drawn down alongside a proposal.
type Investment struct {
	ID           int64     `json:"id"`
	Account      string    `json:"account"`
	ServiceUnits int64     `json:"service_units"`
	CurrentSUs   int64     `json:"current_sus"`
	WithdrawnSUs int64     `json:"withdrawn_sus"`
	RolloverSUs  int64     `json:"rollover_sus"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

// Available is the part of the pool not yet withdrawn.
func (i Investment) Available() int64 { return i.ServiceUnits - i.WithdrawnSUs }

// Balance is what the pool contributes to the current period.
func (i Investment) Balance() int64 { return i.CurrentSUs + i.RolloverSUs }

// FullyWithdrawn reports whether the whole pool has been moved into current balances.
func (i Investment) FullyWithdrawn() bool { return i.WithdrawnSUs == i.ServiceUnits }

// YearsRemaining returns whole years left before the end date, never less than one.
func (i Investment) YearsRemaining(today time.Time) int64 {
	days := int64(Day(i.EndDate).Sub(Day(today)).Hours() / 24)
	years := days / 365
	if years < 1 {
		return 1
	}
	return years
}

// Archive snapshots the investment as of exhaustion, attaching it to the
// proposal period that started on periodStart.
func (i Investment) Archive(proposalID int64, periodStart, exhausted time.Time) InvestmentArchive {
	return InvestmentArchive{
		InvestmentID:   i.ID,
		ProposalID:     proposalID,
		PeriodStart:    Day(periodStart),
		Account:        i.Account,
		ServiceUnits:   i.ServiceUnits,
		CurrentSUs:     i.CurrentSUs,
		WithdrawnSUs:   i.WithdrawnSUs,
		RolloverSUs:    i.RolloverSUs,
		StartDate:      i.StartDate,
		EndDate:        i.EndDate,
		ExhaustionDate: Day(exhausted),
	}
}

// InvestmentArchive is the immutable record of an investment removed from the live set.
type InvestmentArchive struct {
	ID             int64     `json:"id"`
	InvestmentID   int64     `json:"investment_id"`
	ProposalID     int64     `json:"proposal_id"`
	PeriodStart    time.Time `json:"period_start"`
	Account        string    `json:"account"`
	ServiceUnits   int64     `json:"service_units"`
	CurrentSUs     int64     `json:"current_sus"`
	WithdrawnSUs   int64     `json:"withdrawn_sus"`
	RolloverSUs    int64     `json:"rollover_sus"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	ExhaustionDate time.Time `json:"exhaustion_date"`
}

// Balance is the part of the period allocation the archived pool still accounts for.
func (a InvestmentArchive) Balance() int64 { return a.CurrentSUs + a.RolloverSUs }

// BelongsTo reports whether the archive was taken during p's current period.
// Renewal keeps the proposal identity, so the period start tells periods apart.
func (a InvestmentArchive) BelongsTo(p Proposal) bool {
	return a.ProposalID == p.ID && Day(a.PeriodStart).Equal(Day(p.StartDate))
}
