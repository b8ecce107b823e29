package store

import (
	"context"
	"errors"

	"crcbank/internal/model"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// Store persists ledger records. Every mutation is keyed by record identity.
// Investments are always returned oldest first (ascending ID).
type Store interface {
	FindProposal(ctx context.Context, account string) (*model.Proposal, error)
	ListProposals(ctx context.Context) ([]model.Proposal, error)
	InsertProposal(ctx context.Context, p *model.Proposal) error
	UpdateProposal(ctx context.Context, p *model.Proposal) error

	FindInvestments(ctx context.Context, account string) ([]model.Investment, error)
	ListInvestments(ctx context.Context) ([]model.Investment, error)
	InsertInvestment(ctx context.Context, inv *model.Investment) error
	UpdateInvestment(ctx context.Context, inv *model.Investment) error
	DeleteInvestment(ctx context.Context, id int64) error

	InsertInvestmentArchive(ctx context.Context, a *model.InvestmentArchive) error
	FindInvestmentArchives(ctx context.Context, proposalID int64) ([]model.InvestmentArchive, error)

	InsertProposalArchive(ctx context.Context, a *model.ProposalArchive) error
	FindProposalArchives(ctx context.Context, account string) ([]model.ProposalArchive, error)

	// Atomic runs fn against a Store whose writes commit together or not at all.
	Atomic(ctx context.Context, fn func(tx Store) error) error

	Close() error
}
