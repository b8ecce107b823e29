package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crcbank/internal/model"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"sqlite": sq,
		"memory": NewMemoryStore(),
	}
}

func TestStore_ProposalLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.FindProposal(ctx, "acct1")
			assert.ErrorIs(t, err, ErrNotFound)

			p := &model.Proposal{
				Account:     "acct1",
				Type:        model.ProposalClass,
				StartDate:   day,
				EndDate:     model.ProposalClass.EndDate(day),
				Allocations: model.Allocations{"smp": 10000, "gpu": 5},
			}
			require.NoError(t, s.InsertProposal(ctx, p))
			assert.NotZero(t, p.ID)

			got, err := s.FindProposal(ctx, "acct1")
			require.NoError(t, err)
			assert.Equal(t, p.ID, got.ID)
			assert.Equal(t, model.ProposalClass, got.Type)
			assert.True(t, got.EndDate.Equal(p.EndDate))
			assert.Equal(t, int64(10005), got.Allocations.Total([]string{"smp", "mpi", "gpu", "htc"}))

			got.PercentNotified = model.LevelFifty
			got.Allocations["smp"] = 1
			require.NoError(t, s.UpdateProposal(ctx, got))

			again, err := s.FindProposal(ctx, "acct1")
			require.NoError(t, err)
			assert.Equal(t, model.LevelFifty, again.PercentNotified)
			assert.Equal(t, int64(1), again.Allocations["smp"])

			missing := *again
			missing.ID = 999
			assert.ErrorIs(t, s.UpdateProposal(ctx, &missing), ErrNotFound)

			all, err := s.ListProposals(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestStore_InvestmentsOldestFirst(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, su := range []int64{100, 200, 300} {
				inv := &model.Investment{Account: "acct1", ServiceUnits: su, StartDate: day, EndDate: day.AddDate(0, 0, model.InvestmentDays)}
				require.NoError(t, s.InsertInvestment(ctx, inv))
			}
			require.NoError(t, s.InsertInvestment(ctx, &model.Investment{Account: "other", ServiceUnits: 1, StartDate: day, EndDate: day}))

			invs, err := s.FindInvestments(ctx, "acct1")
			require.NoError(t, err)
			require.Len(t, invs, 3)
			assert.Equal(t, []int64{100, 200, 300}, []int64{invs[0].ServiceUnits, invs[1].ServiceUnits, invs[2].ServiceUnits})
			assert.Less(t, invs[0].ID, invs[1].ID)

			invs[1].WithdrawnSUs = 50
			require.NoError(t, s.UpdateInvestment(ctx, &invs[1]))
			require.NoError(t, s.DeleteInvestment(ctx, invs[0].ID))
			assert.ErrorIs(t, s.DeleteInvestment(ctx, invs[0].ID), ErrNotFound)

			invs, err = s.FindInvestments(ctx, "acct1")
			require.NoError(t, err)
			require.Len(t, invs, 2)
			assert.Equal(t, int64(50), invs[0].WithdrawnSUs)
		})
	}
}

func TestStore_Archives(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			inv := model.Investment{ID: 7, Account: "acct1", ServiceUnits: 5000, CurrentSUs: 500, WithdrawnSUs: 5000, StartDate: day, EndDate: day.AddDate(5, 0, 0)}
			a := inv.Archive(3, day, day.AddDate(0, 1, 0))
			require.NoError(t, s.InsertInvestmentArchive(ctx, &a))

			got, err := s.FindInvestmentArchives(ctx, 3)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, int64(7), got[0].InvestmentID)
			assert.Equal(t, int64(500), got[0].Balance())
			assert.True(t, got[0].ExhaustionDate.Equal(day.AddDate(0, 1, 0)))
			assert.True(t, got[0].BelongsTo(model.Proposal{ID: 3, StartDate: day}))
			assert.False(t, got[0].BelongsTo(model.Proposal{ID: 3, StartDate: day.AddDate(1, 0, 0)}))

			none, err := s.FindInvestmentArchives(ctx, 4)
			require.NoError(t, err)
			assert.Empty(t, none)

			pa := &model.ProposalArchive{
				ProposalID:  3,
				Account:     "acct1",
				StartDate:   day,
				EndDate:     day.AddDate(1, 0, 0),
				Allocations: model.Allocations{"smp": 10000},
				Usage:       model.Allocations{"smp": 9000},
				ArchivedOn:  day.AddDate(1, 0, 0),
			}
			require.NoError(t, s.InsertProposalArchive(ctx, pa))
			archives, err := s.FindProposalArchives(ctx, "acct1")
			require.NoError(t, err)
			require.Len(t, archives, 1)
			assert.Equal(t, int64(9000), archives[0].Usage["smp"])
		})
	}
}

func TestStore_AtomicRollback(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			p := &model.Proposal{Account: "acct1", StartDate: day, EndDate: day, Allocations: model.Allocations{"smp": 1}}
			require.NoError(t, s.InsertProposal(ctx, p))

			err := s.Atomic(ctx, func(tx Store) error {
				p.PercentNotified = model.LevelHundred
				if err := tx.UpdateProposal(ctx, p); err != nil {
					return err
				}
				if err := tx.InsertInvestment(ctx, &model.Investment{Account: "acct1", StartDate: day, EndDate: day}); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			got, err := s.FindProposal(ctx, "acct1")
			require.NoError(t, err)
			assert.Equal(t, model.LevelZero, got.PercentNotified)
			invs, err := s.FindInvestments(ctx, "acct1")
			require.NoError(t, err)
			assert.Empty(t, invs)

			require.NoError(t, s.Atomic(ctx, func(tx Store) error {
				p.PercentNotified = model.LevelNinety
				return tx.UpdateProposal(ctx, p)
			}))
			got, err = s.FindProposal(ctx, "acct1")
			require.NoError(t, err)
			assert.Equal(t, model.LevelNinety, got.PercentNotified)
		})
	}
}
