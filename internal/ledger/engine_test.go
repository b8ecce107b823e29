package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crcbank/internal/model"
	"crcbank/internal/slurm"
	"crcbank/internal/store"
)

var testClusters = []string{"smp", "mpi", "gpu", "htc"}

var testToday = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	notices []*model.Notice
	err     error
}

func (f *fakeNotifier) Notify(_ context.Context, n *model.Notice) error {
	if f.err != nil {
		return f.err
	}
	f.notices = append(f.notices, n)
	return nil
}

type fixture struct {
	ctx      context.Context
	engine   *Engine
	store    *store.MemoryStore
	slurm    *slurm.Mock
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	sl := slurm.NewMock()
	n := &fakeNotifier{}
	eng := NewEngine(st, Collaborators{Usage: sl, Enforcer: sl, Associations: sl, Notifier: n}, testClusters, 10000)
	eng.Now = func() time.Time { return testToday.Add(9 * time.Hour) }
	return &fixture{ctx: context.Background(), engine: eng, store: st, slurm: sl, notifier: n}
}

// seedProposal stores a standard proposal that started 30 days ago.
func (f *fixture) seedProposal(t *testing.T, account string, alloc model.Allocations) *model.Proposal {
	t.Helper()
	start := testToday.AddDate(0, 0, -30)
	p := &model.Proposal{
		Account:     account,
		Type:        model.ProposalStandard,
		StartDate:   start,
		EndDate:     model.ProposalStandard.EndDate(start),
		Allocations: alloc,
	}
	require.NoError(t, f.store.InsertProposal(f.ctx, p))
	return p
}

// seedInvestment stores a pool that started a year ago unless dates are set.
func (f *fixture) seedInvestment(t *testing.T, inv model.Investment) model.Investment {
	t.Helper()
	if inv.StartDate.IsZero() {
		inv.StartDate = testToday.AddDate(0, 0, -365)
		inv.EndDate = inv.StartDate.AddDate(0, 0, model.InvestmentDays)
	}
	require.NoError(t, f.store.InsertInvestment(f.ctx, &inv))
	return inv
}

func (f *fixture) investments(t *testing.T, account string) []model.Investment {
	t.Helper()
	invs, err := f.store.FindInvestments(f.ctx, account)
	require.NoError(t, err)
	return invs
}

func (f *fixture) reload(t *testing.T, account string) *model.Proposal {
	t.Helper()
	p, err := f.store.FindProposal(f.ctx, account)
	require.NoError(t, err)
	return p
}

func smpOnly(n int64) model.Allocations {
	return model.Allocations{"smp": n, "mpi": 0, "gpu": 0, "htc": 0}
}
