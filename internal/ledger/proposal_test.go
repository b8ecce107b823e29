package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crcbank/internal/model"
	"crcbank/internal/store"
)

func TestParseAllocations(t *testing.T) {
	alloc, err := ParseAllocations("acct1", testClusters, []string{"10000", "0", " 5 ", "0"})
	require.NoError(t, err)
	assert.Equal(t, model.Allocations{"smp": 10000, "mpi": 0, "gpu": 5, "htc": 0}, alloc)

	_, err = ParseAllocations("acct1", testClusters, []string{"1", "2"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseAllocations("acct1", testClusters, []string{"ten", "0", "0", "x"})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.ErrorContains(t, err, "`ten` for cluster `smp`")
	assert.ErrorContains(t, err, "`x` for cluster `htc`")
}

func TestInsert(t *testing.T) {
	f := newFixture(t)

	p, err := f.engine.Insert(f.ctx, "acct1", model.ProposalClass, model.Allocations{"smp": 6000, "gpu": 4000})
	require.NoError(t, err)
	assert.True(t, p.StartDate.Equal(testToday))
	assert.True(t, p.EndDate.Equal(testToday.AddDate(0, 0, 122)))
	assert.Equal(t, model.LevelZero, p.PercentNotified)
	assert.Equal(t, int64(0), p.Allocations["htc"])

	_, err = f.engine.Insert(f.ctx, "acct1", model.ProposalStandard, smpOnly(10000))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = f.engine.Insert(f.ctx, "acct2", model.ProposalStandard, smpOnly(9999))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.ErrorContains(t, err, "got 9999")

	_, err = f.engine.Insert(f.ctx, "acct2", model.ProposalStandard, model.Allocations{"bigmem": 20000})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	f.slurm.Missing["acct3"] = []string{"gpu", "htc"}
	_, err = f.engine.Insert(f.ctx, "acct3", model.ProposalStandard, smpOnly(10000))
	assert.ErrorIs(t, err, ErrAssociationMissing)
	assert.ErrorContains(t, err, "gpu,htc")
	_, err = f.store.FindProposal(f.ctx, "acct3")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestModifyAddChange(t *testing.T) {
	f := newFixture(t)
	orig := f.seedProposal(t, "acct1", smpOnly(10000))

	p, err := f.engine.Add(f.ctx, "acct1", model.Allocations{"gpu": 50})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), p.Allocations["smp"])
	assert.Equal(t, int64(50), p.Allocations["gpu"])
	assert.True(t, p.StartDate.Equal(orig.StartDate))

	_, err = f.engine.Add(f.ctx, "acct1", model.Allocations{})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	p, err = f.engine.Change(f.ctx, "acct1", smpOnly(12000))
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Allocations["gpu"])
	assert.True(t, p.StartDate.Equal(orig.StartDate))

	p, err = f.engine.Modify(f.ctx, "acct1", smpOnly(15000))
	require.NoError(t, err)
	assert.Equal(t, int64(15000), p.Allocations["smp"])
	assert.True(t, p.StartDate.Equal(testToday))
	assert.True(t, p.EndDate.Equal(testToday.AddDate(0, 0, 365)))

	_, err = f.engine.Change(f.ctx, "nobody", smpOnly(12000))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStartDate(t *testing.T) {
	f := newFixture(t)
	f.seedProposal(t, "acct1", smpOnly(10000))

	start, err := ParseStartDate("acct1", "12/01/23")
	require.NoError(t, err)
	p, err := f.engine.SetStartDate(f.ctx, "acct1", start)
	require.NoError(t, err)
	assert.True(t, p.StartDate.Equal(time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.EndDate.Equal(time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC)))

	_, err = f.engine.SetStartDate(f.ctx, "acct1", testToday.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ParseStartDate("acct1", "2023-12-01")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestAddInvestment(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.AddInvestment(f.ctx, "acct1", 10000)
	assert.ErrorIs(t, err, ErrNotFound)

	f.seedProposal(t, "acct1", smpOnly(10000))
	inv, err := f.engine.AddInvestment(f.ctx, "acct1", 10001)
	require.NoError(t, err)
	assert.Equal(t, int64(2001), inv.CurrentSUs)
	assert.Equal(t, int64(2001), inv.WithdrawnSUs)
	assert.Zero(t, inv.RolloverSUs)
	assert.True(t, inv.EndDate.Equal(testToday.AddDate(0, 0, model.InvestmentDays)))

	_, err = f.engine.AddInvestment(f.ctx, "acct1", 100)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestInfoAndFormatSUs(t *testing.T) {
	f := newFixture(t)
	f.seedProposal(t, "acct1", model.Allocations{"smp": 10000, "mpi": 1, "gpu": 2, "htc": 3})
	f.seedInvestment(t, model.Investment{Account: "acct1", ServiceUnits: 5000, CurrentSUs: 1000, RolloverSUs: 20, WithdrawnSUs: 1000})

	info, err := f.engine.Info(f.ctx, "acct1")
	require.NoError(t, err)
	assert.Len(t, info.Investments, 1)
	assert.Empty(t, info.ProposalArchives)

	want := "type,smp,mpi,gpu,htc,investment\n" +
		"proposal,10000,1,2,3,\n" +
		"investment,,,,,1020\n"
	assert.Equal(t, want, info.FormatSUs(testClusters))
}

func TestExportImport(t *testing.T) {
	src := newFixture(t)
	src.seedProposal(t, "acct1", smpOnly(10000))
	src.seedProposal(t, "acct2", smpOnly(20000))
	src.seedInvestment(t, model.Investment{Account: "acct1", ServiceUnits: 5000, CurrentSUs: 1000, WithdrawnSUs: 1000})

	snap, err := src.engine.Export(src.ctx)
	require.NoError(t, err)
	require.Len(t, snap.Proposals, 2)
	require.Len(t, snap.Investments, 1)

	dst := newFixture(t)
	require.NoError(t, dst.engine.Import(dst.ctx, snap))
	got, err := dst.engine.Export(dst.ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	err = dst.engine.Import(dst.ctx, &Snapshot{Proposals: snap.Proposals[:1]})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	orphan := &Snapshot{Investments: []model.Investment{{Account: "acct9", ServiceUnits: 1}}}
	assert.ErrorIs(t, newFixture(t).engine.Import(dst.ctx, orphan), ErrNotFound)

	fresh := newFixture(t)
	dup := &Snapshot{
		Proposals: []model.Proposal{snap.Proposals[0]},
		Investments: []model.Investment{
			{ID: 7, Account: "acct1", ServiceUnits: 5000, CurrentSUs: 1000, WithdrawnSUs: 1000},
			{ID: 7, Account: "acct1", ServiceUnits: 9000, CurrentSUs: 1800, WithdrawnSUs: 1800},
		},
	}
	err = fresh.engine.Import(fresh.ctx, dup)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.ErrorContains(t, err, "investment 7 twice")
	assert.Empty(t, fresh.investments(t, "acct1"))
}
