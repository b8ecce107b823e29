package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crcbank/internal/ledger"
	"crcbank/internal/model"
	"crcbank/internal/slurm"
	"crcbank/internal/store"
)

var today = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type failingNotifier struct {
	failFor map[string]bool
	sent    []*model.Notice
}

func (f *failingNotifier) Notify(_ context.Context, n *model.Notice) error {
	if f.failFor[n.Account] {
		return errors.New("relay down")
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeMessenger struct{ texts []string }

func (f *fakeMessenger) SendWithRetry(_ context.Context, text string, _ int) error {
	f.texts = append(f.texts, text)
	return nil
}

func setup(t *testing.T) (*Scheduler, *ledger.Engine, *slurm.Mock, *failingNotifier, *fakeMessenger) {
	t.Helper()
	sl := slurm.NewMock()
	n := &failingNotifier{failFor: map[string]bool{}}
	eng := ledger.NewEngine(store.NewMemoryStore(), ledger.Collaborators{
		Usage: sl, Enforcer: sl, Associations: sl, Notifier: n,
	}, []string{"smp", "gpu"}, 10000)
	eng.Now = func() time.Time { return today.Add(6 * time.Hour) }
	ops := &fakeMessenger{}
	return NewScheduler(context.Background(), eng, ops), eng, sl, n, ops
}

func insert(t *testing.T, eng *ledger.Engine, account string, smp int64) {
	t.Helper()
	_, err := eng.Insert(context.Background(), account, model.ProposalStandard, model.Allocations{"smp": smp})
	require.NoError(t, err)
}

func TestRunUsageNow(t *testing.T) {
	s, eng, sl, n, ops := setup(t)
	insert(t, eng, "busy", 10000)
	insert(t, eng, "idle", 10000)
	insert(t, eng, "over", 10000)
	insert(t, eng, "broken", 10000)
	sl.SetUsage("busy", "smp", 9500)
	sl.SetUsage("over", "smp", 12000)
	sl.SetUsage("broken", "smp", 8000)
	n.failFor["broken"] = true

	sum := s.RunUsageNow()
	assert.Equal(t, 4, sum.Checked)
	assert.Equal(t, 2, sum.Escalated)
	assert.Equal(t, 1, sum.Locked)
	assert.Equal(t, []string{"broken"}, sum.Failed)
	assert.True(t, sl.Locked["over"])
	assert.Len(t, n.sent, 2)

	s.report(sum)
	require.Len(t, ops.texts, 1)
	assert.Contains(t, ops.texts[0], "broken")

	// The locked account is skipped on the next pass and nothing is re-sent.
	n.failFor["broken"] = false
	sum = s.RunUsageNow()
	assert.Equal(t, 1, sum.Skipped)
	assert.Empty(t, sum.Failed)
	assert.Equal(t, 1, sum.Escalated, "only the previously failed account escalates")
	assert.Len(t, n.sent, 3)
}

func TestRunExpiryNow(t *testing.T) {
	s, eng, sl, n, _ := setup(t)
	ctx := context.Background()
	insert(t, eng, "ending", 10000)
	insert(t, eng, "warned", 10000)
	insert(t, eng, "fresh", 10000)
	_, err := eng.SetStartDate(ctx, "ending", today.AddDate(0, 0, -365))
	require.NoError(t, err)
	_, err = eng.SetStartDate(ctx, "warned", today.AddDate(0, 0, -275))
	require.NoError(t, err)

	sum := s.RunExpiryNow()
	assert.Equal(t, 3, sum.Checked)
	assert.Equal(t, 1, sum.Warned)
	assert.Equal(t, 1, sum.Locked)
	assert.True(t, sl.Locked["ending"])
	require.Len(t, n.sent, 2)
	kinds := []model.NoticeKind{n.sent[0].Kind, n.sent[1].Kind}
	assert.ElementsMatch(t, []model.NoticeKind{model.NoticeProposalExpired, model.NoticeProposalExpiring}, kinds)
}

func TestRegisterAll(t *testing.T) {
	s, _, _, _, _ := setup(t)
	require.NoError(t, s.RegisterAll("0 0 6 * * *", "0 30 6 * * *"))
	assert.Len(t, s.Cron.Entries(), 2)
	assert.Error(t, s.RegisterAll("not a cron", "0 30 6 * * *"))
}

func TestHandleCommand(t *testing.T) {
	s, eng, sl, _, _ := setup(t)
	ctx := context.Background()
	insert(t, eng, "sam", 12000)
	sl.SetUsage("sam", "smp", 6000)

	assert.Equal(t, "<pre>type,smp,gpu,investment\nproposal,12000,0,\n</pre>", s.HandleCommand(ctx, "/sus", []string{"sam"}))
	assert.Contains(t, s.HandleCommand(ctx, "/info", []string{"sam"}), "smp=12000")
	assert.Equal(t, "<b>sam</b> used 6000 of 12000 SUs (50.0%), level TwentyFive",
		s.HandleCommand(ctx, "/check", []string{"sam"}))
	assert.Contains(t, s.HandleCommand(ctx, "/sweep", nil), "usage: 1 checked")
	assert.Equal(t, helpText, s.HandleCommand(ctx, "/sus", nil))
	assert.Equal(t, helpText, s.HandleCommand(ctx, "hello", nil))
	assert.Contains(t, s.HandleCommand(ctx, "/info", []string{"nobody"}), "nobody")
}
