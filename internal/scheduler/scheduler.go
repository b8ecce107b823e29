package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"crcbank/internal/ledger"
	"crcbank/internal/model"

	"github.com/robfig/cron/v3"
)

// Messenger reaches the operators. TelegramNotifier satisfies it.
type Messenger interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// SweepSummary counts what one pass over all accounts did.
type SweepSummary struct {
	Task      string
	Checked   int
	Escalated int
	Warned    int
	Locked    int
	Skipped   int
	Failed    []string
}

func (s *SweepSummary) String() string {
	return fmt.Sprintf("%s: %d checked, %d escalated, %d warned, %d locked, %d skipped, %d failed",
		s.Task, s.Checked, s.Escalated, s.Warned, s.Locked, s.Skipped, len(s.Failed))
}

// Scheduler runs the daily usage and expiry sweeps.
type Scheduler struct {
	Cron      *cron.Cron
	Engine    *ledger.Engine
	Operators Messenger // optional
	Ctx       context.Context

	// one sweep at a time; both touch the same proposals
	mu sync.Mutex
}

// NewScheduler creates a new Scheduler. ops may be nil.
func NewScheduler(ctx context.Context, eng *ledger.Engine, ops Messenger) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Engine:    eng,
		Operators: ops,
		Ctx:       ctx,
	}
}

// RegisterAll registers the usage and expiry sweeps.
func (s *Scheduler) RegisterAll(usageCron, expiryCron string) error {
	if _, err := s.Cron.AddFunc(usageCron, func() { s.report(s.RunUsageNow()) }); err != nil {
		return fmt.Errorf("register usage sweep: %w", err)
	}
	if _, err := s.Cron.AddFunc(expiryCron, func() { s.report(s.RunExpiryNow()) }); err != nil {
		return fmt.Errorf("register expiry sweep: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunUsageNow runs check_sus_limit for every account.
func (s *Scheduler) RunUsageNow() *SweepSummary {
	return s.sweep("usage", func(ctx context.Context, account string, sum *SweepSummary) error {
		report, err := s.Engine.CheckSUsLimit(ctx, account)
		if err != nil {
			return err
		}
		if report.Level > report.Previous {
			sum.Escalated++
		}
		if report.Locked {
			sum.Locked++
		}
		return nil
	})
}

// RunExpiryNow runs check_proposal_end_date for every account.
func (s *Scheduler) RunExpiryNow() *SweepSummary {
	return s.sweep("expiry", func(ctx context.Context, account string, sum *SweepSummary) error {
		action, err := s.Engine.CheckProposalEndDate(ctx, account)
		if err != nil {
			return err
		}
		switch action {
		case ledger.ExpiryWarned:
			sum.Warned++
		case ledger.ExpiryLocked:
			sum.Locked++
		}
		return nil
	})
}

// sweep applies check to each account. A failing account does not stop the
// pass; accounts already locked at 100% are skipped.
func (s *Scheduler) sweep(task string, check func(ctx context.Context, account string, sum *SweepSummary) error) *SweepSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("[INFO] running %s sweep", task)
	sum := &SweepSummary{Task: task}
	proposals, err := s.Engine.Store.ListProposals(s.Ctx)
	if err != nil {
		log.Printf("[ERROR] %s sweep: list proposals: %v", task, err)
		sum.Failed = append(sum.Failed, "*")
		return sum
	}
	for _, p := range proposals {
		if s.Ctx.Err() != nil {
			break
		}
		sum.Checked++
		err := check(s.Ctx, p.Account, sum)
		switch {
		case err == nil:
		case errors.Is(err, ledger.ErrAlreadyLocked):
			sum.Skipped++
		default:
			log.Printf("[ERROR] %s sweep: %v", task, err)
			sum.Failed = append(sum.Failed, p.Account)
		}
	}
	log.Printf("[INFO] %s", sum)
	return sum
}

// report tells the operators about failed sweeps.
func (s *Scheduler) report(sum *SweepSummary) {
	if len(sum.Failed) == 0 || s.Operators == nil {
		return
	}
	msg := fmt.Sprintf("❌ <b>%s sweep</b>\n\n%s\nfailed: %s", sum.Task, sum, strings.Join(sum.Failed, ", "))
	if err := s.Operators.SendWithRetry(s.Ctx, msg, 3); err != nil {
		log.Printf("[ERROR] send sweep report: %v", err)
	}
}

const helpText = "Available commands:\n• /sus &lt;account&gt;\n• /info &lt;account&gt;\n• /check &lt;account&gt;\n• /sweep"

// HandleCommand answers an operator command from the chat.
func (s *Scheduler) HandleCommand(ctx context.Context, command string, args []string) string {
	needAccount := func() (string, bool) {
		if len(args) != 1 {
			return "", false
		}
		return args[0], true
	}

	switch command {
	case "/sus":
		account, ok := needAccount()
		if !ok {
			return helpText
		}
		info, err := s.Engine.Info(ctx, account)
		if err != nil {
			return err.Error()
		}
		return "<pre>" + info.FormatSUs(s.Engine.Clusters) + "</pre>"

	case "/info":
		account, ok := needAccount()
		if !ok {
			return helpText
		}
		info, err := s.Engine.Info(ctx, account)
		if err != nil {
			return err.Error()
		}
		p := info.Proposal
		return fmt.Sprintf("<b>%s</b> %s proposal\n%s to %s\nnotified: %v\nallocations: %s\ninvestments: %d live, %d archived this period",
			p.Account, p.Type, model.FormatDate(p.StartDate), model.FormatDate(p.EndDate), p.PercentNotified,
			p.Allocations.Format(s.Engine.Clusters), len(info.Investments), len(info.InvestmentArchives))

	case "/check":
		account, ok := needAccount()
		if !ok {
			return helpText
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		report, err := s.Engine.CheckSUsLimit(ctx, account)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("<b>%s</b> used %d of %d SUs (%.1f%%), level %v", account, report.Used, report.Total,
			report.Percent, report.Level)

	case "/sweep":
		return s.RunUsageNow().String()

	default:
		return helpText
	}
}
