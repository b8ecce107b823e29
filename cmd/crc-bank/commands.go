package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"crcbank/internal/ledger"
	"crcbank/internal/model"
	"crcbank/internal/notifier"
	"crcbank/internal/scheduler"
)

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "insert":
		return a.insert(ctx, args)
	case "modify", "add", "change", "renewal":
		return a.allocationCommand(ctx, command, args)
	case "date":
		return a.date(ctx, args)
	case "investor":
		return a.investor(ctx, args)
	case "withdraw":
		return a.withdraw(ctx, args)
	case "info":
		return a.info(ctx, args)
	case "get_sus":
		return a.getSUs(ctx, args)
	case "check_sus_limit":
		return a.checkSUsLimit(ctx, args)
	case "check_proposal_end_date":
		return a.checkProposalEndDate(ctx, args)
	case "dump":
		return a.dump(ctx, args)
	case "import":
		return a.importFiles(ctx, args)
	case "daemon":
		return a.daemon(ctx, args)
	default:
		return usageError(fmt.Sprintf("unknown command %q\n\n%s", command, usageText))
	}
}

// parse parses args for command and requires exactly the named positionals.
func parse(fs *pflag.FlagSet, args []string, names ...string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, usageError(fmt.Sprintf("%s: %v", fs.Name(), err))
	}
	if fs.NArg() != len(names) {
		return nil, usageError(fmt.Sprintf("usage: crc-bank %s <%s>", fs.Name(), strings.Join(names, "> <")))
	}
	return fs.Args(), nil
}

func newFlagSet(command string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	fs.Usage = func() {}
	return fs
}

// clusterFlags registers one --<cluster> flag per tracked cluster.
func (a *app) clusterFlags(fs *pflag.FlagSet) []*string {
	vals := make([]*string, len(a.cfg.Ledger.Clusters))
	for i, c := range a.cfg.Ledger.Clusters {
		vals[i] = fs.String(c, "0", fmt.Sprintf("service units on %s", c))
	}
	return vals
}

func (a *app) allocations(account string, vals []*string) (model.Allocations, error) {
	raw := make([]string, len(vals))
	for i, v := range vals {
		raw[i] = *v
	}
	return ledger.ParseAllocations(account, a.cfg.Ledger.Clusters, raw)
}

func (a *app) printProposal(p *model.Proposal) {
	fmt.Fprintf(a.out, "%s: %s proposal %s to %s, notified %v\n  %s\n", p.Account, p.Type,
		model.FormatDate(p.StartDate), model.FormatDate(p.EndDate), p.PercentNotified,
		p.Allocations.Format(a.cfg.Ledger.Clusters))
}

func (a *app) insert(ctx context.Context, args []string) error {
	fs := newFlagSet("insert")
	vals := a.clusterFlags(fs)
	pos, err := parse(fs, args, "type", "account")
	if err != nil {
		return err
	}
	typ, err := model.ParseProposalType(pos[0])
	if err != nil {
		return usageError(err.Error())
	}
	alloc, err := a.allocations(pos[1], vals)
	if err != nil {
		return err
	}
	p, err := a.engine.Insert(ctx, pos[1], typ, alloc)
	if err != nil {
		return err
	}
	a.printProposal(p)
	return nil
}

func (a *app) allocationCommand(ctx context.Context, command string, args []string) error {
	fs := newFlagSet(command)
	vals := a.clusterFlags(fs)
	pos, err := parse(fs, args, "account")
	if err != nil {
		return err
	}
	account := pos[0]
	alloc, err := a.allocations(account, vals)
	if err != nil {
		return err
	}

	var p *model.Proposal
	switch command {
	case "modify":
		p, err = a.engine.Modify(ctx, account, alloc)
	case "add":
		p, err = a.engine.Add(ctx, account, alloc)
	case "change":
		p, err = a.engine.Change(ctx, account, alloc)
	case "renewal":
		res, rerr := a.engine.Renew(ctx, account, alloc)
		if res != nil {
			fmt.Fprintf(a.out, "archived period %s to %s, %d investments archived, rolled over %d SUs\n",
				model.FormatDate(res.Archive.StartDate), model.FormatDate(res.Archive.EndDate),
				len(res.ArchivedInvestments), res.RolloverAmount)
			a.printProposal(&res.Proposal)
		}
		return rerr
	}
	if err != nil {
		return err
	}
	a.printProposal(p)
	return nil
}

func (a *app) date(ctx context.Context, args []string) error {
	pos, err := parse(newFlagSet("date"), args, "account", "MM/DD/YY")
	if err != nil {
		return err
	}
	start, err := ledger.ParseStartDate(pos[0], pos[1])
	if err != nil {
		return err
	}
	p, err := a.engine.SetStartDate(ctx, pos[0], start)
	if err != nil {
		return err
	}
	a.printProposal(p)
	return nil
}

func parseSUs(account, s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, &ledger.Error{Kind: ledger.ErrInvalidAmount, Account: account, Reason: fmt.Sprintf("given non-integer value `%s`", s)}
	}
	return n, nil
}

func (a *app) investor(ctx context.Context, args []string) error {
	pos, err := parse(newFlagSet("investor"), args, "account", "SUs")
	if err != nil {
		return err
	}
	sus, err := parseSUs(pos[0], pos[1])
	if err != nil {
		return err
	}
	inv, err := a.engine.AddInvestment(ctx, pos[0], sus)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "investment %d for %s: %d SUs, %d available now, ends %s\n",
		inv.ID, inv.Account, inv.ServiceUnits, inv.CurrentSUs, model.FormatDate(inv.EndDate))
	return nil
}

func (a *app) withdraw(ctx context.Context, args []string) error {
	pos, err := parse(newFlagSet("withdraw"), args, "account", "SUs")
	if err != nil {
		return err
	}
	sus, err := parseSUs(pos[0], pos[1])
	if err != nil {
		return err
	}
	res, err := a.engine.Withdraw(ctx, pos[0], sus)
	if err != nil {
		return err
	}
	for _, inv := range res.Touched {
		fmt.Fprintf(a.out, "investment %d: current %d, withdrawn %d of %d\n",
			inv.ID, inv.CurrentSUs, inv.WithdrawnSUs, inv.ServiceUnits)
	}
	return nil
}

func (a *app) info(ctx context.Context, args []string) error {
	fs := newFlagSet("info")
	history := fs.Int("history", 10, "number of recent actions to show")
	pos, err := parse(fs, args, "account")
	if err != nil {
		return err
	}
	info, err := a.engine.Info(ctx, pos[0])
	if err != nil {
		return err
	}
	a.printProposal(&info.Proposal)
	fmt.Fprintf(a.out, "\nInvestments:\n%s", notifier.FormatInvestmentTable(info.Investments))
	if len(info.InvestmentArchives) > 0 {
		fmt.Fprintln(a.out, "\nArchived this period:")
		for _, ar := range info.InvestmentArchives {
			fmt.Fprintf(a.out, "  investment %d: %d SUs, exhausted %s\n", ar.InvestmentID, ar.ServiceUnits,
				model.FormatDate(ar.ExhaustionDate))
		}
	}
	if len(info.ProposalArchives) > 0 {
		fmt.Fprintln(a.out, "\nPrevious periods:")
		for _, ar := range info.ProposalArchives {
			fmt.Fprintf(a.out, "  %s to %s: %s\n", model.FormatDate(ar.StartDate), model.FormatDate(ar.EndDate),
				ar.Allocations.Format(a.cfg.Ledger.Clusters))
		}
	}
	if a.actions != nil && *history > 0 {
		events, err := a.actions.Actions(pos[0], *history)
		if err != nil {
			log.Printf("[WARN] load action history: %v", err)
		} else if len(events) > 0 {
			fmt.Fprintln(a.out, "\nRecent actions:")
			for _, e := range events {
				fmt.Fprintf(a.out, "  %s %-24s %s\n", e.At.Format("2006-01-02 15:04"), e.Action, e.Note)
			}
		}
	}
	return nil
}

func (a *app) getSUs(ctx context.Context, args []string) error {
	pos, err := parse(newFlagSet("get_sus"), args, "account")
	if err != nil {
		return err
	}
	info, err := a.engine.Info(ctx, pos[0])
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, info.FormatSUs(a.cfg.Ledger.Clusters))
	return nil
}

func (a *app) checkSUsLimit(ctx context.Context, args []string) error {
	pos, err := parse(newFlagSet("check_sus_limit"), args, "account")
	if err != nil {
		return err
	}
	report, err := a.engine.CheckSUsLimit(ctx, pos[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: used %d of %d SUs (%.2f%%), notified %v\n", report.Account, report.Used,
		report.Total, report.Percent, report.Level)
	return nil
}

func (a *app) checkProposalEndDate(ctx context.Context, args []string) error {
	pos, err := parse(newFlagSet("check_proposal_end_date"), args, "account")
	if err != nil {
		return err
	}
	action, err := a.engine.CheckProposalEndDate(ctx, pos[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s\n", pos[0], action)
	return nil
}

func (a *app) dump(ctx context.Context, args []string) error {
	pos, err := parse(newFlagSet("dump"), args, "proposal.json", "investment.json")
	if err != nil {
		return err
	}
	for _, path := range pos {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("refusing to overwrite %s", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}
	snap, err := a.engine.Export(ctx)
	if err != nil {
		return err
	}
	if err := writeJSON(pos[0], snap.Proposals); err != nil {
		return err
	}
	if err := writeJSON(pos[1], snap.Investments); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "dumped %d proposals and %d investments\n", len(snap.Proposals), len(snap.Investments))
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (a *app) importFiles(ctx context.Context, args []string) error {
	pos, err := parse(newFlagSet("import"), args, "proposal.json", "investment.json")
	if err != nil {
		return err
	}
	snap := &ledger.Snapshot{}
	if err := readJSON(pos[0], &snap.Proposals); err != nil {
		return err
	}
	if err := readJSON(pos[1], &snap.Investments); err != nil {
		return err
	}
	if err := a.engine.Import(ctx, snap); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "imported %d proposals and %d investments\n", len(snap.Proposals), len(snap.Investments))
	return nil
}

func (a *app) daemon(ctx context.Context, args []string) error {
	fs := newFlagSet("daemon")
	runNow := fs.Bool("run-now", os.Getenv("RUN_ON_START") == "true", "run both sweeps once at start")
	if _, err := parse(fs, args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ops scheduler.Messenger
	if a.telegram != nil {
		ops = a.telegram
	}
	sched := scheduler.NewScheduler(ctx, a.engine, ops)
	if err := sched.RegisterAll(a.cfg.Schedule.UsageCron, a.cfg.Schedule.ExpiryCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if a.telegram != nil && a.cfg.Telegram.Polling {
		go a.telegram.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}
	if *runNow {
		log.Println("[INFO] running sweeps now")
		go func() {
			sched.RunUsageNow()
			sched.RunExpiryNow()
		}()
	}

	log.Println("[INFO] crc-bank daemon is running. Press Ctrl+C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Println("[INFO] shutdown signal received, stopping...")
	case <-ctx.Done():
	}
	cancel()
	return nil
}
