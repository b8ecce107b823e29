// crc-bank manages the service-unit ledger of the CRC clusters: proposals,
// investments, usage notifications, and account locking.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"crcbank/internal/config"
	"crcbank/internal/ledger"
	"crcbank/internal/notifier"
	"crcbank/internal/recorder"
	"crcbank/internal/slurm"
	"crcbank/internal/store"
)

const usageText = `usage: crc-bank [--config FILE] <command> [arguments]

commands:
  insert <standard|class|investor> <account> --<cluster>=SUs ...
  modify <account> --<cluster>=SUs ...    replace limits and restart the period
  add <account> --<cluster>=SUs ...       add to the current limits
  change <account> --<cluster>=SUs ...    replace limits, keep the dates
  date <account> <MM/DD/YY>               move the start of the period
  investor <account> <SUs>                add a five-year investment
  withdraw <account> <SUs>                move investment SUs into the current period
  renewal <account> --<cluster>=SUs ...   close the period and roll over
  info <account>
  get_sus <account>
  check_sus_limit <account>
  check_proposal_end_date <account>
  dump <proposal.json> <investment.json>
  import <proposal.json> <investment.json>
  daemon                                  run the daily sweeps until interrupted
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	err := run(os.Args[1:], os.Stdout)
	code := exitCode(err)
	if err != nil {
		if code == 0 {
			log.Printf("[INFO] %v", err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	os.Exit(code)
}

func run(args []string, stdout io.Writer) error {
	var cfgPath string
	flagSet := pflag.NewFlagSet("crc-bank", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&cfgPath, "config", "", "path to the YAML config (default $CONFIG_PATH or configs/config.yaml)")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprint(stdout, usageText)
			return nil
		}
		return usageError(err.Error())
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 || flagSet.Arg(0) == "help" {
		fmt.Fprint(stdout, usageText)
		return nil
	}

	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			cfgPath = v
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if cfg.LogFile != "" {
		f, err := openLog(cfg.LogFile)
		if err != nil {
			return err
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	a, err := newApp(cfg, stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	return a.dispatch(ctx, flagSet.Arg(0), flagSet.Args()[1:])
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// app is the wired ledger behind every command.
type app struct {
	cfg      *config.Config
	engine   *ledger.Engine
	actions  *recorder.SQLiteRecorder // nil when the action log is unavailable
	telegram *notifier.TelegramNotifier
	out      io.Writer
	closers  []io.Closer
}

func newApp(cfg *config.Config, out io.Writer) (*app, error) {
	a := &app{cfg: cfg, out: out}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.closers = append(a.closers, st)

	// Init recorder
	var rec recorder.Recorder
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.ActionLogPath)
	if err != nil {
		log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
		rec = recorder.NewNoopRecorder()
	} else {
		rec = sr
		a.actions = sr
		a.closers = append(a.closers, sr)
	}

	var sl interface {
		ledger.UsageSource
		ledger.Enforcer
		ledger.AssociationChecker
		notifier.ContactResolver
	}
	if cfg.Slurm.Mock {
		log.Println("[WARN] using the mock Slurm backend")
		sl = slurm.NewMock()
	} else {
		sl = slurm.NewClient(cfg.Slurm.Sacctmgr, cfg.Slurm.Sshare, cfg.Ledger.Clusters, cfg.Email.Suffix)
	}

	var primary notifier.Notifier = notifier.LogNotifier{}
	if cfg.Email.SMTPHost != "" {
		primary = notifier.NewEmailNotifier(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.Username,
			cfg.Email.Password, cfg.Email.From, cfg.Slurm.SuperCluster, sl)
	} else {
		log.Println("[WARN] email.smtp_host not set, notices are only logged")
	}
	fan := &notifier.Fanout{Primary: primary}
	if cfg.Telegram.BotToken != "" {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		fan.Copies = append(fan.Copies, a.telegram)
	}

	a.engine = ledger.NewEngine(st, ledger.Collaborators{
		Usage:        sl,
		Enforcer:     sl,
		Associations: sl,
		Notifier:     fan,
		Recorder:     rec,
	}, cfg.Ledger.Clusters, cfg.Ledger.MinimumSUs)
	return a, nil
}

func (a *app) Close() error {
	var errs []string
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}
