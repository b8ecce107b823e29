package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Ledger struct {
		Clusters   []string `yaml:"clusters"`
		MinimumSUs int64    `yaml:"minimum_sus"`
	} `yaml:"ledger"`
	Database struct {
		SQLitePath    string `yaml:"sqlite_path"`
		ActionLogPath string `yaml:"action_log_path"`
	} `yaml:"database"`
	Slurm struct {
		Sacctmgr     string `yaml:"sacctmgr"`
		Sshare       string `yaml:"sshare"`
		SuperCluster string `yaml:"super_cluster"`
		Mock         bool   `yaml:"mock"`
	} `yaml:"slurm"`
	Email struct {
		SMTPHost string `yaml:"smtp_host"`
		SMTPPort int    `yaml:"smtp_port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		Suffix   string `yaml:"suffix"`
	} `yaml:"email"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Polling  bool   `yaml:"polling"`
	} `yaml:"telegram"`
	Schedule struct {
		UsageCron  string `yaml:"usage_cron"`
		ExpiryCron string `yaml:"expiry_cron"`
	} `yaml:"schedule"`
	LogFile string `yaml:"log_file"`
	Proxy   string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("CRC_BANK_DB"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("CRC_BANK_CLUSTERS"); v != "" {
		cfg.Ledger.Clusters = splitList(v)
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SMTP_PORT: %w", err)
		}
		cfg.Email.SMTPPort = port
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("CRON_USAGE"); v != "" {
		cfg.Schedule.UsageCron = v
	}
	if v := os.Getenv("CRON_EXPIRY"); v != "" {
		cfg.Schedule.ExpiryCron = v
	}
	if v := os.Getenv("CRC_BANK_LOG"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if len(cfg.Ledger.Clusters) == 0 {
		cfg.Ledger.Clusters = []string{"smp", "mpi", "gpu", "htc"}
	}
	if cfg.Ledger.MinimumSUs == 0 {
		cfg.Ledger.MinimumSUs = 10000
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/crc_bank.db"
	}
	if cfg.Database.ActionLogPath == "" {
		cfg.Database.ActionLogPath = "data/crc_bank_actions.db"
	}
	if cfg.Slurm.Sacctmgr == "" {
		cfg.Slurm.Sacctmgr = "sacctmgr"
	}
	if cfg.Slurm.Sshare == "" {
		cfg.Slurm.Sshare = "sshare"
	}
	if cfg.Slurm.SuperCluster == "" {
		cfg.Slurm.SuperCluster = "H2P"
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 25
	}
	if cfg.Email.From == "" {
		cfg.Email.From = "noreply@pitt.edu"
	}
	if cfg.Email.Suffix == "" {
		cfg.Email.Suffix = "@pitt.edu"
	}
	if cfg.Schedule.UsageCron == "" {
		cfg.Schedule.UsageCron = "0 0 6 * * *"
	}
	if cfg.Schedule.ExpiryCron == "" {
		cfg.Schedule.ExpiryCron = "0 30 6 * * *"
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// cronParser accepts the six-field specs the scheduler registers with.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if len(c.Ledger.Clusters) == 0 {
		return fmt.Errorf("ledger.clusters is required")
	}
	seen := make(map[string]bool, len(c.Ledger.Clusters))
	for _, name := range c.Ledger.Clusters {
		if name == "" {
			return fmt.Errorf("ledger.clusters contains an empty name")
		}
		if seen[name] {
			return fmt.Errorf("ledger.clusters lists %q twice", name)
		}
		seen[name] = true
	}
	if c.Ledger.MinimumSUs <= 0 {
		return fmt.Errorf("ledger.minimum_sus must be positive")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.Email.SMTPPort <= 0 || c.Email.SMTPPort > 65535 {
		return fmt.Errorf("email.smtp_port %d out of range", c.Email.SMTPPort)
	}
	if _, err := cronParser.Parse(c.Schedule.UsageCron); err != nil {
		return fmt.Errorf("schedule.usage_cron: %w", err)
	}
	if _, err := cronParser.Parse(c.Schedule.ExpiryCron); err != nil {
		return fmt.Errorf("schedule.expiry_cron: %w", err)
	}
	return nil
}
