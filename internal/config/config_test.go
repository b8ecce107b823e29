package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"smp", "mpi", "gpu", "htc"}, cfg.Ledger.Clusters)
	assert.EqualValues(t, 10000, cfg.Ledger.MinimumSUs)
	assert.Equal(t, "data/crc_bank.db", cfg.Database.SQLitePath)
	assert.Equal(t, "H2P", cfg.Slurm.SuperCluster)
	assert.Equal(t, "@pitt.edu", cfg.Email.Suffix)
	assert.Equal(t, "noreply@pitt.edu", cfg.Email.From)
	assert.Equal(t, "0 0 6 * * *", cfg.Schedule.UsageCron)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger:
  clusters: [smp, gpu]
  minimum_sus: 5000
database:
  sqlite_path: /var/lib/crc/bank.db
email:
  smtp_host: mail.example.edu
`), 0o644))

	t.Setenv("CRC_BANK_CLUSTERS", "smp, mpi ,")
	t.Setenv("SMTP_HOST", "relay.example.edu")
	t.Setenv("CRON_USAGE", "0 15 * * * *")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"smp", "mpi"}, cfg.Ledger.Clusters)
	assert.EqualValues(t, 5000, cfg.Ledger.MinimumSUs)
	assert.Equal(t, "/var/lib/crc/bank.db", cfg.Database.SQLitePath)
	assert.Equal(t, "relay.example.edu", cfg.Email.SMTPHost)
	assert.Equal(t, "0 15 * * * *", cfg.Schedule.UsageCron)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ledger: [unterminated"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"duplicate cluster", func(c *Config) { c.Ledger.Clusters = []string{"smp", "smp"} }, "twice"},
		{"empty cluster", func(c *Config) { c.Ledger.Clusters = []string{"smp", ""} }, "empty name"},
		{"no clusters", func(c *Config) { c.Ledger.Clusters = nil }, "clusters is required"},
		{"negative minimum", func(c *Config) { c.Ledger.MinimumSUs = -1 }, "minimum_sus"},
		{"half telegram", func(c *Config) { c.Telegram.BotToken = "x" }, "set together"},
		{"bad cron", func(c *Config) { c.Schedule.ExpiryCron = "every day" }, "expiry_cron"},
		{"bad port", func(c *Config) { c.Email.SMTPPort = 70000 }, "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
