package slurm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// ExecRunner runs commands on the local host.
func ExecRunner(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Client talks to Slurm through sacctmgr and sshare.
type Client struct {
	Sacctmgr    string
	Sshare      string
	Clusters    []string
	EmailSuffix string
	Run         Runner
}

// NewClient creates a Client that shells out to the given binaries.
func NewClient(sacctmgr, sshare string, clusters []string, emailSuffix string) *Client {
	return &Client{
		Sacctmgr:    sacctmgr,
		Sshare:      sshare,
		Clusters:    clusters,
		EmailSuffix: emailSuffix,
		Run:         ExecRunner,
	}
}

func (c *Client) Name() string { return "slurm" }

// UsageHours returns the raw usage of account on cluster, converted from seconds to hours.
func (c *Client) UsageHours(ctx context.Context, account, cluster string) (int64, error) {
	out, err := c.Run(ctx, c.Sshare, "--noheader", "--account="+account, "--cluster="+cluster, "--format=RawUsage")
	if err != nil {
		return 0, fmt.Errorf("query usage for %s on %s: %w", account, cluster, err)
	}
	seconds, err := parseRawUsage(out)
	if err != nil {
		return 0, fmt.Errorf("parse usage for %s on %s: %w", account, cluster, err)
	}
	return seconds / 3600, nil
}

// parseRawUsage returns the first numeric line of sshare output. Multi-cluster
// invocations prefix the table with a "CLUSTER: name" line.
func parseRawUsage(out string) (int64, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "CLUSTER:") {
			continue
		}
		v, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unexpected RawUsage %q", line)
		}
		if v < 0 {
			return 0, fmt.Errorf("negative RawUsage %d", v)
		}
		return v, nil
	}
	return 0, fmt.Errorf("no RawUsage in output")
}

// MissingAssociations lists the clusters on which account has no association.
func (c *Client) MissingAssociations(ctx context.Context, account string) ([]string, error) {
	var missing []string
	for _, cluster := range c.Clusters {
		out, err := c.Run(ctx, c.Sacctmgr, "-n", "show", "assoc", "account="+account, "cluster="+cluster, "format=account,cluster")
		if err != nil {
			return nil, fmt.Errorf("check association for %s on %s: %w", account, cluster, err)
		}
		if strings.TrimSpace(out) == "" {
			missing = append(missing, cluster)
		}
	}
	return missing, nil
}

// Lock stops new jobs from running by zeroing the group TRES run minutes on every cluster.
func (c *Client) Lock(ctx context.Context, account string) error {
	return c.setRunMins(ctx, account, "cpu=0")
}

// Unlock clears the limit set by Lock.
func (c *Client) Unlock(ctx context.Context, account string) error {
	return c.setRunMins(ctx, account, "cpu=-1")
}

func (c *Client) setRunMins(ctx context.Context, account, value string) error {
	for _, cluster := range c.Clusters {
		if _, err := c.Run(ctx, c.Sacctmgr, "-i", "modify", "account", "where",
			"account="+account, "cluster="+cluster, "set", "GrpTresRunMins="+value); err != nil {
			return fmt.Errorf("set GrpTresRunMins=%s for %s on %s: %w", value, account, cluster, err)
		}
	}
	return nil
}

// ContactAddress builds the owner's email from the account description.
func (c *Client) ContactAddress(ctx context.Context, account string) (string, error) {
	out, err := c.Run(ctx, c.Sacctmgr, "-n", "-P", "show", "account", account, "format=description")
	if err != nil {
		return "", fmt.Errorf("look up description for %s: %w", account, err)
	}
	desc := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	if desc == "" {
		return "", fmt.Errorf("account %s has no description to derive a contact from", account)
	}
	return desc + c.EmailSuffix, nil
}
