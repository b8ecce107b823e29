package notifier

import (
	"fmt"
	"html"
	"strings"
	"text/tabwriter"

	"crcbank/internal/model"
)

const proposalGuidelines = "https://crc.pitt.edu/Pitt-CRC-Allocation-Proposal-Guidelines"

// Message is a rendered notice.
type Message struct {
	Subject string
	Body    string // HTML
}

// Render builds the owner-facing email for n. superCluster names the
// machine in the text, e.g. "H2P".
func Render(n *model.Notice, superCluster string) (*Message, error) {
	p := n.Proposal
	var b strings.Builder
	b.WriteString("<html>\n<head></head>\n<body>\n<p>\nTo Whom It May Concern,<br><br>\n")

	var subject string
	switch n.Kind {
	case model.NoticeThreshold:
		subject = fmt.Sprintf("Your allocation on %s has exceeded %d%% usage", superCluster, n.Level.Percent())
		b.WriteString(fmt.Sprintf("This email has been generated automatically because your account on %s has\n", superCluster))
		b.WriteString(fmt.Sprintf("exceeded %d%% usage. The allocation started on %s. You can request a\n",
			n.Level.Percent(), model.FormatDate(p.StartDate)))
		b.WriteString(fmt.Sprintf("supplemental allocation at\n%s.<br><br>\n", proposalGuidelines))
		b.WriteString("Your usage is printed below:<br>\n<pre>\n")
		b.WriteString(html.EscapeString(FormatUsageTable(n)))
		b.WriteString("</pre>\nInvestment status (if applicable):<br>\n<pre>\n")
		b.WriteString(html.EscapeString(FormatInvestmentTable(n.Investments)))
		b.WriteString("</pre>\n")

	case model.NoticeProposalExpiring:
		subject = fmt.Sprintf("Your proposal on %s expires on %s", superCluster, model.FormatDate(p.EndDate))
		b.WriteString(fmt.Sprintf("This email has been generated automatically because your proposal for account\n%s on %s will expire in 90 days on %s. The allocation started on %s.\n",
			html.EscapeString(n.Account), superCluster, model.FormatDate(p.EndDate), model.FormatDate(p.StartDate)))
		b.WriteString("If you would like to submit another proposal or request a supplemental\n")
		b.WriteString(fmt.Sprintf("allocation please visit\n%s.<br><br>\n", proposalGuidelines))

	case model.NoticeProposalExpired:
		subject = fmt.Sprintf("Your proposal on %s has expired", superCluster)
		b.WriteString(fmt.Sprintf("This email has been generated automatically because your proposal for account\n%s on %s has expired. The allocation started on %s. If you would\n",
			html.EscapeString(n.Account), superCluster, model.FormatDate(p.StartDate)))
		b.WriteString(fmt.Sprintf("like to submit another proposal please visit\n%s.<br><br>\n", proposalGuidelines))

	default:
		return nil, fmt.Errorf("unknown notice kind %q", n.Kind)
	}

	b.WriteString("Thanks,<br><br>\nThe CRC Proposal Bot\n</p>\n</body>\n</html>\n")
	return &Message{Subject: subject, Body: b.String()}, nil
}

// FormatUsageTable lists allocation and usage per cluster.
func FormatUsageTable(n *model.Notice) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Cluster\tAllocated SUs\tUsed SUs")
	var allocated, used int64
	for _, c := range n.Clusters {
		fmt.Fprintf(w, "%s\t%d\t%d\n", c, n.Proposal.Allocations[c], n.Usage[c])
		allocated += n.Proposal.Allocations[c]
		used += n.Usage[c]
	}
	fmt.Fprintf(w, "Total\t%d\t%d\n", allocated, used)
	fmt.Fprintf(w, "Overall usage\t%.1f%%\t\n", n.UsagePercent)
	w.Flush()
	return b.String()
}

// FormatInvestmentTable lists the account's live investment pools.
func FormatInvestmentTable(invs []model.Investment) string {
	if len(invs) == 0 {
		return "No active investments\n"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Id\tTotal SUs\tCurrent\tRollover\tWithdrawn\tEnd date")
	for _, inv := range invs {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%s\n", inv.ID, inv.ServiceUnits, inv.CurrentSUs,
			inv.RolloverSUs, inv.WithdrawnSUs, model.FormatDate(inv.EndDate))
	}
	w.Flush()
	return b.String()
}

// FormatOperatorSummary is the short form sent to the operators' chat.
func FormatOperatorSummary(n *model.Notice) string {
	switch n.Kind {
	case model.NoticeThreshold:
		icon := "📈"
		if n.Level == model.LevelHundred {
			icon = "🔒"
		}
		return fmt.Sprintf("%s <b>%s</b> crossed %d%% (usage %.1f%%)", icon, html.EscapeString(n.Account),
			n.Level.Percent(), n.UsagePercent)
	case model.NoticeProposalExpiring:
		return fmt.Sprintf("⏳ <b>%s</b> proposal expires on %s", html.EscapeString(n.Account), model.FormatDate(n.Proposal.EndDate))
	case model.NoticeProposalExpired:
		return fmt.Sprintf("🔒 <b>%s</b> proposal expired, account locked", html.EscapeString(n.Account))
	}
	return fmt.Sprintf("<b>%s</b>: %s", html.EscapeString(n.Account), n.Kind)
}
