package model

// NoticeKind names the event an account owner is told about.
type NoticeKind string

const (
	NoticeThreshold        NoticeKind = "threshold-crossed"
	NoticeProposalExpiring NoticeKind = "proposal-expiring"
	NoticeProposalExpired  NoticeKind = "proposal-expired"
)

// Notice carries what a notifier needs to render a message.
type Notice struct {
	Kind         NoticeKind
	Account      string
	Level        NotificationLevel
	UsagePercent float64
	Proposal     Proposal
	Usage        Allocations // hours per cluster this period
	Investments  []Investment
	Clusters     []string
}
