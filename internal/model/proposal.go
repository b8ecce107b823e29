package model

import (
	"fmt"
	"strings"
	"time"
)

// ProposalType selects the length of a proposal period.
type ProposalType int

const (
	ProposalStandard ProposalType = iota
	ProposalClass
	ProposalInvestorFunded
)

var proposalTypeTable = [...]struct {
	Name     string
	Duration int // days
}{
	ProposalStandard:       {"Standard", 365},
	ProposalClass:          {"Class", 122},
	ProposalInvestorFunded: {"InvestorFunded", 365},
}

// Duration returns the number of days a period of this type lasts.
func (t ProposalType) Duration() int {
	if !t.Valid() {
		return proposalTypeTable[ProposalStandard].Duration
	}
	return proposalTypeTable[t].Duration
}

func (t ProposalType) Valid() bool {
	return t >= ProposalStandard && t <= ProposalInvestorFunded
}

func (t ProposalType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("ProposalType(%d)", int(t))
	}
	return proposalTypeTable[t].Name
}

// EndDate returns start plus the type's duration.
func (t ProposalType) EndDate(start time.Time) time.Time {
	return Day(start).AddDate(0, 0, t.Duration())
}

// ParseProposalType accepts the names used on the command line.
func ParseProposalType(s string) (ProposalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "proposal", "standard":
		return ProposalStandard, nil
	case "class":
		return ProposalClass, nil
	case "investor", "investorfunded", "investor-funded":
		return ProposalInvestorFunded, nil
	}
	return 0, fmt.Errorf("valid proposal types are `proposal`, `class` or `investor`, not `%s`", s)
}

// Allocations maps a cluster name to a number of service units.
type Allocations map[string]int64

// Total sums the entries for the given clusters. Clusters missing from the map count as zero.
func (a Allocations) Total(clusters []string) int64 {
	var total int64
	for _, c := range clusters {
		total += a[c]
	}
	return total
}

// Clone returns an independent copy.
func (a Allocations) Clone() Allocations {
	out := make(Allocations, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Format renders the allocations as "smp=100, mpi=0" in cluster order.
func (a Allocations) Format(clusters []string) string {
	parts := make([]string, 0, len(clusters))
	for _, c := range clusters {
		parts = append(parts, fmt.Sprintf("%s=%d", c, a[c]))
	}
	return strings.Join(parts, ", ")
}

// Proposal is the active quota grant of an account.
type Proposal struct {
	ID              int64             `json:"id"`
	Account         string            `json:"account"`
	Type            ProposalType      `json:"proposal_type"`
	PercentNotified NotificationLevel `json:"percent_notified"`
	StartDate       time.Time         `json:"start_date"`
	EndDate         time.Time         `json:"end_date"`
	Allocations     Allocations       `json:"allocations"`
}

// ProposalArchive is the snapshot of a proposal taken when it is renewed.
type ProposalArchive struct {
	ID          int64        `json:"id"`
	ProposalID  int64        `json:"proposal_id"`
	Account     string       `json:"account"`
	Type        ProposalType `json:"proposal_type"`
	StartDate   time.Time    `json:"start_date"`
	EndDate     time.Time    `json:"end_date"`
	Allocations Allocations  `json:"allocations"`
	Usage       Allocations  `json:"usage"`
	ArchivedOn  time.Time    `json:"archived_on"`
}
