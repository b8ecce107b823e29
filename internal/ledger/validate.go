package ledger

import (
	"strconv"
	"strings"

	"crcbank/internal/model"
)

// ParseAllocations reads one integer per tracked cluster, in cluster order.
func ParseAllocations(account string, clusters, values []string) (model.Allocations, error) {
	if len(values) != len(clusters) {
		return nil, fail(ErrInvalidAmount, account, "expected %d values (%s), got %d",
			len(clusters), strings.Join(clusters, ", "), len(values))
	}
	alloc := make(model.Allocations, len(clusters))
	var bad []string
	for i, cluster := range clusters {
		v, err := strconv.ParseInt(strings.TrimSpace(values[i]), 10, 64)
		if err != nil {
			bad = append(bad, "given non-integer value `"+values[i]+"` for cluster `"+cluster+"`")
			continue
		}
		alloc[cluster] = v
	}
	if len(bad) > 0 {
		return nil, fail(ErrInvalidAmount, account, "%s", strings.Join(bad, "; "))
	}
	return alloc, nil
}

// checkAllocations validates alloc and returns a copy holding exactly the tracked
// clusters. Grants and resets must reach MinimumSUs; top-ups only need a positive total.
func (e *Engine) checkAllocations(account string, alloc model.Allocations, requireMinimum bool) (model.Allocations, error) {
	tracked := make(map[string]bool, len(e.Clusters))
	for _, c := range e.Clusters {
		tracked[c] = true
	}
	out := make(model.Allocations, len(e.Clusters))
	for cluster, v := range alloc {
		if !tracked[cluster] {
			return nil, fail(ErrInvalidAmount, account, "cluster `%s` is not tracked (tracked: %s)",
				cluster, strings.Join(e.Clusters, ", "))
		}
		if v < 0 {
			return nil, fail(ErrInvalidAmount, account, "negative value %d for cluster `%s`", v, cluster)
		}
		out[cluster] = v
	}
	for _, c := range e.Clusters {
		if _, ok := out[c]; !ok {
			out[c] = 0
		}
	}

	total := out.Total(e.Clusters)
	if requireMinimum && total < e.MinimumSUs {
		return nil, fail(ErrInvalidAmount, account, "total SUs should be at least %d, got %d", e.MinimumSUs, total)
	}
	if total <= 0 {
		return nil, fail(ErrInvalidAmount, account, "total SUs should be greater than zero, got %d", total)
	}
	return out, nil
}
