// Package usecase contains application business logic.
package usecase

import (
	"sort"

	"github.com/eliteGoblin/screentimed/internal/domain"
)

// Aggregate groups raw usage records by app ID and sums their durations.
// Groups whose total is <= 0 are dropped. Output order follows first
// appearance in the input so downstream sorting stays deterministic.
func Aggregate(records []domain.UsageRecord) []domain.AppUsage {
	totals := make(map[string]int64, len(records))
	order := make([]string, 0, len(records))

	for _, r := range records {
		if _, seen := totals[r.AppID]; !seen {
			order = append(order, r.AppID)
		}
		totals[r.AppID] += r.DurationMillis
	}

	out := make([]domain.AppUsage, 0, len(order))
	for _, id := range order {
		if totals[id] <= 0 {
			continue
		}
		out = append(out, domain.AppUsage{AppID: id, DurationMillis: totals[id]})
	}
	return out
}

// FilterExcluded retains entries whose app ID is not in the exclusion set.
// Exact set membership; idempotent.
func FilterExcluded(usage []domain.AppUsage, excluded map[string]struct{}) []domain.AppUsage {
	if len(excluded) == 0 {
		return usage
	}

	out := make([]domain.AppUsage, 0, len(usage))
	for _, u := range usage {
		if _, skip := excluded[u.AppID]; skip {
			continue
		}
		out = append(out, u)
	}
	return out
}

// SortByDurationDesc returns a copy sorted by duration descending.
// The sort is stable: ties keep their input order.
func SortByDurationDesc(usage []domain.AppUsage) []domain.AppUsage {
	sorted := make([]domain.AppUsage, len(usage))
	copy(sorted, usage)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DurationMillis > sorted[j].DurationMillis
	})
	return sorted
}
