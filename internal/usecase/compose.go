package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/eliteGoblin/screentimed/internal/domain"
)

// DefaultTopN is how many applications get their own line in the report.
const DefaultTopN = 5

const noUsageMessage = "No screen time recorded today."

// Composer renders aggregated usage into the report message posted to the
// webhook. Labels come from the injected resolver; everything else is pure.
type Composer struct {
	labels domain.LabelResolver
	topN   int
}

// NewComposer creates a composer with the default top-N cutoff.
func NewComposer(labels domain.LabelResolver) *Composer {
	return &Composer{labels: labels, topN: DefaultTopN}
}

// NewComposerWithTopN creates a composer with a custom cutoff.
func NewComposerWithTopN(labels domain.LabelResolver, topN int) *Composer {
	return &Composer{labels: labels, topN: topN}
}

// Compose builds the report text for the given day.
//
// Layout:
//
//	:bar_chart: Screen time report (2026-08-29)
//	Total: 152m
//
//	YouTube: 45m
//	Chrome: 30m
//	Other: 12m
//
// Entries are sorted by duration descending (stable on ties), the top N get
// individual lines, and the rest fold into one "Other" line. The total in the
// header covers all entries regardless of the cutoff. An empty list yields a
// fixed no-usage message under the same header.
func (c *Composer) Compose(usage []domain.AppUsage, asOf time.Time) string {
	var b strings.Builder

	var totalMillis int64
	for _, u := range usage {
		totalMillis += u.DurationMillis
	}

	fmt.Fprintf(&b, ":bar_chart: Screen time report (%s)\n", asOf.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total: %dm\n", totalMillis/60000)

	if len(usage) == 0 {
		b.WriteString("\n")
		b.WriteString(noUsageMessage)
		return b.String()
	}

	sorted := SortByDurationDesc(usage)

	b.WriteString("\n")
	cutoff := c.topN
	if cutoff > len(sorted) {
		cutoff = len(sorted)
	}
	for _, u := range sorted[:cutoff] {
		fmt.Fprintf(&b, "%s: %dm\n", c.labels.Resolve(u.AppID), u.DurationMinutes())
	}

	if len(sorted) > c.topN {
		var otherMillis int64
		for _, u := range sorted[c.topN:] {
			otherMillis += u.DurationMillis
		}
		fmt.Fprintf(&b, "Other: %dm\n", otherMillis/60000)
	}

	return strings.TrimRight(b.String(), "\n")
}
