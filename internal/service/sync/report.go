package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/pkgsync/internal/logger"
)

// reportElapsed prints the human-readable wall-clock duration of the run.
func (r *runner) reportElapsed(ctx context.Context) {
	logger.Infof(ctx, "Finished in %s", formatElapsed(time.Since(r.startedAt)))
}

// formatElapsed renders a duration as days/hours/minutes/seconds, omitting
// zero-valued components and pluralizing each unit. Sub-second durations
// get a distinct rendering rather than an empty string.
func formatElapsed(d time.Duration) string {
	total := int64(d.Seconds())
	if total <= 0 {
		return "less than a second"
	}

	units := []struct {
		name    string
		seconds int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := make([]string, 0, len(units))
	for _, unit := range units {
		count := total / unit.seconds
		total %= unit.seconds

		if count == 0 {
			continue
		}

		name := unit.name
		if count != 1 {
			name += "s"
		}

		parts = append(parts, fmt.Sprintf("%d %s", count, name))
	}

	return strings.Join(parts, " ")
}
