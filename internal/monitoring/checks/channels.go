package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/salesalert/internal/monitoring"
)

// ChannelProbe wraps a delivery channel's connectivity check.
type ChannelProbe struct {
	Channel string
	Check   func(context.Context) error
}

// Channels executes channel probes. A failing channel degrades readiness
// rather than failing it since other channels keep delivering.
func Channels(probes []ChannelProbe) monitoring.Check {
	return monitoring.NewCheck("channels", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if len(probes) == 0 {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "no delivery channels configured",
				Duration: time.Since(start),
			}
		}

		status := monitoring.StatusUp
		var failures []string

		for _, probe := range probes {
			if probe.Check == nil {
				continue
			}
			if err := probe.Check(ctx); err != nil {
				status = worstStatus(status, monitoring.StatusDegraded)
				failures = append(failures, fmt.Sprintf("%s: %v", probe.Channel, err))
			}
		}

		return monitoring.ProbeResult{
			Status:   status,
			Details:  strings.Join(failures, "; "),
			Duration: time.Since(start),
		}
	})
}
