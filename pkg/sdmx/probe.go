package sdmx

import (
	"context"
	"fmt"
	"time"

	"github.com/macrodata/statpipe/pkg/version"
)

// Edition probing. Flows keyed by publication edition have no discovery
// endpoint, so the freshest edition is found by replaying a cheap query
// month by month until one returns data.

const (
	// maxMonthsBack caps the probe walk at two years.
	maxMonthsBack = 24

	// probeTimeout bounds each single probe request.
	probeTimeout = 30 * time.Second
)

// FindLatestEdition returns the newest month token for which the flow
// publishes data under keyPrefix+token, walking back from the current
// month. keyPrefix is the series key up to but not including the
// edition dimension, e.g. "Q.IT.B1G.S14...V.S.N.".
func (c *Client) FindLatestEdition(ctx context.Context, flow, keyPrefix string) (string, error) {
	return c.findLatestEditionAt(ctx, flow, keyPrefix, time.Now())
}

func (c *Client) findLatestEditionAt(ctx context.Context, flow, keyPrefix string, now time.Time) (string, error) {
	// Anchor on the first of the month so AddDate cannot slide over
	// short months.
	anchor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i <= maxMonthsBack; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		month := anchor.AddDate(0, -i, 0)
		edition := version.MonthToken(month)

		// Probing the year before the edition keeps the response tiny
		// while still proving the edition exists.
		window := month.Year() - 1
		q := DataQuery{
			Flow:        flow,
			Key:         keyPrefix + edition,
			StartPeriod: fmt.Sprintf("%d-01-01", window),
			EndPeriod:   fmt.Sprintf("%d-12-31", window),
		}

		attemptCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		ds, err := c.FetchDataset(attemptCtx, q)
		cancel()
		if err != nil {
			c.logger.Debug("edition probe miss", "flow", flow, "edition", edition, "error", err)
			continue
		}

		c.logger.Info("edition probe hit", "flow", flow, "edition", edition, "series", len(ds.Series))
		return edition, nil
	}

	return "", fmt.Errorf("sdmx: no published edition for flow %s in the last %d months", flow, maxMonthsBack)
}
