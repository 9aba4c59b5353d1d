// SPDX-License-Identifier: AGPL-3.0-only

package interval

import (
	"time"

	"github.com/prometheus/common/model"

	"github.com/grafana/panelquery/pkg/querydata"
)

// Interval is a computed query resolution: a duration plus its
// human-friendly text form (Prometheus duration notation).
type Interval struct {
	Text         string
	Duration     time.Duration
	Milliseconds int64
}

// roundingLadder maps raw per-point durations to "nice" intervals. The entry
// used is the first whose threshold is not exceeded.
var roundingLadder = []struct {
	upTo  time.Duration
	round time.Duration
}{
	{10 * time.Millisecond, time.Millisecond},
	{15 * time.Millisecond, 10 * time.Millisecond},
	{35 * time.Millisecond, 20 * time.Millisecond},
	{75 * time.Millisecond, 50 * time.Millisecond},
	{187500 * time.Microsecond, 100 * time.Millisecond},
	{375 * time.Millisecond, 200 * time.Millisecond},
	{750 * time.Millisecond, 500 * time.Millisecond},
	{1500 * time.Millisecond, time.Second},
	{3500 * time.Millisecond, 2 * time.Second},
	{7500 * time.Millisecond, 5 * time.Second},
	{12500 * time.Millisecond, 10 * time.Second},
	{17500 * time.Millisecond, 15 * time.Second},
	{25 * time.Second, 20 * time.Second},
	{45 * time.Second, 30 * time.Second},
	{90 * time.Second, time.Minute},
	{210 * time.Second, 2 * time.Minute},
	{450 * time.Second, 5 * time.Minute},
	{750 * time.Second, 10 * time.Minute},
	{1050 * time.Second, 15 * time.Minute},
	{1500 * time.Second, 20 * time.Minute},
	{45 * time.Minute, 30 * time.Minute},
	{90 * time.Minute, time.Hour},
	{150 * time.Minute, 2 * time.Hour},
	{6 * time.Hour, 3 * time.Hour},
	{12 * time.Hour, 6 * time.Hour},
	{24 * time.Hour, 12 * time.Hour},
	{7 * 24 * time.Hour, 24 * time.Hour},
	{3 * 7 * 24 * time.Hour, 7 * 24 * time.Hour},
	{42 * 24 * time.Hour, 30 * 24 * time.Hour},
}

const yearInterval = 365 * 24 * time.Hour

// Round snaps a raw interval to the nearest human-friendly unit.
func Round(raw time.Duration) time.Duration {
	for _, step := range roundingLadder {
		if raw <= step.upTo {
			return step.round
		}
	}
	return yearInterval
}

// Calculate computes the query resolution for a time range and point budget,
// clamped upward so it never falls below lowerLimit. A maxDataPoints of zero
// or less means the caller supplied no budget; a single point is assumed so
// the division stays defined.
func Calculate(timeRange querydata.TimeRange, maxDataPoints int64, lowerLimit time.Duration) Interval {
	if maxDataPoints <= 0 {
		maxDataPoints = 1
	}

	computed := Round(timeRange.Duration() / time.Duration(maxDataPoints))
	if computed < lowerLimit {
		computed = Round(lowerLimit)
		if computed < lowerLimit {
			computed = lowerLimit
		}
	}

	return Interval{
		Text:         FormatDuration(computed),
		Duration:     computed,
		Milliseconds: computed.Milliseconds(),
	}
}

// FormatDuration renders a duration in Prometheus notation ("500ms", "15s",
// "2m", "1h", "1d", "1w", "1y").
func FormatDuration(d time.Duration) string {
	return model.Duration(d).String()
}

// ParseDuration parses a duration in Prometheus notation, accepting the day,
// week and year units plain Go durations lack.
func ParseDuration(s string) (time.Duration, error) {
	d, err := model.ParseDuration(s)
	return time.Duration(d), err
}
