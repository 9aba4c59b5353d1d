// SPDX-License-Identifier: AGPL-3.0-only

package queryrunner

import (
	"context"

	"github.com/grafana/panelquery/pkg/querydata"
)

// SideChannelData is a dashboard-level result merged into a panel's stream:
// annotations and alert state produced outside the panel's own queries.
type SideChannelData struct {
	Annotations []*querydata.Frame
	AlertState  *querydata.AlertState
}

// SideChannel is the dashboard-level query runner boundary. Results streams
// annotation/alert-state updates for one panel; the channel is closed when
// ctx is cancelled. A side channel that never produces data must not stall
// the panel's own results.
type SideChannel interface {
	Results(ctx context.Context, panelID int64) <-chan SideChannelData
}

// preprocessResult normalizes one raw emission against the previously
// published result: it guarantees a non-nil series list and assigns the
// structure revision, incrementing it only when the series schema changed
// since the last published value.
func preprocessResult(next querydata.PanelData, last *querydata.PanelData) querydata.PanelData {
	if next.Series == nil {
		next.Series = []*querydata.Frame{}
	}

	switch {
	case last == nil:
		next.StructureRev = 1
	case querydata.SchemaChanged(next.Series, last.Series):
		next.StructureRev = last.StructureRev + 1
	default:
		next.StructureRev = last.StructureRev
	}
	return next
}

// mergeSideChannel combines the primary execution stream with the
// dashboard-level side channel as a "latest of both" join. Every primary
// emission is forwarded immediately, combined with the most recent
// side-channel value if one has arrived; a side-channel update re-emits the
// latest primary value with the fresh side data. The merge never waits for
// the side channel's first value.
func mergeSideChannel(ctx context.Context, primary <-chan querydata.PanelData, side <-chan SideChannelData, support querydata.DataSupport) <-chan querydata.PanelData {
	out := make(chan querydata.PanelData)

	go func() {
		defer close(out)

		var latestPrimary *querydata.PanelData
		var latestSide *SideChannelData

		for primary != nil || side != nil {
			select {
			case <-ctx.Done():
				return

			case data, ok := <-primary:
				if !ok {
					primary = nil
					continue
				}
				latestPrimary = &data
				select {
				case out <- combineSideChannel(data, latestSide, support):
				case <-ctx.Done():
					return
				}

			case sideData, ok := <-side:
				if !ok {
					side = nil
					continue
				}
				latestSide = &sideData
				if latestPrimary == nil {
					continue
				}
				select {
				case out <- combineSideChannel(*latestPrimary, latestSide, support):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// combineSideChannel attaches side-channel annotations and alert state to a
// panel result, after the panel's own annotation frames.
func combineSideChannel(data querydata.PanelData, side *SideChannelData, support querydata.DataSupport) querydata.PanelData {
	if side == nil {
		return data
	}

	if support.Annotations && len(side.Annotations) > 0 {
		merged := make([]*querydata.Frame, 0, len(data.Annotations)+len(side.Annotations))
		merged = append(merged, data.Annotations...)
		for _, frame := range side.Annotations {
			if frame.Topic() != querydata.TopicAnnotations {
				tagged := *frame
				meta := querydata.FrameMeta{Topic: querydata.TopicAnnotations}
				if frame.Meta != nil {
					meta = *frame.Meta
					meta.Topic = querydata.TopicAnnotations
				}
				tagged.Meta = &meta
				frame = &tagged
			}
			merged = append(merged, frame)
		}
		data.Annotations = merged
	}
	if support.AlertStates {
		data.AlertState = side.AlertState
	}
	return data
}
