// SPDX-License-Identifier: AGPL-3.0-only

package queryrunner

import "github.com/grafana/panelquery/pkg/querydata"

// shouldPublish decides whether a newly arrived result differs from the last
// published one. When series, annotations, state and errors are all
// unchanged, next's series and annotations are rewritten to reuse last's
// references (preserving downstream identity-based memoization) and the
// value is dropped. Streaming results are always published.
func shouldPublish(next *querydata.PanelData, last *querydata.PanelData) bool {
	if last == nil || next.State == querydata.LoadingStateStreaming {
		return true
	}

	if next.State != last.State ||
		!querydata.ErrorsEqual(next.Errors, last.Errors) ||
		!querydata.FramesEqual(next.Series, last.Series) ||
		!querydata.FramesEqual(next.Annotations, last.Annotations) {
		return true
	}

	next.Series = last.Series
	next.Annotations = last.Annotations
	return false
}
