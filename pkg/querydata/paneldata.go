// SPDX-License-Identifier: AGPL-3.0-only

package querydata

import (
	"fmt"
	"time"
)

// LoadingState tags a PanelData value with where its query execution stands.
type LoadingState int

const (
	LoadingStateNotStarted LoadingState = iota
	LoadingStateLoading
	LoadingStateStreaming
	LoadingStateDone
	LoadingStateError
)

func (s LoadingState) String() string {
	switch s {
	case LoadingStateNotStarted:
		return "NotStarted"
	case LoadingStateLoading:
		return "Loading"
	case LoadingStateStreaming:
		return "Streaming"
	case LoadingStateDone:
		return "Done"
	case LoadingStateError:
		return "Error"
	default:
		return fmt.Sprintf("LoadingState(%d)", int(s))
	}
}

// TimeRange is the half-open interval a query covers.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// QueryError is an error carried as data on PanelData, so that every
// subscriber observes it independently.
type QueryError struct {
	RefID   string
	Message string
	Status  int
}

func (e QueryError) Error() string {
	if e.RefID != "" {
		return fmt.Sprintf("query %s: %s", e.RefID, e.Message)
	}
	return e.Message
}

// AlertState is dashboard-level alerting state merged in through the
// side channel.
type AlertState struct {
	ID    int64
	State string
}

// DataSupport declares which side-channel results a panel consumes.
type DataSupport struct {
	Annotations bool
	AlertStates bool
}

// PanelData is the unit flowing through the pipeline: the result of one
// query execution at one point in time. Stages produce new values; consumers
// must treat a received PanelData as read-only.
type PanelData struct {
	State       LoadingState
	Series      []*Frame
	Annotations []*Frame
	AlertState  *AlertState
	Request     *Request
	TimeRange   *TimeRange
	Errors      []QueryError

	// StructureRev increments only when the schema of Series changes between
	// consecutive published values for the same panel.
	StructureRev int64
}

// ErrorPanelData builds a single Error-state result preserving the time
// range, used whenever a pipeline stage converts a failure into data.
func ErrorPanelData(err error, timeRange *TimeRange) PanelData {
	return PanelData{
		State:     LoadingStateError,
		Series:    []*Frame{},
		TimeRange: timeRange,
		Errors:    []QueryError{{Message: err.Error()}},
	}
}
