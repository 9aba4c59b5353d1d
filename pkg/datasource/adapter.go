// SPDX-License-Identifier: AGPL-3.0-only

package datasource

import (
	"context"

	"github.com/grafana/panelquery/pkg/querydata"
)

// QueryFunc is a request/response query implementation: resolve once and
// complete.
type QueryFunc func(ctx context.Context, req *querydata.Request) (querydata.PanelData, error)

// SingleShot adapts a plain request/response query function to the
// streaming Datasource contract, so the pipeline can treat single-shot and
// live datasources uniformly. Rejections are normalized into a single
// Error-state emission instead of surfacing as plain Go errors.
type SingleShot struct {
	ref      querydata.Ref
	name     string
	interval string
	query    QueryFunc
}

func NewSingleShot(ref querydata.Ref, name string, interval string, query QueryFunc) *SingleShot {
	return &SingleShot{ref: ref, name: name, interval: interval, query: query}
}

func (s *SingleShot) Ref() querydata.Ref { return s.ref }
func (s *SingleShot) Name() string       { return s.name }
func (s *SingleShot) Interval() string   { return s.interval }

func (s *SingleShot) Execute(ctx context.Context, req *querydata.Request) (<-chan querydata.PanelData, error) {
	out := make(chan querydata.PanelData, 1)
	go func() {
		defer close(out)

		data, err := s.query(ctx, req)
		if err != nil {
			data = NormalizeError(req, err)
		}
		select {
		case out <- data:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// StatusError carries an optional transport status alongside the message.
// Datasource implementations may return it to preserve HTTP-ish status codes
// through the pipeline.
type StatusError struct {
	Message string
	Status  int
}

func (e *StatusError) Error() string { return e.Message }

// NormalizeError converts a query rejection into an Error-state result with
// a normalized error descriptor, preserving the request's time range.
func NormalizeError(req *querydata.Request, err error) querydata.PanelData {
	qe := querydata.QueryError{Message: err.Error()}
	if statusErr, ok := err.(*StatusError); ok {
		qe.Status = statusErr.Status
	}
	if len(req.Queries) == 1 {
		qe.RefID = req.Queries[0].RefID
	}
	timeRange := req.Range
	return querydata.PanelData{
		State:     querydata.LoadingStateError,
		Series:    []*querydata.Frame{},
		TimeRange: &timeRange,
		Errors:    []querydata.QueryError{qe},
	}
}
