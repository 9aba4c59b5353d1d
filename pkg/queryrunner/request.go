// SPDX-License-Identifier: AGPL-3.0-only

package queryrunner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/grafana/dskit/multierror"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/grafana/panelquery/pkg/datasource"
	"github.com/grafana/panelquery/pkg/interval"
	"github.com/grafana/panelquery/pkg/querydata"
)

// errMultiValueDatasource is the advisory surfaced when a panel queries a
// variable datasource with multiple selected values but is not configured to
// repeat by that variable. The query still runs; the result is forced to
// Error state so the user sees the warning.
var errMultiValueDatasource = errors.New(
	"panel is using a variable datasource with multiple selected values but is not repeated by that variable; configure repeating to query each datasource")

// RequestIDSource hands out the monotonic per-process request ids stamped on
// every query request. Inject one shared instance so ids stay unique across
// all runners.
type RequestIDSource struct {
	counter *atomic.Int64
}

func NewRequestIDSource() *RequestIDSource {
	// The first id handed out is Q100.
	return &RequestIDSource{counter: atomic.NewInt64(99)}
}

// Next returns a fresh id of the form "Q<n>", strictly increasing.
func (s *RequestIDSource) Next() string {
	return fmt.Sprintf("Q%d", s.counter.Inc())
}

// RunOptions is the input of one Runner.Run invocation, assembled by the
// panel (or any other owner) from its current configuration.
type RunOptions struct {
	// Datasource is the ref to resolve. Ignored when DatasourceInstance is set.
	Datasource         *querydata.Ref
	DatasourceInstance datasource.Datasource

	Queries []querydata.DataQuery

	PanelID       int64
	PanelName     string
	PanelPluginID string
	DashboardUID  string

	Timezone  string
	TimeRange querydata.TimeRange

	// MaxDataPoints is the point budget. When zero, WidthPixels is used, and
	// failing that the configured default.
	MaxDataPoints int64
	WidthPixels   int64

	// MinInterval is the panel's minimum interval, interpolated before
	// parsing. When empty, the datasource's configured interval applies.
	MinInterval string

	ScopedVars      querydata.ScopedVars
	CacheTimeout    string
	QueryCachingTTL int64
	App             string

	// RepeatByVariable is the variable the panel repeats by, if any. Used to
	// detect the multi-value variable datasource misconfiguration.
	RepeatByVariable string
}

func (o *RunOptions) validate() error {
	errs := multierror.New()
	if o.TimeRange.To.Before(o.TimeRange.From) {
		errs.Add(errors.New("time range ends before it starts"))
	}
	if o.MaxDataPoints < 0 {
		errs.Add(errors.New("max data points must not be negative"))
	}
	if o.WidthPixels < 0 {
		errs.Add(errors.New("width must not be negative"))
	}
	return errs.Err()
}

// builtRequest is the output of buildRequest: the request itself, the
// resolved datasource to execute it against, and an optional advisory that
// forces published results into Error state without blocking execution.
type builtRequest struct {
	request     *querydata.Request
	ds          datasource.Datasource
	advisory    error
	passThrough bool
}

// buildRequest assembles a well-formed query request from run options:
// resolves the datasource, attaches refs and ad-hoc filters, computes the
// interval and the synthetic interval variables, and stamps a fresh request
// id. All failures are returned as errors for the caller to convert into a
// single Error-state result.
func (r *Runner) buildRequest(ctx context.Context, opts RunOptions) (builtRequest, error) {
	if err := opts.validate(); err != nil {
		return builtRequest{}, err
	}

	ds := opts.DatasourceInstance
	if ds == nil {
		var err error
		ds, err = r.deps.Resolver.Get(ctx, opts.Datasource, opts.ScopedVars)
		if err != nil {
			return builtRequest{}, errors.Wrap(err, "resolving datasource")
		}
	}

	var advisory error
	if name, ok := datasource.IsVariableRef(opts.Datasource); ok {
		values := r.deps.Variables.ResolveValues(name, opts.ScopedVars)
		if len(values) > 1 && opts.RepeatByVariable != name {
			advisory = errMultiValueDatasource
		}
	}

	resolvedRef := ds.Ref()
	queries := make([]querydata.DataQuery, 0, len(opts.Queries))
	filter, hasFilter := ds.(datasource.QueryFilter)
	for _, q := range opts.Queries {
		if q.Hide {
			continue
		}
		if hasFilter && !filter.FilterQuery(q) {
			continue
		}
		if !resolvedRef.IsMixed() && (q.Datasource == nil || !q.Datasource.IsExpression()) {
			ref := resolvedRef
			q.Datasource = &ref
		}
		queries = append(queries, q)
	}

	lowerLimit, err := r.resolveLowerLimit(opts.MinInterval, opts.ScopedVars, ds)
	if err != nil {
		return builtRequest{}, err
	}

	maxDataPoints := opts.MaxDataPoints
	if maxDataPoints == 0 {
		maxDataPoints = opts.WidthPixels
	}
	if maxDataPoints == 0 {
		maxDataPoints = r.deps.Config.DefaultMaxDataPoints
	}

	iv := interval.Calculate(opts.TimeRange, maxDataPoints, lowerLimit)

	scopedVars := opts.ScopedVars.Copy()
	scopedVars["__interval"] = querydata.ScopedVar{Text: iv.Text, Value: iv.Text}
	scopedVars["__interval_ms"] = querydata.ScopedVar{
		Text:  strconv.FormatInt(iv.Milliseconds, 10),
		Value: strconv.FormatInt(iv.Milliseconds, 10),
	}

	req := &querydata.Request{
		ID:              r.deps.IDSource.Next(),
		App:             opts.App,
		Timezone:        opts.Timezone,
		PanelID:         opts.PanelID,
		PanelName:       opts.PanelName,
		PanelPluginID:   opts.PanelPluginID,
		DashboardUID:    opts.DashboardUID,
		Range:           opts.TimeRange,
		Interval:        iv.Duration,
		IntervalMs:      iv.Milliseconds,
		MaxDataPoints:   maxDataPoints,
		ScopedVars:      scopedVars,
		AdHocFilters:    r.deps.Variables.AdHocFilters(ds.Name()),
		CacheTimeout:    opts.CacheTimeout,
		QueryCachingTTL: opts.QueryCachingTTL,
		Queries:         queries,
		StartTime:       r.timeNow(),
	}

	return builtRequest{
		request:     req,
		ds:          ds,
		advisory:    advisory,
		passThrough: resolvedRef.IsDashboard(),
	}, nil
}

// resolveLowerLimit picks the interval floor: the interpolated per-panel min
// interval when set, else the datasource's configured interval, else none.
func (r *Runner) resolveLowerLimit(minInterval string, vars querydata.ScopedVars, ds datasource.Datasource) (time.Duration, error) {
	raw := minInterval
	if raw != "" {
		raw = r.deps.Variables.Replace(raw, vars)
	}
	if raw == "" {
		raw = ds.Interval()
	}
	if raw == "" {
		return time.Duration(r.deps.Config.DefaultMinInterval), nil
	}
	limit, err := interval.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing min interval %q", raw)
	}
	return limit, nil
}
