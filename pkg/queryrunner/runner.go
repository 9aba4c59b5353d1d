// SPDX-License-Identifier: AGPL-3.0-only

// Package queryrunner is the core of the panel data pipeline: it turns a
// panel's query definitions into a replayed, de-duplicated stream of
// processed results. One Runner exists per panel; any number of subscribers
// can read its output through independent transform/field-override read
// paths without re-executing queries.
package queryrunner

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/cancellation"

	"github.com/grafana/panelquery/pkg/datasource"
	"github.com/grafana/panelquery/pkg/fieldconfig"
	"github.com/grafana/panelquery/pkg/querydata"
	"github.com/grafana/panelquery/pkg/transform"
)

var (
	errSuperseded      = cancellation.NewErrorf("superseded by a newer query execution")
	errCancelled       = cancellation.NewErrorf("query cancelled")
	errRunnerDestroyed = cancellation.NewErrorf("query runner destroyed")
)

// DataConfigSource supplies the panel-owned configuration the read path
// needs: field overrides, transformations, side-channel consumption flags
// and optional static snapshot data. Implemented by whichever caller owns
// the Runner.
type DataConfigSource interface {
	FieldConfig() *fieldconfig.ConfigSource
	Transformations() []transform.Config
	DataSupport() querydata.DataSupport

	// Snapshot returns JSON-encoded frames when the panel carries static
	// snapshot data, nil otherwise. A non-nil snapshot short-circuits the
	// whole read path.
	Snapshot() []byte
}

// NopDataConfigSource is a DataConfigSource with no configuration at all.
type NopDataConfigSource struct{}

func (NopDataConfigSource) FieldConfig() *fieldconfig.ConfigSource { return nil }
func (NopDataConfigSource) Transformations() []transform.Config    { return nil }
func (NopDataConfigSource) DataSupport() querydata.DataSupport     { return querydata.DataSupport{} }
func (NopDataConfigSource) Snapshot() []byte                       { return nil }

// Deps bundles the collaborators shared by runners. Zero-valued fields get
// working defaults from New.
type Deps struct {
	Resolver       datasource.Resolver
	Variables      datasource.Variables
	Transforms     *transform.Registry
	OverrideEngine fieldconfig.Engine
	SideChannel    SideChannel
	IDSource       *RequestIDSource
	Metrics        *Metrics
	Logger         log.Logger
	Config         Config
}

func (d *Deps) applyDefaults() {
	if d.Variables == nil {
		d.Variables = datasource.NoopVariables{}
	}
	if d.Transforms == nil {
		d.Transforms = transform.NewRegistry()
	}
	if d.OverrideEngine == nil {
		d.OverrideEngine = fieldconfig.StandardEngine{}
	}
	if d.IDSource == nil {
		d.IDSource = NewRequestIDSource()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	if d.Logger == nil {
		d.Logger = log.NewNopLogger()
	}
	if d.Config.DefaultMaxDataPoints == 0 {
		d.Config.DefaultMaxDataPoints = 1000
	}
}

// GetDataOptions selects the read path applied to one GetData subscription.
type GetDataOptions struct {
	WithTransforms  bool
	WithFieldConfig bool
	Theme           string
	Timezone        string
}

// Runner owns one panel's query execution and its replayed output channel.
// At most one upstream execution is active at a time: a newer Run tears the
// previous one down and late results from superseded executions are dropped.
type Runner struct {
	deps         Deps
	configSource DataConfigSource
	logger       log.Logger

	// Replaced in tests.
	timeNow func() time.Time

	mtx         sync.Mutex
	channel     *replayChannel[querydata.PanelData]
	lastResult  *querydata.PanelData
	lastRequest *querydata.Request
	execCancel  context.CancelCauseFunc
	generation  int64
	destroyed   bool
}

func New(deps Deps, configSource DataConfigSource) *Runner {
	deps.applyDefaults()
	if configSource == nil {
		configSource = NopDataConfigSource{}
	}
	deps.Metrics.activeRunners.Inc()
	return &Runner{
		deps:         deps,
		configSource: configSource,
		logger:       deps.Logger,
		timeNow:      time.Now,
		channel:      newReplayChannel[querydata.PanelData](),
	}
}

// Run starts a new query execution, superseding any execution still in
// flight. Failures during request assembly or datasource resolution are
// published as a single Error-state result; Run itself only fails when the
// runner was destroyed.
func (r *Runner) Run(ctx context.Context, opts RunOptions) {
	r.mtx.Lock()
	if r.destroyed {
		r.mtx.Unlock()
		return
	}
	if r.execCancel != nil {
		r.execCancel(errSuperseded)
		r.execCancel = nil
	}
	r.generation++
	gen := r.generation
	execCtx, cancel := context.WithCancelCause(ctx)
	r.execCancel = cancel
	r.mtx.Unlock()

	built, err := r.buildRequest(ctx, opts)
	if err != nil {
		level.Warn(r.logger).Log("msg", "failed to build query request", "panel", opts.PanelID, "err", err)
		r.deps.Metrics.buildFailures.Inc()
		cancel(err)
		timeRange := opts.TimeRange
		r.publish(gen, querydata.ErrorPanelData(err, &timeRange))
		return
	}

	r.mtx.Lock()
	r.lastRequest = built.request
	r.mtx.Unlock()

	if len(built.request.Queries) == 0 {
		cancel(nil)
		r.publish(gen, querydata.PanelData{
			State:     querydata.LoadingStateDone,
			Series:    []*querydata.Frame{},
			Request:   built.request,
			TimeRange: &built.request.Range,
		})
		return
	}

	r.deps.Metrics.queriesStarted.Inc()
	level.Debug(r.logger).Log("msg", "running queries", "request", built.request.ID, "queries", len(built.request.Queries), "datasource", built.ds.Ref().UID)

	go r.execute(execCtx, gen, built)
}

// execute subscribes to the datasource's result stream (merged with the
// dashboard side channel when the panel consumes it) and feeds every
// emission through the publish path, in arrival order.
func (r *Runner) execute(ctx context.Context, gen int64, built builtRequest) {
	stream, err := built.ds.Execute(ctx, built.request)
	if err != nil {
		r.publish(gen, querydata.ErrorPanelData(err, &built.request.Range))
		return
	}

	results := stream
	support := r.configSource.DataSupport()
	if r.deps.SideChannel != nil && (support.Annotations || support.AlertStates) {
		results = mergeSideChannel(ctx, stream, r.deps.SideChannel.Results(ctx, built.request.PanelID), support)
	}

	for data := range results {
		r.handleEmission(gen, data, built)
	}
}

func (r *Runner) handleEmission(gen int64, next querydata.PanelData, built builtRequest) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.destroyed || gen != r.generation {
		// Late result from a superseded execution.
		return
	}

	next.Request = built.request
	if next.TimeRange == nil {
		next.TimeRange = &built.request.Range
	}
	if built.advisory != nil {
		next.State = querydata.LoadingStateError
		next.Errors = append(next.Errors, querydata.QueryError{Message: built.advisory.Error()})
	}
	if !built.passThrough {
		next = preprocessResult(next, r.lastResult)
	}

	if !shouldPublish(&next, r.lastResult) {
		r.deps.Metrics.resultsSuppressed.Inc()
		return
	}
	r.storeAndPublish(next)
}

// publish runs an out-of-band value (errors, empty-query results) through
// the same generation guard as stream emissions.
func (r *Runner) publish(gen int64, data querydata.PanelData) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.destroyed || gen != r.generation {
		return
	}
	r.storeAndPublish(data)
}

// storeAndPublish must be called with the lock held.
func (r *Runner) storeAndPublish(data querydata.PanelData) {
	copied := data
	r.lastResult = &copied
	r.channel.Publish(data)
	r.deps.Metrics.resultsPublished.Inc()
}

// GetData returns this runner's output stream passed through the
// subscriber's own transform and field-override stages. It never triggers
// query execution. Panels with static snapshot data get a single synthetic
// Done result and the pipeline is bypassed entirely.
func (r *Runner) GetData(ctx context.Context, opts GetDataOptions) <-chan querydata.PanelData {
	if snapshot := r.configSource.Snapshot(); len(snapshot) > 0 {
		out := make(chan querydata.PanelData, 1)
		frames, err := querydata.FramesFromJSON(snapshot)
		if err != nil {
			out <- querydata.ErrorPanelData(err, nil)
		} else {
			out <- querydata.PanelData{State: querydata.LoadingStateDone, Series: frames}
		}
		close(out)
		return out
	}

	r.mtx.Lock()
	sub := r.channel.Subscribe(ctx)
	r.mtx.Unlock()

	out := make(chan querydata.PanelData)
	go func() {
		defer close(out)
		processor := fieldconfig.NewProcessor(r.deps.OverrideEngine, r.deps.Transforms)
		readOpts := fieldconfig.ReadOptions{
			WithTransforms:   opts.WithTransforms,
			WithFieldConfig:  opts.WithFieldConfig,
			ReplaceVariables: r.deps.Variables.Replace,
			Theme:            opts.Theme,
			Timezone:         opts.Timezone,
		}
		for data := range sub {
			var pipeline []transform.Config
			if opts.WithTransforms {
				pipeline = r.configSource.Transformations()
			}
			var source *fieldconfig.ConfigSource
			if opts.WithFieldConfig {
				source = r.configSource.FieldConfig()
			}
			processed := processor.Process(ctx, data, source, pipeline, readOpts)
			select {
			case out <- processed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// CancelQuery tears down the in-flight execution. If the runner was still
// Loading or Streaming, a Done-state copy of the last result is published so
// subscribers are not left waiting; cancelling a finished query is a no-op.
func (r *Runner) CancelQuery() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.execCancel == nil {
		return
	}
	r.execCancel(errCancelled)
	r.execCancel = nil
	r.generation++
	r.deps.Metrics.queriesCancelled.Inc()

	if r.lastResult != nil &&
		(r.lastResult.State == querydata.LoadingStateLoading || r.lastResult.State == querydata.LoadingStateStreaming) {
		done := *r.lastResult
		done.State = querydata.LoadingStateDone
		r.storeAndPublish(done)
	}
}

// ResendLastResult re-publishes the last result without re-querying. Used
// after panel config changes that do not require new data.
func (r *Runner) ResendLastResult() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.destroyed || r.lastResult == nil {
		return
	}
	r.channel.Publish(*r.lastResult)
}

// ClearLastResult drops the cached result and replaces the output channel
// with a fresh empty one. Existing subscriptions are completed; callers
// switching panel identity are expected to subscribe again.
func (r *Runner) ClearLastResult() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.lastResult = nil
	old := r.channel
	r.channel = newReplayChannel[querydata.PanelData]()
	old.Close()
}

// UseLastResultFrom seeds this runner's cache and channel from another
// runner, so a panel migrating between runner instances keeps its data
// without a fresh query round-trip.
func (r *Runner) UseLastResultFrom(other *Runner) {
	last := other.GetLastResult()
	lastReq := other.GetLastRequest()

	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.destroyed {
		return
	}
	r.lastRequest = lastReq
	if last != nil {
		copied := *last
		r.lastResult = &copied
		r.channel.Publish(*last)
	}
}

// GetLastResult returns the most recently published result, if any.
func (r *Runner) GetLastResult() *querydata.PanelData {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.lastResult == nil {
		return nil
	}
	copied := *r.lastResult
	return &copied
}

// GetLastRequest returns the most recently built request, if any.
func (r *Runner) GetLastRequest() *querydata.Request {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.lastRequest
}

// Destroy completes the output channel and tears down any active execution.
// The runner must not be reused afterwards.
func (r *Runner) Destroy() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.destroyed {
		return
	}
	r.destroyed = true
	if r.execCancel != nil {
		r.execCancel(errRunnerDestroyed)
		r.execCancel = nil
	}
	r.channel.Close()
	r.deps.Metrics.activeRunners.Dec()
}
