// SPDX-License-Identifier: AGPL-3.0-only

package queryrunner

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/cancellation"

	"github.com/grafana/panelquery/pkg/querydata"
)

var errBatchSuperseded = cancellation.NewErrorf("superseded by a newer batch run")

// BatchQuery is one entry of a MultiRunner batch: a single query with its
// own time range, datasource and resolution, evaluated independently of the
// other entries.
type BatchQuery struct {
	RefID         string
	Query         querydata.DataQuery
	Datasource    *querydata.Ref
	TimeRange     querydata.TimeRange
	MaxDataPoints int64
	MinInterval   string
	Timezone      string
	App           string
}

// MultiRunner fans a batch of differently-scoped queries out to one Runner
// per distinct reference id and combines their latest results into a single
// ordered slice, published once every constituent runner has produced at
// least one value. Used for batch evaluation such as alert condition
// preview.
type MultiRunner struct {
	deps   Deps
	logger log.Logger

	mtx           sync.Mutex
	runners       map[string]*Runner
	channel       *replayChannel[[]querydata.PanelData]
	combineCancel context.CancelCauseFunc
	destroyed     bool
}

func NewMultiRunner(deps Deps) *MultiRunner {
	deps.applyDefaults()
	return &MultiRunner{
		deps:    deps,
		logger:  deps.Logger,
		runners: map[string]*Runner{},
		channel: newReplayChannel[[]querydata.PanelData](),
	}
}

// ensureRunner lazily creates the Runner for a reference id, memoized for
// the composer's lifetime.
func (m *MultiRunner) ensureRunner(refID string) *Runner {
	if runner, ok := m.runners[refID]; ok {
		return runner
	}
	runner := New(m.deps, NopDataConfigSource{})
	m.runners[refID] = runner
	return runner
}

// Run executes a batch. Each entry runs on its own per-refId runner with its
// own time range and datasource; any previous batch combination is torn
// down first.
func (m *MultiRunner) Run(ctx context.Context, batch []BatchQuery) {
	m.mtx.Lock()
	if m.destroyed {
		m.mtx.Unlock()
		return
	}
	if m.combineCancel != nil {
		m.combineCancel(errBatchSuperseded)
	}
	combineCtx, cancel := context.WithCancelCause(ctx)
	m.combineCancel = cancel

	runners := make([]*Runner, len(batch))
	for i, entry := range batch {
		runners[i] = m.ensureRunner(entry.RefID)
	}
	m.mtx.Unlock()

	level.Debug(m.logger).Log("msg", "running query batch", "queries", len(batch))

	// Subscribe before starting the runs so no early emission is missed.
	subs := make([]<-chan querydata.PanelData, len(batch))
	for i, runner := range runners {
		subs[i] = runner.GetData(combineCtx, GetDataOptions{})
	}
	go m.combine(combineCtx, subs)

	for i, entry := range batch {
		runners[i].Run(ctx, RunOptions{
			Datasource:    entry.Datasource,
			Queries:       []querydata.DataQuery{entry.Query},
			TimeRange:     entry.TimeRange,
			MaxDataPoints: entry.MaxDataPoints,
			MinInterval:   entry.MinInterval,
			Timezone:      entry.Timezone,
			App:           entry.App,
		})
	}
}

type indexedResult struct {
	index int
	data  querydata.PanelData
}

// combine republishes the latest value of every constituent runner as one
// ordered slice, starting once each runner has emitted at least once.
func (m *MultiRunner) combine(ctx context.Context, subs []<-chan querydata.PanelData) {
	updates := make(chan indexedResult)

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub <-chan querydata.PanelData) {
			defer wg.Done()
			for data := range sub {
				select {
				case updates <- indexedResult{index: i, data: data}:
				case <-ctx.Done():
					return
				}
			}
		}(i, sub)
	}
	go func() {
		wg.Wait()
		close(updates)
	}()

	latest := make([]querydata.PanelData, len(subs))
	seen := make([]bool, len(subs))
	ready := 0

	for update := range updates {
		if !seen[update.index] {
			seen[update.index] = true
			ready++
		}
		latest[update.index] = update.data
		if ready < len(subs) {
			continue
		}
		combined := make([]querydata.PanelData, len(latest))
		copy(combined, latest)
		m.publish(ctx, combined)
	}
}

func (m *MultiRunner) publish(ctx context.Context, combined []querydata.PanelData) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.destroyed || ctx.Err() != nil {
		// A newer batch owns the channel now.
		return
	}
	m.channel.Publish(combined)
}

// GetData returns the combined replay channel. It never triggers execution.
func (m *MultiRunner) GetData(ctx context.Context) <-chan []querydata.PanelData {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.channel.Subscribe(ctx)
}

// Destroy tears down every constituent runner and completes the combined
// channel.
func (m *MultiRunner) Destroy() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.destroyed {
		return
	}
	m.destroyed = true
	if m.combineCancel != nil {
		m.combineCancel(errRunnerDestroyed)
		m.combineCancel = nil
	}
	for _, runner := range m.runners {
		runner.Destroy()
	}
	m.channel.Close()
}
