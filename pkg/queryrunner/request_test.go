// SPDX-License-Identifier: AGPL-3.0-only

package queryrunner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/panelquery/pkg/datasource"
	"github.com/grafana/panelquery/pkg/querydata"
)

func TestRequestIDSource(t *testing.T) {
	s := NewRequestIDSource()

	assert.Equal(t, "Q100", s.Next(), "counter starts at 100")

	prev := 100
	for i := 0; i < 50; i++ {
		id := s.Next()
		n, err := strconv.Atoi(id[1:])
		require.NoError(t, err)
		assert.Equal(t, byte('Q'), id[0])
		assert.Greater(t, n, prev, "ids must be strictly increasing")
		prev = n
	}
}

func testTimeRange() querydata.TimeRange {
	to := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return querydata.TimeRange{From: to.Add(-time.Hour), To: to}
}

func TestBuildRequest(t *testing.T) {
	ds := newTestDatasource("prom")
	registry := datasource.NewRegistry(nil)
	registry.Register(ds)

	runner := New(Deps{Resolver: registry}, nil)
	defer runner.Destroy()

	opts := RunOptions{
		Datasource:    &querydata.Ref{UID: "prom"},
		Queries:       []querydata.DataQuery{{RefID: "A"}, {RefID: "B", Hide: true}},
		PanelID:       3,
		TimeRange:     testTimeRange(),
		MaxDataPoints: 60,
	}

	built, err := runner.buildRequest(context.Background(), opts)
	require.NoError(t, err)
	req := built.request

	t.Run("stamps a monotonic id", func(t *testing.T) {
		assert.Equal(t, "Q100", req.ID)
		second, err := runner.buildRequest(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, "Q101", second.request.ID)
	})

	t.Run("drops hidden queries and attaches the resolved ref", func(t *testing.T) {
		require.Len(t, req.Queries, 1)
		assert.Equal(t, "A", req.Queries[0].RefID)
		require.NotNil(t, req.Queries[0].Datasource)
		assert.Equal(t, "prom", req.Queries[0].Datasource.UID)
	})

	t.Run("computes the interval and injects the synthetic variables", func(t *testing.T) {
		assert.Equal(t, time.Minute, req.Interval)
		assert.Equal(t, int64(60000), req.IntervalMs)
		assert.Equal(t, "1m", req.ScopedVars["__interval"].Value)
		assert.Equal(t, "60000", req.ScopedVars["__interval_ms"].Value)
	})
}

func TestBuildRequestMixedKeepsPerQueryRefs(t *testing.T) {
	mixed := newTestDatasource(querydata.MixedDatasourceUID)
	registry := datasource.NewRegistry(nil)
	registry.Register(mixed)

	runner := New(Deps{Resolver: registry}, nil)
	defer runner.Destroy()

	built, err := runner.buildRequest(context.Background(), RunOptions{
		Datasource: &querydata.Ref{UID: querydata.MixedDatasourceUID},
		Queries: []querydata.DataQuery{
			{RefID: "A", Datasource: &querydata.Ref{UID: "prom"}},
			{RefID: "B", Datasource: &querydata.Ref{UID: "loki"}},
		},
		TimeRange: testTimeRange(),
	})
	require.NoError(t, err)

	require.Len(t, built.request.Queries, 2)
	assert.Equal(t, "prom", built.request.Queries[0].Datasource.UID)
	assert.Equal(t, "loki", built.request.Queries[1].Datasource.UID)
}

func TestBuildRequestExpressionQueryKeepsItsRef(t *testing.T) {
	ds := newTestDatasource("prom")
	registry := datasource.NewRegistry(nil)
	registry.Register(ds)

	runner := New(Deps{Resolver: registry}, nil)
	defer runner.Destroy()

	built, err := runner.buildRequest(context.Background(), RunOptions{
		Datasource: &querydata.Ref{UID: "prom"},
		Queries: []querydata.DataQuery{
			{RefID: "A"},
			{RefID: "B", Datasource: &querydata.Ref{UID: querydata.ExpressionDatasourceUID}},
		},
		TimeRange: testTimeRange(),
	})
	require.NoError(t, err)

	require.Len(t, built.request.Queries, 2)
	assert.Equal(t, "prom", built.request.Queries[0].Datasource.UID)
	assert.Equal(t, querydata.ExpressionDatasourceUID, built.request.Queries[1].Datasource.UID)
}

func TestBuildRequestMinIntervalFloor(t *testing.T) {
	ds := newTestDatasource("prom")
	ds.interval = "30s"
	registry := datasource.NewRegistry(nil)
	registry.Register(ds)

	runner := New(Deps{Resolver: registry}, nil)
	defer runner.Destroy()

	t.Run("datasource interval applies when the panel has none", func(t *testing.T) {
		built, err := runner.buildRequest(context.Background(), RunOptions{
			Datasource:    &querydata.Ref{UID: "prom"},
			Queries:       []querydata.DataQuery{{RefID: "A"}},
			TimeRange:     testTimeRange(),
			MaxDataPoints: 100000,
		})
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, built.request.Interval)
	})

	t.Run("panel min interval wins over the datasource's", func(t *testing.T) {
		built, err := runner.buildRequest(context.Background(), RunOptions{
			Datasource:    &querydata.Ref{UID: "prom"},
			Queries:       []querydata.DataQuery{{RefID: "A"}},
			TimeRange:     testTimeRange(),
			MaxDataPoints: 100000,
			MinInterval:   "1m",
		})
		require.NoError(t, err)
		assert.Equal(t, time.Minute, built.request.Interval)
	})

	t.Run("unparsable min interval fails the build", func(t *testing.T) {
		_, err := runner.buildRequest(context.Background(), RunOptions{
			Datasource:  &querydata.Ref{UID: "prom"},
			Queries:     []querydata.DataQuery{{RefID: "A"}},
			TimeRange:   testTimeRange(),
			MinInterval: "bogus",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "min interval")
	})
}

func TestBuildRequestFilterQuery(t *testing.T) {
	ds := newTestDatasource("prom")
	ds.filter = func(q querydata.DataQuery) bool { return q.RefID != "B" }
	registry := datasource.NewRegistry(nil)
	registry.Register(ds)

	runner := New(Deps{Resolver: registry}, nil)
	defer runner.Destroy()

	built, err := runner.buildRequest(context.Background(), RunOptions{
		Datasource: &querydata.Ref{UID: "prom"},
		Queries:    []querydata.DataQuery{{RefID: "A"}, {RefID: "B"}},
		TimeRange:  testTimeRange(),
	})
	require.NoError(t, err)
	require.Len(t, built.request.Queries, 1)
	assert.Equal(t, "A", built.request.Queries[0].RefID)
}

type multiValueVariables struct {
	datasource.NoopVariables
	values map[string][]string
}

func (m multiValueVariables) Replace(template string, _ querydata.ScopedVars) string {
	if vals, ok := m.values[strings.TrimPrefix(template, "$")]; ok && len(vals) > 0 {
		return vals[0]
	}
	return template
}

func (m multiValueVariables) ResolveValues(name string, _ querydata.ScopedVars) []string {
	return m.values[name]
}

func TestBuildRequestMultiValueVariableDatasourceAdvisory(t *testing.T) {
	ds := newTestDatasource("prom")
	vars := multiValueVariables{values: map[string][]string{"ds": {"prom", "loki"}}}
	registry := datasource.NewRegistry(vars)
	registry.Register(ds)

	runner := New(Deps{Resolver: registry, Variables: vars}, nil)
	defer runner.Destroy()

	t.Run("multiple values without repeat produce the advisory", func(t *testing.T) {
		built, err := runner.buildRequest(context.Background(), RunOptions{
			Datasource: &querydata.Ref{UID: "$ds"},
			Queries:    []querydata.DataQuery{{RefID: "A"}},
			TimeRange:  testTimeRange(),
		})
		require.NoError(t, err, "the query must still run")
		assert.ErrorIs(t, built.advisory, errMultiValueDatasource)
	})

	t.Run("repeating by the same variable clears the advisory", func(t *testing.T) {
		built, err := runner.buildRequest(context.Background(), RunOptions{
			Datasource:       &querydata.Ref{UID: "$ds"},
			Queries:          []querydata.DataQuery{{RefID: "A"}},
			TimeRange:        testTimeRange(),
			RepeatByVariable: "ds",
		})
		require.NoError(t, err)
		assert.NoError(t, built.advisory)
	})
}

type filterVariables struct {
	datasource.NoopVariables
	filters map[string][]querydata.AdHocFilter
}

func (f filterVariables) AdHocFilters(name string) []querydata.AdHocFilter { return f.filters[name] }

func TestBuildRequestAttachesAdHocFilters(t *testing.T) {
	ds := newTestDatasource("prom")
	registry := datasource.NewRegistry(nil)
	registry.Register(ds)
	vars := filterVariables{filters: map[string][]querydata.AdHocFilter{
		"prom": {{Key: "cluster", Operator: "=", Value: "eu-west"}},
	}}

	runner := New(Deps{Resolver: registry, Variables: vars}, nil)
	defer runner.Destroy()

	built, err := runner.buildRequest(context.Background(), RunOptions{
		Datasource: &querydata.Ref{UID: "prom"},
		Queries:    []querydata.DataQuery{{RefID: "A"}},
		TimeRange:  testTimeRange(),
	})
	require.NoError(t, err)
	require.Len(t, built.request.AdHocFilters, 1)
	assert.Equal(t, "cluster", built.request.AdHocFilters[0].Key)
}

func TestBuildRequestValidation(t *testing.T) {
	ds := newTestDatasource("prom")
	registry := datasource.NewRegistry(nil)
	registry.Register(ds)
	runner := New(Deps{Resolver: registry}, nil)
	defer runner.Destroy()

	tr := testTimeRange()
	_, err := runner.buildRequest(context.Background(), RunOptions{
		Datasource:    &querydata.Ref{UID: "prom"},
		Queries:       []querydata.DataQuery{{RefID: "A"}},
		TimeRange:     querydata.TimeRange{From: tr.To, To: tr.From},
		MaxDataPoints: -1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "time range")
	assert.Contains(t, err.Error(), "max data points")
}

func TestBuildRequestDashboardPassThrough(t *testing.T) {
	ds := newTestDatasource(querydata.DashboardDatasourceUID)
	registry := datasource.NewRegistry(nil)
	registry.Register(ds)
	runner := New(Deps{Resolver: registry}, nil)
	defer runner.Destroy()

	built, err := runner.buildRequest(context.Background(), RunOptions{
		Datasource: &querydata.Ref{UID: querydata.DashboardDatasourceUID},
		Queries:    []querydata.DataQuery{{RefID: "A"}},
		TimeRange:  testTimeRange(),
	})
	require.NoError(t, err)
	assert.True(t, built.passThrough)
}

func TestBuildRequestDefaultMaxDataPoints(t *testing.T) {
	ds := newTestDatasource("prom")
	registry := datasource.NewRegistry(nil)
	registry.Register(ds)

	testCases := map[string]struct {
		opts     RunOptions
		expected int64
	}{
		"explicit budget": {
			opts:     RunOptions{MaxDataPoints: 500},
			expected: 500,
		},
		"width fallback": {
			opts:     RunOptions{WidthPixels: 800},
			expected: 800,
		},
		"configured default": {
			opts:     RunOptions{},
			expected: 1000,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			runner := New(Deps{Resolver: registry}, nil)
			defer runner.Destroy()

			opts := tc.opts
			opts.Datasource = &querydata.Ref{UID: "prom"}
			opts.Queries = []querydata.DataQuery{{RefID: "A"}}
			opts.TimeRange = testTimeRange()

			built, err := runner.buildRequest(context.Background(), opts)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, built.request.MaxDataPoints, fmt.Sprintf("case %s", name))
		})
	}
}
