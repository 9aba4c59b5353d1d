// SPDX-License-Identifier: AGPL-3.0-only

// Package datasource holds the boundary contracts between the query pipeline
// and the pluggable datasource implementations. The pipeline only ever talks
// to these interfaces; concrete plugins live elsewhere.
package datasource

import (
	"context"

	"github.com/grafana/panelquery/pkg/querydata"
)

// Datasource executes query requests. Implementations may resolve once and
// close the channel (single-shot) or keep emitting Streaming-state batches
// indefinitely (live sources); the pipeline treats both identically.
//
// The returned channel must be closed when the source completes or ctx is
// cancelled. Errors during execution are carried as Error-state PanelData
// emissions, not as a second return value: only a failure to start the
// query at all is returned directly.
type Datasource interface {
	// Ref returns the identity of this instance.
	Ref() querydata.Ref

	// Name returns the configured instance name, used to scope ad-hoc filters.
	Name() string

	// Interval returns the instance's configured minimum interval ("" if none).
	Interval() string

	// Execute runs the request and streams results.
	Execute(ctx context.Context, req *querydata.Request) (<-chan querydata.PanelData, error)
}

// QueryFilter is optionally implemented by datasources that want to exclude
// individual queries before dispatch.
type QueryFilter interface {
	FilterQuery(q querydata.DataQuery) bool
}

// HealthChecker is optionally implemented by datasources that support a
// connectivity test from the configuration UI.
type HealthChecker interface {
	TestDatasource(ctx context.Context) error
}

// Resolver turns a datasource ref (possibly containing template variables)
// into a live instance. Resolution is fallible and may require I/O.
type Resolver interface {
	Get(ctx context.Context, ref *querydata.Ref, vars querydata.ScopedVars) (Datasource, error)
}

// Variables is the template-variable interpolation service. Replace renders
// a template with scoped variables; ResolveValues returns the full set of
// values a variable expands to, so callers can detect multi-value selections
// without side effects.
type Variables interface {
	Replace(template string, vars querydata.ScopedVars) string
	ResolveValues(name string, vars querydata.ScopedVars) []string
	AdHocFilters(datasourceName string) []querydata.AdHocFilter
}

// NoopVariables performs no interpolation. Useful as a default and in tests.
type NoopVariables struct{}

func (NoopVariables) Replace(template string, _ querydata.ScopedVars) string { return template }

func (NoopVariables) ResolveValues(string, querydata.ScopedVars) []string { return nil }

func (NoopVariables) AdHocFilters(string) []querydata.AdHocFilter { return nil }
