// SPDX-License-Identifier: AGPL-3.0-only

package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/panelquery/pkg/querydata"
)

type fakeDatasource struct {
	ref querydata.Ref
}

func (f *fakeDatasource) Ref() querydata.Ref { return f.ref }
func (f *fakeDatasource) Name() string       { return f.ref.UID }
func (f *fakeDatasource) Interval() string   { return "" }
func (f *fakeDatasource) Execute(context.Context, *querydata.Request) (<-chan querydata.PanelData, error) {
	ch := make(chan querydata.PanelData)
	close(ch)
	return ch, nil
}

type mapVariables map[string]string

func (m mapVariables) Replace(template string, _ querydata.ScopedVars) string {
	if v, ok := m[template]; ok {
		return v
	}
	return template
}
func (m mapVariables) ResolveValues(string, querydata.ScopedVars) []string { return nil }
func (m mapVariables) AdHocFilters(string) []querydata.AdHocFilter        { return nil }

func TestRegistryGet(t *testing.T) {
	ctx := context.Background()
	prom := &fakeDatasource{ref: querydata.Ref{UID: "prom", Type: "prometheus"}}
	loki := &fakeDatasource{ref: querydata.Ref{UID: "loki", Type: "loki"}}

	r := NewRegistry(mapVariables{"$ds": "loki"})
	r.Register(prom)
	r.Register(loki)

	t.Run("resolves by uid", func(t *testing.T) {
		ds, err := r.Get(ctx, &querydata.Ref{UID: "loki"}, nil)
		require.NoError(t, err)
		assert.Same(t, loki, ds)
	})

	t.Run("nil ref resolves to default", func(t *testing.T) {
		ds, err := r.Get(ctx, nil, nil)
		require.NoError(t, err)
		assert.Same(t, prom, ds)
	})

	t.Run("interpolates variable refs", func(t *testing.T) {
		ds, err := r.Get(ctx, &querydata.Ref{UID: "$ds"}, nil)
		require.NoError(t, err)
		assert.Same(t, loki, ds)
	})

	t.Run("unknown uid fails", func(t *testing.T) {
		_, err := r.Get(ctx, &querydata.Ref{UID: "missing"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing")
	})
}

func TestIsVariableRef(t *testing.T) {
	name, ok := IsVariableRef(&querydata.Ref{UID: "$datasource"})
	assert.True(t, ok)
	assert.Equal(t, "datasource", name)

	_, ok = IsVariableRef(&querydata.Ref{UID: "prom"})
	assert.False(t, ok)

	_, ok = IsVariableRef(nil)
	assert.False(t, ok)
}
