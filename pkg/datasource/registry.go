// SPDX-License-Identifier: AGPL-3.0-only

package datasource

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/grafana/panelquery/pkg/querydata"
)

// Registry is an in-memory Resolver keyed by datasource UID, with one
// instance optionally marked as the default. Refs whose UID is a template
// variable ("$ds") are interpolated before lookup.
type Registry struct {
	variables Variables

	mtx        sync.RWMutex
	byUID      map[string]Datasource
	defaultUID string
}

func NewRegistry(variables Variables) *Registry {
	if variables == nil {
		variables = NoopVariables{}
	}
	return &Registry{
		variables: variables,
		byUID:     map[string]Datasource{},
	}
}

// Register adds an instance. The first registered instance becomes the
// default unless SetDefault is called.
func (r *Registry) Register(ds Datasource) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	uid := ds.Ref().UID
	r.byUID[uid] = ds
	if r.defaultUID == "" {
		r.defaultUID = uid
	}
}

func (r *Registry) SetDefault(uid string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.defaultUID = uid
}

// Get implements Resolver. A nil ref resolves to the default instance.
func (r *Registry) Get(_ context.Context, ref *querydata.Ref, vars querydata.ScopedVars) (Datasource, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	uid := r.defaultUID
	if ref != nil && ref.UID != "" {
		uid = r.variables.Replace(ref.UID, vars)
	}
	if uid == "" {
		return nil, errors.New("no datasource registered")
	}

	ds, ok := r.byUID[uid]
	if !ok {
		return nil, errors.Errorf("datasource %q not found", uid)
	}
	return ds, nil
}

// IsVariableRef reports whether a ref's UID is a template-variable
// expression, and returns the bare variable name.
func IsVariableRef(ref *querydata.Ref) (string, bool) {
	if ref == nil || !strings.HasPrefix(ref.UID, "$") {
		return "", false
	}
	return strings.TrimPrefix(ref.UID, "$"), true
}
