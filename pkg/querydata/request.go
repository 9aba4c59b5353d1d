// SPDX-License-Identifier: AGPL-3.0-only

package querydata

import "time"

// Ref identifies a datasource by UID and plugin type. Pseudo-datasources
// (mixed, expression, dashboard) are recognised by well-known UIDs.
type Ref struct {
	UID  string `json:"uid"`
	Type string `json:"type,omitempty"`
}

const (
	// MixedDatasourceUID fans a single request out to multiple real
	// datasources based on per-query refs.
	MixedDatasourceUID = "-- Mixed --"

	// ExpressionDatasourceUID marks server-side expression queries; they keep
	// their own ref and are never rewritten to the resolved datasource.
	ExpressionDatasourceUID = "__expr__"

	// DashboardDatasourceUID reuses the results of another panel on the same
	// dashboard. Requests against it bypass preprocessing.
	DashboardDatasourceUID = "-- Dashboard --"
)

// IsMixed reports whether the ref points at the mixed pseudo-datasource.
func (r Ref) IsMixed() bool { return r.UID == MixedDatasourceUID }

// IsExpression reports whether the ref points at the expression pseudo-datasource.
func (r Ref) IsExpression() bool { return r.UID == ExpressionDatasourceUID }

// IsDashboard reports whether the ref points at the dashboard pseudo-datasource.
func (r Ref) IsDashboard() bool { return r.UID == DashboardDatasourceUID }

// ScopedVar is one template-variable binding for a single query execution.
type ScopedVar struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// ScopedVars maps variable names to their bindings for one execution context.
type ScopedVars map[string]ScopedVar

// Copy returns a shallow copy that callers can extend without mutating the
// original.
func (v ScopedVars) Copy() ScopedVars {
	out := make(ScopedVars, len(v)+2)
	for k, sv := range v {
		out[k] = sv
	}
	return out
}

// AdHocFilter is a key/operator/value predicate attached to a request for a
// specific datasource.
type AdHocFilter struct {
	Key      string `json:"key"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// DataQuery is one query definition within a request. RefID is unique within
// the request. Model carries the datasource-specific query body, opaque to
// the pipeline.
type DataQuery struct {
	RefID         string                 `json:"refId"`
	QueryType     string                 `json:"queryType,omitempty"`
	Datasource    *Ref                   `json:"datasource,omitempty"`
	Hide          bool                   `json:"hide,omitempty"`
	Interval      string                 `json:"interval,omitempty"`
	MaxDataPoints int64                  `json:"maxDataPoints,omitempty"`
	Model         map[string]interface{} `json:"model,omitempty"`
}

// Request is the immutable value built per query invocation and handed to
// the datasource.
type Request struct {
	ID            string
	App           string
	Timezone      string
	PanelID       int64
	PanelName     string
	PanelPluginID string
	DashboardUID  string

	Range         TimeRange
	Interval      time.Duration
	IntervalMs    int64
	MaxDataPoints int64

	ScopedVars   ScopedVars
	AdHocFilters []AdHocFilter

	CacheTimeout    string
	QueryCachingTTL int64

	Queries   []DataQuery
	StartTime time.Time
}
