// SPDX-License-Identifier: AGPL-3.0-only

// Package fieldconfig implements the field-override stage of the query
// pipeline: applying display configuration (units, limits, thresholds,
// colors) to result fields, with aggressive reuse of previously computed
// state for unchanged data and for schema-stable streaming updates.
package fieldconfig

import "github.com/grafana/panelquery/pkg/querydata"

// ConfigSource is the field configuration owned by a panel: defaults applied
// to every field plus matcher-scoped overrides. Revision is an opaque counter
// bumped by the owner on every edit; the stage recomputes overrides only when
// it advances.
type ConfigSource struct {
	Defaults  querydata.FieldConfig `json:"defaults" yaml:"defaults"`
	Overrides []Override            `json:"overrides,omitempty" yaml:"overrides"`
	Revision  int64                 `json:"-" yaml:"-"`
}

// Override pairs a field matcher with the properties to set on matching
// fields. Zero-valued properties are left untouched.
type Override struct {
	Matcher    Matcher               `json:"matcher" yaml:"matcher"`
	Properties querydata.FieldConfig `json:"properties" yaml:"properties"`
}

// Matcher selects fields by name or by type. An empty matcher matches
// nothing.
type Matcher struct {
	ByName string              `json:"byName,omitempty" yaml:"byName"`
	ByType querydata.FieldType `json:"byType,omitempty" yaml:"byType"`
}

// Matches reports whether a field is selected by this matcher.
func (m Matcher) Matches(f *querydata.Field) bool {
	if m.ByName != "" {
		return f.Name == m.ByName
	}
	if m.ByType != querydata.FieldTypeUnknown {
		return f.Type == m.ByType
	}
	return false
}
