// SPDX-License-Identifier: AGPL-3.0-only

package fieldconfig

import "github.com/grafana/panelquery/pkg/querydata"

// ReplaceVariablesFunc renders template variables inside display strings.
type ReplaceVariablesFunc func(template string, vars querydata.ScopedVars) string

// ApplyOptions is the input of one override application pass.
type ApplyOptions struct {
	Frames           []*querydata.Frame
	Source           *ConfigSource
	ReplaceVariables ReplaceVariablesFunc
	Theme            string
	Timezone         string
}

// Engine applies field configuration to frames, producing new frames with
// Config and State populated. Input frames must not be mutated.
type Engine interface {
	Apply(opts ApplyOptions) []*querydata.Frame
}

// StandardEngine is the default Engine: defaults are merged into every
// field, then overrides are applied in order to matching fields, and the
// display name is resolved through variable interpolation.
type StandardEngine struct{}

func (StandardEngine) Apply(opts ApplyOptions) []*querydata.Frame {
	if opts.Source == nil {
		return opts.Frames
	}

	out := make([]*querydata.Frame, 0, len(opts.Frames))
	for _, frame := range opts.Frames {
		processed := &querydata.Frame{
			Name:  frame.Name,
			RefID: frame.RefID,
			Meta:  frame.Meta,
		}
		for _, field := range frame.Fields {
			cfg := mergeConfig(field.Config, opts.Source.Defaults)
			for _, override := range opts.Source.Overrides {
				if override.Matcher.Matches(field) {
					cfg = mergeConfig(&override.Properties, *cfg)
				}
			}

			displayName := cfg.DisplayName
			if displayName == "" {
				displayName = field.Name
			}
			if opts.ReplaceVariables != nil {
				displayName = opts.ReplaceVariables(displayName, nil)
			}

			processed.Fields = append(processed.Fields, &querydata.Field{
				Name:   field.Name,
				Type:   field.Type,
				Labels: field.Labels,
				Values: field.Values,
				Config: cfg,
				State:  &querydata.FieldState{DisplayName: displayName},
			})
		}
		out = append(out, processed)
	}
	return out
}

// mergeConfig lays preferred on top of base: non-zero properties of
// preferred win.
func mergeConfig(preferred *querydata.FieldConfig, base querydata.FieldConfig) *querydata.FieldConfig {
	merged := base
	if preferred == nil {
		return &merged
	}
	if preferred.DisplayName != "" {
		merged.DisplayName = preferred.DisplayName
	}
	if preferred.Unit != "" {
		merged.Unit = preferred.Unit
	}
	if preferred.Decimals != nil {
		merged.Decimals = preferred.Decimals
	}
	if preferred.Min != nil {
		merged.Min = preferred.Min
	}
	if preferred.Max != nil {
		merged.Max = preferred.Max
	}
	if len(preferred.Thresholds) > 0 {
		merged.Thresholds = preferred.Thresholds
	}
	if preferred.Color != "" {
		merged.Color = preferred.Color
	}
	if preferred.NoValue != "" {
		merged.NoValue = preferred.NoValue
	}
	return &merged
}
