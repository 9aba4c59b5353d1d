// SPDX-License-Identifier: AGPL-3.0-only

package fieldconfig

import (
	"context"

	"github.com/grafana/panelquery/pkg/querydata"
	"github.com/grafana/panelquery/pkg/transform"
)

// ReadOptions selects which stages a subscriber's read path applies. A
// subscriber requesting neither gets upstream data verbatim, with structure
// revision bookkeeping only.
type ReadOptions struct {
	WithTransforms  bool
	WithFieldConfig bool

	ReplaceVariables ReplaceVariablesFunc
	Theme            string
	Timezone         string
}

// Processor is the per-subscriber read pipeline: transformation stage
// followed by field overrides, memoized so that unchanged inputs and
// schema-stable streaming ticks skip recomputation. It is owned by exactly
// one subscription goroutine and is not safe for concurrent use.
type Processor struct {
	engine     Engine
	transforms *transform.Registry

	lastSource     *ConfigSource
	lastPipeline   []transform.Config
	lastRawSeries  []*querydata.Frame
	lastProcessed  *querydata.PanelData
	lastConfigRev  int64
	structureRev   int64
	overridesFresh bool
}

func NewProcessor(engine Engine, transforms *transform.Registry) *Processor {
	if engine == nil {
		engine = StandardEngine{}
	}
	return &Processor{
		engine:        engine,
		transforms:    transforms,
		lastConfigRev: -1,
	}
}

// Process runs one emission through the subscriber's read pipeline. Errors
// from the transformation stage are converted into an Error-state result;
// they never propagate as Go errors because they are local to this
// subscriber.
func (p *Processor) Process(ctx context.Context, data querydata.PanelData, source *ConfigSource, pipeline []transform.Config, opts ReadOptions) querydata.PanelData {
	// Memoization by identity: same raw series and unchanged configs mean
	// the previous output is still valid.
	if p.lastProcessed != nil &&
		querydata.SameFrames(data.Series, p.lastRawSeries) &&
		source == p.lastSource &&
		samePipeline(pipeline, p.lastPipeline) {
		out := data
		out.Series = p.lastProcessed.Series
		out.Annotations = p.lastProcessed.Annotations
		out.StructureRev = p.structureRev
		return out
	}

	p.lastRawSeries = data.Series
	p.lastSource = source
	p.lastPipeline = pipeline

	processed := data
	if opts.WithTransforms && p.transforms != nil {
		var err error
		processed, err = p.transforms.Apply(ctx, processed, pipeline)
		if err != nil {
			errData := querydata.ErrorPanelData(err, data.TimeRange)
			errData.Request = data.Request
			p.remember(errData)
			return errData
		}
	}

	streamingFastPath := false
	if opts.WithFieldConfig && source != nil && len(processed.Series) > 0 {
		if p.canReuseStreamingState(processed.Series, source) {
			processed.Series = p.reuseStreamingState(processed.Series)
			streamingFastPath = true
		} else {
			processed.Series = p.engine.Apply(ApplyOptions{
				Frames:           processed.Series,
				Source:           source,
				ReplaceVariables: opts.ReplaceVariables,
				Theme:            opts.Theme,
				Timezone:         opts.Timezone,
			})
			if len(processed.Annotations) > 0 {
				// Annotations get defaults-free overrides: display config is
				// a series concern.
				processed.Annotations = p.engine.Apply(ApplyOptions{
					Frames:           processed.Annotations,
					Source:           &ConfigSource{},
					ReplaceVariables: opts.ReplaceVariables,
					Theme:            opts.Theme,
					Timezone:         opts.Timezone,
				})
			}
			p.lastConfigRev = source.Revision
			p.overridesFresh = true
		}
	}

	if !streamingFastPath {
		if p.lastProcessed == nil || querydata.SchemaChanged(processed.Series, p.lastProcessed.Series) {
			p.structureRev++
		}
	}
	processed.StructureRev = p.structureRev
	p.remember(processed)
	return processed
}

func (p *Processor) remember(data querydata.PanelData) {
	copied := data
	p.lastProcessed = &copied
}

// canReuseStreamingState reports whether the streaming fast-path applies: at
// least one streaming frame, schema unchanged since the last processed
// packet, and field configuration not edited since overrides were last
// computed.
func (p *Processor) canReuseStreamingState(series []*querydata.Frame, source *ConfigSource) bool {
	if p.lastProcessed == nil || !p.overridesFresh || source.Revision != p.lastConfigRev {
		return false
	}
	streaming := false
	for _, f := range series {
		if f.IsStreaming() {
			streaming = true
			break
		}
	}
	return streaming && !querydata.SchemaChanged(series, p.lastProcessed.Series)
}

// reuseStreamingState substitutes the new raw values into the previously
// processed frames, keeping their computed field config and display state.
func (p *Processor) reuseStreamingState(series []*querydata.Frame) []*querydata.Frame {
	out := make([]*querydata.Frame, 0, len(series))
	for i, frame := range series {
		prev := p.lastProcessed.Series[i]
		next := &querydata.Frame{Name: frame.Name, RefID: frame.RefID, Meta: frame.Meta}
		for j, field := range frame.Fields {
			next.Fields = append(next.Fields, &querydata.Field{
				Name:   field.Name,
				Type:   field.Type,
				Labels: field.Labels,
				Values: field.Values,
				Config: prev.Fields[j].Config,
				State:  prev.Fields[j].State,
			})
		}
		out = append(out, next)
	}
	return out
}

func samePipeline(a, b []transform.Config) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
