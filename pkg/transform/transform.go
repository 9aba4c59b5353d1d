// SPDX-License-Identifier: AGPL-3.0-only

// Package transform implements the user-configurable data transformation
// stage of the query pipeline. Transforms are looked up by ID in a registry
// and composed sequentially; the stage splits the configured pipeline by
// topic, runs the series and annotations subsets concurrently, and
// re-buckets the output frames by their per-frame topic tag.
package transform

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/panelquery/pkg/querydata"
)

// Func transforms a list of frames into a new list. Implementations must not
// mutate the input frames.
type Func func(ctx context.Context, frames []*querydata.Frame, options map[string]interface{}) ([]*querydata.Frame, error)

// Config is one entry of a transformation pipeline.
type Config struct {
	ID       string                 `json:"id" yaml:"id"`
	Disabled bool                   `json:"disabled,omitempty" yaml:"disabled"`
	Topic    querydata.Topic        `json:"topic,omitempty" yaml:"topic"`
	Options  map[string]interface{} `json:"options,omitempty" yaml:"options"`
}

func (c Config) topic() querydata.Topic {
	if c.Topic == "" {
		return querydata.TopicSeries
	}
	return c.Topic
}

// Registry maps transform IDs to their implementations.
type Registry struct {
	transforms map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{transforms: map[string]Func{}}
}

func (r *Registry) Register(id string, fn Func) {
	r.transforms[id] = fn
}

func (r *Registry) get(id string) (Func, error) {
	fn, ok := r.transforms[id]
	if !ok {
		return nil, errors.Errorf("transformation %q not registered", id)
	}
	return fn, nil
}

// active returns the enabled entries of a pipeline for one topic.
func active(pipeline []Config, topic querydata.Topic) []Config {
	var out []Config
	for _, c := range pipeline {
		if !c.Disabled && c.topic() == topic {
			out = append(out, c)
		}
	}
	return out
}

// Apply runs the configured pipeline over a result. An empty pipeline, or
// one where every entry is disabled, returns the input unchanged. Any
// transform error aborts the stage and is returned to the caller, which is
// expected to convert it into an Error-state result for its own read path.
func (r *Registry) Apply(ctx context.Context, data querydata.PanelData, pipeline []Config) (querydata.PanelData, error) {
	seriesPipeline := active(pipeline, querydata.TopicSeries)
	annotationsPipeline := active(pipeline, querydata.TopicAnnotations)

	if len(seriesPipeline) == 0 && len(annotationsPipeline) == 0 {
		return data, nil
	}

	seriesOut := data.Series
	annotationsOut := data.Annotations

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		seriesOut, err = r.run(gctx, data.Series, seriesPipeline)
		return err
	})
	g.Go(func() error {
		var err error
		annotationsOut, err = r.run(gctx, data.Annotations, annotationsPipeline)
		return err
	})
	if err := g.Wait(); err != nil {
		return querydata.PanelData{}, err
	}

	// A transform in either subset may emit frames for the other topic.
	// Bucket every output frame by its own tag rather than by the pipeline
	// that produced it.
	out := data
	out.Series = nil
	out.Annotations = nil
	for _, frame := range append(seriesOut[:len(seriesOut):len(seriesOut)], annotationsOut...) {
		if frame.Topic() == querydata.TopicAnnotations {
			out.Annotations = append(out.Annotations, frame)
		} else {
			out.Series = append(out.Series, frame)
		}
	}
	return out, nil
}

func (r *Registry) run(ctx context.Context, frames []*querydata.Frame, pipeline []Config) ([]*querydata.Frame, error) {
	if len(pipeline) == 0 {
		return frames, nil
	}
	for _, cfg := range pipeline {
		fn, err := r.get(cfg.ID)
		if err != nil {
			return nil, err
		}
		frames, err = fn(ctx, frames, cfg.Options)
		if err != nil {
			return nil, errors.Wrapf(err, "transformation %q failed", cfg.ID)
		}
	}
	return frames, nil
}

// IsIdentity reports whether a pipeline would leave results untouched.
func IsIdentity(pipeline []Config) bool {
	for _, c := range pipeline {
		if !c.Disabled {
			return false
		}
	}
	return true
}
