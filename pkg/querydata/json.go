// SPDX-License-Identifier: AGPL-3.0-only

package querydata

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type frameJSON struct {
	Name   string      `json:"name,omitempty"`
	RefID  string      `json:"refId,omitempty"`
	Meta   *FrameMeta  `json:"meta,omitempty"`
	Fields []fieldJSON `json:"fields"`
}

type fieldJSON struct {
	Name   string            `json:"name"`
	Type   FieldType         `json:"type,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
	Config *FieldConfig      `json:"config,omitempty"`
	Values []interface{}     `json:"values"`
}

// FramesToJSON serializes frames for storage in a dashboard snapshot.
func FramesToJSON(frames []*Frame) ([]byte, error) {
	out := make([]frameJSON, 0, len(frames))
	for _, f := range frames {
		fj := frameJSON{Name: f.Name, RefID: f.RefID, Meta: f.Meta}
		for _, field := range f.Fields {
			fj.Fields = append(fj.Fields, fieldJSON{
				Name:   field.Name,
				Type:   field.Type,
				Labels: field.Labels,
				Config: field.Config,
				Values: field.Values,
			})
		}
		out = append(out, fj)
	}
	return json.Marshal(out)
}

// FramesFromJSON decodes snapshot frames stored in a dashboard model.
func FramesFromJSON(raw []byte) ([]*Frame, error) {
	var in []frameJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, errors.Wrap(err, "decoding snapshot frames")
	}
	frames := make([]*Frame, 0, len(in))
	for _, fj := range in {
		f := &Frame{Name: fj.Name, RefID: fj.RefID, Meta: fj.Meta}
		for _, field := range fj.Fields {
			f.Fields = append(f.Fields, &Field{
				Name:   field.Name,
				Type:   field.Type,
				Labels: field.Labels,
				Config: field.Config,
				Values: field.Values,
			})
		}
		frames = append(frames, f)
	}
	return frames, nil
}
