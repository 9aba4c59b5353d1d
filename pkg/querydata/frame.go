// SPDX-License-Identifier: AGPL-3.0-only

package querydata

// FieldType describes the kind of values a Field holds. It is part of a
// frame's schema: two fields with the same name but different types are
// considered a structural change.
type FieldType string

const (
	FieldTypeTime    FieldType = "time"
	FieldTypeNumber  FieldType = "number"
	FieldTypeString  FieldType = "string"
	FieldTypeBool    FieldType = "bool"
	FieldTypeOther   FieldType = "other"
	FieldTypeUnknown FieldType = ""
)

// Topic tags a frame with the output bucket it belongs to. Frames without a
// topic are series data.
type Topic string

const (
	TopicSeries      Topic = "series"
	TopicAnnotations Topic = "annotations"
)

// FieldConfig holds the display configuration applied to a field by the
// field-override stage: units, limits, thresholds and color settings.
// It is declarative; the computed result lives in FieldState.
type FieldConfig struct {
	DisplayName string     `json:"displayName,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	Decimals    *int       `json:"decimals,omitempty"`
	Min         *float64   `json:"min,omitempty"`
	Max         *float64   `json:"max,omitempty"`
	Thresholds  []Threshold `json:"thresholds,omitempty"`
	Color       string     `json:"color,omitempty"`
	NoValue     string     `json:"noValue,omitempty"`
}

// Threshold pairs a boundary value with the color used at and above it.
type Threshold struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// FieldState carries values computed while applying field overrides, such as
// the resolved display name. It is owned by the override engine and reused
// verbatim on the streaming fast-path.
type FieldState struct {
	DisplayName string
	ScopedVars  ScopedVars
}

// Field is a single named, typed column of a Frame. All fields of a frame
// hold the same number of values.
type Field struct {
	Name   string
	Type   FieldType
	Labels map[string]string
	Values []interface{}

	Config *FieldConfig
	State  *FieldState
}

// Len returns the number of values in the field.
func (f *Field) Len() int {
	return len(f.Values)
}

// FrameMeta holds out-of-band information about a frame.
type FrameMeta struct {
	Topic Topic `json:"dataTopic,omitempty"`

	// PreferredVisualization hints the UI at a default rendering. Opaque to
	// the pipeline.
	PreferredVisualization string `json:"preferredVisualisationType,omitempty"`

	// Streaming marks frames produced by a live/streaming datasource. The
	// field-override stage uses it to take the schema-stable fast-path.
	Streaming bool `json:"streaming,omitempty"`

	Custom map[string]interface{} `json:"custom,omitempty"`
}

// Frame is a columnar table: an ordered list of equal-length typed fields.
type Frame struct {
	Name   string
	RefID  string
	Fields []*Field
	Meta   *FrameMeta
}

// Rows returns the number of rows in the frame, taken from the first field.
func (f *Frame) Rows() int {
	if len(f.Fields) == 0 {
		return 0
	}
	return f.Fields[0].Len()
}

// Topic returns the frame's topic tag, defaulting to TopicSeries when no
// meta is attached.
func (f *Frame) Topic() Topic {
	if f.Meta == nil || f.Meta.Topic == "" {
		return TopicSeries
	}
	return f.Meta.Topic
}

// IsStreaming reports whether the frame was produced by a streaming source.
func (f *Frame) IsStreaming() bool {
	return f.Meta != nil && f.Meta.Streaming
}
