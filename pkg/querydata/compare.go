// SPDX-License-Identifier: AGPL-3.0-only

package querydata

import "reflect"

// SchemaChanged reports whether the column structure (field count, names,
// types) of two frame lists differs. Values are not compared: same-shape
// frames with different data are structurally equal.
func SchemaChanged(a, b []*Frame) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if frameSchemaChanged(a[i], b[i]) {
			return true
		}
	}
	return false
}

func frameSchemaChanged(a, b *Frame) bool {
	if len(a.Fields) != len(b.Fields) {
		return true
	}
	for i := range a.Fields {
		if a.Fields[i].Name != b.Fields[i].Name || a.Fields[i].Type != b.Fields[i].Type {
			return true
		}
	}
	return false
}

// FramesEqual compares two frame lists, taking the pointer-identity fast
// path per frame and falling back to a deep comparison of schema, labels and
// values. Field config and state are ignored: they belong to the read path,
// not to the raw result.
func FramesEqual(a, b []*Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if a[i] == nil || b[i] == nil || !frameEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func frameEqual(a, b *Frame) bool {
	if a.Name != b.Name || a.RefID != b.RefID || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		fa, fb := a.Fields[i], b.Fields[i]
		if fa.Name != fb.Name || fa.Type != fb.Type {
			return false
		}
		if !reflect.DeepEqual(fa.Labels, fb.Labels) || !reflect.DeepEqual(fa.Values, fb.Values) {
			return false
		}
	}
	return true
}

// ErrorsEqual compares two error lists by value, in order.
func ErrorsEqual(a, b []QueryError) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SameFrames reports whether two frame lists hold the identical frame
// pointers in the same order. Used as the memoization key for the
// field-override stage.
func SameFrames(a, b []*Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
