package tracker

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ErrUnresolved is returned when a payload still holds a pending local file
// reference.
var ErrUnresolved = errors.New("pending local file reference")

// Delta holds only the fields whose current value differs from the original.
type Delta map[string]any

// Fields returns the changed field names in tracked order.
func (d Delta) Fields(tracked []Field) []string {
	var names []string
	for _, f := range tracked {
		if _, ok := d[f.Name]; ok {
			names = append(names, f.Name)
		}
	}
	return names
}

// ComputeDelta returns the tracked fields of current that differ from
// original, or nil when nothing differs.
func ComputeDelta(current, original Record, fields []Field) Delta {
	var d Delta
	for _, f := range fields {
		if equalValues(f, current[f.Name], original[f.Name]) {
			continue
		}
		if d == nil {
			d = make(Delta)
		}
		d[f.Name] = cloneValue(current[f.Name])
	}
	return d
}

// HasChanges reports whether ComputeDelta would return anything.
func HasChanges(current, original Record, fields []Field) bool {
	return len(ComputeDelta(current, original, fields)) > 0
}

// Commit folds delta into a copy of current. The result becomes the new
// original after a successful save.
func Commit(current Record, delta Delta) Record {
	out := current.Clone()
	if out == nil {
		out = make(Record, len(delta))
	}
	for k, v := range delta {
		out[k] = cloneValue(v)
	}
	return out
}

// EnsureResolved fails if any value in payload is a pending image reference.
func EnsureResolved(payload map[string]any) error {
	for name, v := range payload {
		switch t := v.(type) {
		case ImageRef:
			if t.Pending() {
				return fmt.Errorf("field %s: %w", name, ErrUnresolved)
			}
		case []ImageRef:
			for i, img := range t {
				if img.Pending() {
					return fmt.Errorf("field %s[%d]: %w", name, i, ErrUnresolved)
				}
			}
		}
	}
	return nil
}

func equalValues(f Field, a, b any) bool {
	switch f.policy() {
	case PolicyTrim:
		return strings.TrimSpace(asString(a)) == strings.TrimSpace(asString(b))
	case PolicyStructural:
		return equalSequences(a, b)
	default:
		if a == nil {
			a = zeroLike(b)
		}
		if b == nil {
			b = zeroLike(a)
		}
		if x, ok := a.(ImageRef); ok {
			y, _ := b.(ImageRef)
			return x.Equal(y)
		}
		return reflect.DeepEqual(a, b)
	}
}

func equalSequences(a, b any) bool {
	switch x := a.(type) {
	case []string:
		y, _ := b.([]string)
		return slices.Equal(x, y)
	case []Pair:
		y, _ := b.([]Pair)
		return slices.Equal(x, y)
	case []Language:
		y, _ := b.([]Language)
		return slices.Equal(x, y)
	case []ImageRef:
		y, _ := b.([]ImageRef)
		return slices.EqualFunc(x, y, ImageRef.Equal)
	case nil:
		return sequenceLen(b) == 0
	default:
		return reflect.DeepEqual(a, b)
	}
}

func sequenceLen(v any) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		return rv.Len()
	}
	return -1
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// zeroLike returns the zero value of v's type so an absent field equals an
// explicit zero such as false.
func zeroLike(v any) any {
	if v == nil {
		return nil
	}
	return reflect.Zero(reflect.TypeOf(v)).Interface()
}
