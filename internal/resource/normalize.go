package resource

import (
	"encoding/json"
	"fmt"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

// Normalize converts a decoded backend object into a typed record holding
// exactly the kind's tracked fields. It also returns the entity ID;
// singletons are always keyed by the kind name.
func (k *Kind) Normalize(raw map[string]any) (tracker.Record, string, error) {
	rec := make(tracker.Record, len(k.Fields))
	for _, f := range k.Fields {
		v, ok := raw[f.Name]
		if !ok || v == nil || v == "" {
			if d, has := k.Defaults[f.Name]; has {
				v = d
			}
		}
		tv, err := typed(f.Kind, v)
		if err != nil {
			return nil, "", fmt.Errorf("%s field %s: %w", k.Name, f.Name, err)
		}
		rec[f.Name] = tv
	}

	id, _ := raw[IDField].(string)
	if k.Singleton {
		id = k.Name
	}
	if id == "" {
		return nil, "", fmt.Errorf("%s entity without %s", k.Name, IDField)
	}
	return rec, id, nil
}

// Decode normalizes a JSON document, as stored in a session or returned by
// the backend.
func (k *Kind) Decode(data []byte) (tracker.Record, string, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, "", fmt.Errorf("decoding %s: %w", k.Name, err)
	}
	return k.Normalize(raw)
}

// Encode serializes rec with its ID so that Decode restores it.
func (k *Kind) Encode(id string, rec tracker.Record) ([]byte, error) {
	doc := make(map[string]any, len(rec)+1)
	for name, v := range rec {
		doc[name] = v
	}
	if id != "" {
		doc[IDField] = id
	}
	return json.Marshal(doc)
}

// ParseValue converts a textual value (from a CLI flag or a JSON API body)
// into the typed value of field.
func (k *Kind) ParseValue(field string, v any) (any, error) {
	f, ok := k.Field(field)
	if !ok {
		return nil, &ValidationError{Field: field, Message: fmt.Sprintf("not a field of %s", k.Name)}
	}
	if s, isString := v.(string); isString {
		switch f.Kind {
		case tracker.Text, tracker.RichText:
			return s, nil
		case tracker.Bool:
			switch s {
			case "true", "yes", "1":
				return true, nil
			case "false", "no", "0", "":
				return false, nil
			}
			return nil, &ValidationError{Field: field, Message: fmt.Sprintf("%q is not a boolean", s)}
		case tracker.Image:
			return tracker.Durable(s), nil
		default:
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return nil, &ValidationError{Field: field, Message: fmt.Sprintf("expected a JSON %s value", f.Kind)}
			}
			v = decoded
		}
	}
	tv, err := typed(f.Kind, v)
	if err != nil {
		return nil, &ValidationError{Field: field, Message: err.Error()}
	}
	return tv, nil
}

// typed converts a loosely typed JSON value into the Go type used for kind.
// Absent values become the kind's zero value.
func typed(kind tracker.Kind, v any) (any, error) {
	switch kind {
	case tracker.Text, tracker.RichText:
		if v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case tracker.Bool:
		if v == nil {
			return false, nil
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	case tracker.Tags:
		return convert[[]string](v, []string{})
	case tracker.Pairs:
		return convert[[]tracker.Pair](v, []tracker.Pair{})
	case tracker.Languages:
		return convert[[]tracker.Language](v, []tracker.Language{})
	case tracker.Images:
		return convert[[]tracker.ImageRef](v, []tracker.ImageRef{})
	case tracker.Image:
		return convert[tracker.ImageRef](v, tracker.ImageRef{})
	}
	return nil, fmt.Errorf("unsupported field kind %s", kind)
}

// convert returns v as a T, re-decoding it through JSON when it is not one
// already. The JSON path applies the custom ImageRef decoding.
func convert[T any](v any, zero T) (any, error) {
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := zero
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Blank returns a record with every tracked field at its zero value, the
// starting point of a create form.
func (k *Kind) Blank() tracker.Record {
	rec := make(tracker.Record, len(k.Fields))
	for _, f := range k.Fields {
		rec[f.Name], _ = typed(f.Kind, nil)
	}
	return rec
}
