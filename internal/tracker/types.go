// Package tracker keeps a working copy of an editable resource next to its
// last-saved snapshot and computes the field-level delta between them.
package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Kind identifies how a field's value is shaped.
type Kind int

const (
	Text Kind = iota
	RichText
	Tags
	Pairs
	Languages
	Images
	Image
	Bool
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case RichText:
		return "rich_text"
	case Tags:
		return "tags"
	case Pairs:
		return "pairs"
	case Languages:
		return "languages"
	case Images:
		return "images"
	case Image:
		return "image"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Policy selects how two values of a field are compared.
type Policy int

const (
	// PolicyDefault picks the comparison implied by the field's Kind.
	PolicyDefault Policy = iota
	// PolicyTrim compares strings with leading and trailing whitespace removed.
	PolicyTrim
	// PolicyStructural compares sequences element by element, in order.
	PolicyStructural
	// PolicyIdentity compares scalars with ==.
	PolicyIdentity
)

// Field describes one tracked field of a resource.
type Field struct {
	Name    string
	Kind    Kind
	Compare Policy
}

func (f Field) policy() Policy {
	if f.Compare != PolicyDefault {
		return f.Compare
	}
	switch f.Kind {
	case Text, RichText:
		return PolicyTrim
	case Tags, Pairs, Languages, Images:
		return PolicyStructural
	default:
		return PolicyIdentity
	}
}

// Pair is a key-value entry such as a project's development summary line.
type Pair struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Language is one language-usage record of a project.
type Language struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
	Color   string  `json:"color"`
}

// File is a local payload selected for upload but not yet uploaded.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Path        string `json:"path,omitempty"`

	// Data holds the payload in memory when there is no backing path.
	Data []byte `json:"-"`
}

// Open returns a reader over the file payload.
func (f *File) Open() (io.ReadCloser, error) {
	if f.Data != nil {
		return io.NopCloser(bytes.NewReader(f.Data)), nil
	}
	if f.Path == "" {
		return nil, fmt.Errorf("file %q has no payload", f.Name)
	}
	return os.Open(f.Path)
}

// ImageRef is either a durable remote URL or a pending local reference that
// pairs a preview handle with the file awaiting upload.
type ImageRef struct {
	URL     string
	Preview string
	File    *File
}

// Durable returns a reference to an already persisted asset.
func Durable(url string) ImageRef {
	return ImageRef{URL: url}
}

// Pending reports whether the reference still awaits upload.
func (r ImageRef) Pending() bool {
	return r.File != nil
}

// Equal compares durable refs by URL and pending refs by preview handle.
func (r ImageRef) Equal(o ImageRef) bool {
	return r.URL == o.URL && r.Preview == o.Preview && r.Pending() == o.Pending()
}

type pendingJSON struct {
	Preview string `json:"preview"`
	File    *File  `json:"file"`
}

// MarshalJSON writes durable refs as a bare URL string.
func (r ImageRef) MarshalJSON() ([]byte, error) {
	if !r.Pending() {
		return json.Marshal(r.URL)
	}
	return json.Marshal(pendingJSON{Preview: r.Preview, File: r.File})
}

func (r *ImageRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var url string
		if err := json.Unmarshal(data, &url); err != nil {
			return err
		}
		*r = ImageRef{URL: url}
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*r = ImageRef{}
		return nil
	}
	var p pendingJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decoding image reference: %w", err)
	}
	*r = ImageRef{Preview: p.Preview, File: p.File}
	return nil
}

// Record maps field names to typed values: string, bool, []string, []Pair,
// []Language, ImageRef or []ImageRef.
type Record map[string]any

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// String returns the string value of field, or "" if absent.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Bool returns the bool value of field.
func (r Record) Bool(field string) bool {
	b, _ := r[field].(bool)
	return b
}

// Tags returns the string list value of field.
func (r Record) Tags(field string) []string {
	v, _ := r[field].([]string)
	return v
}

// Pairs returns the key-value list value of field.
func (r Record) Pairs(field string) []Pair {
	v, _ := r[field].([]Pair)
	return v
}

// Languages returns the language-usage list value of field.
func (r Record) Languages(field string) []Language {
	v, _ := r[field].([]Language)
	return v
}

// Images returns the image list value of field.
func (r Record) Images(field string) []ImageRef {
	v, _ := r[field].([]ImageRef)
	return v
}

// Image returns the single image value of field.
func (r Record) Image(field string) ImageRef {
	v, _ := r[field].(ImageRef)
	return v
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string{}, t...)
	case []Pair:
		return append([]Pair{}, t...)
	case []Language:
		return append([]Language{}, t...)
	case []ImageRef:
		out := make([]ImageRef, len(t))
		for i, img := range t {
			out[i] = cloneImage(img)
		}
		return out
	case ImageRef:
		return cloneImage(t)
	default:
		return v
	}
}

func cloneImage(r ImageRef) ImageRef {
	if r.File != nil {
		f := *r.File
		r.File = &f
	}
	return r
}
