package resource

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

// ValidateCreate checks a new entity before anything is uploaded or sent.
// Required files must be freshly selected; the rest is checked against the
// kind's creation schema.
func (k *Kind) ValidateCreate(rec tracker.Record) error {
	if k.Singleton {
		return &ValidationError{Message: fmt.Sprintf("%s cannot be created, only edited", k.Name)}
	}
	for field, msg := range k.RequiredFiles {
		if !rec.Image(field).Pending() {
			return &ValidationError{Field: field, Message: msg}
		}
	}
	for field, max := range k.Galleries {
		if n := len(rec.Images(field)); n > max {
			return &ValidationError{Field: field, Message: fmt.Sprintf("Maximum %d images allowed", max)}
		}
	}
	if k.createSchema == "" {
		return nil
	}

	// Round-trip through JSON so the schema sees plain arrays and strings.
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", k.Name, err)
	}
	res, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(k.createSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validating %s: %w", k.Name, err)
	}
	if res.Valid() {
		return nil
	}

	errs := res.Errors()
	field := schemaField(errs[0])
	if msg, ok := k.createMessages[field]; ok {
		return &ValidationError{Field: field, Message: msg}
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.String())
	}
	return &ValidationError{Field: field, Message: strings.Join(msgs, "; ")}
}

// schemaField names the property a schema error is about. "required" errors
// are reported against the root, with the property in the details.
func schemaField(e gojsonschema.ResultError) string {
	if e.Type() == "required" {
		if p, ok := e.Details()["property"].(string); ok {
			return p
		}
	}
	return strings.TrimPrefix(e.Field(), "(root).")
}
