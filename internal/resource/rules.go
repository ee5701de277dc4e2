package resource

import (
	"math"
	"strconv"
	"strings"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

// Validate checks a whole field value against the same rules the list
// editors enforce one item at a time. value must already be typed, as
// returned by ParseValue.
func (k *Kind) Validate(field string, value any) error {
	if _, ok := k.Field(field); !ok {
		return invalid(field, "not a field of %s", k.Name)
	}
	switch v := value.(type) {
	case []tracker.ImageRef:
		if max := k.GalleryLimit(field); max > 0 && len(v) > max {
			return invalid(field, "Maximum %d images allowed", max)
		}
	case []string:
		if k == Twitter && field == TweetIDsField {
			return validateTweetIDs(v)
		}
		if max := k.MaxItems[field]; max > 0 && len(v) > max {
			return invalid(field, "at most %d entries allowed", max)
		}
		for _, tag := range v {
			if strings.TrimSpace(tag) == "" {
				return invalid(field, "value cannot be empty")
			}
		}
	case []tracker.Pair:
		return validatePairs(field, v)
	case []tracker.Language:
		return validateLanguages(field, v)
	}
	return nil
}

// ValidateFields runs Validate over every field of fields that the kind
// tracks.
func (k *Kind) ValidateFields(fields map[string]any) error {
	for _, f := range k.Fields {
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		if err := k.Validate(f.Name, v); err != nil {
			return err
		}
	}
	return nil
}

func validateTweetIDs(ids []string) error {
	if len(ids) > MaxTweetIDs {
		return invalid(TweetIDsField, "Maximum %d tweet IDs allowed", MaxTweetIDs)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !ValidTweetID(id) {
			return invalid(TweetIDsField, "Invalid Tweet ID format: %q", id)
		}
		if seen[id] {
			return invalid(TweetIDsField, "This tweet ID already exists: %s", id)
		}
		seen[id] = true
	}
	return nil
}

func validatePairs(field string, pairs []tracker.Pair) error {
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Value) == "" {
			return invalid(field, "Both key and value are required")
		}
		key := strings.ToLower(strings.TrimSpace(p.Title))
		if seen[key] {
			return invalid(field, "This key already exists: %s", p.Title)
		}
		seen[key] = true
	}
	return nil
}

func validateLanguages(field string, langs []tracker.Language) error {
	total := 0.0
	for _, l := range langs {
		if strings.TrimSpace(l.Name) == "" {
			return invalid(field, "Language name is required")
		}
		if math.IsNaN(l.Percent) || l.Percent < 0 || l.Percent > 100 {
			return invalid(field, "Percentage must be between 0 and 100")
		}
		total += l.Percent
	}
	if total > 100 {
		return invalid(field, "Total percentage cannot exceed 100%%. Current: %s%%",
			strconv.FormatFloat(total, 'f', -1, 64))
	}
	seen := make(map[string]bool, len(langs))
	for _, l := range langs {
		name := strings.ToLower(strings.TrimSpace(l.Name))
		if seen[name] {
			return invalid(field, "This language already exists: %s", l.Name)
		}
		seen[name] = true
	}
	return nil
}
