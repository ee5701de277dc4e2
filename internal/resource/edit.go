package resource

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

const (
	// TweetIDsField is the single tracked field of the Twitter resource.
	TweetIDsField = "tweetIds"
	// MaxTweetIDs caps the tweet list; the oldest entry is dropped.
	MaxTweetIDs = 6
	// MinTweetIDLength is the shortest accepted tweet snowflake.
	MinTweetIDLength = 19
	// DefaultLanguageColor is used when a language is added without a color.
	DefaultLanguageColor = "#3b82f6"
)

// ValidationError reports a rejected edit. The edited list is left unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AddTag appends a trimmed, non-empty tag.
func AddTag(list []string, tag string) ([]string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return list, invalid("", "value cannot be empty")
	}
	return append(clone(list), tag), nil
}

// RemoveAt removes the element at index i.
func RemoveAt[T any](list []T, i int) ([]T, error) {
	if i < 0 || i >= len(list) {
		return list, invalid("", "index %d out of range (0..%d)", i, len(list)-1)
	}
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), nil
}

// Move relocates the element at from to position to.
func Move[T any](list []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(list) || to < 0 || to >= len(list) {
		return list, invalid("", "cannot move %d to %d in a list of %d", from, to, len(list))
	}
	out := clone(list)
	v := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]T{v}, out[to:]...)...)
	return out, nil
}

// AddPair appends a key/value entry. Keys are unique case-insensitively.
func AddPair(list []tracker.Pair, key, value string) ([]tracker.Pair, error) {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key == "" || value == "" {
		return list, invalid("", "Both key and value are required")
	}
	for _, p := range list {
		if strings.EqualFold(p.Title, key) {
			return list, invalid("", "This key already exists")
		}
	}
	return append(clone(list), tracker.Pair{Title: key, Value: value}), nil
}

// AddLanguage appends a language share. Names are unique case-insensitively
// and the percentages may not sum past 100.
func AddLanguage(list []tracker.Language, name string, percent float64, color string) ([]tracker.Language, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return list, invalid("", "Language name is required")
	}
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return list, invalid("", "Percentage must be between 0 and 100")
	}
	total := percent
	for _, l := range list {
		total += l.Percent
	}
	if total > 100 {
		return list, invalid("", "Total percentage cannot exceed 100%%. Current: %s%%",
			strconv.FormatFloat(total, 'f', -1, 64))
	}
	for _, l := range list {
		if strings.EqualFold(l.Name, name) {
			return list, invalid("", "This language already exists")
		}
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = DefaultLanguageColor
	}
	return append(clone(list), tracker.Language{Name: name, Percent: percent, Color: color}), nil
}

// AddImages appends refs to a gallery capped at max images.
func AddImages(list, refs []tracker.ImageRef, max int) ([]tracker.ImageRef, error) {
	if max > 0 && len(list)+len(refs) > max {
		return list, invalid("", "Maximum %d images allowed", max)
	}
	return append(clone(list), refs...), nil
}

// ValidTweetID reports whether id looks like a tweet snowflake.
func ValidTweetID(id string) bool {
	if len(id) < MinTweetIDLength {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// AddTweetID prepends id, dropping the oldest entries past MaxTweetIDs.
func AddTweetID(list []string, id string) ([]string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return list, invalid(TweetIDsField, "Tweet ID cannot be empty")
	}
	if !ValidTweetID(id) {
		return list, invalid(TweetIDsField, "Invalid Tweet ID format")
	}
	for _, existing := range list {
		if existing == id {
			return list, invalid(TweetIDsField, "This tweet ID already exists")
		}
	}
	out := append([]string{id}, list...)
	if len(out) > MaxTweetIDs {
		out = out[:MaxTweetIDs]
	}
	return out, nil
}

func clone[T any](list []T) []T {
	out := make([]T, len(list), len(list)+1)
	copy(out, list)
	return out
}
