package upload

import (
	"fmt"
	"slices"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

// DefaultMaxBytes is the per-image size limit.
const DefaultMaxBytes = 5 << 20

// Policy limits which files may be selected.
type Policy struct {
	MaxBytes     int64
	AllowedTypes []string
}

// ImagePolicy applies to single image fields such as a profile picture or
// company logo.
var ImagePolicy = Policy{
	MaxBytes:     DefaultMaxBytes,
	AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
}

// GalleryPolicy applies to image galleries, which also accept GIFs.
var GalleryPolicy = Policy{
	MaxBytes:     DefaultMaxBytes,
	AllowedTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
}

// WithMaxBytes returns a copy of p with a different size limit. Non-positive
// values keep the current limit.
func (p Policy) WithMaxBytes(n int64) Policy {
	if n > 0 {
		p.MaxBytes = n
	}
	return p
}

// Check validates f against the policy.
func (p Policy) Check(f tracker.File) error {
	if p.MaxBytes > 0 && f.Size > p.MaxBytes {
		return &ValidationError{File: f.Name, Reason: fmt.Sprintf("file size exceeds %s limit", formatBytes(p.MaxBytes))}
	}
	if len(p.AllowedTypes) > 0 && !slices.Contains(p.AllowedTypes, f.ContentType) {
		return &ValidationError{File: f.Name, Reason: fmt.Sprintf("unsupported format %q", f.ContentType)}
	}
	return nil
}

func formatBytes(n int64) string {
	if n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	if n%(1<<10) == 0 {
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%dB", n)
}
