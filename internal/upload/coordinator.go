// Package upload turns locally selected files into durable URLs through the
// backend's two-phase upload hand-off. Transfers happen only when a resource
// is saved or created, never at selection time.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/backend"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

// DefaultConcurrency bounds simultaneous transfers in UploadMany.
const DefaultConcurrency = 4

// Backend is the subset of the admin API the coordinator needs.
type Backend interface {
	RequestUpload(ctx context.Context, fileName, contentType string) (backend.Destination, error)
	PutObject(ctx context.Context, url, contentType string, body io.Reader, size int64) error
	PostMultipart(ctx context.Context, url string, fields map[string]string, fileField, fileName, contentType string, file io.Reader, out any) error
}

// Coordinator selects, previews and uploads files.
type Coordinator struct {
	backend       Backend
	previews      Previews
	publicBaseURL string
	concurrency   int
	logger        *slog.Logger
}

// NewCoordinator creates a Coordinator. publicBaseURL is prepended to object
// keys of direct-to-storage uploads. If concurrency is <= 0 it defaults to
// DefaultConcurrency.
func NewCoordinator(b Backend, previews Previews, publicBaseURL string, concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if previews == nil {
		previews = NewMemoryPreviews()
	}
	return &Coordinator{
		backend:       b,
		previews:      previews,
		publicBaseURL: publicBaseURL,
		concurrency:   concurrency,
		logger:        slog.Default(),
	}
}

// SelectFile validates f against p and returns a pending reference holding a
// new preview handle.
func (c *Coordinator) SelectFile(f tracker.File, p Policy) (tracker.ImageRef, error) {
	if err := p.Check(f); err != nil {
		return tracker.ImageRef{}, err
	}
	handle, err := c.previews.AcquirePreview(f)
	if err != nil {
		return tracker.ImageRef{}, fmt.Errorf("acquiring preview for %s: %w", f.Name, err)
	}
	file := f
	return tracker.ImageRef{Preview: handle, File: &file}, nil
}

// Release frees the preview handle of a pending reference. Durable
// references are ignored.
func (c *Coordinator) Release(ref tracker.ImageRef) error {
	if !ref.Pending() || ref.Preview == "" {
		return nil
	}
	return c.previews.ReleasePreview(ref.Preview)
}

// ReleaseAll releases every pending reference, logging failures.
func (c *Coordinator) ReleaseAll(refs []tracker.ImageRef) {
	for _, ref := range refs {
		if err := c.Release(ref); err != nil {
			c.logger.Warn("releasing preview", "preview", ref.Preview, "error", err)
		}
	}
}

// Upload runs both phases for one file and returns its durable URL.
func (c *Coordinator) Upload(ctx context.Context, f *tracker.File) (string, error) {
	dst, err := c.backend.RequestUpload(ctx, f.Name, f.ContentType)
	if err != nil {
		return "", &UploadError{File: f.Name, Phase: "destination", Err: err}
	}

	body, err := f.Open()
	if err != nil {
		return "", &UploadError{File: f.Name, Phase: "read", Err: err}
	}
	defer body.Close()

	if dst.UseLocal {
		var out backend.LocalUpload
		fields := map[string]string{"key": dst.ObjectKey()}
		if err := c.backend.PostMultipart(ctx, dst.URL, fields, "file", f.Name, f.ContentType, body, &out); err != nil {
			return "", &UploadError{File: f.Name, Phase: "local transfer", Err: err}
		}
		if out.URL == "" {
			return "", &UploadError{File: f.Name, Phase: "local transfer", Err: errors.New("response has no url")}
		}
		c.logger.Debug("uploaded via local fallback", "file", f.Name, "url", out.URL)
		return out.URL, nil
	}

	key := dst.ObjectKey()
	if key == "" {
		return "", &UploadError{File: f.Name, Phase: "destination", Err: errors.New("no object key")}
	}
	if err := c.backend.PutObject(ctx, dst.URL, f.ContentType, body, f.Size); err != nil {
		return "", &UploadError{File: f.Name, Phase: "transfer", Err: err}
	}
	url := joinURL(c.publicBaseURL, key)
	c.logger.Debug("uploaded to storage", "file", f.Name, "url", url)
	return url, nil
}

// UploadMany uploads files concurrently and returns their URLs in input
// order. If any upload fails the whole batch fails and no URLs are returned.
func (c *Coordinator) UploadMany(ctx context.Context, files []*tracker.File) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	urls := make([]string, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, f := range files {
		g.Go(func() error {
			url, err := c.Upload(gCtx, f)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// joinURL concatenates the public base and key with exactly one slash
// between them when the base is non-empty.
func joinURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
