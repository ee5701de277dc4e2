// Package janitor cleans up preview handles left behind by interrupted
// commands and prunes long-released ones.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/resource"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/storage"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

const (
	// DefaultInterval is the pause between sweeps in Run.
	DefaultInterval = 10 * time.Minute
	// DefaultGrace protects handles a running command selected but has not
	// yet stored in a session.
	DefaultGrace = time.Hour
	// DefaultRetention is how long released rows are kept.
	DefaultRetention = 7 * 24 * time.Hour
)

// Store abstracts the session and preview tables.
type Store interface {
	ListSessions(kind string) ([]storage.Session, error)
	ActivePreviews() ([]storage.Preview, error)
	ReleasePreview(handle string) error
	PruneReleased(cutoff time.Time) (int64, error)
}

// Janitor sweeps the preview table.
type Janitor struct {
	store     Store
	interval  time.Duration
	grace     time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Janitor. If interval is <= 0, it defaults to DefaultInterval.
func New(store Store, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{
		store:     store,
		interval:  interval,
		grace:     DefaultGrace,
		retention: DefaultRetention,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// Result counts what one sweep did.
type Result struct {
	Released int
	Pruned   int64
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := j.RunOnce(ctx)
		if err != nil {
			j.logger.Error("preview sweep failed", "error", err)
		} else if res.Released > 0 || res.Pruned > 0 {
			j.logger.Info("preview sweep", "released", res.Released, "pruned", res.Pruned)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(j.interval):
		}
	}
}

// RunOnce releases active handles that no session references and that are
// older than the grace period, then prunes released rows past retention.
func (j *Janitor) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	held, err := j.heldHandles()
	if err != nil {
		return res, err
	}
	active, err := j.store.ActivePreviews()
	if err != nil {
		return res, fmt.Errorf("listing previews: %w", err)
	}

	now := j.now()
	for _, p := range active {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if held[p.Handle] || now.Sub(p.CreatedAt) < j.grace {
			continue
		}
		if err := j.store.ReleasePreview(p.Handle); err != nil {
			j.logger.Warn("releasing orphaned preview", "preview", p.Handle, "error", err)
			continue
		}
		j.logger.Debug("released orphaned preview", "preview", p.Handle, "file", p.Name)
		res.Released++
	}

	res.Pruned, err = j.store.PruneReleased(now.Add(-j.retention))
	if err != nil {
		return res, fmt.Errorf("pruning previews: %w", err)
	}
	return res, nil
}

func (j *Janitor) heldHandles() (map[string]bool, error) {
	held := make(map[string]bool)
	for _, name := range resource.Names() {
		kind, err := resource.Lookup(name)
		if err != nil {
			return nil, err
		}
		rows, err := j.store.ListSessions(kind.Name)
		if err != nil {
			return nil, fmt.Errorf("listing %s sessions: %w", kind.Name, err)
		}
		for _, row := range rows {
			rec, _, err := kind.Decode(row.Current)
			if err != nil {
				return nil, err
			}
			for _, ref := range tracker.PendingRefs(rec) {
				held[ref.Preview] = true
			}
		}
	}
	return held, nil
}
