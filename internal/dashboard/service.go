// Package dashboard coordinates working sessions: it pulls resources from
// the backend, applies edits, and saves only the changed fields after
// resolving pending uploads.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/resource"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/storage"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/upload"
)

var (
	// ErrNoChanges is returned by Save when the session has no delta.
	ErrNoChanges = errors.New("no changes to save")
	// ErrSaving is returned while a save of the same session is running.
	ErrSaving = storage.ErrSaveInProgress
)

// Sessions persists working sessions between commands.
type Sessions interface {
	ReplaceKind(kind string, sessions []storage.Session) error
	AppendSession(sess storage.Session) error
	UpdateSession(sess storage.Session) error
	GetSession(kind, id string) (storage.Session, error)
	ListSessions(kind string) ([]storage.Session, error)
	BeginSave(kind, id string) error
	EndSave(kind, id string) error
}

// Backend is the JSON side of the admin API.
type Backend interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
}

// Uploader turns selected files into durable URLs.
type Uploader interface {
	SelectFile(f tracker.File, p upload.Policy) (tracker.ImageRef, error)
	ReleaseAll(refs []tracker.ImageRef)
	Upload(ctx context.Context, f *tracker.File) (string, error)
	UploadMany(ctx context.Context, files []*tracker.File) ([]string, error)
}

// Options tune a Service.
type Options struct {
	// MaxUploadBytes overrides the per-file size limit when > 0.
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Service is the entry point used by every surface (CLI, HTTP, MCP).
type Service struct {
	sessions Sessions
	backend  Backend
	uploader Uploader
	maxBytes int64
	logger   *slog.Logger
}

func New(sessions Sessions, b Backend, u Uploader, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions: sessions,
		backend:  b,
		uploader: u,
		maxBytes: opts.MaxUploadBytes,
		logger:   logger,
	}
}

// Entity is a decoded session.
type Entity struct {
	Kind     *resource.Kind
	ID       string
	Position int
	Saving   bool
	Current  tracker.Record
	Original tracker.Record
}

// Delta returns the fields that differ from the last-saved state.
func (e Entity) Delta() tracker.Delta {
	return tracker.ComputeDelta(e.Current, e.Original, e.Kind.Fields)
}

// HasChanges reports whether the entity has unsaved edits.
func (e Entity) HasChanges() bool {
	return tracker.HasChanges(e.Current, e.Original, e.Kind.Fields)
}

// Pull fetches kind from the backend and replaces its local sessions,
// discarding unsaved edits.
func (s *Service) Pull(ctx context.Context, kind *resource.Kind) ([]Entity, error) {
	var raws []map[string]any
	if kind.Singleton {
		var raw map[string]any
		if err := s.backend.Get(ctx, kind.Path, &raw); err != nil {
			return nil, fmt.Errorf("fetching %s: %w", kind.Name, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
		raws = append(raws, raw)
	} else if err := s.backend.Get(ctx, kind.Path, &raws); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", kind.Name, err)
	}

	ids := make([]string, 0, len(raws))
	recs := make([]tracker.Record, 0, len(raws))
	for _, raw := range raws {
		rec, id, err := kind.Normalize(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		recs = append(recs, rec)
	}
	list, err := tracker.NewList(ids, recs)
	if err != nil {
		return nil, fmt.Errorf("%s backend response: %w", kind.Name, err)
	}

	entities := make([]Entity, 0, list.Len())
	rows := make([]storage.Session, 0, list.Len())
	for i, snap := range list.All() {
		doc, err := kind.Encode(snap.ID, snap.Original)
		if err != nil {
			return nil, err
		}
		rows = append(rows, storage.Session{Kind: kind.Name, ID: snap.ID, Current: doc, Original: doc})
		entities = append(entities, Entity{Kind: kind, ID: snap.ID, Position: i, Current: snap.Current, Original: snap.Original})
	}

	stale, err := s.List(kind)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.ReplaceKind(kind.Name, rows); err != nil {
		return nil, fmt.Errorf("storing %s sessions: %w", kind.Name, err)
	}
	for _, e := range stale {
		s.uploader.ReleaseAll(tracker.PendingRefs(e.Current))
	}

	s.logger.Debug("pulled resources", "kind", kind.Name, "count", len(entities))
	return entities, nil
}

// List returns the local sessions of kind in backend order.
func (s *Service) List(kind *resource.Kind) ([]Entity, error) {
	list, saving, err := s.load(kind)
	if err != nil {
		return nil, err
	}
	out := make([]Entity, 0, list.Len())
	for i, snap := range list.All() {
		out = append(out, Entity{
			Kind:     kind,
			ID:       snap.ID,
			Position: i,
			Saving:   saving[snap.ID],
			Current:  snap.Current,
			Original: snap.Original,
		})
	}
	return out, nil
}

// load reads the stored sessions of kind into a tracker list. The returned
// map holds the live saving marks by id.
func (s *Service) load(kind *resource.Kind) (*tracker.List, map[string]bool, error) {
	rows, err := s.sessions.ListSessions(kind.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s sessions: %w", kind.Name, err)
	}
	list := &tracker.List{}
	saving := make(map[string]bool, len(rows))
	for _, row := range rows {
		e, err := decode(kind, row)
		if err != nil {
			return nil, nil, err
		}
		if err := list.Track(&tracker.Snapshot{ID: e.ID, Current: e.Current, Original: e.Original}); err != nil {
			return nil, nil, fmt.Errorf("%s sessions: %w", kind.Name, err)
		}
		saving[e.ID] = e.Saving
	}
	return list, saving, nil
}

// Get returns one session. Singletons may pass an empty id.
func (s *Service) Get(kind *resource.Kind, id string) (Entity, error) {
	id = sessionID(kind, id)
	row, err := s.sessions.GetSession(kind.Name, id)
	if err != nil {
		return Entity{}, fmt.Errorf("%s %q: %w", kind.Name, id, err)
	}
	return decode(kind, row)
}

// Edit applies fn to a copy of the working record and persists the result.
// If fn fails or leaves a changed field breaking the kind's rules, nothing
// changes. Pending images dropped by the edit have their
// previews released.
func (s *Service) Edit(kind *resource.Kind, id string, fn func(rec tracker.Record) error) (Entity, error) {
	e, err := s.Get(kind, id)
	if err != nil {
		return Entity{}, err
	}
	if e.Saving {
		return Entity{}, ErrSaving
	}

	next := e.Current.Clone()
	if err := fn(next); err != nil {
		return Entity{}, err
	}
	if err := kind.ValidateFields(tracker.ComputeDelta(next, e.Current, kind.Fields)); err != nil {
		return Entity{}, err
	}
	if err := s.store(kind, e.ID, next, e.Original); err != nil {
		return Entity{}, err
	}

	s.uploader.ReleaseAll(dropped(tracker.PendingRefs(e.Current), next))
	e.Current = next
	return e, nil
}

// SetField replaces one field with a value parsed by the kind.
func (s *Service) SetField(kind *resource.Kind, id, field string, value any) (Entity, error) {
	v, err := kind.ParseValue(field, value)
	if err != nil {
		return Entity{}, err
	}
	return s.Edit(kind, id, func(rec tracker.Record) error {
		rec[field] = v
		return nil
	})
}

// SelectImage validates f and returns a pending reference with a preview
// handle. Gallery images accept a wider set of formats.
func (s *Service) SelectImage(f tracker.File, gallery bool) (tracker.ImageRef, error) {
	p := upload.ImagePolicy
	if gallery {
		p = upload.GalleryPolicy
	}
	if s.maxBytes > 0 {
		p = p.WithMaxBytes(s.maxBytes)
	}
	return s.uploader.SelectFile(f, p)
}

// Changes returns the unsaved delta of a session.
func (s *Service) Changes(kind *resource.Kind, id string) (tracker.Delta, error) {
	e, err := s.Get(kind, id)
	if err != nil {
		return nil, err
	}
	return e.Delta(), nil
}

// Discard resets the working copy to the last-saved state.
func (s *Service) Discard(kind *resource.Kind, id string) (Entity, error) {
	e, err := s.Get(kind, id)
	if err != nil {
		return Entity{}, err
	}
	if e.Saving {
		return Entity{}, ErrSaving
	}
	snap := &tracker.Snapshot{ID: e.ID, Current: e.Current, Original: e.Original}
	pending := snap.PendingRefs()
	snap.Reset()
	if err := s.store(kind, e.ID, snap.Current, snap.Original); err != nil {
		return Entity{}, err
	}
	s.uploader.ReleaseAll(pending)
	e.Current = snap.Current
	return e, nil
}

// Save uploads pending files referenced by the delta, PATCHes the changed
// fields and commits them as the new last-saved state. On any failure the
// last-saved state is left untouched.
func (s *Service) Save(ctx context.Context, kind *resource.Kind, id string) (Entity, error) {
	e, err := s.Get(kind, id)
	if err != nil {
		return Entity{}, err
	}
	delta := e.Delta()
	if delta == nil {
		return Entity{}, ErrNoChanges
	}
	if err := kind.ValidateFields(delta); err != nil {
		return Entity{}, err
	}

	if err := s.sessions.BeginSave(kind.Name, e.ID); err != nil {
		return Entity{}, err
	}
	defer func() {
		if err := s.sessions.EndSave(kind.Name, e.ID); err != nil {
			s.logger.Warn("clearing saving flag", "kind", kind.Name, "id", e.ID, "error", err)
		}
	}()

	resolved, err := s.resolve(ctx, delta)
	if err != nil {
		return Entity{}, err
	}
	payload := tracker.Delta(resolved)
	if err := tracker.EnsureResolved(payload); err != nil {
		return Entity{}, err
	}

	if err := s.backend.Patch(ctx, kind.ItemPath(e.ID), payload, nil); err != nil {
		return Entity{}, fmt.Errorf("saving %s %q: %w", kind.Name, e.ID, err)
	}

	snap := &tracker.Snapshot{ID: e.ID, Current: e.Current, Original: e.Original}
	pending := snap.PendingRefs()
	snap.Commit(payload)
	if err := s.store(kind, e.ID, snap.Current, snap.Original); err != nil {
		return Entity{}, err
	}
	s.uploader.ReleaseAll(dropped(pending, snap.Current))

	s.logger.Info("saved", "kind", kind.Name, "id", e.ID, "fields", payload.Fields(kind.Fields))
	e.Current, e.Original = snap.Current, snap.Original
	return e, nil
}

// Create validates rec, uploads its pending files and POSTs the new entity,
// which is then appended to the local list.
func (s *Service) Create(ctx context.Context, kind *resource.Kind, rec tracker.Record) (Entity, error) {
	if err := kind.ValidateCreate(rec); err != nil {
		return Entity{}, err
	}
	if err := kind.ValidateFields(rec); err != nil {
		return Entity{}, err
	}

	resolved, err := s.resolve(ctx, rec)
	if err != nil {
		return Entity{}, err
	}
	if err := tracker.EnsureResolved(resolved); err != nil {
		return Entity{}, err
	}

	var created map[string]any
	if err := s.backend.Post(ctx, kind.Path, resolved, &created); err != nil {
		return Entity{}, fmt.Errorf("creating %s: %w", kind.Name, err)
	}

	// The response may echo only part of the entity.
	merged := make(map[string]any, len(resolved)+len(created))
	for k, v := range resolved {
		merged[k] = v
	}
	for k, v := range created {
		merged[k] = v
	}
	saved, id, err := kind.Normalize(merged)
	if err != nil {
		return Entity{}, fmt.Errorf("creating %s: %w", kind.Name, err)
	}

	list, _, err := s.load(kind)
	if err != nil {
		return Entity{}, err
	}
	if err := list.Append(id, saved); err != nil {
		return Entity{}, fmt.Errorf("creating %s: %w", kind.Name, err)
	}
	snap, _ := list.Get(id)
	doc, err := kind.Encode(id, snap.Original)
	if err != nil {
		return Entity{}, err
	}
	if err := s.sessions.AppendSession(storage.Session{Kind: kind.Name, ID: id, Current: doc, Original: doc}); err != nil {
		return Entity{}, err
	}
	s.uploader.ReleaseAll(tracker.PendingRefs(rec))

	s.logger.Info("created", "kind", kind.Name, "id", id)
	return Entity{Kind: kind, ID: id, Position: list.Len() - 1, Current: snap.Current, Original: snap.Original}, nil
}

// Abandon releases the previews of a record that was never stored, such as
// a create form that failed validation.
func (s *Service) Abandon(rec tracker.Record) {
	s.uploader.ReleaseAll(tracker.PendingRefs(rec))
}

// resolve returns a copy of fields with every pending image replaced by its
// uploaded URL. Gallery uploads keep the gallery order.
func (s *Service) resolve(ctx context.Context, fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for name, v := range fields {
		switch t := v.(type) {
		case tracker.ImageRef:
			if !t.Pending() {
				out[name] = t
				continue
			}
			url, err := s.uploader.Upload(ctx, t.File)
			if err != nil {
				return nil, err
			}
			out[name] = tracker.Durable(url)
		case []tracker.ImageRef:
			imgs := make([]tracker.ImageRef, len(t))
			copy(imgs, t)
			var idx []int
			var files []*tracker.File
			for i, img := range imgs {
				if img.Pending() {
					idx = append(idx, i)
					files = append(files, img.File)
				}
			}
			if len(files) > 0 {
				urls, err := s.uploader.UploadMany(ctx, files)
				if err != nil {
					return nil, err
				}
				for j, i := range idx {
					imgs[i] = tracker.Durable(urls[j])
				}
			}
			out[name] = imgs
		default:
			out[name] = v
		}
	}
	return out, nil
}

func (s *Service) store(kind *resource.Kind, id string, current, original tracker.Record) error {
	cur, err := kind.Encode(id, current)
	if err != nil {
		return err
	}
	orig, err := kind.Encode(id, original)
	if err != nil {
		return err
	}
	if err := s.sessions.UpdateSession(storage.Session{Kind: kind.Name, ID: id, Current: cur, Original: orig}); err != nil {
		return fmt.Errorf("storing %s %q: %w", kind.Name, id, err)
	}
	return nil
}

func decode(kind *resource.Kind, row storage.Session) (Entity, error) {
	cur, _, err := kind.Decode(row.Current)
	if err != nil {
		return Entity{}, err
	}
	orig, _, err := kind.Decode(row.Original)
	if err != nil {
		return Entity{}, err
	}
	return Entity{Kind: kind, ID: row.ID, Position: row.Position, Saving: row.Saving, Current: cur, Original: orig}, nil
}

// dropped returns the refs whose preview handle no longer appears in rec.
func dropped(refs []tracker.ImageRef, rec tracker.Record) []tracker.ImageRef {
	if len(refs) == 0 {
		return nil
	}
	held := make(map[string]bool)
	for _, r := range tracker.PendingRefs(rec) {
		held[r.Preview] = true
	}
	var out []tracker.ImageRef
	for _, r := range refs {
		if !held[r.Preview] {
			out = append(out, r)
		}
	}
	return out
}

func sessionID(kind *resource.Kind, id string) string {
	if id == "" && kind.Singleton {
		return kind.Name
	}
	return id
}
