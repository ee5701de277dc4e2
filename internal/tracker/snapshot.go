package tracker

import "fmt"

// Snapshot pairs the working copy of one resource with its last-saved state.
// Field edits touch Current only; Original is replaced wholesale on load and
// after a successful save.
type Snapshot struct {
	ID       string
	Current  Record
	Original Record
}

// NewSnapshot starts tracking r as both current and original.
func NewSnapshot(id string, r Record) *Snapshot {
	return &Snapshot{
		ID:       id,
		Current:  r.Clone(),
		Original: r.Clone(),
	}
}

// Set replaces one field of the working copy.
func (s *Snapshot) Set(field string, v any) {
	if s.Current == nil {
		s.Current = make(Record)
	}
	s.Current[field] = v
}

// Delta returns the tracked fields that differ from the original.
func (s *Snapshot) Delta(fields []Field) Delta {
	return ComputeDelta(s.Current, s.Original, fields)
}

// HasChanges reports whether Delta is non-empty.
func (s *Snapshot) HasChanges(fields []Field) bool {
	return HasChanges(s.Current, s.Original, fields)
}

// Commit records a successful save of delta. Image fields of the working copy
// take the resolved values from delta, then the original becomes
// Commit(Current, delta).
func (s *Snapshot) Commit(delta Delta) {
	for name, v := range delta {
		switch v.(type) {
		case ImageRef, []ImageRef:
			s.Set(name, cloneValue(v))
		}
	}
	s.Original = Commit(s.Current, delta)
}

// Reset discards all edits of the working copy.
func (s *Snapshot) Reset() {
	s.Current = s.Original.Clone()
}

// PendingRefs returns every pending image reference held by the working copy.
func (s *Snapshot) PendingRefs() []ImageRef {
	return PendingRefs(s.Current)
}

// PendingRefs returns every pending image reference held by r.
func PendingRefs(r Record) []ImageRef {
	var refs []ImageRef
	for _, v := range r {
		switch t := v.(type) {
		case ImageRef:
			if t.Pending() {
				refs = append(refs, t)
			}
		case []ImageRef:
			for _, img := range t {
				if img.Pending() {
					refs = append(refs, img)
				}
			}
		}
	}
	return refs
}

// List keeps snapshots of a collection resource in display order, keyed by
// their backend-assigned identifier.
type List struct {
	items []*Snapshot
	index map[string]int
}

// NewList tracks each record under its identifier in the given order.
func NewList(ids []string, records []Record) (*List, error) {
	if len(ids) != len(records) {
		return nil, fmt.Errorf("tracker: %d ids for %d records", len(ids), len(records))
	}
	l := &List{index: make(map[string]int, len(ids))}
	for i, id := range ids {
		if err := l.Append(id, records[i]); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append adds a newly created entity to both the current and the original
// sequence at once.
func (l *List) Append(id string, r Record) error {
	return l.Track(NewSnapshot(id, r))
}

// Track adds an existing snapshot at the end of the list, keeping its edits.
func (l *List) Track(s *Snapshot) error {
	if s.ID == "" {
		return fmt.Errorf("tracker: empty identifier")
	}
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if _, ok := l.index[s.ID]; ok {
		return fmt.Errorf("tracker: duplicate identifier %q", s.ID)
	}
	l.index[s.ID] = len(l.items)
	l.items = append(l.items, s)
	return nil
}

// Get returns the snapshot for id.
func (l *List) Get(id string) (*Snapshot, bool) {
	i, ok := l.index[id]
	if !ok {
		return nil, false
	}
	return l.items[i], true
}

// Len returns the number of tracked entities.
func (l *List) Len() int {
	return len(l.items)
}

// All returns the snapshots in order.
func (l *List) All() []*Snapshot {
	return l.items
}
