package upload

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
)

// PreviewScheme prefixes every preview handle.
const PreviewScheme = "preview://"

// Previews registers transient preview handles for selected files. A handle
// lives until it is released: on removal, replacement, discard or save.
type Previews interface {
	AcquirePreview(f tracker.File) (string, error)
	ReleasePreview(handle string) error
}

// NewPreviewHandle returns a fresh handle string.
func NewPreviewHandle() string {
	return PreviewScheme + uuid.New().String()
}

// MemoryPreviews keeps handles in process memory.
type MemoryPreviews struct {
	mu      sync.Mutex
	handles map[string]tracker.File
}

func NewMemoryPreviews() *MemoryPreviews {
	return &MemoryPreviews{handles: make(map[string]tracker.File)}
}

func (m *MemoryPreviews) AcquirePreview(f tracker.File) (string, error) {
	h := NewPreviewHandle()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[h] = f
	return h, nil
}

func (m *MemoryPreviews) ReleasePreview(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handles[handle]; !ok {
		return fmt.Errorf("preview %s not held", handle)
	}
	delete(m.handles, handle)
	return nil
}

// Active returns the number of unreleased handles.
func (m *MemoryPreviews) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
