package ratelimit

import (
	"context"
	"sync"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/server/models"
)

// MemoryBackend is a process-local Backend for development and tests.
// State vanishes on restart and is invisible across parallel instances,
// so it must never be wired into a multi-instance deployment.
type MemoryBackend struct {
	mu      sync.Mutex
	windows map[string]models.RateLimitWindow
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{windows: make(map[string]models.RateLimitWindow)}
}

func memoryKey(identity, endpoint string) string {
	return identity + "\x00" + endpoint
}

// Get returns a copy of the stored window, or common.ErrorNotFound.
func (b *MemoryBackend) Get(ctx context.Context, identity, endpoint string) (*models.RateLimitWindow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[memoryKey(identity, endpoint)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &w, nil
}

// Put stores a copy of the window.
func (b *MemoryBackend) Put(ctx context.Context, w *models.RateLimitWindow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windows[memoryKey(w.Identity, w.Endpoint)] = *w
	return nil
}

// Delete removes the window.
func (b *MemoryBackend) Delete(ctx context.Context, identity, endpoint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, memoryKey(identity, endpoint))
	return nil
}
