// Package gallery keeps the most recent generated images in memory.
package gallery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"imageloop/internal/imagegen"
	"imageloop/internal/scheduler"
)

// DefaultCapacity is the number of previews kept.
const DefaultCapacity = 12

// ErrNotFound is returned for unknown preview ids.
var ErrNotFound = errors.New("preview not found")

// Preview is one generated image.
type Preview struct {
	ID           string               `json:"id"`
	MIMEType     string               `json:"mimeType"`
	ProviderUsed imagegen.Provider    `json:"providerUsed"`
	Model        string               `json:"model,omitempty"`
	Source       scheduler.TickSource `json:"source"`
	CreatedAt    time.Time            `json:"createdAt"`
	Size         int                  `json:"size"`
	Data         []byte               `json:"-"`
}

// Gallery is a bounded, newest-first list of previews.
type Gallery struct {
	mu       sync.RWMutex
	capacity int
	items    []Preview
}

// New builds a gallery holding at most capacity previews.
func New(capacity int) *Gallery {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Gallery{capacity: capacity}
}

// Deliver implements scheduler.Sink.
func (g *Gallery) Deliver(ctx context.Context, d scheduler.Delivery) error {
	if d.Result == nil || len(d.Result.Data) == 0 {
		return errors.New("gallery: empty delivery")
	}
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	g.Add(Preview{
		ID:           id,
		MIMEType:     d.Result.MIMEType,
		ProviderUsed: d.Result.ProviderUsed,
		Model:        d.Result.Model,
		Source:       d.Source,
		CreatedAt:    d.CreatedAt,
		Size:         len(d.Result.Data),
		Data:         d.Result.Data,
	})
	return nil
}

// Add prepends p, dropping the oldest preview beyond capacity.
func (g *Gallery) Add(p Preview) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.items = append([]Preview{p}, g.items...)
	if len(g.items) > g.capacity {
		g.items = g.items[:g.capacity]
	}
}

// List returns the previews, newest first.
func (g *Gallery) List() []Preview {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Preview, len(g.items))
	copy(out, g.items)
	return out
}

// Get returns the preview with id.
func (g *Gallery) Get(id string) (Preview, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.items {
		if p.ID == id {
			return p, nil
		}
	}
	return Preview{}, ErrNotFound
}

// Delete removes the preview with id.
func (g *Gallery) Delete(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, p := range g.items {
		if p.ID == id {
			g.items = append(g.items[:i], g.items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

var _ scheduler.Sink = (*Gallery)(nil)
