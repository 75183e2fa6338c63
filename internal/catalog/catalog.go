// Package catalog loads the datasets a deployment answers questions about
// and serves consistent snapshots of them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/duckmesh/duckviz/internal/dataset"
)

var (
	ErrNotFound  = errors.New("catalog: dataset not found")
	ErrNotLoaded = errors.New("catalog: datasets not loaded")
)

type Catalog struct {
	manifest Manifest
	loader   *Loader

	mu       sync.RWMutex
	set      dataset.Set
	loadedAt time.Time
}

func New(manifest Manifest, loader *Loader) *Catalog {
	return &Catalog{manifest: manifest, loader: loader}
}

// NewStatic serves a fixed set; Reload is a no-op for it.
func NewStatic(set dataset.Set) *Catalog {
	return &Catalog{set: set, loadedAt: time.Now().UTC()}
}

// Reload loads every manifest entry and swaps the snapshot only when all of
// them succeed.
func (c *Catalog) Reload(ctx context.Context) error {
	if c.loader == nil {
		return nil
	}
	set, err := c.loader.LoadAll(ctx, c.manifest)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.set = set
	c.loadedAt = time.Now().UTC()
	c.mu.Unlock()
	return nil
}

func (c *Catalog) Ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.set == nil {
		return ErrNotLoaded
	}
	return nil
}

func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Select returns the named datasets, or every dataset when names is empty.
func (c *Catalog) Select(names []string) (dataset.Set, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.set == nil {
		return nil, ErrNotLoaded
	}
	if len(names) == 0 {
		out := make(dataset.Set, len(c.set))
		for name, table := range c.set {
			out[name] = table
		}
		return out, nil
	}
	out := make(dataset.Set, len(names))
	for _, name := range names {
		table, ok := c.set[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		out[name] = table
	}
	return out, nil
}
