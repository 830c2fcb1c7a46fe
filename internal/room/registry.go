// Package room owns published room geometries: validation at publish time,
// lock-cheap reads for the geofence evaluator, and write-through persistence.
package room

import (
	"context"
	"sort"
	"sync"

	"attendance-verification-engine/internal/room/domain"
	roomrepo "attendance-verification-engine/internal/room/repository"
)

// Registry serves immutable room snapshots. Reads are concurrent and never
// observe a partially updated geometry: Publish swaps the whole *Room pointer.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
	repo  roomrepo.Repository // optional write-through store; nil for memory-only
}

// NewRegistry returns an empty registry backed by repo. repo may be nil (dev mode).
func NewRegistry(repo roomrepo.Repository) *Registry {
	return &Registry{
		rooms: make(map[string]*domain.Room),
		repo:  repo,
	}
}

// LoadAll populates the registry from the repository. Call once at startup.
func (r *Registry) LoadAll(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	rooms, err := r.repo.List(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rm := range rooms {
		r.rooms[rm.ID] = rm
	}
	return nil
}

// Get returns the published room for id, or nil if not found.
// The returned value must be treated as read-only.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Room, error) {
	r.mu.RLock()
	rm := r.rooms[id]
	r.mu.RUnlock()
	return rm, nil
}

// List returns all published rooms sorted by ID.
// The returned values must be treated as read-only.
func (r *Registry) List(ctx context.Context) ([]*domain.Room, error) {
	r.mu.RLock()
	out := make([]*domain.Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Publish validates and publishes the room, replacing any previous geometry
// atomically. On validation failure the previous geometry stays active.
func (r *Registry) Publish(ctx context.Context, rm *domain.Room) error {
	rm.ApplyDefaults()
	if err := rm.Validate(); err != nil {
		return err
	}
	if r.repo != nil {
		if err := r.repo.Upsert(ctx, rm); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.rooms[rm.ID] = rm
	r.mu.Unlock()
	return nil
}
