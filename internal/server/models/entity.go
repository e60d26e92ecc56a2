package models

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/homecloud/internal/common"
)

// EntityType is the discriminator of every syncable entity. The set is
// closed; modules outside the file core get a fixed entry here instead of
// being discovered at runtime.
type EntityType string

const (
	EntityFile          EntityType = "file"
	EntityFolder        EntityType = "folder"
	EntityGroupFolder   EntityType = "group_folder"
	EntityNote          EntityType = "note"
	EntityBookmark      EntityType = "bookmark"
	EntityCalendarEvent EntityType = "calendar_event"
	EntityModule        EntityType = "module"
)

// EntityTypes lists every known discriminator.
var EntityTypes = []EntityType{
	EntityFile,
	EntityFolder,
	EntityGroupFolder,
	EntityNote,
	EntityBookmark,
	EntityCalendarEvent,
	EntityModule,
}

// ParseEntityType validates s against the closed set.
func ParseEntityType(s string) (EntityType, error) {
	for _, t := range EntityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownEntityType, s)
}

// SnapshotLoader returns the current state of one entity for sync
// enrichment. A vanished entity yields common.ErrorNotFound.
type SnapshotLoader func(ctx context.Context, entityID string) (any, error)

// Registry maps entity types to their snapshot loaders. Loaders are
// registered at startup; after Freeze the registry is read-only.
type Registry struct {
	mu      sync.RWMutex
	loaders map[EntityType]SnapshotLoader
	frozen  bool
}

func NewRegistry() *Registry {
	return &Registry{loaders: make(map[EntityType]SnapshotLoader)}
}

// Register binds a loader to t. Unknown types, duplicates and registration
// after Freeze are errors.
func (r *Registry) Register(t EntityType, loader SnapshotLoader) error {
	if _, err := ParseEntityType(string(t)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("entity registry is frozen")
	}
	if _, ok := r.loaders[t]; ok {
		return fmt.Errorf("loader for %q already registered", t)
	}
	r.loaders[t] = loader
	return nil
}

func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Snapshot loads the current state of an entity. Types owned by other
// domains may have no loader; their events travel without data.
func (r *Registry) Snapshot(ctx context.Context, t EntityType, entityID string) (any, error) {
	r.mu.RLock()
	loader, ok := r.loaders[t]
	r.mu.RUnlock()
	if !ok {
		if _, err := ParseEntityType(string(t)); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return loader(ctx, entityID)
}
