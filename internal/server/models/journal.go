package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/homecloud/internal/common"
)

// Action is the kind of mutation a journal entry describes.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionMove   Action = "move"
	ActionDelete Action = "delete"
)

// ParseAction validates a stored or client-supplied action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionCreate, ActionUpdate, ActionMove, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownAction, s)
}

// Enriched reports whether pulled entries of this action carry a snapshot.
func (a Action) Enriched() bool {
	return a == ActionCreate || a == ActionUpdate
}

// JournalEntry is one append-only sync record. ID is server-assigned and
// strictly increasing; it is the only ordering clients may rely on.
type JournalEntry struct {
	ID         int64
	OwnerID    string
	EntityType EntityType
	EntityID   string
	Action     Action
	CreatedAt  time.Time
}

// SyncEvent is a pulled journal entry, optionally enriched with the current
// state of the entity.
type SyncEvent struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Action     Action     `json:"action"`
	Data       any        `json:"data,omitempty"`
}
