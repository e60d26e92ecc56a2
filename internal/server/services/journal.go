package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/dbx"
	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/server/repositories/repomanager"
)

// JournalService appends to and serves the per-owner sync log.
//
// Appends always run inside the transaction of the write they describe, so
// an entry is durable exactly when its write is.
type JournalService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	registry    *models.Registry
	pageSize    int
	logger      logging.Logger
}

func NewJournalService(db *sql.DB, m repomanager.RepositoryManager, registry *models.Registry, pageSize int, logger logging.Logger) *JournalService {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &JournalService{db: db, repomanager: m, registry: registry, pageSize: pageSize, logger: logger}
}

// Append records one entry for ownerID in tx.
func (s *JournalService) Append(ctx context.Context, tx dbx.DBTX, ownerID string, entityType models.EntityType, entityID string, action models.Action) (*models.JournalEntry, error) {
	entries, err := s.appendAll(ctx, tx, []string{ownerID}, entityType, entityID, action)
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// AppendFanOut records one entry per user affected by a change in scope:
// the owner, or every member of the group folder.
func (s *JournalService) AppendFanOut(ctx context.Context, tx dbx.DBTX, scope models.Scope, entityType models.EntityType, entityID string, action models.Action) ([]*models.JournalEntry, error) {
	recipients := []string{scope.OwnerID}
	if scope.IsGroup() {
		ids, err := s.repomanager.Members(tx).List(ctx, scope.GroupFolderID)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		recipients = ids
	}
	if len(recipients) == 0 {
		return nil, nil
	}
	return s.appendAll(ctx, tx, recipients, entityType, entityID, action)
}

func (s *JournalService) appendAll(ctx context.Context, tx dbx.DBTX, owners []string, entityType models.EntityType, entityID string, action models.Action) ([]*models.JournalEntry, error) {
	if _, err := models.ParseEntityType(string(entityType)); err != nil {
		return nil, err
	}
	if _, err := models.ParseAction(string(action)); err != nil {
		return nil, err
	}

	// Locks are taken in a fixed order so concurrent fan-outs cannot deadlock.
	owners = slices.Clone(owners)
	slices.Sort(owners)
	owners = slices.Compact(owners)

	repo := s.repomanager.Journal(tx)
	for _, owner := range owners {
		if owner == "" {
			return nil, fmt.Errorf("journal append: empty owner")
		}
		if err := repo.LockOwner(ctx, owner); err != nil {
			return nil, err
		}
	}

	entries := make([]*models.JournalEntry, 0, len(owners))
	for _, owner := range owners {
		e := &models.JournalEntry{OwnerID: owner, EntityType: entityType, EntityID: entityID, Action: action}
		if err := repo.Append(ctx, e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Pull returns ownerID's entries with id > cursor in ascending order, at most
// limit of them (bounded by the configured page size). Create and update
// events carry the entity's state as of now; an entity that no longer exists
// yields an event without data.
func (s *JournalService) Pull(ctx context.Context, ownerID string, cursor int64, limit int) ([]models.SyncEvent, error) {
	if cursor < 0 {
		cursor = 0
	}
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	entries, err := s.repomanager.Journal(s.db).ListAfter(ctx, ownerID, cursor, limit)
	if err != nil {
		return nil, err
	}

	events := make([]models.SyncEvent, 0, len(entries))
	for _, e := range entries {
		ev := models.SyncEvent{ID: e.ID, EntityType: e.EntityType, EntityID: e.EntityID, Action: e.Action}
		if e.Action.Enriched() {
			data, err := s.registry.Snapshot(ctx, e.EntityType, e.EntityID)
			switch {
			case err == nil:
				ev.Data = data
			case errors.Is(err, common.ErrorNotFound):
				s.logger.Debug(ctx, "snapshot gone", "entity_type", e.EntityType, "entity_id", e.EntityID)
			default:
				return nil, fmt.Errorf("snapshot %s/%s: %w", e.EntityType, e.EntityID, err)
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
