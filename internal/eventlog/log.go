// Package eventlog is the append-only per-entity-type event history. Entries
// are never mutated except through the explicit correction, edit and delete
// operations here, each of which leaves an audit trail. Soft-deleted entries
// stay present but drop out of active views.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

const collection = "log_entries"

// Fields that can never change after append, not even through Edit.
var immutableFields = map[string]bool{
	"id":         true,
	"entityId":   true,
	"entityType": true,
	"timestamp":  true,
	"event":      true,
	"seq":        true,
}

type Log struct {
	log   *logger.Logger
	store kvstore.Store
	now   func() time.Time
}

func NewLog(store kvstore.Store, baseLog *logger.Logger) *Log {
	return &Log{
		log:   baseLog.With("component", "EventLog"),
		store: store,
		now:   time.Now,
	}
}

// WithClock overrides the timestamp source. Tests use it to pin time.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// Append writes one new entry at the tail of the entity type's stream.
func (l *Log) Append(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, event string, details map[string]any) (*domain.LogEntry, error) {
	return l.AppendCaused(ctx, entityType, entityID, event, details, nil)
}

// AppendCaused appends an entry recording which other entity caused it, so
// delete cascades can find cross-log entries later.
func (l *Log) AppendCaused(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, event string, details map[string]any, source *domain.Ref) (*domain.LogEntry, error) {
	const op = "EventLog.Append"
	if entityType == "" || entityID == uuid.Nil || event == "" {
		return nil, domain.NewError(domain.CodeValidation, op, "entityType, entityId and event are required", nil)
	}
	seq, err := l.store.Incr(ctx, "logseq:"+string(entityType))
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	entry := &domain.LogEntry{
		ID:         uuid.New(),
		Seq:        seq,
		Event:      event,
		EntityType: entityType,
		EntityID:   entityID,
		Timestamp:  l.now().UTC(),
		Details:    details,
		SourceRef:  source,
	}
	if err := l.put(ctx, entry); err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	return entry, nil
}

// GetByID loads one entry, deleted or not.
func (l *Log) GetByID(ctx context.Context, entryID uuid.UUID) (*domain.LogEntry, error) {
	const op = "EventLog.GetByID"
	raw, err := l.store.Get(ctx, collection, entryID.String())
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, domain.NewError(domain.CodeNotFound, op, fmt.Sprintf("log entry not found: %s", entryID), nil)
	}
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	var entry domain.LogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	return &entry, nil
}

// EntriesFor returns the entity's entries in append order, including
// soft-deleted ones.
func (l *Log) EntriesFor(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]*domain.LogEntry, error) {
	all, err := l.entriesForType(ctx, entityType)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.LogEntry, 0, len(all))
	for _, e := range all {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ActiveEntriesFor is EntriesFor minus soft-deleted entries.
func (l *Log) ActiveEntriesFor(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]*domain.LogEntry, error) {
	entries, err := l.EntriesFor(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.IsDeleted {
			out = append(out, e)
		}
	}
	return out, nil
}

// UpdateField corrects a purely descriptive field in place on the latest
// matching entry, preferring the entity's CREATED entry. State-transition
// facts never go through here.
func (l *Log) UpdateField(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, field string, value any) error {
	const op = "EventLog.UpdateField"
	if immutableFields[field] {
		return domain.NewError(domain.CodeInvariantViolation, op, fmt.Sprintf("field %q is immutable", field), nil)
	}
	entries, err := l.EntriesFor(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	target := latestMatching(entries, field)
	if target == nil {
		return domain.NewError(domain.CodeNotFound, op, fmt.Sprintf("no entry to correct for %s %s", entityType, entityID), nil)
	}
	if target.Details == nil {
		target.Details = map[string]any{}
	}
	if reflect.DeepEqual(target.Details[field], value) {
		return nil
	}
	target.Details[field] = value
	if err := l.put(ctx, target); err != nil {
		return domain.Wrap(domain.CodeInternal, op, err)
	}
	return nil
}

// latestMatching scans from the tail: the CREATED entry wins, otherwise the
// newest active entry already carrying the field, otherwise the newest
// active entry.
func latestMatching(entries []*domain.LogEntry, field string) *domain.LogEntry {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].IsDeleted {
			continue
		}
		if entries[i].Event == domain.EventCreated {
			return entries[i]
		}
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].IsDeleted {
			continue
		}
		if _, ok := entries[i].Details[field]; ok {
			return entries[i]
		}
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].IsDeleted {
			return entries[i]
		}
	}
	return nil
}

// SoftDelete flags an entry deleted and records who did it.
func (l *Log) SoftDelete(ctx context.Context, entryID uuid.UUID, actor, reason string) error {
	const op = "EventLog.SoftDelete"
	entry, err := l.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.IsDeleted {
		return domain.NewError(domain.CodeInvariantViolation, op, "entry is already deleted", nil)
	}
	now := l.now().UTC()
	entry.IsDeleted = true
	entry.DeletedAt = &now
	entry.DeletedBy = actor
	entry.EditHistory = append(entry.EditHistory, domain.EditRecord{
		EditedAt: now,
		EditedBy: actor,
		Action:   "soft_delete",
		Reason:   reason,
	})
	if err := l.put(ctx, entry); err != nil {
		return domain.Wrap(domain.CodeInternal, op, err)
	}
	return nil
}

// Restore undoes a soft delete. Fails when the entry is not deleted.
func (l *Log) Restore(ctx context.Context, entryID uuid.UUID, actor, reason string) error {
	const op = "EventLog.Restore"
	entry, err := l.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if !entry.IsDeleted {
		return domain.NewError(domain.CodeInvariantViolation, op, "entry is not deleted", nil)
	}
	entry.IsDeleted = false
	entry.DeletedAt = nil
	entry.DeletedBy = ""
	entry.EditHistory = append(entry.EditHistory, domain.EditRecord{
		EditedAt: l.now().UTC(),
		EditedBy: actor,
		Action:   "restore",
		Reason:   reason,
	})
	if err := l.put(ctx, entry); err != nil {
		return domain.Wrap(domain.CodeInternal, op, err)
	}
	return nil
}

// PermanentDelete removes the entry irrecoverably.
func (l *Log) PermanentDelete(ctx context.Context, entryID uuid.UUID, actor string) error {
	const op = "EventLog.PermanentDelete"
	entry, err := l.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	l.log.Info("Permanently deleting log entry", "entry_id", entry.ID, "entity_type", entry.EntityType, "actor", actor)
	if err := l.store.Delete(ctx, collection, entryID.String()); err != nil {
		return domain.Wrap(domain.CodeInternal, op, err)
	}
	return nil
}

// Edit applies changed, non-immutable detail fields and records the diff in
// a single edit-history record. A no-op when nothing actually changed.
func (l *Log) Edit(ctx context.Context, entryID uuid.UUID, updates map[string]any, actor, reason string) error {
	const op = "EventLog.Edit"
	entry, err := l.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.IsDeleted {
		return domain.NewError(domain.CodeInvariantViolation, op, "cannot edit a deleted entry", nil)
	}
	var changes []domain.FieldChange
	for field, newVal := range updates {
		if immutableFields[field] {
			continue
		}
		var oldVal any
		if entry.Details != nil {
			oldVal = entry.Details[field]
		}
		if reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		changes = append(changes, domain.FieldChange{Field: field, From: oldVal, To: newVal})
	}
	if len(changes) == 0 {
		return nil
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	for _, c := range changes {
		entry.Details[c.Field] = c.To
	}
	entry.EditHistory = append(entry.EditHistory, domain.EditRecord{
		EditedAt: l.now().UTC(),
		EditedBy: actor,
		Action:   "edit",
		Changes:  changes,
		Reason:   reason,
	})
	if err := l.put(ctx, entry); err != nil {
		return domain.Wrap(domain.CodeInternal, op, err)
	}
	return nil
}

// RemoveForEntity drops every entry in the entity's own log. Delete cascade
// only.
func (l *Log) RemoveForEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) error {
	entries, err := l.EntriesFor(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := l.store.Delete(ctx, collection, e.ID.String()); err != nil {
			return domain.Wrap(domain.CodeInternal, "EventLog.RemoveForEntity", err)
		}
	}
	return nil
}

// RemoveWhereSource drops entries in other entities' logs that the given
// entity caused. Delete cascade only.
func (l *Log) RemoveWhereSource(ctx context.Context, source domain.Ref) error {
	raw, err := l.store.List(ctx, collection)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "EventLog.RemoveWhereSource", err)
	}
	for id, doc := range raw {
		var entry domain.LogEntry
		if err := json.Unmarshal(doc, &entry); err != nil {
			continue
		}
		if entry.SourceRef == nil || entry.SourceRef.Type != source.Type || entry.SourceRef.ID != source.ID {
			continue
		}
		if err := l.store.Delete(ctx, collection, id); err != nil {
			return domain.Wrap(domain.CodeInternal, "EventLog.RemoveWhereSource", err)
		}
	}
	return nil
}

func (l *Log) put(ctx context.Context, entry *domain.LogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, collection, entry.ID.String(), raw)
}

func (l *Log) entriesForType(ctx context.Context, entityType domain.EntityType) ([]*domain.LogEntry, error) {
	raw, err := l.store.List(ctx, collection)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "EventLog.List", err)
	}
	out := make([]*domain.LogEntry, 0, len(raw))
	for _, doc := range raw {
		var entry domain.LogEntry
		if err := json.Unmarshal(doc, &entry); err != nil {
			continue
		}
		if entry.EntityType != entityType {
			continue
		}
		e := entry
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
