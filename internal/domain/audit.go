package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Workflow log event names. Append order within one workflow invocation is
// fixed: CREATED first, then transition events, then the terminal event,
// then descriptive corrections.
const (
	EventCreated          = "CREATED"
	EventDone             = "DONE"
	EventPending          = "PENDING"
	EventCancelled        = "CANCELLED"
	EventCollected        = "COLLECTED"
	EventUncompleted      = "UNCOMPLETED"
	EventPointsAwarded    = "POINTS_AWARDED"
	EventPointsReversed   = "POINTS_REVERSED"
	EventItemSpawned      = "ITEM_SPAWNED"
	EventRecordSpawned    = "RECORD_SPAWNED"
	EventCharacterSpawned = "CHARACTER_SPAWNED"
	EventStatusCascaded   = "STATUS_CASCADED"
)

// FieldChange is one entry of an edit diff.
type FieldChange struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// EditRecord is one audit record on a log entry's edit history.
type EditRecord struct {
	EditedAt time.Time     `json:"editedAt"`
	EditedBy string        `json:"editedBy"`
	Action   string        `json:"action"` // edit | soft_delete | restore
	Changes  []FieldChange `json:"changes,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// LogEntry is one record of the append-only per-entity-type event log.
type LogEntry struct {
	ID         uuid.UUID      `json:"id"`
	Seq        int64          `json:"seq"`
	Event      string         `json:"event"`
	EntityType EntityType     `json:"entityType"`
	EntityID   uuid.UUID      `json:"entityId"`
	Timestamp  time.Time      `json:"timestamp"`
	Details    map[string]any `json:"details,omitempty"`

	// SourceRef is set when another entity's workflow caused this entry,
	// so delete cascades can find entries across logs.
	SourceRef *Ref `json:"sourceRef,omitempty"`

	IsDeleted   bool         `json:"isDeleted,omitempty"`
	DeletedAt   *time.Time   `json:"deletedAt,omitempty"`
	DeletedBy   string       `json:"deletedBy,omitempty"`
	EditHistory []EditRecord `json:"editHistory,omitempty"`
}

// Link is a typed directed edge between two entities. Directional in
// meaning, queryable from either endpoint.
type Link struct {
	ID        uuid.UUID      `json:"id"`
	LinkType  string         `json:"linkType"`
	Source    Ref            `json:"source"`
	Target    Ref            `json:"target"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Link types produced by the workflows.
const (
	LinkPointsAwarded = "points-awarded"
	LinkItemSpawned   = "item-spawned"
	LinkItemSold      = "item-sold"
	LinkRecordOfSale  = "record-of-sale"
	LinkCharacterOf   = "character-of"
)

// Snapshot is an immutable month-partitioned copy of an entity taken at its
// terminal lifecycle state. At most one exists per (source id, month key).
type Snapshot struct {
	ID           uuid.UUID       `json:"id"`
	SourceID     uuid.UUID       `json:"sourceId"`
	SourceType   EntityType      `json:"sourceType"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	CollectedAt  *time.Time      `json:"collectedAt,omitempty"`
	SoldAt       *time.Time      `json:"soldAt,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Data         json.RawMessage `json:"data"`
}
