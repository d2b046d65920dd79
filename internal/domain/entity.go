package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityType identifies one of the tracked record kinds.
type EntityType string

const (
	EntityTask      EntityType = "task"
	EntitySale      EntityType = "sale"
	EntityRecord    EntityType = "financial_record"
	EntityItem      EntityType = "item"
	EntityPlayer    EntityType = "player"
	EntityCharacter EntityType = "character"
	EntitySite      EntityType = "site"
	EntityBusiness  EntityType = "business"
)

// Ref is a weak reference to an entity, used by links and log entries.
type Ref struct {
	Type EntityType `json:"type"`
	ID   uuid.UUID  `json:"id"`
}

// Task statuses.
const (
	TaskStatusCreated    = "created"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
	TaskStatusCollected  = "collected"
	TaskStatusCancelled  = "cancelled"
)

// Sale statuses.
const (
	SaleStatusPending      = "pending"
	SaleStatusFullyCharged = "fully_charged"
	SaleStatusCollected    = "collected"
	SaleStatusCancelled    = "cancelled"
)

// FinancialRecord statuses.
const (
	RecordStatusCreated   = "created"
	RecordStatusCollected = "collected"
)

// Item statuses.
const (
	ItemStatusActive   = "active"
	ItemStatusSold     = "sold"
	ItemStatusArchived = "archived"
)

// TaskOutput describes the item a task produces when it completes.
type TaskOutput struct {
	ItemName  string     `json:"itemName,omitempty"`
	ItemID    *uuid.UUID `json:"itemId,omitempty"`
	Quantity  float64    `json:"quantity,omitempty"`
	UnitValue float64    `json:"unitValue,omitempty"`
	SiteID    *uuid.UUID `json:"siteId,omitempty"`
}

type Task struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DoneAt      *time.Time `json:"doneAt,omitempty"`
	CollectedAt *time.Time `json:"collectedAt,omitempty"`
	Collected   bool       `json:"collected,omitempty"`

	ParentTaskID *uuid.UUID `json:"parentTaskId,omitempty"`
	// CascadeSuppressed stops status/deletion propagation to child tasks.
	CascadeSuppressed bool `json:"cascadeSuppressed,omitempty"`

	Cost     float64 `json:"cost"`
	Revenue  float64 `json:"revenue"`
	Currency string  `json:"currency,omitempty"`
	Rewards  Points  `json:"rewards,omitempty"`

	Output *TaskOutput `json:"output,omitempty"`

	PlayerID      *uuid.UUID `json:"playerId,omitempty"`
	CharacterName string     `json:"characterName,omitempty"`
	CharacterID   *uuid.UUID `json:"characterId,omitempty"`
}

// SaleLine is one line item on a sale.
type SaleLine struct {
	LineID    string     `json:"lineId"`
	ItemID    *uuid.UUID `json:"itemId,omitempty"`
	ItemName  string     `json:"itemName,omitempty"`
	Quantity  float64    `json:"quantity"`
	UnitPrice float64    `json:"unitPrice"`
	SiteID    *uuid.UUID `json:"siteId,omitempty"`
}

type Sale struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	SoldAt      *time.Time `json:"soldAt,omitempty"`
	CollectedAt *time.Time `json:"collectedAt,omitempty"`
	Collected   bool       `json:"collected,omitempty"`

	CustomerName        string     `json:"customerName,omitempty"`
	CustomerCharacterID *uuid.UUID `json:"customerCharacterId,omitempty"`

	Lines    []SaleLine `json:"lines,omitempty"`
	Currency string     `json:"currency,omitempty"`
	Revenue  float64    `json:"revenue"`
	Rewards  Points     `json:"rewards,omitempty"`

	// RecordID points at the financial record spawned when the sale charges.
	RecordID *uuid.UUID `json:"recordId,omitempty"`
	PlayerID *uuid.UUID `json:"playerId,omitempty"`
}

type FinancialRecord struct {
	ID          uuid.UUID  `json:"id"`
	Kind        string     `json:"kind"` // income | expense
	Status      string     `json:"status"`
	Description string     `json:"description,omitempty"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency,omitempty"`
	Rewards     Points     `json:"rewards,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CollectedAt *time.Time `json:"collectedAt,omitempty"`
	Collected   bool       `json:"collected,omitempty"`

	SourceSaleID *uuid.UUID `json:"sourceSaleId,omitempty"`
	SourceTaskID *uuid.UUID `json:"sourceTaskId,omitempty"`
	PlayerID     *uuid.UUID `json:"playerId,omitempty"`
}

type Item struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Quantity    float64    `json:"quantity"`
	UnitValue   float64    `json:"unitValue,omitempty"`
	SiteID      *uuid.UUID `json:"siteId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	SoldAt      *time.Time `json:"soldAt,omitempty"`
	CollectedAt *time.Time `json:"collectedAt,omitempty"`
	Collected   bool       `json:"collected,omitempty"`

	SourceTaskID *uuid.UUID `json:"sourceTaskId,omitempty"`
	SourceSaleID *uuid.UUID `json:"sourceSaleId,omitempty"`
}

type Player struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Points    Points    `json:"points,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Character struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Notes     string     `json:"notes,omitempty"`
	PlayerID  *uuid.UUID `json:"playerId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`

	SourceTaskID *uuid.UUID `json:"sourceTaskId,omitempty"`
	SourceSaleID *uuid.UUID `json:"sourceSaleId,omitempty"`
}

type Site struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Stock maps item id -> on-hand quantity at this site.
	Stock map[string]float64 `json:"stock,omitempty"`
}

type Business struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	SiteIDs   []uuid.UUID `json:"siteIds,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
