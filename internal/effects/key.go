package effects

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/domain"
)

// Key identifies one guarded side effect for one entity. It has a single
// canonical serialization so writers and readers cannot drift on format.
type Key struct {
	EntityType     domain.EntityType
	EntityID       uuid.UUID
	Effect         string
	Discriminators []string
}

func NewKey(entityType domain.EntityType, entityID uuid.UUID, effect string, discriminators ...string) Key {
	return Key{
		EntityType:     entityType,
		EntityID:       entityID,
		Effect:         effect,
		Discriminators: discriminators,
	}
}

// CreatedKey guards first-creation handling for an entity.
func CreatedKey(entityType domain.EntityType, entityID uuid.UUID) Key {
	return NewKey(entityType, entityID, "created")
}

// String renders "type:id:effect[:discriminator...]".
func (k Key) String() string {
	return string(k.EntityType) + ":" + k.EntityID.String() + ":" + k.member()
}

// setKey names the per-entity member set holding all applied effects.
func (k Key) setKey() string {
	return entitySetKey(k.EntityType, k.EntityID)
}

// member is the within-set portion: effect plus discriminators.
func (k Key) member() string {
	if len(k.Discriminators) == 0 {
		return k.Effect
	}
	return k.Effect + ":" + strings.Join(k.Discriminators, ":")
}

func entitySetKey(entityType domain.EntityType, entityID uuid.UUID) string {
	return "effects:" + string(entityType) + ":" + entityID.String()
}
