// Package effects is the idempotency ledger: an existence set of "this side
// effect already ran" keys. Marking happens only after the guarded effect
// durably completes; keys are cleared explicitly on delete or rollback,
// never by expiry.
package effects

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

type Ledger struct {
	log   *logger.Logger
	store kvstore.Store
}

func NewLedger(store kvstore.Store, baseLog *logger.Logger) *Ledger {
	return &Ledger{
		log:   baseLog.With("component", "EffectsLedger"),
		store: store,
	}
}

func (l *Ledger) Has(ctx context.Context, k Key) (bool, error) {
	return l.store.SetContains(ctx, k.setKey(), k.member())
}

func (l *Ledger) Mark(ctx context.Context, k Key) error {
	return l.store.SetAdd(ctx, k.setKey(), k.member())
}

// MarkNX marks the key and reports whether this caller won. On backends
// with a native compare-and-set this closes the check-then-mark race;
// elsewhere it is best-effort under the backend's own serialization.
func (l *Ledger) MarkNX(ctx context.Context, k Key) (bool, error) {
	return l.store.SetAddNX(ctx, k.setKey(), k.member())
}

func (l *Ledger) Clear(ctx context.Context, k Key) error {
	return l.store.SetRemove(ctx, k.setKey(), k.member())
}

// ClearByPrefix removes every marked effect for the entity whose member
// begins with prefix. Used by rollback paths that must re-arm a family of
// guards (e.g. all "done:*" effects on uncompletion).
func (l *Ledger) ClearByPrefix(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, prefix string) error {
	setKey := entitySetKey(entityType, entityID)
	members, err := l.store.SetMembers(ctx, setKey)
	if err != nil {
		return err
	}
	for _, m := range members {
		if !strings.HasPrefix(m, prefix) {
			continue
		}
		if err := l.store.SetRemove(ctx, setKey, m); err != nil {
			return err
		}
	}
	return nil
}

// ClearAll drops the entity's entire effect set. Only the hard-delete
// cascade calls this.
func (l *Ledger) ClearAll(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) error {
	return l.ClearByPrefix(ctx, entityType, entityID, "")
}
