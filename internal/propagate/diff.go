package propagate

import (
	"github.com/ravenmill/tracker-backend/internal/domain"
)

// Pure change predicates. The workflow reactors call these on every upsert
// that carries a previous version; only a true result triggers a resync.

func TaskFinancialChanged(prev, next *domain.Task) bool {
	if prev == nil || next == nil {
		return false
	}
	return prev.Cost != next.Cost || prev.Revenue != next.Revenue || prev.Currency != next.Currency
}

func TaskOutputChanged(prev, next *domain.Task) bool {
	if prev == nil || next == nil {
		return false
	}
	po, no := prev.Output, next.Output
	if (po == nil) != (no == nil) {
		return true
	}
	if po == nil {
		return false
	}
	return po.ItemName != no.ItemName ||
		po.Quantity != no.Quantity ||
		po.UnitValue != no.UnitValue ||
		!uuidPtrEqual(po.SiteID, no.SiteID)
}

func TaskRewardsChanged(prev, next *domain.Task) bool {
	if prev == nil || next == nil {
		return false
	}
	return !prev.Rewards.Equal(next.Rewards)
}

func SaleRevenueChanged(prev, next *domain.Sale) bool {
	if prev == nil || next == nil {
		return false
	}
	return prev.Revenue != next.Revenue || prev.Currency != next.Currency
}

func SaleLinesChanged(prev, next *domain.Sale) bool {
	if prev == nil || next == nil {
		return false
	}
	if len(prev.Lines) != len(next.Lines) {
		return true
	}
	old := linesByID(prev.Lines)
	for _, l := range next.Lines {
		o, ok := old[l.LineID]
		if !ok {
			return true
		}
		if o.Quantity != l.Quantity || o.UnitPrice != l.UnitPrice ||
			o.ItemName != l.ItemName ||
			!uuidPtrEqual(o.ItemID, l.ItemID) || !uuidPtrEqual(o.SiteID, l.SiteID) {
			return true
		}
	}
	return false
}

func SaleRewardsChanged(prev, next *domain.Sale) bool {
	if prev == nil || next == nil {
		return false
	}
	return !prev.Rewards.Equal(next.Rewards)
}

func RecordFinancialChanged(prev, next *domain.FinancialRecord) bool {
	if prev == nil || next == nil {
		return false
	}
	return prev.Amount != next.Amount || prev.Currency != next.Currency
}

func RecordRewardsChanged(prev, next *domain.FinancialRecord) bool {
	if prev == nil || next == nil {
		return false
	}
	return !prev.Rewards.Equal(next.Rewards)
}

// TaskFinalized reports whether the task's completion is settled: a Done (or
// later) status with a doneAt actually present. Player-point deltas only
// propagate when both the old and new versions are finalized.
func TaskFinalized(t *domain.Task) bool {
	if t == nil {
		return false
	}
	if t.DoneAt == nil || t.DoneAt.IsZero() {
		return false
	}
	return t.Status == domain.TaskStatusDone || t.Status == domain.TaskStatusCollected
}

// SaleFinalized is the sale analogue: fully charged (or collected).
func SaleFinalized(s *domain.Sale) bool {
	if s == nil {
		return false
	}
	return s.Status == domain.SaleStatusFullyCharged || s.Status == domain.SaleStatusCollected
}

func linesByID(lines []domain.SaleLine) map[string]domain.SaleLine {
	out := make(map[string]domain.SaleLine, len(lines))
	for _, l := range lines {
		out[l.LineID] = l
	}
	return out
}

func uuidPtrEqual[T comparable](a, b *T) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return *a == *b
}
