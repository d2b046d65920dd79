package domain

// Points is a reward breakdown keyed by currency name (xp, gold, ...).
type Points map[string]float64

// Clone returns an independent copy.
func (p Points) Clone() Points {
	if p == nil {
		return nil
	}
	out := make(Points, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Add returns p + other without mutating either operand.
func (p Points) Add(other Points) Points {
	out := p.Clone()
	if out == nil {
		out = Points{}
	}
	for k, v := range other {
		out[k] += v
	}
	return out
}

// Negate returns -p.
func (p Points) Negate() Points {
	out := make(Points, len(p))
	for k, v := range p {
		out[k] = -v
	}
	return out
}

// Diff returns p - other, the delta to apply when rewards were edited.
func (p Points) Diff(other Points) Points {
	out := Points{}
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] -= v
	}
	for k, v := range out {
		if v == 0 {
			delete(out, k)
		}
	}
	return out
}

// IsZero reports whether every component is zero (or the map is empty).
func (p Points) IsZero() bool {
	for _, v := range p {
		if v != 0 {
			return false
		}
	}
	return true
}

// Equal reports componentwise equality, treating missing keys as zero.
func (p Points) Equal(other Points) bool {
	return p.Diff(other).IsZero()
}
