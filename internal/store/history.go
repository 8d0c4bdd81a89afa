package store

import "github.com/shopspring/decimal"

// priceHistory is a bounded price series. A point is retained only if it
// moved at least minDelta from the previously retained point; only the
// newest max points are kept.
type priceHistory struct {
	max      int
	minDelta decimal.Decimal
	points   []PricePoint
}

func newPriceHistory(max int, minDelta decimal.Decimal) *priceHistory {
	if max < 1 {
		max = 1
	}
	return &priceHistory{
		max:      max,
		minDelta: minDelta.Abs(),
		points:   make([]PricePoint, 0, max),
	}
}

// add appends p unless it is within minDelta of the last retained point.
// Returns true if the point was retained.
func (h *priceHistory) add(p PricePoint) bool {
	if n := len(h.points); n > 0 {
		if p.Price.Sub(h.points[n-1].Price).Abs().LessThan(h.minDelta) {
			return false
		}
	}

	if len(h.points) == h.max {
		// Shift left in place; max is small (tens of points).
		copy(h.points, h.points[1:])
		h.points = h.points[:h.max-1]
	}
	h.points = append(h.points, p)
	return true
}

// snapshot returns a copy of the retained points, oldest first.
func (h *priceHistory) snapshot() []PricePoint {
	out := make([]PricePoint, len(h.points))
	copy(out, h.points)
	return out
}

func (h *priceHistory) len() int {
	return len(h.points)
}
