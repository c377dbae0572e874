package state

import (
	"math"

	"github.com/shopspring/decimal"

	"hftsim/internal/schema"
)

// flatEpsilon is the absolute quantity below which a position counts as flat.
const flatEpsilon = 1e-9

// PositionReducer updates signed positions based on fill events. Keys are
// instruments, or currencies when the owner keeps a currency ledger.
type PositionReducer struct {
	positions map[string]float64
	cash      decimal.Decimal
	fills     int
}

// NewPositionReducer creates a reducer with the given keys tracked at zero.
func NewPositionReducer(keys ...string) *PositionReducer {
	r := &PositionReducer{positions: make(map[string]float64, len(keys))}
	for _, k := range keys {
		r.positions[k] = 0
	}
	return r
}

// ApplyFill updates the instrument position and the cash ledger and returns
// the new position.
func (r *PositionReducer) ApplyFill(fill schema.Fill) float64 {
	delta := fill.Delta()
	next := r.positions[fill.Instrument] + delta
	r.positions[fill.Instrument] = next
	r.cash = r.cash.Sub(decimal.NewFromFloat(delta).Mul(decimal.NewFromFloat(fill.Price)))
	r.fills++
	return next
}

// ApplyDelta moves a single balance without touching cash.
func (r *PositionReducer) ApplyDelta(key string, delta float64) float64 {
	next := r.positions[key] + delta
	r.positions[key] = next
	return next
}

// ApplyPairFill books a currency pair fill against its base and quote
// balances and returns both new balances.
func (r *PositionReducer) ApplyPairFill(fill schema.Fill, base, quote string) (float64, float64) {
	db, dq := PairDeltas(fill.Side, fill.Qty, fill.Price)
	r.fills++
	return r.ApplyDelta(base, db), r.ApplyDelta(quote, dq)
}

// Position returns the current position for key.
func (r *PositionReducer) Position(key string) float64 {
	return r.positions[key]
}

// Positions returns a copy of every tracked balance.
func (r *PositionReducer) Positions() map[string]float64 {
	out := make(map[string]float64, len(r.positions))
	for k, v := range r.positions {
		out[k] = v
	}
	return out
}

// Cash returns the net cash flow of all applied fills.
func (r *PositionReducer) Cash() float64 {
	return r.cash.InexactFloat64()
}

// MarkToMarket returns cash plus every position valued at marks. Positions
// without a mark are valued at zero.
func (r *PositionReducer) MarkToMarket(marks map[string]float64) float64 {
	equity := r.cash
	for k, qty := range r.positions {
		mark, ok := marks[k]
		if !ok || qty == 0 {
			continue
		}
		equity = equity.Add(decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(mark)))
	}
	return equity.InexactFloat64()
}

// Flat reports whether every position is zero within flatEpsilon.
func (r *PositionReducer) Flat() bool {
	for _, qty := range r.positions {
		if math.Abs(qty) > flatEpsilon {
			return false
		}
	}
	return true
}

// Count returns the number of tracked keys.
func (r *PositionReducer) Count() int {
	return len(r.positions)
}

// Fills returns how many fills were applied.
func (r *PositionReducer) Fills() int {
	return r.fills
}

// PairDeltas returns the base and quote currency changes of trading qty base
// units at price. A buy adds base and spends quote.
func PairDeltas(side schema.Side, qty, price float64) (base, quote float64) {
	sign := side.Sign()
	return sign * qty, -sign * qty * price
}
