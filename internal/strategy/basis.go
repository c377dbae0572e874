package strategy

import (
	"math"
	"sort"

	"github.com/yanun0323/errors"

	"hftsim/internal/schema"
	"hftsim/internal/state"
	"hftsim/internal/window"
	"hftsim/pkg/exception"
)

// BasisArb trades a synthetic instrument against its weighted basket when
// the basis in bps leaves the entry band, and flattens inside the exit band.
// It acts only on synthetic ticks, which arrive after every constituent.
type BasisArb struct {
	cfg   BasisConfig
	names []string
	basis *window.Rolling
	pos   *state.PositionReducer
	phaser
	last float64
}

func NewBasisArb(cfg BasisConfig) (*BasisArb, error) {
	if cfg.Synthetic == "" || len(cfg.Weights) == 0 || cfg.Lookback <= 0 {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "basis needs a synthetic, weights and a lookback")
	}
	names := make([]string, 0, len(cfg.Weights))
	for name := range cfg.Weights {
		names = append(names, name)
	}
	sort.Strings(names)
	return &BasisArb{
		cfg:   cfg,
		names: names,
		basis: window.New(cfg.Lookback),
		pos:   state.NewPositionReducer(append([]string{cfg.Synthetic}, names...)...),
	}, nil
}

func (b *BasisArb) Kind() Kind { return KindBasis }

// Phase returns the current lifecycle phase.
func (b *BasisArb) Phase() Phase { return b.phase }

// Basis returns the latest basis in bps.
func (b *BasisArb) Basis() float64 { return b.last }

// Fair returns the weighted basket value, false when a constituent is unquoted.
func (b *BasisArb) Fair(ev schema.MarketEvent) (float64, bool) {
	var fair float64
	for _, name := range b.names {
		px, ok := ev.Mid(name)
		if !ok {
			return 0, false
		}
		fair += b.cfg.Weights[name] * px
	}
	return fair, true
}

func (b *BasisArb) OnMarketEvent(ev schema.MarketEvent) []schema.Order {
	if ev.Tick.Instrument != b.cfg.Synthetic {
		return nil
	}
	fair, ok := b.Fair(ev)
	if !ok || fair <= 0 {
		return nil
	}
	px := ev.Tick.Mid
	bps := (px/fair - 1) * 10_000
	b.last = bps
	b.basis.Push(bps)
	if !b.basis.Full() {
		return nil
	}

	b.settle(b.pos.Flat())
	synth := b.pos.Position(b.cfg.Synthetic)
	size := b.cfg.Size

	var orders []schema.Order
	switch {
	case bps > b.cfg.EntryBps && synth-size >= -b.cfg.PosLimit:
		orders = b.entry(ev, schema.SideSell, px)
	case bps < -b.cfg.EntryBps && synth+size <= b.cfg.PosLimit:
		orders = b.entry(ev, schema.SideBuy, px)
	}
	if len(orders) > 0 {
		b.enter()
	}

	if math.Abs(bps) < b.cfg.ExitBps && synth != 0 {
		orders = append(orders, closingOrder(b.cfg.Synthetic, synth, px))
		for _, name := range b.names {
			if inv := b.pos.Position(name); inv != 0 {
				mid, _ := ev.Mid(name)
				orders = append(orders, closingOrder(name, inv, mid))
			}
		}
		b.exit()
	}
	return orders
}

// entry trades the synthetic on side and the basket on the opposite side.
func (b *BasisArb) entry(ev schema.MarketEvent, side schema.Side, px float64) []schema.Order {
	orders := make([]schema.Order, 0, len(b.names)+1)
	orders = append(orders, schema.Order{Instrument: b.cfg.Synthetic, Side: side, Qty: b.cfg.Size, Price: px})
	for _, name := range b.names {
		mid, _ := ev.Mid(name)
		orders = append(orders, schema.Order{
			Instrument: name,
			Side:       side.Opposite(),
			Qty:        b.cfg.Size * b.cfg.Weights[name],
			Price:      mid,
		})
	}
	return orders
}

func (b *BasisArb) OnFill(fill schema.Fill) {
	if fill.Instrument != b.cfg.Synthetic {
		if _, ok := b.cfg.Weights[fill.Instrument]; !ok {
			return
		}
	}
	b.pos.ApplyFill(fill)
	b.filled(b.pos.Flat())
}

func (b *BasisArb) Inventory() map[string]float64 {
	return b.pos.Positions()
}

func (b *BasisArb) PostTrade(order schema.Order) map[string]float64 {
	return postTrade(b.pos, order)
}

func (b *BasisArb) PnL(marks map[string]float64) float64 {
	return b.pos.MarkToMarket(marks)
}
