package strategy

import (
	"github.com/yanun0323/errors"

	"hftsim/internal/schema"
	"hftsim/internal/state"
	"hftsim/pkg/exception"
)

// TriArb trades the two conversion cycles A->B->C->A and A->C->B->A when
// either one's fee-adjusted edge strictly exceeds the entry threshold.
// Balances are kept per currency.
type TriArb struct {
	cfg        TriangularConfig
	ab, bc, ac string
	legs       map[string][2]string
	quotes     map[string]schema.Tick
	balances   *state.PositionReducer
	phaser
}

func NewTriArb(cfg TriangularConfig) (*TriArb, error) {
	if cfg.CurrencyA == "" || cfg.CurrencyB == "" || cfg.CurrencyC == "" {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "triangular needs three currencies")
	}
	if cfg.CurrencyA == cfg.CurrencyB || cfg.CurrencyB == cfg.CurrencyC || cfg.CurrencyA == cfg.CurrencyC {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "triangular currencies must be distinct")
	}
	ab, bc, ac := cfg.Pairs()
	return &TriArb{
		cfg: cfg,
		ab:  ab,
		bc:  bc,
		ac:  ac,
		legs: map[string][2]string{
			ab: {cfg.CurrencyA, cfg.CurrencyB},
			bc: {cfg.CurrencyB, cfg.CurrencyC},
			ac: {cfg.CurrencyA, cfg.CurrencyC},
		},
		quotes:   make(map[string]schema.Tick, 3),
		balances: state.NewPositionReducer(cfg.CurrencyA, cfg.CurrencyB, cfg.CurrencyC),
	}, nil
}

func (t *TriArb) Kind() Kind { return KindTriangular }

// Phase returns the current lifecycle phase.
func (t *TriArb) Phase() Phase { return t.phase }

// Edges returns the edge in bps of both cycles. ok is false until every pair is quoted.
func (t *TriArb) Edges() (edge1, edge2 float64, ok bool) {
	if len(t.quotes) < 3 {
		return 0, 0, false
	}
	q := t.cfg.Size
	out1, out2 := cycleOutputs(q, t.cfg.FeeBps/10_000, t.quotes[t.ab], t.quotes[t.bc], t.quotes[t.ac])
	return (out1/q - 1) * 10_000, (out2/q - 1) * 10_000, true
}

// cycleOutputs returns the amount of A recovered from q units of A along
// A->B->C->A and A->C->B->A after paying fee on every leg.
func cycleOutputs(q, fee float64, ab, bc, ac schema.Tick) (out1, out2 float64) {
	out1 = q * ab.Bid * (1 - fee) * bc.Bid * (1 - fee) / ac.Ask / (1 + fee)
	out2 = q * ac.Bid * (1 - fee) / bc.Ask / (1 + fee) / ab.Ask / (1 + fee)
	return out1, out2
}

func (t *TriArb) OnMarketEvent(ev schema.MarketEvent) []schema.Order {
	if _, ok := t.legs[ev.Tick.Instrument]; !ok {
		return nil
	}
	t.quotes[ev.Tick.Instrument] = ev.Tick

	edge1, edge2, ok := t.Edges()
	if !ok {
		return nil
	}
	t.settle(t.balances.Flat())

	q := t.cfg.Size
	ab, bc, ac := t.quotes[t.ab], t.quotes[t.bc], t.quotes[t.ac]
	var orders []schema.Order
	switch {
	case edge1 > t.cfg.EntryBps:
		orders = []schema.Order{
			{Instrument: t.ab, Side: schema.SideSell, Qty: q, Price: ab.Bid},
			{Instrument: t.bc, Side: schema.SideSell, Qty: q * ab.Bid, Price: bc.Bid},
			{Instrument: t.ac, Side: schema.SideBuy, Qty: q, Price: ac.Ask},
		}
	case edge2 > t.cfg.EntryBps:
		orders = []schema.Order{
			{Instrument: t.ac, Side: schema.SideSell, Qty: q, Price: ac.Bid},
			{Instrument: t.bc, Side: schema.SideBuy, Qty: q * ac.Bid / bc.Ask, Price: bc.Ask},
			{Instrument: t.ab, Side: schema.SideBuy, Qty: q, Price: ab.Ask},
		}
	}
	if len(orders) > 0 {
		t.enter()
	}
	return orders
}

func (t *TriArb) OnFill(fill schema.Fill) {
	leg, ok := t.legs[fill.Instrument]
	if !ok {
		return
	}
	t.balances.ApplyPairFill(fill, leg[0], leg[1])
	t.filled(t.balances.Flat())
}

func (t *TriArb) Inventory() map[string]float64 {
	return t.balances.Positions()
}

// PostTrade values the order at the pair's bid whatever its side and
// returns all three currency balances.
func (t *TriArb) PostTrade(order schema.Order) map[string]float64 {
	out := t.balances.Positions()
	leg, ok := t.legs[order.Instrument]
	if !ok {
		return out
	}
	base, quote := state.PairDeltas(order.Side, order.Qty, t.quotes[order.Instrument].Bid)
	out[leg[0]] += base
	out[leg[1]] += quote
	return out
}

// PnL values every balance in currency A using the A/B and A/C mids.
func (t *TriArb) PnL(marks map[string]float64) float64 {
	pnl := t.balances.Position(t.cfg.CurrencyA)
	if mid, ok := marks[t.ab]; ok && mid > 0 {
		pnl += t.balances.Position(t.cfg.CurrencyB) / mid
	}
	if mid, ok := marks[t.ac]; ok && mid > 0 {
		pnl += t.balances.Position(t.cfg.CurrencyC) / mid
	}
	return pnl
}
