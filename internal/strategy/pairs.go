package strategy

import (
	"math"

	"github.com/yanun0323/errors"

	"hftsim/internal/schema"
	"hftsim/internal/state"
	"hftsim/internal/window"
	"hftsim/pkg/exception"
)

// zFloor bounds the spread standard deviation away from zero.
const zFloor = 1e-8

// PairTrader trades the z-score of spread = log A - beta*log B over a
// rolling window. It acts on leg B ticks, which follow leg A in each quantum.
type PairTrader struct {
	cfg    PairsConfig
	spread *window.Rolling
	pos    *state.PositionReducer
	phaser
	z float64
}

func NewPairTrader(cfg PairsConfig) (*PairTrader, error) {
	if cfg.LegA == "" || cfg.LegB == "" || cfg.LegA == cfg.LegB || cfg.Lookback <= 0 {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "pairs needs two distinct legs and a lookback")
	}
	return &PairTrader{
		cfg:    cfg,
		spread: window.New(cfg.Lookback),
		pos:    state.NewPositionReducer(cfg.LegA, cfg.LegB),
	}, nil
}

func (p *PairTrader) Kind() Kind { return KindPairs }

// Phase returns the current lifecycle phase.
func (p *PairTrader) Phase() Phase { return p.phase }

// Z returns the latest z-score. It is zero until the window is full.
func (p *PairTrader) Z() float64 { return p.z }

// Ready reports whether the rolling window is full.
func (p *PairTrader) Ready() bool { return p.spread.Full() }

func (p *PairTrader) OnMarketEvent(ev schema.MarketEvent) []schema.Order {
	if ev.Tick.Instrument != p.cfg.LegB {
		return nil
	}
	pxA, ok := ev.Mid(p.cfg.LegA)
	pxB := ev.Tick.Mid
	if !ok || pxA <= 0 || pxB <= 0 {
		return nil
	}

	la, lb := math.Log(pxA), math.Log(pxB)
	p.spread.Push(la - p.cfg.Beta*lb)
	if !p.spread.Full() {
		return nil
	}
	z := p.spread.ZScore(p.spread.Last(), zFloor)
	p.z = z

	p.settle(p.pos.Flat())
	posA := p.pos.Position(p.cfg.LegA)
	posB := p.pos.Position(p.cfg.LegB)
	size := p.cfg.Size
	hedge := size * p.cfg.Beta

	var orders []schema.Order
	switch {
	case z > p.cfg.EntryZ && posA-size >= -p.cfg.PosLimit:
		orders = append(orders,
			schema.Order{Instrument: p.cfg.LegA, Side: schema.SideSell, Qty: size, Price: pxA},
			schema.Order{Instrument: p.cfg.LegB, Side: schema.SideBuy, Qty: hedge, Price: pxB},
		)
		p.enter()
	case z < -p.cfg.EntryZ && posA+size <= p.cfg.PosLimit:
		orders = append(orders,
			schema.Order{Instrument: p.cfg.LegA, Side: schema.SideBuy, Qty: size, Price: pxA},
			schema.Order{Instrument: p.cfg.LegB, Side: schema.SideSell, Qty: hedge, Price: pxB},
		)
		p.enter()
	}

	if math.Abs(z) < p.cfg.ExitZ && (posA != 0 || posB != 0) {
		if posA != 0 {
			orders = append(orders, closingOrder(p.cfg.LegA, posA, pxA))
		}
		if posB != 0 {
			orders = append(orders, closingOrder(p.cfg.LegB, posB, pxB))
		}
		p.exit()
	}
	return orders
}

func (p *PairTrader) OnFill(fill schema.Fill) {
	if fill.Instrument != p.cfg.LegA && fill.Instrument != p.cfg.LegB {
		return
	}
	p.pos.ApplyFill(fill)
	p.filled(p.pos.Flat())
}

func (p *PairTrader) Inventory() map[string]float64 {
	return p.pos.Positions()
}

func (p *PairTrader) PostTrade(order schema.Order) map[string]float64 {
	return postTrade(p.pos, order)
}

func (p *PairTrader) PnL(marks map[string]float64) float64 {
	return p.pos.MarkToMarket(marks)
}
