package strategy

import (
	"math"

	"github.com/yanun0323/errors"

	"hftsim/internal/schema"
	"hftsim/internal/state"
	"hftsim/pkg/exception"
)

// MarketMaker quotes both sides around mid on every tick and widens the
// quote as inventory approaches its limit.
type MarketMaker struct {
	cfg MarketMakingConfig
	pos *state.PositionReducer
}

func NewMarketMaker(cfg MarketMakingConfig) (*MarketMaker, error) {
	if cfg.Instrument == "" || cfg.InvLimit <= 0 || cfg.Size <= 0 {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "market making needs an instrument, a positive size and a positive inventory limit")
	}
	return &MarketMaker{cfg: cfg, pos: state.NewPositionReducer(cfg.Instrument)}, nil
}

func (m *MarketMaker) Kind() Kind { return KindMarketMaking }

// Quote returns the bid and ask prices for the current inventory.
func (m *MarketMaker) Quote(mid float64) (bid, ask float64) {
	skew := math.Max(-1, math.Min(1, m.pos.Position(m.cfg.Instrument)/m.cfg.InvLimit))
	half := m.cfg.HalfSpread * (1 + math.Abs(skew)*m.cfg.InvSpreadMult)
	return mid - half, mid + half
}

func (m *MarketMaker) OnMarketEvent(ev schema.MarketEvent) []schema.Order {
	if ev.Tick.Instrument != m.cfg.Instrument {
		return nil
	}
	mid := (ev.Tick.Bid + ev.Tick.Ask) / 2
	bid, ask := m.Quote(mid)
	return []schema.Order{
		{Instrument: m.cfg.Instrument, Side: schema.SideBuy, Qty: m.cfg.Size, Price: bid},
		{Instrument: m.cfg.Instrument, Side: schema.SideSell, Qty: m.cfg.Size, Price: ask},
	}
}

func (m *MarketMaker) OnFill(fill schema.Fill) {
	if fill.Instrument != m.cfg.Instrument {
		return
	}
	m.pos.ApplyFill(fill)
}

func (m *MarketMaker) Inventory() map[string]float64 {
	return m.pos.Positions()
}

func (m *MarketMaker) PostTrade(order schema.Order) map[string]float64 {
	return postTrade(m.pos, order)
}

func (m *MarketMaker) PnL(marks map[string]float64) float64 {
	return m.pos.MarkToMarket(marks)
}
