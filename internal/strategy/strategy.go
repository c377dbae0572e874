// Package strategy holds the five trading strategies. Each one owns its
// inventory and mutates it only from fills.
package strategy

import (
	"github.com/yanun0323/errors"

	"hftsim/internal/schema"
	"hftsim/internal/state"
	"hftsim/pkg/exception"
)

// Kind names a strategy variant.
type Kind string

const (
	KindMarketMaking Kind = "market_making"
	KindBasis        Kind = "basis"
	KindPairs        Kind = "pairs"
	KindTriangular   Kind = "triangular"
	KindLearner      Kind = "learner"
)

// Kinds lists every supported variant.
func Kinds() []Kind {
	return []Kind{KindMarketMaking, KindBasis, KindPairs, KindTriangular, KindLearner}
}

// ParseKind maps a name to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errors.Wrapf(exception.ErrUnknownStrategy, "strategy %q", s)
}

// Strategy is the capability every variant provides to the coordinator.
type Strategy interface {
	Kind() Kind
	// OnMarketEvent returns candidate orders. IDs are assigned by the caller.
	OnMarketEvent(ev schema.MarketEvent) []schema.Order
	OnFill(fill schema.Fill)
	Inventory() map[string]float64
	// PostTrade returns every balance the order would leave behind if filled.
	PostTrade(order schema.Order) map[string]float64
	PnL(marks map[string]float64) float64
}

// Phase is the lifecycle of a threshold strategy.
type Phase uint8

const (
	PhaseFlat Phase = iota
	PhaseEntering
	PhaseHolding
	PhaseExiting
)

func (p Phase) String() string {
	switch p {
	case PhaseFlat:
		return "flat"
	case PhaseEntering:
		return "entering"
	case PhaseHolding:
		return "holding"
	case PhaseExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// phaser drives Phase from emitted order sets and fills.
type phaser struct {
	phase Phase
}

// settle resolves transient phases before a new signal is evaluated.
func (p *phaser) settle(flat bool) {
	if flat {
		p.phase = PhaseFlat
		return
	}
	p.phase = PhaseHolding
}

func (p *phaser) enter() { p.phase = PhaseEntering }
func (p *phaser) exit()  { p.phase = PhaseExiting }

func (p *phaser) filled(flat bool) {
	switch {
	case flat:
		p.phase = PhaseFlat
	case p.phase == PhaseEntering || p.phase == PhaseFlat:
		p.phase = PhaseHolding
	}
}

// Engine is the closed set of variants. Exactly one field is set, selected
// by kind, and every call switches on kind.
type Engine struct {
	kind       Kind
	mm         *MarketMaker
	basis      *BasisArb
	pairs      *PairTrader
	triangular *TriArb
	learner    *Learner
}

var _ Strategy = (*Engine)(nil)

// Build constructs the variant named by kind.
func Build(kind Kind, cfg Config) (*Engine, error) {
	e := &Engine{kind: kind}
	var err error
	switch kind {
	case KindMarketMaking:
		e.mm, err = NewMarketMaker(cfg.MarketMaking)
	case KindBasis:
		e.basis, err = NewBasisArb(cfg.Basis)
	case KindPairs:
		e.pairs, err = NewPairTrader(cfg.Pairs)
	case KindTriangular:
		e.triangular, err = NewTriArb(cfg.Triangular)
	case KindLearner:
		e.learner, err = NewLearner(cfg.Learner)
	default:
		return nil, errors.Wrapf(exception.ErrUnknownStrategy, "strategy %q", kind)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "build %s", kind)
	}
	return e, nil
}

func (e *Engine) Kind() Kind {
	return e.kind
}

func (e *Engine) OnMarketEvent(ev schema.MarketEvent) []schema.Order {
	switch e.kind {
	case KindMarketMaking:
		return e.mm.OnMarketEvent(ev)
	case KindBasis:
		return e.basis.OnMarketEvent(ev)
	case KindPairs:
		return e.pairs.OnMarketEvent(ev)
	case KindTriangular:
		return e.triangular.OnMarketEvent(ev)
	case KindLearner:
		return e.learner.OnMarketEvent(ev)
	default:
		return nil
	}
}

func (e *Engine) OnFill(fill schema.Fill) {
	switch e.kind {
	case KindMarketMaking:
		e.mm.OnFill(fill)
	case KindBasis:
		e.basis.OnFill(fill)
	case KindPairs:
		e.pairs.OnFill(fill)
	case KindTriangular:
		e.triangular.OnFill(fill)
	case KindLearner:
		e.learner.OnFill(fill)
	}
}

func (e *Engine) Inventory() map[string]float64 {
	switch e.kind {
	case KindMarketMaking:
		return e.mm.Inventory()
	case KindBasis:
		return e.basis.Inventory()
	case KindPairs:
		return e.pairs.Inventory()
	case KindTriangular:
		return e.triangular.Inventory()
	case KindLearner:
		return e.learner.Inventory()
	default:
		return nil
	}
}

func (e *Engine) PostTrade(order schema.Order) map[string]float64 {
	switch e.kind {
	case KindMarketMaking:
		return e.mm.PostTrade(order)
	case KindBasis:
		return e.basis.PostTrade(order)
	case KindPairs:
		return e.pairs.PostTrade(order)
	case KindTriangular:
		return e.triangular.PostTrade(order)
	case KindLearner:
		return e.learner.PostTrade(order)
	default:
		return nil
	}
}

func (e *Engine) PnL(marks map[string]float64) float64 {
	switch e.kind {
	case KindMarketMaking:
		return e.mm.PnL(marks)
	case KindBasis:
		return e.basis.PnL(marks)
	case KindPairs:
		return e.pairs.PnL(marks)
	case KindTriangular:
		return e.triangular.PnL(marks)
	case KindLearner:
		return e.learner.PnL(marks)
	default:
		return 0
	}
}

// Phase returns the lifecycle phase of threshold variants. ok is false for
// variants that quote or trade continuously.
func (e *Engine) Phase() (Phase, bool) {
	switch e.kind {
	case KindBasis:
		return e.basis.Phase(), true
	case KindPairs:
		return e.pairs.Phase(), true
	case KindTriangular:
		return e.triangular.Phase(), true
	default:
		return PhaseFlat, false
	}
}

// postTrade returns the single balance an instrument order touches.
func postTrade(pos *state.PositionReducer, order schema.Order) map[string]float64 {
	return map[string]float64{order.Instrument: pos.Position(order.Instrument) + order.Delta()}
}

func closingOrder(instrument string, pos, px float64) schema.Order {
	side := schema.SideBuy
	if pos > 0 {
		side = schema.SideSell
	}
	if pos < 0 {
		pos = -pos
	}
	return schema.Order{Instrument: instrument, Side: side, Qty: pos, Price: px}
}
