package strategy

import (
	"math"

	"github.com/yanun0323/errors"

	"hftsim/internal/schema"
	"hftsim/internal/state"
	"hftsim/pkg/exception"
)

// Learner is an online logistic model over per-level book imbalance. It
// learns from the previous tick's features once the current mid is known,
// so training always runs one tick behind the decision.
type Learner struct {
	cfg      LearnerConfig
	w        []float64
	b        float64
	lastFeat []float64
	lastMid  float64
	havePrev bool
	lastProb float64
	pos      *state.PositionReducer
}

func NewLearner(cfg LearnerConfig) (*Learner, error) {
	if cfg.Instrument == "" || cfg.Levels <= 0 || cfg.OrderQty <= 0 {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "learner needs an instrument, levels and an order quantity")
	}
	return &Learner{
		cfg:      cfg,
		w:        make([]float64, cfg.Levels),
		lastFeat: make([]float64, cfg.Levels),
		pos:      state.NewPositionReducer(cfg.Instrument),
	}, nil
}

func (l *Learner) Kind() Kind { return KindLearner }

// Weights returns a copy of the weight vector and the bias.
func (l *Learner) Weights() ([]float64, float64) {
	return append([]float64(nil), l.w...), l.b
}

// Probability returns the up-probability of the latest decision.
func (l *Learner) Probability() float64 { return l.lastProb }

// Features returns (bid-ask)/(bid+ask) per level, 0 where both are empty.
func Features(bid, ask []float64, levels int) []float64 {
	x := make([]float64, levels)
	for i := 0; i < levels; i++ {
		var b, a float64
		if i < len(bid) {
			b = bid[i]
		}
		if i < len(ask) {
			a = ask[i]
		}
		if den := b + a; den > 0 {
			x[i] = (b - a) / den
		}
	}
	return x
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func (l *Learner) predict(x []float64) float64 {
	z := l.b
	for i, v := range x {
		z += l.w[i] * v
	}
	return sigmoid(z)
}

func (l *Learner) OnMarketEvent(ev schema.MarketEvent) []schema.Order {
	tick := ev.Tick
	if tick.Instrument != l.cfg.Instrument {
		return nil
	}
	x := Features(tick.BidDepth, tick.AskDepth, l.cfg.Levels)
	p := l.predict(x)
	l.lastProb = p

	if l.havePrev {
		y := 0.0
		if tick.Mid > l.lastMid {
			y = 1
		}
		residual := y - l.predict(l.lastFeat)
		for i := range l.w {
			l.w[i] += l.cfg.LearningRate * residual * l.lastFeat[i]
		}
		l.b += l.cfg.LearningRate * residual
	}
	l.lastFeat = x
	l.lastMid = tick.Mid
	l.havePrev = true

	switch {
	case p-0.5 > l.cfg.Theta:
		return []schema.Order{{Instrument: l.cfg.Instrument, Side: schema.SideBuy, Qty: l.cfg.OrderQty, Price: tick.Ask}}
	case 0.5-p > l.cfg.Theta:
		return []schema.Order{{Instrument: l.cfg.Instrument, Side: schema.SideSell, Qty: l.cfg.OrderQty, Price: tick.Bid}}
	default:
		return nil
	}
}

func (l *Learner) OnFill(fill schema.Fill) {
	if fill.Instrument != l.cfg.Instrument {
		return
	}
	l.pos.ApplyFill(fill)
}

func (l *Learner) Inventory() map[string]float64 {
	return l.pos.Positions()
}

func (l *Learner) PostTrade(order schema.Order) map[string]float64 {
	return postTrade(l.pos, order)
}

func (l *Learner) PnL(marks map[string]float64) float64 {
	return l.pos.MarkToMarket(marks)
}
