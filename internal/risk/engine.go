package risk

import (
	"math"
	"sort"
	"time"

	"hftsim/internal/schema"
)

// DefaultRateWindow is the width of the order-rate window.
const DefaultRateWindow = time.Second

// Config defines simple risk limits. A zero limit disables its check.
type Config struct {
	MaxPosition     float64       `json:"maxPosition" yaml:"max_position"`
	OrderRateLimit  int           `json:"orderRateLimit" yaml:"order_rate_limit"`
	OrderRateWindow time.Duration `json:"-" yaml:"-"`
}

// StateView is the hypothetical post-trade state of the order under test.
type StateView struct {
	// PostTrade maps every balance the order touches (instrument or currency)
	// to its value after a complete fill.
	PostTrade map[string]float64
	// Now is the evaluation time in unix nanos. Zero means wall clock.
	Now int64
}

// Gate evaluates risk decisions. It is owned by a single goroutine.
type Gate struct {
	cfg             Config
	now             func() time.Time
	rateWindowStart int64
	rateCount       int
}

// Option customises a Gate.
type Option func(*Gate)

// WithClock replaces the wall clock used when StateView.Now is zero.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate creates a risk gate with static limits.
func NewGate(cfg Config, opts ...Option) *Gate {
	if cfg.OrderRateWindow <= 0 {
		cfg.OrderRateWindow = DefaultRateWindow
	}
	g := &Gate{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the limits the gate enforces.
func (g *Gate) Config() Config {
	return g.cfg
}

// Admit reports whether the order may be sent given its post-trade balances.
func (g *Gate) Admit(order schema.Order, postTrade map[string]float64) bool {
	return g.Evaluate(order, StateView{PostTrade: postTrade}).Allowed()
}

// Evaluate checks the position limit first and the order rate second. Only
// orders that pass the position check consume rate budget.
func (g *Gate) Evaluate(order schema.Order, state StateView) schema.RiskDecision {
	decision := schema.RiskDecision{
		OrderID:    order.ID,
		Instrument: order.Instrument,
		Action:     schema.RiskActionAllow,
		Reason:     schema.RiskReasonNone,
		MaxPos:     g.cfg.MaxPosition,
	}

	if g.cfg.MaxPosition > 0 {
		if key, value, breached := firstBreach(state.PostTrade, g.cfg.MaxPosition); breached {
			decision.Action = schema.RiskActionDeny
			decision.Reason = schema.RiskReasonPositionLimit
			decision.BreachKey = key
			decision.BreachValue = value
			return decision
		}
	}

	if g.cfg.OrderRateLimit > 0 {
		now := state.Now
		if now == 0 {
			now = g.now().UnixNano()
		}
		window := int64(g.cfg.OrderRateWindow)
		if g.rateWindowStart == 0 || now-g.rateWindowStart >= window {
			g.rateWindowStart = now
			g.rateCount = 0
		}
		if g.rateCount >= g.cfg.OrderRateLimit {
			decision.Action = schema.RiskActionDeny
			decision.Reason = schema.RiskReasonRateLimit
			decision.RateCount = g.rateCount
			return decision
		}
		g.rateCount++
		decision.RateCount = g.rateCount
	}

	return decision
}

// firstBreach returns the first balance, in key order, whose magnitude
// strictly exceeds limit.
func firstBreach(balances map[string]float64, limit float64) (string, float64, bool) {
	if len(balances) == 0 {
		return "", 0, false
	}
	keys := make([]string, 0, len(balances))
	for k := range balances {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := balances[k]
		if math.Abs(v) > limit || math.IsNaN(v) {
			return k, v, true
		}
	}
	return "", 0, false
}
