package schema

import "time"

// Side describes order direction.
type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// Sign returns +1 for buys, -1 for sells and 0 otherwise.
func (s Side) Sign() float64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	default:
		return 0
	}
}

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Tick is one priced observation emitted by the simulator.
// All ticks produced in the same simulator quantum share Seq.
type Tick struct {
	Seq        uint64
	Instrument string
	Bid        float64
	Ask        float64
	Mid        float64
	BidDepth   []float64
	AskDepth   []float64
	Ts         time.Time
}

// Order is a candidate order proposed by a strategy. Price 0 means market.
type Order struct {
	ID         uint64
	Instrument string
	Side       Side
	Qty        float64
	Price      float64
}

// Delta returns the signed inventory change the order would cause once filled.
func (o Order) Delta() float64 {
	return o.Side.Sign() * o.Qty
}

// Fill is an immediate and complete execution of an order.
type Fill struct {
	OrderID    uint64
	Instrument string
	Side       Side
	Qty        float64
	Price      float64
	Ts         time.Time
}

// Delta returns the signed inventory change caused by the fill.
func (f Fill) Delta() float64 {
	return f.Side.Sign() * f.Qty
}

// MarketEvent is what the coordinator hands to a strategy: the tick that just
// arrived plus the latest tick seen for every instrument.
type MarketEvent struct {
	Tick   Tick
	Latest map[string]Tick
}

// Mid returns the latest mid for the instrument.
func (e MarketEvent) Mid(instrument string) (float64, bool) {
	t, ok := e.Latest[instrument]
	if !ok {
		return 0, false
	}
	return t.Mid, true
}

// RiskAction is the outcome of a risk decision.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
)

// RiskReason is a coarse reason code for risk decisions.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonPositionLimit
	RiskReasonRateLimit
)

func (r RiskReason) String() string {
	switch r {
	case RiskReasonNone:
		return "none"
	case RiskReasonPositionLimit:
		return "position_limit"
	case RiskReasonRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// RiskDecision records how the risk gate judged an order.
// BreachKey and BreachValue name the balance that violated the position limit.
type RiskDecision struct {
	OrderID     uint64
	Instrument  string
	Action      RiskAction
	Reason      RiskReason
	BreachKey   string
	BreachValue float64
	MaxPos      float64
	RateCount   int
}

// Allowed reports whether the order may be sent.
func (d RiskDecision) Allowed() bool {
	return d.Action == RiskActionAllow
}
