package og

import (
	"time"

	"hftsim/internal/schema"
	"hftsim/pkg/exception"
)

// OrderState tracks the lifecycle of an order.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStateSent
	OrderStateFilled
)

func (s OrderState) String() string {
	switch s {
	case OrderStateSent:
		return "sent"
	case OrderStateFilled:
		return "filled"
	default:
		return "unknown"
	}
}

// Order holds the tracker's view of an order.
type Order struct {
	schema.Order
	State    OrderState
	SentAt   time.Time
	FilledAt time.Time
	FillPx   float64
}

// Tracker updates orders from dispatch and fill events. Fills are immediate
// and complete, so an order moves from Sent to Filled in one step.
type Tracker struct {
	orders      map[uint64]*Order
	outstanding int
	filled      int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{orders: make(map[uint64]*Order)}
}

// Order returns the current order state.
func (m *Tracker) Order(id uint64) (*Order, bool) {
	o, ok := m.orders[id]
	return o, ok
}

// Outstanding returns the number of sent orders still waiting for a fill.
func (m *Tracker) Outstanding() int {
	return m.outstanding
}

// Retained returns the number of orders held, filled ones included.
func (m *Tracker) Retained() int {
	return len(m.orders)
}

// Filled returns the number of filled orders.
func (m *Tracker) Filled() int {
	return m.filled
}

// ApplySent records an order handed to the simulator.
func (m *Tracker) ApplySent(order schema.Order, at time.Time) (*Order, error) {
	if order.ID == 0 {
		return nil, exception.ErrOrderUnknown
	}
	if order.Qty <= 0 {
		return nil, exception.ErrOrderInvalidQty
	}
	if order.Side != schema.SideBuy && order.Side != schema.SideSell {
		return nil, exception.ErrOrderInvalidSide
	}
	if _, ok := m.orders[order.ID]; ok {
		return nil, exception.ErrOrderDuplicate
	}
	o := &Order{Order: order, State: OrderStateSent, SentAt: at}
	m.orders[o.ID] = o
	m.outstanding++
	return o, nil
}

// ApplyFill moves an order to Filled.
func (m *Tracker) ApplyFill(fill schema.Fill) (*Order, error) {
	o, ok := m.orders[fill.OrderID]
	if !ok {
		return nil, exception.ErrOrderUnknown
	}
	if o.State == OrderStateFilled {
		return o, exception.ErrOrderInvalidTransition
	}
	if fill.Instrument != o.Instrument || fill.Side != o.Side || fill.Qty != o.Qty {
		return o, exception.ErrOrderFillMismatch
	}
	o.State = OrderStateFilled
	o.FilledAt = fill.Ts
	o.FillPx = fill.Price
	m.outstanding--
	m.filled++
	return o, nil
}

// Forget drops filled orders to bound memory on long runs.
func (m *Tracker) Forget() int {
	n := 0
	for id, o := range m.orders {
		if o.State == OrderStateFilled {
			delete(m.orders, id)
			n++
		}
	}
	return n
}
