package og

import (
	"time"

	"github.com/yanun0323/errors"

	"hftsim/internal/bus"
	"hftsim/internal/schema"
)

// retainFilled is how many filled orders the tracker keeps before Forget.
const retainFilled = 4096

// Gateway sends admitted orders to the simulator and tracks them until filled.
// It is owned by the coordinator goroutine.
//
// Submitted orders wait in an outbox so the owner can offer them inside its
// own select loop instead of blocking on a full queue.
type Gateway struct {
	out     *bus.Queue[schema.Order]
	outbox  []schema.Order
	tracker *Tracker
}

// NewGateway wraps the order queue. A nil out queue makes SubmitAt track
// only, which is what lockstep drivers use.
func NewGateway(out *bus.Queue[schema.Order]) *Gateway {
	return &Gateway{out: out, tracker: NewTracker()}
}

// Tracker returns the underlying order tracker.
func (g *Gateway) Tracker() *Tracker {
	return g.tracker
}

// SubmitAt registers the order as sent at the given time and queues it for
// dispatch.
func (g *Gateway) SubmitAt(order schema.Order, at time.Time) error {
	if _, err := g.tracker.ApplySent(order, at); err != nil {
		return errors.Wrapf(err, "track order %d", order.ID)
	}
	if g.out != nil {
		g.outbox = append(g.outbox, order)
	}
	return nil
}

// Outbox returns the send arm and the head order. The channel is nil when
// nothing is waiting, which disables the arm in a select.
func (g *Gateway) Outbox() (chan<- schema.Order, schema.Order) {
	if len(g.outbox) == 0 || g.out == nil || g.out.Closed() {
		return nil, schema.Order{}
	}
	return g.out.SendC(), g.outbox[0]
}

// Dispatched drops the head order after the send arm fired.
func (g *Gateway) Dispatched() {
	if len(g.outbox) == 0 {
		return
	}
	g.outbox[0] = schema.Order{}
	g.outbox = g.outbox[1:]
	if len(g.outbox) == 0 {
		g.outbox = nil
	}
}

// Pending returns the number of orders waiting in the outbox.
func (g *Gateway) Pending() int {
	return len(g.outbox)
}

// OnFill updates order state from a fill and returns the dispatch-to-fill latency.
func (g *Gateway) OnFill(fill schema.Fill) (time.Duration, error) {
	o, err := g.tracker.ApplyFill(fill)
	if err != nil {
		return 0, err
	}
	if g.tracker.Retained()-g.tracker.Outstanding() >= retainFilled {
		g.tracker.Forget()
	}
	if o.SentAt.IsZero() || fill.Ts.IsZero() {
		return 0, nil
	}
	return fill.Ts.Sub(o.SentAt), nil
}

// Close stops order dispatch. Orders still in the outbox are dropped.
func (g *Gateway) Close() {
	g.outbox = nil
	if g.out != nil {
		g.out.Close()
	}
}
