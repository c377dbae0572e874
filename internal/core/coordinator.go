package core

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"hftsim/internal/bus"
	"hftsim/internal/obs"
	"hftsim/internal/og"
	"hftsim/internal/risk"
	"hftsim/internal/schema"
	"hftsim/internal/strategy"
)

// Coordinator routes ticks to the strategy, screens its orders through the
// risk gate and feeds fills back. It is not safe for concurrent use.
type Coordinator struct {
	engine  *strategy.Engine
	gate    *risk.Gate
	gateway *og.Gateway
	metrics *obs.Metrics
	prom    *obs.Prometheus
	ids     *obs.Sequence
	now     func() time.Time
	fillLog bool

	latest map[string]schema.Tick
	marks  map[string]float64
	seq    uint64
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithMetrics replaces the in-process metrics container.
func WithMetrics(m *obs.Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithPrometheus attaches Prometheus collectors.
func WithPrometheus(p *obs.Prometheus) Option {
	return func(c *Coordinator) {
		c.prom = p
	}
}

// WithClock replaces the clock used for receive timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFillLog toggles the per-fill log line.
func WithFillLog(enabled bool) Option {
	return func(c *Coordinator) {
		c.fillLog = enabled
	}
}

// New builds a coordinator. Until Run binds an order queue, admitted orders
// are tracked but not dispatched, which is what Replay relies on.
func New(engine *strategy.Engine, gate *risk.Gate, opts ...Option) *Coordinator {
	c := &Coordinator{
		engine:  engine,
		gate:    gate,
		metrics: obs.NewMetrics(),
		ids:     obs.NewSequence(0),
		now:     time.Now,
		fillLog: true,
		latest:  make(map[string]schema.Tick),
		marks:   make(map[string]float64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.gateway = og.NewGateway(nil)
	return c
}

func (c *Coordinator) Engine() *strategy.Engine {
	return c.engine
}

func (c *Coordinator) Metrics() *obs.Metrics {
	return c.metrics
}

// HandleTick runs one tick through the strategy and the risk gate and
// returns the admitted orders with their ids assigned.
func (c *Coordinator) HandleTick(tick schema.Tick) []schema.Order {
	c.metrics.ObserveTick(tick, c.now())
	c.prom.ObserveTick(tick)
	if tick.Seq > c.seq {
		c.seq = tick.Seq
	}
	c.latest[tick.Instrument] = tick
	c.marks[tick.Instrument] = tick.Mid

	proposed := c.engine.OnMarketEvent(schema.MarketEvent{Tick: tick, Latest: c.latest})
	if len(proposed) == 0 {
		return nil
	}

	var now int64
	if !tick.Ts.IsZero() {
		now = tick.Ts.UnixNano()
	}

	admitted := make([]schema.Order, 0, len(proposed))
	for _, order := range proposed {
		order.ID = c.ids.Next()
		c.metrics.IncEvent(schema.EventOrderIntent)

		start := time.Now()
		decision := c.gate.Evaluate(order, risk.StateView{
			PostTrade: c.engine.PostTrade(order),
			Now:       now,
		})
		took := time.Since(start)
		c.metrics.ObserveRiskEval(took)
		c.metrics.IncEvent(schema.EventRiskDecision)
		c.prom.ObserveDecision(decision, took)

		if !decision.Allowed() {
			c.metrics.IncRiskReason(decision.Reason)
			continue
		}
		if err := c.gateway.SubmitAt(order, tick.Ts); err != nil {
			logs.Errorf("submit order %d: %+v", order.ID, err)
			continue
		}
		c.metrics.IncEvent(schema.EventOrderSent)
		admitted = append(admitted, order)
	}
	return admitted
}

// HandleFill applies a fill to the order tracker and the strategy. Fills
// that do not match a sent order are counted and dropped.
func (c *Coordinator) HandleFill(fill schema.Fill) {
	latency, err := c.gateway.OnFill(fill)
	if err != nil {
		c.metrics.IncFillMismatch()
		logs.Errorf("drop fill for order %d: %+v", fill.OrderID, err)
		return
	}
	c.metrics.IncEvent(schema.EventFill)
	c.metrics.ObserveOrderFlow(latency)

	c.engine.OnFill(fill)
	inventory := c.engine.Inventory()
	pnl := c.engine.PnL(c.marks)
	c.prom.ObserveFill(fill, inventory, pnl)

	if c.fillLog {
		logs.Infof("fill %s %s qty=%g px=%.6f inv=%v pnl=%.4f",
			fill.Side, fill.Instrument, fill.Qty, fill.Price, inventory, pnl)
	}
}

// Run consumes ticks and fills and dispatches admitted orders until the tick
// queue closes. It then flushes the outbox, closes orders and drains fills
// until the simulator closes them.
func (c *Coordinator) Run(ctx context.Context, ticks *bus.Queue[schema.Tick], fills *bus.Queue[schema.Fill], orders *bus.Queue[schema.Order]) error {
	c.gateway = og.NewGateway(orders)
	defer c.gateway.Close()

	tickC := ticks.C()
	fillC := fills.C()
	for {
		orderC, head := c.gateway.Outbox()
		if orderC == nil && c.gateway.Pending() > 0 {
			// order queue closed underneath us
			c.metrics.IncQueueClosed()
			c.gateway.Close()
		}
		if tickC == nil && c.gateway.Pending() == 0 {
			c.gateway.Close()
			fills.Run(ctx, c.HandleFill)
			return ctx.Err()
		}

		var tickArm <-chan schema.Tick
		if c.gateway.Pending() == 0 {
			tickArm = tickC
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-tickArm:
			if !ok {
				tickC = nil
				continue
			}
			c.HandleTick(tick)
		case orderC <- head:
			c.gateway.Dispatched()
		case fill, ok := <-fillC:
			if !ok {
				fillC = nil
				continue
			}
			c.HandleFill(fill)
		}
	}
}
