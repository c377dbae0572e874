package market

import (
	"context"
	"math/rand"
	"time"

	"github.com/yanun0323/errors"

	"hftsim/internal/bus"
	"hftsim/internal/schema"
	"hftsim/pkg/exception"
)

// Simulator owns the price state of one synthetic venue. It generates ticks
// and matches every order immediately and completely.
type Simulator struct {
	cfg     Config
	gen     generator
	rng     *rand.Rand
	now     func() time.Time
	virtual time.Time
	seq     uint64
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithClock replaces the wall clock used to stamp ticks and fills.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// WithVirtualTime stamps quantum n at start + n*TickInterval, which keeps
// lockstep runs independent of the wall clock.
func WithVirtualTime(start time.Time) Option {
	return func(s *Simulator) {
		s.virtual = start
		s.now = func() time.Time {
			return s.virtual.Add(time.Duration(s.seq) * s.cfg.TickInterval)
		}
	}
}

// New validates cfg and builds the simulator. Seed 0 seeds from the clock.
func New(cfg Config, opts ...Option) (*Simulator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Simulator{
		cfg: cfg,
		gen: newGenerator(cfg),
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Simulator) Config() Config {
	return s.cfg
}

// Instruments lists the instruments in tick emission order.
func (s *Simulator) Instruments() []string {
	return s.gen.instruments()
}

// Seq returns the number of quanta produced so far.
func (s *Simulator) Seq() uint64 {
	return s.seq
}

// Done reports whether the configured number of quanta has been produced.
func (s *Simulator) Done() bool {
	return s.cfg.MaxTicks > 0 && s.seq >= uint64(s.cfg.MaxTicks)
}

// Step advances one quantum and returns its ticks in emission order.
func (s *Simulator) Step() []schema.Tick {
	s.seq++
	ticks := s.gen.advance(s.rng)
	ts := s.now()
	for i := range ticks {
		ticks[i].Seq = s.seq
		ticks[i].Ts = ts
	}
	return ticks
}

// Quote returns the current quote for an instrument.
func (s *Simulator) Quote(instrument string) (schema.Tick, error) {
	t, ok := s.gen.quote(instrument)
	if !ok {
		return schema.Tick{}, errors.Wrapf(exception.ErrUnknownInstrument, "instrument %q", instrument)
	}
	t.Seq = s.seq
	return t, nil
}

// Match executes the order in full at the generator's current price.
func (s *Simulator) Match(order schema.Order) (schema.Fill, error) {
	if order.Qty <= 0 {
		return schema.Fill{}, errors.Wrapf(exception.ErrOrderInvalidQty, "order %d qty %v", order.ID, order.Qty)
	}
	if order.Side != schema.SideBuy && order.Side != schema.SideSell {
		return schema.Fill{}, errors.Wrapf(exception.ErrOrderInvalidSide, "order %d", order.ID)
	}
	px, ok := s.gen.fillPrice(order.Instrument, order.Side)
	if !ok {
		return schema.Fill{}, errors.Wrapf(exception.ErrUnknownInstrument, "order %d instrument %q", order.ID, order.Instrument)
	}
	return schema.Fill{
		OrderID:    order.ID,
		Instrument: order.Instrument,
		Side:       order.Side,
		Qty:        order.Qty,
		Price:      px,
		Ts:         s.now(),
	}, nil
}

// Run produces a quantum every TickInterval and matches orders as they
// arrive. Once MaxTicks quanta were emitted it closes ticks and keeps
// matching until orders is closed, then closes fills and returns.
// Outbound sends never block the loop: pending ticks and fills are
// offered through select arms next to order intake.
func (s *Simulator) Run(ctx context.Context, orders *bus.Queue[schema.Order], ticks *bus.Queue[schema.Tick], fills *bus.Queue[schema.Fill]) error {
	defer fills.Close()
	defer ticks.Close()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var (
		pendingTicks []schema.Tick
		pendingFills []schema.Fill
		ordersC      = orders.C()
	)

	for {
		if !ticks.Closed() && s.Done() && len(pendingTicks) == 0 {
			ticks.Close()
		}
		if ordersC == nil && len(pendingFills) == 0 {
			return nil
		}

		var (
			clock    <-chan time.Time
			tickOut  chan<- schema.Tick
			nextTick schema.Tick
			fillOut  chan<- schema.Fill
			nextFill schema.Fill
			intake   <-chan schema.Order
		)
		if !ticks.Closed() {
			if len(pendingTicks) > 0 {
				tickOut, nextTick = ticks.SendC(), pendingTicks[0]
			} else {
				clock = ticker.C
			}
		}
		if len(pendingFills) > 0 {
			fillOut, nextFill = fills.SendC(), pendingFills[0]
		} else {
			intake = ordersC
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock:
			pendingTicks = append(pendingTicks, s.Step()...)
		case tickOut <- nextTick:
			pendingTicks = pendingTicks[1:]
		case fillOut <- nextFill:
			pendingFills = pendingFills[1:]
		case order, ok := <-intake:
			if !ok {
				ordersC = nil
				ticks.Close()
				pendingTicks = nil
				continue
			}
			fill, err := s.Match(order)
			if err != nil {
				return errors.Wrap(err, "match order")
			}
			pendingFills = append(pendingFills, fill)
		}
	}
}
