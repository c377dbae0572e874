package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hftsim/internal/bus"
	"hftsim/internal/config"
	"hftsim/internal/market"
	"hftsim/internal/risk"
	"hftsim/internal/schema"
	"hftsim/internal/state"
	"hftsim/internal/strategy"
)

var epoch = time.Unix(1_700_000_000, 0)

type rig struct {
	sim   *market.Simulator
	coord *Coordinator
}

func newRig(t *testing.T, kind strategy.Kind, ticks int, mutate func(*config.Config), opts ...market.Option) rig {
	t.Helper()
	cfg, err := config.Default(kind)
	require.NoError(t, err)
	cfg.Seed = 42
	cfg.MaxTicks = ticks
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := strategy.Build(cfg.Strategy, cfg.StrategyConfig())
	require.NoError(t, err)
	if len(opts) == 0 {
		opts = []market.Option{market.WithVirtualTime(epoch)}
	}
	sim, err := market.New(cfg.Simulator(), opts...)
	require.NoError(t, err)

	coord := New(engine, risk.NewGate(cfg.RiskLimits()), WithFillLog(false))
	return rig{sim: sim, coord: coord}
}

// runTrace records every admitted order and the inventory after each fill.
type runTrace struct {
	orders    []schema.Order
	inventory []map[string]float64
}

func lockstep(t *testing.T, r rig) runTrace {
	t.Helper()
	var tr runTrace
	for !r.sim.Done() {
		for _, tick := range r.sim.Step() {
			for _, order := range r.coord.HandleTick(tick) {
				tr.orders = append(tr.orders, order)
				fill, err := r.sim.Match(order)
				require.NoError(t, err)
				r.coord.HandleFill(fill)
				tr.inventory = append(tr.inventory, r.coord.Engine().Inventory())
			}
		}
	}
	return tr
}

func TestReplayIsDeterministic(t *testing.T) {
	for _, kind := range strategy.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			a := newRig(t, kind, 400, nil)
			b := newRig(t, kind, 400, nil)
			ta, tb := lockstep(t, a), lockstep(t, b)

			require.Equal(t, ta.orders, tb.orders)
			require.Equal(t, ta.inventory, tb.inventory)
			require.Len(t, ta.inventory, len(ta.orders))

			c := newRig(t, kind, 400, nil)
			require.NoError(t, Replay(context.Background(), c.sim, c.coord))

			sa, sc := a.coord.Summary(), c.coord.Summary()
			assert.Equal(t, sa.Proposed, sc.Proposed)
			assert.Equal(t, sa.Admitted, sc.Admitted)
			assert.Equal(t, sa.Rejected, sc.Rejected)
			assert.Equal(t, sa.PnL, sc.PnL)
			require.NoError(t, state.CompareSnapshots(sa.Snapshot(), sc.Snapshot()))

			assert.Equal(t, uint64(400), sa.Seq)
			assert.Equal(t, uint64(400*len(a.sim.Instruments())), sa.Ticks)
			assert.Equal(t, uint64(len(ta.orders)), sa.Admitted)
			assert.Equal(t, sa.Admitted, sa.Fills)
			assert.Zero(t, sa.Outstanding)
			assert.Equal(t, sa.Proposed, sa.Admitted+sa.RejectedTotal())
		})
	}
}

func TestReplayTraceDiffersAcrossSeeds(t *testing.T) {
	a := newRig(t, strategy.KindMarketMaking, 50, nil)
	b := newRig(t, strategy.KindMarketMaking, 50, func(c *config.Config) { c.Seed = 43 })
	ta, tb := lockstep(t, a), lockstep(t, b)
	require.NotEmpty(t, ta.orders)
	require.NotEqual(t, ta.orders, tb.orders)
}

func TestInventoryIsFoldOfFills(t *testing.T) {
	r := newRig(t, strategy.KindMarketMaking, 200, nil)

	folded := map[string]float64{}
	for !r.sim.Done() {
		for _, tick := range r.sim.Step() {
			for _, order := range r.coord.HandleTick(tick) {
				fill, err := r.sim.Match(order)
				require.NoError(t, err)
				folded[fill.Instrument] += fill.Delta()
				r.coord.HandleFill(fill)
			}
		}
	}

	inv := r.coord.Engine().Inventory()
	require.NotEmpty(t, folded)
	for k, v := range folded {
		assert.InDelta(t, v, inv[k], 1e-9, k)
		assert.LessOrEqual(t, inv[k], 10.0)
		assert.GreaterOrEqual(t, inv[k], -10.0)
	}
}

func TestHandleTickRejectsOverLimit(t *testing.T) {
	r := newRig(t, strategy.KindMarketMaking, 1, func(c *config.Config) {
		limit := 0.5
		c.Risk.MaxPosition = &limit
	})

	ticks := r.sim.Step()
	require.Len(t, ticks, 1)
	require.Empty(t, r.coord.HandleTick(ticks[0]))

	s := r.coord.Summary()
	assert.Equal(t, uint64(2), s.Proposed)
	assert.Zero(t, s.Admitted)
	assert.Equal(t, uint64(2), s.Rejected[schema.RiskReasonPositionLimit])
}

func TestHandleTickAssignsSequentialIDs(t *testing.T) {
	r := newRig(t, strategy.KindMarketMaking, 2, nil)

	var ids []uint64
	for !r.sim.Done() {
		for _, tick := range r.sim.Step() {
			for _, o := range r.coord.HandleTick(tick) {
				ids = append(ids, o.ID)
			}
		}
	}
	assert.Equal(t, []uint64{1, 2, 3, 4}, ids)
	assert.Equal(t, 4, r.coord.Summary().Outstanding)
}

func TestHandleFillDropsUnknownOrder(t *testing.T) {
	r := newRig(t, strategy.KindMarketMaking, 1, nil)
	r.coord.HandleFill(schema.Fill{OrderID: 99, Instrument: "SIM", Side: schema.SideBuy, Qty: 1, Price: 100})

	s := r.coord.Summary()
	assert.Equal(t, uint64(1), s.FillMismatches)
	assert.Zero(t, s.Fills)
	assert.Zero(t, r.coord.Engine().Inventory()["SIM"])
}

func TestRunUntilMaxTicks(t *testing.T) {
	r := newRig(t, strategy.KindMarketMaking, 20, func(c *config.Config) {
		c.TickMS = 1
	}, market.WithClock(time.Now))

	ticks := bus.NewQueue[schema.Tick](4)
	fills := bus.NewQueue[schema.Fill](4)
	orders := bus.NewQueue[schema.Order](4)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	simErr := make(chan error, 1)
	go func() { simErr <- r.sim.Run(ctx, orders, ticks, fills) }()

	require.NoError(t, r.coord.Run(ctx, ticks, fills, orders))
	require.NoError(t, <-simErr)

	s := r.coord.Summary()
	assert.Equal(t, uint64(20), s.Ticks)
	assert.Equal(t, uint64(40), s.Proposed)
	assert.Equal(t, s.Proposed, s.Admitted+s.RejectedTotal())
	assert.Equal(t, s.Admitted, s.Fills)
	assert.Zero(t, s.Outstanding)
	assert.True(t, orders.Closed())
}

func TestRunReturnsOnCancel(t *testing.T) {
	r := newRig(t, strategy.KindMarketMaking, 0, nil)

	ticks := bus.NewQueue[schema.Tick](1)
	fills := bus.NewQueue[schema.Fill](1)
	orders := bus.NewQueue[schema.Order](1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.coord.Run(ctx, ticks, fills, orders) }()

	require.NoError(t, ticks.Publish(context.Background(), schema.Tick{Seq: 1, Instrument: "SIM", Bid: 99.5, Ask: 100.5, Mid: 100, Ts: epoch}))
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.True(t, orders.Closed())
}

func TestSummaryString(t *testing.T) {
	r := newRig(t, strategy.KindMarketMaking, 5, nil)
	require.NoError(t, Replay(context.Background(), r.sim, r.coord))
	s := r.coord.Summary().String()
	assert.Contains(t, s, "strategy=market_making")
	assert.Contains(t, s, "ticks=5")
}
