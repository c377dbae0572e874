package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hftsim/internal/schema"
	"hftsim/pkg/exception"
)

// feed keeps the latest tick per instrument the way the coordinator does.
type feed struct {
	latest map[string]schema.Tick
}

func newFeed() *feed {
	return &feed{latest: map[string]schema.Tick{}}
}

func (f *feed) event(t schema.Tick) schema.MarketEvent {
	if t.Mid == 0 {
		t.Mid = (t.Bid + t.Ask) / 2
	}
	f.latest[t.Instrument] = t
	return schema.MarketEvent{Tick: t, Latest: f.latest}
}

func flat(instrument string, px float64) schema.Tick {
	return schema.Tick{Instrument: instrument, Bid: px, Ask: px, Mid: px}
}

func fillAll(s Strategy, orders []schema.Order) {
	for _, o := range orders {
		s.OnFill(schema.Fill{Instrument: o.Instrument, Side: o.Side, Qty: o.Qty, Price: o.Price})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		require.Equal(t, k, got)
	}
	_, err := ParseKind("momentum")
	require.ErrorIs(t, err, exception.ErrUnknownStrategy)
}

func TestBuildEveryKind(t *testing.T) {
	cfg := testConfig()
	for _, k := range Kinds() {
		e, err := Build(k, cfg)
		require.NoError(t, err, k)
		require.Equal(t, k, e.Kind())
		_, threshold := e.Phase()
		assert.Equal(t, k == KindBasis || k == KindPairs || k == KindTriangular, threshold, k)
	}
	_, err := Build("nope", cfg)
	require.ErrorIs(t, err, exception.ErrUnknownStrategy)
}

func testConfig() Config {
	return Config{
		MarketMaking: MarketMakingConfig{Instrument: "SIM", HalfSpread: 0.1, Size: 1, InvLimit: 10, InvSpreadMult: 1},
		Basis: BasisConfig{
			Synthetic: "SIMETF",
			Weights:   map[string]float64{"AAA": 0.5, "BBB": 0.5},
			Lookback:  3, EntryBps: 3, ExitBps: 0.5, Size: 10, PosLimit: 100,
		},
		Pairs: PairsConfig{LegA: "AAA", LegB: "BBB", Lookback: 3, Beta: 2, EntryZ: 1, ExitZ: 0.1, Size: 10, PosLimit: 100},
		Triangular: TriangularConfig{
			CurrencyA: "EUR", CurrencyB: "USD", CurrencyC: "JPY",
			EntryBps: 1, FeeBps: 1, Size: 10000, PosLimit: 1e9,
		},
		Learner: LearnerConfig{Instrument: "SIM", Levels: 2, Theta: 0.1, LearningRate: 1, OrderQty: 1000, MaxPos: 1e6},
	}
}

func TestMarketMakerSkew(t *testing.T) {
	mm, err := NewMarketMaker(testConfig().MarketMaking)
	require.NoError(t, err)

	bid, ask := mm.Quote(100)
	assert.InDelta(t, 99.9, bid, 1e-12)
	assert.InDelta(t, 100.1, ask, 1e-12)

	mm.OnFill(schema.Fill{Instrument: "SIM", Side: schema.SideBuy, Qty: 5, Price: 100})
	bid, ask = mm.Quote(100)
	assert.InDelta(t, 99.85, bid, 1e-12)
	assert.InDelta(t, 100.15, ask, 1e-12)

	mm.OnFill(schema.Fill{Instrument: "SIM", Side: schema.SideSell, Qty: 10, Price: 100})
	bid, _ = mm.Quote(100)
	assert.InDelta(t, 99.85, bid, 1e-12)

	mm.OnFill(schema.Fill{Instrument: "SIM", Side: schema.SideSell, Qty: 20, Price: 100})
	bid, ask = mm.Quote(100)
	assert.InDelta(t, 99.8, bid, 1e-12)
	assert.InDelta(t, 100.2, ask, 1e-12)

	orders := mm.OnMarketEvent(newFeed().event(schema.Tick{Instrument: "SIM", Bid: 99.5, Ask: 100.5}))
	require.Len(t, orders, 2)
	assert.Equal(t, schema.SideBuy, orders[0].Side)
	assert.Equal(t, schema.SideSell, orders[1].Side)
	assert.InDelta(t, 99.8, orders[0].Price, 1e-12)

	assert.Equal(t, map[string]float64{"SIM": -24}, mm.PostTrade(orders[0]))
	assert.Equal(t, map[string]float64{"SIM": -25}, mm.Inventory())
}

func TestBasisSilentUntilWindowFull(t *testing.T) {
	b, err := NewBasisArb(testConfig().Basis)
	require.NoError(t, err)
	f := newFeed()
	f.event(flat("AAA", 100))
	f.event(flat("BBB", 100))

	require.Nil(t, b.OnMarketEvent(f.event(flat("AAA", 100))))
	require.Nil(t, b.OnMarketEvent(f.event(flat("SIMETF", 100.1))))
	require.Nil(t, b.OnMarketEvent(f.event(flat("SIMETF", 100.1))))
	assert.InDelta(t, 10, b.Basis(), 1e-9)

	orders := b.OnMarketEvent(f.event(flat("SIMETF", 100.05)))
	require.Len(t, orders, 3)
	assert.Equal(t, schema.Order{Instrument: "SIMETF", Side: schema.SideSell, Qty: 10, Price: 100.05}, orders[0])
	assert.Equal(t, schema.Order{Instrument: "AAA", Side: schema.SideBuy, Qty: 5, Price: 100}, orders[1])
	assert.Equal(t, schema.Order{Instrument: "BBB", Side: schema.SideBuy, Qty: 5, Price: 100}, orders[2])
	assert.Equal(t, PhaseEntering, b.Phase())

	fillAll(b, orders)
	assert.Equal(t, PhaseHolding, b.Phase())
	assert.Equal(t, -10.0, b.Inventory()["SIMETF"])

	exit := b.OnMarketEvent(f.event(flat("SIMETF", 100.001)))
	require.Len(t, exit, 3)
	assert.Equal(t, schema.Order{Instrument: "SIMETF", Side: schema.SideBuy, Qty: 10, Price: 100.001}, exit[0])
	assert.Equal(t, schema.SideSell, exit[1].Side)
	assert.Equal(t, 5.0, exit[1].Qty)
	assert.Equal(t, PhaseExiting, b.Phase())

	fillAll(b, exit)
	assert.Equal(t, PhaseFlat, b.Phase())
	for k, v := range b.Inventory() {
		assert.Zero(t, v, k)
	}
}

func TestBasisRespectsPositionLimit(t *testing.T) {
	cfg := testConfig().Basis
	cfg.PosLimit = 15
	b, err := NewBasisArb(cfg)
	require.NoError(t, err)
	f := newFeed()
	f.event(flat("AAA", 100))
	f.event(flat("BBB", 100))
	for i := 0; i < 2; i++ {
		b.OnMarketEvent(f.event(flat("SIMETF", 100.1)))
	}

	orders := b.OnMarketEvent(f.event(flat("SIMETF", 100.1)))
	require.Len(t, orders, 3)
	fillAll(b, orders)

	require.Empty(t, b.OnMarketEvent(f.event(flat("SIMETF", 100.1))))
}

func TestBasisSkipsZeroFair(t *testing.T) {
	b, err := NewBasisArb(testConfig().Basis)
	require.NoError(t, err)
	f := newFeed()
	f.event(flat("AAA", 0))
	f.event(flat("BBB", 0))
	for i := 0; i < 5; i++ {
		require.Nil(t, b.OnMarketEvent(f.event(flat("SIMETF", 100))))
	}
	require.Nil(t, b.OnMarketEvent(schema.MarketEvent{Tick: flat("SIMETF", 100), Latest: map[string]schema.Tick{}}))
}

func referenceZ(values []float64) float64 {
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	std := math.Sqrt(ss / float64(len(values)))
	return (values[len(values)-1] - mean) / math.Max(std, 1e-8)
}

func TestPairsZScoreMatchesReference(t *testing.T) {
	cfg := testConfig().Pairs
	cfg.Lookback = 5
	cfg.Beta = 0.8
	cfg.EntryZ = 100
	p, err := NewPairTrader(cfg)
	require.NoError(t, err)
	f := newFeed()

	var spreads []float64
	for i := 0; i < 40; i++ {
		a := 100 + math.Sin(float64(i))
		b := 50 + 0.5*math.Cos(float64(i)*0.7)
		require.Nil(t, p.OnMarketEvent(f.event(flat("AAA", a))))
		orders := p.OnMarketEvent(f.event(flat("BBB", b)))
		require.Empty(t, orders)

		spreads = append(spreads, math.Log(a)-0.8*math.Log(b))
		if len(spreads) < 5 {
			require.False(t, p.Ready())
			continue
		}
		require.True(t, p.Ready())
		want := referenceZ(spreads[len(spreads)-5:])
		require.InDelta(t, want, p.Z(), 1e-6)
	}
}

func TestPairsEntryAndExit(t *testing.T) {
	p, err := NewPairTrader(testConfig().Pairs)
	require.NoError(t, err)
	f := newFeed()
	step := func(a, b float64) []schema.Order {
		require.Nil(t, p.OnMarketEvent(f.event(flat("AAA", a))))
		return p.OnMarketEvent(f.event(flat("BBB", b)))
	}

	require.Nil(t, step(100, 50))
	require.Nil(t, step(100, 50))
	orders := step(110, 50)
	require.InDelta(t, math.Sqrt2, p.Z(), 1e-9)
	require.Len(t, orders, 2)
	assert.Equal(t, schema.Order{Instrument: "AAA", Side: schema.SideSell, Qty: 10, Price: 110}, orders[0])
	assert.Equal(t, schema.Order{Instrument: "BBB", Side: schema.SideBuy, Qty: 20, Price: 50}, orders[1])
	fillAll(p, orders)
	assert.Equal(t, PhaseHolding, p.Phase())

	exit := step(math.Sqrt(100*110), 50)
	require.InDelta(t, 0, p.Z(), 1e-6)
	require.Len(t, exit, 2)
	assert.Equal(t, schema.SideBuy, exit[0].Side)
	assert.Equal(t, 10.0, exit[0].Qty)
	assert.Equal(t, schema.SideSell, exit[1].Side)
	assert.Equal(t, 20.0, exit[1].Qty)
	fillAll(p, exit)
	assert.Equal(t, PhaseFlat, p.Phase())
}

func TestPairsEntryChecksLimit(t *testing.T) {
	cfg := testConfig().Pairs
	cfg.PosLimit = 5
	p, err := NewPairTrader(cfg)
	require.NoError(t, err)
	f := newFeed()
	for _, a := range []float64{100, 100, 110} {
		p.OnMarketEvent(f.event(flat("AAA", a)))
		orders := p.OnMarketEvent(f.event(flat("BBB", 50)))
		require.Empty(t, orders)
	}
	require.Greater(t, p.Z(), 1.0)
}

func triQuotes(f *feed, abBid, abAsk, bcBid, bcAsk, acBid, acAsk float64) []schema.MarketEvent {
	return []schema.MarketEvent{
		f.event(schema.Tick{Instrument: "EUR/JPY", Bid: acBid, Ask: acAsk}),
		f.event(schema.Tick{Instrument: "EUR/USD", Bid: abBid, Ask: abAsk}),
		f.event(schema.Tick{Instrument: "USD/JPY", Bid: bcBid, Ask: bcAsk}),
	}
}

func TestTriangularEdges(t *testing.T) {
	tri, err := NewTriArb(testConfig().Triangular)
	require.NoError(t, err)
	f := newFeed()
	evs := triQuotes(f, 1.10, 1.1002, 150.0, 150.02, 164.88, 164.9)

	require.Nil(t, tri.OnMarketEvent(evs[0]))
	require.Nil(t, tri.OnMarketEvent(evs[1]))
	_, _, ok := tri.Edges()
	require.False(t, ok)

	orders := tri.OnMarketEvent(evs[2])
	e1, e2, ok := tri.Edges()
	require.True(t, ok)

	fee := 1e-4
	want1 := (1.10*(1-fee)*150.0*(1-fee)/164.9/(1+fee) - 1) * 10_000
	want2 := (164.88*(1-fee)/150.02/(1+fee)/1.1002/(1+fee) - 1) * 10_000
	assert.InDelta(t, want1, e1, 1e-9)
	assert.InDelta(t, want2, e2, 1e-9)
	assert.InDelta(t, 3.0628623, e1, 1e-6)
	assert.InDelta(t, -13.4175746, e2, 1e-6)

	require.Len(t, orders, 3)
	assert.Equal(t, schema.Order{Instrument: "EUR/USD", Side: schema.SideSell, Qty: 10000, Price: 1.10}, orders[0])
	assert.Equal(t, "USD/JPY", orders[1].Instrument)
	assert.Equal(t, schema.SideSell, orders[1].Side)
	assert.InDelta(t, 11000, orders[1].Qty, 1e-9)
	assert.Equal(t, schema.Order{Instrument: "EUR/JPY", Side: schema.SideBuy, Qty: 10000, Price: 164.9}, orders[2])
	assert.Equal(t, PhaseEntering, tri.Phase())
}

func TestTriangularEdgeAtThresholdDoesNotFire(t *testing.T) {
	probe, err := NewTriArb(testConfig().Triangular)
	require.NoError(t, err)
	f := newFeed()
	for _, ev := range triQuotes(f, 1.10, 1.1002, 150.0, 150.02, 164.88, 164.9) {
		probe.OnMarketEvent(ev)
	}
	e1, _, _ := probe.Edges()

	cfg := testConfig().Triangular
	cfg.EntryBps = e1
	tri, err := NewTriArb(cfg)
	require.NoError(t, err)
	var orders []schema.Order
	for _, ev := range triQuotes(newFeed(), 1.10, 1.1002, 150.0, 150.02, 164.88, 164.9) {
		orders = append(orders, tri.OnMarketEvent(ev)...)
	}
	require.Empty(t, orders)
}

func TestTriangularSecondCycle(t *testing.T) {
	tri, err := NewTriArb(testConfig().Triangular)
	require.NoError(t, err)
	var orders []schema.Order
	for _, ev := range triQuotes(newFeed(), 1.10, 1.1001, 150.0, 150.01, 165.2, 165.22) {
		orders = append(orders, tri.OnMarketEvent(ev)...)
	}
	e1, e2, _ := tri.Edges()
	assert.InDelta(t, -16.3111851, e1, 1e-6)
	assert.InDelta(t, 7.5410698, e2, 1e-6)

	require.Len(t, orders, 3)
	assert.Equal(t, schema.Order{Instrument: "EUR/JPY", Side: schema.SideSell, Qty: 10000, Price: 165.2}, orders[0])
	assert.Equal(t, schema.SideBuy, orders[1].Side)
	assert.InDelta(t, 10000*165.2/150.01, orders[1].Qty, 1e-9)
	assert.Equal(t, schema.Order{Instrument: "EUR/USD", Side: schema.SideBuy, Qty: 10000, Price: 1.1001}, orders[2])
}

func TestTriangularFillsTouchTwoCurrencies(t *testing.T) {
	tri, err := NewTriArb(testConfig().Triangular)
	require.NoError(t, err)
	for _, ev := range triQuotes(newFeed(), 1.10, 1.1002, 150.0, 150.02, 164.88, 164.9) {
		tri.OnMarketEvent(ev)
	}

	tri.OnFill(schema.Fill{Instrument: "EUR/USD", Side: schema.SideSell, Qty: 10000, Price: 1.10})
	inv := tri.Inventory()
	assert.Equal(t, -10000.0, inv["EUR"])
	assert.InDelta(t, 11000, inv["USD"], 1e-9)
	assert.Zero(t, inv["JPY"])

	tri.OnFill(schema.Fill{Instrument: "USD/JPY", Side: schema.SideSell, Qty: 11000, Price: 150})
	tri.OnFill(schema.Fill{Instrument: "EUR/JPY", Side: schema.SideBuy, Qty: 10000, Price: 164.9})
	inv = tri.Inventory()
	assert.InDelta(t, 0, inv["EUR"], 1e-9)
	assert.InDelta(t, 0, inv["USD"], 1e-9)
	assert.InDelta(t, 1000, inv["JPY"], 1e-6)
	assert.Equal(t, PhaseHolding, tri.Phase())
}

func TestTriangularPostTradeUsesBid(t *testing.T) {
	tri, err := NewTriArb(testConfig().Triangular)
	require.NoError(t, err)
	for _, ev := range triQuotes(newFeed(), 1.10, 1.1002, 150.0, 150.02, 164.88, 164.9) {
		tri.OnMarketEvent(ev)
	}
	post := tri.PostTrade(schema.Order{Instrument: "EUR/JPY", Side: schema.SideBuy, Qty: 10000})
	assert.Len(t, post, 3)
	assert.Equal(t, 10000.0, post["EUR"])
	assert.Zero(t, post["USD"])
	assert.InDelta(t, -10000*164.88, post["JPY"], 1e-6)
	assert.Zero(t, tri.Inventory()["EUR"])
}

func sigmoidRef(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func TestLearnerSingleStepUpdate(t *testing.T) {
	cfg := testConfig().Learner
	cfg.LearningRate = 0.1
	cfg.Theta = 0.45
	l, err := NewLearner(cfg)
	require.NoError(t, err)
	f := newFeed()

	x0 := []float64{0.5, 0}
	x1 := []float64{-0.5, 0.25}
	x2 := []float64{0, -1}
	tick := func(mid float64, bid, ask []float64) schema.MarketEvent {
		return f.event(schema.Tick{Instrument: "SIM", Bid: mid - 0.01, Ask: mid + 0.01, Mid: mid, BidDepth: bid, AskDepth: ask})
	}

	require.Nil(t, l.OnMarketEvent(tick(100, []float64{300, 0}, []float64{100, 0})))
	w, b := l.Weights()
	require.Equal(t, []float64{0, 0}, w)
	require.Zero(t, b)

	// down-tick: label 0 against x0
	require.Nil(t, l.OnMarketEvent(tick(99, []float64{100, 500}, []float64{300, 300})))
	r := 0 - sigmoidRef(0)
	w1 := []float64{0.1 * r * x0[0], 0.1 * r * x0[1]}
	b1 := 0.1 * r
	w, b = l.Weights()
	require.InDeltaSlice(t, w1, w, 1e-12)
	require.InDelta(t, b1, b, 1e-12)

	// up-tick: label 1 against x1, decision from pre-update weights on x2
	require.Nil(t, l.OnMarketEvent(tick(100, []float64{0, 0}, []float64{0, 100})))
	require.InDelta(t, sigmoidRef(w1[0]*x2[0]+w1[1]*x2[1]+b1), l.Probability(), 1e-12)

	r = 1 - sigmoidRef(w1[0]*x1[0]+w1[1]*x1[1]+b1)
	w2 := []float64{w1[0] + 0.1*r*x1[0], w1[1] + 0.1*r*x1[1]}
	b2 := b1 + 0.1*r
	w, b = l.Weights()
	require.InDeltaSlice(t, w2, w, 1e-12)
	require.InDelta(t, b2, b, 1e-12)
}

func TestLearnerFeaturesZeroDepth(t *testing.T) {
	x := Features([]float64{0, 100, 50}, []float64{0, 100}, 4)
	require.Equal(t, []float64{0, 0, 1, 0}, x)
}

func TestLearnerTradesWhenConfident(t *testing.T) {
	l, err := NewLearner(testConfig().Learner)
	require.NoError(t, err)
	f := newFeed()
	tick := func(mid float64) schema.MarketEvent {
		return f.event(schema.Tick{Instrument: "SIM", Bid: mid - 0.01, Ask: mid + 0.01, Mid: mid,
			BidDepth: []float64{100, 100}, AskDepth: []float64{0, 100}})
	}

	require.Nil(t, l.OnMarketEvent(tick(100)))
	require.Nil(t, l.OnMarketEvent(tick(100.01)))
	orders := l.OnMarketEvent(tick(100.02))
	require.Len(t, orders, 1)
	assert.Equal(t, schema.SideBuy, orders[0].Side)
	assert.Equal(t, 1000.0, orders[0].Qty)

	l.OnFill(schema.Fill{Instrument: "SIM", Side: schema.SideBuy, Qty: 1000, Price: 100.03})
	assert.Equal(t, map[string]float64{"SIM": 1000}, l.Inventory())
	assert.Equal(t, map[string]float64{"SIM": 0}, l.PostTrade(schema.Order{Instrument: "SIM", Side: schema.SideSell, Qty: 1000}))
	assert.InDelta(t, 1000*(100.05-100.03), l.PnL(map[string]float64{"SIM": 100.05}), 1e-6)
}
