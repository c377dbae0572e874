package market

import (
	"math"
	"math/rand"
	"sort"

	"hftsim/internal/schema"
)

// generator owns the price state of one venue.
type generator interface {
	kind() GeneratorKind
	instruments() []string
	// advance moves prices by one quantum and returns one tick per
	// instrument in emission order. Seq and Ts are stamped by the caller.
	advance(rng *rand.Rand) []schema.Tick
	// quote returns the current quote without advancing.
	quote(instrument string) (schema.Tick, bool)
	// fillPrice returns the execution price for a market order.
	fillPrice(instrument string, side schema.Side) (float64, bool)
}

func newGenerator(cfg Config) generator {
	switch cfg.Generator {
	case GeneratorWalk:
		return newWalk(cfg)
	case GeneratorBasket:
		return newBasket(cfg)
	case GeneratorCorrelated:
		return newCorrelated(cfg)
	case GeneratorCrossRate:
		return newCrossRate(cfg)
	case GeneratorDepth:
		return newDepth(cfg)
	default:
		return nil
	}
}

func flatTick(instrument string, px float64) schema.Tick {
	return schema.Tick{Instrument: instrument, Bid: px, Ask: px, Mid: px}
}

// walk is a single instrument random walk quoted symmetrically around mid.
type walk struct {
	instrument string
	mid        float64
	step       float64
	half       float64
}

func newWalk(cfg Config) *walk {
	return &walk{instrument: cfg.Instrument, mid: cfg.StartPrice, step: cfg.Step, half: cfg.HalfSpread}
}

func (w *walk) kind() GeneratorKind   { return GeneratorWalk }
func (w *walk) instruments() []string { return []string{w.instrument} }

func (w *walk) advance(rng *rand.Rand) []schema.Tick {
	w.mid += (rng.Float64()*2 - 1) * w.step
	t, _ := w.quote(w.instrument)
	return []schema.Tick{t}
}

func (w *walk) quote(instrument string) (schema.Tick, bool) {
	if instrument != w.instrument {
		return schema.Tick{}, false
	}
	return schema.Tick{Instrument: w.instrument, Bid: w.mid - w.half, Ask: w.mid + w.half, Mid: w.mid}, true
}

func (w *walk) fillPrice(instrument string, _ schema.Side) (float64, bool) {
	if instrument != w.instrument {
		return 0, false
	}
	return w.mid, true
}

// basket walks each constituent and prices a synthetic around the weighted fair value.
type basket struct {
	names      []string
	weights    map[string]float64
	px         map[string]float64
	synthetic  string
	synth      float64
	noise      float64
	basisNoise float64
}

func newBasket(cfg Config) *basket {
	b := &basket{
		names:      make([]string, 0, len(cfg.Weights)),
		weights:    make(map[string]float64, len(cfg.Weights)),
		px:         make(map[string]float64, len(cfg.Weights)),
		synthetic:  cfg.Synthetic,
		synth:      cfg.StartPrice,
		noise:      cfg.Noise,
		basisNoise: cfg.BasisNoise,
	}
	for name, w := range cfg.Weights {
		b.names = append(b.names, name)
		b.weights[name] = w
		b.px[name] = cfg.StartPrice
	}
	sort.Strings(b.names)
	return b
}

func (b *basket) kind() GeneratorKind { return GeneratorBasket }

func (b *basket) instruments() []string {
	out := make([]string, 0, len(b.names)+1)
	out = append(out, b.names...)
	return append(out, b.synthetic)
}

func (b *basket) fair() float64 {
	var fv float64
	for _, name := range b.names {
		fv += b.weights[name] * b.px[name]
	}
	return fv
}

func (b *basket) advance(rng *rand.Rand) []schema.Tick {
	for _, name := range b.names {
		b.px[name] *= 1 + (rng.Float64()-0.5)*b.noise
	}
	b.synth = b.fair() * (1 + (rng.Float64()-0.5)*b.basisNoise)

	out := make([]schema.Tick, 0, len(b.names)+1)
	for _, name := range b.names {
		out = append(out, flatTick(name, b.px[name]))
	}
	return append(out, flatTick(b.synthetic, b.synth))
}

func (b *basket) quote(instrument string) (schema.Tick, bool) {
	if instrument == b.synthetic {
		return flatTick(instrument, b.synth), true
	}
	px, ok := b.px[instrument]
	if !ok {
		return schema.Tick{}, false
	}
	return flatTick(instrument, px), true
}

func (b *basket) fillPrice(instrument string, _ schema.Side) (float64, bool) {
	t, ok := b.quote(instrument)
	return t.Mid, ok
}

// correlated drives two legs with a shared factor.
type correlated struct {
	legA, legB string
	pxA, pxB   float64
	rho        float64
	noise      float64
}

func newCorrelated(cfg Config) *correlated {
	return &correlated{
		legA:  cfg.Legs[0],
		legB:  cfg.Legs[1],
		pxA:   cfg.StartPrice,
		pxB:   cfg.StartPrice * cfg.LegB,
		rho:   cfg.Rho,
		noise: cfg.Noise,
	}
}

func (c *correlated) kind() GeneratorKind   { return GeneratorCorrelated }
func (c *correlated) instruments() []string { return []string{c.legA, c.legB} }

func (c *correlated) advance(rng *rand.Rand) []schema.Tick {
	n1 := rng.Float64()
	n2 := rng.Float64()
	z1 := (n1 - 0.5) * c.noise
	z2 := c.rho*z1 + math.Sqrt(1-c.rho*c.rho)*((n2-0.5)*c.noise)
	c.pxA *= 1 + z1
	c.pxB *= 1 + z2
	return []schema.Tick{flatTick(c.legA, c.pxA), flatTick(c.legB, c.pxB)}
}

func (c *correlated) quote(instrument string) (schema.Tick, bool) {
	switch instrument {
	case c.legA:
		return flatTick(c.legA, c.pxA), true
	case c.legB:
		return flatTick(c.legB, c.pxB), true
	default:
		return schema.Tick{}, false
	}
}

func (c *correlated) fillPrice(instrument string, _ schema.Side) (float64, bool) {
	t, ok := c.quote(instrument)
	return t.Mid, ok
}

// crossRate walks two legs and prices the cross pair from them with noise.
type crossRate struct {
	legs    [2]string
	cross   string
	vols    [2]float64
	noise   float64
	mid     map[string]float64
	spreads map[string]float64
	order   []string
}

func newCrossRate(cfg Config) *crossRate {
	a, b, c := cfg.Currencies[0], cfg.Currencies[1], cfg.Currencies[2]
	x := &crossRate{
		legs:    [2]string{PairName(a, b), PairName(b, c)},
		cross:   PairName(a, c),
		vols:    [2]float64{cfg.LegVols[0], cfg.LegVols[1]},
		noise:   cfg.CrossNoise,
		mid:     make(map[string]float64, 3),
		spreads: make(map[string]float64, 3),
	}
	x.mid[x.legs[0]] = cfg.LegStarts[0]
	x.mid[x.legs[1]] = cfg.LegStarts[1]
	x.mid[x.cross] = cfg.LegStarts[0] * cfg.LegStarts[1]
	for pair := range x.mid {
		x.spreads[pair] = cfg.Spreads[pair]
		x.order = append(x.order, pair)
	}
	sort.Strings(x.order)
	return x
}

func (x *crossRate) kind() GeneratorKind { return GeneratorCrossRate }

func (x *crossRate) instruments() []string {
	return append([]string(nil), x.order...)
}

func (x *crossRate) advance(rng *rand.Rand) []schema.Tick {
	for i, pair := range x.legs {
		x.mid[pair] *= 1 + (rng.Float64()-0.5)*x.vols[i]
	}
	off := (rng.Float64() - 0.5) * x.noise
	x.mid[x.cross] = x.mid[x.legs[0]] * x.mid[x.legs[1]] * (1 + off)

	out := make([]schema.Tick, 0, len(x.order))
	for _, pair := range x.order {
		t, _ := x.quote(pair)
		out = append(out, t)
	}
	return out
}

func (x *crossRate) quote(pair string) (schema.Tick, bool) {
	mid, ok := x.mid[pair]
	if !ok {
		return schema.Tick{}, false
	}
	half := x.spreads[pair] / 2
	return schema.Tick{Instrument: pair, Bid: mid - half, Ask: mid + half, Mid: mid}, true
}

func (x *crossRate) fillPrice(pair string, side schema.Side) (float64, bool) {
	t, ok := x.quote(pair)
	if !ok {
		return 0, false
	}
	if side == schema.SideBuy {
		return t.Ask, true
	}
	return t.Bid, true
}

// depth moves mid one tick per quantum and draws random per-level depth.
type depth struct {
	instrument string
	mid        float64
	tick       float64
	bid        []float64
	ask        []float64
}

func newDepth(cfg Config) *depth {
	return &depth{
		instrument: cfg.Instrument,
		mid:        cfg.StartPrice,
		tick:       cfg.Step,
		bid:        make([]float64, cfg.Levels),
		ask:        make([]float64, cfg.Levels),
	}
}

func (d *depth) kind() GeneratorKind   { return GeneratorDepth }
func (d *depth) instruments() []string { return []string{d.instrument} }

func (d *depth) advance(rng *rand.Rand) []schema.Tick {
	if rng.Float64() > 0.5 {
		d.mid += d.tick
	} else {
		d.mid -= d.tick
	}
	for i := range d.bid {
		d.bid[i] = 500 + rng.Float64()*1000
		d.ask[i] = 500 + rng.Float64()*1000
	}
	t, _ := d.quote(d.instrument)
	return []schema.Tick{t}
}

func (d *depth) quote(instrument string) (schema.Tick, bool) {
	if instrument != d.instrument {
		return schema.Tick{}, false
	}
	return schema.Tick{
		Instrument: d.instrument,
		Bid:        d.mid - d.tick,
		Ask:        d.mid + d.tick,
		Mid:        d.mid,
		BidDepth:   append([]float64(nil), d.bid...),
		AskDepth:   append([]float64(nil), d.ask...),
	}, true
}

func (d *depth) fillPrice(instrument string, side schema.Side) (float64, bool) {
	if instrument != d.instrument {
		return 0, false
	}
	if side == schema.SideBuy {
		return d.mid + d.tick, true
	}
	return d.mid - d.tick, true
}
