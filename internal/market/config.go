package market

import (
	"time"

	"github.com/yanun0323/errors"

	"hftsim/pkg/exception"
)

// GeneratorKind selects the price process.
type GeneratorKind string

const (
	GeneratorWalk       GeneratorKind = "walk"
	GeneratorBasket     GeneratorKind = "basket"
	GeneratorCorrelated GeneratorKind = "correlated"
	GeneratorCrossRate  GeneratorKind = "crossrate"
	GeneratorDepth      GeneratorKind = "depth"
)

// Config describes one simulated venue. Zero numeric knobs fall back to the
// generator defaults.
type Config struct {
	Generator    GeneratorKind `json:"-" yaml:"-"`
	Seed         int64         `json:"-" yaml:"-"`
	TickInterval time.Duration `json:"-" yaml:"-"`
	// MaxTicks is the number of quanta to produce. Zero means unbounded.
	MaxTicks int `json:"-" yaml:"-"`

	StartPrice float64 `json:"startPrice" yaml:"start_price"`
	// Step is the largest mid move per quantum for walk and the tick size for depth.
	Step       float64 `json:"step" yaml:"step"`
	HalfSpread float64 `json:"halfSpread" yaml:"half_spread"`
	Noise      float64 `json:"noise" yaml:"noise"`
	BasisNoise float64 `json:"basisNoise" yaml:"basis_noise"`
	Rho        float64 `json:"rho" yaml:"rho"`
	CrossNoise float64 `json:"crossNoise" yaml:"cross_noise"`
	Levels     int     `json:"levels" yaml:"levels"`
	LegB       float64 `json:"legBRatio" yaml:"leg_b_ratio"`

	LegStarts []float64          `json:"legStarts" yaml:"leg_starts"`
	LegVols   []float64          `json:"legVols" yaml:"leg_vols"`
	Spreads   map[string]float64 `json:"spreads" yaml:"spreads"`

	Instrument string             `json:"-" yaml:"-"`
	Legs       []string           `json:"-" yaml:"-"`
	Weights    map[string]float64 `json:"-" yaml:"-"`
	Synthetic  string             `json:"-" yaml:"-"`
	Currencies [3]string          `json:"-" yaml:"-"`
}

const (
	defaultTickInterval = 10 * time.Millisecond
	defaultStartPrice   = 100.0
	defaultWalkStep     = 0.05
	defaultWalkHalf     = 0.5
	defaultNoise        = 0.002
	defaultBasisNoise   = 0.001
	defaultRho          = 0.9
	defaultLegBRatio    = 0.98
	defaultCrossNoise   = 0.002
	defaultDepthTick    = 0.01
	defaultLevels       = 5
)

var (
	defaultLegStarts = []float64{1.10, 150.0}
	defaultLegVols   = []float64{0.00005, 0.005}
)

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.StartPrice <= 0 {
		c.StartPrice = defaultStartPrice
	}
	if c.Step <= 0 {
		switch c.Generator {
		case GeneratorDepth:
			c.Step = defaultDepthTick
		default:
			c.Step = defaultWalkStep
		}
	}
	if c.HalfSpread <= 0 {
		c.HalfSpread = defaultWalkHalf
	}
	if c.Noise <= 0 {
		c.Noise = defaultNoise
	}
	if c.BasisNoise <= 0 {
		c.BasisNoise = defaultBasisNoise
	}
	if c.Rho == 0 {
		c.Rho = defaultRho
	}
	if c.LegB <= 0 {
		c.LegB = defaultLegBRatio
	}
	if c.CrossNoise <= 0 {
		c.CrossNoise = defaultCrossNoise
	}
	if c.Levels <= 0 {
		c.Levels = defaultLevels
	}
	if len(c.LegStarts) < 2 {
		c.LegStarts = defaultLegStarts
	}
	if len(c.LegVols) < 2 {
		c.LegVols = defaultLegVols
	}
	return c
}

// Validate checks that the instruments required by the generator are present.
func (c Config) Validate() error {
	switch c.Generator {
	case GeneratorWalk, GeneratorDepth:
		if c.Instrument == "" {
			return errors.Wrapf(exception.ErrInvalidConfig, "%s generator requires an instrument", c.Generator)
		}
	case GeneratorBasket:
		if len(c.Weights) == 0 || c.Synthetic == "" {
			return errors.Wrap(exception.ErrInvalidConfig, "basket generator requires weights and a synthetic instrument")
		}
		if _, ok := c.Weights[c.Synthetic]; ok {
			return errors.Wrap(exception.ErrInvalidConfig, "synthetic instrument cannot be a basket constituent")
		}
	case GeneratorCorrelated:
		if len(c.Legs) != 2 || c.Legs[0] == "" || c.Legs[1] == "" || c.Legs[0] == c.Legs[1] {
			return errors.Wrap(exception.ErrInvalidConfig, "correlated generator requires two distinct legs")
		}
		if c.Rho < -1 || c.Rho > 1 {
			return errors.Wrapf(exception.ErrInvalidConfig, "rho %v out of [-1, 1]", c.Rho)
		}
	case GeneratorCrossRate:
		for _, ccy := range c.Currencies {
			if ccy == "" {
				return errors.Wrap(exception.ErrInvalidConfig, "crossrate generator requires three currencies")
			}
		}
	default:
		return errors.Wrapf(exception.ErrUnknownGenerator, "generator %q", c.Generator)
	}
	return nil
}

// PairName joins a base and quote currency into a pair identifier.
func PairName(base, quote string) string {
	return base + "/" + quote
}
