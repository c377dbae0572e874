package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"hftsim/internal/market"
	"hftsim/internal/risk"
	"hftsim/internal/strategy"
	"hftsim/pkg/exception"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HFTSIM_"

// Config mirrors the YAML/JSON config layout.
type Config struct {
	Strategy        strategy.Kind `json:"strategy" yaml:"strategy" default:"market_making" validate:"oneof=market_making basis pairs triangular learner"`
	Seed            int64         `json:"seed" yaml:"seed"`
	TickMS          int           `json:"tickMs" yaml:"tick_ms" validate:"gte=0"`
	MaxTicks        int           `json:"maxTicks" yaml:"max_ticks" validate:"gte=0"`
	ChannelCapacity int           `json:"channelCapacity" yaml:"channel_capacity" default:"1024" validate:"min=1,max=4096"`
	Lockstep        bool          `json:"lockstep" yaml:"lockstep"`

	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Market    market.Config   `json:"market" yaml:"market"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Profiling ProfilingConfig `json:"profiling" yaml:"profiling"`

	strategy.Config `yaml:",inline"`
}

// RiskConfig holds optional limit overrides. Nil means the strategy's own
// limit; a value <= 0 disables the check.
type RiskConfig struct {
	MaxPosition     *float64 `json:"maxPosition" yaml:"max_position"`
	MaxOrdersPerSec *int     `json:"maxOrdersPerSec" yaml:"max_orders_per_sec"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// ProfilingConfig controls continuous profiling. An empty ServerAddress disables it.
type ProfilingConfig struct {
	ServerAddress   string `json:"serverAddress" yaml:"server_address"`
	ApplicationName string `json:"applicationName" yaml:"application_name" default:"hftsim"`
}

// variant carries the per-strategy settings that live outside the strategy section.
type variant struct {
	tickMS          int
	maxOrdersPerSec int
	generator       market.GeneratorKind
}

var variants = map[strategy.Kind]variant{
	strategy.KindMarketMaking: {tickMS: 10, maxOrdersPerSec: 20, generator: market.GeneratorWalk},
	strategy.KindBasis:        {tickMS: 10, generator: market.GeneratorBasket},
	strategy.KindPairs:        {tickMS: 10, generator: market.GeneratorCorrelated},
	strategy.KindTriangular:   {tickMS: 10, generator: market.GeneratorCrossRate},
	strategy.KindLearner:      {tickMS: 1, maxOrdersPerSec: 100, generator: market.GeneratorDepth},
}

var validate = validator.New()

// Default returns the parameter set of one strategy variant.
func Default(kind strategy.Kind) (Config, error) {
	cfg := Config{Strategy: kind}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a YAML or JSON config file, applies HFTSIM_ overrides from the
// environment, fills defaults and validates the result.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit override lookup. An empty path starts
// from defaults.
func LoadWith(path string, lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := Decode(filepath.Ext(path), data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if lookup != nil {
		if err := ApplyEnv(&cfg, lookup); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "load %s", f)
		}
	}
	return nil
}

// Decode unmarshals data by file extension.
func Decode(ext string, data []byte, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.Wrap(err, "parse yaml config")
		}
	case ".json":
		if err := sonic.ConfigFastest.Unmarshal(data, cfg); err != nil {
			return errors.Wrap(err, "parse json config")
		}
	default:
		return errors.Wrapf(exception.ErrUnsupportedFormat, "extension %q", ext)
	}
	return nil
}

// ApplyEnv overrides fields from HFTSIM_ variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get("STRATEGY"); ok {
		cfg.Strategy = strategy.Kind(v)
	}
	if v, ok := get("SEED"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return envError("SEED", v, err)
		}
		cfg.Seed = n
	}
	if v, ok := get("TICK_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("TICK_MS", v, err)
		}
		cfg.TickMS = n
	}
	if v, ok := get("MAX_TICKS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("MAX_TICKS", v, err)
		}
		cfg.MaxTicks = n
	}
	if v, ok := get("CHANNEL_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("CHANNEL_CAPACITY", v, err)
		}
		cfg.ChannelCapacity = n
	}
	if v, ok := get("MAX_POSITION"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError("MAX_POSITION", v, err)
		}
		cfg.Risk.MaxPosition = &f
	}
	if v, ok := get("MAX_ORDERS_PER_SEC"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("MAX_ORDERS_PER_SEC", v, err)
		}
		cfg.Risk.MaxOrdersPerSec = &n
	}
	if v, ok := get("METRICS_ADDR"); ok {
		cfg.Metrics.Addr = v
	}
	return nil
}

func envError(name, value string, err error) error {
	return errors.Wrapf(exception.ErrInvalidConfig, "%s%s=%q: %v", EnvPrefix, name, value, err)
}

// finish fills defaults and validates.
func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return errors.Wrap(err, "set config defaults")
	}
	if c.TickMS == 0 {
		c.TickMS = variants[c.Strategy].tickMS
	}
	return c.Validate()
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if _, err := strategy.ParseKind(string(c.Strategy)); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(exception.ErrInvalidConfig, "%v", err)
	}
	return c.Simulator().Validate()
}

// TickInterval returns the simulator quantum.
func (c Config) TickInterval() time.Duration {
	if c.TickMS <= 0 {
		return time.Duration(variants[c.Strategy].tickMS) * time.Millisecond
	}
	return time.Duration(c.TickMS) * time.Millisecond
}

// RiskLimits resolves the gate limits for the selected strategy.
func (c Config) RiskLimits() risk.Config {
	out := risk.Config{
		MaxPosition:    c.strategyLimit(),
		OrderRateLimit: variants[c.Strategy].maxOrdersPerSec,
	}
	if c.Risk.MaxPosition != nil {
		out.MaxPosition = *c.Risk.MaxPosition
	}
	if c.Risk.MaxOrdersPerSec != nil {
		out.OrderRateLimit = *c.Risk.MaxOrdersPerSec
	}
	return out
}

func (c Config) strategyLimit() float64 {
	switch c.Strategy {
	case strategy.KindMarketMaking:
		return c.MarketMaking.InvLimit
	case strategy.KindBasis:
		return c.Basis.PosLimit
	case strategy.KindPairs:
		return c.Pairs.PosLimit
	case strategy.KindTriangular:
		return c.Triangular.PosLimit
	case strategy.KindLearner:
		return c.Learner.MaxPos
	default:
		return 0
	}
}

// Simulator builds the venue config that matches the selected strategy.
func (c Config) Simulator() market.Config {
	m := c.Market
	m.Generator = variants[c.Strategy].generator
	m.Seed = c.Seed
	m.TickInterval = c.TickInterval()
	m.MaxTicks = c.MaxTicks

	switch c.Strategy {
	case strategy.KindMarketMaking:
		m.Instrument = c.MarketMaking.Instrument
	case strategy.KindBasis:
		m.Weights = c.Basis.Weights
		m.Synthetic = c.Basis.Synthetic
	case strategy.KindPairs:
		m.Legs = []string{c.Pairs.LegA, c.Pairs.LegB}
	case strategy.KindTriangular:
		t := c.Triangular
		m.Currencies = [3]string{t.CurrencyA, t.CurrencyB, t.CurrencyC}
		if len(m.Spreads) == 0 {
			ab, bc, ac := t.Pairs()
			m.Spreads = map[string]float64{ab: 0.0001, bc: 0.01, ac: 0.02}
		}
	case strategy.KindLearner:
		m.Instrument = c.Learner.Instrument
		m.Levels = c.Learner.Levels
	}
	return m
}

// StrategyConfig returns the strategy parameter sections.
func (c Config) StrategyConfig() strategy.Config {
	return c.Config
}
