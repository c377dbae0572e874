package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"hftsim/internal/bus"
	"hftsim/internal/config"
	"hftsim/internal/core"
	"hftsim/internal/market"
	"hftsim/internal/obs"
	"hftsim/internal/risk"
	"hftsim/internal/schema"
	"hftsim/internal/strategy"
)

type cliFlags struct {
	configPath string
	envFile    string
	strategy   string
	ticks      int
	seed       int64
	lockstep   bool
	fillLog    bool
	set        map[string]bool
}

func main() {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML or JSON config")
	flag.StringVar(&f.envFile, "env", ".env", "Optional .env file with HFTSIM_ overrides")
	flag.StringVar(&f.strategy, "strategy", "", "Strategy kind: market_making|basis|pairs|triangular|learner")
	flag.IntVar(&f.ticks, "ticks", 0, "Number of simulator quanta (0=until shutdown)")
	flag.Int64Var(&f.seed, "seed", 0, "Random seed (0=time-seeded)")
	flag.BoolVar(&f.lockstep, "lockstep", false, "Drive simulator and coordinator on one goroutine")
	flag.BoolVar(&f.fillLog, "fill-log", true, "Log every fill")
	flag.Parse()
	f.set = map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	if err := config.LoadDotEnv(f.envFile); err != nil {
		logs.Errorf("load env: %+v", err)
		os.Exit(1)
	}
	cfg, err := config.LoadWith(f.configPath, f.lookup(os.LookupEnv))
	if err != nil {
		logs.Errorf("config: %+v", err)
		os.Exit(1)
	}
	if f.lockstep {
		cfg.Lockstep = true
	}

	runID := uuid.NewString()
	logs.Infof("run %s start strategy=%s seed=%d ticks=%d tick=%s lockstep=%v",
		runID, cfg.Strategy, cfg.Seed, cfg.MaxTicks, cfg.TickInterval(), cfg.Lockstep)

	if cfg.Profiling.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.ApplicationName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Tags: map[string]string{
				"strategy": string(cfg.Strategy),
				"run_id":   runID,
			},
			Logger: emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed: %+v", err)
			os.Exit(1)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	summary, err := run(ctx, cfg, f.fillLog)
	logs.Infof("run %s summary %s", runID, summary)
	if err != nil {
		logs.Errorf("run %s failed: %+v", runID, err)
		cancel()
		os.Exit(1)
	}
}

// lookup layers explicitly set flags over the environment.
func (f cliFlags) lookup(env func(string) (string, bool)) func(string) (string, bool) {
	overrides := map[string]string{}
	if f.set["strategy"] {
		overrides[config.EnvPrefix+"STRATEGY"] = f.strategy
	}
	if f.set["ticks"] {
		overrides[config.EnvPrefix+"MAX_TICKS"] = strconv.Itoa(f.ticks)
	}
	if f.set["seed"] {
		overrides[config.EnvPrefix+"SEED"] = strconv.FormatInt(f.seed, 10)
	}
	return func(key string) (string, bool) {
		if v, ok := overrides[key]; ok {
			return v, true
		}
		if env == nil {
			return "", false
		}
		return env(key)
	}
}

// run wires one simulation and blocks until it ends. A cancelled ctx is a
// normal shutdown and is not reported as an error.
func run(ctx context.Context, cfg config.Config, fillLog bool) (core.Summary, error) {
	engine, err := strategy.Build(cfg.Strategy, cfg.StrategyConfig())
	if err != nil {
		return core.Summary{}, err
	}

	var prom *obs.Prometheus
	if cfg.Metrics.Addr != "" {
		prom = obs.NewPrometheus(string(cfg.Strategy))
		addr, err := obs.Serve(ctx, cfg.Metrics.Addr, prom)
		if err != nil {
			return core.Summary{}, err
		}
		logs.Infof("metrics listening on %s", addr)
	}

	coord := core.New(engine, risk.NewGate(cfg.RiskLimits()),
		core.WithPrometheus(prom),
		core.WithFillLog(fillLog),
	)

	if cfg.Lockstep {
		sim, err := market.New(cfg.Simulator(), market.WithVirtualTime(time.Now()))
		if err != nil {
			return core.Summary{}, err
		}
		err = core.Replay(ctx, sim, coord)
		return coord.Summary(), shutdownErr(ctx, err)
	}

	sim, err := market.New(cfg.Simulator())
	if err != nil {
		return core.Summary{}, err
	}
	ticks := bus.NewQueue[schema.Tick](cfg.ChannelCapacity)
	fills := bus.NewQueue[schema.Fill](cfg.ChannelCapacity)
	orders := bus.NewQueue[schema.Order](cfg.ChannelCapacity)

	var (
		wg     sync.WaitGroup
		simErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		simErr = sim.Run(ctx, orders, ticks, fills)
	}()

	coordErr := coord.Run(ctx, ticks, fills, orders)
	wg.Wait()

	if err := shutdownErr(ctx, simErr); err != nil {
		return coord.Summary(), errors.Wrap(err, "simulator")
	}
	if err := shutdownErr(ctx, coordErr); err != nil {
		return coord.Summary(), errors.Wrap(err, "coordinator")
	}
	return coord.Summary(), nil
}

func shutdownErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
