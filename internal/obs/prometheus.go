package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hftsim/internal/schema"
)

const namespace = "hftsim"

// Prometheus exports run metrics on a private registry.
// A nil *Prometheus is a valid no-op recorder.
type Prometheus struct {
	registry *prometheus.Registry

	ticks      *prometheus.CounterVec
	orders     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	fills      *prometheus.CounterVec
	inventory  *prometheus.GaugeVec
	pnl        prometheus.Gauge
	riskEval   prometheus.Histogram
}

// NewPrometheus registers the collectors for one run. strategy is attached as a constant label.
func NewPrometheus(strategy string) *Prometheus {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	labels := prometheus.Labels{"strategy": strategy}

	return &Prometheus{
		registry: reg,
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total", Help: "Market ticks handled", ConstLabels: labels,
		}, []string{"instrument"}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_total", Help: "Orders proposed by the strategy", ConstLabels: labels,
		}, []string{"outcome"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "risk_rejections_total", Help: "Orders rejected by the risk gate", ConstLabels: labels,
		}, []string{"reason"}),
		fills: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fills_total", Help: "Fills received", ConstLabels: labels,
		}, []string{"instrument", "side"}),
		inventory: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "inventory", Help: "Signed inventory per balance", ConstLabels: labels,
		}, []string{"key"}),
		pnl: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pnl", Help: "Mark-to-market profit and loss", ConstLabels: labels,
		}),
		riskEval: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "risk_eval_seconds", Help: "Risk gate evaluation latency", ConstLabels: labels,
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),
	}
}

// Registry returns the registry backing the collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

func (p *Prometheus) ObserveTick(tick schema.Tick) {
	if p == nil {
		return
	}
	p.ticks.WithLabelValues(tick.Instrument).Inc()
}

func (p *Prometheus) ObserveDecision(d schema.RiskDecision, took time.Duration) {
	if p == nil {
		return
	}
	p.riskEval.Observe(took.Seconds())
	if d.Allowed() {
		p.orders.WithLabelValues("admitted").Inc()
		return
	}
	p.orders.WithLabelValues("rejected").Inc()
	p.rejections.WithLabelValues(d.Reason.String()).Inc()
}

func (p *Prometheus) ObserveFill(fill schema.Fill, inventory map[string]float64, pnl float64) {
	if p == nil {
		return
	}
	p.fills.WithLabelValues(fill.Instrument, fill.Side.String()).Inc()
	for k, v := range inventory {
		p.inventory.WithLabelValues(k).Set(v)
	}
	p.pnl.Set(pnl)
}
