package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "confirmbot"

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	reg              *prom.Registry
	deliveries       *prom.CounterVec
	cycles           *prom.CounterVec
	dispatchDuration prom.Histogram
	subscribers      prom.Gauge
	persistFailures  *prom.CounterVec
	jobDuration      *prom.HistogramVec
	jobResults       *prom.CounterVec
}

// NewPrometheusRecorder registers its collectors (plus Go and process collectors)
// on a fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	p := &PrometheusRecorder{
		reg: prom.NewRegistry(),
		deliveries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Reminder deliveries by failing stage and result",
		}, []string{"stage", "result"}),
		cycles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Reminder evaluations by outcome",
		}, []string{"outcome"}),
		dispatchDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of a full reminder fan-out",
			Buckets:   prom.ExponentialBuckets(0.1, 2, 12),
		}),
		subscribers: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Current number of subscribers",
		}),
		persistFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed state saves by operation",
		}, []string{"op"}),
		jobDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduler job duration",
			Buckets:   prom.DefBuckets,
		}, []string{"job"}),
		jobResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduler job runs by result",
		}, []string{"job", "result"}),
	}
	p.reg.MustRegister(
		p.deliveries, p.cycles, p.dispatchDuration, p.subscribers,
		p.persistFailures, p.jobDuration, p.jobResults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry returns the registry holding the collectors.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) IncDelivery(stage string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	p.deliveries.WithLabelValues(stage, result).Inc()
}

func (p *PrometheusRecorder) IncCycle(outcome string) {
	p.cycles.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveDispatchDuration(d time.Duration) {
	p.dispatchDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetSubscribers(n int) {
	p.subscribers.Set(float64(n))
}

func (p *PrometheusRecorder) IncPersistFailure(op string) {
	p.persistFailures.WithLabelValues(op).Inc()
}

func (p *PrometheusRecorder) ObserveJob(name string, d time.Duration, err error) {
	p.jobDuration.WithLabelValues(name).Observe(d.Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	p.jobResults.WithLabelValues(name, result).Inc()
}
