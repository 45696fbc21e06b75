package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tdex-network/tdex-tradeengine/internal/core/ports"
)

const namespace = "tradeengine"

type service struct {
	runDuration   *prometheus.HistogramVec
	runFailures   *prometheus.CounterVec
	lateCallbacks *prometheus.CounterVec
	closedTrades  *prometheus.CounterVec
}

// NewService registers the engine collectors with the given registerer and
// returns the Metrics port backed by them.
func NewService(reg prometheus.Registerer) (ports.Metrics, error) {
	svc := &service{
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the successful task runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"variant", "step"}),
		runFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Number of failed task runs, by failing task.",
		}, []string{"variant", "step", "task"}),
		lateCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_callbacks_total",
			Help:      "Number of task callbacks invoked after their runner terminated.",
		}, []string{"task"}),
		closedTrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closed_trades_total",
			Help:      "Number of closed trades, by outcome.",
		}, []string{"variant", "outcome"}),
	}

	for _, c := range []prometheus.Collector{
		svc.runDuration, svc.runFailures, svc.lateCallbacks, svc.closedTrades,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func (s *service) RunCompleted(variant, step string, elapsed time.Duration) {
	s.runDuration.WithLabelValues(variant, step).Observe(elapsed.Seconds())
}

func (s *service) RunFailed(variant, step, task string) {
	s.runFailures.WithLabelValues(variant, step, task).Inc()
}

func (s *service) LateCallback(task string) {
	s.lateCallbacks.WithLabelValues(task).Inc()
}

func (s *service) TradeClosed(variant string, failed bool) {
	outcome := "completed"
	if failed {
		outcome = "failed"
	}
	s.closedTrades.WithLabelValues(variant, outcome).Inc()
}
