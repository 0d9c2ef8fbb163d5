package monitoring

import (
	"time"

	"peerline/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes call lifecycle metrics. It implements
// ports.CallObserver.
type PrometheusCollector struct {
	callsActive    prometheus.Gauge
	callsTotal     prometheus.Counter
	stateChanges   *prometheus.CounterVec
	callSetup      prometheus.Histogram
	signalsTotal   *prometheus.CounterVec
	tipsTotal      prometheus.Counter
	tipAmountMinor prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return NewPrometheusCollectorWith(prometheus.DefaultRegisterer)
}

// NewPrometheusCollectorWith registers the metrics on the given registerer.
func NewPrometheusCollectorWith(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		callsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "peerline_calls_active",
			Help: "Number of call sessions currently in progress",
		}),

		callsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "peerline_calls_connected_total",
			Help: "Total number of calls that reached the connected state",
		}),

		stateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "peerline_call_state_changes_total",
			Help: "Call state transitions by source and target state",
		}, []string{"from", "to"}),

		callSetup: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "peerline_call_setup_duration_seconds",
			Help:    "Time from call start until the transport connected",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		signalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "peerline_signals_total",
			Help: "Signaling messages by kind and direction",
		}, []string{"kind", "direction"}),

		tipsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "peerline_tips_total",
			Help: "Total number of tips recorded",
		}),

		tipAmountMinor: factory.NewCounter(prometheus.CounterOpts{
			Name: "peerline_tip_amount_minor_total",
			Help: "Sum of tip amounts in minor currency units",
		}),
	}
}

func (p *PrometheusCollector) RecordStateChange(key domain.ChannelKey, from, to domain.CallState) {
	p.stateChanges.WithLabelValues(string(from), string(to)).Inc()

	// The gauge rises when a session leaves Idle via Start and falls the
	// moment it hits Failed or begins closing. Ending an already-failed
	// session goes Failed -> Closing, which must not decrement again.
	switch {
	case from == domain.StateIdle && to == domain.StateInitializing:
		p.callsActive.Inc()
	case (to == domain.StateFailed || to == domain.StateClosing) &&
		from != domain.StateIdle && !from.Terminal():
		p.callsActive.Dec()
	}
}

func (p *PrometheusCollector) RecordCallConnected(setup time.Duration) {
	p.callsTotal.Inc()
	p.callSetup.Observe(setup.Seconds())
}

func (p *PrometheusCollector) RecordSignal(kind domain.MessageKind, outbound bool) {
	direction := "inbound"
	if outbound {
		direction = "outbound"
	}
	p.signalsTotal.WithLabelValues(string(kind), direction).Inc()
}

func (p *PrometheusCollector) RecordTip(amount int64) {
	p.tipsTotal.Inc()
	p.tipAmountMinor.Add(float64(amount))
}
