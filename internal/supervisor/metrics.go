package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/instrument"
)

// Pass results recorded by Metrics.Passes.
const (
	PassCompleted = "completed"
	PassAborted   = "aborted"
	PassFailed    = "failed"
)

// Metrics holds the Prometheus collectors of one supervisor.
type Metrics struct {
	Passes           *prometheus.CounterVec
	PassDuration     prometheus.Histogram
	Evaluations      *prometheus.CounterVec
	ResponseFailures *prometheus.CounterVec
	InstrumentFlag   *prometheus.GaugeVec
	MachineState     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
// Use a fresh prometheus.NewRegistry() per supervisor in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chimera_supervisor_passes_total",
				Help: "Evaluation passes by result",
			},
			[]string{"result"},
		),
		PassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chimera_supervisor_pass_duration_seconds",
				Help:    "Duration of evaluation passes",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chimera_supervisor_item_evaluations_total",
				Help: "Item evaluations by resulting status",
			},
			[]string{"status"},
		),
		ResponseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chimera_supervisor_response_failures_total",
				Help: "Response chains that reported an error, by item",
			},
			[]string{"item"},
		),
		InstrumentFlag: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chimera_supervisor_instrument_flag",
				Help: "1 for the current flag of each instrument, 0 otherwise",
			},
			[]string{"instrument", "flag"},
		),
		MachineState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chimera_supervisor_machine_state",
				Help: "Current machine state (0=OFF 1=IDLE 2=START 3=BUSY 4=STOP 5=SHUTDOWN)",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Passes, m.PassDuration, m.Evaluations, m.ResponseFailures, m.InstrumentFlag, m.MachineState)
	}
	return m
}

func (m *Metrics) observePass(sum checklist.PassSummary, err error) {
	if m == nil {
		return
	}
	switch {
	case sum.Aborted:
		m.Passes.WithLabelValues(PassAborted).Inc()
	case err != nil:
		m.Passes.WithLabelValues(PassFailed).Inc()
	default:
		m.Passes.WithLabelValues(PassCompleted).Inc()
	}
	m.PassDuration.Observe(sum.Duration.Seconds())
}

func (m *Metrics) observeEvaluation(status checklist.Status) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) observeResponseFailure(item string) {
	if m == nil {
		return
	}
	m.ResponseFailures.WithLabelValues(item).Inc()
}

func (m *Metrics) setFlag(name string, flag instrument.Flag) {
	if m == nil {
		return
	}
	for _, f := range instrument.AllFlags {
		v := 0.0
		if f == flag {
			v = 1
		}
		m.InstrumentFlag.WithLabelValues(name, f.String()).Set(v)
	}
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.MachineState.Set(float64(s))
}
