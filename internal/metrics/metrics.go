// Package metrics exposes sensor ingest counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gnssd/internal/forsense"
	"gnssd/internal/parser"
)

const namespace = "gnssd"

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ParserMetrics satisfies gps.Metrics.
type ParserMetrics struct {
	Frames        *prometheus.CounterVec // labels: frame_type, result
	Messages      *prometheus.CounterVec // labels: type
	BytesReceived prometheus.Counter
	Forwarded     *prometheus.CounterVec // labels: result
}

func NewParserMetrics(reg prometheus.Registerer) *ParserMetrics {
	m := &ParserMetrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Complete frames seen, by frame type and decode result.",
		}, []string{"frame_type", "result"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Parsed messages emitted, by message type.",
		}, []string{"type"}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Raw bytes read from the sensor.",
		}),
		Forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwarded_total",
			Help:      "Passthrough frames forwarded over UDP, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Frames, m.Messages, m.BytesReceived, m.Forwarded)
	return m
}

func (m *ParserMetrics) FrameDecoded(frameType forsense.FrameType, result string, _ int) {
	m.Frames.WithLabelValues(string(frameType), result).Inc()
}

func (m *ParserMetrics) AddBytes(n int) {
	m.BytesReceived.Add(float64(n))
}

func (m *ParserMetrics) AddMessages(msgs []parser.ParsedMessage) {
	for _, msg := range msgs {
		m.Messages.WithLabelValues(msg.Type.String()).Inc()
	}
}

// NewFixValidGauge registers gnssd_fix_valid. valid is evaluated on every
// scrape so staleness shows up even when the sensor goes quiet.
func NewFixValidGauge(reg prometheus.Registerer, valid func() bool) prometheus.GaugeFunc {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fix_valid",
		Help:      "1 while a fresh, valid position is available.",
	}, func() float64 {
		if valid() {
			return 1
		}
		return 0
	})
	reg.MustRegister(g)
	return g
}

func (m *ParserMetrics) ObserveForward(err error) {
	if err != nil {
		m.Forwarded.WithLabelValues("error").Inc()
		return
	}
	m.Forwarded.WithLabelValues("ok").Inc()
}
