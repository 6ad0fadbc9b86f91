package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/cargoroute/tracker/core/metrics"
)

// PromSink records tracker activity in Prometheus metrics.
type PromSink struct {
	mutations *prometheus.CounterVec
	events    *prometheus.CounterVec
	sends     *prometheus.CounterVec
	sendLat   *prometheus.HistogramVec
}

// NewPromSink registers tracker metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_mutations_total",
		Help: "Total number of mutation attempts",
	}, []string{"entity", "op", "success"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_events_emitted_total",
		Help: "Total number of change events emitted after commit",
	}, []string{"event"})
	sends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_broadcast_sends_total",
		Help: "Total number of per-connection broadcast sends",
	}, []string{"event", "success"})
	sendLat := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_broadcast_send_seconds",
		Help:    "Time spent delivering one event to one connection",
		Buckets: prometheus.DefBuckets,
	}, []string{"event", "success"})

	mutations, err := registerCounterVec(reg, mutations)
	if err != nil {
		return nil, err
	}
	events, err = registerCounterVec(reg, events)
	if err != nil {
		return nil, err
	}
	sends, err = registerCounterVec(reg, sends)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(sendLat); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			sendLat = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{mutations: mutations, events: events, sends: sends, sendLat: sendLat}, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

// RecordMutation increments the mutation counter.
func (s *PromSink) RecordMutation(entity, op string, err error) {
	s.mutations.WithLabelValues(entity, op, strconv.FormatBool(err == nil)).Inc()
}

// RecordEvent increments the emitted-event counter.
func (s *PromSink) RecordEvent(name string) {
	s.events.WithLabelValues(name).Inc()
}

// RecordSend counts a per-connection send and observes its latency.
func (s *PromSink) RecordSend(event string, ok bool, latency time.Duration) {
	lbl := strconv.FormatBool(ok)
	s.sends.WithLabelValues(event, lbl).Inc()
	s.sendLat.WithLabelValues(event, lbl).Observe(latency.Seconds())
}

// RecordPosition is a no-op for Prometheus; position samples go to the
// time-series sink.
func (s *PromSink) RecordPosition(int64, float64, float64, time.Time) {}
