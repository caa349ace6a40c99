// Package metrics exposes Prometheus collectors for the event loop and
// core components, in the style of client_golang usage seen across the
// retrieved home-automation examples.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the hub's Prometheus collectors and satisfies
// appstate.Metrics.
type Metrics struct {
	eventLoopDepth       prometheus.Gauge
	broadcastTotal       prometheus.Counter
	routineFireTotal     prometheus.Counter
	sceneActivationTotal prometheus.Counter
}

// New registers and returns the hub's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventLoopDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hearth",
			Subsystem: "dispatcher",
			Name:      "event_loop_depth",
			Help:      "Number of events currently queued on the event bus.",
		}),
		broadcastTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "websocket",
			Name:      "broadcast_total",
			Help:      "Total number of coalesced state broadcasts sent.",
		}),
		routineFireTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "routines",
			Name:      "fire_total",
			Help:      "Total number of routine action-list firings.",
		}),
		sceneActivationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "scenes",
			Name:      "activation_total",
			Help:      "Total number of scene activations.",
		}),
	}

	reg.MustRegister(
		m.eventLoopDepth,
		m.broadcastTotal,
		m.routineFireTotal,
		m.sceneActivationTotal,
	)
	return m
}

// ObserveEventLoopDepth implements appstate.Metrics.
func (m *Metrics) ObserveEventLoopDepth(n int) { m.eventLoopDepth.Set(float64(n)) }

// IncBroadcast implements appstate.Metrics.
func (m *Metrics) IncBroadcast() { m.broadcastTotal.Inc() }

// IncRoutineFire implements appstate.Metrics.
func (m *Metrics) IncRoutineFire() { m.routineFireTotal.Inc() }

// IncSceneActivation implements appstate.Metrics.
func (m *Metrics) IncSceneActivation() { m.sceneActivationTotal.Inc() }
