package voiceagent

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var allStates = []State{StateIdle, StateConnecting, StateConnected, StateError, StateClosed}

// Metrics holds the session collectors.
type Metrics struct {
	ConnectAttempts  prometheus.Counter
	ConnectionsOpen  prometheus.Counter
	ConnectionsClose prometheus.Counter
	TokenFailures    *prometheus.CounterVec
	KeepAlivesSent   prometheus.Counter
	AudioFramesSent  prometheus.Counter
	AudioFramesDrop  prometheus.Counter
	Degraded         prometheus.Gauge
	State            *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
// Collectors already registered on reg are reused. Wrap reg with
// prometheus.WrapRegistererWith to keep several sessions apart.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Name:      "connect_attempts_total",
			Help:      "Connect attempts that passed the reconnect ceiling check.",
		}),
		ConnectionsOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Name:      "connections_opened_total",
			Help:      "Sockets that reached the connected state.",
		}),
		ConnectionsClose: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Name:      "connections_closed_total",
			Help:      "Socket close events.",
		}),
		TokenFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Name:      "token_failures_total",
			Help:      "Token fetch failures by reason.",
		}, []string{"reason"}),
		KeepAlivesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Name:      "keepalives_sent_total",
			Help:      "KeepAlive messages written to the socket.",
		}),
		AudioFramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Name:      "audio_frames_sent_total",
			Help:      "Binary audio frames written to the socket.",
		}),
		AudioFramesDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Name:      "audio_frames_dropped_total",
			Help:      "Audio frames dropped because the session was not ready or the queue was full.",
		}),
		Degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voiceagent",
			Name:      "degraded",
			Help:      "1 when the reconnect ceiling was reached (likely rate limited, not confirmed).",
		}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "voiceagent",
			Name:      "session_state",
			Help:      "1 for the current session state.",
		}, []string{"state"}),
	}

	if reg != nil {
		m.ConnectAttempts = register(reg, m.ConnectAttempts)
		m.ConnectionsOpen = register(reg, m.ConnectionsOpen)
		m.ConnectionsClose = register(reg, m.ConnectionsClose)
		m.TokenFailures = register(reg, m.TokenFailures)
		m.KeepAlivesSent = register(reg, m.KeepAlivesSent)
		m.AudioFramesSent = register(reg, m.AudioFramesSent)
		m.AudioFramesDrop = register(reg, m.AudioFramesDrop)
		m.Degraded = register(reg, m.Degraded)
		m.State = register(reg, m.State)
	}
	return m
}

// register adds c to reg, returning the existing collector when an identical
// one is already registered. Other registration errors leave c unregistered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	GetGlobalLogger().WithComponent("Metrics").WithError(err).Warn("Failed to register collector")
	return c
}

func (m *Metrics) setState(s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.State.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) setDegraded(d bool) {
	if d {
		m.Degraded.Set(1)
	} else {
		m.Degraded.Set(0)
	}
}
