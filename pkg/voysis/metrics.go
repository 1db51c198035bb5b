package voysis

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the optional Prometheus collectors of a Session. A nil
// *metrics is valid and records nothing.
type metrics struct {
	requests      *prometheus.CounterVec
	responses     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	audioBytes    prometheus.Counter
	audioFrames   prometheus.Counter
	tokens        prometheus.Counter
	streams       *prometheus.CounterVec
	cancellations *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voysis",
			Name:      "requests_total",
			Help:      "Requests sent over the session connection.",
		}, []string{"method"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voysis",
			Name:      "responses_total",
			Help:      "Responses received, by status class.",
		}, []string{"class"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voysis",
			Name:      "notifications_total",
			Help:      "Notifications received, by type.",
		}, []string{"type"}),
		audioBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voysis",
			Name:      "audio_sent_bytes_total",
			Help:      "Audio bytes streamed to the service.",
		}),
		audioFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voysis",
			Name:      "audio_sent_frames_total",
			Help:      "Binary audio frames streamed to the service.",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voysis",
			Name:      "tokens_issued_total",
			Help:      "Session tokens issued.",
		}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voysis",
			Name:      "streams_total",
			Help:      "Audio streams finished, by outcome.",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voysis",
			Name:      "cancellations_total",
			Help:      "Cancellation reports queued, by reason.",
		}, []string{"reason"}),
	}
	m.requests = registerOrReuse(reg, m.requests)
	m.responses = registerOrReuse(reg, m.responses)
	m.notifications = registerOrReuse(reg, m.notifications)
	m.audioBytes = registerOrReuse(reg, m.audioBytes)
	m.audioFrames = registerOrReuse(reg, m.audioFrames)
	m.tokens = registerOrReuse(reg, m.tokens)
	m.streams = registerOrReuse(reg, m.streams)
	m.cancellations = registerOrReuse(reg, m.cancellations)
	return m
}

// registerOrReuse registers c, or returns the collector already registered
// under the same description so several sessions can share a registry.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) observeRequest(method string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method).Inc()
}

func (m *metrics) observeResponse(code int) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(strconv.Itoa(code/100) + "xx").Inc()
}

func (m *metrics) observeNotification(t string) {
	if m == nil {
		return
	}
	switch t {
	case NotificationVADStop, NotificationQueryComplete, NotificationInternalServerError:
	default:
		t = "unknown"
	}
	m.notifications.WithLabelValues(t).Inc()
}

func (m *metrics) observeAudio(n int) {
	if m == nil {
		return
	}
	m.audioFrames.Inc()
	m.audioBytes.Add(float64(n))
}

func (m *metrics) observeToken() {
	if m == nil {
		return
	}
	m.tokens.Inc()
}

func (m *metrics) observeStream(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.streams.WithLabelValues(outcome).Inc()
}

func (m *metrics) observeCancellation(reason CancelReason) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(string(reason)).Inc()
}
