// Package metrics exposes the studio's Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters and gauges of one studio process.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	eventsTotal       *prometheus.CounterVec
	laggedTotal       prometheus.Counter
	subscribers       prometheus.Gauge
	restartsTotal     *prometheus.CounterVec
	platformState     *prometheus.GaugeVec
	framesTotal       prometheus.Counter
	guestsOnline      prometheus.Gauge
	guestsWaiting     prometheus.Gauge
	sessionLive       prometheus.Gauge
	encoderDropped    *prometheus.GaugeVec
	encoderBytesSent  *prometheus.GaugeVec
	encoderFramesSent *prometheus.GaugeVec
}

var platformStates = []string{"starting", "live", "degraded", "failed", "stopped"}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_events_published_total",
			Help: "Control events published, by kind",
		}, []string{"kind"}),
		laggedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_event_subscribers_lagged_total",
			Help: "Event subscribers disconnected for falling behind",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "studio_event_subscribers",
			Help: "Connected event subscribers",
		}),
		restartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_platform_restarts_total",
			Help: "Encoder restart attempts, by platform",
		}, []string{"platform"}),
		platformState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "studio_platform_state",
			Help: "1 for the state each platform binding is in",
		}, []string{"platform", "state"}),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_frames_rendered_total",
			Help: "Frames produced by the compositor",
		}),
		guestsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "studio_guests_in_slots",
			Help: "Guests occupying a slot",
		}),
		guestsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "studio_guests_waiting",
			Help: "Guests in the waiting room",
		}),
		sessionLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "studio_session_live",
			Help: "1 while a session is live",
		}),
		encoderDropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "studio_encoder_dropped_frames",
			Help: "Frames dropped by the current encoder of each platform",
		}, []string{"platform"}),
		encoderBytesSent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "studio_encoder_bytes_sent",
			Help: "Bytes pushed by the current encoder of each platform",
		}, []string{"platform"}),
		encoderFramesSent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "studio_encoder_frames_sent",
			Help: "Frames written to the current encoder of each platform",
		}, []string{"platform"}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.eventsTotal,
		m.laggedTotal,
		m.subscribers,
		m.restartsTotal,
		m.platformState,
		m.framesTotal,
		m.guestsOnline,
		m.guestsWaiting,
		m.sessionLive,
		m.encoderDropped,
		m.encoderBytesSent,
		m.encoderFramesSent,
	)

	return m
}

func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

func (m *Metrics) IncEventsPublished(kind string) {
	m.eventsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncSubscribersLagged() {
	m.laggedTotal.Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	m.subscribers.Set(float64(n))
}

func (m *Metrics) IncPlatformRestarts(tag string) {
	m.restartsTotal.WithLabelValues(tag).Inc()
}

// SetPlatformState sets the gauge of state to 1 and every other state of tag to 0.
func (m *Metrics) SetPlatformState(tag, state string) {
	for _, s := range platformStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.platformState.WithLabelValues(tag, s).Set(v)
	}
}

func (m *Metrics) DeletePlatform(tag string) {
	for _, s := range platformStates {
		m.platformState.DeleteLabelValues(tag, s)
	}
	m.encoderDropped.DeleteLabelValues(tag)
	m.encoderBytesSent.DeleteLabelValues(tag)
	m.encoderFramesSent.DeleteLabelValues(tag)
}

func (m *Metrics) AddFrames(n uint64) {
	m.framesTotal.Add(float64(n))
}

func (m *Metrics) SetGuests(inSlots, waiting int) {
	m.guestsOnline.Set(float64(inSlots))
	m.guestsWaiting.Set(float64(waiting))
}

func (m *Metrics) SetSessionLive(live bool) {
	v := 0.0
	if live {
		v = 1
	}
	m.sessionLive.Set(v)
}

func (m *Metrics) SetEncoder(tag string, dropped, bytesSent, framesSent uint64) {
	m.encoderDropped.WithLabelValues(tag).Set(float64(dropped))
	m.encoderBytesSent.WithLabelValues(tag).Set(float64(bytesSent))
	m.encoderFramesSent.WithLabelValues(tag).Set(float64(framesSent))
}

// Handler serves the registry. updateGauges runs before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
