package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and sweep flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	quotationsSentTotal   *prometheus.CounterVec
	sendFailuresTotal     *prometheus.CounterVec
	linkValidationsTotal  *prometheus.CounterVec
	otpIssuedTotal        prometheus.Counter
	otpVerificationsTotal *prometheus.CounterVec
	remindersSentTotal    *prometheus.CounterVec
	sequenceFallbackTotal prometheus.Counter
	dispatchRetriesTotal  prometheus.Counter
	renderDuration        prometheus.Histogram
	notifyDuration        prometheus.Histogram
	sweepDuration         *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotation_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quotation_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		quotationsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotation_engine",
				Name:      "quotations_sent_total",
				Help:      "Total number of quotations sent, by initial send vs resend.",
			},
			[]string{"kind"},
		),
		sendFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotation_engine",
				Name:      "send_failures_total",
				Help:      "Total number of failed send operations by failing collaborator.",
			},
			[]string{"reason"},
		),
		linkValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotation_engine",
				Name:      "link_validations_total",
				Help:      "Total number of portal token validations by outcome.",
			},
			[]string{"result"},
		),
		otpIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "quotation_engine",
				Name:      "otp_issued_total",
				Help:      "Total number of one-time passcodes issued.",
			},
		),
		otpVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotation_engine",
				Name:      "otp_verifications_total",
				Help:      "Total number of passcode verification attempts by outcome.",
			},
			[]string{"result"},
		),
		remindersSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quotation_engine",
				Name:      "reminders_sent_total",
				Help:      "Total number of reminder notifications sent by sweep kind.",
			},
			[]string{"kind"},
		),
		sequenceFallbackTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "quotation_engine",
				Name:      "sequence_fallback_total",
				Help:      "Total number of document numbers allocated through the degraded random-suffix path.",
			},
		),
		dispatchRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "quotation_engine",
				Name:      "dispatch_retries_total",
				Help:      "Total number of notification delivery retries.",
			},
		),
		renderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "quotation_engine",
				Name:      "render_duration_seconds",
				Help:      "Document render duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		notifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "quotation_engine",
				Name:      "notify_duration_seconds",
				Help:      "Email delivery duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		sweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quotation_engine",
				Name:      "sweep_duration_seconds",
				Help:      "Reminder sweep duration in seconds by kind.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.quotationsSentTotal,
		m.sendFailuresTotal,
		m.linkValidationsTotal,
		m.otpIssuedTotal,
		m.otpVerificationsTotal,
		m.remindersSentTotal,
		m.sequenceFallbackTotal,
		m.dispatchRetriesTotal,
		m.renderDuration,
		m.notifyDuration,
		m.sweepDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncQuotationSent(resend bool) {
	if m == nil {
		return
	}
	kind := "initial"
	if resend {
		kind = "resend"
	}
	m.quotationsSentTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncSendFailure(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.sendFailuresTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) IncLinkValidation(result string) {
	if m == nil {
		return
	}
	m.linkValidationsTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) IncOTPIssued() {
	if m == nil {
		return
	}
	m.otpIssuedTotal.Inc()
}

func (m *Metrics) IncOTPVerification(result string) {
	if m == nil {
		return
	}
	m.otpVerificationsTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) IncReminderSent(kind string) {
	if m == nil {
		return
	}
	m.remindersSentTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncSequenceFallback() {
	if m == nil {
		return
	}
	m.sequenceFallbackTotal.Inc()
}

func (m *Metrics) IncDispatchRetry() {
	if m == nil {
		return
	}
	m.dispatchRetriesTotal.Inc()
}

func (m *Metrics) ObserveRenderDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) ObserveNotifyDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.notifyDuration.Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) ObserveSweepDuration(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(normalizeLabel(kind)).Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func nonNegativeSeconds(duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds < 0 {
		return 0
	}
	return seconds
}
