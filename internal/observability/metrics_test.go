package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsQuotationCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncQuotationSent(false)
	metrics.IncQuotationSent(true)
	metrics.IncSendFailure("Notifier")
	metrics.IncLinkValidation("EXPIRED")
	metrics.IncOTPIssued()
	metrics.IncOTPVerification("mismatch")
	metrics.IncReminderSent("unviewed")
	metrics.IncSequenceFallback()
	metrics.IncDispatchRetry()
	metrics.ObserveSweepDuration("follow_up", 30*time.Millisecond)

	if got := testutil.ToFloat64(metrics.quotationsSentTotal.WithLabelValues("initial")); got != 1 {
		t.Fatalf("quotations_sent_total{initial} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.quotationsSentTotal.WithLabelValues("resend")); got != 1 {
		t.Fatalf("quotations_sent_total{resend} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.sendFailuresTotal.WithLabelValues("notifier")); got != 1 {
		t.Fatalf("send_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.linkValidationsTotal.WithLabelValues("expired")); got != 1 {
		t.Fatalf("link_validations_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.otpVerificationsTotal.WithLabelValues("mismatch")); got != 1 {
		t.Fatalf("otp_verifications_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.remindersSentTotal.WithLabelValues("unviewed")); got != 1 {
		t.Fatalf("reminders_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.sequenceFallbackTotal); got != 1 {
		t.Fatalf("sequence_fallback_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.dispatchRetriesTotal); got != 1 {
		t.Fatalf("dispatch_retries_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics

	metrics.IncQuotationSent(true)
	metrics.IncSendFailure("renderer")
	metrics.IncOTPIssued()
	metrics.IncDispatchRetry()
	metrics.ObserveRenderDuration(time.Second)
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareSkipsScrapeEndpoint(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/metrics", "200")); got != 0 {
		t.Fatalf("http_requests_total = %v, want 0", got)
	}
}
