package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()

	RecordHTTPRequest("POST", "/v1/bookings", "201", 0.1)
	RecordHTTPRequest("POST", "/v1/bookings", "201", 0.2)
	RecordHTTPRequest("POST", "/v1/bookings", "422", 0.05)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/v1/bookings", "201")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/v1/bookings", "422")))
}

func TestRecordPublish(t *testing.T) {
	EventsPublishedTotal.Reset()

	RecordPublish("booking.created", nil)
	RecordPublish("booking.created", errors.New("closed"))

	assert.Equal(t, float64(1), testutil.ToFloat64(EventsPublishedTotal.WithLabelValues("booking.created", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(EventsPublishedTotal.WithLabelValues("booking.created", "error")))
}

func TestRecordDelivery(t *testing.T) {
	EventsConsumedTotal.Reset()

	RecordDelivery("audit.bookings", "ack", 10*time.Millisecond)
	RecordDelivery("audit.bookings", "dead_letter", 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(EventsConsumedTotal.WithLabelValues("audit.bookings", "ack")))
	assert.Equal(t, float64(1), testutil.ToFloat64(EventsConsumedTotal.WithLabelValues("audit.bookings", "dead_letter")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	HTTPRequestsTotal.Reset()

	e := echo.New()
	e.Use(Middleware())
	e.GET("/v1/bookings/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/bookings/"+id, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/v1/bookings/:id", "204")))
}
