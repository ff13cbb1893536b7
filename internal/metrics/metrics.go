// Package metrics exposes Prometheus collectors for the sandbox broker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sandbox_sessions_active",
			Help: "Number of currently live sessions",
		},
	)

	SessionCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandbox_session_create_duration_seconds",
			Help:    "Time to create and start a session container",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
	)

	ExecDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandbox_exec_duration_seconds",
			Help:    "Wall time of code execution inside a session",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 60.0},
		},
	)

	DockerOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sandbox_docker_op_duration_seconds",
			Help:    "Time for docker engine operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"operation"},
	)

	SessionsReaped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_sessions_reaped_total",
			Help: "Sessions removed by the reaper",
		},
		[]string{"reason"},
	)

	ArtifactDownloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sandbox_artifact_downloads_total",
			Help: "Artifact files served over HTTP",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		SessionCreateDuration,
		ExecDuration,
		DockerOpDuration,
		SessionsReaped,
		ArtifactDownloadsTotal,
		HTTPRequestsTotal,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that counts HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			return err
		}
	}
}

// ObserveDockerOp records the duration of one engine operation.
func ObserveDockerOp(operation string, start time.Time) {
	DockerOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
