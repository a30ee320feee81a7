// Package http provides the HTTP server of the simulator control API.
package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xiaot623/gogo/simulator/internal/service"
	v1 "github.com/xiaot623/gogo/simulator/internal/transport/http/v1"
)

// RequestRecorder records served requests.
type RequestRecorder interface {
	RecordHTTPRequest(method, path string, statusCode int, elapsed time.Duration)
}

// Options configures the server.
type Options struct {
	Version  string
	Recorder RequestRecorder
	// Gatherer backs /metrics; nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
}

// NewServer creates and configures the control API server.
func NewServer(svc *service.Service, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if opts.Recorder != nil {
		e.Use(requestMetrics(opts.Recorder))
	}

	// Handlers
	v1Handler := v1.NewHandler(svc, opts.Version)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

// requestMetrics records each request under its route pattern.
func requestMetrics(rec RequestRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			rec.RecordHTTPRequest(c.Request().Method, path, c.Response().Status, time.Since(start))
			return nil
		}
	}
}
