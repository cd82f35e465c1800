// Package httpapi exposes the kiosk over HTTP: frame ingestion, enrollment,
// the attendance ledger, reports and scanner status.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceguard/internal/attendance"
	"faceguard/internal/capture"
	"faceguard/internal/enrollment"
	"faceguard/internal/httpmiddleware"
	"faceguard/internal/metrics"
	"faceguard/internal/scheduler"
)

// maxFrameBytes bounds uploaded frames and enrollment photos.
const maxFrameBytes = 10 << 20

// HealthChecker is a dependency reported by /healthz.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// ScannerStatus reports scheduler state.
type ScannerStatus interface {
	Status() scheduler.Status
}

// Deps are the collaborators the API serves.
type Deps struct {
	Ledger     *attendance.Ledger
	Identities *enrollment.Store
	Frames     *capture.FrameBuffer
	Scanner    ScannerStatus
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Checks     map[string]HealthChecker

	RateLimitPerMin int
	AllowOrigins    []string
	Location        *time.Location
	Logger          *slog.Logger
	Now             func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	ledger     *attendance.Ledger
	identities *enrollment.Store
	frames     *capture.FrameBuffer
	scanner    ScannerStatus
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	checks     map[string]HealthChecker
	limiter    *httpmiddleware.SimpleTokenBucket
	origins    []string
	loc        *time.Location
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Server from d.
func New(d Deps) *Server {
	s := &Server{
		ledger:     d.Ledger,
		identities: d.Identities,
		frames:     d.Frames,
		scanner:    d.Scanner,
		metrics:    d.Metrics,
		gatherer:   d.Gatherer,
		checks:     d.Checks,
		limiter:    httpmiddleware.NewSimpleTokenBucket(d.RateLimitPerMin, d.RateLimitPerMin),
		origins:    d.AllowOrigins,
		loc:        d.Location,
		logger:     d.Logger,
		now:        d.Now,
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics", "/v1/frames", "/v1/scanner"},
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", httpmiddleware.KioskHeader},
		ExposeHeaders:    []string{"Content-Disposition"},
		MaxAge:           12 * time.Hour,
	}))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	{
		v1.POST("/frames", s.limiter.GinMiddleware(), s.pushFrame)

		v1.GET("/identities", s.listIdentities)
		v1.POST("/identities", s.enroll)
		v1.DELETE("/identities/:id", s.removeIdentity)

		v1.GET("/attendance", s.listAttendance)
		v1.POST("/attendance", s.recordAttendance)
		v1.DELETE("/attendance", s.clearAttendance)
		v1.GET("/attendance/export", s.exportAttendance)

		v1.GET("/stats", s.stats)
		v1.GET("/scanner", s.scannerStatus)
	}
	return r
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.checks {
		ok := check.Healthy(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
