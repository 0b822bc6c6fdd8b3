package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rollcall/internal/auth"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/logger"
	"rollcall/internal/workspace"
)

// Reports serves the remote, server-computed class data.
type Reports interface {
	FetchStudentClasses(ctx context.Context, startDate, endDate string) (json.RawMessage, error)
	FetchStudentClass(ctx context.Context, classID int64) (json.RawMessage, error)
	FetchClassReport(ctx context.Context, classID int64, startDate, endDate string) (json.RawMessage, error)
	FetchStudentReport(ctx context.Context, studentID, classID int64, startDate, endDate string) (json.RawMessage, error)
}

// Deps wires the router.
type Deps struct {
	Workspaces *workspace.Registry
	// Reports returns a report source authenticated with the operator's token.
	Reports func(token string) Reports
	// Reloads bounds background reloads started by requests; it must outlive them.
	Reloads context.Context

	SigningKey      string
	Issuer          string
	CORSOrigins     []string
	RateLimitPerMin int

	Health   map[string]func(context.Context) bool
	Gatherer prometheus.Gatherer
	Logger   *logrus.Entry
}

// NewRouter builds the presentation API.
func NewRouter(d Deps) *gin.Engine {
	if d.Reloads == nil {
		d.Reloads = context.Background()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.Logger == nil {
		d.Logger = logger.For("http")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(d.Logger, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", healthz(d.Health))

	h := &handler{
		ws:      d.Workspaces,
		reports: d.Reports,
		reloads: d.Reloads,
		log:     d.Logger,
	}

	limiter := httpmiddleware.NewSimpleTokenBucket(d.RateLimitPerMin, d.RateLimitPerMin)
	v1 := r.Group("/v1", auth.OperatorAuth(d.SigningKey, d.Issuer), limiter.GinMiddleware(nil))

	v1.GET("/classes", h.listClasses)

	class := v1.Group("/classes/:classId")
	class.GET("", h.getClass)
	class.GET("/roster", h.roster)
	class.POST("/roster/refresh", h.refreshRoster)
	class.GET("/report", h.classReport)
	class.GET("/students/:studentId/report", h.studentReport)

	session := class.Group("/session")
	session.GET("", h.snapshot)
	session.DELETE("", h.closeSession)
	session.POST("/date", h.selectDate)
	session.POST("/edit", h.enterEdit)
	session.DELETE("/edit", h.exitEdit)
	session.PUT("/staged/:registrationId", h.setStatus)
	session.POST("/pending", h.confirmRemarks)
	session.DELETE("/pending", h.cancelRemarks)
	session.POST("/mark-all-present", h.markAllPresent)
	session.POST("/commit", h.commit)

	reg := class.Group("/registrations/:registrationId")
	reg.POST("/commit", h.commitOne)
	reg.POST("/reload", h.retryFetch)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func healthz(checks map[string]func(context.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, check := range checks {
			healthy := check(ctx)
			body[name] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}
