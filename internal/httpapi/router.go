// Package httpapi exposes the attendance and account services over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"campusevents/internal/accounts"
	"campusevents/internal/attendance"
	"campusevents/internal/auth"
	"campusevents/internal/httpmiddleware"
	"campusevents/internal/metrics"
)

// TokenConfig controls the bearer tokens handed out at login.
type TokenConfig struct {
	SigningKey string
	Issuer     string
	TTL        time.Duration
}

// HealthCheck is one dependency reported by /healthz.
type HealthCheck struct {
	Name    string
	Healthy func(ctx context.Context) bool
}

// Deps are the collaborators of the router.
type Deps struct {
	Attendance      *attendance.Service
	Accounts        *accounts.Service
	Tokens          TokenConfig
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer
	Health          []HealthCheck
	CORSOrigins     []string
	RateLimitPerMin int
}

type handler struct {
	att    *attendance.Service
	acc    *accounts.Service
	tokens TokenConfig
	log    zerolog.Logger
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(d Deps) *gin.Engine {
	h := &handler{att: d.Attendance, acc: d.Accounts, tokens: d.Tokens, log: d.Logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLog(d.Logger, d.Metrics, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "NOT_FOUND", "no such route")
	})

	limited := httpmiddleware.NewLimiter(d.RateLimitPerMin, d.RateLimitPerMin).Middleware()

	r.GET("/healthz", healthz(d.Health))
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	v1.POST("/students/signup", limited, h.signup)
	for _, role := range []auth.Role{auth.RoleStudent, auth.RoleStaff, auth.RoleAdmin} {
		v1.POST("/auth/"+string(role)+"/login", limited, h.login(role))
	}

	student := v1.Group("", auth.RequireRoles(d.Tokens.SigningKey, d.Tokens.Issuer, auth.RoleStudent))
	student.GET("/events", h.upcomingEvents)
	student.GET("/events/:id", h.eventDetail)
	student.POST("/events/:id/register", h.register)
	student.GET("/me/registrations", h.myRegistrations)
	student.GET("/me/registrations/:event_id/credential", h.credential)

	desk := v1.Group("", auth.RequireRoles(d.Tokens.SigningKey, d.Tokens.Issuer, auth.RoleStaff, auth.RoleAdmin))
	desk.POST("/verify", limited, h.verify)
	desk.GET("/verifications/recent", h.recentVerifications)
	desk.GET("/verifications", h.verificationHistory)

	admin := v1.Group("/admin", auth.RequireRoles(d.Tokens.SigningKey, d.Tokens.Issuer, auth.RoleAdmin))
	admin.GET("/events", h.allEvents)
	admin.POST("/events", h.createEvent)
	admin.PUT("/events/:id", h.updateEvent)
	admin.DELETE("/events/:id", h.deleteEvent)
	admin.GET("/events/:id/registrations", h.roster)
	admin.GET("/events/:id/export", h.exportEvent)
	admin.GET("/export/attendance", h.exportAttendance)
	admin.GET("/dashboard", h.dashboard)
	admin.POST("/attendance", h.setAttendance)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Disposition", warningHeader, httpmiddleware.RequestIDHeader},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func healthz(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		report := gin.H{}
		for _, hc := range checks {
			ok := hc.Healthy(c.Request.Context())
			report[hc.Name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": report})
	}
}
