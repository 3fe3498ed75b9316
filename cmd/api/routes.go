package main

import (
	"context"
	"log/slog"
	"net/http"

	"telecom-routing/internal/admin"
	"telecom-routing/internal/audit"
	"telecom-routing/internal/auth"
	"telecom-routing/internal/config"
	"telecom-routing/internal/httpapi"
	"telecom-routing/internal/metrics"
	"telecom-routing/internal/routing"
	"telecom-routing/internal/telephony"
	"telecom-routing/pkg/logger"

	"github.com/gin-gonic/gin"
)

type deps struct {
	cfg      config.Config
	log      *slog.Logger
	auth     *auth.Manager
	admin    *admin.Service
	resolver routing.RouteResolver
	audit    *audit.Service
	metrics  *metrics.Metrics
	ready    func(context.Context) error
}

// newRouter wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func newRouter(d deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(d.log, "/healthz", "/readyz", "/metrics"))
	r.Use(d.metrics.Middleware())

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := d.ready(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("readiness check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	// Provider webhooks (public, signature checked when enabled).
	voice := telephony.VoiceWebhookHandler{
		Engine:        routing.NewEngine(d.resolver),
		PublicBaseURL: d.cfg.Twilio.PublicBaseURL,
	}
	if d.cfg.Twilio.ValidateWebhooks {
		voice.AuthToken = d.cfg.Twilio.AuthToken
	}
	r.POST("/webhooks/twilio/voice", voice.Handle)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	v1.GET("/me", func(c *gin.Context) {
		id, _ := auth.OperatorID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"operator_id": id, "role": role})
	})

	httpapi.Handlers{
		Admin:    d.admin,
		Resolver: d.resolver,
		Audit:    d.audit,
	}.Register(v1)
	return r
}
