package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"voice-banking/internal/audit"
	"voice-banking/internal/auth"
	"voice-banking/internal/bank"
	"voice-banking/internal/calls"
	"voice-banking/internal/config"
	"voice-banking/internal/flows"
	"voice-banking/internal/httpapi"
	"voice-banking/internal/metrics"
	"voice-banking/internal/providers/openai"
	"voice-banking/internal/records"
	"voice-banking/internal/reporting"
	"voice-banking/internal/ws"
	"voice-banking/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	cfg     config.Config
	log     *slog.Logger
	base    context.Context
	metrics *metrics.Metrics

	engine   ws.Engine
	speech   *openai.Provider
	registry *calls.Registry
	limiter  calls.Limiter
	records  *records.Store

	auth     *auth.Manager
	accounts *auth.Accounts
	bank     bank.Store
	flows    *flows.Store
	reports  *reporting.Service
	audit    *audit.Service

	healthChecks map[string]func(context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "active_calls": d.registry.Count()})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		failed := gin.H{}
		for name, check := range d.healthChecks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	// Call channel. One websocket per call.
	callHandler := ws.NewHandler(ws.Deps{
		Engine:   d.engine,
		STT:      d.speech,
		TTS:      d.speech,
		Registry: d.registry,
		Limiter:  d.limiter,
		Records:  d.records,
		Metrics:  d.metrics,
		Log:      d.log,
		Base:     d.base,
		Config: ws.Config{
			InboundPolicy:  d.cfg.Calls.InboundPolicy,
			QueueSize:      d.cfg.Calls.InboundQueueSize,
			MinAudioBytes:  d.cfg.Calls.MinAudioBytes,
			ReadLimit:      d.cfg.Calls.WSReadLimit,
			AllowedOrigins: d.cfg.Calls.AllowedOrigins,
			EndCallGrace:   d.cfg.Calls.EndCallGrace,
		},
	})
	r.GET("/ws/call", callHandler.Handle)

	// ADMIN routes
	httpapi.Handlers{
		Auth:      d.auth,
		Accounts:  d.accounts,
		Live:      d.registry,
		History:   d.records,
		Customers: d.bank,
		Flows:     d.flows,
		Reports:   d.reports,
		Audit:     d.audit,
	}.Mount(r)
}

// healthChecks reports the external dependencies /readyz pings.
func healthChecks(db *sql.DB, rdb *redis.Client) map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if db != nil {
		checks["postgres"] = func(ctx context.Context) error {
			return utils.HealthCheck(ctx, db, time.Second)
		}
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}
