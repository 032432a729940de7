// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	auditlogfeature "github.com/dalemusser/groupvault/internal/app/features/auditlog"
	healthfeature "github.com/dalemusser/groupvault/internal/app/features/health"
	opsfeature "github.com/dalemusser/groupvault/internal/app/features/ops"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the operator HTTP surface. The chat interface runs
// on the poller started in Startup; HTTP only serves health, metrics and the
// ops endpoints for pending deletions and the audit trail.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	rt := deps.Runtime
	if rt == nil || rt.Services == nil {
		return nil, errors.New("services not started")
	}
	svc := rt.Services

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	var bus healthfeature.BusStatus
	if rt.nc != nil {
		bus = rt.nc.IsConnected
	}
	healthHandler := healthfeature.NewHandler(deps.MongoClient, bus, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", svc.Metrics.Handler())

	opsHandler := opsfeature.NewHandler(svc.Resources, svc.Reconciler, logger)
	ops := opsfeature.Routes(opsHandler, appCfg.OpsToken)
	ops.Mount("/audit", auditlogfeature.Routes(auditlogfeature.NewHandler(svc.AuditStore, logger)))
	r.Mount("/ops", ops)

	return r, nil
}
