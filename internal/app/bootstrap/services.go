// internal/app/bootstrap/services.go
package bootstrap

import (
	"github.com/dalemusser/groupvault/internal/app/catalog"
	"github.com/dalemusser/groupvault/internal/app/delivery"
	"github.com/dalemusser/groupvault/internal/app/groupinit"
	"github.com/dalemusser/groupvault/internal/app/query"
	"github.com/dalemusser/groupvault/internal/app/roles"
	"github.com/dalemusser/groupvault/internal/app/store/audit"
	secretstore "github.com/dalemusser/groupvault/internal/app/store/bootstrapsecrets"
	categorystore "github.com/dalemusser/groupvault/internal/app/store/categories"
	editstore "github.com/dalemusser/groupvault/internal/app/store/resourceedits"
	resourcestore "github.com/dalemusser/groupvault/internal/app/store/resources"
	rolestore "github.com/dalemusser/groupvault/internal/app/store/roles"
	tagstore "github.com/dalemusser/groupvault/internal/app/store/tags"
	"github.com/dalemusser/groupvault/internal/app/system/auditlog"
	"github.com/dalemusser/groupvault/internal/app/system/metrics"
	"github.com/dalemusser/groupvault/internal/app/system/ratelimit"
	"github.com/dalemusser/groupvault/internal/app/system/txn"
	"github.com/dalemusser/groupvault/internal/app/transport"
	"github.com/dalemusser/groupvault/internal/app/upload"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Services are the core components backed by MongoDB. The bot process and
// vaultctl both build them with NewServices.
type Services struct {
	Resources  *resourcestore.Store
	Roles      *rolestore.Store
	AuditStore *audit.Store

	Metrics     *metrics.Metrics
	Audit       *auditlog.Logger
	Limiter     *ratelimit.InitLimiter
	Issuer      *groupinit.Issuer
	RoleService *roles.Service
	Catalog     *catalog.Service
	Uploads     *upload.Manager
	Query       *query.Engine
	Delivery    *delivery.Coordinator
	Reconciler  *delivery.Reconciler
}

// NewServices wires the stores and services. tr carries artifacts to and
// from the chat platform; pub receives partial-failure events (nil logs
// them only).
func NewServices(db *mongo.Database, appCfg AppConfig, tr transport.Transport, pub delivery.Publisher, logger *zap.Logger) *Services {
	tx := txn.For(db, logger)
	s := &Services{
		Resources:  resourcestore.New(db),
		Roles:      rolestore.New(db),
		AuditStore: audit.New(db),
		Metrics:    metrics.New(),
		Limiter:    ratelimit.NewInitLimiter(),
	}
	s.Audit = auditlog.New(s.AuditStore, logger, auditlog.Config{
		Init:  appCfg.AuditLogInit,
		Admin: appCfg.AuditLogAdmin,
	})
	categories := categorystore.New(db)
	tags := tagstore.New(db)
	edits := editstore.New(db)

	s.Issuer = groupinit.NewIssuer(groupinit.Deps{
		Secrets: secretstore.New(db),
		Roles:   s.Roles,
		Tx:      tx,
		Limiter: s.Limiter,
		Metrics: s.Metrics,
		Audit:   s.Audit,
		Log:     logger,
	})
	s.RoleService = roles.New(s.Roles, s.Audit, logger)
	s.Catalog = catalog.New(catalog.Deps{
		Categories: categories,
		Tags:       tags,
		Resources:  s.Resources,
		Edits:      edits,
		Roles:      s.Roles,
		Tx:         tx,
		Audit:      s.Audit,
		Log:        logger,
	})
	s.Uploads = upload.NewManager(s.Catalog, appCfg.UploadIdleTimeout, s.Metrics, logger)
	s.Query = query.NewEngine(s.Resources, categories, tags, appCfg.SearchPageSize, s.Metrics, logger)
	s.Delivery = delivery.NewCoordinator(delivery.Deps{
		Resources: s.Resources,
		Edits:     edits,
		Roles:     s.Roles,
		Transport: tr,
		Tx:        tx,
		Publisher: pub,
		Metrics:   s.Metrics,
		Audit:     s.Audit,
		Log:       logger,
	})
	s.Reconciler = delivery.NewReconciler(s.Delivery, delivery.ReconcileConfig{
		Grace:       appCfg.ReconcileGrace,
		Batch:       appCfg.ReconcileBatch,
		MaxAttempts: appCfg.ReconcileMaxAttempts,
	})
	return s
}
