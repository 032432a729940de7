// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/groupvault/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for groupvault.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, telegram_token, etc.
//   - Environment variables: GROUPVAULT_MONGO_URI, GROUPVAULT_TELEGRAM_TOKEN, etc.
//   - Command-line flags: --mongo_uri, --telegram_token, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "groupvault", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 5, Desc: "MongoDB min connection pool size (default: 5)"},
	{Name: "timeout_short", Default: "5s", Desc: "Deadline for single-document store calls"},
	{Name: "timeout_medium", Default: "10s", Desc: "Deadline for searches and delete round trips"},
	{Name: "timeout_long", Default: "60s", Desc: "Deadline for sweeps and schema setup"},

	// Telegram
	{Name: "telegram_token", Default: "", Desc: "Telegram bot token (required)"},
	{Name: "telegram_poll_timeout", Default: "30s", Desc: "Long-poll timeout for getUpdates"},
	{Name: "update_workers", Default: 16, Desc: "Chat updates handled concurrently"},

	// Upload workflows
	{Name: "upload_idle_timeout", Default: "15m", Desc: "Idle upload workflows expire after this"},
	{Name: "upload_sweep_interval", Default: "1m", Desc: "How often expired upload workflows are dropped"},

	// Reconciliation of pending deletions
	{Name: "reconcile_interval", Default: "5m", Desc: "How often tombstoned resources are retried (0 disables)"},
	{Name: "reconcile_grace", Default: "2m", Desc: "Tombstones younger than this are left for the deleting request"},
	{Name: "reconcile_batch", Default: 50, Desc: "Most tombstones handled per sweep"},
	{Name: "reconcile_max_attempts", Default: 10, Desc: "Stop retrying after this many failed external deletes (0 = no cap)"},

	// Retry bus
	{Name: "nats_url", Default: "", Desc: "NATS server URL for partial-failure events (blank disables)"},
	{Name: "nats_subject", Default: "groupvault.delete.partial", Desc: "NATS subject for partial-failure events"},
	{Name: "nats_retry_delay", Default: "30s", Desc: "Wait before retrying a partial failure from the bus"},

	// Audit logging settings
	{Name: "audit_log_init", Default: "all", Desc: "Group init event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	{Name: "search_page_size", Default: 10, Desc: "Search results per page"},
	{Name: "issue_secret_on_start", Default: true, Desc: "Issue and log a bootstrap secret at startup"},
	{Name: "ops_token", Default: "", Desc: "Bearer token required on /ops endpoints"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, GROUPVAULT_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "GROUPVAULT", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		Timeouts: timeouts.Config{
			Short:  appValues.Duration("timeout_short", timeouts.DefaultShort),
			Medium: appValues.Duration("timeout_medium", timeouts.DefaultMedium),
			Long:   appValues.Duration("timeout_long", timeouts.DefaultLong),
		},

		TelegramToken:       appValues.String("telegram_token"),
		TelegramPollTimeout: appValues.Duration("telegram_poll_timeout", 30*time.Second),
		UpdateWorkers:       appValues.Int("update_workers"),

		UploadIdleTimeout:   appValues.Duration("upload_idle_timeout", 15*time.Minute),
		UploadSweepInterval: appValues.Duration("upload_sweep_interval", time.Minute),

		ReconcileInterval:    appValues.Duration("reconcile_interval", 5*time.Minute),
		ReconcileGrace:       appValues.Duration("reconcile_grace", 2*time.Minute),
		ReconcileBatch:       int64(appValues.Int("reconcile_batch")),
		ReconcileMaxAttempts: appValues.Int("reconcile_max_attempts"),

		NATSURL:        appValues.String("nats_url"),
		NATSSubject:    appValues.String("nats_subject"),
		NATSRetryDelay: appValues.Duration("nats_retry_delay", 30*time.Second),

		AuditLogInit:  appValues.String("audit_log_init"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		SearchPageSize:     appValues.Int("search_page_size"),
		IssueSecretOnStart: appValues.Bool("issue_secret_on_start"),
		OpsToken:           appValues.String("ops_token"),
	}
	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.TelegramToken == "" {
		return errors.New("telegram_token is required")
	}
	if appCfg.UpdateWorkers <= 0 {
		return fmt.Errorf("update_workers must be positive, got %d", appCfg.UpdateWorkers)
	}
	if appCfg.ReconcileMaxAttempts < 0 {
		return fmt.Errorf("reconcile_max_attempts must not be negative, got %d", appCfg.ReconcileMaxAttempts)
	}
	if appCfg.OpsToken == "" && coreCfg.Env == "prod" {
		logger.Warn("ops_token is empty; /ops is reachable without authentication")
	}
	return nil
}
