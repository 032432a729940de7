// internal/app/bootstrap/appconfig.go
package bootstrap

import (
	"time"

	"github.com/dalemusser/groupvault/internal/app/system/timeouts"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig keeps the
// framework-level settings (HTTP port, logging level, timeouts); AppConfig
// carries everything groupvault needs on top of that.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Deadlines around store calls; zero fields keep the defaults.
	Timeouts timeouts.Config

	// Telegram Bot API
	TelegramToken       string        // bot token from @BotFather
	TelegramPollTimeout time.Duration // long-poll wait per getUpdates call
	UpdateWorkers       int           // updates handled concurrently

	// Upload workflows
	UploadIdleTimeout   time.Duration // idle workflows expire after this
	UploadSweepInterval time.Duration // how often expired workflows are dropped

	// Tombstone reconciliation
	ReconcileInterval    time.Duration
	ReconcileGrace       time.Duration // tombstones younger than this are skipped
	ReconcileBatch       int64
	ReconcileMaxAttempts int

	// Retry bus (optional). Empty URL disables it; the periodic sweep still runs.
	NATSURL        string
	NATSSubject    string
	NATSRetryDelay time.Duration // wait before acting on a partial-failure event

	// Audit logging: "all", "db", "log" or "off"
	AuditLogInit  string
	AuditLogAdmin string

	SearchPageSize int

	// IssueSecretOnStart issues a fresh bootstrap secret at every start and
	// logs it once at WARN. Turn off when operators issue secrets with
	// vaultctl instead.
	IssueSecretOnStart bool

	// OpsToken guards /ops. Empty leaves /ops open, for local use only.
	OpsToken string
}
