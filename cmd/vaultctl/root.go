package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dalemusser/groupvault/internal/app/bootstrap"
	"github.com/dalemusser/groupvault/internal/app/transport"
	"github.com/dalemusser/groupvault/internal/app/transport/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type globals struct {
	mongoURI      string
	database      string
	telegramToken string
	logLevel      string
	timeout       time.Duration

	grace       time.Duration
	maxAttempts int
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Operate a groupvault deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&g.mongoURI, "mongo-uri", envOr("GROUPVAULT_MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	f.StringVar(&g.database, "database", envOr("GROUPVAULT_MONGO_DATABASE", "groupvault"), "MongoDB database name")
	f.StringVar(&g.telegramToken, "telegram-token", os.Getenv("GROUPVAULT_TELEGRAM_TOKEN"), "Telegram bot token (needed to delete messages)")
	f.StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	f.DurationVar(&g.timeout, "timeout", 2*time.Minute, "Overall deadline for the command")

	cmd.AddCommand(
		issueSecretCmd(g),
		tombstonesCmd(g),
		reconcileCmd(g),
		rolesCmd(g),
	)
	return cmd
}

// env is one connected command run.
type env struct {
	ctx    context.Context
	svc    *bootstrap.Services
	client *mongo.Client
	log    *zap.Logger
	cancel context.CancelFunc
}

func (e *env) Close() {
	_ = e.client.Disconnect(context.Background())
	e.svc.Limiter.Stop()
	_ = e.log.Sync()
	e.cancel()
}

func (g *globals) logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(g.logLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// connect opens the database and builds the services. The Telegram
// transport is attached only when needTransport is set.
func (g *globals) connect(cmd *cobra.Command, needTransport bool) (*env, error) {
	log, err := g.logger()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)

	var tr transport.Transport
	if needTransport {
		if g.telegramToken == "" {
			cancel()
			return nil, errors.New("--telegram-token (or GROUPVAULT_TELEGRAM_TOKEN) is required")
		}
		api, err := tgbotapi.NewBotAPI(g.telegramToken)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		tr = telegram.New(api, log)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(g.mongoURI).SetAppName("vaultctl"))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	cfg := bootstrap.AppConfig{
		ReconcileGrace:       g.grace,
		ReconcileMaxAttempts: g.maxAttempts,
		AuditLogInit:         "all",
		AuditLogAdmin:        "all",
	}
	svc := bootstrap.NewServices(client.Database(g.database), cfg, tr, nil, log)
	return &env{ctx: ctx, svc: svc, client: client, log: log, cancel: cancel}, nil
}
