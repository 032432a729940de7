// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/groupvault/internal/app/bot"
	"github.com/dalemusser/groupvault/internal/app/delivery"
	"github.com/dalemusser/groupvault/internal/app/delivery/natsbus"
	"github.com/dalemusser/groupvault/internal/app/system/tasks"
	"github.com/dalemusser/groupvault/internal/app/system/timeouts"
	"github.com/dalemusser/groupvault/internal/app/system/workers"
	"github.com/dalemusser/groupvault/internal/app/transport/telegram"
	"github.com/dalemusser/waffle/config"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Runtime holds everything Startup starts and Shutdown stops.
type Runtime struct {
	Services  *Services
	nc        *nats.Conn
	sub       *natsbus.Subscriber
	scheduler *tasks.Scheduler
	pool      *workers.Pool

	stopPolling   context.CancelFunc
	pollerDone    chan struct{}
	cancelHandler context.CancelFunc
}

// Startup builds the services, issues the bootstrap secret and starts the
// background work: the chat poller, the scheduled sweeps and the retry bus
// subscriber.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	rt := deps.Runtime

	api, err := tgbotapi.NewBotAPI(appCfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))

	var pub delivery.Publisher
	if appCfg.NATSURL != "" {
		nc, err := natsbus.Connect(appCfg.NATSURL, logger)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		rt.nc = nc
		pub = natsbus.NewPublisher(nc, appCfg.NATSSubject)
	}

	svc := NewServices(deps.MongoDatabase, appCfg, telegram.New(api, logger), pub, logger)
	rt.Services = svc

	if appCfg.IssueSecretOnStart {
		if err := issueSecret(ctx, svc, logger); err != nil {
			return err
		}
	}

	if rt.nc != nil {
		rt.sub, err = natsbus.Subscribe(rt.nc, natsbus.SubscriberConfig{
			Subject: appCfg.NATSSubject,
			Delay:   appCfg.NATSRetryDelay,
			Timeout: timeouts.Long(),
		}, svc.Reconciler.HandleEvent, logger)
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
	}

	rt.scheduler = tasks.NewScheduler(logger,
		tasks.WorkflowSweepJob(svc.Uploads, logger, appCfg.UploadSweepInterval),
		tasks.ReconcileJob(svc.Reconciler, logger, appCfg.ReconcileInterval, timeouts.Long()),
	)
	rt.scheduler.Start()

	b := bot.New(bot.Deps{
		API:      api,
		Issuer:   svc.Issuer,
		Roles:    svc.RoleService,
		Catalog:  svc.Catalog,
		Uploads:  svc.Uploads,
		Query:    svc.Query,
		Delivery: svc.Delivery,
		Log:      logger,
	})
	rt.pool = workers.NewPool(appCfg.UpdateWorkers, logger)

	// Handlers outlive polling so updates already accepted can finish
	// during shutdown.
	handlerCtx, cancelHandler := context.WithCancel(context.Background())
	pollCtx, stopPolling := context.WithCancel(context.Background())
	rt.cancelHandler, rt.stopPolling = cancelHandler, stopPolling
	rt.pollerDone = make(chan struct{})

	poller := bot.NewPoller(api, b, rt.pool, appCfg.TelegramPollTimeout, logger)
	go func() {
		defer close(rt.pollerDone)
		poller.Run(pollCtx, handlerCtx)
	}()
	logger.Info("polling for chat updates", zap.Int("workers", appCfg.UpdateWorkers))
	return nil
}

// issueSecret supersedes any unclaimed secret and logs the new one. The log
// line is the only place the plaintext appears.
func issueSecret(ctx context.Context, svc *Services, logger *zap.Logger) error {
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), logger, "issue bootstrap secret")
	defer cancel()
	token, err := svc.Issuer.Issue(ctx)
	if err != nil {
		return fmt.Errorf("issue bootstrap secret: %w", err)
	}
	logger.Warn("bootstrap secret issued; claim a group with /init <token>", zap.String("token", token))
	return nil
}
