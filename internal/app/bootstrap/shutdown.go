// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops polling, lets accepted updates finish, stops the
// background jobs and closes the backends.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.Runtime; rt != nil {
		rt.stop(ctx, logger)
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}

func (rt *Runtime) stop(ctx context.Context, logger *zap.Logger) {
	if rt.stopPolling != nil {
		rt.stopPolling()
		select {
		case <-rt.pollerDone:
		case <-ctx.Done():
			logger.Warn("poller did not stop before the shutdown deadline")
		}
	}

	if rt.pool != nil {
		done := make(chan struct{})
		go func() {
			rt.pool.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			logger.Warn("abandoning in-flight updates at the shutdown deadline")
		}
	}
	if rt.cancelHandler != nil {
		rt.cancelHandler()
	}

	if rt.scheduler != nil {
		rt.scheduler.Stop()
	}
	if rt.sub != nil {
		if err := rt.sub.Close(); err != nil {
			logger.Warn("nats unsubscribe failed", zap.Error(err))
		}
	}
	if rt.nc != nil {
		if err := rt.nc.Drain(); err != nil {
			logger.Warn("nats drain failed", zap.Error(err))
			rt.nc.Close()
		}
	}
	if rt.Services != nil {
		rt.Services.Limiter.Stop()
	}
}
