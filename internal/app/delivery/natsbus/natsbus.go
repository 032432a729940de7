// Package natsbus carries partial-deletion events over NATS so any running
// instance can retry a failed external delete without waiting for the
// periodic sweep.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/groupvault/internal/app/delivery"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "groupvault.delete.partial"

// queueGroup makes each event go to one subscriber per deployment.
const queueGroup = "groupvault-reconcilers"

// Connect dials url with reconnect settings suited to a long-running bot.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("groupvault"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Publisher implements delivery.Publisher on a NATS connection.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

func (p *Publisher) PublishPartialFailure(ctx context.Context, ev delivery.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.nc.Publish(p.subject, data)
}

// Handler processes one decoded event.
type Handler func(ctx context.Context, ev delivery.Event) error

// Subscriber runs handler for each event after Delay, giving the upstream
// a moment to recover before the retry.
type Subscriber struct {
	sub     *nats.Subscription
	handler Handler
	delay   time.Duration
	timeout time.Duration
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// SubscriberConfig configures Subscribe.
type SubscriberConfig struct {
	Subject string
	Delay   time.Duration
	Timeout time.Duration // per-event handler budget
}

// Subscribe starts consuming events. Call Close to stop and wait for
// in-flight handlers.
func Subscribe(nc *nats.Conn, cfg SubscriberConfig, handler Handler, log *zap.Logger) (*Subscriber, error) {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		handler: handler,
		delay:   cfg.Delay,
		timeout: cfg.Timeout,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	sub, err := nc.QueueSubscribe(cfg.Subject, queueGroup, s.onMsg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.Subject, err)
	}
	s.sub = sub
	return s, nil
}

func (s *Subscriber) onMsg(msg *nats.Msg) {
	var ev delivery.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.log.Warn("drop malformed delete event", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if s.delay > 0 {
			t := time.NewTimer(s.delay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-s.ctx.Done():
				return
			}
		}
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		if err := s.handler(ctx, ev); err != nil {
			s.log.Warn("delete event retry failed",
				zap.String("event_id", ev.ID),
				zap.Int64("resource_id", ev.ResourceID),
				zap.Error(err))
		}
	}()
}

// Close unsubscribes and waits for pending handlers. Handlers still waiting
// out their delay are abandoned; the periodic sweep covers them.
func (s *Subscriber) Close() error {
	err := s.sub.Unsubscribe()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	return err
}
