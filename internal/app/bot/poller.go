// internal/app/bot/poller.go
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/groupvault/internal/app/system/workers"
	"github.com/dalemusser/groupvault/internal/app/transport/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Update is one Bot API update plus the forum thread ids the client
// library does not decode.
type Update struct {
	tgbotapi.Update

	// ThreadID is the topic the incoming message, or the message a pressed
	// button belongs to, was posted in.
	ThreadID int
	// ReplyThreadID is the topic of the message being replied to.
	ReplyThreadID int
}

type threadMessage struct {
	ThreadID int `json:"message_thread_id"`
	ReplyTo  *struct {
		ThreadID int `json:"message_thread_id"`
	} `json:"reply_to_message"`
}

type threadFields struct {
	Message  *threadMessage `json:"message"`
	Callback *struct {
		Message *threadMessage `json:"message"`
	} `json:"callback_query"`
}

// DecodeUpdate parses one raw update.
func DecodeUpdate(raw []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(raw, &u.Update); err != nil {
		return Update{}, err
	}
	var tf threadFields
	if err := json.Unmarshal(raw, &tf); err != nil {
		return u, nil
	}
	m := tf.Message
	if m == nil && tf.Callback != nil {
		m = tf.Callback.Message
	}
	if m != nil {
		u.ThreadID = m.ThreadID
		if m.ReplyTo != nil {
			u.ReplyThreadID = m.ReplyTo.ThreadID
		}
	}
	return u, nil
}

// Handler processes one update.
type Handler interface {
	Handle(ctx context.Context, u Update)
}

// Poller long-polls getUpdates and hands each update to the worker pool.
type Poller struct {
	api     telegram.API
	handler Handler
	pool    *workers.Pool
	timeout time.Duration
	log     *zap.Logger

	offset int
}

// NewPoller creates a poller. timeout is the long-poll wait passed to
// Telegram.
func NewPoller(api telegram.API, h Handler, pool *workers.Pool, timeout time.Duration, log *zap.Logger) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{api: api, handler: h, pool: pool, timeout: timeout, log: log}
}

// Run polls until ctx is done. Updates are handled with handlerCtx, which
// outlives ctx so in-flight updates can finish during shutdown.
func (p *Poller) Run(ctx, handlerCtx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		updates, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("getUpdates failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < time.Minute {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, u := range updates {
			u := u
			if err := p.pool.Submit(ctx, "update", func() { p.handler.Handle(handlerCtx, u) }); err != nil {
				return
			}
		}
	}
}

func (p *Poller) fetch(ctx context.Context) ([]Update, error) {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", p.offset)
	params.AddNonZero("timeout", int(p.timeout/time.Second))
	params["allowed_updates"] = `["message","callback_query"]`

	type result struct {
		resp *tgbotapi.APIResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := p.api.MakeRequest("getUpdates", params)
		done <- result{resp, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}
	if res.resp == nil {
		return nil, errors.New("empty getUpdates response")
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(res.resp.Result, &raws); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	out := make([]Update, 0, len(raws))
	for _, raw := range raws {
		var id struct {
			UpdateID int `json:"update_id"`
		}
		if err := json.Unmarshal(raw, &id); err == nil && id.UpdateID >= p.offset {
			p.offset = id.UpdateID + 1
		}
		u, err := DecodeUpdate(raw)
		if err != nil {
			p.log.Warn("skip undecodable update", zap.Error(err))
			continue
		}
		out = append(out, u)
	}
	return out, nil
}
