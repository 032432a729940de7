// Package telegram implements transport.Transport over the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dalemusser/groupvault/internal/app/transport"
	"github.com/dalemusser/groupvault/internal/domain/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// API is the subset of *tgbotapi.BotAPI the transport and the bot use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Transport re-delivers by forwarding the original message and deletes by
// message id. The Bot API client is synchronous, so each call runs in its
// own goroutine and is abandoned when ctx ends.
type Transport struct {
	api API
	log *zap.Logger
}

func New(api API, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{api: api, log: log}
}

// SendArtifact forwards the stored message into the target chat and thread.
// If the original message can no longer be forwarded it falls back to
// resending the file by its file id.
func (t *Transport) SendArtifact(ctx context.Context, to transport.Target, ref models.ArtifactRef) error {
	fwd := tgbotapi.Params{}
	fwd.AddNonZero64("chat_id", to.ChatID)
	fwd.AddNonZero64("from_chat_id", ref.ChatID)
	fwd.AddNonZero("message_id", ref.MessageID)
	fwd.AddNonZero("message_thread_id", to.ThreadID)

	err := t.call(ctx, "forwardMessage", fwd)
	if err == nil || ref.FileID == "" {
		return err
	}
	t.log.Debug("forward failed; resending by file id", zap.Int("message_id", ref.MessageID), zap.Error(err))

	method, field, ok := sendMethod(ref.FileType)
	if !ok {
		return err
	}
	send := tgbotapi.Params{}
	send.AddNonZero64("chat_id", to.ChatID)
	send.AddNonZero("message_thread_id", to.ThreadID)
	send.AddNonEmpty(field, ref.FileID)
	return t.call(ctx, method, send)
}

// DeleteArtifact deletes the stored message. Telegram reports an already
// deleted message as a 400 "message to delete not found", which maps to
// DeleteNotFound.
func (t *Transport) DeleteArtifact(ctx context.Context, ref models.ArtifactRef) (transport.DeleteResult, error) {
	err := t.request(ctx, tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
	return Classify(err)
}

// Classify maps a deleteMessage error to a DeleteResult.
func Classify(err error) (transport.DeleteResult, error) {
	if err == nil {
		return transport.DeleteOK, nil
	}
	code, msg, ok := apiError(err)
	if ok && code == http.StatusBadRequest && messageGone(msg) {
		return transport.DeleteNotFound, nil
	}
	return transport.DeleteFailed, err
}

// messageGone matches only the replies that say the message itself no
// longer exists. "chat not found" and "message thread not found" mean the
// bot lost access; the message may still be there.
func messageGone(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "message to delete not found") ||
		strings.Contains(msg, "message_id_invalid")
}

func apiError(err error) (int, string, bool) {
	var pe *tgbotapi.Error
	if errors.As(err, &pe) {
		return pe.Code, pe.Message, true
	}
	return 0, "", false
}

func sendMethod(fileType string) (method, field string, ok bool) {
	switch fileType {
	case models.FileTypeDocument:
		return "sendDocument", "document", true
	case models.FileTypePhoto:
		return "sendPhoto", "photo", true
	case models.FileTypeVideo:
		return "sendVideo", "video", true
	case models.FileTypeAudio:
		return "sendAudio", "audio", true
	case models.FileTypeVoice:
		return "sendVoice", "voice", true
	}
	return "", "", false
}

func (t *Transport) call(ctx context.Context, method string, p tgbotapi.Params) error {
	return await(ctx, func() error {
		_, err := t.api.MakeRequest(method, p)
		if err != nil {
			return fmt.Errorf("telegram %s: %w", method, err)
		}
		return nil
	})
}

func (t *Transport) request(ctx context.Context, c tgbotapi.Chattable) error {
	return await(ctx, func() error {
		_, err := t.api.Request(c)
		return err
	})
}

func await(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
